// Package access is the single place where requests are authenticated and
// authorized. Every denial, integrity problem and storage failure surfaces
// here as one of four errors so transports can map them consistently.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/user"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrIntegrityViolation = errors.New("integrity violation")
	ErrUnavailable        = errors.New("access check unavailable")
)

// DeniedError describes a Forbidden outcome. It matches ErrForbidden, and
// ErrIntegrityViolation as well when the denial came from bad stored data.
type DeniedError struct {
	UserID    int64
	Role      role.Role
	Required  string
	Integrity bool
}

func (e *DeniedError) Error() string {
	if e.Integrity {
		return fmt.Sprintf("user %d has invalid role %q; denied %s", e.UserID, e.Role, e.Required)
	}
	return fmt.Sprintf("role %q may not %s", e.Role, e.Required)
}

func (e *DeniedError) Is(target error) bool {
	switch target {
	case ErrForbidden:
		return true
	case ErrIntegrityViolation:
		return e.Integrity
	}
	return false
}

func requiredRoles(roles []role.Role) string {
	return "role:" + strings.Join(role.Strings(roles), "|")
}

func requiredCapability(module, action string) string {
	return module + ":" + action
}

type ctxKey struct{}

// WithUser stores the resolved principal for the rest of the request.
func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*user.User)
	return u, ok && u != nil
}
