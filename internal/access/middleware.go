package access

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/transport"
	"github.com/frahmantamala/hospitality-access/internal/user"
	"github.com/frahmantamala/hospitality-access/pkg/logger"
)

// Authorization turns Engine outcomes into HTTP responses. Browsers are
// redirected to the login or access-denied page; API callers get a JSON
// error envelope.
type Authorization struct {
	engine     *Engine
	base       *transport.BaseHandler
	loginPath  string
	deniedPath string
}

func NewAuthorization(engine *Engine, base *transport.BaseHandler, loginPath, deniedPath string) *Authorization {
	return &Authorization{
		engine:     engine,
		base:       base,
		loginPath:  loginPath,
		deniedPath: deniedPath,
	}
}

func (a *Authorization) RequireLogin() func(http.Handler) http.Handler {
	return a.gate(nil)
}

func (a *Authorization) RequireRole(roles ...role.Role) func(http.Handler) http.Handler {
	return a.gate(func(ctx context.Context, u *user.User) error {
		return a.engine.CheckRole(ctx, u, roles...)
	})
}

// RequirePrivileged admits only the privileged roles.
func (a *Authorization) RequirePrivileged() func(http.Handler) http.Handler {
	return a.RequireRole(role.Privileged()...)
}

func (a *Authorization) RequireCapability(module, action string) func(http.Handler) http.Handler {
	return a.gate(func(ctx context.Context, u *user.User) error {
		return a.engine.CheckCapability(ctx, u, module, action)
	})
}

// Check wraps a single handler with a capability gate.
func (a *Authorization) Check(next http.HandlerFunc, module, action string) http.HandlerFunc {
	return a.RequireCapability(module, action)(next).ServeHTTP
}

func (a *Authorization) gate(check func(ctx context.Context, u *user.User) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			u, ok := UserFromContext(ctx)
			if !ok {
				var err error
				u, err = a.engine.RequireLogin(ctx, internal.SessionIDFromContext(ctx))
				if err != nil {
					a.fail(w, r, err)
					return
				}
				ctx = WithUser(ctx, u)
				ctx = internal.ContextWithUserID(ctx, u.ID)
				ctx = logger.With(ctx, "user_id", u.ID)
			}

			if check != nil {
				if err := check(ctx, u); err != nil {
					a.fail(w, r.WithContext(ctx), err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authorization) fail(w http.ResponseWriter, r *http.Request, err error) {
	html := transport.WantsHTML(r)

	var denied *DeniedError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		if html && a.loginPath != "" {
			http.Redirect(w, r, a.loginPath+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		a.base.WriteAppError(w, r, internal.NewUnauthorizedError("authentication required", internal.ErrCodeUnauthenticated))

	case errors.As(err, &denied):
		if html && a.deniedPath != "" {
			q := url.Values{}
			q.Set("role", string(denied.Role))
			q.Set("required", denied.Required)
			http.Redirect(w, r, a.deniedPath+"?"+q.Encode(), http.StatusSeeOther)
			return
		}
		code := internal.ErrCodeForbidden
		if denied.Integrity {
			code = internal.ErrCodeIntegrityViolation
		}
		a.base.WriteAppError(w, r, internal.NewForbiddenError("you do not have access to this resource", code).
			WithDetails(internal.DeniedDetails{Role: string(denied.Role), Required: denied.Required}))

	default:
		a.base.WriteAppError(w, r, internal.NewUnavailableError("access check is temporarily unavailable", err))
	}
}
