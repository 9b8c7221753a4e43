package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/audit"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/permission"
	"github.com/frahmantamala/hospitality-access/internal/user"
)

// SessionResolver turns a session id into its live user. The auth service
// implements it.
type SessionResolver interface {
	CurrentUser(ctx context.Context, sessionID string) (*user.User, error)
}

// CapabilityEvaluator decides one capability for one user. The permission
// service implements it.
type CapabilityEvaluator interface {
	Evaluate(ctx context.Context, userID int64, r role.Role, module, action string) (permission.Decision, error)
}

type Options struct {
	// RecordSensitiveSuccess also audits allowed checks on sensitive actions.
	RecordSensitiveSuccess bool
}

type Engine struct {
	sessions        SessionResolver
	perms           CapabilityEvaluator
	sink            audit.Sink
	logger          *slog.Logger
	recordSensitive bool
}

func NewEngine(sessions SessionResolver, perms CapabilityEvaluator, sink audit.Sink, logger *slog.Logger, opts Options) *Engine {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Engine{
		sessions:        sessions,
		perms:           perms,
		sink:            sink,
		logger:          logger,
		recordSensitive: opts.RecordSensitiveSuccess,
	}
}

// RequireLogin resolves the session to an active user or fails with
// ErrUnauthenticated. Storage failures are ErrUnavailable, never a denial.
func (e *Engine) RequireLogin(ctx context.Context, sessionID string) (*user.User, error) {
	u, err := e.sessions.CurrentUser(ctx, sessionID)
	if err != nil {
		e.logger.ErrorContext(ctx, "session lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if u == nil {
		return nil, ErrUnauthenticated
	}
	return u, nil
}

// RequireRole passes when the user's role is one of roles, or privileged.
func (e *Engine) RequireRole(ctx context.Context, sessionID string, roles ...role.Role) (*user.User, error) {
	u, err := e.RequireLogin(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.CheckRole(ctx, u, roles...); err != nil {
		return nil, err
	}
	return u, nil
}

// CheckRole applies the role gate to an already resolved user.
func (e *Engine) CheckRole(ctx context.Context, u *user.User, roles ...role.Role) error {
	required := requiredRoles(roles)
	if !u.Role.Valid() {
		return e.integrity(ctx, u, "", "", required)
	}
	if u.Role.IsPrivileged() || u.Role.In(roles...) {
		return nil
	}

	e.record(ctx, u, "", "", audit.DecisionDeny, audit.RiskMedium, "role not accepted: "+required)
	return &DeniedError{UserID: u.ID, Role: u.Role, Required: required}
}

// HasCapability is the non-failing check for UI decisions. Anything other
// than an explicit allow, including a storage failure, is false. Ordinary
// denials are not audited.
func (e *Engine) HasCapability(ctx context.Context, sessionID, module, action string) bool {
	u, err := e.RequireLogin(ctx, sessionID)
	if err != nil {
		return false
	}
	d, err := e.Evaluate(ctx, u, module, action)
	return err == nil && d.Allowed
}

// RequireCapability is the strict check run before a protected operation.
func (e *Engine) RequireCapability(ctx context.Context, sessionID, module, action string) (*user.User, error) {
	u, err := e.RequireLogin(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.CheckCapability(ctx, u, module, action); err != nil {
		return nil, err
	}
	return u, nil
}

// CheckCapability applies the capability gate to an already resolved user.
func (e *Engine) CheckCapability(ctx context.Context, u *user.User, module, action string) error {
	d, err := e.Evaluate(ctx, u, module, action)
	if err != nil {
		return err
	}

	if !d.Allowed {
		risk := audit.RiskMedium
		if d.Sensitive {
			risk = audit.RiskHigh
		}
		e.record(ctx, u, module, action, audit.DecisionDeny, risk, "capability not granted")
		return &DeniedError{UserID: u.ID, Role: u.Role, Required: requiredCapability(module, action)}
	}

	if d.Sensitive && e.recordSensitive {
		e.record(ctx, u, module, action, audit.DecisionAllow, audit.RiskLow, "granted via "+string(d.Source))
	}
	return nil
}

// Evaluate returns the decision for u without auditing it. Integrity
// problems come back as a DeniedError with Integrity set; storage failures
// as ErrUnavailable.
func (e *Engine) Evaluate(ctx context.Context, u *user.User, module, action string) (permission.Decision, error) {
	required := requiredCapability(module, action)
	if !u.Role.Valid() {
		return permission.Decision{}, e.integrity(ctx, u, module, action, required)
	}

	d, err := e.perms.Evaluate(ctx, u.ID, u.Role, module, action)
	if err != nil {
		if errors.Is(err, role.ErrUnknownRole) || errors.Is(err, permission.ErrDanglingGrant) {
			return permission.Decision{}, e.integrity(ctx, u, module, action, required)
		}
		e.logger.ErrorContext(ctx, "permission lookup failed",
			"user_id", u.ID, "module", module, "action", action, "error", err)
		return permission.Decision{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return d, nil
}

func (e *Engine) integrity(ctx context.Context, u *user.User, module, action, required string) error {
	e.logger.ErrorContext(ctx, "access check hit invalid permission data",
		"integrity_violation", true,
		"user_id", u.ID,
		"role", string(u.Role),
		"required", required)
	e.record(ctx, u, module, action, audit.DecisionDeny, audit.RiskCritical, "integrity violation: "+required)
	return &DeniedError{UserID: u.ID, Role: u.Role, Required: required, Integrity: true}
}

func (e *Engine) record(ctx context.Context, u *user.User, module, action string, decision audit.Decision, risk audit.RiskLevel, reason string) {
	client := internal.ClientFromContext(ctx)
	entry := audit.Entry{
		Role:       string(u.Role),
		Module:     module,
		Action:     action,
		Decision:   decision,
		Reason:     reason,
		RiskLevel:  risk,
		RequestID:  client.RequestID,
		RemoteAddr: client.RemoteAddr,
	}
	if u.ID > 0 {
		id := u.ID
		entry.UserID = &id
	}
	e.sink.Record(ctx, entry)

	if decision == audit.DecisionDeny {
		e.logger.WarnContext(ctx, "access denied",
			"user_id", u.ID, "role", string(u.Role), "module", module, "action", action, "reason", reason)
	}
}
