package permission

import (
	"context"
	"errors"
	"time"

	permissionDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/permission"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
)

type Module struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	SortOrder   int    `json:"sort_order"`
	IsActive    bool   `json:"is_active"`
}

type Action struct {
	Key              string `json:"key"`
	DisplayName      string `json:"display_name"`
	Description      string `json:"description,omitempty"`
	IsSensitive      bool   `json:"is_sensitive"`
	RequiresApproval bool   `json:"requires_approval"`
}

type Grant struct {
	Role             role.Role `json:"role"`
	Module           string    `json:"module"`
	Action           string    `json:"action"`
	Granted          bool      `json:"granted"`
	RequiresApproval bool      `json:"requires_approval"`
	GrantedBy        *int64    `json:"granted_by,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Override allows or denies one capability for one user. It wins over the
// role table while it has not expired.
type Override struct {
	UserID    int64      `json:"user_id"`
	Module    string     `json:"module"`
	Action    string     `json:"action"`
	Effect    Effect     `json:"effect"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	GrantedBy *int64     `json:"granted_by,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Active is false once now reaches ExpiresAt.
func (o *Override) Active(now time.Time) bool {
	return o != nil && (o.ExpiresAt == nil || now.Before(*o.ExpiresAt))
}

type Source string

const (
	SourceOverride Source = "override"
	SourceRole     Source = "role"
	SourceNone     Source = "none"
)

// Decision is the outcome of evaluating one capability for one user.
type Decision struct {
	Allowed          bool   `json:"allowed"`
	Source           Source `json:"source"`
	RequiresApproval bool   `json:"requires_approval"`
	Sensitive        bool   `json:"sensitive"`
}

// RepositoryAPI stores the catalogue, the role table and user overrides.
// Grant, Revoke, SetOverride and ClearOverride bump the permission version in
// the same transaction and return the new version.
type RepositoryAPI interface {
	Version(ctx context.Context) (int64, error)

	FindGrant(ctx context.Context, r role.Role, module, action string) (*Grant, error)
	ListGrants(ctx context.Context, r role.Role) ([]*Grant, error)
	Grant(ctx context.Context, g *Grant) (int64, error)
	Revoke(ctx context.Context, r role.Role, module, action string) (int64, error)

	Modules(ctx context.Context) ([]Module, error)
	Actions(ctx context.Context) ([]Action, error)
	SaveModule(ctx context.Context, m Module) error
	SaveAction(ctx context.Context, a Action) error

	FindOverride(ctx context.Context, userID int64, module, action string) (*Override, error)
	ListOverrides(ctx context.Context, userID int64) ([]*Override, error)
	SetOverride(ctx context.Context, o *Override) (int64, error)
	ClearOverride(ctx context.Context, userID int64, module, action string) (int64, error)
}

var (
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrDanglingGrant means a stored grant or override names a module or
	// action that is not in the catalogue.
	ErrDanglingGrant = errors.New("permission row references unknown capability")
)

// Key is the map key for a capability.
func Key(module, action string) string {
	return module + ":" + action
}

func GrantFromDataModel(rp *permissionDatamodel.RolePermission) *Grant {
	return &Grant{
		Role:             role.Role(rp.Role),
		Module:           rp.Module,
		Action:           rp.Action,
		Granted:          rp.Granted,
		RequiresApproval: rp.RequiresApproval,
		GrantedBy:        rp.GrantedBy,
		UpdatedAt:        rp.UpdatedAt,
	}
}

func OverrideFromDataModel(o *permissionDatamodel.UserOverride) *Override {
	return &Override{
		UserID:    o.UserID,
		Module:    o.Module,
		Action:    o.Action,
		Effect:    Effect(o.Effect),
		ExpiresAt: o.ExpiresAt,
		GrantedBy: o.GrantedBy,
		Reason:    o.Reason,
		UpdatedAt: o.UpdatedAt,
	}
}

// decide applies the evaluation order: an active deny override, then an
// active allow override, then the role table, then deny.
func decide(now time.Time, ov *Override, g *Grant) Decision {
	if ov.Active(now) {
		switch ov.Effect {
		case EffectDeny:
			return Decision{Allowed: false, Source: SourceOverride}
		case EffectAllow:
			return Decision{Allowed: true, Source: SourceOverride}
		}
	}
	if g != nil && g.Granted {
		return Decision{Allowed: true, Source: SourceRole, RequiresApproval: g.RequiresApproval}
	}
	return Decision{Allowed: false, Source: SourceNone}
}
