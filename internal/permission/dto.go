package permission

import (
	"time"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/core/common/validation"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
)

type GrantDTO struct {
	RequiresApproval bool `json:"requires_approval"`
}

type OverrideDTO struct {
	Effect    string     `json:"effect"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason"`
}

func (d OverrideDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("effect", d.Effect).Required().OneOf([]string{string(EffectAllow), string(EffectDeny)}, internal.ErrCodeValidationFailed)
	v.Field("reason", d.Reason).MaxLength(255)
	return v.Validate()
}

type MatrixResponse struct {
	Role         role.Role    `json:"role"`
	Capabilities []Capability `json:"capabilities"`
}

type OverridesResponse struct {
	UserID    int64       `json:"user_id"`
	Overrides []*Override `json:"overrides"`
}
