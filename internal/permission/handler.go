package permission

import (
	"context"
	"errors"
	"net/http"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Catalogue(ctx context.Context) (Catalogue, error)
	Matrix(ctx context.Context, r role.Role) ([]Capability, error)
	Grant(ctx context.Context, in GrantInput) error
	Revoke(ctx context.Context, r role.Role, module, action string, actorID int64) error
	Overrides(ctx context.Context, userID int64) ([]*Override, error)
	SetOverride(ctx context.Context, in OverrideInput) error
	ClearOverride(ctx context.Context, userID int64, module, action string, actorID int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
	}
}

// GetCatalogue handles GET /permissions/catalogue
func (h *Handler) GetCatalogue(w http.ResponseWriter, r *http.Request) {
	cat, err := h.Service.Catalogue(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, cat)
}

// GetRoleMatrix handles GET /permissions/roles/{role}
func (h *Handler) GetRoleMatrix(w http.ResponseWriter, r *http.Request) {
	rl, err := role.Parse(chi.URLParam(r, "role"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	caps, err := h.Service.Matrix(r.Context(), rl)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, MatrixResponse{Role: rl, Capabilities: caps})
}

// GrantCapability handles PUT /permissions/roles/{role}/{module}/{action}
func (h *Handler) GrantCapability(w http.ResponseWriter, r *http.Request) {
	rl, err := role.Parse(chi.URLParam(r, "role"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var dto GrantDTO
	if r.ContentLength != 0 {
		if err := h.DecodeJSON(r, &dto); err != nil {
			h.WriteAppError(w, r, err)
			return
		}
	}

	actorID, _ := internal.UserIDFromContext(r.Context())
	err = h.Service.Grant(r.Context(), GrantInput{
		Role:             rl,
		Module:           chi.URLParam(r, "module"),
		Action:           chi.URLParam(r, "action"),
		RequiresApproval: dto.RequiresApproval,
		ActorID:          actorID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeCapability handles DELETE /permissions/roles/{role}/{module}/{action}
func (h *Handler) RevokeCapability(w http.ResponseWriter, r *http.Request) {
	rl, err := role.Parse(chi.URLParam(r, "role"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	actorID, _ := internal.UserIDFromContext(r.Context())
	err = h.Service.Revoke(r.Context(), rl, chi.URLParam(r, "module"), chi.URLParam(r, "action"), actorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUserOverrides handles GET /permissions/users/{id}
func (h *Handler) GetUserOverrides(w http.ResponseWriter, r *http.Request) {
	id, err := transport.ParseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	list, err := h.Service.Overrides(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, OverridesResponse{UserID: id, Overrides: list})
}

// SetUserOverride handles PUT /permissions/users/{id}/{module}/{action}
func (h *Handler) SetUserOverride(w http.ResponseWriter, r *http.Request) {
	id, err := transport.ParseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	var dto OverrideDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if verr := dto.Validate(); verr != nil {
		h.WriteAppError(w, r, verr)
		return
	}

	actorID, _ := internal.UserIDFromContext(r.Context())
	err = h.Service.SetOverride(r.Context(), OverrideInput{
		UserID:    id,
		Module:    chi.URLParam(r, "module"),
		Action:    chi.URLParam(r, "action"),
		Effect:    Effect(dto.Effect),
		ExpiresAt: dto.ExpiresAt,
		Reason:    dto.Reason,
		ActorID:   actorID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearUserOverride handles DELETE /permissions/users/{id}/{module}/{action}
func (h *Handler) ClearUserOverride(w http.ResponseWriter, r *http.Request) {
	id, err := transport.ParseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	actorID, _ := internal.UserIDFromContext(r.Context())
	err = h.Service.ClearOverride(r.Context(), id, chi.URLParam(r, "module"), chi.URLParam(r, "action"), actorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, role.ErrUnknownRole):
		h.WriteAppError(w, r, internal.NewValidationError("unknown role", internal.ErrCodeUnknownRole))
	case errors.Is(err, ErrUnknownCapability):
		h.WriteAppError(w, r, internal.NewValidationError("unknown module or action", internal.ErrCodeUnknownCapability))
	default:
		h.WriteAppError(w, r, internal.NewUnavailableError("permission store is unavailable", err))
	}
}
