package user

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Create(ctx context.Context, dto CreateUserDTO, actorID int64) (*User, error)
	Get(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context, filter ListFilter) ([]*User, error)
	UpdateProfile(ctx context.Context, id int64, dto UpdateProfileDTO) (*User, error)
	ResetPassword(ctx context.Context, id int64, dto ResetPasswordDTO, actorID int64) error
	ChangeRole(ctx context.Context, id int64, dto ChangeRoleDTO, actorID int64) (*User, error)
	Deactivate(ctx context.Context, id int64, actorID int64) error
	Reactivate(ctx context.Context, id int64, actorID int64) error
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

// ListUsers handles GET /users?role=&active=&limit=&offset=
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Role:       role.Role(q.Get("role")),
		ActiveOnly: q.Get("active") == "true",
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}

	users, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, UsersResponse{Users: users})
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var dto CreateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	actorID, _ := internal.UserIDFromContext(r.Context())
	u, err := h.Service.Create(r.Context(), dto, actorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, u)
}

// GetUser handles GET /users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := transport.ParseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	u, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// UpdateUser handles PATCH /users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := transport.ParseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	var dto UpdateProfileDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	u, err := h.Service.UpdateProfile(r.Context(), id, dto)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// ChangeRole handles PUT /users/{id}/role
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id, err := transport.ParseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	var dto ChangeRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	actorID, _ := internal.UserIDFromContext(r.Context())
	u, err := h.Service.ChangeRole(r.Context(), id, dto, actorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// ResetPassword handles PUT /users/{id}/password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := transport.ParseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	var dto ResetPasswordDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	actorID, _ := internal.UserIDFromContext(r.Context())
	if err := h.Service.ResetPassword(r.Context(), id, dto, actorID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deactivate handles POST /users/{id}/deactivate
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// Reactivate handles POST /users/{id}/reactivate
func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := transport.ParseIDParam(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	actorID, _ := internal.UserIDFromContext(r.Context())
	if active {
		err = h.Service.Reactivate(r.Context(), id, actorID)
	} else {
		err = h.Service.Deactivate(r.Context(), id, actorID)
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.WriteAppError(w, r, internal.NewNotFoundError("user not found", internal.ErrCodeUserNotFound))
	case errors.Is(err, ErrUsernameTaken):
		h.WriteAppError(w, r, internal.NewConflictError("username already taken", internal.ErrCodeUsernameTaken))
	case errors.Is(err, ErrSelfDeactivation):
		h.WriteAppError(w, r, internal.NewValidationError("you cannot deactivate your own account", internal.ErrCodeSelfDeactivation))
	case errors.Is(err, ErrPrivilegedAccount):
		h.WriteAppError(w, r, internal.NewForbiddenError("only a privileged user can manage privileged accounts", internal.ErrCodePrivilegedAccount))
	case errors.Is(err, role.ErrUnknownRole):
		h.WriteAppError(w, r, internal.NewValidationError("unknown role", internal.ErrCodeUnknownRole))
	default:
		h.WriteAppError(w, r, err)
	}
}
