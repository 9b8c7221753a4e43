package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/access"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/permission"
	"github.com/frahmantamala/hospitality-access/internal/transport"
	"github.com/frahmantamala/hospitality-access/internal/user"
	"github.com/frahmantamala/hospitality-access/pkg/logger"
	"github.com/go-chi/chi/middleware"
)

type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO) (*Session, *user.User, error)
	Logout(ctx context.Context, sessionID string) error
}

// ModuleLister returns the modules a user can open.
type ModuleLister interface {
	UserModules(ctx context.Context, userID int64, r role.Role) ([]permission.Module, error)
}

type CookieConfig struct {
	Name   string
	Secure bool
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Codec   *TokenCodec
	Modules ModuleLister
	Cookie  CookieConfig
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI, codec *TokenCodec, modules ModuleLister, cookie CookieConfig) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
		Codec:       codec,
		Modules:     modules,
		Cookie:      cookie,
	}
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	session, u, err := h.Service.Login(r.Context(), dto)
	if err != nil {
		var verr ValidationError
		switch {
		case errors.As(err, &verr):
			h.WriteAppError(w, r, internal.NewValidationError(verr.Msg, internal.ErrCodeValidationFailed))
		case errors.Is(err, ErrInvalidCredentials):
			h.WriteAppError(w, r, internal.NewUnauthorizedError("invalid username or password", internal.ErrCodeInvalidCredentials))
		case errors.Is(err, ErrTooManyAttempts):
			w.Header().Set("Retry-After", "60")
			h.WriteAppError(w, r, internal.NewTooManyRequestsError("too many login attempts, try again later", internal.ErrCodeTooManyAttempts))
		case errors.Is(err, ErrUnavailable):
			h.WriteAppError(w, r, internal.NewUnavailableError("authentication is temporarily unavailable", err))
		default:
			h.WriteAppError(w, r, err)
		}
		return
	}

	token, err := h.Codec.Encode(session)
	if err != nil {
		h.WriteAppError(w, r, internal.NewInternalError("failed to issue session token", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	h.WriteJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: session.ExpiresAt,
		User:      u,
	})
}

// Logout handles POST /auth/logout. It always succeeds for the client unless
// the session store cannot be reached.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sid := internal.SessionIDFromContext(r.Context())

	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	if err := h.Service.Logout(r.Context(), sid); err != nil {
		h.WriteAppError(w, r, internal.NewUnavailableError("logout could not be recorded", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me. It sits behind RequireLogin.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := access.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.NewUnauthorizedError("authentication required", internal.ErrCodeUnauthenticated))
		return
	}

	if !u.RoleValid() {
		h.writeIntegrityViolation(w, r, u)
		return
	}

	modules := []permission.Module{}
	if h.Modules != nil {
		list, err := h.Modules.UserModules(r.Context(), u.ID, u.Role)
		switch {
		case errors.Is(err, role.ErrUnknownRole):
			h.writeIntegrityViolation(w, r, u)
			return
		case err != nil:
			h.WriteAppError(w, r, internal.NewUnavailableError("permissions are temporarily unavailable", err))
			return
		}
		modules = list
	}

	h.WriteJSON(w, http.StatusOK, MeResponse{User: u, Role: u.Role, Modules: modules})
}

// writeIntegrityViolation answers a stored role outside the enumeration. It
// is a denial, never a storage outage.
func (h *Handler) writeIntegrityViolation(w http.ResponseWriter, r *http.Request, u *user.User) {
	logger.From(r.Context()).WarnContext(r.Context(), "stored role outside the enumeration", "user_id", u.ID, "role", u.Role)
	h.WriteAppError(w, r, internal.NewForbiddenError("account role is not recognised", internal.ErrCodeIntegrityViolation))
}

// SessionLoader reads the session token from the cookie or a Bearer header and
// stores the session id in the request context. A bad token is treated as no
// session; the request continues and later checks decide.
func (h *Handler) SessionLoader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := internal.ContextWithClient(r.Context(), internal.ClientInfo{
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
			RequestID:  middleware.GetReqID(r.Context()),
		})

		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			if c, err := r.Cookie(h.Cookie.Name); err == nil {
				token = c.Value
			}
		}

		if token != "" {
			sid, err := h.Codec.Decode(token)
			if err != nil {
				logger.From(ctx).DebugContext(ctx, "ignoring unusable session token", "error", err)
			} else {
				ctx = internal.ContextWithSessionID(ctx, sid)
				ctx = logger.WithSession(ctx, sid)
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
