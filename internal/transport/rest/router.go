package rest

import (
	"net/http"

	"github.com/frahmantamala/hospitality-access/internal/access"
	"github.com/frahmantamala/hospitality-access/internal/audit"
	"github.com/frahmantamala/hospitality-access/internal/auth"
	"github.com/frahmantamala/hospitality-access/internal/permission"
	"github.com/frahmantamala/hospitality-access/internal/transport"
	"github.com/frahmantamala/hospitality-access/internal/transport/middleware"
	"github.com/frahmantamala/hospitality-access/internal/transport/swagger"
	"github.com/frahmantamala/hospitality-access/internal/user"
	"github.com/go-chi/chi"
)

// Handlers groups everything the router mounts. Nil feature handlers are
// skipped so tests can mount a subset.
type Handlers struct {
	Base           *transport.BaseHandler
	Health         *HealthHandler
	Auth           *auth.Handler
	Users          *user.Handler
	Permissions    *permission.Handler
	Audit          *audit.Handler
	Authz          *access.Authorization
	AllowedOrigins []string
}

func RegisterAllRoutes(router *chi.Mux, h Handlers) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(h.Base))
	router.Use(middleware.CORS(h.AllowedOrigins))
	router.Use(middleware.LoggingMiddleware)

	router.Get(swagger.SpecPath, swagger.SpecHandler)
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.Health)
			r.Get("/ping", h.Health.Ping)
		}

		if h.Auth == nil || h.Authz == nil {
			return
		}
		authz := h.Authz

		r.Group(func(sr chi.Router) {
			sr.Use(h.Auth.SessionLoader)

			sr.Post("/auth/login", h.Auth.Login)
			sr.Post("/auth/logout", h.Auth.Logout)
			sr.With(authz.RequireLogin()).Get("/auth/me", h.Auth.Me)

			if h.Users != nil {
				sr.Route("/users", func(ur chi.Router) {
					ur.Use(authz.RequireLogin())
					ur.With(authz.RequireCapability(permission.ModuleUsers, permission.ActionView)).Get("/", h.Users.ListUsers)
					ur.With(authz.RequireCapability(permission.ModuleUsers, permission.ActionCreate)).Post("/", h.Users.CreateUser)
					ur.With(authz.RequireCapability(permission.ModuleUsers, permission.ActionView)).Get("/{id}", h.Users.GetUser)
					ur.With(authz.RequireCapability(permission.ModuleUsers, permission.ActionUpdate)).Patch("/{id}", h.Users.UpdateUser)
					ur.With(authz.RequireCapability(permission.ModuleUsers, permission.ActionUpdate)).Put("/{id}/password", h.Users.ResetPassword)
					ur.With(authz.RequireCapability(permission.ModuleUsers, permission.ActionDelete)).Post("/{id}/deactivate", h.Users.Deactivate)
					ur.With(authz.RequireCapability(permission.ModuleUsers, permission.ActionUpdate)).Post("/{id}/reactivate", h.Users.Reactivate)

					// Role changes reshape access, so they stay with the privileged roles.
					ur.With(authz.RequirePrivileged()).Put("/{id}/role", h.Users.ChangeRole)
				})
			}

			if h.Permissions != nil {
				sr.Route("/permissions", func(pr chi.Router) {
					pr.Use(authz.RequireLogin())
					view := authz.RequireCapability(permission.ModulePermissions, permission.ActionView)
					edit := authz.RequireCapability(permission.ModulePermissions, permission.ActionUpdate)

					pr.With(view).Get("/catalogue", h.Permissions.GetCatalogue)
					pr.With(view).Get("/roles/{role}", h.Permissions.GetRoleMatrix)
					pr.With(edit).Put("/roles/{role}/{module}/{action}", h.Permissions.GrantCapability)
					pr.With(edit).Delete("/roles/{role}/{module}/{action}", h.Permissions.RevokeCapability)
					pr.With(view).Get("/users/{id}", h.Permissions.GetUserOverrides)
					pr.With(edit).Put("/users/{id}/{module}/{action}", h.Permissions.SetUserOverride)
					pr.With(edit).Delete("/users/{id}/{module}/{action}", h.Permissions.ClearUserOverride)
				})
			}

			if h.Audit != nil {
				sr.With(authz.RequireCapability(permission.ModuleAudit, permission.ActionView)).Get("/audit", h.Audit.ListEntries)
			}
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.Base.WriteError(w, http.StatusNotFound, "route not found")
	})
}
