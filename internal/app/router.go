package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ticketslave/ticketslave/internal/audit"
	"github.com/ticketslave/ticketslave/internal/auth"
	"github.com/ticketslave/ticketslave/internal/observability"
	"github.com/ticketslave/ticketslave/internal/platform/httpx"
	"github.com/ticketslave/ticketslave/internal/rbac"
	"github.com/ticketslave/ticketslave/internal/roles"
	"github.com/ticketslave/ticketslave/internal/users"
	"github.com/ticketslave/ticketslave/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Metrics        *observability.Metrics
	Authenticator  *auth.Authenticator
	RBACMiddleware rbac.Middleware

	AuthHandler  *auth.Handler
	RBACHandler  *rbac.Handler
	RolesHandler *roles.Handler
	UsersHandler *users.Handler
	AuditHandler *audit.Handler
	JobHandler   *jobs.Handler
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:        params.Logger,
		Config:        params.Config,
		Metrics:       params.Metrics,
		Authenticator: params.Authenticator,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.With(params.RBACMiddleware.Authenticated()).Get("/me", params.AuthHandler.Me)
	}
	if params.RBACHandler != nil {
		r.Route("/permissions", params.RBACHandler.MountPermissionRoutes)
	}
	if params.RolesHandler != nil || params.RBACHandler != nil {
		r.Route("/roles", func(r chi.Router) {
			if params.RolesHandler != nil {
				params.RolesHandler.MountRoutes(r)
			}
			if params.RBACHandler != nil {
				params.RBACHandler.MountRolePermissionRoutes(r)
			}
		})
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit-logs", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
