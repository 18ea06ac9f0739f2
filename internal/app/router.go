package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/cbes-platform/cbes-api/internal/auth"
	"github.com/cbes-platform/cbes-api/internal/cbes"
	"github.com/cbes-platform/cbes-api/internal/observability"
	"github.com/cbes-platform/cbes-api/internal/permissions"
	"github.com/cbes-platform/cbes-api/internal/roles"
	"github.com/cbes-platform/cbes-api/internal/shared"
	"github.com/cbes-platform/cbes-api/internal/users"
	"github.com/cbes-platform/cbes-api/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager

	AuthHandler        *auth.Handler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *permissions.Handler
	CBEHandler         *cbes.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/api", func(r chi.Router) {
		r.Route("/roles", params.RolesHandler.MountRoutes)
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.CBEHandler != nil {
			r.Route("/cbes", params.CBEHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
