package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marcuspat/devxplatform/internal/auth"
	"github.com/marcuspat/devxplatform/internal/health"
	"github.com/marcuspat/devxplatform/internal/observability"
	"github.com/marcuspat/devxplatform/internal/users"
	"github.com/marcuspat/devxplatform/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	TokenManager  *auth.TokenManager
	AuthHandler   *auth.Handler
	UsersHandler  *users.Handler
	HealthHandler *health.Handler
	JobsHandler   *jobs.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with platform defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.HealthHandler != nil {
		r.Route("/health", params.HealthHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", func(r chi.Router) {
				r.Use(auth.RequireAuth(params.TokenManager))
				params.UsersHandler.MountRoutes(r)
			})
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(auth.RequireAuth(params.TokenManager))
				params.JobsHandler.MountRoutes(r)
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
