// Package health exposes liveness, readiness and dependency checks.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/marcuspat/devxplatform/internal/platform/httpx"
)

// DBPinger is the subset of pgxpool.Pool the checks need.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Status values reported per check and for the overall response.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
)

// Response is the detailed health payload.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints.
type Handler struct {
	db      DBPinger
	redis   *redis.Client
	timeout time.Duration
}

// NewHandler constructs a health handler. Both dependencies may be nil.
func NewHandler(db DBPinger, redisClient *redis.Client) *Handler {
	return &Handler{db: db, redis: redisClient, timeout: 2 * time.Second}
}

// MountRoutes attaches the health routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.Basic)
	r.Get("/detailed", h.Detailed)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
}

// Basic reports a static healthy response.
func (h *Handler) Basic(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Response{Status: StatusHealthy})
}

// Detailed probes each dependency. A failing dependency degrades the overall
// status but still returns 200; callers inspect the body.
func (h *Handler) Detailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := Response{
		Status: StatusHealthy,
		Checks: map[string]string{
			"api":      StatusHealthy,
			"database": StatusUnknown,
			"redis":    StatusUnknown,
		},
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			resp.Checks["database"] = StatusUnhealthy
			resp.Status = StatusDegraded
		} else {
			resp.Checks["database"] = StatusHealthy
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			resp.Checks["redis"] = StatusUnhealthy
			resp.Status = StatusDegraded
		} else {
			resp.Checks["redis"] = StatusHealthy
		}
	}

	httpx.JSON(w, http.StatusOK, resp)
}

// Ready returns 503 until the database answers, for readiness probes.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, Response{Status: StatusUnhealthy})
			return
		}
	}
	httpx.JSON(w, http.StatusOK, Response{Status: StatusHealthy})
}

// Live always succeeds while the process can serve requests.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Response{Status: StatusHealthy})
}
