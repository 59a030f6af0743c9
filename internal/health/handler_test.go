package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func newHealthRouter(t *testing.T, db DBPinger, withRedis bool) http.Handler {
	t.Helper()
	var client *redis.Client
	if withRedis {
		mr := miniredis.RunT(t)
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
	}
	r := chi.NewRouter()
	r.Route("/health", NewHandler(db, client).MountRoutes)
	return r
}

func get(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, resp
}

func TestBasic(t *testing.T) {
	router := newHealthRouter(t, stubPinger{}, true)
	rec, resp := get(t, router, "/health")
	if rec.Code != http.StatusOK || resp.Status != StatusHealthy {
		t.Fatalf("got %d %q", rec.Code, resp.Status)
	}
}

func TestDetailedAllHealthy(t *testing.T) {
	router := newHealthRouter(t, stubPinger{}, true)
	rec, resp := get(t, router, "/health/detailed")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Status != StatusHealthy {
		t.Fatalf("overall = %q", resp.Status)
	}
	for _, check := range []string{"api", "database", "redis"} {
		if resp.Checks[check] != StatusHealthy {
			t.Fatalf("check %s = %q", check, resp.Checks[check])
		}
	}
}

func TestDetailedDegradedStaysHTTP200(t *testing.T) {
	router := newHealthRouter(t, stubPinger{err: errors.New("db down")}, true)
	rec, resp := get(t, router, "/health/detailed")
	if rec.Code != http.StatusOK {
		t.Fatalf("degraded check must not 5xx, got %d", rec.Code)
	}
	if resp.Status != StatusDegraded {
		t.Fatalf("overall = %q, want degraded", resp.Status)
	}
	if resp.Checks["database"] != StatusUnhealthy {
		t.Fatalf("database = %q", resp.Checks["database"])
	}
}

func TestDetailedMissingDependenciesStayUnknown(t *testing.T) {
	router := newHealthRouter(t, nil, false)
	_, resp := get(t, router, "/health/detailed")
	if resp.Checks["database"] != StatusUnknown || resp.Checks["redis"] != StatusUnknown {
		t.Fatalf("checks = %v", resp.Checks)
	}
}

func TestReady(t *testing.T) {
	router := newHealthRouter(t, stubPinger{}, true)
	rec, _ := get(t, router, "/health/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	router = newHealthRouter(t, stubPinger{err: errors.New("not yet")}, true)
	rec, resp := get(t, router, "/health/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp.Status != StatusUnhealthy {
		t.Fatalf("status = %q", resp.Status)
	}
}

func TestLive(t *testing.T) {
	router := newHealthRouter(t, stubPinger{err: errors.New("db down")}, false)
	rec, resp := get(t, router, "/health/live")
	if rec.Code != http.StatusOK || resp.Status != StatusHealthy {
		t.Fatalf("liveness must not depend on backends, got %d %q", rec.Code, resp.Status)
	}
}
