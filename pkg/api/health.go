package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthCheckTimeout is the maximum time allowed for readiness check
// operations, so a slow dependency cannot block probes indefinitely.
const HealthCheckTimeout = 5 * time.Second

// ReadinessCheck probes a single dependency (Redis, database, base path).
type ReadinessCheck struct {
	// Name identifies the dependency in the readiness payload.
	Name string

	// Check returns nil when the dependency is usable.
	Check func(ctx context.Context) error
}

// DependencyHealth reports one dependency in the readiness payload.
type DependencyHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthHandler serves the liveness and readiness probes every ArtStore
// service exposes.
//
// Liveness succeeds while the process serves HTTP. Readiness runs the
// registered dependency checks and fails with 503 when any dependency is
// down.
type HealthHandler struct {
	service   string
	startTime time.Time
	checks    []ReadinessCheck
}

// NewHealthHandler creates a health handler for the named service.
func NewHealthHandler(service string, checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		service:   service,
		startTime: time.Now(),
		checks:    checks,
	}
}

// Mount registers the health routes on the router. The probes are
// unauthenticated.
func (h *HealthHandler) Mount(r chi.Router) {
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.Liveness)
		r.Get("/live", h.Liveness)
		r.Get("/ready", h.Readiness)
	})
}

// Liveness handles GET /health/live - simple liveness probe.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSONOK(w, map[string]any{
		"status":     "healthy",
		"service":    h.service,
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	})
}

// Readiness handles GET /health/ready - readiness probe.
//
// Each registered dependency is checked under HealthCheckTimeout. 200 when
// all pass, 503 with per-dependency detail otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	deps := make([]DependencyHealth, 0, len(h.checks))
	healthy := true
	for _, check := range h.checks {
		dep := DependencyHealth{Name: check.Name, Status: "healthy"}
		if err := check.Check(ctx); err != nil {
			dep.Status = "unhealthy"
			dep.Error = err.Error()
			healthy = false
		}
		deps = append(deps, dep)
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	WriteJSON(w, status, map[string]any{
		"status":       overall,
		"service":      h.service,
		"dependencies": deps,
	})
}
