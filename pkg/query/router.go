package query

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/api/middleware"
	"github.com/artstore/artstore/pkg/auth"
	"github.com/artstore/artstore/pkg/metrics"
	"github.com/artstore/artstore/pkg/ratelimit"
)

// RouterOptions carries everything the query router serves.
type RouterOptions struct {
	Handler *Handler

	// Verifier validates bearer tokens. Nil leaves every route open,
	// which only test setups use.
	Verifier *auth.Verifier

	// Limiter throttles service accounts by their rate_limit claim. Nil
	// disables limiting.
	Limiter          *ratelimit.Limiter
	RateLimitMetrics *metrics.RateLimitMetrics

	// ReadinessChecks plug Postgres and Redis into /health/ready.
	ReadinessChecks []api.ReadinessCheck

	// RequestTimeout bounds a single request. Queries are index lookups;
	// nothing streams through this process.
	RequestTimeout time.Duration
}

// NewRouter builds the query service's HTTP surface.
//
// Routes:
//   - GET /api/v1/search - full-text search over the index
//   - GET /api/v1/files/{id} - indexed metadata for one file
//   - GET /api/v1/files/{id}/download - 307 to the owning storage element
//   - GET /health/live, /health/ready - probes, unauthenticated
func NewRouter(opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = time.Minute
	}
	r := api.NewRouter(opts.RequestTimeout)

	api.NewHealthHandler("query", opts.ReadinessChecks...).Mount(r)

	r.Route("/api/v1", func(r chi.Router) {
		g := chi.Router(r)
		if opts.Verifier != nil {
			g = g.With(middleware.JWTAuth(opts.Verifier))
		}
		if opts.Limiter != nil {
			g = g.With(ratelimit.Middleware(opts.Limiter, opts.RateLimitMetrics))
		}
		g.Get("/search", opts.Handler.Search)
		g.Get("/files/{id}", opts.Handler.Get)
		g.Get("/files/{id}/download", opts.Handler.Download)
	})

	return r
}
