package ingester

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

// RouterOptions carries everything the ingester router serves.
type RouterOptions struct {
	Handler *UploadHandler

	// Verifier validates bearer tokens. Nil leaves every route open,
	// which only test setups use.
	Verifier *auth.Verifier

	// Limiter throttles service accounts by their rate_limit claim. Nil
	// disables limiting.
	Limiter          *ratelimit.Limiter
	RateLimitMetrics *metrics.RateLimitMetrics

	// ReadinessChecks plug Redis and downstream elements into /health/ready.
	ReadinessChecks []api.ReadinessCheck

	// RequestTimeout bounds a single request. Uploads stream through this
	// process, so the default is generous.
	RequestTimeout time.Duration
}

// NewRouter builds the ingester's HTTP surface.
//
// Routes:
//   - POST /api/v1/upload - multipart upload, routed to a storage element
//   - GET  /health/live, /health/ready - probes, unauthenticated
func NewRouter(opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Minute
	}
	r := api.NewRouter(opts.RequestTimeout)

	api.NewHealthHandler("ingester", opts.ReadinessChecks...).Mount(r)

	r.Route("/api/v1", func(r chi.Router) {
		g := chi.Router(r)
		if opts.Verifier != nil {
			g = g.With(middleware.JWTAuth(opts.Verifier))
		}
		if opts.Limiter != nil {
			g = g.With(ratelimit.Middleware(opts.Limiter, opts.RateLimitMetrics))
		}
		g.Post("/upload", opts.Handler.Upload)
	})

	return r
}
