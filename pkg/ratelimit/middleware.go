package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/api"
	apimiddleware "github.com/artstore/artstore/pkg/api/middleware"
	"github.com/artstore/artstore/pkg/metrics"
)

// Middleware enforces the rate_limit claim for service-account requests.
// Requests without a service-account token pass untouched; admin users are
// never limited. Place it after JWTAuth so claims are in the context.
func Middleware(limiter *Limiter, m *metrics.RateLimitMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := apimiddleware.GetClaimsFromContext(r.Context())
			if claims == nil || !claims.IsServiceAccount() || claims.ClientID == "" || claims.RateLimit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := limiter.Allow(r.Context(), claims.ClientID, claims.RateLimit)
			if err != nil {
				m.Observe(metrics.RateLimitFailOpen)
				logger.Warn("rate limiter unavailable, failing open",
					logger.ClientID(claims.ClientID),
					logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

			if !decision.Allowed {
				m.Observe(metrics.RateLimitLimited)
				api.TooManyRequests(w, decision.RetryAfter,
					fmt.Sprintf("client %s exceeded %d requests per window", claims.ClientID, decision.Limit))
				return
			}

			m.Observe(metrics.RateLimitAllowed)
			next.ServeHTTP(w, r)
		})
	}
}
