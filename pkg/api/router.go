package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artstore/artstore/internal/logger"
)

// NewRouter creates a chi router with the middleware stack shared by every
// ArtStore service.
//
// The stack, in order:
//   - Request ID for request tracking
//   - Real IP extraction for proper client identification
//   - Request logging through the internal logger (with LogContext injection)
//   - Panic recovery
//   - Request timeout
//
// Service-specific routes and auth middleware are mounted by the caller.
func NewRouter(requestTimeout time.Duration) chi.Router {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	return r
}

// requestLogger logs requests through the internal logger and seeds the
// request context with a LogContext so downstream log lines carry the
// request id and client IP.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//   - Health probe requests are logged at DEBUG level to reduce noise
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		lc := logger.NewLogContext(r.RemoteAddr)
		lc.RequestID = requestID
		ctx := logger.WithContext(r.Context(), lc)

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", float64(duration.Microseconds()) / 1000.0,
		}

		// Health probes fire every few seconds; keep them out of INFO
		if strings.HasPrefix(r.URL.Path, "/health") {
			logger.Debug("API request completed", logArgs...)
			return
		}
		logger.Info("API request completed", logArgs...)
	})
}
