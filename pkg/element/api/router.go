// Package api exposes the storage element over HTTP: the upload and
// download endpoints, metadata CRUD, the mode state machine, and cache
// maintenance.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/api/middleware"
	"github.com/artstore/artstore/pkg/auth"
	"github.com/artstore/artstore/pkg/element"
	"github.com/artstore/artstore/pkg/element/cache"
)

// RouterOptions carries everything the element router serves.
type RouterOptions struct {
	Service    *element.Service
	Reconciler *cache.Reconciler

	// Verifier validates bearer tokens. Nil leaves every route open,
	// which only test setups use.
	Verifier *auth.Verifier

	// ReadinessChecks plug service dependencies into /health/ready.
	ReadinessChecks []api.ReadinessCheck

	// RequestTimeout bounds a single request. Uploads and downloads of
	// large files need generous values.
	RequestTimeout time.Duration
}

// NewRouter builds the element's HTTP surface.
//
// Routes:
//   - POST /api/v1/files/upload - multipart upload
//   - GET  /api/v1/files - list by filter
//   - GET  /api/v1/files/{fileID} - metadata
//   - GET  /api/v1/files/{fileID}/download - 200/206/304/416 download
//   - PATCH /api/v1/files/{fileID} - metadata update
//   - DELETE /api/v1/files/{fileID} - delete (EDIT mode, operator role)
//   - GET  /api/v1/mode, /matrix, /history - mode inspection
//   - POST /api/v1/mode/validate, /change - transition checks and changes
//   - POST /api/v1/cache/rebuild, /rebuild/incremental, /cleanup-expired
//   - GET  /api/v1/cache/consistency
//   - GET  /health/live, /health/ready - probes, unauthenticated
func NewRouter(opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Minute
	}
	r := api.NewRouter(opts.RequestTimeout)

	api.NewHealthHandler("storage-element", opts.ReadinessChecks...).Mount(r)

	files := NewFileHandler(opts.Service)
	modes := NewModeHandler(opts.Service.Mode())
	caches := NewCacheHandler(opts.Reconciler)

	authenticated := func(r chi.Router) chi.Router {
		if opts.Verifier != nil {
			return r.With(middleware.JWTAuth(opts.Verifier))
		}
		return r
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/files", func(r chi.Router) {
			g := authenticated(r)
			g.Post("/upload", files.Upload)
			g.Get("/", files.List)
			g.Get("/{fileID}", files.Get)
			g.Get("/{fileID}/download", files.Download)
			g.Patch("/{fileID}", files.Update)

			del := g
			if opts.Verifier != nil {
				del = g.With(middleware.RequireRole(auth.RoleOperator))
			}
			del.Delete("/{fileID}", files.Delete)
		})

		r.Route("/mode", func(r chi.Router) {
			g := authenticated(r)
			g.Get("/", modes.Current)
			g.Get("/matrix", modes.Matrix)
			g.Get("/history", modes.History)
			g.Post("/validate", modes.Validate)

			change := g
			if opts.Verifier != nil {
				change = g.With(middleware.RequireRole(auth.RoleOperator))
			}
			change.Post("/change", modes.Change)
		})

		r.Route("/cache", func(r chi.Router) {
			g := authenticated(r)
			if opts.Verifier != nil {
				g = g.With(middleware.RequireRole(auth.RoleOperator))
			}
			g.Get("/consistency", caches.Consistency)
			g.Post("/rebuild", caches.Rebuild)
			g.Post("/rebuild/incremental", caches.RebuildIncremental)
			g.Post("/cleanup-expired", caches.CleanupExpired)
		})
	})

	return r
}
