package api

import (
	"net/http"

	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/element/cache"
)

// CacheHandler serves the cache maintenance endpoints. Operations run
// synchronously; a second request while one is running gets 409.
type CacheHandler struct {
	reconciler *cache.Reconciler
}

// NewCacheHandler creates a CacheHandler over the element's reconciler.
func NewCacheHandler(reconciler *cache.Reconciler) *CacheHandler {
	return &CacheHandler{reconciler: reconciler}
}

// Consistency handles GET /api/v1/cache/consistency.
func (h *CacheHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.ConsistencyCheck(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.WriteJSONOK(w, report)
}

// Rebuild handles POST /api/v1/cache/rebuild (full rebuild).
func (h *CacheHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.FullRebuild(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.WriteJSONOK(w, result)
}

// RebuildIncremental handles POST /api/v1/cache/rebuild/incremental.
func (h *CacheHandler) RebuildIncremental(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.IncrementalRebuild(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.WriteJSONOK(w, result)
}

// CleanupExpired handles POST /api/v1/cache/cleanup-expired.
func (h *CacheHandler) CleanupExpired(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.CleanupExpired(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.WriteJSONOK(w, result)
}
