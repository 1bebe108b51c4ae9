package query

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/artstore/artstore/internal/telemetry"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/query/store"
	"github.com/artstore/artstore/pkg/registry"
)

const (
	defaultSearchPageSize = 100
	maxSearchPageSize     = 1000
)

// Index is the store surface the handlers read from.
type Index interface {
	Search(ctx context.Context, q store.SearchQuery) ([]store.FileRecord, int64, error)
	GetFile(ctx context.Context, fileID string) (*store.FileRecord, error)
}

// Handler serves search and download-redirect requests from the index and
// the live topology.
type Handler struct {
	index    Index
	topology *registry.Subscriber
}

// NewHandler creates the query endpoints. topology may be nil, in which case
// download redirects answer 503.
func NewHandler(index Index, topology *registry.Subscriber) *Handler {
	return &Handler{index: index, topology: topology}
}

// Search handles GET /api/v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := store.SearchQuery{
		Text:             strings.TrimSpace(q.Get("q")),
		UploadedBy:       q.Get("uploaded_by"),
		ContentType:      q.Get("content_type"),
		StorageElementID: q.Get("storage_element_id"),
		Tag:              q.Get("tag"),
		IncludeDeleted:   q.Get("include_deleted") == "true",
		Limit:            defaultSearchPageSize,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxSearchPageSize {
			api.BadRequest(w, "limit must be between 1 and 1000")
			return
		}
		query.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			api.BadRequest(w, "offset must be non-negative")
			return
		}
		query.Offset = offset
	}

	ctx, span := telemetry.StartSearchSpan(r.Context(), "files",
		telemetry.SearchQuery(query.Text))
	defer span.End()

	files, total, err := h.index.Search(ctx, query)
	if err != nil {
		telemetry.RecordError(ctx, err)
		api.InternalServerError(w, "Search failed")
		return
	}
	telemetry.SetAttributes(ctx, telemetry.SearchResults(total))
	api.WriteJSONOK(w, map[string]any{
		"files":  files,
		"count":  len(files),
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// Get handles GET /api/v1/files/{id}. Soft-deleted files are served with
// their deleted_at stamp so callers can tell tombstones apart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.index.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			api.NotFound(w, "File not found")
			return
		}
		api.InternalServerError(w, "Failed to load file")
		return
	}
	api.WriteJSONOK(w, rec)
}

// Download handles GET /api/v1/files/{id}/download with a 307 to the owning
// storage element, which serves the bytes with range support. The client's
// method, body, and headers survive the redirect.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	rec, err := h.index.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			api.NotFound(w, "File not found")
			return
		}
		api.InternalServerError(w, "Failed to load file")
		return
	}
	if rec.DeletedAt != nil {
		api.NotFound(w, "File has been deleted")
		return
	}
	if rec.StorageElementID == "" {
		api.ServiceUnavailable(w, "File has no storage element on record")
		return
	}

	var info registry.ElementInfo
	ok := false
	if h.topology != nil {
		info, ok = h.topology.Element(rec.StorageElementID)
	}
	if !ok || info.APIURL == "" {
		api.ServiceUnavailable(w, "Owning storage element is not in the current topology")
		return
	}

	target := strings.TrimRight(info.APIURL, "/") +
		"/api/v1/files/" + url.PathEscape(rec.FileID) + "/download"
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}
