package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/admin"
	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/events"
)

const (
	defaultFilePageSize = 100
	maxFilePageSize     = 1000
)

// FileHandler serves the cluster-wide file registry. Elements publish their
// own lifecycle events at local commit; the registry emits only for the
// mutations that happen here (finalize, soft-delete).
type FileHandler struct {
	store    *store.Store
	producer *events.Producer
	audit    auditor
	now      func() time.Time
}

// NewFileHandler creates the file registry endpoints. producer may be nil
// when the event plane is disabled.
func NewFileHandler(st *store.Store, producer *events.Producer, audit *admin.AuditWriter) *FileHandler {
	return &FileHandler{
		store:    st,
		producer: producer,
		audit:    auditor{writer: audit},
		now:      time.Now,
	}
}

// RegisterFileRequest is the body for POST /api/v1/files. The ingester calls
// this after the element accepted the upload, so file_id already exists.
type RegisterFileRequest struct {
	FileID           string         `json:"file_id"`
	OriginalFilename string         `json:"original_filename"`
	StorageFilename  string         `json:"storage_filename"`
	FileSize         int64          `json:"file_size"`
	ChecksumSHA256   string         `json:"checksum_sha256"`
	ContentType      string         `json:"content_type,omitempty"`
	Description      string         `json:"description,omitempty"`
	RetentionPolicy  string         `json:"retention_policy,omitempty"`
	TTLDays          int            `json:"ttl_days,omitempty"`
	StorageElementID string         `json:"storage_element_id"`
	StoragePath      string         `json:"storage_path,omitempty"`
	Compressed       bool           `json:"compressed,omitempty"`
	CompressionAlgo  string         `json:"compression_algorithm,omitempty"`
	OriginalSize     int64          `json:"original_size,omitempty"`
	UploadedBy       string         `json:"uploaded_by,omitempty"`
	UploadSourceIP   string         `json:"upload_source_ip,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// SoftDeleteFileRequest is the optional body for DELETE /api/v1/files/{id}.
type SoftDeleteFileRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Register handles POST /api/v1/files.
func (h *FileHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterFileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.FileID == "" || req.StorageElementID == "" {
		api.BadRequest(w, "file_id and storage_element_id are required")
		return
	}
	if req.OriginalFilename == "" || req.StorageFilename == "" {
		api.BadRequest(w, "original_filename and storage_filename are required")
		return
	}

	policy := models.RetentionTemporary
	if req.RetentionPolicy != "" {
		policy = models.RetentionPolicy(strings.ToUpper(req.RetentionPolicy))
	}

	file := &models.File{
		FileID:               req.FileID,
		OriginalFilename:     req.OriginalFilename,
		StorageFilename:      req.StorageFilename,
		FileSize:             req.FileSize,
		ChecksumSHA256:       req.ChecksumSHA256,
		ContentType:          req.ContentType,
		Description:          req.Description,
		RetentionPolicy:      policy,
		TTLDays:              req.TTLDays,
		StorageElementID:     req.StorageElementID,
		StoragePath:          req.StoragePath,
		Compressed:           req.Compressed,
		CompressionAlgorithm: req.CompressionAlgo,
		OriginalSize:         req.OriginalSize,
		UploadedBy:           req.UploadedBy,
		UploadSourceIP:       req.UploadSourceIP,
	}
	if policy == models.RetentionTemporary && req.TTLDays > 0 {
		expires := h.now().Add(time.Duration(req.TTLDays) * 24 * time.Hour)
		file.TTLExpiresAt = &expires
	}
	if err := file.SetUserMetadata(req.UserMetadata); err != nil {
		api.BadRequest(w, "user_metadata is not a valid JSON object")
		return
	}

	if err := h.store.CreateFile(r.Context(), file); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidFile):
			api.BadRequest(w, err.Error())
		case errors.Is(err, models.ErrDuplicateFile):
			api.Conflict(w, "File is already registered")
		default:
			api.InternalServerError(w, "Failed to register file")
		}
		return
	}

	h.audit.record(r, "file.register", file.FileID, file.StorageElementID)
	api.WriteJSONCreated(w, file)
}

// List handles GET /api/v1/files.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.FileFilter{
		StorageElementID: q.Get("storage_element_id"),
		UploadedBy:       q.Get("uploaded_by"),
		IncludeDeleted:   q.Get("include_deleted") == "true",
		Limit:            defaultFilePageSize,
	}
	if raw := q.Get("retention_policy"); raw != "" {
		policy := models.RetentionPolicy(strings.ToUpper(raw))
		if !policy.IsValid() {
			api.BadRequest(w, "retention_policy must be TEMPORARY or PERMANENT")
			return
		}
		filter.RetentionPolicy = policy
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxFilePageSize {
			api.BadRequest(w, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			api.BadRequest(w, "offset must be non-negative")
			return
		}
		filter.Offset = offset
	}

	files, total, err := h.store.ListFiles(r.Context(), filter)
	if err != nil {
		api.InternalServerError(w, "Failed to list files")
		return
	}
	api.WriteJSONOK(w, map[string]any{
		"files":  files,
		"count":  len(files),
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// Get handles GET /api/v1/files/{id}.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	file, err := h.store.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			api.NotFound(w, "File not found")
			return
		}
		api.InternalServerError(w, "Failed to load file")
		return
	}
	api.WriteJSONOK(w, file)
}

// Finalize handles POST /api/v1/files/{id}/finalize. TEMPORARY flips to
// PERMANENT and the TTL clears; finalizing twice is a no-op.
func (h *FileHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	file, err := h.store.FinalizeFile(r.Context(), id, h.now())
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			api.NotFound(w, "File not found")
			return
		}
		api.InternalServerError(w, "Failed to finalize file")
		return
	}

	h.publish(r, events.FileEvent{
		Type:             events.EventFileFinalized,
		Timestamp:        h.now().UTC(),
		FileID:           file.FileID,
		StorageElementID: file.StorageElementID,
		Metadata:         fileMetadata(file),
	})
	h.audit.record(r, "file.finalize", file.FileID, "")
	api.WriteJSONOK(w, file)
}

// Delete handles DELETE /api/v1/files/{id}. The record survives with a
// deleted_at stamp; reclaiming bytes is the garbage collector's job.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req SoftDeleteFileRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}
	if req.Reason == "" {
		req.Reason = r.URL.Query().Get("reason")
	}

	id := chi.URLParam(r, "id")
	now := h.now()
	file, err := h.store.SoftDeleteFile(r.Context(), id, req.Reason, now)
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			api.NotFound(w, "File not found")
			return
		}
		api.InternalServerError(w, "Failed to delete file")
		return
	}

	h.publish(r, events.FileEvent{
		Type:             events.EventFileDeleted,
		Timestamp:        now.UTC(),
		FileID:           file.FileID,
		StorageElementID: file.StorageElementID,
		DeletedAt:        derefTime(file.DeletedAt, now),
	})
	h.audit.record(r, "file.delete", file.FileID, req.Reason)
	api.WriteJSONOK(w, file)
}

// publish appends a registry event. Failures are logged and swallowed; the
// mutation already committed.
func (h *FileHandler) publish(r *http.Request, event events.FileEvent) {
	if h.producer == nil {
		return
	}
	if _, err := h.producer.Publish(r.Context(), event); err != nil {
		logger.WarnCtx(r.Context(), "failed to publish file event",
			logger.EventType(string(event.Type)),
			logger.FileID(event.FileID),
			logger.Err(err))
	}
}

// fileMetadata renders the registry record for the event's metadata field.
func fileMetadata(file *models.File) json.RawMessage {
	raw, err := json.Marshal(file)
	if err != nil {
		return nil
	}
	return raw
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}
