package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/element"
	"github.com/artstore/artstore/pkg/element/attr"
	"github.com/artstore/artstore/pkg/element/cache"
)

// uploaderPattern is the accepted shape of the uploaded_by field.
var uploaderPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const (
	// maxFieldBytes caps each non-file multipart field.
	maxFieldBytes = 64 << 10

	defaultRetentionDays = 365
	maxRetentionDays     = 3650
)

// FileHandler serves the element's file endpoints.
type FileHandler struct {
	service *element.Service
}

// NewFileHandler creates a FileHandler backed by the given service.
func NewFileHandler(service *element.Service) *FileHandler {
	return &FileHandler{service: service}
}

// FileResponse is the wire shape of one stored file.
type FileResponse struct {
	FileID           string            `json:"file_id"`
	OriginalFilename string            `json:"original_filename"`
	StorageFilename  string            `json:"storage_filename"`
	StoragePath      string            `json:"storage_path"`
	FileSize         int64             `json:"file_size"`
	ContentType      string            `json:"content_type"`
	Checksum         string            `json:"checksum"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	CreatedBy        string            `json:"created_by"`
	Description      string            `json:"description,omitempty"`
	Version          int               `json:"version,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
}

func fileResponse(a *attr.Attributes) FileResponse {
	return FileResponse{
		FileID:           a.FileID,
		OriginalFilename: a.OriginalFilename,
		StorageFilename:  a.StorageFilename,
		StoragePath:      a.StoragePath,
		FileSize:         a.FileSize,
		ContentType:      a.ContentType,
		Checksum:         a.Checksum,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
		CreatedBy:        a.CreatedByUsername,
		Description:      a.Description,
		Version:          a.Version,
		Tags:             a.Tags,
		Metadata:         a.Metadata,
		ExpiresAt:        a.ExpiresAt,
	}
}

// writeServiceError maps service sentinels onto problem responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, element.ErrFileNotFound):
		api.NotFound(w, "File not found")
	case errors.Is(err, element.ErrModeForbidden):
		api.Forbidden(w, err.Error())
	case errors.Is(err, element.ErrInsufficientStorage):
		api.InsufficientStorage(w, err.Error())
	case errors.Is(err, element.ErrSizeMismatch),
		errors.Is(err, element.ErrChecksumMismatch),
		errors.Is(err, attr.ErrTooLarge),
		errors.Is(err, attr.ErrInvalid):
		api.BadRequest(w, err.Error())
	case errors.Is(err, cache.ErrReconcileBusy):
		api.Conflict(w, "A cache maintenance operation is already running")
	default:
		api.InternalServerError(w, "Operation failed")
	}
}

// Upload handles POST /api/v1/files/upload. The request is multipart;
// metadata fields must precede the file part because the body is streamed
// straight into storage.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		api.BadRequest(w, "Request must be multipart/form-data")
		return
	}

	req := element.UploadRequest{RetentionDays: defaultRetentionDays}
	var uploaded *attr.Attributes

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			api.BadRequest(w, "Malformed multipart body")
			return
		}

		if part.FormName() != "file" {
			if !h.readField(w, part, &req) {
				return
			}
			continue
		}

		if !h.validateUpload(w, &req) {
			return
		}
		req.OriginalFilename = part.FileName()
		req.ContentType = part.Header.Get("Content-Type")

		uploaded, err = h.service.Upload(r.Context(), part, req)
		part.Close()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		break
	}

	if uploaded == nil {
		api.BadRequest(w, "Multipart body must include a 'file' part")
		return
	}
	api.WriteJSONCreated(w, fileResponse(uploaded))
}

// readField consumes one metadata part. Returns false after writing an
// error response.
func (h *FileHandler) readField(w http.ResponseWriter, part *multipart.Part, req *element.UploadRequest) bool {
	defer part.Close()

	raw, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		api.BadRequest(w, "Malformed multipart body")
		return false
	}
	if len(raw) > maxFieldBytes {
		api.BadRequest(w, fmt.Sprintf("Field %q exceeds %d bytes", part.FormName(), maxFieldBytes))
		return false
	}
	value := string(raw)

	switch part.FormName() {
	case "uploaded_by":
		req.UploadedBy = value
	case "description":
		req.Description = value
	case "retention_days":
		days, err := strconv.Atoi(value)
		if err != nil || days < 1 || days > maxRetentionDays {
			api.BadRequest(w, fmt.Sprintf("retention_days must be between 1 and %d", maxRetentionDays))
			return false
		}
		req.RetentionDays = days
	case "tags":
		for _, tag := range strings.Split(value, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				req.Tags = append(req.Tags, tag)
			}
		}
	case "file_size":
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil || size <= 0 {
			api.BadRequest(w, "file_size must be a positive integer")
			return false
		}
		req.DeclaredSize = size
	case "checksum":
		req.DeclaredChecksum = strings.ToLower(value)
	default:
		// Unknown fields are ignored so clients can evolve ahead of the
		// server.
	}
	return true
}

func (h *FileHandler) validateUpload(w http.ResponseWriter, req *element.UploadRequest) bool {
	if req.UploadedBy == "" {
		api.BadRequest(w, "uploaded_by is required and must precede the file part")
		return false
	}
	if !uploaderPattern.MatchString(req.UploadedBy) {
		api.BadRequest(w, "uploaded_by may contain only letters, digits, underscore and hyphen")
		return false
	}
	if req.DeclaredChecksum != "" && !checksumPattern.MatchString(req.DeclaredChecksum) {
		api.BadRequest(w, "checksum must be 64 hexadecimal characters")
		return false
	}
	return true
}

var checksumPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Get handles GET /api/v1/files/{file_id}.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Lookup(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.WriteJSONOK(w, fileResponse(st.Attributes))
}

// List handles GET /api/v1/files with filter query parameters.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := cache.Filter{Limit: 100}
	q := r.URL.Query()
	if v := q.Get("created_by"); v != "" {
		filter.CreatedBy = v
	}
	if v := q.Get("content_type"); v != "" {
		filter.ContentType = v
	}
	if v := q.Get("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			api.BadRequest(w, "created_after must be RFC 3339")
			return
		}
		filter.CreatedAfter = t
	}
	if v := q.Get("created_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			api.BadRequest(w, "created_before must be RFC 3339")
			return
		}
		filter.CreatedBefore = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			api.BadRequest(w, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			api.BadRequest(w, "offset must be non-negative")
			return
		}
		filter.Offset = n
	}

	entries, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	files := make([]FileResponse, 0, len(entries))
	for i := range entries {
		files = append(files, fileResponse(entries[i].Attributes()))
	}
	api.WriteJSONOK(w, map[string]any{
		"files":  files,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// UpdateMetadataRequest is the PATCH body. Absent fields stay unchanged.
type UpdateMetadataRequest struct {
	Description      *string           `json:"description,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CustomAttributes map[string]any    `json:"custom_attributes,omitempty"`
	RetentionDays    *int              `json:"retention_days,omitempty"`
}

// Update handles PATCH /api/v1/files/{file_id}.
func (h *FileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body UpdateMetadataRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}
	if body.RetentionDays != nil && (*body.RetentionDays < 0 || *body.RetentionDays > maxRetentionDays) {
		api.BadRequest(w, fmt.Sprintf("retention_days must be between 0 and %d", maxRetentionDays))
		return
	}

	attrs, err := h.service.UpdateMetadata(r.Context(), chi.URLParam(r, "fileID"), element.UpdateRequest{
		Description:      body.Description,
		Tags:             body.Tags,
		Metadata:         body.Metadata,
		CustomAttributes: body.CustomAttributes,
		RetentionDays:    body.RetentionDays,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	api.WriteJSONOK(w, fileResponse(attrs))
}

// Delete handles DELETE /api/v1/files/{file_id}.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "fileID")); err != nil {
		writeServiceError(w, err)
		return
	}
	api.WriteNoContent(w)
}

// Download handles GET /api/v1/files/{file_id}/download with RFC 7233
// ranges and conditional requests.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.service.Lookup(ctx, chi.URLParam(r, "fileID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	etag := strongETag(st)
	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", st.ModTime.UTC().Format(http.TimeFormat))
	w.Header().Set("Accept-Ranges", "bytes")

	if notModified(r, etag, st.ModTime) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	contentType := st.Attributes.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := fmt.Sprintf("attachment; filename=%q", st.Attributes.OriginalFilename)

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		h.serveFull(ctx, w, st, contentType, disposition)
		return
	}

	ranges, err := parseRange(rangeHeader, st.Size)
	switch {
	case errors.Is(err, errUnsatisfiableRange):
		api.RangeNotSatisfiable(w, st.Size)
		return
	case errors.Is(err, errMalformedRange):
		// RFC 7233 says to ignore a Range header we cannot parse.
		h.serveFull(ctx, w, st, contentType, disposition)
		return
	}

	if len(ranges) == 1 {
		h.serveSingleRange(ctx, w, st, ranges[0], contentType, disposition)
		return
	}
	h.serveMultipart(ctx, w, st, ranges, contentType)
}

func (h *FileHandler) serveFull(ctx context.Context, w http.ResponseWriter, st *element.Stat, contentType, disposition string) {
	rc, err := h.service.Open(ctx, st, 0, -1)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.FormatInt(st.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.WarnCtx(ctx, "Download stream interrupted",
			logger.FileID(st.Attributes.FileID), logger.Err(err))
	}
}

func (h *FileHandler) serveSingleRange(ctx context.Context, w http.ResponseWriter, st *element.Stat, br byteRange, contentType, disposition string) {
	rc, err := h.service.Open(ctx, st, br.start, br.length)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Range", br.contentRange(st.Size))
	w.Header().Set("Content-Length", strconv.FormatInt(br.length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if _, err := io.Copy(w, rc); err != nil {
		logger.WarnCtx(ctx, "Ranged download interrupted",
			logger.FileID(st.Attributes.FileID), logger.Err(err))
	}
}

func (h *FileHandler) serveMultipart(ctx context.Context, w http.ResponseWriter, st *element.Stat, ranges []byteRange, contentType string) {
	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/byteranges; boundary="+mw.Boundary())
	w.WriteHeader(http.StatusPartialContent)

	for _, br := range ranges {
		partHeader := textproto.MIMEHeader{}
		partHeader.Set("Content-Type", contentType)
		partHeader.Set("Content-Range", br.contentRange(st.Size))
		pw, err := mw.CreatePart(partHeader)
		if err != nil {
			logger.WarnCtx(ctx, "Multipart range response aborted", logger.Err(err))
			return
		}
		rc, err := h.service.Open(ctx, st, br.start, br.length)
		if err != nil {
			logger.WarnCtx(ctx, "Multipart range open failed", logger.Err(err))
			return
		}
		if _, err := io.Copy(pw, rc); err != nil {
			rc.Close()
			logger.WarnCtx(ctx, "Multipart range stream interrupted", logger.Err(err))
			return
		}
		rc.Close()
	}
	if err := mw.Close(); err != nil {
		logger.WarnCtx(ctx, "Multipart range close failed", logger.Err(err))
	}
}

// strongETag derives a strong validator from the object's identity on disk.
func strongETag(st *element.Stat) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", st.DataPath, st.Size, st.ModTime.UnixNano())))
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// notModified evaluates If-None-Match and If-Modified-Since. A malformed
// HTTP date is ignored per RFC 7232.
func notModified(r *http.Request, etag string, modTime time.Time) bool {
	if match := r.Header.Get("If-None-Match"); match != "" {
		for _, candidate := range strings.Split(match, ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == etag || candidate == "*" {
				return true
			}
		}
		return false
	}
	if since := r.Header.Get("If-Modified-Since"); since != "" {
		t, err := http.ParseTime(since)
		if err == nil && !modTime.Truncate(time.Second).After(t) {
			return true
		}
	}
	return false
}
