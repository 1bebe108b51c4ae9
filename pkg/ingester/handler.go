package ingester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/apiclient"
	elementapi "github.com/artstore/artstore/pkg/element/api"
	"github.com/artstore/artstore/pkg/metrics"
)

// Field limits mirror the element's, so a request the ingester accepts is
// never bounced downstream for shape alone.
const (
	maxFieldBytes        = 64 << 10
	defaultRetentionDays = 365
	maxRetentionDays     = 3650

	// registerTimeout bounds the admin registration call that follows a
	// committed upload.
	registerTimeout = 10 * time.Second
)

var (
	uploaderPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	checksumPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// Registrar records committed uploads in the admin file registry.
// *apiclient.Client satisfies it.
type Registrar interface {
	RegisterFile(ctx context.Context, req apiclient.RegisterFileRequest) (*apiclient.File, error)
}

// UploadHandler serves the ingester's single write endpoint. It parses the
// multipart body up to the file part, picks an element, and streams the
// rest straight through. Once streaming starts the element choice is
// final; a mid-stream failure surfaces to the client rather than retrying
// elsewhere with a half-consumed body.
type UploadHandler struct {
	selector  *Selector
	forwarder *Forwarder
	registrar Registrar
	metrics   *metrics.UploadMetrics
	maxSize   int64
}

// NewUploadHandler wires the upload pipeline. registrar may be nil when
// the ingester runs without an admin module.
func NewUploadHandler(selector *Selector, forwarder *Forwarder, registrar Registrar, m *metrics.UploadMetrics) *UploadHandler {
	return &UploadHandler{
		selector:  selector,
		forwarder: forwarder,
		registrar: registrar,
		metrics:   m,
	}
}

// SetMaxUploadSize caps uploads by their declared or transport size before
// any element is contacted. Zero leaves uploads unbounded.
func (h *UploadHandler) SetMaxUploadSize(limit int64) {
	h.maxSize = limit
}

// UploadResponse is the element's file document plus where it landed.
type UploadResponse struct {
	elementapi.FileResponse
	StorageElementID   string `json:"storage_element_id"`
	StorageElementName string `json:"storage_element_name,omitempty"`
}

// uploadMeta captures the metadata fields the ingester itself needs for
// selection and registration. The full field list travels in wire order
// inside pendingUpload.
type uploadMeta struct {
	uploadedBy       string
	declaredSize     int64
	declaredChecksum string
	retentionDays    int
	description      string
}

// Upload handles POST /api/v1/upload. Metadata fields must precede the
// file part; the body is consumed exactly once.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	mr, err := r.MultipartReader()
	if err != nil {
		api.BadRequest(w, "Request must be multipart/form-data")
		return
	}

	up := &pendingUpload{}
	meta := uploadMeta{retentionDays: defaultRetentionDays}

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
			if !h.readField(w, part, up, &meta) {
				return
			}
			continue
		}

		if !h.validateUpload(w, &meta) {
			return
		}
		up.filename = part.FileName()
		up.contentType = part.Header.Get("Content-Type")
		up.body = part

		h.dispatch(w, r, up, &meta, start)
		part.Close()
		return
	}

	api.BadRequest(w, "Multipart body must include a 'file' part")
}

// readField buffers one metadata part and forwards it verbatim. Unknown
// fields still travel downstream so clients can evolve ahead of the
// ingester.
func (h *UploadHandler) readField(w http.ResponseWriter, part *multipart.Part, up *pendingUpload, meta *uploadMeta) bool {
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
		meta.uploadedBy = value
	case "description":
		meta.description = value
	case "retention_days":
		days, err := strconv.Atoi(value)
		if err != nil || days < 1 || days > maxRetentionDays {
			api.BadRequest(w, fmt.Sprintf("retention_days must be between 1 and %d", maxRetentionDays))
			return false
		}
		meta.retentionDays = days
	case "file_size":
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil || size <= 0 {
			api.BadRequest(w, "file_size must be a positive integer")
			return false
		}
		meta.declaredSize = size
	case "checksum":
		meta.declaredChecksum = strings.ToLower(value)
		up.fields = append(up.fields, formField{name: "checksum", value: meta.declaredChecksum})
		return true
	}

	up.fields = append(up.fields, formField{name: part.FormName(), value: value})
	return true
}

// validateUpload runs the checks that would otherwise fail on the element
// after the body is already streaming.
func (h *UploadHandler) validateUpload(w http.ResponseWriter, meta *uploadMeta) bool {
	if meta.uploadedBy == "" {
		api.BadRequest(w, "uploaded_by is required and must precede the file part")
		return false
	}
	if !uploaderPattern.MatchString(meta.uploadedBy) {
		api.BadRequest(w, "uploaded_by may contain only letters, digits, underscore and hyphen")
		return false
	}
	if meta.declaredChecksum != "" && !checksumPattern.MatchString(meta.declaredChecksum) {
		api.BadRequest(w, "checksum must be 64 hexadecimal characters")
		return false
	}
	return true
}

// dispatch picks the element and streams the upload through.
func (h *UploadHandler) dispatch(w http.ResponseWriter, r *http.Request, up *pendingUpload, meta *uploadMeta, start time.Time) {
	ctx := r.Context()

	size := meta.declaredSize
	if size <= 0 {
		// Without a declared size the raw body length is the best estimate.
		// Multipart framing inflates it slightly, which only makes the
		// pre-flight more conservative.
		size = r.ContentLength
	}
	if size < 0 {
		size = 0
	}

	if h.maxSize > 0 && size > h.maxSize {
		h.metrics.Observe(metrics.UploadRejected, 0, 0)
		api.PayloadTooLarge(w, fmt.Sprintf("Upload exceeds the configured limit of %d bytes", h.maxSize))
		return
	}

	info, err := h.selector.Select(ctx, size)
	if errors.Is(err, ErrNoEligibleElement) {
		h.metrics.Observe(metrics.UploadRejected, 0, 0)
		api.InsufficientStorage(w, "No storage element can accept the upload")
		return
	}
	if err != nil {
		h.metrics.Observe(metrics.UploadFailed, 0, 0)
		logger.ErrorCtx(ctx, "element selection failed", logger.Err(err))
		api.ServiceUnavailable(w, "Storage element registry is unavailable")
		return
	}

	logger.InfoCtx(ctx, "routing upload",
		logger.ElementID(info.ElementID),
		logger.Size(size))

	resp, err := h.forwarder.Send(ctx, info.APIURL, r.Header.Get("Authorization"), up)
	if err != nil {
		h.metrics.Observe(metrics.UploadFailed, 0, 0)
		logger.ErrorCtx(ctx, "upload stream to element failed",
			logger.ElementID(info.ElementID),
			logger.Err(err))
		api.WriteProblem(w, http.StatusBadGateway, "Bad Gateway", "Upload to storage element failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		h.relay(w, resp)
		if resp.StatusCode >= 500 {
			h.metrics.Observe(metrics.UploadFailed, 0, 0)
		} else {
			h.metrics.Observe(metrics.UploadRejected, 0, 0)
		}
		return
	}

	var file elementapi.FileResponse
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		h.metrics.Observe(metrics.UploadFailed, 0, 0)
		logger.ErrorCtx(ctx, "element returned unreadable upload response",
			logger.ElementID(info.ElementID),
			logger.Err(err))
		api.WriteProblem(w, http.StatusBadGateway, "Bad Gateway", "Storage element returned an unreadable response")
		return
	}

	h.register(ctx, r, info.ElementID, &file, meta)

	h.metrics.Observe(metrics.UploadCommitted, file.FileSize, time.Since(start))
	api.WriteJSONCreated(w, UploadResponse{
		FileResponse:       file,
		StorageElementID:   info.ElementID,
		StorageElementName: info.Name,
	})
}

// relay copies an element error response through unchanged. The element
// already speaks problem+json; rewrapping would only lose detail.
func (h *UploadHandler) relay(w http.ResponseWriter, resp *http.Response) {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// register records the committed upload in the admin registry. Failure is
// logged, not returned: the element owns the file and has already
// published its lifecycle event, so the upload stays a success.
func (h *UploadHandler) register(ctx context.Context, r *http.Request, elementID string, file *elementapi.FileResponse, meta *uploadMeta) {
	if h.registrar == nil {
		return
	}

	// The client may hang up as soon as it has its 201; registration must
	// not die with the request context.
	regCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), registerTimeout)
	defer cancel()

	req := apiclient.RegisterFileRequest{
		FileID:           file.FileID,
		OriginalFilename: file.OriginalFilename,
		StorageFilename:  file.StorageFilename,
		FileSize:         file.FileSize,
		ChecksumSHA256:   file.Checksum,
		ContentType:      file.ContentType,
		Description:      file.Description,
		RetentionPolicy:  "TEMPORARY",
		TTLDays:          meta.retentionDays,
		StorageElementID: elementID,
		StoragePath:      file.StoragePath,
		UploadedBy:       file.CreatedBy,
		UploadSourceIP:   clientIP(r),
	}
	if _, err := h.registrar.RegisterFile(regCtx, req); err != nil {
		logger.WarnCtx(ctx, "failed to register upload with admin registry",
			logger.FileID(file.FileID),
			logger.ElementID(elementID),
			logger.Err(err))
	}
}

// clientIP strips the port from RemoteAddr. Behind a proxy the RealIP
// middleware has already rewritten it to the originating address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
