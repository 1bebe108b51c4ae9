// Package element implements the storage-element service: the atomic write
// path, local cache and WAL, capacity accounting, mode state machine, and
// the periodic health report.
package element

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/internal/telemetry"
	"github.com/artstore/artstore/pkg/element/attr"
	"github.com/artstore/artstore/pkg/element/cache"
	"github.com/artstore/artstore/pkg/element/capacity"
	"github.com/artstore/artstore/pkg/element/mode"
	"github.com/artstore/artstore/pkg/element/store"
	"github.com/artstore/artstore/pkg/element/wal"
	"github.com/artstore/artstore/pkg/events"
	"github.com/artstore/artstore/pkg/metrics"
	"github.com/artstore/artstore/pkg/registry"
)

// Sentinel errors returned by the service. Handlers map these to HTTP
// statuses.
var (
	// ErrModeForbidden means the current mode does not allow the operation.
	ErrModeForbidden = errors.New("operation not allowed in current mode")

	// ErrInsufficientStorage means the element cannot accept the upload
	// without crossing its FULL floor.
	ErrInsufficientStorage = errors.New("insufficient storage")

	// ErrSizeMismatch means the stream did not match the declared size.
	ErrSizeMismatch = errors.New("stream size does not match declared size")

	// ErrChecksumMismatch means the stored bytes did not hash to the
	// checksum the client declared.
	ErrChecksumMismatch = errors.New("checksum does not match declared value")

	// ErrFileNotFound means no committed file exists under the given ID.
	ErrFileNotFound = errors.New("file not found")
)

// criticalMaxUpload is the largest upload accepted while capacity is
// CRITICAL. Larger files are refused so the element degrades before it
// fills.
const criticalMaxUpload int64 = 100 << 20

// UploadRequest carries the client-declared metadata for one upload.
type UploadRequest struct {
	// OriginalFilename as supplied by the client, before sanitization.
	OriginalFilename string

	// DeclaredSize is the client's size claim. Zero means unknown; a
	// positive value is enforced byte-exact.
	DeclaredSize int64

	// DeclaredChecksum is an optional lowercase hex SHA-256 the stored
	// bytes must hash to.
	DeclaredChecksum string

	ContentType string
	UploadedBy  string
	UploaderID  string

	Description   string
	Tags          []string
	Metadata      map[string]string
	RetentionDays int
}

// Service owns one storage element. All mutating operations funnel through
// the WAL so a crash at any point is recoverable.
type Service struct {
	elementID string
	backend   store.Backend
	wal       *wal.Store
	cache     *cache.Store
	modes     *mode.Manager
	producer  *events.Producer

	uploads *metrics.UploadMetrics
	walm    *metrics.WALMetrics

	now func() time.Time
}

// ServiceOptions configures optional collaborators. Nil fields disable the
// concern.
type ServiceOptions struct {
	Producer      *events.Producer
	UploadMetrics *metrics.UploadMetrics
	WALMetrics    *metrics.WALMetrics
}

// NewService wires a storage element from its parts.
func NewService(elementID string, backend store.Backend, walStore *wal.Store, cacheStore *cache.Store, modes *mode.Manager, opts ServiceOptions) *Service {
	return &Service{
		elementID: elementID,
		backend:   backend,
		wal:       walStore,
		cache:     cacheStore,
		modes:     modes,
		producer:  opts.Producer,
		uploads:   opts.UploadMetrics,
		walm:      opts.WALMetrics,
		now:       time.Now,
	}
}

// Mode returns the element's mode manager.
func (s *Service) Mode() *mode.Manager {
	return s.modes
}

// Cache returns the element's local cache store.
func (s *Service) Cache() *cache.Store {
	return s.cache
}

// Backend returns the element's object store.
func (s *Service) Backend() store.Backend {
	return s.backend
}

// uploadPayload is the WAL payload for an upload transaction.
type uploadPayload struct {
	FileID           string `json:"file_id"`
	OriginalFilename string `json:"original_filename"`
	StorageFilename  string `json:"storage_filename"`
	StoragePath      string `json:"storage_path"`
	DeclaredSize     int64  `json:"declared_size,omitempty"`
	UploadedBy       string `json:"uploaded_by"`
}

// Upload runs the write protocol end to end and returns the committed
// attributes. Any failure after the WAL entry exists rolls the transaction
// back; partially written objects are removed best-effort.
func (s *Service) Upload(ctx context.Context, r io.Reader, req UploadRequest) (committed *attr.Attributes, err error) {
	ctx, span := telemetry.StartFileSpan(ctx, "upload", "",
		telemetry.ElementID(s.elementID),
		telemetry.FileName(req.OriginalFilename),
		telemetry.FileSize(req.DeclaredSize))
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	start := s.now()

	if !s.modes.Allows(mode.OpCreate) {
		s.observeUpload("rejected_mode", 0, start)
		return nil, fmt.Errorf("%w: mode %s does not accept uploads", ErrModeForbidden, s.modes.Current())
	}
	if err := s.admitBySpace(ctx, req.DeclaredSize); err != nil {
		s.observeUpload("rejected_capacity", 0, start)
		return nil, err
	}

	now := start.UTC()
	fileID := uuid.NewString()
	telemetry.SetAttributes(ctx, telemetry.FileID(fileID))
	storageFilename := StorageFilename(req.OriginalFilename, req.UploadedBy, now)
	storagePath := StoragePath(now)
	dataPath := storagePath + "/" + storageFilename
	attrPath := storagePath + "/" + AttrFilename(storageFilename)

	entry, err := s.wal.Begin(ctx, wal.OpUpload, uploadPayload{
		FileID:           fileID,
		OriginalFilename: req.OriginalFilename,
		StorageFilename:  storageFilename,
		StoragePath:      storagePath,
		DeclaredSize:     req.DeclaredSize,
		UploadedBy:       req.UploadedBy,
	}, wal.Compensation{
		DataPath: dataPath,
		AttrPath: attrPath,
	})
	if err != nil {
		s.observeUpload("error", 0, start)
		return nil, fmt.Errorf("begin upload transaction: %w", err)
	}
	telemetry.SetAttributes(ctx, telemetry.TransactionID(entry.TransactionID))
	if err := s.wal.MarkInProgress(ctx, entry.TransactionID); err != nil {
		s.observeUpload("error", 0, start)
		return nil, fmt.Errorf("mark transaction in progress: %w", err)
	}

	attrs, err := s.writeCommit(ctx, r, req, fileID, storageFilename, storagePath, dataPath, attrPath, now)
	if err != nil {
		s.rollback(ctx, entry.TransactionID, dataPath, attrPath, err)
		s.observeUpload("rolled_back", 0, start)
		return nil, err
	}

	duration := s.now().Sub(start)
	if err := s.wal.Commit(ctx, entry.TransactionID, duration); err != nil {
		// The data and sidecar are durable; recovery will re-derive
		// COMMITTED from them. Surface the error anyway.
		logger.ErrorCtx(ctx, "WAL commit failed after durable write",
			logger.TransactionID(entry.TransactionID), logger.Err(err))
	}
	s.observeUpload("committed", attrs.FileSize, start)
	s.walObserve("committed")

	s.publish(ctx, events.EventFileCreated, attrs, time.Time{})

	logger.InfoCtx(ctx, "File uploaded",
		logger.FileID(fileID),
		logger.Size(attrs.FileSize),
		logger.Path(dataPath),
		logger.DurationMs(float64(duration.Milliseconds())))
	return attrs, nil
}

// writeCommit performs protocol steps 4 through 7. The caller owns the WAL
// transitions around it.
func (s *Service) writeCommit(ctx context.Context, r io.Reader, req UploadRequest, fileID, storageFilename, storagePath, dataPath, attrPath string, now time.Time) (*attr.Attributes, error) {
	reader := r
	if req.DeclaredSize > 0 {
		// Read one byte past the declared size so an oversized stream is
		// caught here instead of silently truncated.
		reader = io.LimitReader(r, req.DeclaredSize+1)
	}

	result, err := s.backend.WriteData(ctx, dataPath, reader)
	if err != nil {
		return nil, fmt.Errorf("write data object: %w", err)
	}
	if req.DeclaredSize > 0 && result.Bytes != req.DeclaredSize {
		return nil, fmt.Errorf("%w: declared %d, received %d", ErrSizeMismatch, req.DeclaredSize, result.Bytes)
	}
	if req.DeclaredChecksum != "" && !strings.EqualFold(req.DeclaredChecksum, result.Checksum) {
		return nil, fmt.Errorf("%w: declared %s, stored %s", ErrChecksumMismatch, req.DeclaredChecksum, result.Checksum)
	}
	if result.Bytes == 0 {
		return nil, fmt.Errorf("%w: empty upload", attr.ErrInvalid)
	}

	attrs := &attr.Attributes{
		SchemaVersion:     attr.SchemaVersion,
		FileID:            fileID,
		OriginalFilename:  req.OriginalFilename,
		StorageFilename:   storageFilename,
		FileSize:          result.Bytes,
		ContentType:       req.ContentType,
		CreatedAt:         now,
		UpdatedAt:         now,
		CreatedByID:       req.UploaderID,
		CreatedByUsername: req.UploadedBy,
		StoragePath:       storagePath,
		Checksum:          result.Checksum,
		Description:       req.Description,
		Version:           1,
		Tags:              req.Tags,
		Metadata:          req.Metadata,
	}
	if attrs.CreatedByID == "" {
		attrs.CreatedByID = req.UploadedBy
	}
	if attrs.ContentType == "" {
		attrs.ContentType = "application/octet-stream"
	}
	if req.RetentionDays > 0 {
		expires := now.AddDate(0, 0, req.RetentionDays)
		attrs.ExpiresAt = &expires
	}

	doc, err := attr.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("build attribute document: %w", err)
	}
	if err := s.backend.WriteAttr(ctx, attrPath, doc); err != nil {
		return nil, fmt.Errorf("write attribute document: %w", err)
	}

	if err := s.cache.Upsert(ctx, cache.FromAttributes(attrs)); err != nil {
		return nil, fmt.Errorf("index file in cache: %w", err)
	}
	return attrs, nil
}

// admitBySpace applies the capacity gate before any bytes land. The FULL
// floor blocks all uploads; CRITICAL blocks uploads over 100 MiB.
func (s *Service) admitBySpace(ctx context.Context, declaredSize int64) error {
	usage, err := s.backend.Usage(ctx)
	if errors.Is(err, store.ErrUnsupported) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read disk usage: %w", err)
	}

	current := s.modes.Current()
	used := usage.TotalBytes - usage.FreeBytes
	status := capacity.Evaluate(current, usage.TotalBytes, used)
	switch status {
	case registry.CapacityFull:
		return fmt.Errorf("%w: element is FULL", ErrInsufficientStorage)
	case registry.CapacityCritical:
		if declaredSize > criticalMaxUpload {
			return fmt.Errorf("%w: capacity CRITICAL accepts at most %d bytes, declared %d",
				ErrInsufficientStorage, criticalMaxUpload, declaredSize)
		}
	}
	if declaredSize > 0 {
		floor := capacity.FullFloor(current, usage.TotalBytes)
		if usage.FreeBytes-declaredSize < floor {
			return fmt.Errorf("%w: %d bytes free, %d declared, floor %d",
				ErrInsufficientStorage, usage.FreeBytes, declaredSize, floor)
		}
	}
	return nil
}

// rollback undoes a failed upload. Unlinks are best-effort; the WAL entry
// records the original error either way.
func (s *Service) rollback(ctx context.Context, transactionID, dataPath, attrPath string, cause error) {
	if err := s.backend.Delete(ctx, attrPath); err != nil {
		logger.WarnCtx(ctx, "Rollback could not remove attribute document",
			logger.Path(attrPath), logger.Err(err))
	}
	if err := s.backend.Delete(ctx, dataPath); err != nil {
		logger.WarnCtx(ctx, "Rollback could not remove data object",
			logger.Path(dataPath), logger.Err(err))
	}
	if err := s.wal.RollBack(ctx, transactionID, cause.Error()); err != nil {
		logger.ErrorCtx(ctx, "WAL rollback transition failed",
			logger.TransactionID(transactionID), logger.Err(err))
	}
	s.walObserve("rolled_back")
	logger.WarnCtx(ctx, "Upload rolled back",
		logger.TransactionID(transactionID), logger.Err(cause))
}

// Stat describes one committed file for download handlers.
type Stat struct {
	Attributes *attr.Attributes
	DataPath   string
	Size       int64
	ModTime    time.Time
}

// Lookup resolves a file ID to its attributes and data object. The cache
// row locates the sidecar; the sidecar stays the source of truth.
func (s *Service) Lookup(ctx context.Context, fileID string) (*Stat, error) {
	if !s.modes.Allows(mode.OpMetadata) {
		return nil, ErrModeForbidden
	}
	entry, err := s.cache.Get(ctx, fileID)
	if errors.Is(err, cache.ErrFileNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up file: %w", err)
	}

	doc, err := s.backend.ReadAttr(ctx, entry.AttrPath())
	if errors.Is(err, store.ErrObjectNotFound) {
		// Cache drift. The row is stale; reconciliation will drop it.
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read attribute document: %w", err)
	}
	attrs, err := attr.Unmarshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse attribute document: %w", err)
	}

	info, err := s.backend.Stat(ctx, entry.DataPath())
	if errors.Is(err, store.ErrObjectNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat data object: %w", err)
	}
	return &Stat{
		Attributes: attrs,
		DataPath:   entry.DataPath(),
		Size:       info.Size,
		ModTime:    info.ModTime,
	}, nil
}

// Open returns a reader over [offset, offset+length) of the file's data.
// Negative length reads to the end. Read access requires a mode that allows
// it.
func (s *Service) Open(ctx context.Context, st *Stat, offset, length int64) (io.ReadCloser, error) {
	if !s.modes.Allows(mode.OpRead) {
		return nil, ErrModeForbidden
	}
	return s.backend.OpenRange(ctx, st.DataPath, offset, length)
}

// UpdateRequest carries a metadata patch. Nil pointers leave the field
// unchanged.
type UpdateRequest struct {
	Description      *string
	Tags             []string
	Metadata         map[string]string
	CustomAttributes map[string]any
	RetentionDays    *int
}

// UpdateMetadata rewrites the sidecar with the patched fields, bumps the
// document version, and refreshes the cache row. The data object is
// untouched.
func (s *Service) UpdateMetadata(ctx context.Context, fileID string, patch UpdateRequest) (*attr.Attributes, error) {
	if !s.modes.Allows(mode.OpUpdate) {
		return nil, fmt.Errorf("%w: mode %s does not accept metadata updates", ErrModeForbidden, s.modes.Current())
	}
	st, err := s.Lookup(ctx, fileID)
	if err != nil {
		return nil, err
	}
	attrs := st.Attributes

	entry, err := s.wal.Begin(ctx, wal.OpUpdateMetadata, uploadPayload{
		FileID:          fileID,
		StorageFilename: attrs.StorageFilename,
		StoragePath:     attrs.StoragePath,
	}, wal.Compensation{})
	if err != nil {
		return nil, fmt.Errorf("begin update transaction: %w", err)
	}
	if err := s.wal.MarkInProgress(ctx, entry.TransactionID); err != nil {
		return nil, fmt.Errorf("mark transaction in progress: %w", err)
	}
	start := s.now()

	if patch.Description != nil {
		attrs.Description = *patch.Description
	}
	if patch.Tags != nil {
		attrs.Tags = patch.Tags
	}
	if patch.Metadata != nil {
		attrs.Metadata = patch.Metadata
	}
	if patch.CustomAttributes != nil {
		attrs.CustomAttributes = patch.CustomAttributes
	}
	if patch.RetentionDays != nil {
		if *patch.RetentionDays <= 0 {
			attrs.ExpiresAt = nil
		} else {
			expires := attrs.CreatedAt.AddDate(0, 0, *patch.RetentionDays)
			attrs.ExpiresAt = &expires
		}
	}
	attrs.Version++
	attrs.UpdatedAt = s.now().UTC()

	doc, err := attr.Marshal(attrs)
	if err != nil {
		s.failUpdate(ctx, entry.TransactionID, err)
		return nil, fmt.Errorf("build attribute document: %w", err)
	}
	attrPath := attrs.StoragePath + "/" + AttrFilename(attrs.StorageFilename)
	if err := s.backend.WriteAttr(ctx, attrPath, doc); err != nil {
		s.failUpdate(ctx, entry.TransactionID, err)
		return nil, fmt.Errorf("write attribute document: %w", err)
	}
	if err := s.cache.Upsert(ctx, cache.FromAttributes(attrs)); err != nil {
		s.failUpdate(ctx, entry.TransactionID, err)
		return nil, fmt.Errorf("index file in cache: %w", err)
	}
	if err := s.wal.Commit(ctx, entry.TransactionID, s.now().Sub(start)); err != nil {
		logger.ErrorCtx(ctx, "WAL commit failed after metadata update",
			logger.TransactionID(entry.TransactionID), logger.Err(err))
	}
	s.walObserve("committed")

	s.publish(ctx, events.EventFileUpdated, attrs, time.Time{})
	return attrs, nil
}

func (s *Service) failUpdate(ctx context.Context, transactionID string, cause error) {
	if err := s.wal.Fail(ctx, transactionID, cause.Error()); err != nil {
		logger.ErrorCtx(ctx, "WAL fail transition failed",
			logger.TransactionID(transactionID), logger.Err(err))
	}
	s.walObserve("failed")
}

// Delete removes the data object, its sidecar, and the cache row, then
// publishes file:deleted. Only EDIT mode allows it.
func (s *Service) Delete(ctx context.Context, fileID string) (err error) {
	ctx, span := telemetry.StartFileSpan(ctx, "delete", fileID,
		telemetry.ElementID(s.elementID))
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	if !s.modes.Allows(mode.OpDelete) {
		return fmt.Errorf("%w: mode %s does not accept deletes", ErrModeForbidden, s.modes.Current())
	}
	entry, err := s.cache.Get(ctx, fileID)
	if errors.Is(err, cache.ErrFileNotFound) {
		return ErrFileNotFound
	}
	if err != nil {
		return fmt.Errorf("look up file: %w", err)
	}

	dataPath, attrPath := entry.DataPath(), entry.AttrPath()
	walEntry, err := s.wal.Begin(ctx, wal.OpDelete, uploadPayload{
		FileID:          fileID,
		StorageFilename: entry.StorageFilename,
		StoragePath:     entry.StoragePath,
	}, wal.Compensation{DataPath: dataPath, AttrPath: attrPath})
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	if err := s.wal.MarkInProgress(ctx, walEntry.TransactionID); err != nil {
		return fmt.Errorf("mark transaction in progress: %w", err)
	}
	start := s.now()

	// Sidecar first so a crash mid-delete leaves a data file without a
	// sidecar, which recovery removes rather than resurrects.
	if err := s.backend.Delete(ctx, attrPath); err != nil {
		s.failUpdate(ctx, walEntry.TransactionID, err)
		return fmt.Errorf("delete attribute document: %w", err)
	}
	if err := s.backend.Delete(ctx, dataPath); err != nil {
		s.failUpdate(ctx, walEntry.TransactionID, err)
		return fmt.Errorf("delete data object: %w", err)
	}
	if err := s.cache.Delete(ctx, fileID); err != nil && !errors.Is(err, cache.ErrFileNotFound) {
		logger.WarnCtx(ctx, "Cache row removal failed after delete",
			logger.FileID(fileID), logger.Err(err))
	}
	if err := s.wal.Commit(ctx, walEntry.TransactionID, s.now().Sub(start)); err != nil {
		logger.ErrorCtx(ctx, "WAL commit failed after delete",
			logger.TransactionID(walEntry.TransactionID), logger.Err(err))
	}
	s.walObserve("committed")

	deleted := s.now().UTC()
	s.publish(ctx, events.EventFileDeleted, &attr.Attributes{FileID: fileID}, deleted)

	logger.InfoCtx(ctx, "File deleted", logger.FileID(fileID), logger.Path(dataPath))
	return nil
}

// List returns cache rows matching the filter plus the total match count.
func (s *Service) List(ctx context.Context, filter cache.Filter) ([]cache.FileEntry, int64, error) {
	if !s.modes.Allows(mode.OpMetadata) {
		return nil, 0, ErrModeForbidden
	}
	return s.cache.List(ctx, filter)
}

// publish emits a file event. Publish failures are logged, never returned:
// the write already committed.
func (s *Service) publish(ctx context.Context, eventType events.EventType, attrs *attr.Attributes, deletedAt time.Time) {
	if s.producer == nil {
		return
	}
	event := events.FileEvent{
		Type:             eventType,
		Timestamp:        s.now().UTC(),
		FileID:           attrs.FileID,
		StorageElementID: s.elementID,
		DeletedAt:        deletedAt,
	}
	if eventType != events.EventFileDeleted {
		doc, err := json.Marshal(attrs)
		if err != nil {
			logger.ErrorCtx(ctx, "Event metadata marshal failed",
				logger.FileID(attrs.FileID), logger.Err(err))
			return
		}
		event.Metadata = doc
	}
	if _, err := s.producer.Publish(ctx, event); err != nil {
		logger.ErrorCtx(ctx, "File event publish failed",
			logger.FileID(attrs.FileID),
			logger.EventType(string(eventType)),
			logger.Err(err))
	}
}

func (s *Service) observeUpload(status string, bytes int64, start time.Time) {
	if s.uploads != nil {
		s.uploads.Observe(status, bytes, s.now().Sub(start))
	}
}

func (s *Service) walObserve(status string) {
	if s.walm != nil {
		s.walm.ObserveTransaction(status)
	}
}
