package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// FileRecord is one row of the search index.
type FileRecord struct {
	FileID           string     `json:"file_id"`
	OriginalFilename string     `json:"original_filename"`
	StorageFilename  string     `json:"storage_filename,omitempty"`
	StoragePath      string     `json:"storage_path,omitempty"`
	StorageElementID string     `json:"storage_element_id"`
	FileSize         int64      `json:"file_size"`
	ContentType      string     `json:"content_type,omitempty"`
	ChecksumSHA256   string     `json:"checksum_sha256,omitempty"`
	Description      string     `json:"description,omitempty"`
	UploadedBy       string     `json:"uploaded_by,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	RetentionPolicy  string     `json:"retention_policy"`
	FinalizedAt      *time.Time `json:"finalized_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`

	// EventTimestamp is the timestamp of the newest metadata event applied
	// to the row. It never leaves the service.
	EventTimestamp time.Time `json:"-"`
}

// EventKey identifies one delivery of one stream entry. Applying the same
// key twice is a no-op.
type EventKey struct {
	FileID    string
	EventType string
	StreamID  string
}

const fileColumns = `file_id, original_filename, storage_filename, storage_path,
	storage_element_id, file_size, content_type, checksum_sha256, description,
	uploaded_by, tags, retention_policy, finalized_at, expires_at,
	created_at, updated_at, deleted_at, event_timestamp`

func scanFile(row pgx.Row) (*FileRecord, error) {
	var rec FileRecord
	err := row.Scan(
		&rec.FileID, &rec.OriginalFilename, &rec.StorageFilename, &rec.StoragePath,
		&rec.StorageElementID, &rec.FileSize, &rec.ContentType, &rec.ChecksumSHA256,
		&rec.Description, &rec.UploadedBy, &rec.Tags, &rec.RetentionPolicy,
		&rec.FinalizedAt, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.DeletedAt, &rec.EventTimestamp,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetFile returns the indexed row for a file, including soft-deleted ones.
func (s *Store) GetFile(ctx context.Context, fileID string) (*FileRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE file_id = $1`, fileID)
	rec, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", fileID, err)
	}
	return rec, nil
}

// applyEvent runs apply inside a transaction guarded by the idempotency
// ledger. It reports false without calling apply when the key was already
// processed.
func (s *Store) applyEvent(ctx context.Context, key EventKey, apply func(pgx.Tx) error) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO processed_events (file_id, event_type, stream_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		key.FileID, key.EventType, key.StreamID)
	if err != nil {
		return false, fmt.Errorf("record event %s/%s: %w", key.EventType, key.StreamID, err)
	}
	if tag.RowsAffected() == 0 {
		// Redelivery of an entry this index already absorbed.
		return false, nil
	}

	if err := apply(tx); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit event %s/%s: %w", key.EventType, key.StreamID, err)
	}
	return true, nil
}

// IndexFile upserts a file's metadata columns from a created or updated
// event. Rows holding a newer event_timestamp are left untouched, so stale
// redeliveries cannot roll metadata back. Retention and deletion columns are
// owned by FinalizeFile and MarkDeleted and are never written here; expiry
// is pinned once a row is finalized, because attribute documents produced
// by the element still carry the pre-finalize TTL.
func (s *Store) IndexFile(ctx context.Context, key EventKey, rec FileRecord) (bool, error) {
	return s.applyEvent(ctx, key, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO files (
				file_id, original_filename, storage_filename, storage_path,
				storage_element_id, file_size, content_type, checksum_sha256,
				description, uploaded_by, tags, tags_text, expires_at,
				created_at, updated_at, event_timestamp
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (file_id) DO UPDATE SET
				original_filename  = EXCLUDED.original_filename,
				storage_filename   = EXCLUDED.storage_filename,
				storage_path       = EXCLUDED.storage_path,
				storage_element_id = EXCLUDED.storage_element_id,
				file_size          = EXCLUDED.file_size,
				content_type       = EXCLUDED.content_type,
				checksum_sha256    = EXCLUDED.checksum_sha256,
				description        = EXCLUDED.description,
				uploaded_by        = EXCLUDED.uploaded_by,
				tags               = EXCLUDED.tags,
				tags_text          = EXCLUDED.tags_text,
				expires_at         = CASE WHEN files.finalized_at IS NULL
				                          THEN EXCLUDED.expires_at
				                          ELSE files.expires_at END,
				created_at         = EXCLUDED.created_at,
				updated_at         = EXCLUDED.updated_at,
				event_timestamp    = EXCLUDED.event_timestamp
			WHERE files.event_timestamp <= EXCLUDED.event_timestamp`,
			rec.FileID, rec.OriginalFilename, rec.StorageFilename, rec.StoragePath,
			rec.StorageElementID, rec.FileSize, rec.ContentType, rec.ChecksumSHA256,
			rec.Description, rec.UploadedBy, tagsValue(rec.Tags), strings.Join(rec.Tags, " "),
			rec.ExpiresAt, rec.CreatedAt, rec.UpdatedAt, rec.EventTimestamp)
		if err != nil {
			return fmt.Errorf("index file %s: %w", rec.FileID, err)
		}
		return nil
	})
}

// FinalizeFile applies a finalize event: the file becomes permanent and its
// expiry is lifted. When the row is missing the event's registry document
// seeds it, so a finalize racing ahead of the create still lands.
func (s *Store) FinalizeFile(ctx context.Context, key EventKey, rec FileRecord) (bool, error) {
	return s.applyEvent(ctx, key, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO files (
				file_id, original_filename, storage_filename, storage_path,
				storage_element_id, file_size, content_type, checksum_sha256,
				description, uploaded_by, tags, tags_text,
				retention_policy, finalized_at, expires_at,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			ON CONFLICT (file_id) DO UPDATE SET
				retention_policy = EXCLUDED.retention_policy,
				finalized_at     = EXCLUDED.finalized_at,
				expires_at       = EXCLUDED.expires_at,
				updated_at       = GREATEST(files.updated_at, EXCLUDED.updated_at)`,
			rec.FileID, rec.OriginalFilename, rec.StorageFilename, rec.StoragePath,
			rec.StorageElementID, rec.FileSize, rec.ContentType, rec.ChecksumSHA256,
			rec.Description, rec.UploadedBy, tagsValue(rec.Tags), strings.Join(rec.Tags, " "),
			rec.RetentionPolicy, rec.FinalizedAt, rec.ExpiresAt,
			rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("finalize file %s: %w", rec.FileID, err)
		}
		return nil
	})
}

// MarkDeleted soft-deletes a file's row. The row survives as a tombstone so
// searches with include_deleted can still see it, and so a late create event
// cannot resurrect the file. The earliest deletion time wins.
func (s *Store) MarkDeleted(ctx context.Context, key EventKey, fileID, elementID string, deletedAt time.Time) (bool, error) {
	return s.applyEvent(ctx, key, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO files (file_id, storage_element_id, deleted_at, updated_at)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (file_id) DO UPDATE SET
				deleted_at = COALESCE(files.deleted_at, EXCLUDED.deleted_at),
				updated_at = GREATEST(files.updated_at, EXCLUDED.updated_at)`,
			fileID, elementID, deletedAt)
		if err != nil {
			return fmt.Errorf("mark file %s deleted: %w", fileID, err)
		}
		return nil
	})
}

// tagsValue normalizes nil to an empty array so the column never goes NULL.
func tagsValue(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
