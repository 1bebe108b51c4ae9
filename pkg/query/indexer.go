// Package query implements the read-side search service. An indexer projects
// file events into the Postgres search index; HTTP handlers serve full-text
// search, metadata lookups, and download redirects to the owning storage
// element.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/events"
	"github.com/artstore/artstore/pkg/metrics"
	"github.com/artstore/artstore/pkg/query/store"
)

// IndexWriter is the store surface the indexer writes through. Each call
// reports whether the event was applied or absorbed as a redelivery.
type IndexWriter interface {
	IndexFile(ctx context.Context, key store.EventKey, rec store.FileRecord) (bool, error)
	FinalizeFile(ctx context.Context, key store.EventKey, rec store.FileRecord) (bool, error)
	MarkDeleted(ctx context.Context, key store.EventKey, fileID, elementID string, deletedAt time.Time) (bool, error)
}

// Indexer applies file events to the search index. It is the handler side of
// an events.Consumer; redeliveries are absorbed by the store's idempotency
// ledger.
type Indexer struct {
	store   IndexWriter
	metrics *metrics.EventMetrics
}

// NewIndexer returns an indexer writing to the given store. metrics may be
// nil.
func NewIndexer(s IndexWriter, m *metrics.EventMetrics) *Indexer {
	return &Indexer{store: s, metrics: m}
}

// Handle processes one delivered event. Errors leave the entry pending so
// the consumer retries it; a malformed metadata document is an error too,
// which after the delivery budget lands the entry in the dead-letter stream
// where an operator can see it.
func (ix *Indexer) Handle(ctx context.Context, msg events.Message) error {
	key := store.EventKey{
		FileID:    msg.Event.FileID,
		EventType: string(msg.Event.Type),
		StreamID:  msg.ID,
	}

	var (
		applied bool
		err     error
	)
	switch msg.Event.Type {
	case events.EventFileCreated, events.EventFileUpdated:
		var rec store.FileRecord
		rec, err = recordFromEvent(msg.Event)
		if err == nil {
			applied, err = ix.store.IndexFile(ctx, key, rec)
		}
	case events.EventFileFinalized:
		var rec store.FileRecord
		rec, err = recordFromEvent(msg.Event)
		if err == nil {
			applied, err = ix.store.FinalizeFile(ctx, key, rec)
		}
	case events.EventFileDeleted:
		deletedAt := msg.Event.DeletedAt
		if deletedAt.IsZero() {
			deletedAt = msg.Event.Timestamp
		}
		applied, err = ix.store.MarkDeleted(ctx, key, msg.Event.FileID, msg.Event.StorageElementID, deletedAt)
	default:
		// decodeMessage rejects unknown types before the handler runs.
		logger.WarnCtx(ctx, "ignoring event of unknown type",
			logger.EventType(string(msg.Event.Type)),
			logger.StreamID(msg.ID))
		return nil
	}
	if err != nil {
		return err
	}

	if !applied {
		logger.DebugCtx(ctx, "skipping already indexed delivery",
			logger.EventType(string(msg.Event.Type)),
			logger.FileID(msg.Event.FileID),
			logger.StreamID(msg.ID))
		return nil
	}

	ix.metrics.Observe(metrics.EventConsumed, string(msg.Event.Type))
	logger.DebugCtx(ctx, "file event indexed",
		logger.EventType(string(msg.Event.Type)),
		logger.FileID(msg.Event.FileID),
		logger.StreamID(msg.ID))
	return nil
}

// metadataDoc is the superset of the two documents events carry in their
// metadata field: the element's attribute sidecar on create and update, and
// the admin registry record on finalize. The two name some fields
// differently; resolution below prefers whichever is present.
type metadataDoc struct {
	FileID           string    `json:"file_id"`
	OriginalFilename string    `json:"original_filename"`
	StorageFilename  string    `json:"storage_filename"`
	StoragePath      string    `json:"storage_path"`
	StorageElementID string    `json:"storage_element_id"`
	FileSize         int64     `json:"file_size"`
	ContentType      string    `json:"content_type"`
	Description      string    `json:"description"`
	Tags             []string  `json:"tags"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Attribute-document names.
	Checksum          string     `json:"checksum"`
	CreatedByUsername string     `json:"created_by_username"`
	ExpiresAt         *time.Time `json:"expires_at"`

	// Registry-record names.
	ChecksumSHA256  string     `json:"checksum_sha256"`
	UploadedBy      string     `json:"uploaded_by"`
	TTLExpiresAt    *time.Time `json:"ttl_expires_at"`
	RetentionPolicy string     `json:"retention_policy"`
	FinalizedAt     *time.Time `json:"finalized_at"`
}

// recordFromEvent flattens an event's metadata document into an index row.
// Stream envelope fields fill anything the document leaves out.
func recordFromEvent(event events.FileEvent) (store.FileRecord, error) {
	var doc metadataDoc
	if len(event.Metadata) > 0 {
		if err := json.Unmarshal(event.Metadata, &doc); err != nil {
			return store.FileRecord{}, fmt.Errorf("decode metadata for file %s: %w", event.FileID, err)
		}
	}

	rec := store.FileRecord{
		FileID:           firstNonEmpty(doc.FileID, event.FileID),
		OriginalFilename: doc.OriginalFilename,
		StorageFilename:  doc.StorageFilename,
		StoragePath:      doc.StoragePath,
		StorageElementID: firstNonEmpty(doc.StorageElementID, event.StorageElementID),
		FileSize:         doc.FileSize,
		ContentType:      doc.ContentType,
		ChecksumSHA256:   firstNonEmpty(doc.Checksum, doc.ChecksumSHA256),
		Description:      doc.Description,
		UploadedBy:       firstNonEmpty(doc.UploadedBy, doc.CreatedByUsername),
		Tags:             doc.Tags,
		RetentionPolicy:  doc.RetentionPolicy,
		FinalizedAt:      doc.FinalizedAt,
		ExpiresAt:        doc.ExpiresAt,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		EventTimestamp:   event.Timestamp,
	}
	if rec.ExpiresAt == nil {
		rec.ExpiresAt = doc.TTLExpiresAt
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = event.Timestamp
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = event.Timestamp
	}
	return rec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
