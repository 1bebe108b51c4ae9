package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for ArtStore operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// File attributes
	// ========================================================================
	AttrFileID      = "file.id"
	AttrFileName    = "file.name"
	AttrFileSize    = "file.size"
	AttrOffset      = "file.offset"
	AttrCount       = "file.count"
	AttrChecksum    = "file.checksum"
	AttrContentType = "file.content_type"

	// ========================================================================
	// Storage element attributes
	// ========================================================================
	AttrElementID   = "element.id"
	AttrElementMode = "element.mode"

	// ========================================================================
	// Transaction log attributes
	// ========================================================================
	AttrTransactionID = "wal.transaction_id"
	AttrWALState      = "wal.state"

	// ========================================================================
	// Storage backend attributes
	// ========================================================================
	AttrStoreName = "store.name"
	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"

	// ========================================================================
	// Event stream attributes
	// ========================================================================
	AttrEventType   = "event.type"
	AttrEventStream = "event.stream"
	AttrEventID     = "event.id"

	// ========================================================================
	// Search attributes
	// ========================================================================
	AttrSearchQuery   = "search.query"
	AttrSearchResults = "search.results"

	// ========================================================================
	// User/Auth attributes
	// ========================================================================
	AttrUsername = "user.name"
	AttrAuth     = "auth.method"

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheHit = "cache.hit"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// FileID returns an attribute for file identifier
func FileID(id string) attribute.KeyValue {
	return attribute.String(AttrFileID, id)
}

// FileName returns an attribute for original filename
func FileName(name string) attribute.KeyValue {
	return attribute.String(AttrFileName, name)
}

// FileSize returns an attribute for file size in bytes
func FileSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrFileSize, size)
}

// Offset returns an attribute for byte offset
func Offset(offset int64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, offset)
}

// Count returns an attribute for byte count
func Count(count int64) attribute.KeyValue {
	return attribute.Int64(AttrCount, count)
}

// Checksum returns an attribute for a SHA-256 checksum
func Checksum(sum string) attribute.KeyValue {
	return attribute.String(AttrChecksum, sum)
}

// ContentType returns an attribute for MIME content type
func ContentType(ct string) attribute.KeyValue {
	return attribute.String(AttrContentType, ct)
}

// ElementID returns an attribute for storage element identifier
func ElementID(id string) attribute.KeyValue {
	return attribute.String(AttrElementID, id)
}

// ElementMode returns an attribute for storage element mode
func ElementMode(mode string) attribute.KeyValue {
	return attribute.String(AttrElementMode, mode)
}

// TransactionID returns an attribute for WAL transaction identifier
func TransactionID(id string) attribute.KeyValue {
	return attribute.String(AttrTransactionID, id)
}

// WALState returns an attribute for WAL transaction state
func WALState(state string) attribute.KeyValue {
	return attribute.String(AttrWALState, state)
}

// StoreName returns an attribute for store name
func StoreName(name string) attribute.KeyValue {
	return attribute.String(AttrStoreName, name)
}

// StoreType returns an attribute for store type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Bucket returns an attribute for S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// EventType returns an attribute for file event type
func EventType(t string) attribute.KeyValue {
	return attribute.String(AttrEventType, t)
}

// EventStream returns an attribute for event stream name
func EventStream(stream string) attribute.KeyValue {
	return attribute.String(AttrEventStream, stream)
}

// EventID returns an attribute for stream entry identifier
func EventID(id string) attribute.KeyValue {
	return attribute.String(AttrEventID, id)
}

// SearchQuery returns an attribute for search query text
func SearchQuery(q string) attribute.KeyValue {
	return attribute.String(AttrSearchQuery, q)
}

// SearchResults returns an attribute for result count
func SearchResults(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSearchResults, n)
}

// Username returns an attribute for username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// AuthMethod returns an attribute for authentication method
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// CacheHit returns an attribute for cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// StartFileSpan starts a span for a file operation on a storage element.
// The file ID is omitted when not yet known (upload assigns it mid-flight).
func StartFileSpan(ctx context.Context, operation, fileID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	var allAttrs []attribute.KeyValue
	if fileID != "" {
		allAttrs = append(allAttrs, FileID(fileID))
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "file."+operation, trace.WithAttributes(allAttrs...))
}

// StartStorageSpan starts a span for a storage backend operation.
func StartStorageSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "storage."+operation, trace.WithAttributes(attrs...))
}

// StartEventSpan starts a span for an event stream operation.
func StartEventSpan(ctx context.Context, operation, stream string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		EventStream(stream),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "events."+operation, trace.WithAttributes(allAttrs...))
}

// StartSearchSpan starts a span for a query-module search operation.
func StartSearchSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "search."+operation, trace.WithAttributes(attrs...))
}
