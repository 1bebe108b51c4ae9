// Package store defines the object storage abstraction used by a storage
// element. Data files and their attribute sidecars are addressed by
// slash-separated paths relative to the backend root. Implementations exist
// for the local filesystem and for S3-compatible object stores.
package store

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors returned by Backend implementations.
var (
	// ErrObjectNotFound is returned when the addressed object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrStoreClosed is returned for operations on a closed backend.
	ErrStoreClosed = errors.New("store is closed")

	// ErrInvalidPath is returned when a path is absolute or escapes the
	// backend root.
	ErrInvalidPath = errors.New("invalid object path")

	// ErrUnsupported is returned for operations the backend cannot provide.
	ErrUnsupported = errors.New("operation not supported by this backend")
)

// WriteResult describes a completed data write.
type WriteResult struct {
	// Bytes is the number of bytes stored.
	Bytes int64

	// Checksum is the lowercase hex SHA-256 of the stored bytes.
	Checksum string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Size    int64
	ModTime time.Time
}

// DiskUsage reports capacity of the volume backing the store. Backends
// without a measurable volume return ErrUnsupported from Usage.
type DiskUsage struct {
	TotalBytes int64
	FreeBytes  int64
}

// Backend is the storage abstraction for file payloads and attribute
// sidecars.
type Backend interface {
	// WriteData streams r into the object at relPath. The write is atomic:
	// readers never observe a partial object at relPath. The result carries
	// the byte count and SHA-256 checksum of what was stored.
	WriteData(ctx context.Context, relPath string, r io.Reader) (WriteResult, error)

	// WriteAttr atomically stores a small attribute document at relPath.
	WriteAttr(ctx context.Context, relPath string, data []byte) error

	// ReadAttr returns the attribute document at relPath.
	ReadAttr(ctx context.Context, relPath string) ([]byte, error)

	// OpenRange opens the object at relPath for reading starting at offset.
	// A negative length means "to the end of the object".
	OpenRange(ctx context.Context, relPath string, offset, length int64) (io.ReadCloser, error)

	// Stat returns size and modification time of the object at relPath.
	Stat(ctx context.Context, relPath string) (ObjectInfo, error)

	// Delete removes the object at relPath. Deleting a missing object is
	// not an error.
	Delete(ctx context.Context, relPath string) error

	// Walk calls fn for every stored object. In-flight temporary files are
	// skipped. A non-nil error from fn stops the walk and is returned.
	Walk(ctx context.Context, fn func(relPath string, info ObjectInfo) error) error

	// Usage reports total and free bytes of the backing volume.
	Usage(ctx context.Context) (DiskUsage, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources. Operations after Close return
	// ErrStoreClosed.
	Close() error
}
