// Package attr reads and writes the per-file attribute sidecar documents.
//
// Every data file has one <storage_filename>.attr.json next to it. The
// sidecar is the source of truth for file metadata; the element's cache DB
// is rebuilt from these documents. Documents are capped at 4096 bytes so a
// sidecar always fits a single filesystem block and writes stay atomic.
package attr

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// SchemaVersion is the current sidecar schema.
	SchemaVersion = "2.0"

	// LegacySchemaVersion marks documents written before the schema was
	// versioned explicitly.
	LegacySchemaVersion = "1.0"

	// MaxSize is the hard cap on a serialized document. 4096 bytes is one
	// filesystem block; a 4097-byte document is rejected.
	MaxSize = 4096

	// Suffix is appended to a data filename to name its sidecar.
	Suffix = ".attr.json"
)

var (
	ErrTooLarge = errors.New("attribute document exceeds 4096 bytes")
	ErrInvalid  = errors.New("invalid attribute document")
)

// Attributes is the sidecar document. Required fields are validated on both
// read and write; optional fields marshal only when set.
type Attributes struct {
	SchemaVersion     string    `json:"schema_version"`
	FileID            string    `json:"file_id"`
	OriginalFilename  string    `json:"original_filename"`
	StorageFilename   string    `json:"storage_filename"`
	FileSize          int64     `json:"file_size"`
	ContentType       string    `json:"content_type"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	CreatedByID       string    `json:"created_by_id"`
	CreatedByUsername string    `json:"created_by_username"`
	StoragePath       string    `json:"storage_path"`
	Checksum          string    `json:"checksum"`

	Description      string            `json:"description,omitempty"`
	Version          int               `json:"version,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CustomAttributes map[string]any    `json:"custom_attributes,omitempty"`

	// ExpiresAt is when the file's retention lapses. Nil means the file
	// never expires.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// UploadedBy is the pre-2.0 name for created_by_username. Migration
	// moves the value and clears the field, so current documents never
	// carry it.
	UploadedBy string `json:"uploaded_by,omitempty"`
}

// Validate checks the required schema keys.
func (a *Attributes) Validate() error {
	if a.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: schema_version %q", ErrInvalid, a.SchemaVersion)
	}
	for field, value := range map[string]string{
		"file_id":             a.FileID,
		"original_filename":   a.OriginalFilename,
		"storage_filename":    a.StorageFilename,
		"content_type":        a.ContentType,
		"created_by_id":       a.CreatedByID,
		"created_by_username": a.CreatedByUsername,
		"storage_path":        a.StoragePath,
	} {
		if value == "" {
			return fmt.Errorf("%w: missing %s", ErrInvalid, field)
		}
	}
	if a.FileSize <= 0 {
		return fmt.Errorf("%w: file_size must be positive", ErrInvalid)
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: missing timestamps", ErrInvalid)
	}
	if !validChecksum(a.Checksum) {
		return fmt.Errorf("%w: checksum must be 64 hex characters", ErrInvalid)
	}
	return nil
}

func validChecksum(sum string) bool {
	if len(sum) != 64 {
		return false
	}
	for _, r := range sum {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// Migrate upgrades a legacy document in place by filling the fields the 1.0
// schema did not carry. Running it on a current document is a no-op, so the
// operation is idempotent.
func (a *Attributes) Migrate() {
	if a.SchemaVersion == SchemaVersion {
		return
	}
	a.SchemaVersion = SchemaVersion

	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	if a.Version == 0 {
		a.Version = 1
	}
	if a.CreatedByUsername == "" && a.UploadedBy != "" {
		a.CreatedByUsername = a.UploadedBy
	}
	a.UploadedBy = ""
	if a.CreatedByUsername == "" {
		a.CreatedByUsername = "unknown"
	}
	if a.CreatedByID == "" {
		a.CreatedByID = "unknown"
	}
}

// Marshal validates and serializes the document, enforcing the size cap.
func Marshal(a *Attributes) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize attributes: %w", err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	return data, nil
}

// Unmarshal parses a sidecar document, migrating legacy schemas in memory,
// and validates the result.
func Unmarshal(data []byte) (*Attributes, error) {
	var a Attributes
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err)
	}
	a.Migrate()
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
