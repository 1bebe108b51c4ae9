package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// RetentionPolicy marks a file as expiring or kept forever.
type RetentionPolicy string

const (
	// RetentionTemporary files carry a TTL and are garbage-collected after
	// it lapses.
	RetentionTemporary RetentionPolicy = "TEMPORARY"

	// RetentionPermanent files are kept until explicitly deleted.
	RetentionPermanent RetentionPolicy = "PERMANENT"
)

// IsValid checks if the policy is a known RetentionPolicy.
func (p RetentionPolicy) IsValid() bool {
	return p == RetentionTemporary || p == RetentionPermanent
}

var checksumPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// File is the admin registry record for one stored file. Each element keeps
// its own cache row; this is the cluster-wide view.
type File struct {
	FileID string `gorm:"primaryKey;size:36" json:"file_id"`

	OriginalFilename string `gorm:"not null;size:512" json:"original_filename"`

	// StorageFilename is unique per element, not globally.
	StorageFilename string `gorm:"not null;size:512;uniqueIndex:idx_files_element_name" json:"storage_filename"`

	FileSize       int64  `gorm:"not null" json:"file_size"`
	ChecksumSHA256 string `gorm:"not null;size:64" json:"checksum_sha256"`
	ContentType    string `gorm:"size:255" json:"content_type,omitempty"`
	Description    string `gorm:"size:1024" json:"description,omitempty"`

	RetentionPolicy RetentionPolicy `gorm:"size:16;default:TEMPORARY" json:"retention_policy"`
	TTLDays         int             `json:"ttl_days,omitempty"`
	TTLExpiresAt    *time.Time      `json:"ttl_expires_at,omitempty"`
	FinalizedAt     *time.Time      `json:"finalized_at,omitempty"`

	StorageElementID string `gorm:"size:64;index;uniqueIndex:idx_files_element_name" json:"storage_element_id"`
	StoragePath      string `gorm:"size:512" json:"storage_path,omitempty"`

	Compressed           bool   `json:"compressed"`
	CompressionAlgorithm string `gorm:"size:32" json:"compression_algorithm,omitempty"`
	OriginalSize         int64  `json:"original_size,omitempty"`

	UploadedBy     string `gorm:"size:255;index" json:"uploaded_by"`
	UploadSourceIP string `gorm:"size:64" json:"upload_source_ip,omitempty"`

	// UserMetadata is a free-form JSON object supplied by the uploader.
	UserMetadata string `gorm:"type:text" json:"-"`

	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	DeletionReason string     `gorm:"size:512" json:"deletion_reason,omitempty"`
}

// TableName returns the table name for File.
func (File) TableName() string {
	return "files"
}

// Validate checks the registry invariants before persisting.
func (f *File) Validate() error {
	if f.FileSize <= 0 {
		return fmt.Errorf("%w: file_size must be positive", ErrInvalidFile)
	}
	if !checksumPattern.MatchString(f.ChecksumSHA256) {
		return fmt.Errorf("%w: checksum_sha256 must be 64 lowercase hex characters", ErrInvalidFile)
	}
	if !f.RetentionPolicy.IsValid() {
		return fmt.Errorf("%w: retention_policy must be TEMPORARY or PERMANENT", ErrInvalidFile)
	}
	if f.RetentionPolicy == RetentionPermanent && f.TTLExpiresAt != nil {
		return fmt.Errorf("%w: PERMANENT files cannot carry a TTL", ErrInvalidFile)
	}
	return nil
}

// Deleted reports whether the file was soft-deleted.
func (f *File) Deleted() bool {
	return f.DeletedAt != nil
}

// Finalize flips TEMPORARY to PERMANENT and clears the TTL. Finalizing a
// PERMANENT file again is a no-op.
func (f *File) Finalize(now time.Time) {
	if f.RetentionPolicy == RetentionPermanent {
		return
	}
	f.RetentionPolicy = RetentionPermanent
	f.TTLExpiresAt = nil
	f.TTLDays = 0
	f.FinalizedAt = &now
}

// SetUserMetadata stores the map as its JSON encoding.
func (f *File) SetUserMetadata(meta map[string]any) error {
	if len(meta) == 0 {
		f.UserMetadata = ""
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode user metadata: %w", err)
	}
	f.UserMetadata = string(raw)
	return nil
}

// GetUserMetadata decodes the stored metadata map. An empty column yields
// nil.
func (f *File) GetUserMetadata() (map[string]any, error) {
	if f.UserMetadata == "" {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(f.UserMetadata), &meta); err != nil {
		return nil, fmt.Errorf("decode user metadata: %w", err)
	}
	return meta, nil
}
