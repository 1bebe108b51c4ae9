package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// File is a file-registry record.
type File struct {
	FileID               string     `json:"file_id"`
	OriginalFilename     string     `json:"original_filename"`
	StorageFilename      string     `json:"storage_filename"`
	FileSize             int64      `json:"file_size"`
	ChecksumSHA256       string     `json:"checksum_sha256"`
	ContentType          string     `json:"content_type,omitempty"`
	Description          string     `json:"description,omitempty"`
	RetentionPolicy      string     `json:"retention_policy"`
	TTLDays              int        `json:"ttl_days,omitempty"`
	TTLExpiresAt         *time.Time `json:"ttl_expires_at,omitempty"`
	FinalizedAt          *time.Time `json:"finalized_at,omitempty"`
	StorageElementID     string     `json:"storage_element_id"`
	StoragePath          string     `json:"storage_path,omitempty"`
	Compressed           bool       `json:"compressed"`
	CompressionAlgorithm string     `json:"compression_algorithm,omitempty"`
	OriginalSize         int64      `json:"original_size,omitempty"`
	UploadedBy           string     `json:"uploaded_by"`
	UploadSourceIP       string     `json:"upload_source_ip,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty"`
	DeletionReason       string     `json:"deletion_reason,omitempty"`
}

// RegisterFileRequest is the body for POST /api/v1/files.
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

// FileList is the paginated response from ListFiles.
type FileList struct {
	Files  []File `json:"files"`
	Count  int    `json:"count"`
	Total  int64  `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// ListFilesOptions filter the registry listing. Zero values are omitted.
type ListFilesOptions struct {
	StorageElementID string
	UploadedBy       string
	RetentionPolicy  string
	IncludeDeleted   bool
	Limit            int
	Offset           int
}

// RegisterFile records a committed upload in the registry.
func (c *Client) RegisterFile(ctx context.Context, req RegisterFileRequest) (*File, error) {
	var file File
	if err := c.post(ctx, "/api/v1/files", req, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// GetFile fetches one registry record.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var file File
	if err := c.get(ctx, "/api/v1/files/"+url.PathEscape(fileID), &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// ListFiles pages through the registry.
func (c *Client) ListFiles(ctx context.Context, opts ListFilesOptions) (*FileList, error) {
	q := url.Values{}
	if opts.StorageElementID != "" {
		q.Set("storage_element_id", opts.StorageElementID)
	}
	if opts.UploadedBy != "" {
		q.Set("uploaded_by", opts.UploadedBy)
	}
	if opts.RetentionPolicy != "" {
		q.Set("retention_policy", opts.RetentionPolicy)
	}
	if opts.IncludeDeleted {
		q.Set("include_deleted", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}

	path := "/api/v1/files"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list FileList
	if err := c.get(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// FinalizeFile flips a TEMPORARY file to PERMANENT.
func (c *Client) FinalizeFile(ctx context.Context, fileID string) (*File, error) {
	var file File
	if err := c.post(ctx, "/api/v1/files/"+url.PathEscape(fileID)+"/finalize", nil, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DeleteFile soft-deletes a registry record.
func (c *Client) DeleteFile(ctx context.Context, fileID, reason string) (*File, error) {
	path := "/api/v1/files/" + url.PathEscape(fileID)
	if reason != "" {
		path += "?reason=" + url.QueryEscape(reason)
	}
	var file File
	if err := c.delete(ctx, path, &file); err != nil {
		return nil, err
	}
	return &file, nil
}
