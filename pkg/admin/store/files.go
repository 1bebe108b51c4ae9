package store

import (
	"context"
	"time"

	"github.com/artstore/artstore/pkg/admin/models"
)

// FileFilter narrows ListFiles.
type FileFilter struct {
	StorageElementID string
	UploadedBy       string
	RetentionPolicy  models.RetentionPolicy
	IncludeDeleted   bool
	Limit            int
	Offset           int
}

// CreateFile registers a file record. The caller assigns FileID (the
// element already minted one).
func (s *Store) CreateFile(ctx context.Context, file *models.File) error {
	if err := file.Validate(); err != nil {
		return err
	}
	_, err := createWithID(s.db, ctx, file, file.FileID,
		func(f *models.File, id string) { f.FileID = id },
		models.ErrDuplicateFile)
	return err
}

// GetFile returns one file by ID.
func (s *Store) GetFile(ctx context.Context, fileID string) (*models.File, error) {
	return getByField[models.File](s.db, ctx, "file_id", fileID, models.ErrFileNotFound)
}

// ListFiles returns matching files plus the total match count.
func (s *Store) ListFiles(ctx context.Context, filter FileFilter) ([]*models.File, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.File{})
	if !filter.IncludeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	if filter.StorageElementID != "" {
		q = q.Where("storage_element_id = ?", filter.StorageElementID)
	}
	if filter.UploadedBy != "" {
		q = q.Where("uploaded_by = ?", filter.UploadedBy)
	}
	if filter.RetentionPolicy != "" {
		q = q.Where("retention_policy = ?", filter.RetentionPolicy)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	files := make([]*models.File, 0)
	if err := q.Order("created_at desc").Find(&files).Error; err != nil {
		return nil, 0, err
	}
	return files, total, nil
}

// UpdateFile saves all fields of an existing record.
func (s *Store) UpdateFile(ctx context.Context, file *models.File) error {
	if err := file.Validate(); err != nil {
		return err
	}
	return saveEntity(s.db, ctx, file, models.ErrDuplicateFile)
}

// FinalizeFile flips the record to PERMANENT and clears its TTL.
func (s *Store) FinalizeFile(ctx context.Context, fileID string, now time.Time) (*models.File, error) {
	file, err := s.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Deleted() {
		return nil, models.ErrFileNotFound
	}
	file.Finalize(now)
	if err := s.UpdateFile(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// SoftDeleteFile stamps deleted_at and the reason. Physical bytes are the
// garbage collector's concern.
func (s *Store) SoftDeleteFile(ctx context.Context, fileID, reason string, now time.Time) (*models.File, error) {
	file, err := s.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Deleted() {
		return file, nil
	}
	file.DeletedAt = &now
	file.DeletionReason = reason
	if err := saveEntity(s.db, ctx, file, models.ErrDuplicateFile); err != nil {
		return nil, err
	}
	return file, nil
}
