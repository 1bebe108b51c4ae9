// Package cache maintains the storage element's local file index. The
// index is a convenience for lookups and listings; the attribute sidecars
// on the data volume remain the source of truth, and the reconciler can
// rebuild the index from them at any time.
package cache

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/artstore/artstore/pkg/element/attr"
)

// ErrFileNotFound is returned when no cache row matches the file ID.
var ErrFileNotFound = errors.New("file not found in cache")

// FileEntry is one cached file record, mirroring the sidecar document.
type FileEntry struct {
	FileID            string            `gorm:"primaryKey;size:36" json:"file_id"`
	OriginalFilename  string            `gorm:"not null;size:512" json:"original_filename"`
	StorageFilename   string            `gorm:"uniqueIndex;not null;size:512" json:"storage_filename"`
	StoragePath       string            `gorm:"not null;size:64" json:"storage_path"`
	FileSize          int64             `gorm:"not null" json:"file_size"`
	ContentType       string            `gorm:"size:255" json:"content_type"`
	Checksum          string            `gorm:"not null;size:64" json:"checksum"`
	CreatedByID       string            `gorm:"size:64" json:"created_by_id"`
	CreatedByUsername string            `gorm:"size:64;index" json:"created_by_username"`
	Description       string            `gorm:"size:1024" json:"description,omitempty"`
	Version           int               `json:"version,omitempty"`
	Tags              []string          `gorm:"serializer:json" json:"tags,omitempty"`
	Metadata          map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null" json:"updated_at"`
	ExpiresAt         *time.Time        `gorm:"index" json:"expires_at,omitempty"`
}

// TableName returns the table name for cached file records.
func (FileEntry) TableName() string {
	return "file_entries"
}

// DataPath returns the backend-relative path of the data file.
func (f *FileEntry) DataPath() string {
	return path.Join(f.StoragePath, f.StorageFilename)
}

// AttrPath returns the backend-relative path of the sidecar.
func (f *FileEntry) AttrPath() string {
	return f.DataPath() + attr.Suffix
}

// Expired reports whether the entry's retention has lapsed.
func (f *FileEntry) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && f.ExpiresAt.Before(now)
}

// FromAttributes builds a cache row from a sidecar document.
func FromAttributes(a *attr.Attributes) *FileEntry {
	return &FileEntry{
		FileID:            a.FileID,
		OriginalFilename:  a.OriginalFilename,
		StorageFilename:   a.StorageFilename,
		StoragePath:       a.StoragePath,
		FileSize:          a.FileSize,
		ContentType:       a.ContentType,
		Checksum:          a.Checksum,
		CreatedByID:       a.CreatedByID,
		CreatedByUsername: a.CreatedByUsername,
		Description:       a.Description,
		Version:           a.Version,
		Tags:              a.Tags,
		Metadata:          a.Metadata,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
		ExpiresAt:         a.ExpiresAt,
	}
}

// Attributes builds the sidecar document for a cache row.
func (f *FileEntry) Attributes() *attr.Attributes {
	return &attr.Attributes{
		SchemaVersion:     attr.SchemaVersion,
		FileID:            f.FileID,
		OriginalFilename:  f.OriginalFilename,
		StorageFilename:   f.StorageFilename,
		StoragePath:       f.StoragePath,
		FileSize:          f.FileSize,
		ContentType:       f.ContentType,
		Checksum:          f.Checksum,
		CreatedByID:       f.CreatedByID,
		CreatedByUsername: f.CreatedByUsername,
		Description:       f.Description,
		Version:           f.Version,
		Tags:              f.Tags,
		Metadata:          f.Metadata,
		CreatedAt:         f.CreatedAt,
		UpdatedAt:         f.UpdatedAt,
		ExpiresAt:         f.ExpiresAt,
	}
}

// Store persists the file index in a local SQLite database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if err := db.AutoMigrate(&FileEntry{}); err != nil {
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the database is reachable, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Upsert inserts or fully replaces the row for the entry's file ID.
func (s *Store) Upsert(ctx context.Context, entry *FileEntry) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Get returns the entry with the given file ID.
func (s *Store) Get(ctx context.Context, fileID string) (*FileEntry, error) {
	var entry FileEntry
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return &entry, nil
}

// Delete removes the entry with the given file ID.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	res := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Delete(&FileEntry{})
	if res.Error != nil {
		return fmt.Errorf("delete cache entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrFileNotFound
	}
	return nil
}

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	CreatedBy     string
	ContentType   string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
	Offset        int
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// List returns matching entries newest first, plus the total match count
// before pagination.
func (s *Store) List(ctx context.Context, filter Filter) ([]FileEntry, int64, error) {
	query := s.db.WithContext(ctx).Model(&FileEntry{})
	if filter.CreatedBy != "" {
		query = query.Where("created_by_username = ?", filter.CreatedBy)
	}
	if filter.ContentType != "" {
		query = query.Where("content_type = ?", filter.ContentType)
	}
	if !filter.CreatedAfter.IsZero() {
		query = query.Where("created_at >= ?", filter.CreatedAfter)
	}
	if !filter.CreatedBefore.IsZero() {
		query = query.Where("created_at < ?", filter.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count cache entries: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var entries []FileEntry
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list cache entries: %w", err)
	}
	return entries, total, nil
}

// All returns every entry, for reconciliation scans.
func (s *Store) All(ctx context.Context) ([]FileEntry, error) {
	var entries []FileEntry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("scan cache entries: %w", err)
	}
	return entries, nil
}

// Totals returns the live file count and summed bytes.
func (s *Store) Totals(ctx context.Context) (fileCount, usedBytes int64, err error) {
	var row struct {
		Count int64
		Used  int64
	}
	err = s.db.WithContext(ctx).Model(&FileEntry{}).
		Select("COUNT(*) AS count, COALESCE(SUM(file_size), 0) AS used").
		Scan(&row).Error
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate cache totals: %w", err)
	}
	return row.Count, row.Used, nil
}

// Truncate removes every entry, for full rebuilds. Returns how many rows
// were dropped.
func (s *Store) Truncate(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&FileEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("truncate cache: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ExpiredIDs returns the file IDs whose retention lapsed before now,
// oldest first.
func (s *Store) ExpiredIDs(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&FileEntry{}).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Order("expires_at ASC").
		Pluck("file_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list expired cache entries: %w", err)
	}
	return ids, nil
}

// DeleteByIDs removes the given file IDs and returns how many rows went.
func (s *Store) DeleteByIDs(ctx context.Context, fileIDs []string) (int64, error) {
	if len(fileIDs) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("file_id IN ?", fileIDs).
		Delete(&FileEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete cache entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}
