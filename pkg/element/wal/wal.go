// Package wal persists the write-ahead log that makes storage element
// mutations atomic and recoverable. Every mutating operation inserts a
// PENDING entry before the first filesystem side effect and reaches a
// terminal status afterwards; entries still non-terminal at startup are
// recovery candidates.
package wal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Operation is the kind of mutation an entry guards.
type Operation string

// Guarded operations.
const (
	OpUpload         Operation = "UPLOAD"
	OpDelete         Operation = "DELETE"
	OpUpdateMetadata Operation = "UPDATE_METADATA"
	OpModeChange     Operation = "MODE_CHANGE"
)

// Status is the lifecycle state of a WAL entry. Transitions are strictly
// ordered: PENDING → IN_PROGRESS → one of COMMITTED, FAILED, ROLLED_BACK.
type Status string

// Entry statuses.
const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCommitted  Status = "COMMITTED"
	StatusFailed     Status = "FAILED"
	StatusRolledBack Status = "ROLLED_BACK"
)

// Terminal reports whether the status ends the entry's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusFailed || s == StatusRolledBack
}

// Sentinel errors.
var (
	// ErrEntryNotFound is returned when no entry has the transaction ID.
	ErrEntryNotFound = errors.New("wal entry not found")

	// ErrStatusConflict is returned when an entry exists but is not in a
	// status the requested transition allows.
	ErrStatusConflict = errors.New("wal entry not in expected status")
)

// Compensation describes how to undo a partially applied operation. Paths
// are backend-relative; recovery deletes them in order.
type Compensation struct {
	DataPath  string   `json:"data_path,omitempty"`
	AttrPath  string   `json:"attr_path,omitempty"`
	TempPaths []string `json:"temp_paths,omitempty"`
}

// Entry is one write-ahead log record.
type Entry struct {
	TransactionID string     `gorm:"primaryKey;size:36" json:"transaction_id"`
	Operation     Operation  `gorm:"column:operation_type;not null;size:32" json:"operation_type"`
	Status        Status     `gorm:"not null;size:16;index" json:"status"`
	Payload       string     `gorm:"type:text" json:"payload,omitempty"`
	Compensation  string     `gorm:"column:compensation_data;type:text" json:"compensation_data,omitempty"`
	SagaID        string     `gorm:"size:36" json:"saga_id,omitempty"`
	ErrorMessage  string     `gorm:"size:1024" json:"error_message,omitempty"`
	StartedAt     time.Time  `gorm:"not null;index" json:"started_at"`
	CommittedAt   *time.Time `json:"committed_at,omitempty"`
	DurationMs    int64      `json:"duration_ms,omitempty"`
}

// TableName returns the table name for WAL entries.
func (Entry) TableName() string {
	return "wal_entries"
}

// CompensationData decodes the entry's compensation document.
func (e *Entry) CompensationData() (Compensation, error) {
	var c Compensation
	if e.Compensation == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(e.Compensation), &c); err != nil {
		return c, fmt.Errorf("decode compensation data: %w", err)
	}
	return c, nil
}

// Store persists WAL entries in a local SQLite database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the WAL database at path.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open wal database: %w", err)
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate wal database: %w", err)
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

// Begin inserts a PENDING entry for the operation. The payload is stored as
// JSON alongside the compensation document so recovery can undo the
// operation without any other state.
func (s *Store) Begin(ctx context.Context, op Operation, payload any, comp Compensation) (*Entry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode wal payload: %w", err)
	}
	compJSON, err := json.Marshal(comp)
	if err != nil {
		return nil, fmt.Errorf("encode compensation data: %w", err)
	}

	entry := &Entry{
		TransactionID: uuid.NewString(),
		Operation:     op,
		Status:        StatusPending,
		Payload:       string(payloadJSON),
		Compensation:  string(compJSON),
		StartedAt:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("insert wal entry: %w", err)
	}
	return entry, nil
}

// MarkInProgress advances a PENDING entry to IN_PROGRESS.
func (s *Store) MarkInProgress(ctx context.Context, transactionID string) error {
	return s.transition(ctx, transactionID, []Status{StatusPending}, map[string]any{
		"status": StatusInProgress,
	})
}

// Commit marks an IN_PROGRESS entry COMMITTED, recording when and how long
// the operation took.
func (s *Store) Commit(ctx context.Context, transactionID string, duration time.Duration) error {
	now := time.Now().UTC()
	return s.transition(ctx, transactionID, []Status{StatusInProgress}, map[string]any{
		"status":       StatusCommitted,
		"committed_at": &now,
		"duration_ms":  duration.Milliseconds(),
	})
}

// Fail marks a non-terminal entry FAILED with the cause.
func (s *Store) Fail(ctx context.Context, transactionID, errorMessage string) error {
	return s.transition(ctx, transactionID, []Status{StatusPending, StatusInProgress}, map[string]any{
		"status":        StatusFailed,
		"error_message": errorMessage,
	})
}

// RollBack marks a non-terminal entry ROLLED_BACK after its compensation
// ran. Recovery uses this for entries it undid.
func (s *Store) RollBack(ctx context.Context, transactionID, errorMessage string) error {
	return s.transition(ctx, transactionID, []Status{StatusPending, StatusInProgress}, map[string]any{
		"status":        StatusRolledBack,
		"error_message": errorMessage,
	})
}

// MarkCommitted marks a non-terminal entry COMMITTED without an operation
// duration. Recovery uses this when it finds the operation actually
// completed before the crash.
func (s *Store) MarkCommitted(ctx context.Context, transactionID string) error {
	now := time.Now().UTC()
	return s.transition(ctx, transactionID, []Status{StatusPending, StatusInProgress}, map[string]any{
		"status":       StatusCommitted,
		"committed_at": &now,
	})
}

// transition performs a guarded status update. The WHERE clause enforces
// the allowed source statuses so concurrent writers cannot skip states.
func (s *Store) transition(ctx context.Context, transactionID string, from []Status, updates map[string]any) error {
	res := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("transaction_id = ? AND status IN ?", transactionID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update wal entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Entry{}).
			Where("transaction_id = ?", transactionID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check wal entry: %w", err)
		}
		if count == 0 {
			return ErrEntryNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

// Get returns the entry with the given transaction ID.
func (s *Store) Get(ctx context.Context, transactionID string) (*Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("get wal entry: %w", err)
	}
	return &entry, nil
}

// NonTerminal returns recovery candidates, oldest first.
func (s *Store) NonTerminal(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusPending, StatusInProgress}).
		Order("started_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list non-terminal wal entries: %w", err)
	}
	return entries, nil
}

// CompactBefore deletes terminal entries started before the cutoff and
// returns how many were removed. Non-terminal entries are never compacted.
func (s *Store) CompactBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("started_at < ? AND status IN ?", cutoff,
			[]Status{StatusCommitted, StatusFailed, StatusRolledBack}).
		Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("compact wal: %w", res.Error)
	}
	return res.RowsAffected, nil
}
