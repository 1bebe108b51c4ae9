package store

import (
	"context"

	"github.com/artstore/artstore/pkg/admin/models"
)

// WriteAudit appends one audit entry. Callers treat this as fire and
// forget; a write failure must never fail the operation being audited.
func (s *Store) WriteAudit(ctx context.Context, entry *models.AuditEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// ListAudit returns the most recent entries, newest first, optionally
// filtered by action prefix.
func (s *Store) ListAudit(ctx context.Context, actionPrefix string, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if actionPrefix != "" {
		q = q.Where("action LIKE ?", actionPrefix+"%")
	}
	entries := make([]*models.AuditEntry, 0, limit)
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
