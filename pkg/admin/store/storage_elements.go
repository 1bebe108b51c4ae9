package store

import (
	"context"
	"time"

	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/registry"
)

// CreateStorageElement persists a new element record and returns its ID.
func (s *Store) CreateStorageElement(ctx context.Context, element *models.StorageElement) (string, error) {
	return createWithID(s.db, ctx, element, element.ID,
		func(e *models.StorageElement, id string) { e.ID = id },
		models.ErrDuplicateElement)
}

// GetStorageElement returns one element by its immutable element_id tag.
func (s *Store) GetStorageElement(ctx context.Context, elementID string) (*models.StorageElement, error) {
	return getByField[models.StorageElement](s.db, ctx, "element_id", elementID, models.ErrElementNotFound)
}

// ListStorageElements returns every element, including logically deleted
// ones when includeDeleted is set. Ordered by priority then element_id so
// the listing matches selection order.
func (s *Store) ListStorageElements(ctx context.Context, includeDeleted bool) ([]*models.StorageElement, error) {
	results := make([]*models.StorageElement, 0)
	q := s.db.WithContext(ctx).Order("priority asc, element_id asc")
	if !includeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateStorageElement saves all fields of an existing record.
func (s *Store) UpdateStorageElement(ctx context.Context, element *models.StorageElement) error {
	return saveEntity(s.db, ctx, element, models.ErrDuplicateElement)
}

// DeleteStorageElement marks the element logically deleted. The row stays
// so historical file records keep their element reference.
func (s *Store) DeleteStorageElement(ctx context.Context, elementID string, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.StorageElement{}).
		Where("element_id = ? AND deleted_at IS NULL", elementID).
		Update("deleted_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrElementNotFound
	}
	return nil
}

// UpdateElementHealth refreshes the operational fields reported over Redis.
func (s *Store) UpdateElementHealth(ctx context.Context, elementID string, info registry.ElementInfo, checkedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.StorageElement{}).
		Where("element_id = ?", elementID).
		Updates(map[string]any{
			"status":            info.Status,
			"capacity_bytes":    info.CapacityBytes,
			"used_bytes":        info.UsedBytes,
			"file_count":        info.FileCount,
			"last_health_check": checkedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrElementNotFound
	}
	return nil
}
