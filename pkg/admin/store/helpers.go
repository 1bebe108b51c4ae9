package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Generic GORM helpers shared by the per-model store files. They operate on
// the raw *gorm.DB and handle context propagation, not-found conversion,
// and unique constraint detection.

// getByField retrieves a single record of type T by matching field=value,
// converting gorm.ErrRecordNotFound to notFoundErr.
func getByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) (*T, error) {
	var result T
	if err := db.WithContext(ctx).Where(field+" = ?", value).First(&result).Error; err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// listAll retrieves all records of type T ordered by the given clause.
// Returns an empty slice (not nil) on success with no records.
func listAll[T any](db *gorm.DB, ctx context.Context, order string) ([]*T, error) {
	results := make([]*T, 0)
	q := db.WithContext(ctx)
	if order != "" {
		q = q.Order(order)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// createWithID generates a UUID for the entity if it has no ID, then
// creates it. Unique constraint violations become dupErr.
func createWithID[T any](db *gorm.DB, ctx context.Context, entity *T, currentID string, idSetter func(*T, string), dupErr error) (string, error) {
	id := currentID
	if id == "" {
		id = uuid.New().String()
		idSetter(entity, id)
	}
	if err := db.WithContext(ctx).Create(entity).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", dupErr
		}
		return "", err
	}
	return id, nil
}

// saveEntity persists all fields of an existing record, converting unique
// constraint violations to dupErr.
func saveEntity[T any](db *gorm.DB, ctx context.Context, entity *T, dupErr error) error {
	if err := db.WithContext(ctx).Save(entity).Error; err != nil {
		if isUniqueConstraintError(err) {
			return dupErr
		}
		return err
	}
	return nil
}

// deleteByField deletes records of type T matching field=value, returning
// notFoundErr if no rows were affected.
func deleteByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) error {
	var entity T
	res := db.WithContext(ctx).Where(field+" = ?", value).Delete(&entity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFoundErr
	}
	return nil
}
