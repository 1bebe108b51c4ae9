package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/artstore/artstore/pkg/admin/models"
)

// Transaction runs fn against a transaction-bound copy of the store. A
// non-nil error from fn rolls the transaction back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(txdb *gorm.DB) error {
		return fn(&Store{db: txdb, config: s.config})
	})
}

// CreateJWTKey persists a new signing key. The two-active-keys cap is
// enforced here so no caller can slip past it.
func (s *Store) CreateJWTKey(ctx context.Context, key *models.JWTKey) error {
	active, err := s.ActiveJWTKeys(ctx)
	if err != nil {
		return err
	}
	if key.IsActive && len(active) >= 2 {
		return models.ErrTooManyActive
	}
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrDuplicateKey
		}
		return err
	}
	return nil
}

// GetJWTKey returns one key by version.
func (s *Store) GetJWTKey(ctx context.Context, version string) (*models.JWTKey, error) {
	return getByField[models.JWTKey](s.db, ctx, "version", version, models.ErrKeyNotFound)
}

// ActiveJWTKeys returns the active keys, newest first. The first entry is
// the current signer.
func (s *Store) ActiveJWTKeys(ctx context.Context) ([]*models.JWTKey, error) {
	keys := make([]*models.JWTKey, 0, 2)
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at desc").
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// ListJWTKeys returns every key row, newest first. Expired and deactivated
// keys are retained for audit.
func (s *Store) ListJWTKeys(ctx context.Context) ([]*models.JWTKey, error) {
	return listAll[models.JWTKey](s.db, ctx, "created_at desc")
}

// UpdateJWTKey persists changes to an existing key row.
func (s *Store) UpdateJWTKey(ctx context.Context, key *models.JWTKey) error {
	return saveEntity(s.db, ctx, key, models.ErrDuplicateKey)
}

// IncrementRotationCounts bumps rotation_count on all active keys.
func (s *Store) IncrementRotationCounts(ctx context.Context) error {
	return s.db.WithContext(ctx).Model(&models.JWTKey{}).
		Where("is_active = ?", true).
		Update("rotation_count", gorm.Expr("rotation_count + 1")).Error
}

// DeactivateExpiredJWTKeys clears is_active on keys past their expiry. Rows
// are retained.
func (s *Store) DeactivateExpiredJWTKeys(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.JWTKey{}).
		Where("is_active = ? AND expires_at < ?", true, now).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
