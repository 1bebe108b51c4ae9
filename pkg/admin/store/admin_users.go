package store

import (
	"context"

	"github.com/artstore/artstore/pkg/admin/models"
)

// CreateAdminUser persists a new admin user and returns its generated ID.
func (s *Store) CreateAdminUser(ctx context.Context, user *models.AdminUser) (string, error) {
	return createWithID(s.db, ctx, user, user.ID,
		func(u *models.AdminUser, id string) { u.ID = id },
		models.ErrDuplicateAdmin)
}

// GetAdminUser returns one admin user by ID.
func (s *Store) GetAdminUser(ctx context.Context, id string) (*models.AdminUser, error) {
	return getByField[models.AdminUser](s.db, ctx, "id", id, models.ErrAdminNotFound)
}

// GetAdminUserByUsername returns one admin user by username. This is the
// login lookup path.
func (s *Store) GetAdminUserByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	return getByField[models.AdminUser](s.db, ctx, "username", username, models.ErrAdminNotFound)
}

// ListAdminUsers returns all admin users ordered by username.
func (s *Store) ListAdminUsers(ctx context.Context) ([]*models.AdminUser, error) {
	return listAll[models.AdminUser](s.db, ctx, "username asc")
}

// UpdateAdminUser persists changes to an existing admin user, including
// login bookkeeping and lockout state.
func (s *Store) UpdateAdminUser(ctx context.Context, user *models.AdminUser) error {
	return saveEntity(s.db, ctx, user, models.ErrDuplicateAdmin)
}

// DeleteAdminUser removes an admin user. System users cannot be deleted.
func (s *Store) DeleteAdminUser(ctx context.Context, id string) error {
	user, err := s.GetAdminUser(ctx, id)
	if err != nil {
		return err
	}
	if user.IsSystem {
		return models.ErrAdminUndeletable
	}
	return deleteByField[models.AdminUser](s.db, ctx, "id", id, models.ErrAdminNotFound)
}
