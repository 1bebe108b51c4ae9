package store

import (
	"context"
	"time"

	"github.com/artstore/artstore/pkg/admin/models"
)

// CreateServiceAccount persists a new account and returns its generated ID.
func (s *Store) CreateServiceAccount(ctx context.Context, account *models.ServiceAccount) (string, error) {
	return createWithID(s.db, ctx, account, account.ID,
		func(a *models.ServiceAccount, id string) { a.ID = id },
		models.ErrDuplicateAccount)
}

// GetServiceAccount returns one account by ID.
func (s *Store) GetServiceAccount(ctx context.Context, id string) (*models.ServiceAccount, error) {
	return getByField[models.ServiceAccount](s.db, ctx, "id", id, models.ErrAccountNotFound)
}

// GetServiceAccountByClientID returns one account by OAuth2 client_id. This
// is the token-endpoint lookup path.
func (s *Store) GetServiceAccountByClientID(ctx context.Context, clientID string) (*models.ServiceAccount, error) {
	return getByField[models.ServiceAccount](s.db, ctx, "client_id", clientID, models.ErrAccountNotFound)
}

// ListServiceAccounts returns all accounts ordered by name.
func (s *Store) ListServiceAccounts(ctx context.Context) ([]*models.ServiceAccount, error) {
	return listAll[models.ServiceAccount](s.db, ctx, "name asc")
}

// UpdateServiceAccount persists changes to an existing account.
func (s *Store) UpdateServiceAccount(ctx context.Context, account *models.ServiceAccount) error {
	return saveEntity(s.db, ctx, account, models.ErrDuplicateAccount)
}

// DeleteServiceAccount marks an account DELETED. System accounts cannot be
// deleted. The row is kept so client_id stays reserved and audit trails
// resolve.
func (s *Store) DeleteServiceAccount(ctx context.Context, id string) error {
	account, err := s.GetServiceAccount(ctx, id)
	if err != nil {
		return err
	}
	if account.IsSystem {
		return models.ErrAccountImmutable
	}
	account.Status = models.AccountDeleted
	return s.UpdateServiceAccount(ctx, account)
}

// TouchServiceAccountUsage stamps last_used_at. Called on every successful
// token issue; failures are ignored by callers.
func (s *Store) TouchServiceAccountUsage(ctx context.Context, clientID string, now time.Time) error {
	return s.db.WithContext(ctx).Model(&models.ServiceAccount{}).
		Where("client_id = ?", clientID).
		Update("last_used_at", now).Error
}
