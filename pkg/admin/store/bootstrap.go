package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/auth"
)

const (
	// SystemAdminUsername is the bootstrap operator account.
	SystemAdminUsername = "admin"

	// EnvInitialPassword overrides the generated bootstrap password.
	EnvInitialPassword = "ARTSTORE_ADMIN_INITIAL_PASSWORD"

	bootstrapPasswordLength = 16
)

// EnsureSystemAdmin creates the bootstrap admin user on first start and
// returns its password, which is never recoverable afterwards. When the
// user already exists the password comes back empty.
//
// ARTSTORE_ADMIN_INITIAL_PASSWORD overrides generation; an explicit
// password skips the forced change on first login.
func (s *Store) EnsureSystemAdmin(ctx context.Context) (string, error) {
	_, err := s.GetAdminUserByUsername(ctx, SystemAdminUsername)
	if err == nil {
		return "", nil
	}
	if !errors.Is(err, models.ErrAdminNotFound) {
		return "", err
	}

	password := os.Getenv(EnvInitialPassword)
	fromEnv := password != ""
	if !fromEnv {
		password, err = auth.GeneratePassword(auth.DefaultAdminPolicy(), bootstrapPasswordLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate bootstrap password: %w", err)
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash bootstrap password: %w", err)
	}

	admin := &models.AdminUser{
		Username:           SystemAdminUsername,
		PasswordHash:       hash,
		Role:               auth.RoleSuperAdmin,
		Enabled:            true,
		IsSystem:           true,
		MustChangePassword: !fromEnv,
	}
	if _, err := s.CreateAdminUser(ctx, admin); err != nil {
		return "", fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	return password, nil
}
