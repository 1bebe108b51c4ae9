package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artstore/artstore/pkg/admin/models"
)

func TestServiceAccountCRUD(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	account := &models.ServiceAccount{
		Name:             "ingester-prod",
		ClientID:         "sa_ingester01",
		ClientSecretHash: "$2a$10$fakehash",
		Role:             "SERVICE",
		Status:           models.AccountActive,
		RateLimit:        120,
	}
	id, err := st.CreateServiceAccount(ctx, account)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	dup := &models.ServiceAccount{Name: "other", ClientID: "sa_ingester01", ClientSecretHash: "x"}
	_, err = st.CreateServiceAccount(ctx, dup)
	require.ErrorIs(t, err, models.ErrDuplicateAccount)

	got, err := st.GetServiceAccountByClientID(ctx, "sa_ingester01")
	require.NoError(t, err)
	assert.Equal(t, "ingester-prod", got.Name)
	assert.Equal(t, 120, got.RateLimit)

	_, err = st.GetServiceAccountByClientID(ctx, "sa_unknown")
	require.ErrorIs(t, err, models.ErrAccountNotFound)

	now := time.Now().UTC()
	require.NoError(t, st.TouchServiceAccountUsage(ctx, "sa_ingester01", now))
	touched, err := st.GetServiceAccount(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, touched.LastUsedAt)
}

func TestDeleteServiceAccountKeepsRow(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	account := &models.ServiceAccount{Name: "batch", ClientID: "sa_batch01", ClientSecretHash: "x"}
	id, err := st.CreateServiceAccount(ctx, account)
	require.NoError(t, err)

	require.NoError(t, st.DeleteServiceAccount(ctx, id))

	got, err := st.GetServiceAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.AccountDeleted, got.Status)
	assert.False(t, got.Usable(time.Now()))

	// client_id stays reserved.
	_, err = st.CreateServiceAccount(ctx, &models.ServiceAccount{Name: "batch2", ClientID: "sa_batch01", ClientSecretHash: "y"})
	require.ErrorIs(t, err, models.ErrDuplicateAccount)
}

func TestDeleteServiceAccountRefusesSystem(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	system := &models.ServiceAccount{Name: "bootstrap", ClientID: "sa_system01", ClientSecretHash: "x", IsSystem: true}
	id, err := st.CreateServiceAccount(ctx, system)
	require.NoError(t, err)

	require.ErrorIs(t, st.DeleteServiceAccount(ctx, id), models.ErrAccountImmutable)
}

func TestAdminUserCRUD(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	user := &models.AdminUser{
		Username:     "alice",
		PasswordHash: "$2a$10$fakehash",
		Role:         "ADMIN",
		Enabled:      true,
	}
	id, err := st.CreateAdminUser(ctx, user)
	require.NoError(t, err)

	_, err = st.CreateAdminUser(ctx, &models.AdminUser{Username: "alice", PasswordHash: "y"})
	require.ErrorIs(t, err, models.ErrDuplicateAdmin)

	got, err := st.GetAdminUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	got.FailedLoginCount = 3
	require.NoError(t, st.UpdateAdminUser(ctx, got))
	reloaded, err := st.GetAdminUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.FailedLoginCount)

	require.NoError(t, st.DeleteAdminUser(ctx, id))
	_, err = st.GetAdminUser(ctx, id)
	require.ErrorIs(t, err, models.ErrAdminNotFound)
}

func TestDeleteAdminUserRefusesSystem(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.CreateAdminUser(ctx, &models.AdminUser{Username: "root", PasswordHash: "x", IsSystem: true})
	require.NoError(t, err)
	require.ErrorIs(t, st.DeleteAdminUser(ctx, id), models.ErrAdminUndeletable)
}

func TestJWTKeyActiveCap(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 2 {
		key := &models.JWTKey{
			Version:       string(rune('a'+i)) + "-key",
			PublicKeyPEM:  "pub",
			PrivateKeyPEM: "priv",
			CreatedAt:     now.Add(time.Duration(i) * time.Minute),
			ExpiresAt:     now.Add(25 * time.Hour),
			IsActive:      true,
		}
		require.NoError(t, st.CreateJWTKey(ctx, key))
	}

	third := &models.JWTKey{Version: "c-key", PublicKeyPEM: "pub", PrivateKeyPEM: "priv", ExpiresAt: now.Add(25 * time.Hour), IsActive: true}
	require.ErrorIs(t, st.CreateJWTKey(ctx, third), models.ErrTooManyActive)

	// Deactivating one frees a slot.
	deactivated, err := st.DeactivateExpiredJWTKeys(ctx, now.Add(26*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deactivated)
	require.NoError(t, st.CreateJWTKey(ctx, third))

	active, err := st.ActiveJWTKeys(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "c-key", active[0].Version)
}

func TestAuditTrail(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	entries := []*models.AuditEntry{
		{Actor: "alice", Action: "storage_element.create", Target: "elem-01"},
		{Actor: "alice", Action: "storage_element.delete", Target: "elem-01"},
		{Actor: "sa_ingester01", Action: "file.register", Target: "f-1"},
	}
	for _, e := range entries {
		require.NoError(t, st.WriteAudit(ctx, e))
	}

	all, err := st.ListAudit(ctx, "", 100)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	elementOnly, err := st.ListAudit(ctx, "storage_element.", 100)
	require.NoError(t, err)
	assert.Len(t, elementOnly, 2)
	for _, e := range elementOnly {
		assert.True(t, strings.HasPrefix(e.Action, "storage_element."))
	}
}
