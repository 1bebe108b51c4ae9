package keys

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/auth"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestGenerateProducesParseableKeyPair(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC().Truncate(time.Second)

	key, err := Generate(now, 25*time.Hour, 1024)
	require.NoError(t, err)

	assert.NotEmpty(t, key.Version)
	assert.True(t, key.IsActive)
	assert.Equal(t, now.Add(25*time.Hour), key.ExpiresAt)

	private, err := key.PrivateKey()
	require.NoError(t, err)
	public, err := key.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, private.PublicKey.N, public.N)
}

func TestProviderServesNewestActiveKey(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	older, err := Generate(now.Add(-2*time.Hour), 25*time.Hour, 1024)
	require.NoError(t, err)
	require.NoError(t, st.CreateJWTKey(ctx, older))
	newer, err := Generate(now, 25*time.Hour, 1024)
	require.NoError(t, err)
	require.NoError(t, st.CreateJWTKey(ctx, newer))

	provider := NewProvider(st, time.Minute)

	signing, err := provider.SigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.Version, signing.Version)

	publics, err := provider.PublicKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, publics, 2)
	assert.Contains(t, publics, older.Version)
	assert.Contains(t, publics, newer.Version)
}

func TestProviderEmptyTable(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	provider := NewProvider(st, time.Minute)

	_, err := provider.SigningKey(ctx)
	require.ErrorIs(t, err, auth.ErrNoSigningKey)

	_, err = provider.PublicKeys(ctx)
	require.ErrorIs(t, err, auth.ErrNoPublicKeys)
}

func TestProviderCachesUntilInvalidated(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := Generate(now.Add(-time.Hour), 25*time.Hour, 1024)
	require.NoError(t, err)
	require.NoError(t, st.CreateJWTKey(ctx, first))

	provider := NewProvider(st, time.Hour)
	signing, err := provider.SigningKey(ctx)
	require.NoError(t, err)
	require.Equal(t, first.Version, signing.Version)

	// A key added behind the provider's back is not visible until the
	// cache is dropped.
	second, err := Generate(now, 25*time.Hour, 1024)
	require.NoError(t, err)
	require.NoError(t, st.CreateJWTKey(ctx, second))

	signing, err = provider.SigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Version, signing.Version)

	provider.Invalidate()
	signing, err = provider.SigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Version, signing.Version)
}
