package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastLockOptions() LockOptions {
	return LockOptions{TTL: time.Minute, Retries: 1, RetryDelay: 10 * time.Millisecond}
}

func TestLock_AcquireRelease(t *testing.T) {
	t.Parallel()
	mr, client := newTestRedis(t)
	ctx := context.Background()

	lock := NewLock(client, RotationLockKey, fastLockOptions())
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(RotationLockKey))

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists(RotationLockKey))
}

func TestLock_BusyAfterRetries(t *testing.T) {
	t.Parallel()
	_, client := newTestRedis(t)
	ctx := context.Background()

	first := NewLock(client, RotationLockKey, fastLockOptions())
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	second := NewLock(client, RotationLockKey, fastLockOptions())
	ok, err = second.Acquire(ctx)
	require.NoError(t, err, "a held lock is not an error")
	assert.False(t, ok)

	// Releasing the holder frees it for the next taker.
	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ReleaseOnlyRemovesOwnValue(t *testing.T) {
	t.Parallel()
	mr, client := newTestRedis(t)
	ctx := context.Background()

	first := NewLock(client, RotationLockKey, LockOptions{TTL: time.Second, Retries: 0})
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// TTL lapses and another worker takes over.
	mr.FastForward(2 * time.Second)
	second := NewLock(client, RotationLockKey, fastLockOptions())
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// The stale holder's release must not evict the new owner.
	require.NoError(t, first.Release(ctx))
	assert.True(t, mr.Exists(RotationLockKey))

	require.NoError(t, second.Release(ctx))
	assert.False(t, mr.Exists(RotationLockKey))
}

func TestLock_AcquireHonorsContext(t *testing.T) {
	t.Parallel()
	_, client := newTestRedis(t)
	ctx := context.Background()

	holder := NewLock(client, RotationLockKey, fastLockOptions())
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	waiter := NewLock(client, RotationLockKey, LockOptions{TTL: time.Minute, Retries: 5, RetryDelay: time.Second})
	ok, err = waiter.Acquire(cancelled)
	assert.False(t, ok)
	require.ErrorIs(t, err, context.Canceled)
}
