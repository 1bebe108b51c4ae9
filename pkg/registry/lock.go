package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/artstore/artstore/internal/logger"
)

// releaseScript deletes the lock key only if it still holds our value, so
// a lock that expired and was grabbed by someone else is never released
// out from under them.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// LockOptions tunes a distributed lock.
type LockOptions struct {
	// TTL is how long the lock holds without release. Default: 60s.
	TTL time.Duration

	// Retries is how many times Acquire retries after the first attempt.
	// Default: 3.
	Retries int

	// RetryDelay is the pause between attempts. Default: 1s.
	RetryDelay time.Duration
}

// Lock is a Redis SET NX EX mutual exclusion with owner-checked release.
// Used to serialize JWT key rotation across admin replicas.
type Lock struct {
	client  *redis.Client
	key     string
	options LockOptions
	value   string
}

// NewLock creates a lock on the given key. Zero option fields get defaults.
func NewLock(client *redis.Client, key string, options LockOptions) *Lock {
	if options.TTL == 0 {
		options.TTL = 60 * time.Second
	}
	if options.Retries == 0 {
		options.Retries = 3
	}
	if options.RetryDelay == 0 {
		options.RetryDelay = time.Second
	}
	return &Lock{client: client, key: key, options: options}
}

// Acquire attempts to take the lock, retrying per the options. Returns
// false when every attempt found the lock held; callers are expected to
// skip their critical section in that case, not fail.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	l.value = uuid.NewString()

	attempts := l.options.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		ok, err := l.client.SetNX(ctx, l.key, l.value, l.options.TTL).Result()
		if err != nil {
			return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
		}
		if ok {
			logger.DebugCtx(ctx, "distributed lock acquired",
				"key", l.key, logger.Attempt(attempt))
			return true, nil
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(l.options.RetryDelay):
		}
	}

	logger.DebugCtx(ctx, "distributed lock busy", "key", l.key, "attempts", attempts)
	return false, nil
}

// Release frees the lock if we still own it. Losing ownership (TTL lapsed
// and someone else acquired) is logged, not an error: the critical section
// already ran and the current holder must keep its lock.
func (l *Lock) Release(ctx context.Context) error {
	released, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if released == 0 {
		logger.WarnCtx(ctx, "distributed lock already lost at release", "key", l.key)
	}
	return nil
}
