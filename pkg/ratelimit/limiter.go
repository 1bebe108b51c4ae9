// Package ratelimit enforces per-client sliding-window rate limits backed
// by Redis sorted sets. The window state lives under rate_limit:{client_id}
// so every service instance sees the same budget. Redis outages fail open:
// limiting is protection, not an availability dependency.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces the per-client sorted sets.
const KeyPrefix = "rate_limit:"

// Key returns the sorted-set key for a client.
func Key(clientID string) string {
	return KeyPrefix + clientID
}

// Config controls the sliding window.
type Config struct {
	// Window is the period a client's rate_limit claim applies to.
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

// ApplyDefaults fills in zero values. Limits are requests per minute.
func (c *Config) ApplyDefaults() {
	if c.Window == 0 {
		c.Window = time.Minute
	}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter admits or rejects requests against a client's window.
type Limiter struct {
	client *redis.Client
	config Config
}

// NewLimiter returns a limiter over the shared Redis instance.
func NewLimiter(client *redis.Client, config Config) *Limiter {
	config.ApplyDefaults()
	return &Limiter{client: client, config: config}
}

// Allow records one request attempt for the client and reports whether it
// fits the limit. Expired entries are pruned first; a rejected request is
// not recorded, so hammering a closed window does not extend it.
func (l *Limiter) Allow(ctx context.Context, clientID string, limit int) (Decision, error) {
	if clientID == "" || limit <= 0 {
		return Decision{Allowed: true, Limit: limit}, nil
	}

	key := Key(clientID)
	now := time.Now()
	cutoff := strconv.FormatInt(now.Add(-l.config.Window).UnixMilli(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("failed to read window for %s: %w", clientID, err)
	}

	count := countCmd.Val()
	if count >= int64(limit) {
		retryAfter, err := l.retryAfter(ctx, key)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Limit: limit, RetryAfter: retryAfter}, nil
	}

	pipe = l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, l.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("failed to record request for %s: %w", clientID, err)
	}

	return Decision{Allowed: true, Limit: limit, Remaining: int64(limit) - count - 1}, nil
}

// retryAfter derives the wait from the oldest surviving entry: the window
// reopens when that entry ages out.
func (l *Limiter) retryAfter(ctx context.Context, key string) (time.Duration, error) {
	oldest, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read oldest window entry: %w", err)
	}
	if len(oldest) == 0 {
		return l.config.Window, nil
	}
	reopensAt := time.UnixMilli(int64(oldest[0].Score)).Add(l.config.Window)
	retryAfter := time.Until(reopensAt)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return retryAfter, nil
}
