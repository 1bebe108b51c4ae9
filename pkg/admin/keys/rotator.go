package keys

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/metrics"
	"github.com/artstore/artstore/pkg/registry"
)

// RotatorConfig tunes the rotation schedule.
type RotatorConfig struct {
	// Interval is how often the rotator checks whether rotation is due.
	// Default: 5m.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// RotateBefore rotates when the newest active key expires within this
	// window. Default: 1h.
	RotateBefore time.Duration `mapstructure:"rotate_before" yaml:"rotate_before"`

	// Validity is the lifetime of newly minted keys: the 24h signing window
	// plus the 1h verification overlap. Default: 25h.
	Validity time.Duration `mapstructure:"validity" yaml:"validity"`

	// KeyBits is the RSA modulus size. Default: 2048.
	KeyBits int `mapstructure:"key_bits" yaml:"key_bits"`
}

// ApplyDefaults fills zero fields with production defaults.
func (c *RotatorConfig) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.RotateBefore <= 0 {
		c.RotateBefore = time.Hour
	}
	if c.Validity <= 0 {
		c.Validity = 25 * time.Hour
	}
	if c.KeyBits <= 0 {
		c.KeyBits = DefaultKeyBits
	}
}

// RotatorOptions carries the optional rotator collaborators.
type RotatorOptions struct {
	// Provider, when set, has its cache invalidated after each rotation.
	Provider *Provider

	// Metrics records rotation outcomes. Nil disables instrumentation.
	Metrics *metrics.RotationMetrics
}

// Rotator replaces the signing key before it expires. Replicas coordinate
// through a Redis lock so exactly one performs each rotation; the others
// skip silently.
type Rotator struct {
	store    *store.Store
	client   *redis.Client
	config   RotatorConfig
	provider *Provider
	metrics  *metrics.RotationMetrics

	now func() time.Time
}

// NewRotator creates a rotator over the key table.
func NewRotator(st *store.Store, client *redis.Client, config RotatorConfig, opts RotatorOptions) *Rotator {
	config.ApplyDefaults()
	return &Rotator{
		store:    st,
		client:   client,
		config:   config,
		provider: opts.Provider,
		metrics:  opts.Metrics,
		now:      time.Now,
	}
}

// EnsureKey guarantees at least one active signing key exists, generating
// the first pair on an empty database. Called once at startup before the
// token endpoints go live.
func (r *Rotator) EnsureKey(ctx context.Context) error {
	active, err := r.store.ActiveJWTKeys(ctx)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return nil
	}
	if _, err := r.RotateIfDue(ctx); err != nil {
		return err
	}

	// A lost lock race means another replica is bootstrapping; verify it
	// actually produced a key.
	active, err = r.store.ActiveJWTKeys(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return models.ErrNoActiveKey
	}
	return nil
}

// Run checks rotation on the configured interval until the context is
// cancelled. The first check happens immediately.
func (r *Rotator) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RotateIfDue(ctx); err != nil {
			logger.ErrorCtx(ctx, "jwt key rotation failed", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RotateIfDue acquires the rotation lock and, when the newest active key
// expires within the RotateBefore window (or no key exists), commits a new
// key in one transaction: deactivate expired keys, bump rotation_count on
// survivors, insert the replacement. Returns whether a rotation happened.
func (r *Rotator) RotateIfDue(ctx context.Context) (bool, error) {
	return r.rotate(ctx, false)
}

// ForceRotate rotates regardless of the remaining key lifetime. Used by the
// rotate endpoint; concurrent callers race for the lock and the losers
// return without mutating anything.
func (r *Rotator) ForceRotate(ctx context.Context) (bool, error) {
	return r.rotate(ctx, true)
}

func (r *Rotator) rotate(ctx context.Context, force bool) (bool, error) {
	lock := registry.NewLock(r.client, registry.RotationLockKey, registry.LockOptions{})
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if !acquired {
		r.metrics.Observe(metrics.RotationSkipped, 0)
		return false, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.WarnCtx(ctx, "rotation lock release failed", logger.Err(err))
		}
	}()

	start := r.now()
	var created *models.JWTKey
	err = r.store.Transaction(ctx, func(tx *store.Store) error {
		now := r.now()
		if _, err := tx.DeactivateExpiredJWTKeys(ctx, now); err != nil {
			return err
		}
		active, err := tx.ActiveJWTKeys(ctx)
		if err != nil {
			return err
		}
		if !force && len(active) > 0 && active[0].ExpiresAt.After(now.Add(r.config.RotateBefore)) {
			return models.ErrRotationSkipped
		}

		// Forced rotation with two live keys retires the predecessor to
		// hold the two-active invariant.
		if len(active) >= 2 {
			oldest := active[len(active)-1]
			oldest.IsActive = false
			if err := tx.UpdateJWTKey(ctx, oldest); err != nil {
				return err
			}
		}

		if err := tx.IncrementRotationCounts(ctx); err != nil {
			return err
		}
		key, err := Generate(now, r.config.Validity, r.config.KeyBits)
		if err != nil {
			return err
		}
		if err := tx.CreateJWTKey(ctx, key); err != nil {
			return err
		}
		created = key
		return nil
	})
	duration := r.now().Sub(start)

	switch {
	case errors.Is(err, models.ErrRotationSkipped):
		return false, nil
	case err != nil:
		r.metrics.Observe(metrics.RotationFailed, duration)
		return false, err
	}

	if r.provider != nil {
		r.provider.Invalidate()
	}
	r.metrics.Observe(metrics.RotationRotated, duration)
	logger.InfoCtx(ctx, "jwt signing key rotated",
		"version", created.Version,
		"expires_at", created.ExpiresAt.Format(time.RFC3339),
		logger.DurationMs(float64(duration.Milliseconds())),
	)
	return true, nil
}
