package element

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/element/capacity"
	"github.com/artstore/artstore/pkg/element/store"
	"github.com/artstore/artstore/pkg/registry"
)

// ReporterConfig tunes the health report loop.
type ReporterConfig struct {
	// Interval between reports.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// TTLMultiplier sets the Redis hash TTL to Interval * TTLMultiplier,
	// so a stalled element ages out after missing that many reports.
	TTLMultiplier int `mapstructure:"ttl_multiplier" yaml:"ttl_multiplier"`

	// WALRetention bounds how long terminal WAL entries are kept. Zero
	// disables compaction.
	WALRetention time.Duration `mapstructure:"wal_retention" yaml:"wal_retention"`
}

// ApplyDefaults fills unset fields.
func (c *ReporterConfig) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.TTLMultiplier <= 0 {
		c.TTLMultiplier = 3
	}
}

// Identity is the static slice of an element's registry record. The dynamic
// fields (mode, capacity, status) are sampled per report.
type Identity struct {
	ElementID     string
	Name          string
	APIURL        string
	Priority      uint16
	StorageType   registry.StorageType
	RetentionDays int
}

// Reporter publishes the element's registry hash on a fixed interval and
// deregisters it on shutdown.
type Reporter struct {
	service  *Service
	registry *registry.ElementRegistry
	identity Identity
	config   ReporterConfig

	lastCompact time.Time
}

// NewReporter builds a reporter for one element.
func NewReporter(service *Service, reg *registry.ElementRegistry, identity Identity, config ReporterConfig) *Reporter {
	config.ApplyDefaults()
	return &Reporter{
		service:  service,
		registry: reg,
		identity: identity,
		config:   config,
	}
}

// Snapshot samples the element's current registry record.
func (r *Reporter) Snapshot(ctx context.Context) registry.ElementInfo {
	now := r.service.now().UTC()
	currentMode := r.service.modes.Current()

	info := registry.ElementInfo{
		ElementID:       r.identity.ElementID,
		Name:            r.identity.Name,
		Mode:            currentMode,
		Status:          registry.StatusOnline,
		StorageType:     r.identity.StorageType,
		APIURL:          r.identity.APIURL,
		Priority:        r.identity.Priority,
		RetentionDays:   r.identity.RetentionDays,
		CapacityStatus:  registry.CapacityOK,
		LastHealthCheck: now.Format(time.RFC3339),
	}

	if err := r.service.backend.HealthCheck(ctx); err != nil {
		info.Status = registry.StatusDegraded
		logger.WarnCtx(ctx, "Backend health check failed",
			logger.ElementID(r.identity.ElementID), logger.Err(err))
	}
	if err := r.service.cache.Ping(ctx); err != nil {
		info.Status = registry.StatusDegraded
		logger.WarnCtx(ctx, "Cache database ping failed",
			logger.ElementID(r.identity.ElementID), logger.Err(err))
	}

	usage, err := r.service.backend.Usage(ctx)
	switch {
	case errors.Is(err, store.ErrUnsupported):
		// Object-store backends have no measurable volume. Capacity stays
		// OK and the admin relies on reported used bytes.
	case err != nil:
		info.Status = registry.StatusDegraded
		logger.WarnCtx(ctx, "Disk usage probe failed",
			logger.ElementID(r.identity.ElementID), logger.Err(err))
	default:
		info.CapacityBytes = usage.TotalBytes
		info.UsedBytes = usage.TotalBytes - usage.FreeBytes
		info.CapacityStatus = capacity.Evaluate(currentMode, usage.TotalBytes, info.UsedBytes)
	}

	if count, _, err := r.service.cache.Totals(ctx); err == nil {
		info.FileCount = count
	}
	return info
}

// PublishNow writes one report immediately. Mode changes call this so the
// registry reflects the new mode without waiting a full interval.
func (r *Reporter) PublishNow(ctx context.Context) error {
	info := r.Snapshot(ctx)
	ttl := time.Duration(r.config.TTLMultiplier) * r.config.Interval
	if err := r.registry.Publish(ctx, info, ttl); err != nil {
		return fmt.Errorf("publish element report: %w", err)
	}
	return nil
}

// Run reports on the configured interval until ctx is cancelled, then
// deregisters the element. The first report happens immediately.
func (r *Reporter) Run(ctx context.Context) error {
	if err := r.PublishNow(ctx); err != nil {
		logger.WarnCtx(ctx, "Initial element report failed",
			logger.ElementID(r.identity.ElementID), logger.Err(err))
	}

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.deregister()
			return ctx.Err()
		case <-ticker.C:
			if err := r.PublishNow(ctx); err != nil {
				logger.WarnCtx(ctx, "Element report failed",
					logger.ElementID(r.identity.ElementID), logger.Err(err))
			}
			r.maybeCompact(ctx)
		}
	}
}

// maybeCompact trims terminal WAL entries at most once per hour.
func (r *Reporter) maybeCompact(ctx context.Context) {
	if r.config.WALRetention <= 0 {
		return
	}
	now := r.service.now()
	if now.Sub(r.lastCompact) < time.Hour {
		return
	}
	r.lastCompact = now
	removed, err := r.service.CompactWAL(ctx, r.config.WALRetention)
	if err != nil {
		logger.WarnCtx(ctx, "WAL compaction failed", logger.Err(err))
		return
	}
	if removed > 0 {
		logger.DebugCtx(ctx, "WAL compacted", "removed", removed)
	}
}

// deregister removes the element's registry footprint. Runs under its own
// timeout because the loop context is already cancelled.
func (r *Reporter) deregister() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.registry.Deregister(ctx, r.identity.ElementID); err != nil {
		logger.Warn("Element deregistration failed",
			logger.ElementID(r.identity.ElementID), logger.Err(err))
		return
	}
	logger.Info("Element deregistered", logger.ElementID(r.identity.ElementID))
}
