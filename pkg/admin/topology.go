// Package admin wires the admin module's long-running services: topology
// publication and first-run bootstrap. The HTTP surface lives in admin/api,
// persistence in admin/store.
package admin

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/registry"
)

// Topology actions tagged onto published snapshots.
const (
	ActionHeartbeat      = "heartbeat"
	ActionElementCreated = "element_created"
	ActionElementUpdated = "element_updated"
	ActionElementDeleted = "element_deleted"
	ActionModeChanged    = "mode_changed"
)

// TopologyConfig tunes the publisher.
type TopologyConfig struct {
	// HeartbeatInterval is how often the full snapshot is republished
	// without a triggering mutation. Default: 30s.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
}

// ApplyDefaults fills zero fields with production defaults.
func (c *TopologyConfig) ApplyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
}

// Topology publishes the storage-element snapshot on registry mutations and
// on a heartbeat. Before each publish it folds the elements' self-reported
// Redis state back into the database rows, so the snapshot carries live
// capacity and health.
type Topology struct {
	store     *store.Store
	publisher *registry.Publisher
	elements  *registry.ElementRegistry
	config    TopologyConfig
	now       func() time.Time
}

// NewTopology creates the publisher over the admin store and a Redis client.
func NewTopology(st *store.Store, client *redis.Client, config TopologyConfig) *Topology {
	config.ApplyDefaults()
	return &Topology{
		store:     st,
		publisher: registry.NewPublisher(client),
		elements:  registry.NewElementRegistry(client),
		config:    config,
		now:       time.Now,
	}
}

// Publish assembles the live element set from the database and broadcasts
// it with the given action tag.
func (t *Topology) Publish(ctx context.Context, action string) error {
	if err := t.syncHealth(ctx); err != nil {
		logger.WarnCtx(ctx, "element health sync failed, publishing stale state", logger.Err(err))
	}

	rows, err := t.store.ListStorageElements(ctx, false)
	if err != nil {
		return err
	}
	infos := make([]registry.ElementInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, row.Info())
	}

	snapshot, err := t.publisher.Publish(ctx, infos, action)
	if err != nil {
		return err
	}
	logger.InfoCtx(ctx, "topology published",
		"action", action,
		"version", snapshot.Version,
		"elements", snapshot.Count,
	)
	return nil
}

// Run heartbeats the snapshot until the context is cancelled. Mutation
// publishes happen inline in the API handlers; this loop only covers drift.
func (t *Topology) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		if err := t.Publish(ctx, ActionHeartbeat); err != nil {
			logger.WarnCtx(ctx, "topology heartbeat failed", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// syncHealth copies each element's self-reported hash into its database
// row. Elements missing from Redis (hash expired) are marked OFFLINE.
func (t *Topology) syncHealth(ctx context.Context) error {
	live, err := t.elements.List(ctx)
	if err != nil {
		return err
	}
	reported := make(map[string]registry.ElementInfo, len(live))
	for _, info := range live {
		reported[info.ElementID] = info
	}

	rows, err := t.store.ListStorageElements(ctx, false)
	if err != nil {
		return err
	}
	now := t.now()
	for _, row := range rows {
		info, ok := reported[row.ElementID]
		if !ok {
			if row.Status == registry.StatusOffline {
				continue
			}
			offline := registry.ElementInfo{
				Status:        registry.StatusOffline,
				CapacityBytes: row.CapacityBytes,
				UsedBytes:     row.UsedBytes,
				FileCount:     row.FileCount,
			}
			if err := t.store.UpdateElementHealth(ctx, row.ElementID, offline, now); err != nil {
				logger.WarnCtx(ctx, "failed to mark element offline",
					logger.ElementID(row.ElementID), logger.Err(err))
			}
			continue
		}
		if err := t.store.UpdateElementHealth(ctx, row.ElementID, info, now); err != nil {
			logger.WarnCtx(ctx, "failed to record element health",
				logger.ElementID(row.ElementID), logger.Err(err))
		}
	}
	return nil
}
