package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artstore/artstore/internal/logger"
)

// SnapshotTTL bounds how long a mirrored snapshot may serve late joiners.
// After an hour without a refresh the topology is considered stale and
// subscribers wait for the next publication instead.
const SnapshotTTL = time.Hour

// Publisher emits topology snapshots: version from INCR, mirror into the
// snapshot key, fan-out on the discovery channel.
//
// The admin module publishes on every storage-element mutation and on a
// periodic heartbeat.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a topology publisher.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish builds and emits a snapshot of the given elements. The action tag
// names what triggered it ("created", "updated", "deleted", "heartbeat").
//
// Versioning is strictly monotonic via INCR, so concurrent publishers can
// never emit the same version and subscribers can order snapshots without
// clocks.
func (p *Publisher) Publish(ctx context.Context, elements []ElementInfo, action string) (*TopologySnapshot, error) {
	version, err := p.client.Incr(ctx, TopologyVersionKey).Result()
	if err != nil {
		return nil, fmt.Errorf("allocate topology version: %w", err)
	}

	snapshot := &TopologySnapshot{
		Version:         version,
		Timestamp:       time.Now().UTC(),
		Action:          action,
		Count:           len(elements),
		StorageElements: elements,
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode topology snapshot: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, SnapshotKey, data, SnapshotTTL)
	pipe.Publish(ctx, DiscoveryChannel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("publish topology snapshot v%d: %w", version, err)
	}

	logger.DebugCtx(ctx, "topology snapshot published",
		"version", version, "action", action, "count", snapshot.Count)
	return snapshot, nil
}

// SnapshotHandler observes applied snapshots. Handlers run on the
// subscriber goroutine and must not block.
type SnapshotHandler func(snapshot TopologySnapshot)

// Subscriber tracks the live topology for a service.
//
// Call Hydrate once to seed from the mirrored snapshot key, then Run to
// follow the discovery channel. Snapshots whose version is not strictly
// newer than the held one are ignored, which makes replays and
// out-of-order delivery harmless.
type Subscriber struct {
	client  *redis.Client
	handler SnapshotHandler

	mu       sync.RWMutex
	version  int64
	elements map[string]ElementInfo
}

// NewSubscriber creates a topology subscriber. handler may be nil.
func NewSubscriber(client *redis.Client, handler SnapshotHandler) *Subscriber {
	return &Subscriber{
		client:   client,
		handler:  handler,
		elements: make(map[string]ElementInfo),
	}
}

// Hydrate seeds the subscriber from the mirrored snapshot key. A missing
// key is not an error; the subscriber starts empty and catches up on the
// first publication.
func (s *Subscriber) Hydrate(ctx context.Context) error {
	data, err := s.client.Get(ctx, SnapshotKey).Bytes()
	if err == redis.Nil {
		logger.DebugCtx(ctx, "no topology snapshot to hydrate from")
		return nil
	}
	if err != nil {
		return fmt.Errorf("hydrate topology: %w", err)
	}

	var snapshot TopologySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("hydrate topology: decode snapshot: %w", err)
	}
	s.apply(snapshot)
	return nil
}

// Run subscribes to the discovery channel and applies snapshots until the
// context is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, DiscoveryChannel)
	defer func() { _ = pubsub.Close() }()

	// Fail fast if the subscription could not be established.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", DiscoveryChannel, err)
	}

	logger.InfoCtx(ctx, "topology subscription started", "channel", DiscoveryChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var snapshot TopologySnapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err != nil {
				logger.WarnCtx(ctx, "dropping malformed topology snapshot", logger.Err(err))
				continue
			}
			s.apply(snapshot)
		}
	}
}

// apply installs a snapshot if it is strictly newer than the held one.
func (s *Subscriber) apply(snapshot TopologySnapshot) {
	s.mu.Lock()
	if snapshot.Version <= s.version {
		held := s.version
		s.mu.Unlock()
		logger.Debug("ignoring stale topology snapshot",
			"version", snapshot.Version, "held_version", held)
		return
	}

	s.version = snapshot.Version
	s.elements = make(map[string]ElementInfo, len(snapshot.StorageElements))
	for _, element := range snapshot.StorageElements {
		s.elements[element.ElementID] = element
	}
	handler := s.handler
	s.mu.Unlock()

	logger.Debug("topology snapshot applied",
		"version", snapshot.Version, "count", snapshot.Count, "action", snapshot.Action)

	if handler != nil {
		handler(snapshot)
	}
}

// Version returns the version of the held snapshot, 0 before the first one.
func (s *Subscriber) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Element returns the held info for one element.
func (s *Subscriber) Element(elementID string) (ElementInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.elements[elementID]
	return info, ok
}

// Elements returns a copy of the held element set.
func (s *Subscriber) Elements() []ElementInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ElementInfo, 0, len(s.elements))
	for _, info := range s.elements {
		out = append(out, info)
	}
	return out
}
