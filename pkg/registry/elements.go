package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrElementNotFound means the element has no live hash in Redis, either
// because it never reported or because its TTL lapsed.
var ErrElementNotFound = errors.New("storage element not found in registry")

// ElementRegistry reads and writes the live per-element hashes and the
// selection zsets.
//
// Writers are the element health reporters (one per element); readers are
// the ingester's selector and the admin's topology publisher.
type ElementRegistry struct {
	client *redis.Client
}

// NewElementRegistry creates a registry view over the given client.
func NewElementRegistry(client *redis.Client) *ElementRegistry {
	return &ElementRegistry{client: client}
}

// Publish upserts the element hash with the given TTL and maintains the
// element's membership in the selection zsets.
//
// Membership rule: an element is a zset member only while its mode is
// writable and its capacity status is not FULL. Everything else (RO, AR,
// FULL, any status) is removed from both zsets so the selector never even
// sees it as a candidate.
func (r *ElementRegistry) Publish(ctx context.Context, info ElementInfo, ttl time.Duration) error {
	if info.ElementID == "" {
		return fmt.Errorf("element info missing element_id")
	}

	key := ElementKey(info.ElementID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, info.hashFields())
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}

	selectable := info.Mode.Writable() && info.CapacityStatus != CapacityFull
	switch {
	case selectable && info.Mode == ModeRW:
		pipe.ZAdd(ctx, RWPriorityKey, redis.Z{Score: float64(info.Priority), Member: info.ElementID})
		pipe.ZRem(ctx, EditPriorityKey, info.ElementID)
	case selectable && info.Mode == ModeEdit:
		pipe.ZAdd(ctx, EditPriorityKey, redis.Z{Score: float64(info.Priority), Member: info.ElementID})
		pipe.ZRem(ctx, RWPriorityKey, info.ElementID)
	default:
		pipe.ZRem(ctx, RWPriorityKey, info.ElementID)
		pipe.ZRem(ctx, EditPriorityKey, info.ElementID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish element %s: %w", info.ElementID, err)
	}
	return nil
}

// Deregister removes the element hash and zset memberships. Called on
// graceful shutdown so the element disappears immediately instead of
// lingering until the TTL lapses.
func (r *ElementRegistry) Deregister(ctx context.Context, elementID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, ElementKey(elementID))
	pipe.ZRem(ctx, RWPriorityKey, elementID)
	pipe.ZRem(ctx, EditPriorityKey, elementID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deregister element %s: %w", elementID, err)
	}
	return nil
}

// Get returns the live info for one element.
func (r *ElementRegistry) Get(ctx context.Context, elementID string) (*ElementInfo, error) {
	res := r.client.HGetAll(ctx, ElementKey(elementID))
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("get element %s: %w", elementID, err)
	}
	if len(res.Val()) == 0 {
		return nil, ErrElementNotFound
	}

	var info ElementInfo
	if err := res.Scan(&info); err != nil {
		return nil, fmt.Errorf("decode element %s: %w", elementID, err)
	}
	return &info, nil
}

// List enumerates every live element hash.
func (r *ElementRegistry) List(ctx context.Context) ([]ElementInfo, error) {
	var elements []ElementInfo

	iter := r.client.Scan(ctx, 0, ElementKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		res := r.client.HGetAll(ctx, iter.Val())
		if err := res.Err(); err != nil {
			return nil, fmt.Errorf("list elements: %w", err)
		}
		if len(res.Val()) == 0 {
			// Expired between SCAN and HGETALL.
			continue
		}
		var info ElementInfo
		if err := res.Scan(&info); err != nil {
			return nil, fmt.Errorf("list elements: decode %s: %w", iter.Val(), err)
		}
		elements = append(elements, info)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list elements: %w", err)
	}
	return elements, nil
}

// PriorityOrder returns element IDs for the mode's zset in selection order:
// ascending priority score, ties lexicographic by element ID.
func (r *ElementRegistry) PriorityOrder(ctx context.Context, mode Mode) ([]string, error) {
	key, ok := PriorityKey(mode)
	if !ok {
		return nil, fmt.Errorf("mode %s has no selection order", mode)
	}
	ids, err := r.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("priority order %s: %w", mode, err)
	}
	return ids, nil
}

// SelectionOrder merges the EDIT and RW zsets into one global candidate
// order: ascending priority, ties lexicographic by element ID. An element
// belongs to at most one zset at a time, so the merge never repeats an ID.
func (r *ElementRegistry) SelectionOrder(ctx context.Context) ([]string, error) {
	pipe := r.client.TxPipeline()
	rwCmd := pipe.ZRangeWithScores(ctx, RWPriorityKey, 0, -1)
	editCmd := pipe.ZRangeWithScores(ctx, EditPriorityKey, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("selection order: %w", err)
	}

	rw, edit := rwCmd.Val(), editCmd.Val()
	merged := make([]string, 0, len(rw)+len(edit))
	for len(rw) > 0 || len(edit) > 0 {
		switch {
		case len(edit) == 0:
			merged = append(merged, rw[0].Member.(string))
			rw = rw[1:]
		case len(rw) == 0:
			merged = append(merged, edit[0].Member.(string))
			edit = edit[1:]
		case rw[0].Score < edit[0].Score ||
			(rw[0].Score == edit[0].Score && rw[0].Member.(string) < edit[0].Member.(string)):
			merged = append(merged, rw[0].Member.(string))
			rw = rw[1:]
		default:
			merged = append(merged, edit[0].Member.(string))
			edit = edit[1:]
		}
	}
	return merged, nil
}

// Ping verifies Redis connectivity, for readiness probes.
func (r *ElementRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
