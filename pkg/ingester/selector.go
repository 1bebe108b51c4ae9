// Package ingester routes uploads to storage elements. It keeps no file
// state of its own: the selector reads the live Redis registry, the upload
// handler streams the multipart body straight through to the chosen
// element, and the committed file is registered with the admin module
// afterwards.
package ingester

import (
	"context"
	"errors"
	"fmt"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/element/capacity"
	"github.com/artstore/artstore/pkg/metrics"
	"github.com/artstore/artstore/pkg/registry"
)

// MaxCriticalUpload caps single-file admissions on elements whose capacity
// status is CRITICAL. Small files keep landing on them in priority order;
// bulk uploads move down the list to elements with headroom. 100 MiB.
const MaxCriticalUpload = int64(100) << 20

// ErrNoEligibleElement means no online writable element can take the file.
var ErrNoEligibleElement = errors.New("no storage element can accept the upload")

// Selector picks the storage element for an incoming upload.
//
// Candidates come from the EDIT and RW priority zsets merged into one
// global order (ascending priority, ties lexicographic by element ID).
// The first candidate that passes the live checks wins: mode still
// writable, status ONLINE, capacity not FULL, and enough free space that
// the declared size would not push it below its FULL floor. Lower-priority
// elements stay untouched until everything before them fills, which is the
// sequential-fill behavior operators rely on when draining hardware.
type Selector struct {
	elements *registry.ElementRegistry
	metrics  *metrics.SelectorMetrics
}

// NewSelector returns a selector over the shared registry view.
func NewSelector(elements *registry.ElementRegistry, m *metrics.SelectorMetrics) *Selector {
	return &Selector{elements: elements, metrics: m}
}

// Select returns the target element for an upload of the declared size.
// The decision is final: if the element fails mid-stream the caller
// surfaces the failure instead of retrying elsewhere, because the request
// body has already been consumed.
func (s *Selector) Select(ctx context.Context, sizeBytes int64) (*registry.ElementInfo, error) {
	ids, err := s.elements.SelectionOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("read selection order: %w", err)
	}

	for _, id := range ids {
		info, err := s.elements.Get(ctx, id)
		if err != nil {
			if errors.Is(err, registry.ErrElementNotFound) {
				// Hash TTL lapsed after the zset read; the element is gone.
				continue
			}
			return nil, err
		}
		if !info.Eligible() {
			continue
		}
		if info.CapacityStatus == registry.CapacityCritical && sizeBytes > MaxCriticalUpload {
			s.metrics.Observe(metrics.SelectorFileTooLarge)
			logger.DebugCtx(ctx, "skipping element under capacity pressure",
				logger.ElementID(id),
				logger.Size(sizeBytes))
			continue
		}
		if !admits(info, sizeBytes) {
			s.metrics.Observe(metrics.SelectorWouldFill)
			logger.DebugCtx(ctx, "skipping element the upload would fill",
				logger.ElementID(id),
				logger.Size(sizeBytes))
			continue
		}
		s.metrics.Observe(metrics.SelectorSelected)
		return info, nil
	}

	s.metrics.Observe(metrics.SelectorNoEligible)
	return nil, ErrNoEligibleElement
}

// admits reports whether the upload leaves the element above its FULL
// floor. The registry numbers lag real disk usage by one health-report
// interval, so this is a pre-flight estimate; the element itself enforces
// the hard limit at commit time.
func admits(info *registry.ElementInfo, sizeBytes int64) bool {
	free := info.CapacityBytes - info.UsedBytes - sizeBytes
	return free >= capacity.FullFloor(info.Mode, info.CapacityBytes)
}
