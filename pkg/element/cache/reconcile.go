package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/element/attr"
	"github.com/artstore/artstore/pkg/element/store"
)

// ErrReconcileBusy is returned when another reconciliation operation holds
// the lock. The HTTP layer maps it to 409.
var ErrReconcileBusy = errors.New("cache reconciliation already running")

// opKind orders reconciliation operations by priority. A running cleanup
// yields to an incoming rebuild; everything else is first come, first
// served.
type opKind int

const (
	opNone opKind = iota
	opCleanup
	opCheck
	opIncremental
	opFull
)

func (k opKind) String() string {
	switch k {
	case opCleanup:
		return "cleanup"
	case opCheck:
		return "check"
	case opIncremental:
		return "incremental"
	case opFull:
		return "full"
	default:
		return "none"
	}
}

// Report is the consistency-check result. InconsistencyPct measures drift
// against the union of files known to either side.
type Report struct {
	AttrFiles        int     `json:"attr_files"`
	CacheRows        int     `json:"cache_rows"`
	OrphanCache      int     `json:"orphan_cache"`
	OrphanAttr       int     `json:"orphan_attr"`
	ExpiredCache     int     `json:"expired_cache"`
	InconsistencyPct float64 `json:"inconsistency_pct"`
}

// RebuildResult summarizes a rebuild run.
type RebuildResult struct {
	Scanned    int   `json:"scanned"`
	Inserted   int   `json:"inserted"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Removed    int64 `json:"removed,omitempty"`
	DurationMs int64 `json:"duration_ms"`
}

// CleanupResult summarizes an expired-entry cleanup.
type CleanupResult struct {
	Removed int64 `json:"removed"`
	Yielded bool  `json:"yielded,omitempty"`
}

// Reconciler runs the cache-vs-sidecar consistency operations. Operations
// are exclusive: one at a time per element.
type Reconciler struct {
	store   *Store
	backend store.Backend

	// CleanupBatch is how many expired rows are deleted per round.
	CleanupBatch int

	// YieldGrace is how long a rebuild waits for a running cleanup to
	// notice the yield request before giving up with ErrReconcileBusy.
	YieldGrace time.Duration

	// PollInterval is how often a waiting rebuild rechecks the lock.
	PollInterval time.Duration

	mu        sync.Mutex
	current   opKind
	yieldFlag bool
}

// NewReconciler wires a reconciler over the cache store and data backend.
func NewReconciler(s *Store, backend store.Backend) *Reconciler {
	return &Reconciler{
		store:        s,
		backend:      backend,
		CleanupBatch: 500,
		YieldGrace:   2 * time.Second,
		PollInterval: 25 * time.Millisecond,
	}
}

// acquire takes the reconciliation lock for kind. Rebuilds preempt a
// running cleanup: the cleanup is asked to yield and the rebuild waits up
// to YieldGrace for it to finish its current batch.
func (r *Reconciler) acquire(ctx context.Context, kind opKind) error {
	deadline := time.Now().Add(r.YieldGrace)
	for {
		r.mu.Lock()
		if r.current == opNone {
			r.current = kind
			r.yieldFlag = false
			r.mu.Unlock()
			return nil
		}
		preempting := r.current == opCleanup && kind >= opIncremental
		if preempting {
			r.yieldFlag = true
		}
		holder := r.current
		r.mu.Unlock()

		if !preempting || time.Now().After(deadline) {
			logger.Debug("cache reconciliation lock busy",
				"requested", kind.String(), "holder", holder.String())
			return ErrReconcileBusy
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.PollInterval):
		}
	}
}

func (r *Reconciler) release() {
	r.mu.Lock()
	r.current = opNone
	r.yieldFlag = false
	r.mu.Unlock()
}

func (r *Reconciler) shouldYield() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.yieldFlag
}

// scanSidecars walks the backend and returns the relative path of every
// attribute sidecar.
func (r *Reconciler) scanSidecars(ctx context.Context) (map[string]struct{}, error) {
	sidecars := make(map[string]struct{})
	err := r.backend.Walk(ctx, func(relPath string, _ store.ObjectInfo) error {
		if strings.HasSuffix(relPath, attr.Suffix) {
			sidecars[relPath] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sidecars, nil
}

// ConsistencyCheck compares the cache against the sidecar tree without
// modifying either.
func (r *Reconciler) ConsistencyCheck(ctx context.Context) (Report, error) {
	if err := r.acquire(ctx, opCheck); err != nil {
		return Report{}, err
	}
	defer r.release()

	sidecars, err := r.scanSidecars(ctx)
	if err != nil {
		return Report{}, err
	}
	rows, err := r.store.All(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{AttrFiles: len(sidecars), CacheRows: len(rows)}
	now := time.Now().UTC()
	cached := make(map[string]struct{}, len(rows))
	for i := range rows {
		attrPath := rows[i].AttrPath()
		cached[attrPath] = struct{}{}
		if _, ok := sidecars[attrPath]; !ok {
			report.OrphanCache++
		}
		if rows[i].Expired(now) {
			report.ExpiredCache++
		}
	}
	for path := range sidecars {
		if _, ok := cached[path]; !ok {
			report.OrphanAttr++
		}
	}

	union := len(sidecars) + report.OrphanCache
	if union > 0 {
		drift := report.OrphanCache + report.OrphanAttr + report.ExpiredCache
		report.InconsistencyPct = float64(drift) / float64(union) * 100
	}
	return report, nil
}

// IncrementalRebuild inserts cache rows for sidecars the cache does not
// know about. Existing rows are left untouched.
func (r *Reconciler) IncrementalRebuild(ctx context.Context) (RebuildResult, error) {
	if err := r.acquire(ctx, opIncremental); err != nil {
		return RebuildResult{}, err
	}
	defer r.release()

	start := time.Now()
	rows, err := r.store.All(ctx)
	if err != nil {
		return RebuildResult{}, err
	}
	known := make(map[string]struct{}, len(rows))
	for i := range rows {
		known[rows[i].AttrPath()] = struct{}{}
	}

	result, err := r.rebuildFromSidecars(ctx, known)
	if err != nil {
		return result, err
	}
	result.DurationMs = time.Since(start).Milliseconds()

	logger.Info("incremental cache rebuild finished",
		"scanned", result.Scanned,
		"inserted", result.Inserted,
		"failed", result.Failed)
	return result, nil
}

// FullRebuild truncates the cache and reindexes every sidecar.
func (r *Reconciler) FullRebuild(ctx context.Context) (RebuildResult, error) {
	if err := r.acquire(ctx, opFull); err != nil {
		return RebuildResult{}, err
	}
	defer r.release()

	start := time.Now()
	removed, err := r.store.Truncate(ctx)
	if err != nil {
		return RebuildResult{}, err
	}

	result, err := r.rebuildFromSidecars(ctx, nil)
	if err != nil {
		return result, err
	}
	result.Removed = removed
	result.DurationMs = time.Since(start).Milliseconds()

	logger.Info("full cache rebuild finished",
		"scanned", result.Scanned,
		"inserted", result.Inserted,
		"failed", result.Failed,
		"removed", removed)
	return result, nil
}

// rebuildFromSidecars walks the sidecar tree and upserts a row for every
// document not in skip. Unreadable documents are logged and counted, never
// fatal: one corrupt sidecar must not abort a rebuild.
func (r *Reconciler) rebuildFromSidecars(ctx context.Context, skip map[string]struct{}) (RebuildResult, error) {
	var result RebuildResult
	err := r.backend.Walk(ctx, func(relPath string, _ store.ObjectInfo) error {
		if !strings.HasSuffix(relPath, attr.Suffix) {
			return nil
		}
		result.Scanned++
		if _, ok := skip[relPath]; ok {
			result.Skipped++
			return nil
		}

		data, err := r.backend.ReadAttr(ctx, relPath)
		if err != nil {
			result.Failed++
			logger.Warn("cache rebuild: unreadable sidecar", logger.Path(relPath), logger.Err(err))
			return nil
		}
		doc, err := attr.Unmarshal(data)
		if err != nil {
			result.Failed++
			logger.Warn("cache rebuild: invalid sidecar", logger.Path(relPath), logger.Err(err))
			return nil
		}
		if err := r.store.Upsert(ctx, FromAttributes(doc)); err != nil {
			return err
		}
		result.Inserted++
		return nil
	})
	return result, err
}

// CleanupExpired removes cache rows whose retention lapsed. Deletion runs
// in batches and stops early when a rebuild requests the lock.
func (r *Reconciler) CleanupExpired(ctx context.Context) (CleanupResult, error) {
	if err := r.acquire(ctx, opCleanup); err != nil {
		return CleanupResult{}, err
	}
	defer r.release()

	ids, err := r.store.ExpiredIDs(ctx, time.Now().UTC())
	if err != nil {
		return CleanupResult{}, err
	}

	var result CleanupResult
	for start := 0; start < len(ids); start += r.CleanupBatch {
		if r.shouldYield() {
			result.Yielded = true
			logger.Info("expired cleanup yielding to rebuild", "removed", result.Removed)
			break
		}
		end := start + r.CleanupBatch
		if end > len(ids) {
			end = len(ids)
		}
		n, err := r.store.DeleteByIDs(ctx, ids[start:end])
		if err != nil {
			return result, err
		}
		result.Removed += n
	}
	return result, nil
}
