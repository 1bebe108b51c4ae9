package admin

import (
	"context"
	"time"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/admin/store"
)

// auditWriteTimeout bounds one audit insert so a wedged database cannot
// stall the drain loop.
const auditWriteTimeout = 5 * time.Second

// defaultAuditBuffer is the queue depth before entries are dropped.
const defaultAuditBuffer = 256

// AuditWriter decouples audit persistence from the request path. Handlers
// enqueue entries and move on; a single drain loop owns the inserts. A full
// queue drops the entry rather than blocking a mutation.
type AuditWriter struct {
	store *store.Store
	queue chan *models.AuditEntry
}

// NewAuditWriter creates a writer with the given queue depth. buffer <= 0
// selects the default.
func NewAuditWriter(st *store.Store, buffer int) *AuditWriter {
	if buffer <= 0 {
		buffer = defaultAuditBuffer
	}
	return &AuditWriter{
		store: st,
		queue: make(chan *models.AuditEntry, buffer),
	}
}

// Enqueue hands one entry to the drain loop without blocking.
func (w *AuditWriter) Enqueue(entry *models.AuditEntry) {
	select {
	case w.queue <- entry:
	default:
		logger.Warn("audit queue full, entry dropped",
			"action", entry.Action, "target", entry.Target)
	}
}

// Run drains the queue until the context is cancelled, then writes whatever
// is still buffered before returning.
func (w *AuditWriter) Run(ctx context.Context) error {
	for {
		select {
		case entry := <-w.queue:
			w.write(entry)
		case <-ctx.Done():
			w.flush()
			return ctx.Err()
		}
	}
}

func (w *AuditWriter) flush() {
	for {
		select {
		case entry := <-w.queue:
			w.write(entry)
		default:
			return
		}
	}
}

// write inserts one entry under its own timeout: the originating request's
// context is long gone by the time the entry drains.
func (w *AuditWriter) write(entry *models.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := w.store.WriteAudit(ctx, entry); err != nil {
		logger.Warn("audit write failed",
			"action", entry.Action, "target", entry.Target, logger.Err(err))
	}
}
