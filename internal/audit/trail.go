package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/holte-dev/safetyflash/internal/ids"
	"github.com/holte-dev/safetyflash/internal/model"
	"github.com/holte-dev/safetyflash/internal/obs"
)

// Store is the primary (database) sink.
type Store interface {
	// Append durably inserts one entry. Entries are immutable once written.
	Append(ctx context.Context, e *model.AuditEntry) error
}

// Trail is the dual-sink audit writer. Primary writes go to the Store; the
// file sink receives critical actions unconditionally and any entry whose
// primary write failed. A Trail never returns errors to callers: blocking a
// safety workflow on logging infrastructure is unacceptable.
type Trail struct {
	store Store
	sink  *FileSink
	log   *zap.Logger
	now   func() time.Time
}

// New constructs a Trail. sink may be nil in tests.
func New(store Store, sink *FileSink, log *zap.Logger) *Trail {
	return &Trail{store: store, sink: sink, log: log, now: time.Now}
}

// WithClock overrides the time source (tests).
func (t *Trail) WithClock(fn func() time.Time) *Trail {
	t.now = fn
	return t
}

// Record redacts and writes the entry. ID, timestamp, and default severity
// are filled in when absent.
func (t *Trail) Record(ctx context.Context, e model.AuditEntry) {
	t.prepare(&e)

	primaryErr := t.store.Append(ctx, &e)
	if primaryErr != nil {
		t.log.Warn("audit primary sink failed, falling back to file",
			zap.String("action", e.Action),
			zap.Error(primaryErr),
		)
	}
	if primaryErr != nil || Critical(e.Action) || e.Severity == model.SeverityCritical {
		t.writeFile(&e)
	}
}

// RecordFile writes the entry to the file sink only. The workflow uses it
// when the transition transaction already committed without its audit row.
func (t *Trail) RecordFile(e model.AuditEntry) {
	t.prepare(&e)
	t.writeFile(&e)
}

// Prepare fills derived fields and redacts; exported for callers that embed
// the entry into a storage transaction themselves.
func (t *Trail) Prepare(e *model.AuditEntry) {
	t.prepare(e)
}

func (t *Trail) prepare(e *model.AuditEntry) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = t.now().UTC()
	}
	if e.Severity == "" {
		e.Severity = model.SeverityInfo
	}
	e.Detail = Redact(e.Detail)
}

func (t *Trail) writeFile(e *model.AuditEntry) {
	if t.sink == nil {
		return
	}
	obs.AuditFallback()
	if err := t.sink.Write(e); err != nil {
		// Both sinks down. Nothing left but the process log.
		t.log.Error("audit file sink failed",
			zap.String("action", e.Action),
			zap.String("id", e.ID),
			zap.Error(err),
		)
	}
}
