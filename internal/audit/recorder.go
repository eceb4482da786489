package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// Sink persists entries. The repository implements it with system privileges:
// the acting user can never suppress their own trail by lacking write access.
type Sink interface {
	Insert(ctx context.Context, entry Entry) error
}

// Enqueuer hands an entry to the background queue for asynchronous writing.
type Enqueuer interface {
	EnqueueAuditEntry(ctx context.Context, entry Entry) error
}

// FailureCounter increments operational metrics for failed audit writes.
type FailureCounter interface {
	AuditWriteFailure()
}

// RecorderConfig collects recorder dependencies. Queue is optional; without
// it ordinary entries are written directly.
type RecorderConfig struct {
	Sink    Sink
	Queue   Enqueuer
	Metrics FailureCounter
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Recorder builds audit entries from trigger points. Ordinary writes are
// fire-and-forget: the triggering operation's outcome is never affected by an
// audit failure. Critical writes are confirmed before the caller proceeds.
type Recorder struct {
	sink    Sink
	queue   Enqueuer
	metrics FailureCounter
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(cfg RecorderConfig) *Recorder {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sink:    cfg.Sink,
		queue:   cfg.Queue,
		metrics: cfg.Metrics,
		logger:  logger,
		now:     now,
	}
}

// Record emits one ordinary audit entry. Failures are caught and logged with
// the payload that failed to write, for forensic recovery, and never
// propagated.
func (r *Recorder) Record(ctx context.Context, event Event) {
	entry := r.build(ctx, event)
	if r.queue != nil {
		err := r.queue.EnqueueAuditEntry(ctx, entry)
		if err == nil {
			return
		}
		r.countFailure()
		r.logger.Error("audit enqueue failed, attempting direct write",
			slog.Any("error", err),
			slog.Any("entry", entry))
	}
	if err := r.sink.Insert(ctx, entry); err != nil {
		r.countFailure()
		r.logger.Error("audit write failed",
			slog.Any("error", err),
			slog.Any("entry", entry))
	}
}

// RecordCritical writes an entry synchronously and confirms it before
// returning. Used for emergency elevations, where an unaudited grant is a
// compliance gap more serious than added latency.
func (r *Recorder) RecordCritical(ctx context.Context, event Event) error {
	event.Severity = authz.SeverityCritical
	entry := r.build(ctx, event)
	if err := r.sink.Insert(ctx, entry); err != nil {
		r.countFailure()
		r.logger.Error("critical audit write failed",
			slog.Any("error", err),
			slog.Any("entry", entry))
		return fmt.Errorf("audit: critical write: %w", err)
	}
	return nil
}

func (r *Recorder) build(ctx context.Context, event Event) Entry {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		actor = shared.AnonymousActor()
	}
	severity := event.Severity
	if severity == "" {
		severity = authz.SeverityNormal
	}
	name := event.EntityName
	if name == "" {
		name = EntityLabel(event.EntityType)
	}
	return Entry{
		ID:         uuid.NewString(),
		UserID:     actor.UserID,
		Username:   actor.Username,
		Action:     event.Action,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		EntityName: name,
		Changes:    event.Changes,
		Metadata: Metadata{
			IP:     actor.IP,
			Method: shared.RequestMethodFromContext(ctx),
			At:     r.now().UTC(),
		},
		Severity: severity,
		Active:   true,
		Exists:   true,
	}
}

func (r *Recorder) countFailure() {
	if r.metrics != nil {
		r.metrics.AuditWriteFailure()
	}
}
