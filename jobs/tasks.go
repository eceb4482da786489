// Package jobs runs the background side of the audit pipeline: the queue
// ordinary audit entries travel through, and the cron-driven warmup of
// compliance statistics.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/voyagedesk/voyagedesk/internal/audit"
)

const (
	// QueueAudit carries audit entries. It gets its own queue so a burst of
	// CRUD traffic cannot starve the write path behind other work.
	QueueAudit = "audit"
	// QueueDefault is the queue for everything else.
	QueueDefault = "default"

	// TaskAuditRecord writes one audit entry to the log.
	TaskAuditRecord = "audit:record"
	// TaskStatsWarmup precomputes compliance statistics into the cache.
	TaskStatsWarmup = "audit:stats_warmup"
)

// NewAuditRecordTask wraps an audit entry as an Asynq task.
func NewAuditRecordTask(entry audit.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data), nil
}

// JobMetrics counts job completions.
type JobMetrics interface {
	JobProcessed(task string, err error)
}

// AuditRecordHandler returns the handler that persists queued audit entries.
// A payload that does not unmarshal is dropped rather than retried: it will
// never get better, and the recorder already wrote a fallback entry when the
// enqueue path misbehaved.
func AuditRecordHandler(sink audit.Sink, logger *slog.Logger, metrics JobMetrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var entry audit.Entry
		if err := json.Unmarshal(t.Payload(), &entry); err != nil {
			logger.Error("audit task payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		err := sink.Insert(ctx, entry)
		if metrics != nil {
			metrics.JobProcessed(TaskAuditRecord, err)
		}
		if err != nil {
			logger.Error("audit task insert",
				slog.String("entry_id", entry.ID),
				slog.String("action", string(entry.Action)),
				slog.Any("error", err))
			return err
		}
		return nil
	}
}

// StatsWarmupPayload names the statistics slice to precompute.
type StatsWarmupPayload struct {
	Framework string `json:"framework"`
	TimeFrame string `json:"timeFrame"`
}

// NewStatsWarmupTask wraps a warmup request as an Asynq task.
func NewStatsWarmupTask(payload StatsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsWarmup, data), nil
}

// StatsSource computes compliance statistics, filling the cache as a side
// effect.
type StatsSource interface {
	GetAuditStatistics(ctx context.Context, timeFrame, framework string) (*audit.Stats, error)
}

// StatsWarmupHandler returns the handler that warms the statistics cache.
func StatsWarmupHandler(stats StatsSource, logger *slog.Logger, metrics JobMetrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StatsWarmupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("stats warmup payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		_, err := stats.GetAuditStatistics(ctx, payload.TimeFrame, payload.Framework)
		if metrics != nil {
			metrics.JobProcessed(TaskStatsWarmup, err)
		}
		if err != nil {
			logger.Warn("stats warmup",
				slog.String("framework", payload.Framework),
				slog.String("time_frame", payload.TimeFrame),
				slog.Any("error", err))
			return err
		}
		return nil
	}
}
