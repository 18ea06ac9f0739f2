package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/cbes-platform/cbes-api/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRetention prunes audit_logs rows past the retention window.
	TaskAuditRetention = "audit:retention"
)

// AuditRetentionPayload carries the retention window for a prune run.
type AuditRetentionPayload struct {
	RetainDays int `json:"retain_days"`
}

// NewAuditRetentionTask constructs an Asynq task.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data), nil
}

// AuditPruner deletes audit entries older than the cutoff.
type AuditPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewAuditRetentionHandler returns the handler for TaskAuditRetention tasks.
// A malformed or non-positive payload skips retry: re-running it would fail
// the same way.
func NewAuditRetentionHandler(pruner AuditPruner, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskAuditRetention)
		var payload AuditRetentionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		if payload.RetainDays <= 0 {
			return tracker.End(asynq.SkipRetry)
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -payload.RetainDays)
		dropped, err := pruner.PruneBefore(ctx, cutoff)
		if err != nil {
			return tracker.End(err)
		}
		logger.Info("audit retention pruned", "cutoff", cutoff, "rows", dropped)
		return tracker.End(nil)
	}
}
