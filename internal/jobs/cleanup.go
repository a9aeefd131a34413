package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/idempotency"
)

// DefaultRetentionHours keeps operation log rows for a week.
const DefaultRetentionHours = 168

// CleanupJob trims the operation log so replay storage stays bounded.
type CleanupJob struct {
	Store   idempotency.Store
	Logger  *slog.Logger
	Metrics *Metrics
}

// NewCleanupJob initialises the cleanup handler.
func NewCleanupJob(store idempotency.Store, logger *slog.Logger, metrics *Metrics) *CleanupJob {
	return &CleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle deletes operation records older than the retention window.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = DefaultRetentionHours
	}

	tracker := j.metrics().Track(TaskIdempotencyCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	retention := time.Duration(payload.RetentionHours) * time.Hour
	deleted, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		resultErr = err
		j.logger().Error("cleanup failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddReclaimedOperations(deleted)
	j.logger().Info("operation log trimmed",
		slog.Int64("deleted", deleted),
		slog.Int("retention_hours", payload.RetentionHours))
	return resultErr
}

func (j *CleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIdempotencyCleanup))
	}
	return slog.Default().With(slog.String("job", TaskIdempotencyCleanup))
}

func (j *CleanupJob) metrics() *Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return NewMetrics(nil)
}
