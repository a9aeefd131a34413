package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// DefaultExpiryHorizonDays is the default lookahead for the expiry scan.
const DefaultExpiryHorizonDays = 30

// BatchCounter counts batches with remaining stock expiring before a cutoff.
type BatchCounter interface {
	CountExpiringBatches(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpiryScanJob surfaces batches approaching their expiry date so operators
// can issue them first or write them off.
type ExpiryScanJob struct {
	Repo    BatchCounter
	Logger  *slog.Logger
	Metrics *Metrics
	clock   func() time.Time
}

// NewExpiryScanJob initialises the expiry scan handler.
func NewExpiryScanJob(repo BatchCounter, logger *slog.Logger, metrics *Metrics) *ExpiryScanJob {
	return &ExpiryScanJob{
		Repo:    repo,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one expiry scan.
func (j *ExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("expiry scan: handler not configured")
	}
	var payload ExpiryScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.HorizonDays <= 0 {
		payload.HorizonDays = DefaultExpiryHorizonDays
	}

	tracker := j.metrics().Track(TaskLedgerExpiryScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().AddDate(0, 0, payload.HorizonDays)
	count, err := j.Repo.CountExpiringBatches(ctx, cutoff)
	if err != nil {
		resultErr = err
		j.logger().Error("expiry scan failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().SetExpiringBatches(count)
	if count > 0 {
		j.logger().Warn("batches approaching expiry",
			slog.Int64("count", count),
			slog.Int("horizon_days", payload.HorizonDays))
	} else {
		j.logger().Info("no batches near expiry", slog.Int("horizon_days", payload.HorizonDays))
	}
	return resultErr
}

func (j *ExpiryScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerExpiryScan))
	}
	return slog.Default().With(slog.String("job", TaskLedgerExpiryScan))
}

func (j *ExpiryScanJob) metrics() *Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return NewMetrics(nil)
}

func (j *ExpiryScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
