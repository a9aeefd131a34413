package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
)

// Reconciler recomputes balances from the movement history.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]ledger.Divergence, error)
}

// ReconcileJob verifies that every stored balance still matches the sum of
// its movements. Divergences are logged per row; the job itself succeeds so
// the schedule keeps running.
type ReconcileJob struct {
	Ledger  Reconciler
	Logger  *slog.Logger
	Metrics *Metrics
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(ledgerService Reconciler, logger *slog.Logger, metrics *Metrics) *ReconcileJob {
	return &ReconcileJob{Ledger: ledgerService, Logger: logger, Metrics: metrics}
}

// Handle executes one reconciliation pass.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger reconcile: handler not configured")
	}

	tracker := j.metrics().Track(TaskLedgerReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	diverged, err := j.Ledger.Reconcile(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("reconciliation failed", slog.Any("error", err))
		return resultErr
	}
	for _, d := range diverged {
		j.logger().Warn("balance diverged from movement history",
			slog.Int64("product_id", d.ProductID),
			slog.Int64("bin_id", d.BinID),
			slog.Float64("stored", d.Stored),
			slog.Float64("computed", d.Computed))
	}
	j.metrics().AddDivergences(len(diverged))
	j.logger().Info("reconciliation complete", slog.Int("divergences", len(diverged)))
	return resultErr
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerReconcile))
	}
	return slog.Default().With(slog.String("job", TaskLedgerReconcile))
}

func (j *ReconcileJob) metrics() *Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return NewMetrics(nil)
}
