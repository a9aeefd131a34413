package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup deletes operation log rows past retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskLedgerReconcile replays movements against stored balances.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskLedgerExpiryScan counts batches nearing their expiry date.
	TaskLedgerExpiryScan = "ledger:expiry-scan"
)

// CleanupPayload bounds the retention window for the operation log.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewCleanupTask constructs an operation log cleanup task.
func NewCleanupTask(retentionHours int) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// ReconcilePayload carries no parameters; reconciliation always covers the
// full balance table.
type ReconcilePayload struct{}

// NewReconcileTask constructs a ledger reconciliation task.
func NewReconcileTask() (*asynq.Task, error) {
	body, err := json.Marshal(ReconcilePayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault)), nil
}

// ExpiryScanPayload bounds how far ahead the scan looks.
type ExpiryScanPayload struct {
	HorizonDays int `json:"horizon_days"`
}

// NewExpiryScanTask constructs a batch expiry scan task.
func NewExpiryScanTask(horizonDays int) (*asynq.Task, error) {
	body, err := json.Marshal(ExpiryScanPayload{HorizonDays: horizonDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerExpiryScan, body, asynq.Queue(QueueDefault)), nil
}
