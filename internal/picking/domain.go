package picking

import (
	"time"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/workflow"
)

// Pick wave lifecycle statuses. Release reserves stock for every task;
// completion requires every task to be picked or skipped.
type WaveStatus string

const (
	WaveStatusDraft     WaveStatus = "draft"
	WaveStatusReleased  WaveStatus = "released"
	WaveStatusCompleted WaveStatus = "completed"
	WaveStatusCancelled WaveStatus = "cancelled"
)

// WaveTransitions is the pick wave state machine.
var WaveTransitions = workflow.Table[WaveStatus]{
	WaveStatusDraft:    {WaveStatusReleased, WaveStatusCancelled},
	WaveStatusReleased: {WaveStatusCompleted, WaveStatusCancelled},
}

// Per-task statuses. picked and skipped are terminal.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusPicked  TaskStatus = "picked"
	TaskStatusSkipped TaskStatus = "skipped"
)

// Terminal reports whether the task needs no further work.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusPicked || s == TaskStatusSkipped
}

// PickWave domain model.
type PickWave struct {
	ID        int64      `json:"id"`
	Number    string     `json:"number"`
	Status    WaveStatus `json:"status"`
	Notes     string     `json:"notes"`
	CreatedBy int64      `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

// PickTask is one picking instruction within a wave.
type PickTask struct {
	ID        int64      `json:"id"`
	WaveID    int64      `json:"wave_id"`
	ProductID int64      `json:"product_id"`
	BinID     int64      `json:"bin_id"`
	Qty       float64    `json:"qty"`
	Status    TaskStatus `json:"status"`
}
