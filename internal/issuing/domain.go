package issuing

import (
	"time"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/workflow"
)

// Goods issue lifecycle statuses.
type IssueStatus string

const (
	IssueStatusDraft     IssueStatus = "draft"
	IssueStatusCompleted IssueStatus = "completed"
	IssueStatusCancelled IssueStatus = "cancelled"
)

// IssueTransitions is the goods issue state machine. Completion and
// cancellation are terminal.
var IssueTransitions = workflow.Table[IssueStatus]{
	IssueStatusDraft: {IssueStatusCompleted, IssueStatusCancelled},
}

// GoodsIssue domain model.
type GoodsIssue struct {
	ID        int64       `json:"id"`
	Number    string      `json:"number"`
	Status    IssueStatus `json:"status"`
	Notes     string      `json:"notes"`
	CreatedBy int64       `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
}

// IssueItem is a goods issue line leaving a source bin.
type IssueItem struct {
	ID        int64   `json:"id"`
	IssueID   int64   `json:"issue_id"`
	ProductID int64   `json:"product_id"`
	BinID     int64   `json:"bin_id"`
	Qty       float64 `json:"qty"`
}
