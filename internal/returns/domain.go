package returns

import (
	"time"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/workflow"
)

// Return order lifecycle statuses. Completion books the returned goods
// back into stock.
type ReturnStatus string

const (
	ReturnStatusDraft     ReturnStatus = "draft"
	ReturnStatusCompleted ReturnStatus = "completed"
	ReturnStatusCancelled ReturnStatus = "cancelled"
)

// ReturnTransitions is the return order state machine.
var ReturnTransitions = workflow.Table[ReturnStatus]{
	ReturnStatusDraft: {ReturnStatusCompleted, ReturnStatusCancelled},
}

// ReturnOrder domain model.
type ReturnOrder struct {
	ID        int64        `json:"id"`
	Number    string       `json:"number"`
	Status    ReturnStatus `json:"status"`
	Reason    string       `json:"reason"`
	Notes     string       `json:"notes"`
	CreatedBy int64        `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
}

// ReturnItem is a returned line going back into a bin.
type ReturnItem struct {
	ID        int64   `json:"id"`
	ReturnID  int64   `json:"return_id"`
	ProductID int64   `json:"product_id"`
	BinID     int64   `json:"bin_id"`
	Qty       float64 `json:"qty"`
}
