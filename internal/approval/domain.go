package approval

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus enumerates approval request states.
type RequestStatus string

const (
	// StatusPending marks an unresolved request.
	StatusPending RequestStatus = "pending"
	// StatusApproved marks an approved request.
	StatusApproved RequestStatus = "approved"
	// StatusRejected marks a rejected request.
	StatusRejected RequestStatus = "rejected"
)

// Rule gates transitions on a monetary threshold per entity type. Rules are
// not combined: the newest active rule for an entity type wins.
type Rule struct {
	ID           int64           `json:"id"`
	EntityType   string          `json:"entity_type"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	RequiredRole string          `json:"required_role"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Request tracks one approval demand for an entity. approve and reject are
// terminal; a resolved request is never reopened.
type Request struct {
	ID          int64           `json:"id"`
	EntityType  string          `json:"entity_type"`
	EntityID    int64           `json:"entity_id"`
	Status      RequestStatus   `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Comment     string          `json:"comment"`
	RequestedBy int64           `json:"requested_by"`
	RequestedAt time.Time       `json:"requested_at"`
	ResolvedBy  *int64          `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// Decision is the outcome of evaluating the gate for a transition.
type Decision struct {
	Clear bool
	// PendingRequestID is set when the transition must wait for approval.
	PendingRequestID int64
}
