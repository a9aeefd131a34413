package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates the ledger availability check failed.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrIncompleteOrder indicates a completion guard failed.
	ErrIncompleteOrder = errors.New("order has unreceived quantities")
	// ErrUnreceivableOrder indicates the receipt guard failed.
	ErrUnreceivableOrder = errors.New("order is not receivable")
	// ErrOperationIDConflict indicates an idempotency key was reused across operations.
	ErrOperationIDConflict = errors.New("operation id bound to a different operation")
	// ErrIntegrityConflict indicates a uniqueness or constraint violation at commit.
	ErrIntegrityConflict = errors.New("integrity conflict")
)

// InvalidTransitionError reports a status transition not present in the
// document's transition table. It carries the attempted pair for diagnostics.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: invalid transition %s -> %s", e.Entity, e.From, e.To)
}

// NewInvalidTransition builds an InvalidTransitionError.
func NewInvalidTransition(entity, from, to string) error {
	return &InvalidTransitionError{Entity: entity, From: from, To: to}
}

// ApprovalRequiredError blocks a gated transition until the carried request
// is approved.
type ApprovalRequiredError struct {
	RequestID int64
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("approval required: request %d pending", e.RequestID)
}
