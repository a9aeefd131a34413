// Package ledger owns the per-bin, per-batch stock ledger. Balances are a
// materialized projection; the append-only movement history is the durable
// source of truth and must reconcile with balances at all times.
package ledger

import (
	"errors"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementGoodsReceipt represents stock entering the system.
	MovementGoodsReceipt MovementType = "goods_receipt"
	// MovementGoodsIssue represents stock leaving the system.
	MovementGoodsIssue MovementType = "goods_issue"
	// MovementTransfer represents one side of a bin-to-bin move.
	MovementTransfer MovementType = "transfer"
	// MovementAdjustment represents a signed count reconciliation.
	MovementAdjustment MovementType = "adjustment"
)

// Balance is the quantity-at-location row, unique per (product, bin).
// Created lazily on first movement into a bin, never deleted.
type Balance struct {
	ID        int64
	ProductID int64
	BinID     int64
	OnHand    float64
	Reserved  float64
	Unit      string
	UpdatedAt time.Time
}

// Available returns the quantity that may still be issued or reserved.
func (b Balance) Available() float64 {
	return b.OnHand - b.Reserved
}

// Batch is the optional lot/expiry sub-ledger row, unique per
// (product, bin, batch number).
type Batch struct {
	ID             int64
	ProductID      int64
	BinID          int64
	BatchNumber    string
	Qty            float64
	ExpiryDate     *time.Time
	ManufacturedAt *time.Time
}

// Movement is an immutable ledger event. Qty is always positive; the side
// of the change is carried by FromBinID/ToBinID (zero means unset).
type Movement struct {
	ID              int64
	Type            MovementType
	ReferenceType   string
	ReferenceNumber string
	ProductID       int64
	FromBinID       int64
	ToBinID         int64
	Qty             float64
	BatchNumber     string
	PerformedBy     int64
	PerformedAt     time.Time
}

// MovementInput describes a requested ledger mutation.
type MovementInput struct {
	Type            MovementType
	ProductID       int64
	FromBinID       int64
	ToBinID         int64
	Qty             float64
	Unit            string
	BatchNumber     string
	ExpiryDate      *time.Time
	ReferenceType   string
	ReferenceNumber string
	ActorID         int64
}

// MovementResult reports the outcome of an applied movement.
type MovementResult struct {
	Movements   []Movement
	FromBalance *Balance
	ToBalance   *Balance
}

// BatchConsumption records how much of a batch a FEFO issue consumed.
type BatchConsumption struct {
	BatchNumber string
	Qty         float64
}

// MovementFilter narrows the movement history projection.
type MovementFilter struct {
	ProductID int64
	Type      MovementType
	From      time.Time
	To        time.Time
	Limit     int
}

var (
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	// ErrBinRequired indicates a movement side is missing its bin.
	ErrBinRequired = errors.New("ledger: bin required for movement")
	// ErrSameBin indicates a transfer within a single bin.
	ErrSameBin = errors.New("ledger: transfer bins must differ")
	// ErrBalanceNotFound indicates a missing balance row.
	ErrBalanceNotFound = errors.New("ledger: balance not found")
	// ErrReservationBound indicates a release beyond the reserved quantity.
	ErrReservationBound = errors.New("ledger: release exceeds reserved quantity")
)
