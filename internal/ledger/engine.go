package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Engine applies movement semantics against a TxStore. It manages no
// transactions of its own: document engines call it inside their unit of
// work so ledger rows commit or roll back with the document change.
type Engine struct{}

// Apply validates and posts a single movement. Transfers post a matched
// debit/credit pair; everything else posts exactly one movement row.
func (Engine) Apply(ctx context.Context, store TxStore, input MovementInput) (MovementResult, error) {
	if input.ProductID == 0 {
		return MovementResult{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	switch input.Type {
	case MovementGoodsReceipt:
		return applyReceipt(ctx, store, input)
	case MovementGoodsIssue:
		return applyIssue(ctx, store, input, false)
	case MovementTransfer:
		return applyTransfer(ctx, store, input)
	case MovementAdjustment:
		return applyAdjustment(ctx, store, input)
	default:
		return MovementResult{}, fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, input.Type)
	}
}

// IssueReserved debits stock that was previously reserved, consuming the
// reservation and the on-hand quantity together. Used by pick tasks.
func (Engine) IssueReserved(ctx context.Context, store TxStore, input MovementInput) (MovementResult, error) {
	input.Type = MovementGoodsIssue
	return applyIssue(ctx, store, input, true)
}

// Reserve raises the reserved quantity, bounded by the on-hand quantity.
// Reservations are not movements; no history row is written.
func (Engine) Reserve(ctx context.Context, store TxStore, productID, binID int64, qty float64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	balance, err := store.GetBalanceForUpdate(ctx, productID, binID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return shared.ErrInsufficientStock
		}
		return err
	}
	if balance.Available() < qty {
		return shared.ErrInsufficientStock
	}
	balance.Reserved += qty
	return store.UpsertBalance(ctx, balance)
}

// Release lowers the reserved quantity. Releasing more than is reserved is
// a caller bug and fails without mutating state.
func (Engine) Release(ctx context.Context, store TxStore, productID, binID int64, qty float64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	balance, err := store.GetBalanceForUpdate(ctx, productID, binID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return ErrReservationBound
		}
		return err
	}
	if balance.Reserved < qty {
		return ErrReservationBound
	}
	balance.Reserved -= qty
	return store.UpsertBalance(ctx, balance)
}

// ConsumeFEFO decrements batch quantities for an issue, lowest expiry
// first. The caller posts the single issue movement; this only keeps the
// sub-ledger consistent with it.
func (Engine) ConsumeFEFO(ctx context.Context, store TxStore, productID, binID int64, qty float64) ([]BatchConsumption, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	batches, err := store.ListBatchesFEFO(ctx, productID, binID)
	if err != nil {
		return nil, err
	}
	remaining := qty
	var consumed []BatchConsumption
	for _, batch := range batches {
		if remaining <= 0 {
			break
		}
		take := batch.Qty
		if take > remaining {
			take = remaining
		}
		batch.Qty -= take
		if err := store.UpsertBatch(ctx, batch); err != nil {
			return nil, err
		}
		consumed = append(consumed, BatchConsumption{BatchNumber: batch.BatchNumber, Qty: take})
		remaining -= take
	}
	if remaining > 1e-9 {
		return nil, shared.ErrInsufficientStock
	}
	return consumed, nil
}

func applyReceipt(ctx context.Context, store TxStore, input MovementInput) (MovementResult, error) {
	if input.Qty <= 0 {
		return MovementResult{}, ErrInvalidQuantity
	}
	if input.ToBinID == 0 {
		return MovementResult{}, ErrBinRequired
	}
	balance, err := store.GetBalanceForUpdate(ctx, input.ProductID, input.ToBinID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return MovementResult{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{ProductID: input.ProductID, BinID: input.ToBinID, Unit: input.Unit}
	}
	balance.OnHand += input.Qty
	if err := store.UpsertBalance(ctx, balance); err != nil {
		return MovementResult{}, err
	}
	if input.BatchNumber != "" {
		if err := creditBatch(ctx, store, input, input.ToBinID); err != nil {
			return MovementResult{}, err
		}
	}
	movement, err := insertMovement(ctx, store, input, 0, input.ToBinID)
	if err != nil {
		return MovementResult{}, err
	}
	return MovementResult{Movements: []Movement{movement}, ToBalance: &balance}, nil
}

func applyIssue(ctx context.Context, store TxStore, input MovementInput, fromReserved bool) (MovementResult, error) {
	if input.Qty <= 0 {
		return MovementResult{}, ErrInvalidQuantity
	}
	if input.FromBinID == 0 {
		return MovementResult{}, ErrBinRequired
	}
	balance, err := store.GetBalanceForUpdate(ctx, input.ProductID, input.FromBinID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return MovementResult{}, shared.ErrInsufficientStock
		}
		return MovementResult{}, err
	}
	if fromReserved {
		if balance.Reserved < input.Qty {
			return MovementResult{}, ErrReservationBound
		}
		balance.Reserved -= input.Qty
	} else if balance.Available() < input.Qty {
		// Already-reserved stock cannot be issued again.
		return MovementResult{}, shared.ErrInsufficientStock
	}
	balance.OnHand -= input.Qty
	if err := store.UpsertBalance(ctx, balance); err != nil {
		return MovementResult{}, err
	}
	if input.BatchNumber != "" {
		if err := debitBatch(ctx, store, input, input.FromBinID); err != nil {
			return MovementResult{}, err
		}
	}
	movement, err := insertMovement(ctx, store, input, input.FromBinID, 0)
	if err != nil {
		return MovementResult{}, err
	}
	return MovementResult{Movements: []Movement{movement}, FromBalance: &balance}, nil
}

func applyTransfer(ctx context.Context, store TxStore, input MovementInput) (MovementResult, error) {
	if input.Qty <= 0 {
		return MovementResult{}, ErrInvalidQuantity
	}
	if input.FromBinID == 0 || input.ToBinID == 0 {
		return MovementResult{}, ErrBinRequired
	}
	if input.FromBinID == input.ToBinID {
		return MovementResult{}, ErrSameBin
	}
	from, err := store.GetBalanceForUpdate(ctx, input.ProductID, input.FromBinID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return MovementResult{}, shared.ErrInsufficientStock
		}
		return MovementResult{}, err
	}
	if from.Available() < input.Qty {
		return MovementResult{}, shared.ErrInsufficientStock
	}
	to, err := store.GetBalanceForUpdate(ctx, input.ProductID, input.ToBinID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return MovementResult{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		to = Balance{ProductID: input.ProductID, BinID: input.ToBinID, Unit: from.Unit}
	}

	from.OnHand -= input.Qty
	to.OnHand += input.Qty
	if err := store.UpsertBalance(ctx, from); err != nil {
		return MovementResult{}, err
	}
	if err := store.UpsertBalance(ctx, to); err != nil {
		return MovementResult{}, err
	}
	if input.BatchNumber != "" {
		if err := debitBatch(ctx, store, input, input.FromBinID); err != nil {
			return MovementResult{}, err
		}
		if err := creditBatch(ctx, store, input, input.ToBinID); err != nil {
			return MovementResult{}, err
		}
	}

	out, err := insertMovement(ctx, store, input, input.FromBinID, 0)
	if err != nil {
		return MovementResult{}, err
	}
	in, err := insertMovement(ctx, store, input, 0, input.ToBinID)
	if err != nil {
		return MovementResult{}, err
	}
	return MovementResult{Movements: []Movement{out, in}, FromBalance: &from, ToBalance: &to}, nil
}

// applyAdjustment posts a signed delta. The movement row stores the
// absolute quantity; the sign lives in which bin side is set.
func applyAdjustment(ctx context.Context, store TxStore, input MovementInput) (MovementResult, error) {
	if input.Qty == 0 {
		return MovementResult{}, ErrInvalidQuantity
	}
	binID := input.ToBinID
	if binID == 0 {
		binID = input.FromBinID
	}
	if binID == 0 {
		return MovementResult{}, ErrBinRequired
	}
	delta := input.Qty
	balance, err := store.GetBalanceForUpdate(ctx, input.ProductID, binID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return MovementResult{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		if delta < 0 {
			return MovementResult{}, shared.ErrInsufficientStock
		}
		balance = Balance{ProductID: input.ProductID, BinID: binID, Unit: input.Unit}
	}
	if delta < 0 && balance.Available() < -delta {
		return MovementResult{}, shared.ErrInsufficientStock
	}
	balance.OnHand += delta
	if err := store.UpsertBalance(ctx, balance); err != nil {
		return MovementResult{}, err
	}
	adjusted := input
	adjusted.Type = MovementAdjustment
	var movement Movement
	if delta > 0 {
		adjusted.Qty = delta
		movement, err = insertMovement(ctx, store, adjusted, 0, binID)
	} else {
		adjusted.Qty = -delta
		movement, err = insertMovement(ctx, store, adjusted, binID, 0)
	}
	if err != nil {
		return MovementResult{}, err
	}
	return MovementResult{Movements: []Movement{movement}, ToBalance: &balance}, nil
}

func creditBatch(ctx context.Context, store TxStore, input MovementInput, binID int64) error {
	batch, err := store.GetBatchForUpdate(ctx, input.ProductID, binID, input.BatchNumber)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		batch = Batch{ProductID: input.ProductID, BinID: binID, BatchNumber: input.BatchNumber, ExpiryDate: input.ExpiryDate}
	}
	batch.Qty += input.Qty
	return store.UpsertBatch(ctx, batch)
}

func debitBatch(ctx context.Context, store TxStore, input MovementInput, binID int64) error {
	batch, err := store.GetBatchForUpdate(ctx, input.ProductID, binID, input.BatchNumber)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return shared.ErrInsufficientStock
		}
		return err
	}
	if batch.Qty < input.Qty {
		return shared.ErrInsufficientStock
	}
	batch.Qty -= input.Qty
	return store.UpsertBatch(ctx, batch)
}

func insertMovement(ctx context.Context, store TxStore, input MovementInput, fromBin, toBin int64) (Movement, error) {
	movement := Movement{
		Type:            input.Type,
		ReferenceType:   input.ReferenceType,
		ReferenceNumber: input.ReferenceNumber,
		ProductID:       input.ProductID,
		FromBinID:       fromBin,
		ToBinID:         toBin,
		Qty:             input.Qty,
		BatchNumber:     input.BatchNumber,
		PerformedBy:     input.ActorID,
		PerformedAt:     time.Now().UTC(),
	}
	id, err := store.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id
	return movement, nil
}
