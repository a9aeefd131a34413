package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/approval"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// RepositoryPort describes repository operations used by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPOItems(ctx context.Context, poID int64) ([]POItem, error)
	GetGR(ctx context.Context, id int64) (GoodsReceipt, error)
	ListGRItems(ctx context.Context, receiptID int64) ([]GRItem, error)
}

// ApprovalPort is the gate consulted before gated transitions.
type ApprovalPort interface {
	Evaluate(ctx context.Context, entityType string, entityID int64, amount decimal.Decimal, actor shared.Actor) (approval.Decision, error)
}

// Service drives the purchase order and goods receipt lifecycles.
type Service struct {
	repo     RepositoryPort
	gate     ApprovalPort
	engine   ledger.Engine
	logger   *slog.Logger
	observer ledger.Observer
}

// NewService constructs the service.
func NewService(repo RepositoryPort, gate ApprovalPort, logger *slog.Logger, observer ledger.Observer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, gate: gate, logger: logger, observer: observer}
}

// CreatePOInput describes a new purchase order.
type CreatePOInput struct {
	Number       string
	SupplierID   int64
	ExpectedDate *time.Time
	Notes        string
	Items        []POItemInput
}

// POItemInput describes one order line.
type POItemInput struct {
	ProductID  int64
	OrderedQty float64
	UnitPrice  decimal.Decimal
}

// CreatePurchaseOrder persists a draft order with its lines.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput, actor shared.Actor) (PurchaseOrder, []POItem, error) {
	if input.SupplierID == 0 {
		return PurchaseOrder{}, nil, fmt.Errorf("%w: supplier required", shared.ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("PO")
	}
	po := PurchaseOrder{
		Number:            input.Number,
		SupplierID:        input.SupplierID,
		Status:            POStatusDraft,
		ConfirmationState: ConfirmationUnconfirmed,
		ExpectedDate:      input.ExpectedDate,
		Notes:             input.Notes,
		CreatedBy:         actor.UserID,
	}
	var items []POItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		for _, line := range input.Items {
			item, err := s.insertItem(ctx, tx, id, line)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	s.logger.Info("purchase order created", slog.Int64("id", po.ID), slog.String("number", po.Number))
	return po, items, nil
}

// AddItem appends a line to a draft order.
func (s *Service) AddItem(ctx context.Context, poID int64, line POItemInput) (POItem, error) {
	var item POItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft {
			return shared.NewInvalidTransition("purchase_order", string(po.Status), string(po.Status))
		}
		item, err = s.insertItem(ctx, tx, poID, line)
		return err
	})
	return item, err
}

func (s *Service) insertItem(ctx context.Context, tx TxRepository, poID int64, line POItemInput) (POItem, error) {
	if line.ProductID == 0 || line.OrderedQty <= 0 {
		return POItem{}, fmt.Errorf("%w: item needs product and positive quantity", shared.ErrValidation)
	}
	if line.UnitPrice.IsNegative() {
		return POItem{}, fmt.Errorf("%w: unit price must not be negative", shared.ErrValidation)
	}
	item := POItem{POID: poID, ProductID: line.ProductID, OrderedQty: line.OrderedQty, UnitPrice: line.UnitPrice}
	id, err := tx.InsertPOItem(ctx, item)
	if err != nil {
		return POItem{}, err
	}
	item.ID = id
	return item, nil
}

// SetItemReceived sets a line's received quantity directly. Used for count
// corrections; receipt completion maintains it otherwise.
func (s *Service) SetItemReceived(ctx context.Context, poID, itemID int64, receivedQty float64) error {
	if receivedQty < 0 {
		return fmt.Errorf("%w: received quantity must not be negative", shared.ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if POTransitions.Terminal(po.Status) {
			return shared.NewInvalidTransition("purchase_order", string(po.Status), string(po.Status))
		}
		items, err := tx.ListPOItems(ctx, poID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.ID == itemID {
				return tx.UpdatePOItemReceived(ctx, itemID, receivedQty)
			}
		}
		return shared.ErrNotFound
	})
}

// Confirm records the supplier's confirmation state.
func (s *Service) Confirm(ctx context.Context, poID int64, state ConfirmationState, expectedDate *time.Time) (PurchaseOrder, error) {
	switch state {
	case ConfirmationWithDate:
		if expectedDate == nil {
			return PurchaseOrder{}, fmt.Errorf("%w: confirmed_with_date needs an expected date", shared.ErrValidation)
		}
	case ConfirmationUndetermined, ConfirmationUnconfirmed:
	default:
		return PurchaseOrder{}, fmt.Errorf("%w: unknown confirmation state %q", shared.ErrValidation, state)
	}
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if POTransitions.Terminal(current.Status) {
			return shared.NewInvalidTransition("purchase_order", string(current.Status), string(current.Status))
		}
		if err := tx.UpdatePOConfirmation(ctx, poID, state, expectedDate); err != nil {
			return err
		}
		po = current
		po.ConfirmationState = state
		if expectedDate != nil {
			po.ExpectedDate = expectedDate
		}
		return nil
	})
	return po, err
}

// Transition moves the order to a target status, enforcing the table, the
// completion guard and the approval guard.
func (s *Service) Transition(ctx context.Context, poID int64, target POStatus, actor shared.Actor) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if err := POTransitions.Check("purchase_order", current.Status, target); err != nil {
			return err
		}
		items, err := tx.ListPOItems(ctx, poID)
		if err != nil {
			return err
		}
		if target == POStatusCompleted && !FullyReceived(items) {
			return shared.ErrIncompleteOrder
		}
		if target == POStatusOrdered || target == POStatusCompleted {
			if err := s.checkApproval(ctx, poID, items, actor); err != nil {
				return err
			}
		}
		var orderedAt *time.Time
		if target == POStatusOrdered {
			now := time.Now().UTC()
			orderedAt = &now
		}
		if err := tx.UpdatePOStatus(ctx, poID, target, orderedAt); err != nil {
			return err
		}
		po = current
		po.Status = target
		if orderedAt != nil {
			po.OrderedAt = orderedAt
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.logger.Info("purchase order transition",
		slog.Int64("id", poID), slog.String("to", string(target)), slog.Int64("actor", actor.UserID))
	return po, nil
}

// checkApproval re-evaluates the gate. The gate writes pending requests on
// the pool, so the row survives even though this transition then fails.
func (s *Service) checkApproval(ctx context.Context, poID int64, items []POItem, actor shared.Actor) error {
	if s.gate == nil {
		return nil
	}
	decision, err := s.gate.Evaluate(ctx, EntityTypePO, poID, OrderTotal(items), actor)
	if err != nil {
		return err
	}
	if !decision.Clear {
		return &shared.ApprovalRequiredError{RequestID: decision.PendingRequestID}
	}
	return nil
}

// GetPurchaseOrder returns an order with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POItem, error) {
	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	items, err := s.repo.ListPOItems(ctx, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, items, nil
}

// CreateGRInput describes a new goods receipt.
type CreateGRInput struct {
	Number string
	POID   int64
	Notes  string
	Items  []GRItemInput
}

// GRItemInput describes one received line.
type GRItemInput struct {
	ProductID   int64
	BinID       int64
	Qty         float64
	BatchNumber string
	ExpiryDate  *time.Time
}

// CreateGoodsReceipt persists a draft receipt. When the receipt references
// an order, the order must be receivable.
func (s *Service) CreateGoodsReceipt(ctx context.Context, input CreateGRInput, actor shared.Actor) (GoodsReceipt, []GRItem, error) {
	if len(input.Items) == 0 {
		return GoodsReceipt{}, nil, fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("GR")
	}
	gr := GoodsReceipt{Number: input.Number, POID: input.POID, Status: GRStatusDraft, Notes: input.Notes, CreatedBy: actor.UserID}
	var items []GRItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.POID != 0 {
			po, err := tx.GetPOForUpdate(ctx, input.POID)
			if err != nil {
				return err
			}
			if !po.Receivable() {
				return shared.ErrUnreceivableOrder
			}
		}
		id, err := tx.CreateGR(ctx, gr)
		if err != nil {
			return err
		}
		gr.ID = id
		for _, line := range input.Items {
			if line.ProductID == 0 || line.BinID == 0 || line.Qty <= 0 {
				return fmt.Errorf("%w: item needs product, bin and positive quantity", shared.ErrValidation)
			}
			item := GRItem{ReceiptID: id, ProductID: line.ProductID, BinID: line.BinID, Qty: line.Qty,
				BatchNumber: line.BatchNumber, ExpiryDate: line.ExpiryDate}
			itemID, err := tx.InsertGRItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	s.logger.Info("goods receipt created", slog.Int64("id", gr.ID), slog.String("number", gr.Number))
	return gr, items, nil
}

// TransitionGR moves a receipt to a target status. Completion posts one
// receipt movement per line and maintains the order's received quantities
// in the same transaction; all lines post or none do.
func (s *Service) TransitionGR(ctx context.Context, grID int64, target GRStatus, actor shared.Actor) (GoodsReceipt, error) {
	var gr GoodsReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetGRForUpdate(ctx, grID)
		if err != nil {
			return err
		}
		if err := GRTransitions.Check("goods_receipt", current.Status, target); err != nil {
			return err
		}
		if target == GRStatusCompleted {
			if err := s.completeGR(ctx, tx, current, actor); err != nil {
				return err
			}
		}
		if err := tx.UpdateGRStatus(ctx, grID, target); err != nil {
			return err
		}
		gr = current
		gr.Status = target
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.logger.Info("goods receipt transition", slog.Int64("id", grID), slog.String("to", string(target)))
	return gr, nil
}

func (s *Service) completeGR(ctx context.Context, tx TxRepository, gr GoodsReceipt, actor shared.Actor) error {
	items, err := tx.ListGRItems(ctx, gr.ID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: receipt has no items", shared.ErrValidation)
	}

	var po PurchaseOrder
	var poItems []POItem
	if gr.POID != 0 {
		po, err = tx.GetPOForUpdate(ctx, gr.POID)
		if err != nil {
			return err
		}
		if !po.Receivable() {
			return shared.ErrUnreceivableOrder
		}
		poItems, err = tx.ListPOItems(ctx, gr.POID)
		if err != nil {
			return err
		}
	}

	store := tx.Ledger()
	for _, item := range items {
		result, err := s.engine.Apply(ctx, store, ledger.MovementInput{
			Type:            ledger.MovementGoodsReceipt,
			ProductID:       item.ProductID,
			ToBinID:         item.BinID,
			Qty:             item.Qty,
			BatchNumber:     item.BatchNumber,
			ExpiryDate:      item.ExpiryDate,
			ReferenceType:   "goods_receipt",
			ReferenceNumber: gr.Number,
			ActorID:         actor.UserID,
		})
		if err != nil {
			return err
		}
		s.observeResult(result)
		if gr.POID != 0 {
			creditReceived(poItems, item.ProductID, item.Qty)
		}
	}

	if gr.POID != 0 {
		for _, poItem := range poItems {
			if err := tx.UpdatePOItemReceived(ctx, poItem.ID, poItem.ReceivedQty); err != nil {
				return err
			}
		}
		if po.Status == POStatusOrdered {
			if err := tx.UpdatePOStatus(ctx, gr.POID, POStatusPartiallyReceived, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// creditReceived adds received quantity onto the order lines for a product,
// filling earlier lines first.
func creditReceived(poItems []POItem, productID int64, qty float64) {
	remaining := qty
	for i := range poItems {
		if poItems[i].ProductID != productID || remaining <= 0 {
			continue
		}
		capacity := poItems[i].OrderedQty - poItems[i].ReceivedQty
		if capacity <= 0 {
			continue
		}
		take := capacity
		if take > remaining {
			take = remaining
		}
		poItems[i].ReceivedQty += take
		remaining -= take
	}
	// Over-delivery lands on the last matching line.
	if remaining > 0 {
		for i := len(poItems) - 1; i >= 0; i-- {
			if poItems[i].ProductID == productID {
				poItems[i].ReceivedQty += remaining
				return
			}
		}
	}
}

// GetGoodsReceipt returns a receipt with its lines.
func (s *Service) GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceipt, []GRItem, error) {
	gr, err := s.repo.GetGR(ctx, id)
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	items, err := s.repo.ListGRItems(ctx, id)
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	return gr, items, nil
}

func (s *Service) observeResult(result ledger.MovementResult) {
	if s.observer == nil {
		return
	}
	for _, movement := range result.Movements {
		s.observer.MovementPosted(string(movement.Type))
	}
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
