package returns

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// RepositoryPort describes repository operations used by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (ReturnOrder, error)
	ListItems(ctx context.Context, returnID int64) ([]ReturnItem, error)
}

// Service drives the return order lifecycle.
type Service struct {
	repo     RepositoryPort
	engine   ledger.Engine
	logger   *slog.Logger
	observer ledger.Observer
}

// NewService constructs the service.
func NewService(repo RepositoryPort, logger *slog.Logger, observer ledger.Observer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, observer: observer}
}

// CreateInput describes a new return order.
type CreateInput struct {
	Number string
	Reason string
	Notes  string
	Items  []ItemInput
}

// ItemInput describes one returned line.
type ItemInput struct {
	ProductID int64
	BinID     int64
	Qty       float64
}

// Create persists a draft return order with its lines.
func (s *Service) Create(ctx context.Context, input CreateInput, actor shared.Actor) (ReturnOrder, []ReturnItem, error) {
	if len(input.Items) == 0 {
		return ReturnOrder{}, nil, fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("RET")
	}
	order := ReturnOrder{Number: input.Number, Status: ReturnStatusDraft, Reason: input.Reason, Notes: input.Notes, CreatedBy: actor.UserID}
	var items []ReturnItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Create(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		for _, line := range input.Items {
			if line.ProductID == 0 || line.BinID == 0 || line.Qty <= 0 {
				return fmt.Errorf("%w: item needs product, bin and positive quantity", shared.ErrValidation)
			}
			item := ReturnItem{ReturnID: id, ProductID: line.ProductID, BinID: line.BinID, Qty: line.Qty}
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return ReturnOrder{}, nil, err
	}
	s.logger.Info("return order created", slog.Int64("id", order.ID), slog.String("number", order.Number))
	return order, items, nil
}

// Transition moves the return order to a target status. Completion books
// each line back into stock as a receipt movement; all lines post or none do.
func (s *Service) Transition(ctx context.Context, returnID int64, target ReturnStatus, actor shared.Actor) (ReturnOrder, error) {
	var order ReturnOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, returnID)
		if err != nil {
			return err
		}
		if err := ReturnTransitions.Check("return_order", current.Status, target); err != nil {
			return err
		}
		if target == ReturnStatusCompleted {
			items, err := tx.ListItems(ctx, returnID)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("%w: return order has no items", shared.ErrValidation)
			}
			store := tx.Ledger()
			for _, item := range items {
				result, err := s.engine.Apply(ctx, store, ledger.MovementInput{
					Type:            ledger.MovementGoodsReceipt,
					ProductID:       item.ProductID,
					ToBinID:         item.BinID,
					Qty:             item.Qty,
					ReferenceType:   "return_order",
					ReferenceNumber: current.Number,
					ActorID:         actor.UserID,
				})
				if err != nil {
					return err
				}
				s.observeResult(result)
			}
		}
		if err := tx.UpdateStatus(ctx, returnID, target); err != nil {
			return err
		}
		order = current
		order.Status = target
		return nil
	})
	if err != nil {
		return ReturnOrder{}, err
	}
	s.logger.Info("return order transition", slog.Int64("id", returnID), slog.String("to", string(target)))
	return order, nil
}

// Get returns a return order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (ReturnOrder, []ReturnItem, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return ReturnOrder{}, nil, err
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return ReturnOrder{}, nil, err
	}
	return order, items, nil
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
