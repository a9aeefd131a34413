package transfers

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
	GetTransfer(ctx context.Context, id int64) (StockTransfer, error)
	ListTransferItems(ctx context.Context, transferID int64) ([]TransferItem, error)
	GetIWT(ctx context.Context, id int64) (InterWarehouseTransfer, error)
	ListIWTItems(ctx context.Context, transferID int64) ([]IWTItem, error)
}

// Service drives both transfer lifecycles.
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

// ItemInput describes one transfer line.
type ItemInput struct {
	ProductID int64
	FromBinID int64
	ToBinID   int64
	Qty       float64
}

func (in ItemInput) validate() error {
	if in.ProductID == 0 || in.FromBinID == 0 || in.ToBinID == 0 || in.Qty <= 0 {
		return fmt.Errorf("%w: item needs product, both bins and positive quantity", shared.ErrValidation)
	}
	if in.FromBinID == in.ToBinID {
		return fmt.Errorf("%w: source and target bin must differ", shared.ErrValidation)
	}
	return nil
}

// CreateTransferInput describes a new stock transfer.
type CreateTransferInput struct {
	Number string
	Notes  string
	Items  []ItemInput
}

// CreateTransfer persists a draft stock transfer with its lines.
func (s *Service) CreateTransfer(ctx context.Context, input CreateTransferInput, actor shared.Actor) (StockTransfer, []TransferItem, error) {
	if len(input.Items) == 0 {
		return StockTransfer{}, nil, fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("ST")
	}
	transfer := StockTransfer{Number: input.Number, Status: TransferStatusDraft, Notes: input.Notes, CreatedBy: actor.UserID}
	var items []TransferItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateTransfer(ctx, transfer)
		if err != nil {
			return err
		}
		transfer.ID = id
		for _, line := range input.Items {
			if err := line.validate(); err != nil {
				return err
			}
			item := TransferItem{TransferID: id, ProductID: line.ProductID, FromBinID: line.FromBinID, ToBinID: line.ToBinID, Qty: line.Qty}
			itemID, err := tx.InsertTransferItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return StockTransfer{}, nil, err
	}
	s.logger.Info("stock transfer created", slog.Int64("id", transfer.ID), slog.String("number", transfer.Number))
	return transfer, items, nil
}

// TransitionTransfer moves a stock transfer to a target status. Completion
// posts a matched debit/credit pair per line; all lines post or none do.
func (s *Service) TransitionTransfer(ctx context.Context, transferID int64, target TransferStatus, actor shared.Actor) (StockTransfer, error) {
	var transfer StockTransfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if err := TransferTransitions.Check("stock_transfer", current.Status, target); err != nil {
			return err
		}
		if target == TransferStatusCompleted {
			items, err := tx.ListTransferItems(ctx, transferID)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("%w: transfer has no items", shared.ErrValidation)
			}
			store := tx.Ledger()
			for _, item := range items {
				if err := s.moveLine(ctx, store, current.Number, item.ProductID, item.FromBinID, item.ToBinID, item.Qty, actor); err != nil {
					return err
				}
			}
		}
		if err := tx.UpdateTransferStatus(ctx, transferID, target); err != nil {
			return err
		}
		transfer = current
		transfer.Status = target
		return nil
	})
	if err != nil {
		return StockTransfer{}, err
	}
	s.logger.Info("stock transfer transition", slog.Int64("id", transferID), slog.String("to", string(target)))
	return transfer, nil
}

func (s *Service) moveLine(ctx context.Context, store ledger.TxStore, number string, productID, fromBin, toBin int64, qty float64, actor shared.Actor) error {
	result, err := s.engine.Apply(ctx, store, ledger.MovementInput{
		Type:            ledger.MovementTransfer,
		ProductID:       productID,
		FromBinID:       fromBin,
		ToBinID:         toBin,
		Qty:             qty,
		ReferenceType:   "stock_transfer",
		ReferenceNumber: number,
		ActorID:         actor.UserID,
	})
	if err != nil {
		return err
	}
	s.observeResult(result)
	return nil
}

// GetTransfer returns a stock transfer with its lines.
func (s *Service) GetTransfer(ctx context.Context, id int64) (StockTransfer, []TransferItem, error) {
	transfer, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return StockTransfer{}, nil, err
	}
	items, err := s.repo.ListTransferItems(ctx, id)
	if err != nil {
		return StockTransfer{}, nil, err
	}
	return transfer, items, nil
}

// CreateIWTInput describes a new inter-warehouse transfer.
type CreateIWTInput struct {
	Number          string
	FromWarehouseID int64
	ToWarehouseID   int64
	Notes           string
	Items           []ItemInput
}

// CreateIWT persists a draft inter-warehouse transfer with its lines.
func (s *Service) CreateIWT(ctx context.Context, input CreateIWTInput, actor shared.Actor) (InterWarehouseTransfer, []IWTItem, error) {
	if input.FromWarehouseID == 0 || input.ToWarehouseID == 0 {
		return InterWarehouseTransfer{}, nil, fmt.Errorf("%w: both warehouses required", shared.ErrValidation)
	}
	if input.FromWarehouseID == input.ToWarehouseID {
		return InterWarehouseTransfer{}, nil, fmt.Errorf("%w: source and target warehouse must differ", shared.ErrValidation)
	}
	if len(input.Items) == 0 {
		return InterWarehouseTransfer{}, nil, fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("IWT")
	}
	transfer := InterWarehouseTransfer{
		Number:          input.Number,
		FromWarehouseID: input.FromWarehouseID,
		ToWarehouseID:   input.ToWarehouseID,
		Status:          IWTStatusDraft,
		Notes:           input.Notes,
		CreatedBy:       actor.UserID,
	}
	var items []IWTItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateIWT(ctx, transfer)
		if err != nil {
			return err
		}
		transfer.ID = id
		for _, line := range input.Items {
			if err := line.validate(); err != nil {
				return err
			}
			item := IWTItem{TransferID: id, ProductID: line.ProductID, FromBinID: line.FromBinID, ToBinID: line.ToBinID, Qty: line.Qty}
			itemID, err := tx.InsertIWTItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return InterWarehouseTransfer{}, nil, err
	}
	s.logger.Info("interwarehouse transfer created", slog.Int64("id", transfer.ID), slog.String("number", transfer.Number))
	return transfer, items, nil
}

// TransitionIWT moves an inter-warehouse transfer to a target status.
// Dispatch (in_transit) reserves every line at its source bin so the goods
// cannot be issued elsewhere while on the road. Completion converts those
// reservations into matched debit/credit pairs. Cancelling an in-transit
// transfer releases the reservations without moving stock.
func (s *Service) TransitionIWT(ctx context.Context, transferID int64, target IWTStatus, actor shared.Actor) (InterWarehouseTransfer, error) {
	var transfer InterWarehouseTransfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetIWTForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if err := IWTTransitions.Check("interwarehouse_transfer", current.Status, target); err != nil {
			return err
		}
		items, err := tx.ListIWTItems(ctx, transferID)
		if err != nil {
			return err
		}
		store := tx.Ledger()
		switch {
		case target == IWTStatusInTransit:
			if len(items) == 0 {
				return fmt.Errorf("%w: transfer has no items", shared.ErrValidation)
			}
			for _, item := range items {
				if err := s.engine.Reserve(ctx, store, item.ProductID, item.FromBinID, item.Qty); err != nil {
					return err
				}
			}
		case target == IWTStatusCompleted:
			for _, item := range items {
				if err := s.engine.Release(ctx, store, item.ProductID, item.FromBinID, item.Qty); err != nil {
					return err
				}
				if err := s.moveLine(ctx, store, current.Number, item.ProductID, item.FromBinID, item.ToBinID, item.Qty, actor); err != nil {
					return err
				}
			}
		case target == IWTStatusCancelled && current.Status == IWTStatusInTransit:
			for _, item := range items {
				if err := s.engine.Release(ctx, store, item.ProductID, item.FromBinID, item.Qty); err != nil {
					return err
				}
			}
		}
		if err := tx.UpdateIWTStatus(ctx, transferID, target); err != nil {
			return err
		}
		transfer = current
		transfer.Status = target
		return nil
	})
	if err != nil {
		return InterWarehouseTransfer{}, err
	}
	s.logger.Info("interwarehouse transfer transition", slog.Int64("id", transferID), slog.String("to", string(target)))
	return transfer, nil
}

// GetIWT returns an inter-warehouse transfer with its lines.
func (s *Service) GetIWT(ctx context.Context, id int64) (InterWarehouseTransfer, []IWTItem, error) {
	transfer, err := s.repo.GetIWT(ctx, id)
	if err != nil {
		return InterWarehouseTransfer{}, nil, err
	}
	items, err := s.repo.ListIWTItems(ctx, id)
	if err != nil {
		return InterWarehouseTransfer{}, nil, err
	}
	return transfer, items, nil
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
