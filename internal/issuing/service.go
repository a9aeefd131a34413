package issuing

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
	Get(ctx context.Context, id int64) (GoodsIssue, error)
	ListItems(ctx context.Context, issueID int64) ([]IssueItem, error)
}

// ProductPort answers whether a product carries batch tracking. Issues of
// batch-tracked products consume batches lowest expiry first.
type ProductPort interface {
	BatchTracked(ctx context.Context, productID int64) (bool, error)
}

// Service drives the goods issue lifecycle.
type Service struct {
	repo     RepositoryPort
	products ProductPort
	engine   ledger.Engine
	logger   *slog.Logger
	observer ledger.Observer
}

// NewService constructs the service.
func NewService(repo RepositoryPort, products ProductPort, logger *slog.Logger, observer ledger.Observer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, products: products, logger: logger, observer: observer}
}

// CreateInput describes a new goods issue.
type CreateInput struct {
	Number string
	Notes  string
	Items  []ItemInput
}

// ItemInput describes one issued line.
type ItemInput struct {
	ProductID int64
	BinID     int64
	Qty       float64
}

// Create persists a draft issue with its lines. Stock is untouched until
// completion.
func (s *Service) Create(ctx context.Context, input CreateInput, actor shared.Actor) (GoodsIssue, []IssueItem, error) {
	if len(input.Items) == 0 {
		return GoodsIssue{}, nil, fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("GI")
	}
	issue := GoodsIssue{Number: input.Number, Status: IssueStatusDraft, Notes: input.Notes, CreatedBy: actor.UserID}
	var items []IssueItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Create(ctx, issue)
		if err != nil {
			return err
		}
		issue.ID = id
		for _, line := range input.Items {
			if line.ProductID == 0 || line.BinID == 0 || line.Qty <= 0 {
				return fmt.Errorf("%w: item needs product, bin and positive quantity", shared.ErrValidation)
			}
			item := IssueItem{IssueID: id, ProductID: line.ProductID, BinID: line.BinID, Qty: line.Qty}
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
		return GoodsIssue{}, nil, err
	}
	s.logger.Info("goods issue created", slog.Int64("id", issue.ID), slog.String("number", issue.Number))
	return issue, items, nil
}

// Transition moves the issue to a target status. Completion posts one issue
// movement per line; all lines post or none do.
func (s *Service) Transition(ctx context.Context, issueID int64, target IssueStatus, actor shared.Actor) (GoodsIssue, error) {
	var issue GoodsIssue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, issueID)
		if err != nil {
			return err
		}
		if err := IssueTransitions.Check("goods_issue", current.Status, target); err != nil {
			return err
		}
		if target == IssueStatusCompleted {
			if err := s.complete(ctx, tx, current, actor); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, issueID, target); err != nil {
			return err
		}
		issue = current
		issue.Status = target
		return nil
	})
	if err != nil {
		return GoodsIssue{}, err
	}
	s.logger.Info("goods issue transition", slog.Int64("id", issueID), slog.String("to", string(target)))
	return issue, nil
}

func (s *Service) complete(ctx context.Context, tx TxRepository, issue GoodsIssue, actor shared.Actor) error {
	items, err := tx.ListItems(ctx, issue.ID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: issue has no items", shared.ErrValidation)
	}
	store := tx.Ledger()
	for _, item := range items {
		result, err := s.engine.Apply(ctx, store, ledger.MovementInput{
			Type:            ledger.MovementGoodsIssue,
			ProductID:       item.ProductID,
			FromBinID:       item.BinID,
			Qty:             item.Qty,
			ReferenceType:   "goods_issue",
			ReferenceNumber: issue.Number,
			ActorID:         actor.UserID,
		})
		if err != nil {
			return err
		}
		s.observeResult(result)
		tracked, err := s.batchTracked(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if tracked {
			if _, err := s.engine.ConsumeFEFO(ctx, store, item.ProductID, item.BinID, item.Qty); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) batchTracked(ctx context.Context, productID int64) (bool, error) {
	if s.products == nil {
		return false, nil
	}
	return s.products.BatchTracked(ctx, productID)
}

// Get returns an issue with its lines.
func (s *Service) Get(ctx context.Context, id int64) (GoodsIssue, []IssueItem, error) {
	issue, err := s.repo.Get(ctx, id)
	if err != nil {
		return GoodsIssue{}, nil, err
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return GoodsIssue{}, nil, err
	}
	return issue, items, nil
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
