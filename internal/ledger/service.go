package ledger

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetBalance(ctx context.Context, productID, binID int64) (Balance, error)
	ListBalancesByProduct(ctx context.Context, productID int64) ([]Balance, error)
	ListBalancesByBin(ctx context.Context, binID int64) ([]Balance, error)
	ListBalancesByWarehouse(ctx context.Context, warehouseID int64) ([]Balance, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	RecomputeOnHand(ctx context.Context, productID, binID int64) (float64, error)
	ListBalanceKeys(ctx context.Context) ([][2]int64, error)
}

// Observer receives movement counters for metrics.
type Observer interface {
	MovementPosted(movementType string)
}

// Service coordinates direct ledger operations and read projections.
// Document engines bypass it and drive the Engine inside their own
// transactions.
type Service struct {
	repo     RepositoryPort
	engine   Engine
	logger   *slog.Logger
	observer Observer
}

// NewService builds a Service.
func NewService(repo RepositoryPort, logger *slog.Logger, observer Observer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, observer: observer}
}

// ApplyMovement posts a standalone movement in its own unit of work. Used
// by the adjustment endpoint; document completions compose the Engine with
// their own transaction instead.
func (s *Service) ApplyMovement(ctx context.Context, input MovementInput) (MovementResult, error) {
	var result MovementResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		var err error
		result, err = s.engine.Apply(ctx, store, input)
		return err
	})
	if err != nil {
		return MovementResult{}, err
	}
	s.observeResult(result)
	s.logger.Info("ledger movement posted",
		slog.String("type", string(input.Type)),
		slog.Int64("product_id", input.ProductID),
		slog.Float64("qty", input.Qty),
		slog.String("reference", input.ReferenceNumber))
	return result, nil
}

func (s *Service) observeResult(result MovementResult) {
	if s.observer == nil {
		return
	}
	for _, movement := range result.Movements {
		s.observer.MovementPosted(string(movement.Type))
	}
}

// GetBalance returns a single balance projection.
func (s *Service) GetBalance(ctx context.Context, productID, binID int64) (Balance, error) {
	return s.repo.GetBalance(ctx, productID, binID)
}

// ListBalancesByProduct lists balances across bins for a product.
func (s *Service) ListBalancesByProduct(ctx context.Context, productID int64) ([]Balance, error) {
	return s.repo.ListBalancesByProduct(ctx, productID)
}

// ListBalancesByBin lists balances for a bin.
func (s *Service) ListBalancesByBin(ctx context.Context, binID int64) ([]Balance, error) {
	return s.repo.ListBalancesByBin(ctx, binID)
}

// ListBalancesByWarehouse lists balances for a warehouse.
func (s *Service) ListBalancesByWarehouse(ctx context.Context, warehouseID int64) ([]Balance, error) {
	return s.repo.ListBalancesByWarehouse(ctx, warehouseID)
}

// ListMovements returns filtered movement history.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// Divergence reports a balance that no longer matches its movement history.
type Divergence struct {
	ProductID int64
	BinID     int64
	Stored    float64
	Computed  float64
}

// Reconcile recomputes every balance from the movement history and returns
// the rows that diverge. A non-empty result means the replay invariant has
// been violated and needs operator attention.
func (s *Service) Reconcile(ctx context.Context) ([]Divergence, error) {
	keys, err := s.repo.ListBalanceKeys(ctx)
	if err != nil {
		return nil, err
	}
	var diverged []Divergence
	for _, key := range keys {
		stored, err := s.repo.GetBalance(ctx, key[0], key[1])
		if err != nil {
			return nil, err
		}
		computed, err := s.repo.RecomputeOnHand(ctx, key[0], key[1])
		if err != nil {
			return nil, err
		}
		if math.Abs(stored.OnHand-computed) > 1e-6 {
			diverged = append(diverged, Divergence{
				ProductID: key[0],
				BinID:     key[1],
				Stored:    stored.OnHand,
				Computed:  computed,
			})
		}
	}
	if len(diverged) > 0 {
		s.logger.Error("ledger reconciliation found divergences", slog.Int("count", len(diverged)))
	}
	return diverged, nil
}

// MovementWindow bounds a history query to a closed interval ending now.
func MovementWindow(days int) (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.AddDate(0, 0, -days), now
}
