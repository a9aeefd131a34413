package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx. Document engines pass
// their own transaction so ledger writes commit with the document change.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxStore exposes the row-level ledger operations used by the engine inside
// one unit of work.
type TxStore interface {
	GetBalanceForUpdate(ctx context.Context, productID, binID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	GetBatchForUpdate(ctx context.Context, productID, binID int64, batchNumber string) (Batch, error)
	UpsertBatch(ctx context.Context, batch Batch) error
	ListBatchesFEFO(ctx context.Context, productID, binID int64) ([]Batch, error)
}

type pgTxStore struct {
	q Querier
}

// NewTxStore builds a TxStore over a pool or transaction.
func NewTxStore(q Querier) TxStore {
	return &pgTxStore{q: q}
}

func (s *pgTxStore) GetBalanceForUpdate(ctx context.Context, productID, binID int64) (Balance, error) {
	var b Balance
	err := s.q.QueryRow(ctx, `SELECT id, product_id, bin_id, on_hand_qty, reserved_qty, unit, updated_at
FROM stock_location_balances WHERE product_id=$1 AND bin_id=$2 FOR UPDATE`, productID, binID).
		Scan(&b.ID, &b.ProductID, &b.BinID, &b.OnHand, &b.Reserved, &b.Unit, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ProductID: productID, BinID: binID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (s *pgTxStore) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := s.q.Exec(ctx, `INSERT INTO stock_location_balances (product_id, bin_id, on_hand_qty, reserved_qty, unit, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (product_id, bin_id)
DO UPDATE SET on_hand_qty=EXCLUDED.on_hand_qty, reserved_qty=EXCLUDED.reserved_qty, updated_at=NOW()`,
		balance.ProductID, balance.BinID, balance.OnHand, balance.Reserved, balance.Unit)
	return err
}

func (s *pgTxStore) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	performedAt := movement.PerformedAt
	if performedAt.IsZero() {
		performedAt = time.Now().UTC()
	}
	err := s.q.QueryRow(ctx, `INSERT INTO stock_movements
(movement_type, reference_type, reference_number, product_id, from_bin_id, to_bin_id, qty, batch_number, performed_by, performed_at)
VALUES ($1, $2, $3, $4, NULLIF($5, 0), NULLIF($6, 0), $7, $8, $9, $10) RETURNING id`,
		string(movement.Type), movement.ReferenceType, movement.ReferenceNumber, movement.ProductID,
		movement.FromBinID, movement.ToBinID, movement.Qty, movement.BatchNumber, movement.PerformedBy, performedAt).
		Scan(&id)
	return id, err
}

func (s *pgTxStore) GetBatchForUpdate(ctx context.Context, productID, binID int64, batchNumber string) (Batch, error) {
	var b Batch
	err := s.q.QueryRow(ctx, `SELECT id, product_id, bin_id, batch_number, qty, expiry_date, manufactured_at
FROM stock_batches WHERE product_id=$1 AND bin_id=$2 AND batch_number=$3 FOR UPDATE`, productID, binID, batchNumber).
		Scan(&b.ID, &b.ProductID, &b.BinID, &b.BatchNumber, &b.Qty, &b.ExpiryDate, &b.ManufacturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{ProductID: productID, BinID: binID, BatchNumber: batchNumber}, ErrBalanceNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (s *pgTxStore) UpsertBatch(ctx context.Context, batch Batch) error {
	_, err := s.q.Exec(ctx, `INSERT INTO stock_batches (product_id, bin_id, batch_number, qty, expiry_date, manufactured_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (product_id, bin_id, batch_number)
DO UPDATE SET qty=EXCLUDED.qty`,
		batch.ProductID, batch.BinID, batch.BatchNumber, batch.Qty, batch.ExpiryDate, batch.ManufacturedAt)
	return err
}

func (s *pgTxStore) ListBatchesFEFO(ctx context.Context, productID, binID int64) ([]Batch, error) {
	rows, err := s.q.Query(ctx, `SELECT id, product_id, bin_id, batch_number, qty, expiry_date, manufactured_at
FROM stock_batches WHERE product_id=$1 AND bin_id=$2 AND qty > 0
ORDER BY expiry_date ASC NULLS LAST, id ASC FOR UPDATE`, productID, binID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.BinID, &b.BatchNumber, &b.Qty, &b.ExpiryDate, &b.ManufacturedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
