package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence and read projections.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn against a TxStore inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// GetBalance returns the balance row without locking.
func (r *Repository) GetBalance(ctx context.Context, productID, binID int64) (Balance, error) {
	var b Balance
	err := r.pool.QueryRow(ctx, `SELECT id, product_id, bin_id, on_hand_qty, reserved_qty, unit, updated_at
FROM stock_location_balances WHERE product_id=$1 AND bin_id=$2`, productID, binID).
		Scan(&b.ID, &b.ProductID, &b.BinID, &b.OnHand, &b.Reserved, &b.Unit, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

// ListBalancesByProduct lists balances across bins for a product.
func (r *Repository) ListBalancesByProduct(ctx context.Context, productID int64) ([]Balance, error) {
	return r.listBalances(ctx, `SELECT id, product_id, bin_id, on_hand_qty, reserved_qty, unit, updated_at
FROM stock_location_balances WHERE product_id=$1 ORDER BY bin_id`, productID)
}

// ListBalancesByBin lists balances for every product in a bin.
func (r *Repository) ListBalancesByBin(ctx context.Context, binID int64) ([]Balance, error) {
	return r.listBalances(ctx, `SELECT id, product_id, bin_id, on_hand_qty, reserved_qty, unit, updated_at
FROM stock_location_balances WHERE bin_id=$1 ORDER BY product_id`, binID)
}

// ListBalancesByWarehouse lists balances for every bin in a warehouse.
func (r *Repository) ListBalancesByWarehouse(ctx context.Context, warehouseID int64) ([]Balance, error) {
	return r.listBalances(ctx, `SELECT b.id, b.product_id, b.bin_id, b.on_hand_qty, b.reserved_qty, b.unit, b.updated_at
FROM stock_location_balances b JOIN bins ON bins.id = b.bin_id
WHERE bins.warehouse_id=$1 ORDER BY b.bin_id, b.product_id`, warehouseID)
}

func (r *Repository) listBalances(ctx context.Context, query string, arg any) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.ID, &b.ProductID, &b.BinID, &b.OnHand, &b.Reserved, &b.Unit, &b.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// ListMovements returns the movement history, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	query := `SELECT id, movement_type, reference_type, reference_number, product_id,
COALESCE(from_bin_id, 0), COALESCE(to_bin_id, 0), qty, batch_number, performed_by, performed_at
FROM stock_movements WHERE 1=1`
	args := []any{}
	idx := 1
	if filter.ProductID != 0 {
		query += ` AND product_id=$` + strconv.Itoa(idx)
		args = append(args, filter.ProductID)
		idx++
	}
	if filter.Type != "" {
		query += ` AND movement_type=$` + strconv.Itoa(idx)
		args = append(args, string(filter.Type))
		idx++
	}
	if !filter.From.IsZero() {
		query += ` AND performed_at >= $` + strconv.Itoa(idx)
		args = append(args, filter.From)
		idx++
	}
	if !filter.To.IsZero() {
		query += ` AND performed_at <= $` + strconv.Itoa(idx)
		args = append(args, filter.To)
		idx++
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	query += ` ORDER BY performed_at DESC, id DESC LIMIT $` + strconv.Itoa(idx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		var movementType string
		if err := rows.Scan(&m.ID, &movementType, &m.ReferenceType, &m.ReferenceNumber, &m.ProductID,
			&m.FromBinID, &m.ToBinID, &m.Qty, &m.BatchNumber, &m.PerformedBy, &m.PerformedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(movementType)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// RecomputeOnHand replays the signed movement history for a product/bin.
// The result must equal the stored balance at all times.
func (r *Repository) RecomputeOnHand(ctx context.Context, productID, binID int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(
CASE WHEN to_bin_id=$2 THEN qty WHEN from_bin_id=$2 THEN -qty ELSE 0 END), 0)
FROM stock_movements WHERE product_id=$1 AND (to_bin_id=$2 OR from_bin_id=$2)`, productID, binID).
		Scan(&total)
	return total, err
}

// ListBalanceKeys returns every (product, bin) pair with a balance row.
func (r *Repository) ListBalanceKeys(ctx context.Context) ([][2]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, bin_id FROM stock_location_balances ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys [][2]int64
	for rows.Next() {
		var productID, binID int64
		if err := rows.Scan(&productID, &binID); err != nil {
			return nil, err
		}
		keys = append(keys, [2]int64{productID, binID})
	}
	return keys, rows.Err()
}

// CountExpiringBatches counts batches with stock expiring before the cutoff.
func (r *Repository) CountExpiringBatches(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_batches WHERE qty > 0 AND expiry_date IS NOT NULL AND expiry_date <= $1`, cutoff).
		Scan(&count)
	return count, err
}

