package returns

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/db"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Repository provides PostgreSQL backed persistence for return orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations of one unit of work.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (ReturnOrder, error)
	UpdateStatus(ctx context.Context, id int64, status ReturnStatus) error
	Create(ctx context.Context, order ReturnOrder) (int64, error)
	InsertItem(ctx context.Context, item ReturnItem) (int64, error)
	ListItems(ctx context.Context, returnID int64) ([]ReturnItem, error)
	Ledger() ledger.TxStore
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) Ledger() ledger.TxStore {
	return ledger.NewTxStore(t.tx)
}

const returnColumns = `id, number, status, reason, notes, created_by, created_at`

func scanReturn(row pgx.Row) (ReturnOrder, error) {
	var order ReturnOrder
	err := row.Scan(&order.ID, &order.Number, &order.Status, &order.Reason, &order.Notes, &order.CreatedBy, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReturnOrder{}, shared.ErrNotFound
		}
		return ReturnOrder{}, err
	}
	return order, nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (ReturnOrder, error) {
	return scanReturn(t.tx.QueryRow(ctx, `SELECT `+returnColumns+` FROM return_orders WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status ReturnStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE return_orders SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (t *txRepo) Create(ctx context.Context, order ReturnOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO return_orders (number, status, reason, notes, created_by)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		order.Number, string(order.Status), order.Reason, order.Notes, order.CreatedBy).
		Scan(&id)
	return id, err
}

func (t *txRepo) InsertItem(ctx context.Context, item ReturnItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO return_order_items (return_id, product_id, bin_id, qty)
VALUES ($1, $2, $3, $4) RETURNING id`,
		item.ReturnID, item.ProductID, item.BinID, item.Qty).
		Scan(&id)
	return id, err
}

func (t *txRepo) ListItems(ctx context.Context, returnID int64) ([]ReturnItem, error) {
	return listItems(ctx, t.tx, returnID)
}

// Get returns a return order without locking.
func (r *Repository) Get(ctx context.Context, id int64) (ReturnOrder, error) {
	return scanReturn(r.pool.QueryRow(ctx, `SELECT `+returnColumns+` FROM return_orders WHERE id=$1`, id))
}

// ListItems returns the order's lines.
func (r *Repository) ListItems(ctx context.Context, returnID int64) ([]ReturnItem, error) {
	return listItems(ctx, r.pool, returnID)
}

func listItems(ctx context.Context, q ledger.Querier, returnID int64) ([]ReturnItem, error) {
	rows, err := q.Query(ctx, `SELECT id, return_id, product_id, bin_id, qty
FROM return_order_items WHERE return_id=$1 ORDER BY id`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReturnItem
	for rows.Next() {
		var item ReturnItem
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.ProductID, &item.BinID, &item.Qty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
