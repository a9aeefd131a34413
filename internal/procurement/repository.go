package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/db"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Repository provides PostgreSQL backed persistence for purchase orders
// and goods receipts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations of one unit of work.
// Ledger returns a store bound to the same transaction, so document status
// changes and stock mutations commit or roll back together.
type TxRepository interface {
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePOStatus(ctx context.Context, id int64, status POStatus, orderedAt *time.Time) error
	UpdatePOConfirmation(ctx context.Context, id int64, state ConfirmationState, expectedDate *time.Time) error
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOItem(ctx context.Context, item POItem) (int64, error)
	UpdatePOItemReceived(ctx context.Context, itemID int64, receivedQty float64) error
	ListPOItems(ctx context.Context, poID int64) ([]POItem, error)
	GetGRForUpdate(ctx context.Context, id int64) (GoodsReceipt, error)
	UpdateGRStatus(ctx context.Context, id int64, status GRStatus) error
	CreateGR(ctx context.Context, gr GoodsReceipt) (int64, error)
	InsertGRItem(ctx context.Context, item GRItem) (int64, error)
	ListGRItems(ctx context.Context, receiptID int64) ([]GRItem, error)
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

const poColumns = `id, number, supplier_id, status, confirmation_state, expected_date, ordered_at, notes, created_by, created_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.Status, &po.ConfirmationState,
		&po.ExpectedDate, &po.OrderedAt, &po.Notes, &po.CreatedBy, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, shared.ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (t *txRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanPO(t.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus, orderedAt *time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2, ordered_at=COALESCE($3, ordered_at) WHERE id=$1`,
		id, string(status), orderedAt)
	return err
}

func (t *txRepo) UpdatePOConfirmation(ctx context.Context, id int64, state ConfirmationState, expectedDate *time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET confirmation_state=$2, expected_date=COALESCE($3, expected_date) WHERE id=$1`,
		id, string(state), expectedDate)
	return err
}

func (t *txRepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, status, confirmation_state, expected_date, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		po.Number, po.SupplierID, string(po.Status), string(po.ConfirmationState), po.ExpectedDate, po.Notes, po.CreatedBy).
		Scan(&id)
	return id, err
}

func (t *txRepo) InsertPOItem(ctx context.Context, item POItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (po_id, product_id, ordered_qty, received_qty, unit_price)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.POID, item.ProductID, item.OrderedQty, item.ReceivedQty, item.UnitPrice).
		Scan(&id)
	return id, err
}

func (t *txRepo) UpdatePOItemReceived(ctx context.Context, itemID int64, receivedQty float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_order_items SET received_qty=$2 WHERE id=$1`, itemID, receivedQty)
	return err
}

func (t *txRepo) ListPOItems(ctx context.Context, poID int64) ([]POItem, error) {
	return listPOItems(ctx, t.tx, poID)
}

func (t *txRepo) GetGRForUpdate(ctx context.Context, id int64) (GoodsReceipt, error) {
	return scanGR(t.tx.QueryRow(ctx, `SELECT id, number, COALESCE(po_id, 0), status, notes, created_by, created_at
FROM goods_receipts WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateGRStatus(ctx context.Context, id int64, status GRStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_receipts SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (t *txRepo) CreateGR(ctx context.Context, gr GoodsReceipt) (int64, error) {
	var id int64
	var poID any
	if gr.POID != 0 {
		poID = gr.POID
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receipts (number, po_id, status, notes, created_by)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		gr.Number, poID, string(gr.Status), gr.Notes, gr.CreatedBy).
		Scan(&id)
	return id, err
}

func (t *txRepo) InsertGRItem(ctx context.Context, item GRItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receipt_items (receipt_id, product_id, bin_id, qty, batch_number, expiry_date)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		item.ReceiptID, item.ProductID, item.BinID, item.Qty, item.BatchNumber, item.ExpiryDate).
		Scan(&id)
	return id, err
}

func (t *txRepo) ListGRItems(ctx context.Context, receiptID int64) ([]GRItem, error) {
	return listGRItems(ctx, t.tx, receiptID)
}

// Pool-level reads.

// GetPO returns a purchase order without locking.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
}

// ListPOItems returns the order's lines.
func (r *Repository) ListPOItems(ctx context.Context, poID int64) ([]POItem, error) {
	return listPOItems(ctx, r.pool, poID)
}

// GetGR returns a goods receipt without locking.
func (r *Repository) GetGR(ctx context.Context, id int64) (GoodsReceipt, error) {
	return scanGR(r.pool.QueryRow(ctx, `SELECT id, number, COALESCE(po_id, 0), status, notes, created_by, created_at
FROM goods_receipts WHERE id=$1`, id))
}

// ListGRItems returns the receipt's lines.
func (r *Repository) ListGRItems(ctx context.Context, receiptID int64) ([]GRItem, error) {
	return listGRItems(ctx, r.pool, receiptID)
}

func scanGR(row pgx.Row) (GoodsReceipt, error) {
	var gr GoodsReceipt
	err := row.Scan(&gr.ID, &gr.Number, &gr.POID, &gr.Status, &gr.Notes, &gr.CreatedBy, &gr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, shared.ErrNotFound
		}
		return GoodsReceipt{}, err
	}
	return gr, nil
}

func listPOItems(ctx context.Context, q ledger.Querier, poID int64) ([]POItem, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, product_id, ordered_qty, received_qty, unit_price
FROM purchase_order_items WHERE po_id=$1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []POItem
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ProductID, &item.OrderedQty, &item.ReceivedQty, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func listGRItems(ctx context.Context, q ledger.Querier, receiptID int64) ([]GRItem, error) {
	rows, err := q.Query(ctx, `SELECT id, receipt_id, product_id, bin_id, qty, batch_number, expiry_date
FROM goods_receipt_items WHERE receipt_id=$1 ORDER BY id`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GRItem
	for rows.Next() {
		var item GRItem
		if err := rows.Scan(&item.ID, &item.ReceiptID, &item.ProductID, &item.BinID, &item.Qty, &item.BatchNumber, &item.ExpiryDate); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
