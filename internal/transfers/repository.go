package transfers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/db"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Repository provides PostgreSQL backed persistence for stock transfers and
// inter-warehouse transfers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations of one unit of work.
type TxRepository interface {
	GetTransferForUpdate(ctx context.Context, id int64) (StockTransfer, error)
	UpdateTransferStatus(ctx context.Context, id int64, status TransferStatus) error
	CreateTransfer(ctx context.Context, transfer StockTransfer) (int64, error)
	InsertTransferItem(ctx context.Context, item TransferItem) (int64, error)
	ListTransferItems(ctx context.Context, transferID int64) ([]TransferItem, error)
	GetIWTForUpdate(ctx context.Context, id int64) (InterWarehouseTransfer, error)
	UpdateIWTStatus(ctx context.Context, id int64, status IWTStatus) error
	CreateIWT(ctx context.Context, transfer InterWarehouseTransfer) (int64, error)
	InsertIWTItem(ctx context.Context, item IWTItem) (int64, error)
	ListIWTItems(ctx context.Context, transferID int64) ([]IWTItem, error)
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

func scanTransfer(row pgx.Row) (StockTransfer, error) {
	var transfer StockTransfer
	err := row.Scan(&transfer.ID, &transfer.Number, &transfer.Status, &transfer.Notes, &transfer.CreatedBy, &transfer.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockTransfer{}, shared.ErrNotFound
		}
		return StockTransfer{}, err
	}
	return transfer, nil
}

func scanIWT(row pgx.Row) (InterWarehouseTransfer, error) {
	var transfer InterWarehouseTransfer
	err := row.Scan(&transfer.ID, &transfer.Number, &transfer.FromWarehouseID, &transfer.ToWarehouseID,
		&transfer.Status, &transfer.Notes, &transfer.CreatedBy, &transfer.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InterWarehouseTransfer{}, shared.ErrNotFound
		}
		return InterWarehouseTransfer{}, err
	}
	return transfer, nil
}

func (t *txRepo) GetTransferForUpdate(ctx context.Context, id int64) (StockTransfer, error) {
	return scanTransfer(t.tx.QueryRow(ctx, `SELECT id, number, status, notes, created_by, created_at
FROM stock_transfers WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateTransferStatus(ctx context.Context, id int64, status TransferStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_transfers SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (t *txRepo) CreateTransfer(ctx context.Context, transfer StockTransfer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_transfers (number, status, notes, created_by)
VALUES ($1, $2, $3, $4) RETURNING id`,
		transfer.Number, string(transfer.Status), transfer.Notes, transfer.CreatedBy).
		Scan(&id)
	return id, err
}

func (t *txRepo) InsertTransferItem(ctx context.Context, item TransferItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_transfer_items (transfer_id, product_id, from_bin_id, to_bin_id, qty)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.TransferID, item.ProductID, item.FromBinID, item.ToBinID, item.Qty).
		Scan(&id)
	return id, err
}

func (t *txRepo) ListTransferItems(ctx context.Context, transferID int64) ([]TransferItem, error) {
	return listTransferItems(ctx, t.tx, transferID)
}

func (t *txRepo) GetIWTForUpdate(ctx context.Context, id int64) (InterWarehouseTransfer, error) {
	return scanIWT(t.tx.QueryRow(ctx, `SELECT id, number, from_warehouse_id, to_warehouse_id, status, notes, created_by, created_at
FROM interwarehouse_transfers WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateIWTStatus(ctx context.Context, id int64, status IWTStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE interwarehouse_transfers SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (t *txRepo) CreateIWT(ctx context.Context, transfer InterWarehouseTransfer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO interwarehouse_transfers (number, from_warehouse_id, to_warehouse_id, status, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		transfer.Number, transfer.FromWarehouseID, transfer.ToWarehouseID, string(transfer.Status), transfer.Notes, transfer.CreatedBy).
		Scan(&id)
	return id, err
}

func (t *txRepo) InsertIWTItem(ctx context.Context, item IWTItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO interwarehouse_transfer_items (transfer_id, product_id, from_bin_id, to_bin_id, qty)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.TransferID, item.ProductID, item.FromBinID, item.ToBinID, item.Qty).
		Scan(&id)
	return id, err
}

func (t *txRepo) ListIWTItems(ctx context.Context, transferID int64) ([]IWTItem, error) {
	return listIWTItems(ctx, t.tx, transferID)
}

// Pool-level reads.

// GetTransfer returns a stock transfer without locking.
func (r *Repository) GetTransfer(ctx context.Context, id int64) (StockTransfer, error) {
	return scanTransfer(r.pool.QueryRow(ctx, `SELECT id, number, status, notes, created_by, created_at
FROM stock_transfers WHERE id=$1`, id))
}

// ListTransferItems returns the transfer's lines.
func (r *Repository) ListTransferItems(ctx context.Context, transferID int64) ([]TransferItem, error) {
	return listTransferItems(ctx, r.pool, transferID)
}

// GetIWT returns an inter-warehouse transfer without locking.
func (r *Repository) GetIWT(ctx context.Context, id int64) (InterWarehouseTransfer, error) {
	return scanIWT(r.pool.QueryRow(ctx, `SELECT id, number, from_warehouse_id, to_warehouse_id, status, notes, created_by, created_at
FROM interwarehouse_transfers WHERE id=$1`, id))
}

// ListIWTItems returns the transfer's lines.
func (r *Repository) ListIWTItems(ctx context.Context, transferID int64) ([]IWTItem, error) {
	return listIWTItems(ctx, r.pool, transferID)
}

func listTransferItems(ctx context.Context, q ledger.Querier, transferID int64) ([]TransferItem, error) {
	rows, err := q.Query(ctx, `SELECT id, transfer_id, product_id, from_bin_id, to_bin_id, qty
FROM stock_transfer_items WHERE transfer_id=$1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransferItem
	for rows.Next() {
		var item TransferItem
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ProductID, &item.FromBinID, &item.ToBinID, &item.Qty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func listIWTItems(ctx context.Context, q ledger.Querier, transferID int64) ([]IWTItem, error) {
	rows, err := q.Query(ctx, `SELECT id, transfer_id, product_id, from_bin_id, to_bin_id, qty
FROM interwarehouse_transfer_items WHERE transfer_id=$1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []IWTItem
	for rows.Next() {
		var item IWTItem
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ProductID, &item.FromBinID, &item.ToBinID, &item.Qty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
