package issuing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/db"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Repository provides PostgreSQL backed persistence for goods issues.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations of one unit of work.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (GoodsIssue, error)
	UpdateStatus(ctx context.Context, id int64, status IssueStatus) error
	Create(ctx context.Context, issue GoodsIssue) (int64, error)
	InsertItem(ctx context.Context, item IssueItem) (int64, error)
	ListItems(ctx context.Context, issueID int64) ([]IssueItem, error)
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

func scanIssue(row pgx.Row) (GoodsIssue, error) {
	var issue GoodsIssue
	err := row.Scan(&issue.ID, &issue.Number, &issue.Status, &issue.Notes, &issue.CreatedBy, &issue.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsIssue{}, shared.ErrNotFound
		}
		return GoodsIssue{}, err
	}
	return issue, nil
}

const issueColumns = `id, number, status, notes, created_by, created_at`

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (GoodsIssue, error) {
	return scanIssue(t.tx.QueryRow(ctx, `SELECT `+issueColumns+` FROM goods_issues WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status IssueStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_issues SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (t *txRepo) Create(ctx context.Context, issue GoodsIssue) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_issues (number, status, notes, created_by)
VALUES ($1, $2, $3, $4) RETURNING id`,
		issue.Number, string(issue.Status), issue.Notes, issue.CreatedBy).
		Scan(&id)
	return id, err
}

func (t *txRepo) InsertItem(ctx context.Context, item IssueItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_issue_items (issue_id, product_id, bin_id, qty)
VALUES ($1, $2, $3, $4) RETURNING id`,
		item.IssueID, item.ProductID, item.BinID, item.Qty).
		Scan(&id)
	return id, err
}

func (t *txRepo) ListItems(ctx context.Context, issueID int64) ([]IssueItem, error) {
	return listItems(ctx, t.tx, issueID)
}

// Get returns a goods issue without locking.
func (r *Repository) Get(ctx context.Context, id int64) (GoodsIssue, error) {
	return scanIssue(r.pool.QueryRow(ctx, `SELECT `+issueColumns+` FROM goods_issues WHERE id=$1`, id))
}

// ListItems returns the issue's lines.
func (r *Repository) ListItems(ctx context.Context, issueID int64) ([]IssueItem, error) {
	return listItems(ctx, r.pool, issueID)
}

func listItems(ctx context.Context, q ledger.Querier, issueID int64) ([]IssueItem, error) {
	rows, err := q.Query(ctx, `SELECT id, issue_id, product_id, bin_id, qty
FROM goods_issue_items WHERE issue_id=$1 ORDER BY id`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []IssueItem
	for rows.Next() {
		var item IssueItem
		if err := rows.Scan(&item.ID, &item.IssueID, &item.ProductID, &item.BinID, &item.Qty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
