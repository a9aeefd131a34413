package picking

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/db"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Repository provides PostgreSQL backed persistence for pick waves.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations of one unit of work.
type TxRepository interface {
	GetWaveForUpdate(ctx context.Context, id int64) (PickWave, error)
	UpdateWaveStatus(ctx context.Context, id int64, status WaveStatus) error
	CreateWave(ctx context.Context, wave PickWave) (int64, error)
	InsertTask(ctx context.Context, task PickTask) (int64, error)
	UpdateTaskStatus(ctx context.Context, taskID int64, status TaskStatus) error
	ListTasks(ctx context.Context, waveID int64) ([]PickTask, error)
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

func scanWave(row pgx.Row) (PickWave, error) {
	var wave PickWave
	err := row.Scan(&wave.ID, &wave.Number, &wave.Status, &wave.Notes, &wave.CreatedBy, &wave.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PickWave{}, shared.ErrNotFound
		}
		return PickWave{}, err
	}
	return wave, nil
}

const waveColumns = `id, number, status, notes, created_by, created_at`

func (t *txRepo) GetWaveForUpdate(ctx context.Context, id int64) (PickWave, error) {
	return scanWave(t.tx.QueryRow(ctx, `SELECT `+waveColumns+` FROM pick_waves WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateWaveStatus(ctx context.Context, id int64, status WaveStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE pick_waves SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (t *txRepo) CreateWave(ctx context.Context, wave PickWave) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO pick_waves (number, status, notes, created_by)
VALUES ($1, $2, $3, $4) RETURNING id`,
		wave.Number, string(wave.Status), wave.Notes, wave.CreatedBy).
		Scan(&id)
	return id, err
}

func (t *txRepo) InsertTask(ctx context.Context, task PickTask) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO pick_tasks (wave_id, product_id, bin_id, qty, status)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		task.WaveID, task.ProductID, task.BinID, task.Qty, string(task.Status)).
		Scan(&id)
	return id, err
}

func (t *txRepo) UpdateTaskStatus(ctx context.Context, taskID int64, status TaskStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE pick_tasks SET status=$2 WHERE id=$1`, taskID, string(status))
	return err
}

func (t *txRepo) ListTasks(ctx context.Context, waveID int64) ([]PickTask, error) {
	return listTasks(ctx, t.tx, waveID)
}

// GetWave returns a pick wave without locking.
func (r *Repository) GetWave(ctx context.Context, id int64) (PickWave, error) {
	return scanWave(r.pool.QueryRow(ctx, `SELECT `+waveColumns+` FROM pick_waves WHERE id=$1`, id))
}

// ListTasks returns the wave's tasks.
func (r *Repository) ListTasks(ctx context.Context, waveID int64) ([]PickTask, error) {
	return listTasks(ctx, r.pool, waveID)
}

func listTasks(ctx context.Context, q ledger.Querier, waveID int64) ([]PickTask, error) {
	rows, err := q.Query(ctx, `SELECT id, wave_id, product_id, bin_id, qty, status
FROM pick_tasks WHERE wave_id=$1 ORDER BY id`, waveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []PickTask
	for rows.Next() {
		var task PickTask
		if err := rows.Scan(&task.ID, &task.WaveID, &task.ProductID, &task.BinID, &task.Qty, &task.Status); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
