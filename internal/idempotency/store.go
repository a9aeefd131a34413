package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotRecorded indicates no record exists for the operation id.
var ErrNotRecorded = errors.New("operation not recorded")

// ErrDuplicate indicates another writer inserted the record first.
var ErrDuplicate = errors.New("operation already recorded")

// Store persists completed operations keyed by operation id.
type Store interface {
	Get(ctx context.Context, operationID string) (Record, error)
	Insert(ctx context.Context, record Record) error
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PgStore backs Store with the client_operation_log table.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore constructs the store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Get loads the stored record for an operation id.
func (s *PgStore) Get(ctx context.Context, operationID string) (Record, error) {
	var r Record
	err := s.pool.QueryRow(ctx, `SELECT id, operation_id, endpoint, method, status_code, response_body, created_at
FROM client_operation_log WHERE operation_id=$1`, operationID).
		Scan(&r.ID, &r.OperationID, &r.Endpoint, &r.Method, &r.StatusCode, &r.Body, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotRecorded
		}
		return Record{}, err
	}
	return r, nil
}

// Insert stores a completed operation. A unique violation on operation_id
// maps to ErrDuplicate; concurrent writers race on the constraint and the
// loser replays the winner's record.
func (s *PgStore) Insert(ctx context.Context, record Record) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO client_operation_log (operation_id, endpoint, method, status_code, response_body)
VALUES ($1, $2, $3, $4, $5)`, record.OperationID, record.Endpoint, record.Method, record.StatusCode, record.Body)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Cleanup removes records older than the retention window.
func (s *PgStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM client_operation_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
