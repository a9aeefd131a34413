package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Recorder writes and reads audit_logs rows. Writes go through the pool,
// never the caller's transaction, so a rolled-back business operation still
// leaves its audit row.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder returns a new Recorder.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record persists one entry.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.Action == "" || entry.Entity == "" {
		return errors.New("audit entry requires action and entity")
	}
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}
	oldValues, err := json.Marshal(entry.OldValues)
	if err != nil {
		return err
	}
	newValues, err := json.Marshal(entry.NewValues)
	if err != nil {
		return err
	}
	changed := entry.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_logs
(request_id, user_id, action, entity, entity_id, payload, changed_fields, old_values, new_values, status_code, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.RequestID, entry.UserID, entry.Action, entry.Entity, entry.EntityID,
		payload, changed, oldValues, newValues, entry.StatusCode, entry.Error)
	return err
}

// List returns entries for an entity, newest first.
func (r *Recorder) List(ctx context.Context, entity, entityID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, user_id, action, entity, entity_id,
COALESCE(payload, 'null'), changed_fields, COALESCE(old_values, 'null'), COALESCE(new_values, 'null'), status_code, error, created_at
FROM audit_logs WHERE entity=$1 AND ($2 = '' OR entity_id=$2)
ORDER BY created_at DESC, id DESC LIMIT $3`, entity, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var payload, oldValues, newValues []byte
		if err := rows.Scan(&e.ID, &e.RequestID, &e.UserID, &e.Action, &e.Entity, &e.EntityID,
			&payload, &e.ChangedFields, &oldValues, &newValues, &e.StatusCode, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(payload, &e.Payload)
		_ = json.Unmarshal(oldValues, &e.OldValues)
		_ = json.Unmarshal(newValues, &e.NewValues)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
