package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotSource loads the full-field state of an entity for before/after
// comparison. A missing entity is not an error: ok is false.
type SnapshotSource interface {
	Snapshot(ctx context.Context, entity, entityID string) (values map[string]any, ok bool, err error)
}

// PgSnapshotSource reads snapshots as row_to_json over a fixed table
// registry. Only registered entities are snapshotted; everything else
// audits without before/after state.
type PgSnapshotSource struct {
	pool   *pgxpool.Pool
	tables map[string]string
}

// NewPgSnapshotSource builds the source with the default entity registry.
func NewPgSnapshotSource(pool *pgxpool.Pool) *PgSnapshotSource {
	return &PgSnapshotSource{
		pool: pool,
		tables: map[string]string{
			"purchase_orders":          "purchase_orders",
			"goods_receipts":           "goods_receipts",
			"goods_issues":             "goods_issues",
			"stock_transfers":          "stock_transfers",
			"interwarehouse_transfers": "interwarehouse_transfers",
			"return_orders":            "return_orders",
			"pick_waves":               "pick_waves",
			"approval_rules":           "approval_rules",
			"approval_requests":        "approval_requests",
			"products":                 "products",
			"warehouses":               "warehouses",
			"bins":                     "bins",
		},
	}
}

// Snapshot returns the entity row as a generic map.
func (s *PgSnapshotSource) Snapshot(ctx context.Context, entity, entityID string) (map[string]any, bool, error) {
	table, registered := s.tables[entity]
	if !registered {
		return nil, false, nil
	}
	id, err := strconv.ParseInt(entityID, 10, 64)
	if err != nil {
		return nil, false, nil
	}
	var raw []byte
	err = s.pool.QueryRow(ctx, `SELECT row_to_json(t) FROM `+table+` t WHERE t.id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, false, err
	}
	return values, true, nil
}
