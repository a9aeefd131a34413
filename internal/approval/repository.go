package approval

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Repository persists rules and requests. Writes run on the pool directly:
// a pending request must survive even when the transition that triggered it
// rolls back.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActiveRule returns the newest active rule for an entity type.
func (r *Repository) ActiveRule(ctx context.Context, entityType string) (Rule, error) {
	var rule Rule
	err := r.pool.QueryRow(ctx, `SELECT id, entity_type, min_amount, required_role, is_active, created_at
FROM approval_rules WHERE entity_type=$1 AND is_active ORDER BY created_at DESC, id DESC LIMIT 1`, entityType).
		Scan(&rule.ID, &rule.EntityType, &rule.MinAmount, &rule.RequiredRole, &rule.IsActive, &rule.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, shared.ErrNotFound
		}
		return Rule{}, err
	}
	return rule, nil
}

// InsertRule stores a new rule.
func (r *Repository) InsertRule(ctx context.Context, rule Rule) (Rule, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO approval_rules (entity_type, min_amount, required_role, is_active)
VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		rule.EntityType, rule.MinAmount, rule.RequiredRole, rule.IsActive).
		Scan(&rule.ID, &rule.CreatedAt)
	return rule, err
}

// ListRules returns all rules for an entity type, newest first.
func (r *Repository) ListRules(ctx context.Context, entityType string) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, entity_type, min_amount, required_role, is_active, created_at
FROM approval_rules WHERE ($1 = '' OR entity_type=$1) ORDER BY created_at DESC, id DESC`, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.ID, &rule.EntityType, &rule.MinAmount, &rule.RequiredRole, &rule.IsActive, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// FindRequest returns the newest request in the given status for an entity.
func (r *Repository) FindRequest(ctx context.Context, entityType string, entityID int64, status RequestStatus) (Request, error) {
	var req Request
	err := r.pool.QueryRow(ctx, `SELECT id, entity_type, entity_id, status, amount, comment, requested_by, requested_at, resolved_by, resolved_at
FROM approval_requests WHERE entity_type=$1 AND entity_id=$2 AND status=$3 ORDER BY requested_at DESC, id DESC LIMIT 1`,
		entityType, entityID, string(status)).
		Scan(&req.ID, &req.EntityType, &req.EntityID, &req.Status, &req.Amount, &req.Comment,
			&req.RequestedBy, &req.RequestedAt, &req.ResolvedBy, &req.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, shared.ErrNotFound
		}
		return Request{}, err
	}
	return req, nil
}

// GetRequest returns a request by id.
func (r *Repository) GetRequest(ctx context.Context, id int64) (Request, error) {
	var req Request
	err := r.pool.QueryRow(ctx, `SELECT id, entity_type, entity_id, status, amount, comment, requested_by, requested_at, resolved_by, resolved_at
FROM approval_requests WHERE id=$1`, id).
		Scan(&req.ID, &req.EntityType, &req.EntityID, &req.Status, &req.Amount, &req.Comment,
			&req.RequestedBy, &req.RequestedAt, &req.ResolvedBy, &req.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, shared.ErrNotFound
		}
		return Request{}, err
	}
	return req, nil
}

// InsertRequest stores a new pending request.
func (r *Repository) InsertRequest(ctx context.Context, req Request) (Request, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO approval_requests (entity_type, entity_id, status, amount, comment, requested_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, requested_at`,
		req.EntityType, req.EntityID, string(req.Status), req.Amount, req.Comment, req.RequestedBy).
		Scan(&req.ID, &req.RequestedAt)
	return req, err
}

// ResolveRequest sets a terminal status on a pending request. The status
// predicate makes resolution single-shot under concurrency.
func (r *Repository) ResolveRequest(ctx context.Context, id int64, status RequestStatus, resolvedBy int64, comment string) (Request, error) {
	var req Request
	err := r.pool.QueryRow(ctx, `UPDATE approval_requests
SET status=$2, resolved_by=$3, resolved_at=NOW(), comment=CASE WHEN $4 = '' THEN comment ELSE $4 END
WHERE id=$1 AND status='pending'
RETURNING id, entity_type, entity_id, status, amount, comment, requested_by, requested_at, resolved_by, resolved_at`,
		id, string(status), resolvedBy, comment).
		Scan(&req.ID, &req.EntityType, &req.EntityID, &req.Status, &req.Amount, &req.Comment,
			&req.RequestedBy, &req.RequestedAt, &req.ResolvedBy, &req.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, shared.ErrIntegrityConflict
		}
		return Request{}, err
	}
	return req, nil
}

// ListRequests returns requests filtered by status, newest first.
func (r *Repository) ListRequests(ctx context.Context, status RequestStatus, limit int) ([]Request, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, entity_type, entity_id, status, amount, comment, requested_by, requested_at, resolved_by, resolved_at
FROM approval_requests WHERE ($1 = '' OR status=$1) ORDER BY requested_at DESC, id DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.EntityType, &req.EntityID, &req.Status, &req.Amount, &req.Comment,
			&req.RequestedBy, &req.RequestedAt, &req.ResolvedBy, &req.ResolvedAt); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}
