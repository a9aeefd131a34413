package approval

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

type memoryRepo struct {
	rules    []Rule
	requests []Request
	nextID   int64
}

func (m *memoryRepo) ActiveRule(_ context.Context, entityType string) (Rule, error) {
	var newest *Rule
	for i := range m.rules {
		rule := &m.rules[i]
		if rule.EntityType != entityType || !rule.IsActive {
			continue
		}
		if newest == nil || rule.CreatedAt.After(newest.CreatedAt) ||
			(rule.CreatedAt.Equal(newest.CreatedAt) && rule.ID > newest.ID) {
			newest = rule
		}
	}
	if newest == nil {
		return Rule{}, shared.ErrNotFound
	}
	return *newest, nil
}

func (m *memoryRepo) InsertRule(_ context.Context, rule Rule) (Rule, error) {
	m.nextID++
	rule.ID = m.nextID
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	m.rules = append(m.rules, rule)
	return rule, nil
}

func (m *memoryRepo) ListRules(_ context.Context, entityType string) ([]Rule, error) {
	var out []Rule
	for _, rule := range m.rules {
		if entityType == "" || rule.EntityType == entityType {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (m *memoryRepo) FindRequest(_ context.Context, entityType string, entityID int64, status RequestStatus) (Request, error) {
	for i := len(m.requests) - 1; i >= 0; i-- {
		req := m.requests[i]
		if req.EntityType == entityType && req.EntityID == entityID && req.Status == status {
			return req, nil
		}
	}
	return Request{}, shared.ErrNotFound
}

func (m *memoryRepo) GetRequest(_ context.Context, id int64) (Request, error) {
	for _, req := range m.requests {
		if req.ID == id {
			return req, nil
		}
	}
	return Request{}, shared.ErrNotFound
}

func (m *memoryRepo) InsertRequest(_ context.Context, req Request) (Request, error) {
	m.nextID++
	req.ID = m.nextID
	req.RequestedAt = time.Now()
	m.requests = append(m.requests, req)
	return req, nil
}

func (m *memoryRepo) ResolveRequest(_ context.Context, id int64, status RequestStatus, resolvedBy int64, comment string) (Request, error) {
	for i := range m.requests {
		if m.requests[i].ID == id && m.requests[i].Status == StatusPending {
			now := time.Now()
			m.requests[i].Status = status
			m.requests[i].ResolvedBy = &resolvedBy
			m.requests[i].ResolvedAt = &now
			if comment != "" {
				m.requests[i].Comment = comment
			}
			return m.requests[i], nil
		}
	}
	return Request{}, shared.ErrIntegrityConflict
}

func (m *memoryRepo) ListRequests(_ context.Context, status RequestStatus, _ int) ([]Request, error) {
	var out []Request
	for _, req := range m.requests {
		if status == "" || req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

func amount(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

var buyer = shared.Actor{UserID: 3, Role: "buyer"}
var manager = shared.Actor{UserID: 9, Role: "manager"}

func newGate(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := &memoryRepo{}
	return NewService(repo, slog.Default()), repo
}

func TestEvaluateClearWithoutRule(t *testing.T) {
	svc, _ := newGate(t)
	decision, err := svc.Evaluate(context.Background(), "purchase_order", 1, amount("99999"), buyer)
	require.NoError(t, err)
	require.True(t, decision.Clear)
}

func TestEvaluateClearBelowThreshold(t *testing.T) {
	svc, _ := newGate(t)
	_, err := svc.CreateRule(context.Background(), Rule{EntityType: "purchase_order", MinAmount: amount("1000"), RequiredRole: "manager", IsActive: true})
	require.NoError(t, err)

	decision, err := svc.Evaluate(context.Background(), "purchase_order", 1, amount("999.99"), buyer)
	require.NoError(t, err)
	require.True(t, decision.Clear)
}

func TestEvaluateCreatesAndReusesPendingRequest(t *testing.T) {
	svc, repo := newGate(t)
	ctx := context.Background()
	_, err := svc.CreateRule(ctx, Rule{EntityType: "purchase_order", MinAmount: amount("1000"), RequiredRole: "manager", IsActive: true})
	require.NoError(t, err)

	first, err := svc.Evaluate(ctx, "purchase_order", 7, amount("1500"), buyer)
	require.NoError(t, err)
	require.False(t, first.Clear)
	require.NotZero(t, first.PendingRequestID)

	second, err := svc.Evaluate(ctx, "purchase_order", 7, amount("1500"), buyer)
	require.NoError(t, err)
	require.Equal(t, first.PendingRequestID, second.PendingRequestID)
	require.Len(t, repo.requests, 1, "repeated evaluation must not stack pending requests")
}

func TestEvaluateClearAfterApproval(t *testing.T) {
	svc, _ := newGate(t)
	ctx := context.Background()
	_, err := svc.CreateRule(ctx, Rule{EntityType: "purchase_order", MinAmount: amount("1000"), RequiredRole: "manager", IsActive: true})
	require.NoError(t, err)

	gated, err := svc.Evaluate(ctx, "purchase_order", 7, amount("1500"), buyer)
	require.NoError(t, err)
	require.False(t, gated.Clear)

	_, err = svc.Approve(ctx, gated.PendingRequestID, manager, "ok")
	require.NoError(t, err)

	retried, err := svc.Evaluate(ctx, "purchase_order", 7, amount("1500"), buyer)
	require.NoError(t, err)
	require.True(t, retried.Clear, "approval persists across repeated transition attempts")
}

func TestEvaluateNewestActiveRuleWins(t *testing.T) {
	svc, repo := newGate(t)
	ctx := context.Background()
	repo.rules = []Rule{
		{ID: 1, EntityType: "purchase_order", MinAmount: amount("100"), RequiredRole: "manager", IsActive: true, CreatedAt: time.Now().Add(-time.Hour)},
		{ID: 2, EntityType: "purchase_order", MinAmount: amount("5000"), RequiredRole: "manager", IsActive: true, CreatedAt: time.Now()},
	}
	repo.nextID = 2

	decision, err := svc.Evaluate(ctx, "purchase_order", 7, amount("800"), buyer)
	require.NoError(t, err)
	require.True(t, decision.Clear, "the newer rule's higher threshold applies")
}

func TestResolveIsTerminal(t *testing.T) {
	svc, _ := newGate(t)
	ctx := context.Background()
	_, err := svc.CreateRule(ctx, Rule{EntityType: "purchase_order", MinAmount: amount("1000"), RequiredRole: "manager", IsActive: true})
	require.NoError(t, err)

	gated, err := svc.Evaluate(ctx, "purchase_order", 7, amount("1500"), buyer)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, gated.PendingRequestID, manager, "too expensive")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, gated.PendingRequestID, manager, "")
	require.ErrorIs(t, err, shared.ErrIntegrityConflict)
}

func TestResolveEnforcesRequiredRole(t *testing.T) {
	svc, _ := newGate(t)
	ctx := context.Background()
	_, err := svc.CreateRule(ctx, Rule{EntityType: "purchase_order", MinAmount: amount("1000"), RequiredRole: "manager", IsActive: true})
	require.NoError(t, err)

	gated, err := svc.Evaluate(ctx, "purchase_order", 7, amount("1500"), buyer)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, gated.PendingRequestID, buyer, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}
