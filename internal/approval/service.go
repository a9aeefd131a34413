package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	ActiveRule(ctx context.Context, entityType string) (Rule, error)
	InsertRule(ctx context.Context, rule Rule) (Rule, error)
	ListRules(ctx context.Context, entityType string) ([]Rule, error)
	FindRequest(ctx context.Context, entityType string, entityID int64, status RequestStatus) (Request, error)
	GetRequest(ctx context.Context, id int64) (Request, error)
	InsertRequest(ctx context.Context, req Request) (Request, error)
	ResolveRequest(ctx context.Context, id int64, status RequestStatus, resolvedBy int64, comment string) (Request, error)
	ListRequests(ctx context.Context, status RequestStatus, limit int) ([]Request, error)
}

// Observer counts opened approval requests for metrics.
type Observer interface {
	ApprovalRequested()
}

// Service is the approval gate. Workflow engines call Evaluate before a
// gated transition; a non-clear decision means the transition must fail
// with the pending request id.
type Service struct {
	repo     RepositoryPort
	logger   *slog.Logger
	observer Observer
}

// NewService builds the service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// WithObserver attaches a request counter.
func (s *Service) WithObserver(observer Observer) *Service {
	s.observer = observer
	return s
}

// Evaluate applies the newest active rule for the entity type. Request
// creation is deliberately outside the caller's transaction: the pending
// request must be observable even when the gated transition rolls back.
func (s *Service) Evaluate(ctx context.Context, entityType string, entityID int64, amount decimal.Decimal, actor shared.Actor) (Decision, error) {
	rule, err := s.repo.ActiveRule(ctx, entityType)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Decision{Clear: true}, nil
		}
		return Decision{}, err
	}
	if amount.LessThan(rule.MinAmount) {
		return Decision{Clear: true}, nil
	}

	// Approval persists across repeated transition attempts.
	if _, err := s.repo.FindRequest(ctx, entityType, entityID, StatusApproved); err == nil {
		return Decision{Clear: true}, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Decision{}, err
	}

	if pending, err := s.repo.FindRequest(ctx, entityType, entityID, StatusPending); err == nil {
		return Decision{PendingRequestID: pending.ID}, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Decision{}, err
	}

	created, err := s.repo.InsertRequest(ctx, Request{
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      StatusPending,
		Amount:      amount,
		RequestedBy: actor.UserID,
	})
	if err != nil {
		return Decision{}, err
	}
	if s.observer != nil {
		s.observer.ApprovalRequested()
	}
	s.logger.Info("approval request created",
		slog.String("entity_type", entityType),
		slog.Int64("entity_id", entityID),
		slog.Int64("request_id", created.ID),
		slog.String("amount", amount.String()))
	return Decision{PendingRequestID: created.ID}, nil
}

// Approve resolves a pending request. Only holders of the rule's required
// role may resolve; resolution is terminal.
func (s *Service) Approve(ctx context.Context, id int64, actor shared.Actor, comment string) (Request, error) {
	return s.resolve(ctx, id, StatusApproved, actor, comment)
}

// Reject resolves a pending request negatively.
func (s *Service) Reject(ctx context.Context, id int64, actor shared.Actor, comment string) (Request, error) {
	return s.resolve(ctx, id, StatusRejected, actor, comment)
}

func (s *Service) resolve(ctx context.Context, id int64, status RequestStatus, actor shared.Actor, comment string) (Request, error) {
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending {
		return Request{}, fmt.Errorf("%w: request %d already %s", shared.ErrIntegrityConflict, id, req.Status)
	}
	if rule, err := s.repo.ActiveRule(ctx, req.EntityType); err == nil {
		if rule.RequiredRole != "" && rule.RequiredRole != actor.Role {
			return Request{}, fmt.Errorf("%w: role %q required", shared.ErrValidation, rule.RequiredRole)
		}
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Request{}, err
	}
	resolved, err := s.repo.ResolveRequest(ctx, id, status, actor.UserID, comment)
	if err != nil {
		return Request{}, err
	}
	s.logger.Info("approval request resolved",
		slog.Int64("request_id", id),
		slog.String("status", string(status)),
		slog.Int64("resolved_by", actor.UserID))
	return resolved, nil
}

// CreateRule stores a new rule, active by default.
func (s *Service) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	if rule.EntityType == "" {
		return Rule{}, fmt.Errorf("%w: entity_type required", shared.ErrValidation)
	}
	if rule.MinAmount.IsNegative() {
		return Rule{}, fmt.Errorf("%w: min_amount must not be negative", shared.ErrValidation)
	}
	return s.repo.InsertRule(ctx, rule)
}

// ListRules lists rules, optionally filtered by entity type.
func (s *Service) ListRules(ctx context.Context, entityType string) ([]Rule, error) {
	return s.repo.ListRules(ctx, entityType)
}

// ListRequests lists requests, optionally filtered by status.
func (s *Service) ListRequests(ctx context.Context, status RequestStatus, limit int) ([]Request, error) {
	return s.repo.ListRequests(ctx, status, limit)
}

// GetRequest returns a request by id.
func (s *Service) GetRequest(ctx context.Context, id int64) (Request, error) {
	return s.repo.GetRequest(ctx, id)
}
