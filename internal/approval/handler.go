package approval

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/httpx"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Handler serves rule management and request resolution endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers approval routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/approval-rules", h.handleCreateRule)
	r.Get("/approval-rules", h.handleListRules)
	r.Get("/approval-requests", h.handleListRequests)
	r.Post("/approval-requests/{id}/approve", h.handleApprove)
	r.Post("/approval-requests/{id}/reject", h.handleReject)
}

type createRuleRequest struct {
	EntityType   string `json:"entity_type" validate:"required"`
	MinAmount    string `json:"min_amount" validate:"required"`
	RequiredRole string `json:"required_role" validate:"required"`
	IsActive     *bool  `json:"is_active"`
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	minAmount, err := decimal.NewFromString(req.MinAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid min_amount")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	rule, err := h.service.CreateRule(r.Context(), Rule{
		EntityType:   req.EntityType,
		MinAmount:    minAmount,
		RequiredRole: req.RequiredRole,
		IsActive:     active,
	})
	if err != nil {
		h.logger.Error("create approval rule", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context(), r.URL.Query().Get("entity_type"))
	if err != nil {
		h.logger.Error("list approval rules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	requests, err := h.service.ListRequests(r.Context(), RequestStatus(q.Get("status")), limit)
	if err != nil {
		h.logger.Error("list approval requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": requests})
}

type resolveRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleResolve(w, r, StatusApproved)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleResolve(w, r, StatusRejected)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request, status RequestStatus) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return
	}
	var req resolveRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
			return
		}
	}
	actor := shared.ActorFromContext(r.Context())
	var resolved Request
	if status == StatusApproved {
		resolved, err = h.service.Approve(r.Context(), id, actor, req.Comment)
	} else {
		resolved, err = h.service.Reject(r.Context(), id, actor, req.Comment)
	}
	if err != nil {
		h.logger.Error("resolve approval request", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resolved)
}
