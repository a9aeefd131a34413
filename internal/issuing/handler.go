package issuing

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/httpx"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Handler wires goods issue HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers goods issue routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/goods-issues", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/status", h.handleStatus)
	})
}

type itemRequest struct {
	ProductID int64   `json:"product_id" validate:"required"`
	BinID     int64   `json:"bin_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
}

type createRequest struct {
	Number string        `json:"number"`
	Notes  string        `json:"notes"`
	Items  []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{Number: req.Number, Notes: req.Notes}
	for _, line := range req.Items {
		input.Items = append(input.Items, ItemInput{ProductID: line.ProductID, BinID: line.BinID, Qty: line.Qty})
	}
	issue, items, err := h.service.Create(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create goods issue", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, issueResponse(issue, items))
}

func issueResponse(issue GoodsIssue, items []IssueItem) map[string]any {
	return map[string]any{
		"id": issue.ID, "number": issue.Number, "status": issue.Status, "notes": issue.Notes, "items": items,
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	issue, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, issueResponse(issue, items))
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	target := IssueStatus(req.Status)
	switch target {
	case IssueStatusCompleted, IssueStatusCancelled:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status "+req.Status)
		return
	}
	issue, err := h.service.Transition(r.Context(), id, target, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("goods issue transition", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": issue.ID, "status": issue.Status})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
