package returns

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/httpx"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Handler wires return order HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers return order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/return-orders", func(r chi.Router) {
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
	Reason string        `json:"reason"`
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
	input := CreateInput{Number: req.Number, Reason: req.Reason, Notes: req.Notes}
	for _, line := range req.Items {
		input.Items = append(input.Items, ItemInput{ProductID: line.ProductID, BinID: line.BinID, Qty: line.Qty})
	}
	order, items, err := h.service.Create(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create return order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, returnResponse(order, items))
}

func returnResponse(order ReturnOrder, items []ReturnItem) map[string]any {
	return map[string]any{
		"id": order.ID, "number": order.Number, "status": order.Status,
		"reason": order.Reason, "notes": order.Notes, "items": items,
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	order, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returnResponse(order, items))
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
	target := ReturnStatus(req.Status)
	switch target {
	case ReturnStatusCompleted, ReturnStatusCancelled:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status "+req.Status)
		return
	}
	order, err := h.service.Transition(r.Context(), id, target, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("return order transition", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": order.ID, "status": order.Status})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
