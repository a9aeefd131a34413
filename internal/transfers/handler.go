package transfers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/httpx"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Handler wires transfer HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/stock-transfers", func(r chi.Router) {
		r.Post("/", h.handleCreateTransfer)
		r.Get("/{id}", h.handleGetTransfer)
		r.Post("/{id}/status", h.handleTransferStatus)
	})
	r.Route("/interwarehouse-transfers", func(r chi.Router) {
		r.Post("/", h.handleCreateIWT)
		r.Get("/{id}", h.handleGetIWT)
		r.Post("/{id}/status", h.handleIWTStatus)
	})
}

type itemRequest struct {
	ProductID int64   `json:"product_id" validate:"required"`
	FromBinID int64   `json:"from_bin_id" validate:"required"`
	ToBinID   int64   `json:"to_bin_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
}

type createTransferRequest struct {
	Number string        `json:"number"`
	Notes  string        `json:"notes"`
	Items  []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateTransferInput{Number: req.Number, Notes: req.Notes, Items: itemInputs(req.Items)}
	transfer, items, err := h.service.CreateTransfer(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create stock transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id": transfer.ID, "number": transfer.Number, "status": transfer.Status, "items": items,
	})
}

func itemInputs(lines []itemRequest) []ItemInput {
	out := make([]ItemInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, ItemInput{ProductID: line.ProductID, FromBinID: line.FromBinID, ToBinID: line.ToBinID, Qty: line.Qty})
	}
	return out
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	transfer, items, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id": transfer.ID, "number": transfer.Number, "status": transfer.Status, "items": items,
	})
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) handleTransferStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	target := TransferStatus(req.Status)
	switch target {
	case TransferStatusCompleted, TransferStatusCancelled:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status "+req.Status)
		return
	}
	transfer, err := h.service.TransitionTransfer(r.Context(), id, target, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("stock transfer transition", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": transfer.ID, "status": transfer.Status})
}

type createIWTRequest struct {
	Number          string        `json:"number"`
	FromWarehouseID int64         `json:"from_warehouse_id" validate:"required"`
	ToWarehouseID   int64         `json:"to_warehouse_id" validate:"required"`
	Notes           string        `json:"notes"`
	Items           []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateIWT(w http.ResponseWriter, r *http.Request) {
	var req createIWTRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateIWTInput{
		Number:          req.Number,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Notes:           req.Notes,
		Items:           itemInputs(req.Items),
	}
	transfer, items, err := h.service.CreateIWT(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create interwarehouse transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, iwtResponse(transfer, items))
}

func iwtResponse(transfer InterWarehouseTransfer, items []IWTItem) map[string]any {
	return map[string]any{
		"id":                transfer.ID,
		"number":            transfer.Number,
		"from_warehouse_id": transfer.FromWarehouseID,
		"to_warehouse_id":   transfer.ToWarehouseID,
		"status":            transfer.Status,
		"items":             items,
	}
}

func (h *Handler) handleGetIWT(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	transfer, items, err := h.service.GetIWT(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, iwtResponse(transfer, items))
}

func (h *Handler) handleIWTStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	target := IWTStatus(req.Status)
	switch target {
	case IWTStatusInTransit, IWTStatusCompleted, IWTStatusCancelled:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status "+req.Status)
		return
	}
	transfer, err := h.service.TransitionIWT(r.Context(), id, target, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("interwarehouse transfer transition", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": transfer.ID, "status": transfer.Status})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
