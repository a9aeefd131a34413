package procurement

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/httpx"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Handler wires procurement HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Post("/", h.handleCreatePO)
		r.Get("/{id}", h.handleGetPO)
		r.Post("/{id}/items", h.handleAddItem)
		r.Patch("/{id}/items/{itemID}", h.handleSetReceived)
		r.Post("/{id}/status", h.handlePOStatus)
		r.Post("/{id}/confirmation", h.handleConfirmation)
	})
	r.Route("/goods-receipts", func(r chi.Router) {
		r.Post("/", h.handleCreateGR)
		r.Get("/{id}", h.handleGetGR)
		r.Post("/{id}/status", h.handleGRStatus)
	})
}

type poItemRequest struct {
	ProductID  int64   `json:"product_id" validate:"required"`
	OrderedQty float64 `json:"ordered_qty" validate:"required,gt=0"`
	UnitPrice  string  `json:"unit_price"`
}

type createPORequest struct {
	Number       string          `json:"number"`
	SupplierID   int64           `json:"supplier_id" validate:"required"`
	ExpectedDate string          `json:"expected_date"`
	Notes        string          `json:"notes"`
	Items        []poItemRequest `json:"items" validate:"dive"`
}

func (h *Handler) handleCreatePO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreatePOInput{Number: req.Number, SupplierID: req.SupplierID, Notes: req.Notes}
	if req.ExpectedDate != "" {
		d, err := time.Parse("2006-01-02", req.ExpectedDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expected_date")
			return
		}
		input.ExpectedDate = &d
	}
	for _, line := range req.Items {
		item, err := parsePOItem(line)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		input.Items = append(input.Items, item)
	}
	po, items, err := h.service.CreatePurchaseOrder(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, poResponse(po, items))
}

func parsePOItem(line poItemRequest) (POItemInput, error) {
	price := decimal.Zero
	if line.UnitPrice != "" {
		var err error
		price, err = decimal.NewFromString(line.UnitPrice)
		if err != nil {
			return POItemInput{}, err
		}
	}
	return POItemInput{ProductID: line.ProductID, OrderedQty: line.OrderedQty, UnitPrice: price}, nil
}

func poResponse(po PurchaseOrder, items []POItem) map[string]any {
	return map[string]any{
		"id":                 po.ID,
		"number":             po.Number,
		"supplier_id":        po.SupplierID,
		"status":             po.Status,
		"confirmation_state": po.ConfirmationState,
		"expected_date":      po.ExpectedDate,
		"ordered_at":         po.OrderedAt,
		"notes":              po.Notes,
		"items":              items,
		"total":              OrderTotal(items),
	}
}

func (h *Handler) handleGetPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	po, items, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, poResponse(po, items))
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req poItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := parsePOItem(req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.AddItem(r.Context(), id, line)
	if err != nil {
		h.logger.Error("add purchase order item", slog.Int64("po_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

type setReceivedRequest struct {
	ReceivedQty *float64 `json:"received_qty" validate:"required"`
}

func (h *Handler) handleSetReceived(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req setReceivedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetItemReceived(r.Context(), id, itemID, *req.ReceivedQty); err != nil {
		h.logger.Error("set received quantity", slog.Int64("po_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": itemID, "received_qty": *req.ReceivedQty})
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) handlePOStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	target := POStatus(req.Status)
	switch target {
	case POStatusApproved, POStatusOrdered, POStatusPartiallyReceived, POStatusCompleted, POStatusCancelled:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status "+req.Status)
		return
	}
	po, err := h.service.Transition(r.Context(), id, target, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("purchase order transition", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": po.ID, "status": po.Status, "ordered_at": po.OrderedAt})
}

type confirmationRequest struct {
	State        string `json:"state" validate:"required"`
	ExpectedDate string `json:"expected_date"`
}

func (h *Handler) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req confirmationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	var expected *time.Time
	if req.ExpectedDate != "" {
		d, err := time.Parse("2006-01-02", req.ExpectedDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expected_date")
			return
		}
		expected = &d
	}
	po, err := h.service.Confirm(r.Context(), id, ConfirmationState(req.State), expected)
	if err != nil {
		h.logger.Error("purchase order confirmation", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": po.ID, "confirmation_state": po.ConfirmationState, "expected_date": po.ExpectedDate})
}

type grItemRequest struct {
	ProductID   int64   `json:"product_id" validate:"required"`
	BinID       int64   `json:"bin_id" validate:"required"`
	Qty         float64 `json:"qty" validate:"required,gt=0"`
	BatchNumber string  `json:"batch_number"`
	ExpiryDate  string  `json:"expiry_date"`
}

type createGRRequest struct {
	Number string          `json:"number"`
	POID   int64           `json:"po_id"`
	Notes  string          `json:"notes"`
	Items  []grItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateGR(w http.ResponseWriter, r *http.Request) {
	var req createGRRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateGRInput{Number: req.Number, POID: req.POID, Notes: req.Notes}
	for _, line := range req.Items {
		item := GRItemInput{ProductID: line.ProductID, BinID: line.BinID, Qty: line.Qty, BatchNumber: line.BatchNumber}
		if line.ExpiryDate != "" {
			d, err := time.Parse("2006-01-02", line.ExpiryDate)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expiry_date")
				return
			}
			item.ExpiryDate = &d
		}
		input.Items = append(input.Items, item)
	}
	gr, items, err := h.service.CreateGoodsReceipt(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create goods receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id": gr.ID, "number": gr.Number, "po_id": gr.POID, "status": gr.Status, "items": items,
	})
}

func (h *Handler) handleGetGR(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	gr, items, err := h.service.GetGoodsReceipt(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id": gr.ID, "number": gr.Number, "po_id": gr.POID, "status": gr.Status, "items": items,
	})
}

func (h *Handler) handleGRStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	target := GRStatus(req.Status)
	switch target {
	case GRStatusCompleted, GRStatusCancelled:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status "+req.Status)
		return
	}
	gr, err := h.service.TransitionGR(r.Context(), id, target, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("goods receipt transition", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": gr.ID, "status": gr.Status})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}
