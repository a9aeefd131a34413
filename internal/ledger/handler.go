package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/httpx"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Handler wires the ledger's HTTP endpoints: read projections plus the
// direct adjustment operation.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.handleBalances)
	r.Get("/movements", h.handleMovements)
	r.Post("/adjustments", h.handleAdjustment)
}

type balanceResponse struct {
	ProductID int64   `json:"product_id"`
	BinID     int64   `json:"bin_id"`
	OnHand    float64 `json:"on_hand_qty"`
	Reserved  float64 `json:"reserved_qty"`
	Available float64 `json:"available_qty"`
	Unit      string  `json:"unit"`
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		balances []Balance
		err      error
	)
	switch {
	case q.Get("product_id") != "":
		id, perr := strconv.ParseInt(q.Get("product_id"), 10, 64)
		if perr != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product_id")
			return
		}
		balances, err = h.service.ListBalancesByProduct(r.Context(), id)
	case q.Get("bin_id") != "":
		id, perr := strconv.ParseInt(q.Get("bin_id"), 10, 64)
		if perr != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bin_id")
			return
		}
		balances, err = h.service.ListBalancesByBin(r.Context(), id)
	case q.Get("warehouse_id") != "":
		id, perr := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
		if perr != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse_id")
			return
		}
		balances, err = h.service.ListBalancesByWarehouse(r.Context(), id)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "one of product_id, bin_id or warehouse_id is required")
		return
	}
	if err != nil {
		h.logger.Error("list balances", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{
			ProductID: b.ProductID,
			BinID:     b.BinID,
			OnHand:    b.OnHand,
			Reserved:  b.Reserved,
			Available: b.Available(),
			Unit:      b.Unit,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": out})
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{Type: MovementType(q.Get("type"))}
	if s := q.Get("product_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product_id")
			return
		}
		filter.ProductID = id
	}
	if s := q.Get("from"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if s := q.Get("limit"); s != "" {
		filter.Limit, _ = strconv.Atoi(s)
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

type adjustmentRequest struct {
	ProductID       int64   `json:"product_id" validate:"required"`
	BinID           int64   `json:"bin_id" validate:"required"`
	Delta           float64 `json:"delta" validate:"required"`
	Unit            string  `json:"unit"`
	ReferenceNumber string  `json:"reference_number"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	input := MovementInput{
		Type:            MovementAdjustment,
		ProductID:       req.ProductID,
		Qty:             req.Delta,
		Unit:            req.Unit,
		ReferenceType:   "adjustment",
		ReferenceNumber: req.ReferenceNumber,
		ActorID:         actor.UserID,
	}
	if req.Delta >= 0 {
		input.ToBinID = req.BinID
	} else {
		input.FromBinID = req.BinID
	}
	result, err := h.service.ApplyMovement(r.Context(), input)
	if err != nil {
		h.logger.Error("post adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"movements": result.Movements})
}
