package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/httpx"
)

// ListerPort abstracts entry listing for the handler.
type ListerPort interface {
	List(ctx context.Context, entity, entityID string, limit int) ([]Entry, error)
}

// Handler serves the audit trail read endpoint.
type Handler struct {
	logger *slog.Logger
	lister ListerPort
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, lister ListerPort) *Handler {
	return &Handler{logger: logger, lister: lister}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit-logs", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entity := strings.ReplaceAll(q.Get("entity"), "-", "_")
	if entity == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entity is required")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	entries, err := h.lister.List(r.Context(), entity, q.Get("entity_id"), limit)
	if err != nil {
		h.logger.Error("list audit logs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"audit_logs": entries})
}
