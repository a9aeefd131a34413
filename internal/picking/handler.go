package picking

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/httpx"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Handler wires pick wave HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers pick wave routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/pick-waves", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/release", h.handleRelease)
		r.Post("/{id}/tasks/{taskID}/pick", h.handlePick)
		r.Post("/{id}/tasks/{taskID}/skip", h.handleSkip)
		r.Post("/{id}/status", h.handleStatus)
	})
}

type taskRequest struct {
	ProductID int64   `json:"product_id" validate:"required"`
	BinID     int64   `json:"bin_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
}

type createRequest struct {
	Number string        `json:"number"`
	Notes  string        `json:"notes"`
	Tasks  []taskRequest `json:"tasks" validate:"required,min=1,dive"`
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
	for _, line := range req.Tasks {
		input.Tasks = append(input.Tasks, TaskInput{ProductID: line.ProductID, BinID: line.BinID, Qty: line.Qty})
	}
	wave, tasks, err := h.service.Create(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create pick wave", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, waveResponse(wave, tasks))
}

func waveResponse(wave PickWave, tasks []PickTask) map[string]any {
	return map[string]any{
		"id": wave.ID, "number": wave.Number, "status": wave.Status, "notes": wave.Notes, "tasks": tasks,
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	wave, tasks, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, waveResponse(wave, tasks))
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	wave, err := h.service.Release(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("release pick wave", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": wave.ID, "status": wave.Status})
}

func (h *Handler) handlePick(w http.ResponseWriter, r *http.Request) {
	h.finishTask(w, r, true)
}

func (h *Handler) handleSkip(w http.ResponseWriter, r *http.Request) {
	h.finishTask(w, r, false)
}

func (h *Handler) finishTask(w http.ResponseWriter, r *http.Request, pick bool) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	taskID, ok := h.pathID(w, r, "taskID")
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	var task PickTask
	var err error
	if pick {
		task, err = h.service.PickTask(r.Context(), id, taskID, actor)
	} else {
		task, err = h.service.SkipTask(r.Context(), id, taskID, actor)
	}
	if err != nil {
		h.logger.Error("finish pick task", slog.Int64("wave_id", id), slog.Int64("task_id", taskID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	target := WaveStatus(req.Status)
	switch target {
	case WaveStatusReleased, WaveStatusCompleted, WaveStatusCancelled:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status "+req.Status)
		return
	}
	wave, err := h.service.Transition(r.Context(), id, target, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("pick wave transition", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": wave.ID, "status": wave.Status})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}
