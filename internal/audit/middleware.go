package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// RecorderPort abstracts entry persistence for the middleware.
type RecorderPort interface {
	Record(ctx context.Context, entry Entry) error
}

// Middleware captures an audit entry for every mutating request: actor,
// action, path-derived entity and id, payload, before/after snapshots and
// the changed-field diff. The entry is written after the response whatever
// the outcome, so failed operations are documented too.
type Middleware struct {
	recorder  RecorderPort
	snapshots SnapshotSource
	logger    *slog.Logger
}

// NewMiddleware constructs the audit middleware.
func NewMiddleware(recorder RecorderPort, snapshots SnapshotSource, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{recorder: recorder, snapshots: snapshots, logger: logger}
}

// Handler wraps next with audit recording.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		entity, entityID := entityFromPath(r.URL.Path)
		payload := readPayload(r)

		var before map[string]any
		if m.snapshots != nil {
			snapshot, ok, err := m.snapshots.Snapshot(r.Context(), entity, entityID)
			if err != nil {
				m.logger.Error("audit before snapshot", slog.Any("error", err))
			} else if ok {
				before = snapshot
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Creation responses carry the new id in the body.
		if entityID == "" {
			entityID = idFromResponse(rec.body.Bytes())
		}

		var after map[string]any
		if m.snapshots != nil {
			snapshot, ok, err := m.snapshots.Snapshot(r.Context(), entity, entityID)
			if err != nil {
				m.logger.Error("audit after snapshot", slog.Any("error", err))
			} else if ok {
				after = snapshot
			}
		}

		actor := shared.ActorFromContext(r.Context())
		entry := Entry{
			RequestID:     middleware.GetReqID(r.Context()),
			UserID:        actor.UserID,
			Action:        r.Method,
			Entity:        entity,
			EntityID:      entityID,
			Payload:       payload,
			ChangedFields: ChangedFields(before, after),
			OldValues:     before,
			NewValues:     after,
			StatusCode:    rec.status,
		}
		if rec.status >= http.StatusBadRequest {
			entry.Error = problemDetail(rec.body.Bytes())
		}
		if err := m.recorder.Record(r.Context(), entry); err != nil {
			m.logger.Error("audit record", slog.String("entity", entity), slog.Any("error", err))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// entityFromPath maps "/purchase-orders/12/status" to ("purchase_orders", "12").
func entityFromPath(path string) (string, string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", ""
	}
	entity := strings.ReplaceAll(parts[0], "-", "_")
	if len(parts) > 1 {
		return entity, parts[1]
	}
	return entity, ""
}

// readPayload decodes the request body and restores it for the handler.
func readPayload(r *http.Request) map[string]any {
	if r.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	return payload
}

func idFromResponse(body []byte) string {
	var decoded struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	return decoded.ID.String()
}

func problemDetail(body []byte) string {
	var decoded struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	if decoded.Detail != "" {
		return decoded.Detail
	}
	return decoded.Title
}
