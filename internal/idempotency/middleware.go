package idempotency

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/httpx"
)

// recorder buffers the downstream response. Nothing reaches the client
// until the operation record is settled, so a losing concurrent writer can
// still return the winner's stored response.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) { r.status = status }

func (r *recorder) Write(p []byte) (int, error) { return r.body.Write(p) }

func (r *recorder) flush(w http.ResponseWriter) {
	for key, values := range r.header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(r.status)
	_, _ = w.Write(r.body.Bytes())
}

// Observer counts served replays for metrics.
type Observer interface {
	ReplayServed()
}

// Middleware is the mutation gateway. Requests carrying an operation id are
// deduplicated: a known id replays the stored response without executing
// the handler; an unknown id executes and then records the outcome.
type Middleware struct {
	store    Store
	logger   *slog.Logger
	observer Observer
}

// NewMiddleware constructs the gateway.
func NewMiddleware(store Store, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{store: store, logger: logger}
}

// WithObserver attaches a replay counter.
func (m *Middleware) WithObserver(observer Observer) *Middleware {
	m.observer = observer
	return m
}

// Handler wraps next with operation-id deduplication.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operationID := r.Header.Get(HeaderOperationID)
		if operationID == "" || !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		if record, err := m.store.Get(r.Context(), operationID); err == nil {
			m.replay(w, r, record)
			return
		} else if !errors.Is(err, ErrNotRecorded) {
			m.logger.Error("operation lookup", slog.String("operation_id", operationID), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "operation lookup failed")
			return
		}

		rec := newRecorder()
		next.ServeHTTP(rec, r)

		// Server faults are not recorded; the client may retry them.
		if rec.status >= http.StatusInternalServerError {
			rec.flush(w)
			return
		}
		err := m.store.Insert(r.Context(), Record{
			OperationID: operationID,
			Endpoint:    r.URL.Path,
			Method:      r.Method,
			StatusCode:  rec.status,
			Body:        rec.body.Bytes(),
		})
		if errors.Is(err, ErrDuplicate) {
			// A concurrent retry won the insert race: return its stored
			// response so both callers observe the same outcome.
			winner, getErr := m.store.Get(r.Context(), operationID)
			if getErr != nil {
				m.logger.Error("operation race fetch", slog.String("operation_id", operationID), slog.Any("error", getErr))
				rec.flush(w)
				return
			}
			m.replay(w, r, winner)
			return
		}
		if err != nil {
			m.logger.Error("operation record", slog.String("operation_id", operationID), slog.Any("error", err))
		}
		rec.flush(w)
	})
}

// replay writes the stored response verbatim, refusing ids reused across a
// different endpoint or method.
func (m *Middleware) replay(w http.ResponseWriter, r *http.Request, record Record) {
	if record.Endpoint != r.URL.Path || record.Method != r.Method {
		httpx.Problem(w, http.StatusConflict, "Operation Id Conflict",
			"operation id is bound to "+record.Method+" "+record.Endpoint)
		return
	}
	if m.observer != nil {
		m.observer.ReplayServed()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotent-Replay", "true")
	w.WriteHeader(record.StatusCode)
	_, _ = w.Write(record.Body)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
