package audit

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRecorder struct {
	entries []Entry
}

func (m *memoryRecorder) Record(_ context.Context, entry Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

// mapSnapshots serves canned before/after states keyed by entity/id and
// swaps to the after state once the handler has run.
type mapSnapshots struct {
	before map[string]map[string]any
	after  map[string]map[string]any
	fired  bool
}

func (m *mapSnapshots) Snapshot(_ context.Context, entity, entityID string) (map[string]any, bool, error) {
	key := entity + "/" + entityID
	source := m.before
	if m.fired {
		source = m.after
	}
	m.fired = true
	values, ok := source[key]
	return values, ok, nil
}

func TestChangedFields(t *testing.T) {
	old := map[string]any{"status": "draft", "total": 100.0, "notes": "x"}
	updated := map[string]any{"status": "approved", "total": 100.0, "approved_by": float64(7)}
	require.Equal(t, []string{"approved_by", "notes", "status"}, ChangedFields(old, updated))
	require.Empty(t, ChangedFields(old, old))
}

func TestMiddlewareRecordsMutation(t *testing.T) {
	recorder := &memoryRecorder{}
	snapshots := &mapSnapshots{
		before: map[string]map[string]any{"purchase_orders/12": {"status": "draft"}},
		after:  map[string]map[string]any{"purchase_orders/12": {"status": "approved"}},
	}
	mw := NewMiddleware(recorder, snapshots, slog.Default())
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":12,"status":"approved"}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/purchase-orders/12/status", strings.NewReader(`{"status":"approved"}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	require.Equal(t, "purchase_orders", entry.Entity)
	require.Equal(t, "12", entry.EntityID)
	require.Equal(t, http.MethodPost, entry.Action)
	require.Equal(t, http.StatusOK, entry.StatusCode)
	require.Equal(t, "approved", entry.Payload["status"])
	require.Equal(t, []string{"status"}, entry.ChangedFields)
	require.Equal(t, "draft", entry.OldValues["status"])
	require.Equal(t, "approved", entry.NewValues["status"])
	require.Empty(t, entry.Error)
}

func TestMiddlewareRecordsFailureWithUnchangedState(t *testing.T) {
	recorder := &memoryRecorder{}
	snapshots := &mapSnapshots{
		before: map[string]map[string]any{"purchase_orders/12": {"status": "completed"}},
		after:  map[string]map[string]any{"purchase_orders/12": {"status": "completed"}},
	}
	mw := NewMiddleware(recorder, snapshots, slog.Default())
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"title":"Invalid Transition","detail":"cannot move completed to draft"}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/purchase-orders/12/status", strings.NewReader(`{"status":"draft"}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	require.Equal(t, http.StatusConflict, entry.StatusCode)
	require.Equal(t, "cannot move completed to draft", entry.Error)
	require.Empty(t, entry.ChangedFields)
}

func TestMiddlewareDerivesCreatedID(t *testing.T) {
	recorder := &memoryRecorder{}
	mw := NewMiddleware(recorder, &mapSnapshots{}, slog.Default())
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":99,"status":"draft"}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/purchase-orders", strings.NewReader(`{"supplier_id":3}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, recorder.entries, 1)
	require.Equal(t, "99", recorder.entries[0].EntityID)
}

func TestMiddlewareIgnoresReads(t *testing.T) {
	recorder := &memoryRecorder{}
	mw := NewMiddleware(recorder, nil, slog.Default())
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/stock/balances", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Empty(t, recorder.entries)
}

func TestMiddlewareRestoresRequestBody(t *testing.T) {
	recorder := &memoryRecorder{}
	mw := NewMiddleware(recorder, nil, slog.Default())
	var seen string
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := make([]byte, 64)
		n, _ := r.Body.Read(raw)
		seen = string(raw[:n])
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/goods-receipts", strings.NewReader(`{"order_id":1}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, `{"order_id":1}`, seen)
}
