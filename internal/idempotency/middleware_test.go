package idempotency

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	records map[string]Record
	// insertErr forces the next Insert to fail, emulating a lost race.
	insertErr error
	// getMisses makes that many Gets report ErrNotRecorded even when a
	// record exists, emulating a winner landing after the lookup.
	getMisses int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]Record)}
}

func (s *memoryStore) Get(_ context.Context, operationID string) (Record, error) {
	if s.getMisses > 0 {
		s.getMisses--
		return Record{}, ErrNotRecorded
	}
	if r, ok := s.records[operationID]; ok {
		return r, nil
	}
	return Record{}, ErrNotRecorded
}

func (s *memoryStore) Insert(_ context.Context, record Record) error {
	if s.insertErr != nil {
		err := s.insertErr
		s.insertErr = nil
		return err
	}
	if _, ok := s.records[record.OperationID]; ok {
		return ErrDuplicate
	}
	record.CreatedAt = time.Now()
	s.records[record.OperationID] = record
	return nil
}

func (s *memoryStore) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	var removed int64
	for key, r := range s.records {
		if r.CreatedAt.Before(cutoff) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

func countingHandler(calls *int, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	mw := NewMiddleware(store, slog.Default())
	calls := 0
	handler := mw.Handler(countingHandler(&calls, http.StatusCreated, `{"id":42}`))

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/goods-receipts", strings.NewReader(`{}`))
	req.Header.Set(HeaderOperationID, "op-1")
	handler.ServeHTTP(first, req)
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, 1, calls)

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/goods-receipts", strings.NewReader(`{}`))
	req.Header.Set(HeaderOperationID, "op-1")
	handler.ServeHTTP(second, req)

	require.Equal(t, 1, calls, "replay must not re-execute the handler")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	require.Len(t, store.records, 1)
}

func TestMiddlewareCrossEndpointConflict(t *testing.T) {
	store := newMemoryStore()
	mw := NewMiddleware(store, slog.Default())
	calls := 0
	handler := mw.Handler(countingHandler(&calls, http.StatusCreated, `{"id":1}`))

	req := httptest.NewRequest(http.MethodPost, "/goods-receipts", nil)
	req.Header.Set(HeaderOperationID, "op-2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/goods-issues", nil)
	req.Header.Set(HeaderOperationID, "op-2")
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, 1, calls)
	require.Contains(t, w.Body.String(), "/goods-receipts")
}

func TestMiddlewareWithoutHeaderNeverDedupes(t *testing.T) {
	store := newMemoryStore()
	mw := NewMiddleware(store, slog.Default())
	calls := 0
	handler := mw.Handler(countingHandler(&calls, http.StatusOK, `{}`))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/goods-receipts", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Equal(t, 3, calls)
	require.Empty(t, store.records)
}

func TestMiddlewareRecordsBusinessFailures(t *testing.T) {
	store := newMemoryStore()
	mw := NewMiddleware(store, slog.Default())
	calls := 0
	handler := mw.Handler(countingHandler(&calls, http.StatusConflict, `{"title":"Invalid Transition"}`))

	req := httptest.NewRequest(http.MethodPost, "/purchase-orders/1/status", nil)
	req.Header.Set(HeaderOperationID, "op-3")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/purchase-orders/1/status", nil)
	req.Header.Set(HeaderOperationID, "op-3")
	handler.ServeHTTP(w, req)

	require.Equal(t, 1, calls, "a recorded business failure replays too")
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestMiddlewareSkipsServerFaults(t *testing.T) {
	store := newMemoryStore()
	mw := NewMiddleware(store, slog.Default())
	calls := 0
	handler := mw.Handler(countingHandler(&calls, http.StatusInternalServerError, `{}`))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/goods-receipts", nil)
		req.Header.Set(HeaderOperationID, "op-4")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Equal(t, 2, calls, "server faults are retryable")
	require.Empty(t, store.records)
}

func TestMiddlewareInsertRaceReturnsWinner(t *testing.T) {
	store := newMemoryStore()
	mw := NewMiddleware(store, slog.Default())
	calls := 0
	handler := mw.Handler(countingHandler(&calls, http.StatusCreated, `{"id":"loser"}`))

	// The winner's record lands between this request's lookup and insert:
	// the initial Get misses, the insert hits the unique constraint, and
	// the follow-up Get serves the winner.
	store.records["op-5"] = Record{
		OperationID: "op-5",
		Endpoint:    "/goods-receipts",
		Method:      http.MethodPost,
		StatusCode:  http.StatusCreated,
		Body:        []byte(`{"id":"winner"}`),
	}
	store.getMisses = 1
	store.insertErr = ErrDuplicate

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/goods-receipts", nil)
	req.Header.Set(HeaderOperationID, "op-5")
	handler.ServeHTTP(w, req)

	require.Equal(t, 1, calls)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), "winner")
}
