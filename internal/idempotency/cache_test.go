package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*memoryStore
	gets int
}

func (s *countingStore) Get(ctx context.Context, operationID string) (Record, error) {
	s.gets++
	return s.memoryStore.Get(ctx, operationID)
}

func newCachedStore(t *testing.T) (*CachedStore, *countingStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := &countingStore{memoryStore: newMemoryStore()}
	return NewCachedStore(inner, client, time.Hour), inner
}

func TestCachedStoreBackfillsOnInsert(t *testing.T) {
	cached, inner := newCachedStore(t)
	ctx := context.Background()

	record := Record{
		OperationID: "op-1",
		Endpoint:    "/goods-receipts",
		Method:      http.MethodPost,
		StatusCode:  http.StatusCreated,
		Body:        []byte(`{"id":1}`),
	}
	require.NoError(t, cached.Insert(ctx, record))

	got, err := cached.Get(ctx, "op-1")
	require.NoError(t, err)
	require.Equal(t, record.Body, got.Body)
	require.Zero(t, inner.gets, "insert backfill must serve the replay from redis")
}

func TestCachedStoreReadsThroughOnMiss(t *testing.T) {
	cached, inner := newCachedStore(t)
	ctx := context.Background()

	record := Record{OperationID: "op-2", Endpoint: "/goods-issues", Method: http.MethodPost, StatusCode: http.StatusOK}
	require.NoError(t, inner.Insert(ctx, record))

	got, err := cached.Get(ctx, "op-2")
	require.NoError(t, err)
	require.Equal(t, "op-2", got.OperationID)
	require.Equal(t, 1, inner.gets)

	// Second read is served from the backfilled cache entry.
	_, err = cached.Get(ctx, "op-2")
	require.NoError(t, err)
	require.Equal(t, 1, inner.gets)
}

func TestCachedStoreUnknownOperation(t *testing.T) {
	cached, _ := newCachedStore(t)
	_, err := cached.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotRecorded)
}
