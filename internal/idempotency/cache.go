package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore layers a redis read-through cache over another Store.
// Replays hit redis; misses fall back to the database and backfill.
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
}

// NewCachedStore wraps inner with a redis cache.
func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl}
}

func cacheKey(operationID string) string {
	return "idempotency:op:" + operationID
}

// Get returns the cached record, falling back to the inner store.
func (c *CachedStore) Get(ctx context.Context, operationID string) (Record, error) {
	raw, err := c.client.Get(ctx, cacheKey(operationID)).Bytes()
	if err == nil {
		var r Record
		if err := json.Unmarshal(raw, &r); err == nil {
			return r, nil
		}
		// Corrupt cache entry: drop it and read through.
		c.client.Del(ctx, cacheKey(operationID))
	} else if !errors.Is(err, redis.Nil) {
		// Cache outage must not break dedup; read through.
		_ = err
	}
	record, err := c.inner.Get(ctx, operationID)
	if err != nil {
		return Record{}, err
	}
	c.backfill(ctx, record)
	return record, nil
}

// Insert writes through to the inner store and caches on success.
func (c *CachedStore) Insert(ctx context.Context, record Record) error {
	if err := c.inner.Insert(ctx, record); err != nil {
		return err
	}
	c.backfill(ctx, record)
	return nil
}

// Cleanup delegates to the inner store. Cached entries expire via TTL.
func (c *CachedStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	return c.inner.Cleanup(ctx, olderThan)
}

func (c *CachedStore) backfill(ctx context.Context, record Record) {
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(record.OperationID), raw, c.ttl)
}
