package masterdata

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TrackedLookup answers whether a product is batch tracked.
type TrackedLookup interface {
	BatchTracked(ctx context.Context, productID int64) (bool, error)
}

// CachedProducts layers a redis read-through cache over the batch tracking
// flag. Issue completion asks per line, so the flag is on a hot path.
type CachedProducts struct {
	inner  TrackedLookup
	client *redis.Client
	ttl    time.Duration
}

// NewCachedProducts wraps inner with a redis cache.
func NewCachedProducts(inner TrackedLookup, client *redis.Client, ttl time.Duration) *CachedProducts {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedProducts{inner: inner, client: client, ttl: ttl}
}

func trackedKey(productID int64) string {
	return "masterdata:product:tracked:" + strconv.FormatInt(productID, 10)
}

// BatchTracked returns the cached flag, falling back to the repository.
// Unknown products are not cached so a later insert is picked up.
func (c *CachedProducts) BatchTracked(ctx context.Context, productID int64) (bool, error) {
	raw, err := c.client.Get(ctx, trackedKey(productID)).Result()
	if err == nil {
		return raw == "1", nil
	} else if !errors.Is(err, redis.Nil) {
		// Cache outage must not block issuing; read through.
		_ = err
	}
	tracked, err := c.inner.BatchTracked(ctx, productID)
	if err != nil {
		return false, err
	}
	value := "0"
	if tracked {
		value = "1"
	}
	c.client.Set(ctx, trackedKey(productID), value, c.ttl)
	return tracked, nil
}

// Invalidate drops the cached flag for a product.
func (c *CachedProducts) Invalidate(ctx context.Context, productID int64) {
	c.client.Del(ctx, trackedKey(productID))
}

var _ TrackedLookup = (*CachedProducts)(nil)
