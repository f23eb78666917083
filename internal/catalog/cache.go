package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/daikazu/flexicart-sub000/internal/cart"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client disables caching.
func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// CachedResolver serves repeated lookups of the same product from Redis.
// Failed lookups are never cached, and cache errors fall through to Next.
type CachedResolver struct {
	Next   cart.Resolver
	Cache  *Cache
	Logger zerolog.Logger
}

func productKey(ref cart.ProductRef) string {
	return "catalog:product:" + ref.ProductID + ":" + ref.VariantID
}

// Resolve implements cart.Resolver. The caller's quantity is applied after
// the cache, so cached entries are quantity independent.
func (r CachedResolver) Resolve(ctx context.Context, ref cart.ProductRef) (cart.ItemInput, error) {
	key := productKey(ref)
	var in cart.ItemInput
	hit, err := r.Cache.GetJSON(ctx, key, &in)
	if err != nil {
		r.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_read_failed")
	}
	if hit {
		in.Quantity = ref.Quantity
		return in, nil
	}

	in, err = r.Next.Resolve(ctx, ref)
	if err != nil {
		return cart.ItemInput{}, err
	}
	stored := in
	stored.Quantity = 0
	if err := r.Cache.SetJSON(ctx, key, stored); err != nil {
		r.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_write_failed")
	}
	return in, nil
}
