package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides JSON caching under one key prefix
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get retrieves a cached value; a missing key or a disabled client is a miss
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.key(key)).Err()
}

// GetOrSet fills dest from cache, or from fn on a miss and caches the result.
// A failing cache write does not fail the call.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, bool, error) {
	var value T
	found, err := c.Get(ctx, key, &value)
	if err == nil && found {
		return value, true, nil
	}

	value, err = fn(ctx)
	if err != nil {
		return value, false, err
	}

	_ = c.Set(ctx, key, value, ttl)
	return value, false, nil
}

// Predefined TTLs
const (
	TTLAssetList = 5 * time.Minute // fiat / crypto catalogs
	TTLPrice     = 1 * time.Minute // last prices
	TTLSearch    = 10 * time.Minute
)

// AssetListKey is the cache key of a provider's asset catalog
func AssetListKey(provider, kind string) string {
	return fmt.Sprintf("assets:%s:%s", provider, kind)
}

// PriceKey is the cache key of a base/quote price
func PriceKey(base, quote string) string {
	return fmt.Sprintf("price:%s:%s", strings.ToLower(base), strings.ToLower(quote))
}

// SearchKey is the cache key of an equity search
func SearchKey(provider, query string) string {
	return fmt.Sprintf("search:%s:%s", provider, strings.ToLower(strings.TrimSpace(query)))
}
