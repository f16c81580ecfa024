package currency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RateCache stores fetched exchange rates. A zero ttl means no expiry.
type RateCache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool)
	Set(ctx context.Context, key string, rate decimal.Decimal, ttl time.Duration)
}

type lruEntry struct {
	rate      decimal.Decimal
	expiresAt time.Time
}

// LRUCache is an in-process cache with per-entry expiry.
type LRUCache struct {
	mu    sync.Mutex
	cache *simplelru.LRU[string, lruEntry]
	now   func() time.Time
}

// NewLRUCache creates a cache holding at most size rates.
func NewLRUCache(size int) (*LRUCache, error) {
	c, err := simplelru.NewLRU[string, lruEntry](size, nil)
	if err != nil {
		return nil, fmt.Errorf("create rate cache: %w", err)
	}
	return &LRUCache{cache: c, now: time.Now}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(key)
	if !ok {
		return decimal.Decimal{}, false
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.cache.Remove(key)
		return decimal.Decimal{}, false
	}
	return entry.rate, true
}

func (c *LRUCache) Set(_ context.Context, key string, rate decimal.Decimal, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := lruEntry{rate: rate}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.cache.Add(key, entry)
}

// redisStore is the part of the go-redis client the cache needs.
type redisStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache shares rates between processes. Errors degrade to cache misses.
type RedisCache struct {
	client redisStore
	prefix string
}

func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) (decimal.Decimal, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		return decimal.Decimal{}, false
	}
	rate, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return rate, true
}

func (c *RedisCache) Set(ctx context.Context, key string, rate decimal.Decimal, ttl time.Duration) {
	_ = c.client.Set(ctx, c.prefix+key, rate.String(), ttl).Err()
}

// backfillTTL bounds how long a faster layer keeps a rate copied from a slower one.
const backfillTTL = time.Hour

// TieredCache reads through its layers in order and back-fills faster ones.
type TieredCache struct {
	layers []RateCache
}

// NewTieredCache drops nil layers.
func NewTieredCache(layers ...RateCache) *TieredCache {
	t := &TieredCache{}
	for _, l := range layers {
		if l != nil && !isNilCache(l) {
			t.layers = append(t.layers, l)
		}
	}
	return t
}

func (t *TieredCache) Get(ctx context.Context, key string) (decimal.Decimal, bool) {
	for i, layer := range t.layers {
		rate, ok := layer.Get(ctx, key)
		if !ok {
			continue
		}
		for _, faster := range t.layers[:i] {
			faster.Set(ctx, key, rate, backfillTTL)
		}
		return rate, true
	}
	return decimal.Decimal{}, false
}

func (t *TieredCache) Set(ctx context.Context, key string, rate decimal.Decimal, ttl time.Duration) {
	for _, layer := range t.layers {
		layer.Set(ctx, key, rate, ttl)
	}
}

func isNilCache(c RateCache) bool {
	switch v := c.(type) {
	case *LRUCache:
		return v == nil
	case *RedisCache:
		return v == nil
	default:
		return false
	}
}
