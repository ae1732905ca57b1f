package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/carpool/internal/models"
)

// Cache is the lookup layer in front of a routing Client.
type Cache interface {
	Get(ctx context.Context, from, to models.Coordinate) (Route, bool)
	Set(ctx context.Context, from, to models.Coordinate, r Route)
}

func cacheKey(a, b models.Coordinate) string {
	return fmt.Sprintf("route:%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lng, b.Lat, b.Lng)
}

// MemCache is a TTL map cache for single-process runs.
type MemCache struct {
	mu    sync.RWMutex
	store map[string]memEntry
	ttl   time.Duration
}

type memEntry struct {
	r  Route
	ts time.Time
}

func NewMemCache(ttl time.Duration) *MemCache {
	return &MemCache{store: make(map[string]memEntry), ttl: ttl}
}

func (c *MemCache) Get(ctx context.Context, from, to models.Coordinate) (Route, bool) {
	k := cacheKey(from, to)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return Route{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return Route{}, false
	}
	return e.r, true
}

func (c *MemCache) Set(ctx context.Context, from, to models.Coordinate, r Route) {
	c.mu.Lock()
	c.store[cacheKey(from, to)] = memEntry{r: r, ts: time.Now()}
	c.mu.Unlock()
}

// RedisCache shares route lookups across processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		ttl:    ttl,
	}
}

func (c *RedisCache) Get(ctx context.Context, from, to models.Coordinate) (Route, bool) {
	b, err := c.client.Get(ctx, cacheKey(from, to)).Bytes()
	if err != nil {
		return Route{}, false
	}
	var r Route
	if err := json.Unmarshal(b, &r); err != nil {
		return Route{}, false
	}
	return r, true
}

func (c *RedisCache) Set(ctx context.Context, from, to models.Coordinate, r Route) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(from, to), b, c.ttl).Err()
}

// CachedClient wraps a Client with a Cache and the deterministic fallback.
// Resolve never fails: engine error or timeout degrades to FallbackRoute.
type CachedClient struct {
	Inner Client
	Cache Cache
}

func (c *CachedClient) Resolve(ctx context.Context, from, to models.Coordinate) Route {
	if c.Cache != nil {
		if r, ok := c.Cache.Get(ctx, from, to); ok {
			return r
		}
	}
	if c.Inner != nil {
		if r, err := c.Inner.Route(ctx, from, to); err == nil {
			if c.Cache != nil {
				c.Cache.Set(ctx, from, to, r)
			}
			return r
		}
	}
	return FallbackRoute(from, to)
}
