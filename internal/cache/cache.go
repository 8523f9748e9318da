// Package cache is the TTL cache fronting adapter calls: symbol lists for a
// day, tickers and books for seconds. In-memory by default, Redis when the
// config names an address.
package cache

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache stores opaque bytes under string keys with per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

// New returns a Redis-backed cache when addr is non-empty, otherwise an
// in-memory one.
func New(addr string) Cache {
	if addr != "" {
		return NewRedis(redis.NewClient(&redis.Options{Addr: addr}))
	}
	return NewMemory()
}

type memory struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

// NewMemory returns a process-local cache.
func NewMemory() Cache { return &memory{m: make(map[string]entry)} }

func (c *memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(c.m, key)
		return nil, false
	}
	return e.b, true
}

func (c *memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

type redisCache struct {
	r redis.Cmdable
}

// NewRedis wraps an existing Redis client. Calls are bounded to 500ms so a
// slow cache never stalls a scan.
func NewRedis(r redis.Cmdable) Cache { return &redisCache{r: r} }

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	v, err := c.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (c *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_ = c.r.Set(ctx, key, val, ttl).Err()
}
