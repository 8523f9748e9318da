// Package ratelimit holds the per-exchange token buckets every adapter
// call flows through. One bucket per exchange, shared by all callers.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out token buckets keyed by exchange name.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	defaults bucketConfig
	configs  map[string]bucketConfig
}

type bucketConfig struct {
	rps   float64
	burst int
}

// New returns a Limiter whose unconfigured exchanges get the default
// rps/burst.
func New(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		defaults: bucketConfig{rps: rps, burst: burst},
		configs:  make(map[string]bucketConfig),
	}
}

// Configure sets a dedicated budget for one exchange. Resets any existing
// bucket for that exchange.
func (l *Limiter) Configure(exchange string, rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[exchange] = bucketConfig{rps: rps, burst: burst}
	delete(l.buckets, exchange)
}

// Wait blocks until the exchange's bucket grants a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, exchange string) error {
	return l.bucket(exchange).Wait(ctx)
}

// Allow reports whether a token is available without blocking.
func (l *Limiter) Allow(exchange string) bool {
	return l.bucket(exchange).Allow()
}

func (l *Limiter) bucket(exchange string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[exchange]; ok {
		return b
	}
	cfg, ok := l.configs[exchange]
	if !ok {
		cfg = l.defaults
	}
	b := rate.NewLimiter(rate.Limit(cfg.rps), cfg.burst)
	l.buckets[exchange] = b
	return b
}
