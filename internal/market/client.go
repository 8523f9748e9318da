package market

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sawpanic/pumpwatch/internal/cache"
	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/net/circuit"
	"github.com/sawpanic/pumpwatch/internal/net/ratelimit"
)

const (
	requestTimeout = 8 * time.Second
	maxAttempts    = 3
	backoffBase    = 250 * time.Millisecond
	userAgent      = "pumpwatch/1.0 (public market data)"
)

// Client is the shared HTTP layer under every adapter: token bucket, then
// circuit breaker, then the request, with retries on transient failures and
// an optional response cache.
type Client struct {
	http     *http.Client
	limiter  *ratelimit.Limiter
	breakers *circuit.Set
	cache    cache.Cache
}

// NewClient wires the shared request path. cache may be nil.
func NewClient(limiter *ratelimit.Limiter, breakers *circuit.Set, c cache.Cache) *Client {
	return &Client{
		http:     &http.Client{Timeout: requestTimeout},
		limiter:  limiter,
		breakers: breakers,
		cache:    c,
	}
}

// GetJSON fetches url on behalf of exchange and decodes the body into out.
// A positive ttl caches the raw body under the URL. Transient failures
// retry up to three times with jittered exponential backoff.
func (c *Client) GetJSON(ctx context.Context, exchange, url string, ttl time.Duration, out interface{}) error {
	if c.cache != nil && ttl > 0 {
		if body, ok := c.cache.Get(ctx, url); ok {
			if err := json.Unmarshal(body, out); err == nil {
				return nil
			}
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := backoffBase << (attempt - 1)
			backoff += time.Duration(rand.Int63n(int64(backoff)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return errs.E(errs.KindTransientFetch, exchange+": fetch", ctx.Err())
			}
		}

		body, err := c.get(ctx, exchange, url)
		if err == nil {
			if c.cache != nil && ttl > 0 {
				c.cache.Set(ctx, url, body, ttl)
			}
			if err := json.Unmarshal(body, out); err != nil {
				return errs.E(errs.KindPermanentFetch, exchange+": decode response", err)
			}
			return nil
		}
		lastErr = err
		if !errs.Is(err, errs.KindTransientFetch) {
			return err
		}
	}
	return lastErr
}

func (c *Client) get(ctx context.Context, exchange, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, exchange); err != nil {
		return nil, errs.E(errs.KindTransientFetch, exchange+": rate limit wait", err)
	}

	res, err := c.breakers.Execute(exchange, func() (interface{}, error) {
		return c.doRequest(ctx, exchange, url)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errs.E(errs.KindTransientFetch, exchange+": circuit open", err)
		}
		return nil, err
	}
	return res.([]byte), nil
}

func (c *Client) doRequest(ctx context.Context, exchange, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.E(errs.KindInternal, exchange+": build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.E(errs.KindTransientFetch, exchange+": request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, errs.E(errs.KindTransientFetch, exchange+": read body", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusTeapot, // binance IP ban escalation
		resp.StatusCode >= 500:
		return nil, errs.Ef(errs.KindTransientFetch, exchange+": fetch",
			"HTTP %d: %s", resp.StatusCode, truncate(body))
	default:
		return nil, errs.Ef(errs.KindPermanentFetch, exchange+": fetch",
			"HTTP %d: %s", resp.StatusCode, truncate(body))
	}
}

func truncate(body []byte) string {
	const n = 200
	if len(body) > n {
		return string(body[:n]) + "..."
	}
	return string(body)
}

// parseFloat converts an API string number, failing as a permanent fetch
// error so malformed payloads drop the exchange rather than feeding zeros
// downstream.
func parseFloat(exchange, field, s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errs.Ef(errs.KindPermanentFetch, exchange+": parse",
			"field %s: malformed number %q", field, s)
	}
	return f, nil
}
