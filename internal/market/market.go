// Package market gives the scanner a uniform view over exchange perpetual
// futures APIs. One Source per venue; all calls are strict-parsing,
// rate-limited and breaker-guarded, and report missing data as typed
// errors, never as zeros.
package market

import (
	"context"

	"github.com/sawpanic/pumpwatch/internal/models"
)

// FundingRate is one settled funding period on a single venue.
type FundingRate struct {
	T    int64 // period time, ms
	Rate float64
}

// Source is one exchange's futures API. Symbols are base tokens ("TOKENX");
// each adapter maps them to its own pair naming.
type Source interface {
	// Name is the exchange identifier used in config, logs and payload maps.
	Name() string

	// ListFuturesSymbols returns base tokens of live USD-quoted perpetuals.
	ListFuturesSymbols(ctx context.Context) ([]string, error)

	// FetchCandles returns up to limit hourly candles, ascending. Candle
	// volume is quote (USD) turnover so venues compare.
	FetchCandles(ctx context.Context, symbol string, limit int) ([]models.Candle, error)

	// FetchTicker returns the venue's current quote for symbol.
	FetchTicker(ctx context.Context, symbol string) (models.ExchangeQuote, error)

	// FetchOI returns current open interest in USD notional.
	FetchOI(ctx context.Context, symbol string) (float64, error)

	// FetchFunding returns the current funding rate.
	FetchFunding(ctx context.Context, symbol string) (float64, error)

	// FetchFundingHistory returns up to limit past funding periods, ascending.
	FetchFundingHistory(ctx context.Context, symbol string, limit int) ([]FundingRate, error)

	// FetchBook returns the order book to the given depth per side, best
	// levels first.
	FetchBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error)

	// FetchLSRatio returns the long/short account ratio.
	FetchLSRatio(ctx context.Context, symbol string) (float64, error)
}

// Registry is the set of enabled sources, in config order.
type Registry struct {
	sources []Source
	byName  map[string]Source
}

// NewRegistry builds a registry over the given sources.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{byName: make(map[string]Source, len(sources))}
	for _, s := range sources {
		r.sources = append(r.sources, s)
		r.byName[s.Name()] = s
	}
	return r
}

// Sources returns the registered sources in order.
func (r *Registry) Sources() []Source { return r.sources }

// ByName returns the named source, or nil.
func (r *Registry) ByName(name string) Source { return r.byName[name] }

// Names lists registered exchange names.
func (r *Registry) Names() []string {
	out := make([]string, len(r.sources))
	for i, s := range r.sources {
		out[i] = s.Name()
	}
	return out
}
