package scan

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpwatch/internal/alert"
	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/levels"
	"github.com/sawpanic/pumpwatch/internal/market"
	"github.com/sawpanic/pumpwatch/internal/metrics"
	"github.com/sawpanic/pumpwatch/internal/models"
	"github.com/sawpanic/pumpwatch/internal/score"
	"github.com/sawpanic/pumpwatch/internal/store"
)

// fakeSource is a deterministic in-memory exchange.
type fakeSource struct {
	name    string
	symbols []string
	price   float64
	listErr error

	listCalls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) ListFuturesSymbols(_ context.Context) ([]string, error) {
	f.listCalls++
	return f.symbols, f.listErr
}

func (f *fakeSource) FetchCandles(_ context.Context, _ string, limit int) ([]models.Candle, error) {
	now := time.Now().Truncate(time.Hour)
	out := make([]models.Candle, limit)
	for i := range out {
		t := now.Add(-time.Duration(limit-1-i) * time.Hour)
		out[i] = models.Candle{
			T: t.UnixMilli(),
			O: f.price, H: f.price * 1.005, L: f.price * 0.995, C: f.price,
			V: 100_000,
		}
	}
	return out, nil
}

func (f *fakeSource) FetchTicker(_ context.Context, _ string) (models.ExchangeQuote, error) {
	return models.ExchangeQuote{
		Price: f.price, Vol24: 2_400_000,
		Bid: f.price * 0.999, Ask: f.price * 1.001,
	}, nil
}

func (f *fakeSource) FetchOI(_ context.Context, _ string) (float64, error) {
	return 5_000_000, nil
}

func (f *fakeSource) FetchFunding(_ context.Context, _ string) (float64, error) {
	return -0.0001, nil
}

func (f *fakeSource) FetchFundingHistory(_ context.Context, _ string, limit int) ([]market.FundingRate, error) {
	now := time.Now().Truncate(8 * time.Hour)
	out := make([]market.FundingRate, limit)
	for i := range out {
		out[i] = market.FundingRate{
			T:    now.Add(-time.Duration(limit-1-i) * 8 * time.Hour).UnixMilli(),
			Rate: -0.0001,
		}
	}
	return out, nil
}

func (f *fakeSource) FetchBook(_ context.Context, _ string, depth int) (models.OrderBook, error) {
	var book models.OrderBook
	for i := 0; i < depth; i++ {
		book.Bids = append(book.Bids, models.BookLevel{
			Price: f.price * (1 - 0.002*float64(i+1)), Qty: 1000,
		})
		book.Asks = append(book.Asks, models.BookLevel{
			Price: f.price * (1 + 0.002*float64(i+1)), Qty: 1000,
		})
	}
	return book, nil
}

func (f *fakeSource) FetchLSRatio(_ context.Context, _ string) (float64, error) {
	return 1.8, nil
}

// slowSource delays candle fetches long enough to blow a small budget.
type slowSource struct {
	*fakeSource
	delay time.Duration
}

func (s *slowSource) FetchCandles(ctx context.Context, symbol string, limit int) ([]models.Candle, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.fakeSource.FetchCandles(ctx, symbol, limit)
}

type captureSink struct {
	mu  sync.Mutex
	got []*alert.Alert
}

func (c *captureSink) Send(_ context.Context, a *alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, a)
	return nil
}
func (c *captureSink) Name() string  { return "capture" }
func (c *captureSink) Enabled() bool { return true }

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "scan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newPipeline(st *store.Store, reg *market.Registry) *Pipeline {
	return NewPipeline(st, reg,
		score.New(score.DefaultThresholds()),
		levels.New(levels.Params{AccountUSD: 10000, RiskPct: 0.02}),
		alert.NewManager(models.ClassWatchlist, 48),
		metrics.New(), 3)
}

func TestModeFor(t *testing.T) {
	cases := []struct {
		name   string
		counts store.SeriesCounts
		want   Mode
	}{
		{"empty store", store.SeriesCounts{}, ModeBootstrap},
		{"thin candles", store.SeriesCounts{Candles: 499, OI: 300, Funding: 120, LS: 120}, ModeBootstrap},
		{"thin oi", store.SeriesCounts{Candles: 600, OI: 199, Funding: 120, LS: 120}, ModeBootstrap},
		{"thin funding", store.SeriesCounts{Candles: 600, OI: 300, Funding: 99, LS: 120}, ModeBootstrap},
		{"thin ls", store.SeriesCounts{Candles: 600, OI: 300, Funding: 120, LS: 99}, ModeBootstrap},
		{"at minimums", store.SeriesCounts{Candles: 500, OI: 200, Funding: 100, LS: 100}, ModeIncremental},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ModeFor(tc.counts))
		})
	}
}

func TestBuildUniverseUnionAndExclusion(t *testing.T) {
	st := openStore(t)
	a := &fakeSource{name: "binance", symbols: []string{"TOKENX", "TOKENY", "USDC"}}
	b := &fakeSource{name: "okx", symbols: []string{"TOKENY", "TOKENZ", "DAI"}}

	got, err := BuildUniverse(context.Background(), st, market.NewRegistry(a, b))
	require.NoError(t, err)
	assert.Equal(t, []string{"TOKENX", "TOKENY", "TOKENZ"}, got)

	// Second call is served from the 24h cache.
	_, err = BuildUniverse(context.Background(), st, market.NewRegistry(a, b))
	require.NoError(t, err)
	assert.Equal(t, 1, a.listCalls)
}

func TestBuildUniversePartialFailure(t *testing.T) {
	st := openStore(t)
	ok := &fakeSource{name: "binance", symbols: []string{"TOKENX"}}
	bad := &fakeSource{name: "okx", listErr: errors.New("down")}

	got, err := BuildUniverse(context.Background(), st, market.NewRegistry(ok, bad))
	require.NoError(t, err)
	assert.Equal(t, []string{"TOKENX"}, got)
}

func TestBuildUniverseAllFailedNoCache(t *testing.T) {
	st := openStore(t)
	bad := &fakeSource{name: "binance", listErr: errors.New("down")}

	_, err := BuildUniverse(context.Background(), st, market.NewRegistry(bad))
	require.Error(t, err)
}

func TestPipelineScanPersistsAndScores(t *testing.T) {
	st := openStore(t)
	src := &fakeSource{name: "binance", symbols: []string{"TOKENX"}, price: 1.0}
	p := newPipeline(st, market.NewRegistry(src))
	ctx := context.Background()

	result, evs, err := p.Scan(ctx, "TOKENX", 0)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "TOKENX", result.Symbol)
	assert.InDelta(t, 1.0, result.Price, 0.001)
	assert.Len(t, result.Signals, 9)
	assert.Empty(t, evs) // first scan, flat price

	// Bootstrap backfilled the history.
	counts, err := st.SeriesCounts(ctx, "TOKENX")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counts.Candles, bootstrapCandles)
	assert.GreaterOrEqual(t, counts.Funding, 1)

	// The result is persisted for the next cycle's diff.
	hist, err := st.LastResults(ctx, "TOKENX", 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, result.FinalScore, hist[0].FinalScore)

	// Second scan is incremental and diffs quietly against the first.
	_, evs, err = p.Scan(ctx, "TOKENX", 0)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestScanBudgetExhaustionDegradesToLow(t *testing.T) {
	st := openStore(t)
	fast := &fakeSource{name: "binance", symbols: []string{"TOKENX"}, price: 1.0}
	ctx := context.Background()

	// Seed history so the symbol still evaluates once the budget is gone.
	_, _, err := newPipeline(st, market.NewRegistry(fast)).Scan(ctx, "TOKENX", 0)
	require.NoError(t, err)

	slow := &slowSource{fakeSource: fast, delay: 2 * time.Second}
	p := newPipeline(st, market.NewRegistry(slow))

	result, _, err := p.Scan(ctx, "TOKENX", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.QualityLow, result.Quality)
}

func TestRunAppendRetryAndSideChannel(t *testing.T) {
	sink := &captureSink{}
	p := &Pipeline{
		alerts:  alert.NewManager(models.ClassWatchlist, 48, sink),
		metrics: metrics.New(),
	}
	ctx := context.Background()

	// A retryable failure is retried once and recovers silently.
	calls := 0
	ok := p.runAppend(ctx, "TOKENX", "candles", func() error {
		calls++
		if calls == 1 {
			return errs.Ef(errs.KindStoreIO, "store: append candles", "disk hiccup")
		}
		return nil
	})
	assert.True(t, ok)
	assert.Equal(t, 2, calls)
	assert.Zero(t, sink.count())

	// A second failure gives up and alerts the operator.
	calls = 0
	ok = p.runAppend(ctx, "TOKENX", "oi", func() error {
		calls++
		return errs.Ef(errs.KindStoreIO, "store: append oi", "disk gone")
	})
	assert.False(t, ok)
	assert.Equal(t, 2, calls)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, alert.SeverityError, sink.got[0].Severity)
	assert.Contains(t, sink.got[0].Text, "store degraded")

	// Non-retryable failures are not retried.
	calls = 0
	ok = p.runAppend(ctx, "TOKENX", "book", func() error {
		calls++
		return errs.Ef(errs.KindInternal, "store: put book", "bad payload")
	})
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, sink.count())
}

func TestSchedulerRunCycle(t *testing.T) {
	st := openStore(t)
	src := &fakeSource{name: "binance", symbols: []string{"TOKENX", "TOKENY"}, price: 2.5}
	reg := market.NewRegistry(src)
	am := alert.NewManager(models.ClassWatchlist, 48, alert.NewConsole(nil))

	sched := NewScheduler(st, reg, newPipeline(st, reg), am, metrics.New(), Params{
		Cadence:          15 * time.Minute,
		Concurrency:      2,
		PerSymbolTimeout: 30 * time.Second,
	})

	summary, err := sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Universe)
	assert.Equal(t, 2, summary.Scanned)
	assert.Zero(t, summary.Errors)
	assert.Equal(t, summary, sched.LastCycle())
}

func TestSchedulerForceScanCoalesces(t *testing.T) {
	s := &Scheduler{force: make(chan struct{}, 1)}
	s.ForceScan()
	s.ForceScan() // must not block
	select {
	case <-s.force:
	default:
		t.Fatal("force request not queued")
	}
}
