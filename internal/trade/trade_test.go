package trade

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpwatch/internal/alert"
	"github.com/sawpanic/pumpwatch/internal/market"
	"github.com/sawpanic/pumpwatch/internal/models"
	"github.com/sawpanic/pumpwatch/internal/store"
)

type recordSink struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordSink) Send(_ context.Context, a *alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, a.Text)
	return nil
}
func (r *recordSink) Name() string  { return "rec" }
func (r *recordSink) Enabled() bool { return true }

func (r *recordSink) count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

type fixture struct {
	store   *store.Store
	sink    *recordSink
	monitor *Monitor

	mu    sync.Mutex
	price float64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "trade.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st, sink: &recordSink{}, price: 1.0}
	am := alert.NewManager(models.ClassWatchlist, 48, f.sink)
	f.monitor = NewMonitor(st, market.NewRegistry(), am, 3)
	f.monitor.price = func(_ context.Context, _ string) (float64, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.price, nil
	}
	return f
}

func (f *fixture) setPrice(p float64) {
	f.mu.Lock()
	f.price = p
	f.mu.Unlock()
}

func (f *fixture) tick(t *testing.T) {
	t.Helper()
	f.monitor.Tick(context.Background(), time.Now())
}

func (f *fixture) openTrade(t *testing.T) *models.Trade {
	t.Helper()
	tr, err := f.monitor.Open(context.Background(), "TOKENX", 1.0, 1000, 0.05)
	require.NoError(t, err)
	return tr
}

func (f *fixture) reload(t *testing.T) *models.Trade {
	t.Helper()
	tr, err := f.store.OpenTradeForSymbol(context.Background(), "TOKENX")
	require.NoError(t, err)
	return tr
}

func TestTrailStageFor(t *testing.T) {
	cases := []struct {
		gain  float64
		stage int
	}{
		{0, -1}, {4.9, -1},
		{5, 0}, {9.9, 0},
		{10, 1}, {14.9, 1},
		{15, 2}, {24.9, 2},
		{25, 3}, {39.9, 3},
		{40, 4}, {59.9, 4},
		{60, 5}, {300, 5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.stage, trailStageFor(tc.gain), "gain %.1f", tc.gain)
	}
}

func TestOpenValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTrade(t)

	_, err := f.monitor.Open(ctx, "TOKENX", 1.0, 1000, 0.05)
	assert.Error(t, err, "duplicate symbol rejected")

	_, err = f.monitor.Open(ctx, "TOKENY", 0, 1000, 0.05)
	assert.Error(t, err, "zero entry rejected")

	require.NoError(t, errNil(f.monitor.Open(ctx, "TOKENY", 2, 1000, 0.05)))
	require.NoError(t, errNil(f.monitor.Open(ctx, "TOKENZ", 3, 1000, 0.05)))
	_, err = f.monitor.Open(ctx, "TOKENW", 4, 1000, 0.05)
	assert.Error(t, err, "max open trades enforced")
}

func errNil(_ *models.Trade, err error) error { return err }

func TestStopHitClosesTrade(t *testing.T) {
	f := newFixture(t)
	f.openTrade(t)

	f.setPrice(0.94)
	f.tick(t)

	assert.Nil(t, f.reload(t))
	assert.Equal(t, 1, f.sink.count("STOP_HIT"))

	trades, err := f.store.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestTPHitsRealizeQuarters(t *testing.T) {
	f := newFixture(t)
	f.openTrade(t)

	// 1.12 clears TP1 (1.06) and TP2 (1.11) in one tick.
	f.setPrice(1.12)
	f.tick(t)

	tr := f.reload(t)
	require.NotNil(t, tr)
	assert.True(t, tr.TPHits[0])
	assert.True(t, tr.TPHits[1])
	assert.False(t, tr.TPHits[2])
	assert.InDelta(t, 0.5, tr.Remaining, 1e-9)
	assert.InDelta(t, 1000*0.5*0.12, tr.RealizedPnL, 1e-6)
	assert.Equal(t, 2, f.sink.count("TP"))

	// +12% puts the trail at stage 1: stop to +5%.
	assert.InDelta(t, 1.05, tr.Stop, 1e-9)
}

func TestStopNeverDecreases(t *testing.T) {
	f := newFixture(t)
	f.openTrade(t)

	var lastStop float64
	for _, p := range []float64{1.02, 1.12, 1.30, 1.26, 1.19} {
		f.setPrice(p)
		f.tick(t)
		tr := f.reload(t)
		if tr == nil {
			break // stop hit ends the walk
		}
		assert.GreaterOrEqual(t, tr.Stop, lastStop, "price %.2f", p)
		lastStop = tr.Stop
	}
}

func TestDegradationWarnsOncePerThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutScanResult(ctx, &models.ScanResult{
		Symbol: "TOKENX", T: time.Now().UnixMilli(), FinalScore: 60,
		Classification: models.ClassHighAlert, Quality: models.QualityHigh,
	}))
	f.openTrade(t)

	require.NoError(t, f.store.PutScanResult(ctx, &models.ScanResult{
		Symbol: "TOKENX", T: time.Now().UnixMilli() + 1, FinalScore: 45,
		Classification: models.ClassMonitor, Quality: models.QualityHigh,
	}))

	f.setPrice(1.01)
	f.tick(t)
	f.tick(t)

	// Drop >= 10 and floor < 48 each warn exactly once.
	assert.Equal(t, 2, f.sink.count("DEGRADATION"))

	tr := f.reload(t)
	require.NotNil(t, tr)
	assert.Equal(t, 45.0, tr.LastScore)
}

func TestHourlyDigestOncePerHour(t *testing.T) {
	f := newFixture(t)
	f.openTrade(t)

	now := time.Now()
	f.monitor.Tick(context.Background(), now)
	f.monitor.Tick(context.Background(), now.Add(5*time.Minute))
	assert.Equal(t, 1, f.sink.count("digest:"))

	f.monitor.Tick(context.Background(), now.Add(time.Hour+5*time.Minute))
	assert.Equal(t, 2, f.sink.count("digest:"))
}

type stubForcer struct{ forced int }

func (s *stubForcer) ForceScan() { s.forced++ }

func TestCommanderDispatch(t *testing.T) {
	f := newFixture(t)
	forcer := &stubForcer{}
	c := NewCommander(f.monitor, f.store, forcer)
	ctx := context.Background()

	assert.Contains(t, c.Handle(ctx, "/trade tokenx 1.0 1000 5"), "watching TOKENX")
	assert.Contains(t, c.Handle(ctx, "/trade tokenx 1.0 1000 5"), "rejected")
	assert.Contains(t, c.Handle(ctx, "/trade tokenx"), "usage:")

	assert.Contains(t, c.Handle(ctx, "/status"), "TOKENX")

	assert.Contains(t, c.Handle(ctx, "/adjust TOKENX stop 0.97"), "stop -> 0.9700")
	assert.Contains(t, c.Handle(ctx, "/adjust TOKENX stop 0.90"), "failed")
	assert.Contains(t, c.Handle(ctx, "/adjust TOKENX tp9 1.5"), "failed")

	assert.Equal(t, "scan cycle queued", c.Handle(ctx, "/scan"))
	assert.Equal(t, 1, forcer.forced)

	assert.Contains(t, c.Handle(ctx, "/watchlist"), "watchlist")
	assert.Contains(t, c.Handle(ctx, "/help"), "/trade")
	assert.Contains(t, c.Handle(ctx, "/start"), "/trade")
	assert.Contains(t, c.Handle(ctx, "/frobnicate"), "unknown command")
	assert.Equal(t, "", c.Handle(ctx, "hello there"))

	assert.Contains(t, c.Handle(ctx, "/close TOKENX 1.02"), "realized")
	assert.Contains(t, c.Handle(ctx, "/close TOKENX"), "failed")
}
