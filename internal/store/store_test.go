package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpwatch/internal/models"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCandleRoundTripAndIdempotentAppend(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	cs := []models.Candle{
		{T: 1000, O: 1, H: 2, L: 0.5, C: 1.5, V: 10},
		{T: 2000, O: 1.5, H: 2.5, L: 1, C: 2, V: 20},
	}
	require.NoError(t, s.AppendCandles(ctx, "TOKENX", cs))

	// Re-append the same timestamp with a new payload: replaced, not duplicated.
	cs[1].C = 3
	require.NoError(t, s.AppendCandles(ctx, "TOKENX", cs[1:]))

	got, err := s.Candles(ctx, "TOKENX", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].T)
	assert.Equal(t, 3.0, got[1].C)
}

func TestConcurrentAppendsStaySerializable(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	mk := func(from, n int64, close float64) []models.Candle {
		out := make([]models.Candle, 0, n)
		for i := int64(0); i < n; i++ {
			out = append(out, models.Candle{T: (from + i) * 60_000, C: close, V: 1})
		}
		return out
	}

	// Two candle writers with overlapping windows plus scan-result writers,
	// all hammering one symbol. Every append commits in a transaction, so
	// the end state must equal some serial ordering of the writes.
	var wg sync.WaitGroup
	errc := make(chan error, 12)
	for i := 0; i < 4; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			errc <- s.AppendCandles(ctx, "TOKENX", mk(0, 100, 1))
		}()
		go func() {
			defer wg.Done()
			errc <- s.AppendCandles(ctx, "TOKENX", mk(50, 100, 2))
		}()
		go func(i int) {
			defer wg.Done()
			errc <- s.PutScanResult(ctx, &models.ScanResult{
				Symbol: "TOKENX", T: int64(1000 + i), FinalScore: float64(40 + i),
				Classification: models.ClassMonitor, Quality: models.QualityHigh,
			})
		}(i)
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		require.NoError(t, err)
	}

	got, err := s.Candles(ctx, "TOKENX", 200)
	require.NoError(t, err)
	require.Len(t, got, 150)
	for i, c := range got {
		assert.Equal(t, int64(i)*60_000, c.T)
		switch {
		case i < 50:
			assert.Equal(t, 1.0, c.C)
		case i >= 100:
			assert.Equal(t, 2.0, c.C)
		default:
			// Contested rows hold exactly one writer's payload, never a blend.
			assert.Contains(t, []float64{1, 2}, c.C)
		}
	}

	hist, err := s.LastResults(ctx, "TOKENX", 10)
	require.NoError(t, err)
	require.Len(t, hist, 4)
	assert.Equal(t, int64(1003), hist[0].T)
}

func TestRangeQuery(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	var cs []models.Candle
	for i := int64(0); i < 10; i++ {
		cs = append(cs, models.Candle{T: i * 1000, C: float64(i)})
	}
	require.NoError(t, s.AppendCandles(ctx, "TOKENX", cs))

	got, err := s.CandleRange(ctx, "TOKENX", 3000, 6000)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, int64(3000), got[0].T)
	assert.Equal(t, int64(6000), got[3].T)
}

func TestRetentionCap(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	// Book snapshots keep only the latest row.
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.PutBook(ctx, "TOKENX", models.BookSnapshot{
			T: i * 1000,
			ByExchange: map[string]models.OrderBook{
				"binance": {Bids: []models.BookLevel{{Price: float64(i), Qty: 1}}},
			},
		}))
	}
	book, err := s.Book(ctx, "TOKENX")
	require.NoError(t, err)
	require.NotNil(t, book)
	assert.Equal(t, int64(3000), book.T)

	counts, err := s.SeriesCounts(ctx, "TOKENX")
	require.NoError(t, err)
	assert.Zero(t, counts.Candles)
}

func TestMigrationIdempotence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendCandles(context.Background(), "TOKENX",
		[]models.Candle{{T: 1, C: 1}}))
	require.NoError(t, s.Close())

	// Reopen: migrations rerun harmlessly, data survives.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Candles(context.Background(), "TOKENX", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestScanResultHistoryPrunes(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for i := int64(1); i <= resultHistory+3; i++ {
		require.NoError(t, s.PutScanResult(ctx, &models.ScanResult{
			Symbol: "TOKENX", T: i * 1000, FinalScore: float64(i),
			Classification: models.ClassMonitor, Quality: models.QualityHigh,
		}))
	}

	got, err := s.LastResults(ctx, "TOKENX", 100)
	require.NoError(t, err)
	require.Len(t, got, resultHistory)
	assert.Equal(t, int64((resultHistory+3)*1000), got[0].T) // newest first
}

func TestTopScores(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for i, sym := range []string{"AAA", "BBB", "CCC"} {
		require.NoError(t, s.PutScanResult(ctx, &models.ScanResult{
			Symbol: sym, T: 1000, FinalScore: float64(30 + i*20),
			Classification: models.ClassMonitor, Quality: models.QualityHigh,
		}))
	}
	// BBB has a newer, lower score: the latest row is what counts.
	require.NoError(t, s.PutScanResult(ctx, &models.ScanResult{
		Symbol: "BBB", T: 2000, FinalScore: 10,
		Classification: models.ClassNone, Quality: models.QualityHigh,
	}))

	top, err := s.TopScores(ctx, 40, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "CCC", top[0].Symbol)
}

func TestTradePersistence(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tr := &models.Trade{
		ID: uuid.NewString(), Symbol: "TOKENX", Entry: 1.0, SizeUSD: 500,
		Stop: 0.95, State: models.TradeOpen, OpenedAt: time.Now().UnixMilli(),
		TrailStage: -1, Remaining: 1,
	}
	require.NoError(t, s.SaveTrade(ctx, tr))

	open, err := s.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	got, err := s.OpenTradeForSymbol(ctx, "TOKENX")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tr.ID, got.ID)

	n, err := s.CountOpenTrades(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tr.State = models.TradeClosed
	require.NoError(t, s.SaveTrade(ctx, tr))
	got, err = s.OpenTradeForSymbol(ctx, "TOKENX")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUniverseCache(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	syms, at, err := s.Universe(ctx)
	require.NoError(t, err)
	assert.Empty(t, syms)
	assert.True(t, at.IsZero())

	require.NoError(t, s.PutUniverse(ctx, []string{"AAA", "BBB"}))
	syms, at, err = s.Universe(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, syms)
	assert.WithinDuration(t, time.Now(), at, time.Minute)
}

func TestStatsAndCleanup(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -40).UnixMilli()
	require.NoError(t, s.AppendCandles(ctx, "TOKENX", []models.Candle{
		{T: old, C: 1}, {T: time.Now().UnixMilli(), C: 2},
	}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Rows["candles"])
	assert.Equal(t, 1, stats.Symbols)

	removed, err := s.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
