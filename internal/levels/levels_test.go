package levels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpwatch/internal/models"
)

func flatCandles(n int, low float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			T: int64(i) * 3600_000,
			O: 1.0, H: 1.01, L: low, C: 1.0, V: 1000,
		}
	}
	return out
}

func TestStopSelectionPrefersSwingLow(t *testing.T) {
	// price=1.000, ATR=0.020, swing_low=0.955, strong bid cluster at 0.97.
	// Candidates: atr 0.960, swing 0.950, book 0.968; lowest wins.
	book := &models.BookSnapshot{ByExchange: map[string]models.OrderBook{
		"binance": {Bids: []models.BookLevel{{Price: 0.97, Qty: 500000}}},
	}}

	eng := New(Params{AccountUSD: 10000, RiskPct: 0.02})
	lv, ok := eng.Compute(Input{
		Classification: models.ClassCritical,
		Price:          1.0,
		ATR:            0.020,
		Candles:        flatCandles(48, 0.955),
		Book:           book,
		CascadeRatio:   3,
		Quality:        models.QualityHigh,
	})
	require.True(t, ok)

	assert.Equal(t, MethodSwingLow, lv.StopMethod)
	assert.InDelta(t, 0.950, lv.Stop, 1e-9)
	assert.InDelta(t, 0.05, lv.StopPct, 1e-9)
}

func TestStopBounds(t *testing.T) {
	eng := New(Params{})

	// Deep swing low forces the 15% clamp.
	lv, ok := eng.Compute(Input{
		Classification: models.ClassHighAlert,
		Price:          1.0,
		ATR:            0.05,
		Candles:        flatCandles(48, 0.70),
		Quality:        models.QualityHigh,
	})
	require.True(t, ok)
	assert.InDelta(t, 0.15, lv.StopPct, 1e-9)
	assert.InDelta(t, 0.85, lv.Stop, 1e-9)

	// Tiny ATR forces the 2.5% floor.
	lv, ok = eng.Compute(Input{
		Classification: models.ClassHighAlert,
		Price:          1.0,
		ATR:            0.001,
		Candles:        flatCandles(48, 0.999),
		Quality:        models.QualityHigh,
	})
	require.True(t, ok)
	assert.InDelta(t, 0.025, lv.StopPct, 1e-9)
}

func TestStopATRMultipliers(t *testing.T) {
	candles := flatCandles(48, 0.999) // swing candidate above price-ATR, never picked

	cases := []struct {
		name    string
		quality models.Quality
		cascade float64
		want    float64
	}{
		{"default 2x", models.QualityHigh, 3, 1.0 - 2*0.03},
		{"low quality 1.5x", models.QualityLow, 3, 1.0 - 1.5*0.03},
		{"high cascade 2.5x", models.QualityHigh, 5, 1.0 - 2.5*0.03},
	}
	eng := New(Params{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lv, ok := eng.Compute(Input{
				Classification: models.ClassWatchlist,
				Price:          1.0,
				ATR:            0.03,
				Candles:        candles,
				CascadeRatio:   tc.cascade,
				Quality:        tc.quality,
			})
			require.True(t, ok)
			assert.Equal(t, MethodATR, lv.StopMethod)
			assert.InDelta(t, tc.want, lv.Stop, 1e-9)
		})
	}
}

func TestTakeProfitCascadeStretch(t *testing.T) {
	eng := New(Params{AccountUSD: 10000, RiskPct: 0.02})

	// cascade_ratio=3 -> k=1.0: raw multiples untouched.
	lv, ok := eng.Compute(Input{
		Classification: models.ClassCritical,
		Price:          1.0,
		ATR:            0.020,
		Candles:        flatCandles(48, 0.96),
		CascadeRatio:   3,
		Quality:        models.QualityHigh,
	})
	require.True(t, ok)
	assert.InDelta(t, 1.060, lv.TPs[0].Price, 1e-9)
	assert.InDelta(t, 1.110, lv.TPs[1].Price, 1e-9)
	assert.InDelta(t, 1.180, lv.TPs[2].Price, 1e-9)
	assert.InDelta(t, 0.040, lv.TPs[3].TrailPct, 1e-9)

	// cascade_ratio=5 -> k=1.2.
	lv, ok = eng.Compute(Input{
		Classification: models.ClassCritical,
		Price:          1.0,
		ATR:            0.020,
		Candles:        flatCandles(48, 0.96),
		CascadeRatio:   5,
		Quality:        models.QualityHigh,
	})
	require.True(t, ok)
	assert.InDelta(t, 1.072, lv.TPs[0].Price, 1e-9)
	assert.InDelta(t, 1.132, lv.TPs[1].Price, 1e-9)
	assert.InDelta(t, 1.216, lv.TPs[2].Price, 1e-9)
}

func TestTakeProfitOrdering(t *testing.T) {
	eng := New(Params{})
	lv, ok := eng.Compute(Input{
		Classification: models.ClassHighAlert,
		Price:          1.0,
		ATR:            0.02,
		Candles:        flatCandles(48, 0.96),
		CascadeRatio:   8, // k clamps at 1.8
		Quality:        models.QualityHigh,
	})
	require.True(t, ok)
	assert.Greater(t, lv.TPs[0].Price, lv.Price)
	assert.Greater(t, lv.TPs[1].Price, lv.TPs[0].Price)
	assert.Greater(t, lv.TPs[2].Price, lv.TPs[1].Price)
}

func TestTakeProfitSnapsUnderAskWall(t *testing.T) {
	// One dominant ask wall just below the raw TP1 of 1.060 pulls the
	// target to 0.2% under the wall.
	asks := []models.BookLevel{{Price: 1.055, Qty: 900000}}
	for p := 1.01; p < 1.20; p += 0.01 {
		asks = append(asks, models.BookLevel{Price: p, Qty: 100})
	}
	book := &models.BookSnapshot{ByExchange: map[string]models.OrderBook{
		"binance": {Asks: asks},
	}}

	eng := New(Params{})
	lv, ok := eng.Compute(Input{
		Classification: models.ClassCritical,
		Price:          1.0,
		ATR:            0.020,
		Candles:        flatCandles(48, 0.96),
		Book:           book,
		CascadeRatio:   3,
		Quality:        models.QualityHigh,
	})
	require.True(t, ok)
	assert.True(t, lv.TPs[0].Snapped)
	assert.InDelta(t, 1.055*0.998, lv.TPs[0].Price, 1e-9)
	assert.GreaterOrEqual(t, lv.TPs[0].Price, 1.060*0.85)
}

func TestEntryBands(t *testing.T) {
	eng := New(Params{})
	candles := flatCandles(48, 0.955)

	lv, ok := eng.Compute(Input{
		Classification: models.ClassCritical, Price: 1.0, ATR: 0.02,
		Candles: candles, Quality: models.QualityHigh, CascadeRatio: 3,
	})
	require.True(t, ok)
	assert.InDelta(t, 0.998, lv.Entry.Low, 1e-9)
	assert.InDelta(t, 1.004, lv.Entry.High, 1e-9)
	assert.InDelta(t, 1.0, lv.Entry.Ideal, 1e-9)

	lv, ok = eng.Compute(Input{
		Classification: models.ClassHighAlert, Price: 1.0, ATR: 0.02,
		Candles: candles, Quality: models.QualityHigh, CascadeRatio: 3,
	})
	require.True(t, ok)
	assert.LessOrEqual(t, lv.Entry.Low, lv.Entry.High)
	assert.InDelta(t, 0.995, lv.Entry.High, 1e-9)
	assert.InDelta(t, (lv.Entry.Low+lv.Entry.High)/2, lv.Entry.Ideal, 1e-9)

	lv, ok = eng.Compute(Input{
		Classification: models.ClassWatchlist, Price: 1.0, ATR: 0.02,
		Candles: candles, Quality: models.QualityHigh, CascadeRatio: 3,
	})
	require.True(t, ok)
	assert.InDelta(t, 0.955, lv.Entry.Low, 1e-9)
	assert.InDelta(t, 0.955+0.25*0.02, lv.Entry.High, 1e-9)
	assert.Equal(t, lv.Entry.Low, lv.Entry.Ideal)
}

func TestRiskRewardAndSizing(t *testing.T) {
	eng := New(Params{AccountUSD: 10000, RiskPct: 0.02})
	lv, ok := eng.Compute(Input{
		Classification: models.ClassCritical, Price: 1.0, ATR: 0.02,
		Candles: flatCandles(48, 0.955), CascadeRatio: 3,
		Quality: models.QualityHigh,
	})
	require.True(t, ok)
	// stop 0.950, TP1 1.060 -> R:R = 0.060/0.050.
	assert.InDelta(t, 1.2, lv.RiskReward, 1e-9)
	assert.InDelta(t, 10000*0.02/0.05, lv.PositionUSD, 1e-6)
}

func TestNotInvokedBelowWatchlist(t *testing.T) {
	eng := New(Params{})
	_, ok := eng.Compute(Input{
		Classification: models.ClassMonitor, Price: 1.0, ATR: 0.02,
		Candles: flatCandles(48, 0.955), Quality: models.QualityHigh,
	})
	assert.False(t, ok)
}
