package features

import "github.com/sawpanic/pumpwatch/internal/models"

// ATR computes the Average True Range over the last n periods with Wilder
// smoothing. Candles must be ascending. Returns false when fewer than n+1
// candles are available.
func ATR(candles []models.Candle, n int) (float64, bool) {
	if n <= 0 || len(candles) < n+1 {
		return 0, false
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		h, l, pc := candles[i].H, candles[i].L, candles[i-1].C
		tr := h - l
		if d := abs(h - pc); d > tr {
			tr = d
		}
		if d := abs(l - pc); d > tr {
			tr = d
		}
		trs = append(trs, tr)
	}

	// Seed with the simple mean of the first n true ranges, then smooth.
	var atr float64
	for _, tr := range trs[:n] {
		atr += tr
	}
	atr /= float64(n)
	for _, tr := range trs[n:] {
		atr = (atr*float64(n-1) + tr) / float64(n)
	}
	return atr, true
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
