package signal

import (
	"github.com/sawpanic/pumpwatch/internal/features"
	"github.com/sawpanic/pumpwatch/internal/models"
)

var liqCurve = Curve{
	{0.5, 0}, {1, 10}, {2, 35}, {3, 55}, {5, 75}, {8, 90}, {12, 100},
}

// Shorts are assumed to run near 8x mean leverage, putting liquidation at
// entry*1.125. Entry prices of surviving shorts are taken uniform between
// the current price's implied floor and the 30-day high.
const (
	assumedLeverage   = 8.0
	liqBand           = 0.15 // +15% window
	liqFractionCap    = 0.8
	defaultShortFrac  = 0.5
	defaultCascade    = 3.0 // ratio when the ask side is empty
	monthCandles      = 720
)

// evalLiqLeverage estimates how much short notional would liquidate within
// +15% relative to the ask-side resistance standing in the way. High ratios
// mean a squeeze has little book to chew through.
func evalLiqLeverage(b *Bundle) models.Signal {
	if b.Price <= 0 || len(b.OI) == 0 {
		return zeroSignal(b)
	}
	oiTotal := b.OI[len(b.OI)-1].Total()
	if oiTotal <= 0 {
		return zeroSignal(b)
	}

	shortFrac := defaultShortFrac
	lsKnown := false
	if r, ok := b.meanLS(); ok && r >= 0 {
		shortFrac = 1 / (1 + r)
		lsKnown = true
	}
	shortOI := oiTotal * shortFrac

	liqStep := 1 + 1/assumedLeverage // 1.125
	fraction := liqFractionCap
	rangeKnown := false
	if hi, ok := features.HighestHigh(b.Candles, monthCandles); ok && hi*liqStep > b.Price {
		// Liquidation prices of surviving shorts spread uniformly over
		// [price, hi*1.125]; the band up to 1.15*price captures this share.
		fraction = clamp(liqBand*b.Price/(hi*liqStep-b.Price), 0, liqFractionCap)
		rangeKnown = true
	}
	liqUSD := shortOI * fraction

	ratio := defaultCascade
	bookKnown := false
	if b.Book != nil {
		if askUSD := features.AskDepthUSD(b.Book.AllAsks(), b.Price, liqBand*100); askUSD > 0 {
			ratio = liqUSD / askUSD
			bookKnown = true
		}
	}

	quality := models.QualityHigh
	switch {
	case !bookKnown:
		quality = models.QualityLow
	case !lsKnown || !rangeKnown:
		quality = models.QualityMed
	}

	return models.Signal{
		Score:   clamp(liqCurve.Eval(ratio), 0, 100),
		Raw:     ratio,
		Quality: b.grade(quality),
	}
}
