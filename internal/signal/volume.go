package signal

import (
	"sort"

	"github.com/sawpanic/pumpwatch/internal/features"
	"github.com/sawpanic/pumpwatch/internal/models"
)

var (
	crossCurve = Curve{
		{1, 0}, {1.3, 18}, {1.5, 35}, {2, 55}, {3, 75}, {4, 88}, {6, 100},
	}
	decoupleCurve = Curve{
		{0, 0}, {0.35, 50}, {0.75, 78}, {1, 88}, {2, 100},
	}
	futvolCurve = Curve{
		{0.5, 0}, {1, 5}, {1.5, 35}, {2, 55}, {3, 78}, {4, 90}, {6, 100},
	}
)

// evalCrossExVolume scores one venue's 24h turnover running away from the
// others. With a single venue listed it falls back to current volume
// against the 7-day average.
func evalCrossExVolume(b *Bundle) models.Signal {
	if b.Ticker == nil {
		return zeroSignal(b)
	}

	vols := make([]float64, 0, len(b.Ticker.ByExchange))
	for _, q := range b.Ticker.ByExchange {
		if q.Vol24 > 0 {
			vols = append(vols, q.Vol24)
		}
	}

	if len(vols) >= 2 {
		sort.Float64s(vols)
		med := median(vols)
		if med <= 0 {
			return zeroSignal(b)
		}
		raw := vols[len(vols)-1] / med
		return models.Signal{
			Score:   clamp(crossCurve.Eval(raw), 0, 100),
			Raw:     raw,
			Quality: b.grade(models.QualityHigh),
		}
	}

	// Single listing: compare today's turnover to the trailing week.
	if len(vols) == 1 && len(b.Candles) >= 7*24 {
		weekly := features.SumVolume(b.lastN(7 * 24))
		avgDaily := weekly / 7
		if avgDaily > 0 {
			raw := vols[0] / avgDaily
			return models.Signal{
				Score:   clamp(crossCurve.Eval(raw), 0, 100),
				Raw:     raw,
				Quality: b.grade(models.QualityMed),
			}
		}
	}
	return zeroSignal(b)
}

// evalVolPriceDecouple scores volume expanding while price stays flat.
// The dampener kills the signal once the 24h move passes the grace band.
func evalVolPriceDecouple(b *Bundle) models.Signal {
	if len(b.Candles) < 20 {
		return zeroSignal(b)
	}

	var recent, prev []models.Candle
	if len(b.Candles) >= 48 {
		recent = b.Candles[len(b.Candles)-24:]
		prev = b.Candles[len(b.Candles)-48 : len(b.Candles)-24]
	} else {
		half := len(b.Candles) / 2
		recent = b.Candles[half:]
		prev = b.Candles[:half]
	}

	prevVol := features.SumVolume(prev)
	if prevVol <= 0 {
		return zeroSignal(b)
	}
	change := features.SumVolume(recent)/prevVol - 1
	if change <= 0 {
		return models.Signal{Score: 0, Raw: 0, Quality: b.grade(decoupleQuality(len(b.Candles)))}
	}

	var priceReturn float64
	if open := recent[0].O; open > 0 {
		priceReturn = abs(recent[len(recent)-1].C/open - 1)
	}
	damp := 1 - 12*max0(priceReturn-0.02)
	if damp < 0 {
		damp = 0
	}
	raw := change * damp

	return models.Signal{
		Score:   clamp(decoupleCurve.Eval(raw), 0, 100),
		Raw:     raw,
		Quality: b.grade(decoupleQuality(len(b.Candles))),
	}
}

func decoupleQuality(candles int) models.Quality {
	switch {
	case candles >= 48:
		return models.QualityHigh
	case candles >= 20:
		return models.QualityMed
	default:
		return models.QualityLow
	}
}

// evalFutVolDivergence scores the current hour's futures volume against the
// trailing 72h mean.
func evalFutVolDivergence(b *Bundle) models.Signal {
	if len(b.Candles) < 25 {
		return zeroSignal(b)
	}

	last := b.Candles[len(b.Candles)-1]
	history := b.Candles[:len(b.Candles)-1]
	if len(history) > 72 {
		history = history[len(history)-72:]
	}
	mean := features.MeanVolume(history)
	if mean <= 0 {
		return zeroSignal(b)
	}
	raw := last.V / mean

	quality := models.QualityHigh
	if len(b.Candles) < 73 {
		quality = models.QualityLow
	}
	return models.Signal{
		Score:   clamp(futvolCurve.Eval(raw), 0, 100),
		Raw:     raw,
		Quality: b.grade(quality),
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
