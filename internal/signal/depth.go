package signal

import (
	"github.com/sawpanic/pumpwatch/internal/features"
	"github.com/sawpanic/pumpwatch/internal/models"
)

var depthCurve = Curve{
	{1, 0}, {1.15, 15}, {1.3, 30}, {1.5, 50}, {1.8, 65},
	{2, 75}, {2.5, 88}, {3, 95}, {4, 100},
}

// evalDepthImbalance scores resting bid notional versus ask notional within
// ±10% of price, merged across exchanges. Ask-heavy books score zero.
func evalDepthImbalance(b *Bundle) models.Signal {
	if b.Book == nil || b.Price <= 0 {
		return zeroSignal(b)
	}

	bidUSD := features.BidDepthUSD(b.Book.AllBids(), b.Price, 10)
	askUSD := features.AskDepthUSD(b.Book.AllAsks(), b.Price, 10)
	if askUSD <= 0 || bidUSD <= 0 {
		return zeroSignal(b)
	}

	raw := bidUSD / askUSD
	var score float64
	if raw >= 1 {
		score = depthCurve.Eval(raw)
	}

	quality := models.QualityHigh
	if len(b.Book.ByExchange) < 2 {
		quality = models.QualityMed
	}
	return models.Signal{
		Score:   clamp(score, 0, 100),
		Raw:     raw,
		Quality: b.grade(quality),
	}
}
