package signal

import "github.com/sawpanic/pumpwatch/internal/models"

// Score falls as longs take over; below 1.0 every tenth matters, above 1.0
// the signal decays to nothing by 1.2.
var lsCurve = Curve{
	{0.4, 100}, {0.6, 90}, {0.7, 75}, {0.8, 55}, {0.9, 30}, {1.0, 8}, {1.2, 0},
}

// evalLongShortRatio scores crowded shorts: the fuel for a squeeze.
func evalLongShortRatio(b *Bundle) models.Signal {
	r, ok := b.meanLS()
	if !ok || r <= 0 {
		return zeroSignal(b)
	}

	quality := models.QualityHigh
	if len(b.LS) < 24 {
		quality = models.QualityMed
	}
	return models.Signal{
		Score:   clamp(lsCurve.Eval(r), 0, 100),
		Raw:     r,
		Quality: b.grade(quality),
	}
}
