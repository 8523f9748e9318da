package signal

import (
	"github.com/sawpanic/pumpwatch/internal/features"
	"github.com/sawpanic/pumpwatch/internal/models"
)

var compressionCurve = Curve{
	{0, 0}, {0.5, 20}, {0.65, 42}, {0.75, 58}, {0.85, 75}, {0.95, 95}, {1, 100},
}

// evalVolCompression scores how tight the current Bollinger band width sits
// against its own history. Raw is the fraction of historical widths wider
// than now: 0.95 means tighter than 95% of history.
func evalVolCompression(b *Bundle) models.Signal {
	if len(b.Candles) < 30 {
		return zeroSignal(b)
	}

	widths := features.BBWidths(b.Candles, 20)
	if len(widths) < 5 {
		return zeroSignal(b)
	}

	current := widths[len(widths)-1]
	raw := features.FractionAbove(widths, current)

	quality := models.QualityHigh
	if len(widths) < 100 {
		quality = models.QualityMed
	}
	return models.Signal{
		Score:   clamp(compressionCurve.Eval(raw), 0, 100),
		Raw:     raw,
		Quality: b.grade(quality),
	}
}
