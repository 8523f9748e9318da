package signal

import "github.com/sawpanic/pumpwatch/internal/models"

var oiCurve = Curve{
	{0, 0}, {0.10, 45}, {0.20, 68}, {0.30, 80}, {0.40, 90}, {0.60, 100},
}

// evalOISurge scores open-interest growth over 72h, dampened when price has
// already moved: OI building while price sits still is the accumulation
// tell, OI chasing a running price is not.
func evalOISurge(b *Bundle) models.Signal {
	const lookbackMs = 72 * 3600_000

	if len(b.OI) < 2 || b.Price <= 0 {
		return zeroSignal(b)
	}

	now := b.OI[len(b.OI)-1]
	oiNow := now.Total()
	if oiNow <= 0 {
		return zeroSignal(b)
	}

	// Oldest point no newer than 72h back; a shorter series degrades
	// quality but still scores against the earliest observation.
	cutoff := b.Now - lookbackMs
	past := b.OI[0]
	fullWindow := past.T <= cutoff
	for _, p := range b.OI {
		if p.T > cutoff {
			break
		}
		past = p
	}
	oiPast := past.Total()
	if oiPast <= 0 {
		return zeroSignal(b)
	}

	raw := (oiNow - oiPast) / oiPast

	var priceMove float64
	if ref, ok := b.closeAgo(72); ok && ref > 0 {
		priceMove = abs(b.Price/ref - 1)
	}
	damp := 1 - 10*max0(priceMove-0.02)
	if damp < 0 {
		damp = 0
	}

	quality := models.QualityHigh
	switch {
	case !fullWindow:
		quality = models.QualityLow
	case len(b.OI) < 72:
		quality = models.QualityMed
	}

	return models.Signal{
		Score:   clamp(oiCurve.Eval(raw)*damp, 0, 100),
		Raw:     raw,
		Quality: b.grade(quality),
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func max0(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}
