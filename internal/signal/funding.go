package signal

import "github.com/sawpanic/pumpwatch/internal/models"

var (
	fundingMagCurve = Curve{
		{0, 0}, {0.00001, 45}, {0.00002, 65}, {0.00003, 78}, {0.00005, 90}, {0.0001, 100},
	}
	fundingPersistCurve = Curve{
		{0, 0}, {0.3, 20}, {0.5, 45}, {0.7, 70}, {0.85, 90}, {1, 100},
	}
)

// evalFundingRate scores how hard shorts are paying longs. Magnitude looks
// at the mean rate over the last 24h (positive funding scores zero);
// persistence at the fraction of negative periods across 72h.
func evalFundingRate(b *Bundle) models.Signal {
	if len(b.Funding) == 0 {
		return zeroSignal(b)
	}

	day := b.Now - 24*3600_000
	window := b.Now - 72*3600_000

	var (
		daySum   float64
		dayCount int
		negative int
		total    int
	)
	for _, p := range b.Funding {
		if p.T < window {
			continue
		}
		rate := p.Mean()
		total++
		if rate < 0 {
			negative++
		}
		if p.T >= day {
			daySum += rate
			dayCount++
		}
	}
	if total == 0 {
		return zeroSignal(b)
	}

	var magnitude float64
	if dayCount > 0 {
		if rate := daySum / float64(dayCount); rate < 0 {
			magnitude = fundingMagCurve.Eval(-rate)
		}
	}
	persistence := fundingPersistCurve.Eval(float64(negative) / float64(total))

	score := 0.55*magnitude + 0.45*persistence

	// Venues settle every 8h, so a full 72h window holds nine periods.
	quality := models.QualityHigh
	switch {
	case total < 3:
		quality = models.QualityLow
	case total < 9:
		quality = models.QualityMed
	}

	var raw float64
	if dayCount > 0 {
		raw = daySum / float64(dayCount)
	}
	return models.Signal{
		Score:   clamp(score, 0, 100),
		Raw:     raw,
		Quality: b.grade(quality),
	}
}
