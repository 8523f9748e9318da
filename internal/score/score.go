// Package score combines the nine signal scores into a classified
// composite: weighted base, multiplicative interaction bonuses, extension
// penalty, clamp.
package score

import (
	"github.com/sawpanic/pumpwatch/internal/models"
)

// Weights per signal. They sum to exactly 1.00.
var Weights = map[string]float64{
	models.SignalOISurge:          0.18,
	models.SignalFundingRate:      0.17,
	models.SignalLiqLeverage:      0.15,
	models.SignalCrossExVolume:    0.12,
	models.SignalDepthImbalance:   0.11,
	models.SignalVolPriceDecouple: 0.08,
	models.SignalVolCompression:   0.08,
	models.SignalLongShortRatio:   0.06,
	models.SignalFutVolDivergence: 0.05,
}

// Bonus and penalty labels as persisted and rendered.
const (
	BonusSqueeze      = "squeeze_setup"
	BonusCascade      = "cascade_setup"
	BonusAccumulation = "accumulation_setup"
	PenaltyExtended   = "price_extended"
)

const (
	squeezeMult      = 1.25
	cascadeMult      = 1.30
	accumulationMult = 1.20
	extendedMult     = 0.60
	extendedReturn   = 0.15 // 7d return beyond which the penalty bites
)

// Thresholds are the classification cutoffs and bonus activation floors.
// Config may override any of them.
type Thresholds struct {
	Critical  float64 `yaml:"critical"`
	HighAlert float64 `yaml:"high_alert"`
	Watchlist float64 `yaml:"watchlist"`
	Monitor   float64 `yaml:"monitor"`

	SqueezeMin      float64 `yaml:"squeeze_min"`
	CascadeMin      float64 `yaml:"cascade_min"`
	AccumulationMin float64 `yaml:"accumulation_min"`
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical:        78,
		HighAlert:       62,
		Watchlist:       48,
		Monitor:         33,
		SqueezeMin:      45,
		CascadeMin:      40,
		AccumulationMin: 40,
	}
}

// Classify buckets a final score.
func (t Thresholds) Classify(final float64) models.Classification {
	switch {
	case final >= t.Critical:
		return models.ClassCritical
	case final >= t.HighAlert:
		return models.ClassHighAlert
	case final >= t.Watchlist:
		return models.ClassWatchlist
	case final >= t.Monitor:
		return models.ClassMonitor
	default:
		return models.ClassNone
	}
}

// Scorer applies the composite algebra.
type Scorer struct {
	thresholds Thresholds
}

// New returns a Scorer with the given thresholds.
func New(t Thresholds) *Scorer {
	return &Scorer{thresholds: t}
}

// Thresholds exposes the active cutoffs.
func (s *Scorer) Thresholds() Thresholds { return s.thresholds }

// Score composes signals into a ScanResult. return7d is the 7-day price
// return as a fraction; levels are attached by the caller afterwards.
func (s *Scorer) Score(symbol string, now int64, price float64, signals map[string]models.Signal, return7d float64) models.ScanResult {
	var base float64
	quality := models.QualityHigh
	for name, w := range Weights {
		sig := signals[name]
		base += w * sig.Score
		quality = quality.Min(sig.Quality)
	}

	get := func(name string) float64 {
		return signals[name].Score
	}

	final := base
	var bonuses []string

	// Interaction bonuses compound multiplicatively, each at most once,
	// in this order.
	if get(models.SignalOISurge) >= s.thresholds.SqueezeMin &&
		get(models.SignalFundingRate) >= s.thresholds.SqueezeMin &&
		get(models.SignalVolCompression) >= s.thresholds.SqueezeMin {
		final *= squeezeMult
		bonuses = append(bonuses, BonusSqueeze)
	}
	if get(models.SignalLiqLeverage) >= s.thresholds.CascadeMin &&
		get(models.SignalFundingRate) >= s.thresholds.CascadeMin &&
		get(models.SignalLongShortRatio) >= s.thresholds.CascadeMin {
		final *= cascadeMult
		bonuses = append(bonuses, BonusCascade)
	}
	if get(models.SignalOISurge) >= s.thresholds.AccumulationMin &&
		get(models.SignalVolPriceDecouple) >= s.thresholds.AccumulationMin &&
		get(models.SignalCrossExVolume) >= s.thresholds.AccumulationMin {
		final *= accumulationMult
		bonuses = append(bonuses, BonusAccumulation)
	}

	var penalty string
	if return7d > extendedReturn {
		final *= extendedMult
		penalty = PenaltyExtended
	}

	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}

	return models.ScanResult{
		Symbol:         symbol,
		T:              now,
		Price:          price,
		BaseScore:      base,
		FinalScore:     final,
		Classification: s.thresholds.Classify(final),
		Signals:        signals,
		Bonuses:        bonuses,
		Penalty:        penalty,
		Quality:        quality,
	}
}
