package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpwatch/internal/models"
)

func signals(scores map[string]float64) map[string]models.Signal {
	out := make(map[string]models.Signal, len(models.SignalNames))
	for _, name := range models.SignalNames {
		out[name] = models.Signal{Score: scores[name], Quality: models.QualityHigh}
	}
	return out
}

// squeezeSetup is the textbook pre-pump constellation: OI and funding hot,
// volatility compressed, longs not yet crowded.
func squeezeSetup() map[string]models.Signal {
	return signals(map[string]float64{
		models.SignalOISurge:          78,
		models.SignalFundingRate:      72,
		models.SignalLiqLeverage:      65,
		models.SignalCrossExVolume:    48,
		models.SignalDepthImbalance:   58,
		models.SignalVolPriceDecouple: 42,
		models.SignalVolCompression:   55,
		models.SignalLongShortRatio:   38,
		models.SignalFutVolDivergence: 32,
	})
}

func TestWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, name := range models.SignalNames {
		w, ok := Weights[name]
		require.True(t, ok, "missing weight for %s", name)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Len(t, Weights, len(models.SignalNames))
}

func TestScoreEndpoints(t *testing.T) {
	s := New(DefaultThresholds())

	r := s.Score("TOKENX", 0, 1, signals(map[string]float64{}), 0)
	assert.Zero(t, r.FinalScore)
	assert.Equal(t, models.ClassNone, r.Classification)

	all100 := map[string]float64{}
	for _, name := range models.SignalNames {
		all100[name] = 100
	}
	r = s.Score("TOKENX", 0, 1, signals(all100), 0)
	assert.Equal(t, 100.0, r.FinalScore) // bonuses fire but the clamp holds
	assert.Equal(t, models.ClassCritical, r.Classification)
}

func TestSqueezeSetupIsCritical(t *testing.T) {
	s := New(DefaultThresholds())
	r := s.Score("TOKENX", 0, 1, squeezeSetup(), 0.04)

	// Weighted base around 59.8, then squeeze x1.25 and accumulation x1.20.
	assert.InDelta(t, 59.81, r.BaseScore, 0.2)
	assert.Equal(t, []string{BonusSqueeze, BonusAccumulation}, r.Bonuses)
	assert.InDelta(t, 89.7, r.FinalScore, 0.5)
	assert.Equal(t, models.ClassCritical, r.Classification)
	assert.Empty(t, r.Penalty)
}

func TestExtensionPenaltyDemotes(t *testing.T) {
	s := New(DefaultThresholds())
	r := s.Score("TOKENX", 0, 1, squeezeSetup(), 0.18)

	assert.Equal(t, PenaltyExtended, r.Penalty)
	assert.InDelta(t, 89.7*0.60, r.FinalScore, 0.5)
	assert.Equal(t, models.ClassWatchlist, r.Classification)
}

func TestPenaltyBoundary(t *testing.T) {
	s := New(DefaultThresholds())

	// Exactly 15% is not extended; just past it is.
	assert.Empty(t, s.Score("TOKENX", 0, 1, squeezeSetup(), 0.15).Penalty)
	assert.Equal(t, PenaltyExtended,
		s.Score("TOKENX", 0, 1, squeezeSetup(), 0.1501).Penalty)
}

func TestLongsDominateNoAlert(t *testing.T) {
	s := New(DefaultThresholds())
	r := s.Score("TOKENX", 0, 1, signals(map[string]float64{
		models.SignalOISurge:          70,
		models.SignalFundingRate:      0,
		models.SignalLiqLeverage:      20,
		models.SignalCrossExVolume:    20,
		models.SignalDepthImbalance:   20,
		models.SignalVolPriceDecouple: 20,
		models.SignalVolCompression:   20,
		models.SignalLongShortRatio:   6,
		models.SignalFutVolDivergence: 20,
	}), 0)

	assert.Empty(t, r.Bonuses)
	assert.Less(t, r.FinalScore, 33.0)
	assert.Equal(t, models.ClassNone, r.Classification)
}

func TestBonusesAreDeterministic(t *testing.T) {
	s := New(DefaultThresholds())

	a := s.Score("TOKENX", 0, 1, squeezeSetup(), 0)
	b := s.Score("TOKENX", 0, 1, squeezeSetup(), 0)
	assert.Equal(t, a.Bonuses, b.Bonuses)
	assert.Equal(t, a.FinalScore, b.FinalScore)

	// Cascade joins when the long/short signal crosses its floor.
	sig := squeezeSetup()
	sig[models.SignalLongShortRatio] = models.Signal{Score: 41, Quality: models.QualityHigh}
	c := s.Score("TOKENX", 0, 1, sig, 0)
	assert.Equal(t, []string{BonusSqueeze, BonusCascade, BonusAccumulation}, c.Bonuses)
}

func TestQualityIsWorstInput(t *testing.T) {
	s := New(DefaultThresholds())
	sig := squeezeSetup()
	sig[models.SignalFutVolDivergence] = models.Signal{Score: 32, Quality: models.QualityLow}

	r := s.Score("TOKENX", 0, 1, sig, 0)
	assert.Equal(t, models.QualityLow, r.Quality)
}

func TestThresholdClassification(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		final float64
		want  models.Classification
	}{
		{100, models.ClassCritical},
		{78, models.ClassCritical},
		{77.9, models.ClassHighAlert},
		{62, models.ClassHighAlert},
		{61.9, models.ClassWatchlist},
		{48, models.ClassWatchlist},
		{47.9, models.ClassMonitor},
		{33, models.ClassMonitor},
		{32.9, models.ClassNone},
		{0, models.ClassNone},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, th.Classify(tc.final), "final %.1f", tc.final)
	}
}
