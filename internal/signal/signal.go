// Package signal implements the nine accumulation signals. Each evaluator
// maps one slice of market microstructure onto a 0-100 score through a
// piecewise-linear anchor curve; the scorer combines them downstream.
package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpwatch/internal/models"
)

// Evaluator is one named signal computation.
type Evaluator struct {
	Name string
	Fn   func(*Bundle) models.Signal
}

// Evaluators lists all nine signals in weight order.
var Evaluators = []Evaluator{
	{models.SignalOISurge, evalOISurge},
	{models.SignalFundingRate, evalFundingRate},
	{models.SignalLiqLeverage, evalLiqLeverage},
	{models.SignalCrossExVolume, evalCrossExVolume},
	{models.SignalDepthImbalance, evalDepthImbalance},
	{models.SignalVolPriceDecouple, evalVolPriceDecouple},
	{models.SignalVolCompression, evalVolCompression},
	{models.SignalLongShortRatio, evalLongShortRatio},
	{models.SignalFutVolDivergence, evalFutVolDivergence},
}

// EvaluateAll runs every evaluator against the bundle. A panicking
// evaluator is logged and reported as score 0 at LOW quality; the scan
// never dies on a single signal.
func EvaluateAll(b *Bundle) map[string]models.Signal {
	out := make(map[string]models.Signal, len(Evaluators))
	for _, ev := range Evaluators {
		out[ev.Name] = safeEval(b, ev)
	}
	return out
}

func safeEval(b *Bundle, ev Evaluator) (sig models.Signal) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("symbol", b.Symbol).
				Str("signal", ev.Name).
				Interface("panic", r).
				Msg("signal evaluator crashed")
			sig = models.Signal{Score: 0, Quality: models.QualityLow}
		}
	}()
	return ev.Fn(b)
}

func zeroSignal(b *Bundle) models.Signal {
	return models.Signal{Score: 0, Quality: b.grade(models.QualityLow)}
}
