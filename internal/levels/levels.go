// Package levels derives adaptive trade levels for alertable scan results:
// a stop picked from ATR, swing-low and book-support candidates, an entry
// band per classification, and staggered take-profits stretched by the
// cascade ratio and snapped under ask walls.
package levels

import (
	"github.com/sawpanic/pumpwatch/internal/features"
	"github.com/sawpanic/pumpwatch/internal/models"
)

// Stop methods as labelled on the emitted levels.
const (
	MethodATR         = "atr"
	MethodSwingLow    = "swing_low"
	MethodBookSupport = "book_support"
)

const (
	stopPctMin = 0.025
	stopPctMax = 0.15

	entryBandATR = 0.25 // WATCHLIST band height above swing low, in ATR

	trailATRMult = 2.0
)

// tpMultiples are the base ATR multiples for TP1..TP3. TP4 is trail-only.
var tpMultiples = [3]float64{3.0, 5.5, 9.0}

// Params configures position sizing.
type Params struct {
	AccountUSD float64
	RiskPct    float64
}

// Input is the feature slice the engine works from. CascadeRatio is the
// liquidation-leverage signal's raw ratio.
type Input struct {
	Classification models.Classification
	Price          float64
	ATR            float64
	Candles        []models.Candle
	Book           *models.BookSnapshot
	CascadeRatio   float64
	Quality        models.Quality
}

// Engine computes smart levels.
type Engine struct {
	params Params
}

// New returns an Engine sized against the given account.
func New(p Params) *Engine {
	if p.RiskPct <= 0 {
		p.RiskPct = 0.02
	}
	return &Engine{params: p}
}

// Compute derives the full level set. Returns false when the inputs cannot
// support levels (no price or no ATR) or the classification is below
// WATCHLIST.
func (e *Engine) Compute(in Input) (*models.Levels, bool) {
	if in.Price <= 0 || in.ATR <= 0 {
		return nil, false
	}
	switch in.Classification {
	case models.ClassCritical, models.ClassHighAlert, models.ClassWatchlist:
	default:
		return nil, false
	}

	stop, method := e.pickStop(in)
	stopPct := (in.Price - stop) / in.Price
	if stopPct < stopPctMin {
		stopPct = stopPctMin
		stop = in.Price * (1 - stopPct)
	}
	if stopPct > stopPctMax {
		stopPct = stopPctMax
		stop = in.Price * (1 - stopPct)
	}

	lv := &models.Levels{
		Price:      in.Price,
		ATR:        in.ATR,
		Stop:       stop,
		StopPct:    stopPct,
		StopMethod: method,
		Entry:      e.entryBand(in),
		Quality:    in.Quality,
	}

	e.takeProfits(in, lv)

	if risk := in.Price - lv.Stop; risk > 0 {
		lv.RiskReward = (lv.TPs[0].Price - in.Price) / risk
	}
	if e.params.AccountUSD > 0 && lv.StopPct > 0 {
		lv.PositionUSD = e.params.AccountUSD * e.params.RiskPct / lv.StopPct
	}
	return lv, true
}

// pickStop takes the lowest of the candidates that sit at least one ATR
// below price. The ATR candidate always qualifies, so the set is never
// empty.
func (e *Engine) pickStop(in Input) (float64, string) {
	atrMult := 2.0
	if in.Quality == models.QualityLow {
		atrMult = 1.5
	}
	if in.CascadeRatio >= 5 {
		atrMult = 2.5
	}

	stop := in.Price - atrMult*in.ATR
	method := MethodATR
	maxStop := in.Price - in.ATR

	if low, ok := features.SwingLow(in.Candles, 24); ok {
		if cand := low - 0.25*in.ATR; cand <= maxStop && cand < stop {
			stop, method = cand, MethodSwingLow
		}
	}

	if in.Book != nil {
		clusters := features.BidClusters(in.Book.AllBids(), in.Price, 15)
		if len(clusters) > 0 && clusters[0].USD >= 0.5*features.MedianUSD(clusters) {
			if cand := clusters[0].Price - 0.1*in.ATR; cand <= maxStop && cand < stop {
				stop, method = cand, MethodBookSupport
			}
		}
	}
	return stop, method
}

func (e *Engine) entryBand(in Input) models.EntryBand {
	switch in.Classification {
	case models.ClassCritical:
		return models.EntryBand{
			Low:   in.Price * 0.998,
			High:  in.Price * 1.004,
			Ideal: in.Price,
		}
	case models.ClassHighAlert:
		low := in.Price * 0.985
		if vwap := features.VWAP(in.Candles, 24); vwap > low {
			low = vwap
		}
		high := in.Price * 0.995
		if low > high {
			low = high
		}
		return models.EntryBand{Low: low, High: high, Ideal: (low + high) / 2}
	default: // WATCHLIST
		low := in.Price * 0.985
		if swing, ok := features.SwingLow(in.Candles, 24); ok {
			low = swing
		}
		return models.EntryBand{
			Low:   low,
			High:  low + entryBandATR*in.ATR,
			Ideal: low,
		}
	}
}

// takeProfits fills TP1..TP3 at stretched ATR multiples and TP4 as a trail
// directive. Each target snaps to 0.2% under the nearest ask wall at or
// below it, but never more than 15% under the unadjusted level and never
// out of order.
func (e *Engine) takeProfits(in Input, lv *models.Levels) {
	k := clamp(1+0.1*(in.CascadeRatio-3), 1.0, 1.8)

	var walls []features.Cluster
	if in.Book != nil {
		// The wall window has to reach the highest raw target.
		reachPct := (tpMultiples[2]*k*in.ATR/in.Price + 0.01) * 100
		walls = features.AskWalls(in.Book.AllAsks(), in.Price, reachPct)
	}

	prev := in.Price
	for i, m := range tpMultiples {
		raw := in.Price + m*k*in.ATR
		tp := models.TakeProfit{Price: raw}
		if snapped, ok := snapUnderWall(raw, walls); ok && snapped > prev {
			tp.Price = snapped
			tp.Snapped = true
		}
		if tp.Price <= prev {
			tp.Price = raw
			tp.Snapped = false
		}
		lv.TPs[i] = tp
		prev = tp.Price
	}

	lv.TPs[3] = models.TakeProfit{TrailPct: trailATRMult * in.ATR / in.Price}
}

// snapUnderWall returns 0.2% below the nearest wall at or below the raw
// target, refusing snaps that give up more than 15% of the target.
func snapUnderWall(raw float64, walls []features.Cluster) (float64, bool) {
	var best float64
	for _, w := range walls {
		if w.Price > raw {
			continue
		}
		if cand := w.Price * 0.998; cand > best {
			best = cand
		}
	}
	if best == 0 || best < raw*0.85 {
		return 0, false
	}
	return best, true
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
