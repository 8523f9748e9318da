package models

// Quality grades how complete the inputs behind a value were.
type Quality string

const (
	QualityHigh Quality = "HIGH"
	QualityMed  Quality = "MED"
	QualityLow  Quality = "LOW"
)

// rank orders qualities so Min can pick the worst.
func (q Quality) rank() int {
	switch q {
	case QualityHigh:
		return 2
	case QualityMed:
		return 1
	default:
		return 0
	}
}

// Min returns the worse of two qualities.
func (q Quality) Min(other Quality) Quality {
	if other.rank() < q.rank() {
		return other
	}
	return q
}

// Classification buckets a final score.
type Classification string

const (
	ClassCritical  Classification = "CRITICAL"
	ClassHighAlert Classification = "HIGH_ALERT"
	ClassWatchlist Classification = "WATCHLIST"
	ClassMonitor   Classification = "MONITOR"
	ClassNone      Classification = "NONE"
)

// Rank orders classifications; higher is more severe. Used by the event
// detector, which requires a strict increase to call something an upgrade.
func (c Classification) Rank() int {
	switch c {
	case ClassCritical:
		return 4
	case ClassHighAlert:
		return 3
	case ClassWatchlist:
		return 2
	case ClassMonitor:
		return 1
	default:
		return 0
	}
}

// Signal names, in weight order.
const (
	SignalOISurge          = "oi_surge"
	SignalFundingRate      = "funding_rate"
	SignalLiqLeverage      = "liquidation_leverage"
	SignalCrossExVolume    = "cross_exchange_volume"
	SignalDepthImbalance   = "depth_imbalance"
	SignalVolPriceDecouple = "volume_price_decouple"
	SignalVolCompression   = "volatility_compression"
	SignalLongShortRatio   = "long_short_ratio"
	SignalFutVolDivergence = "futures_vol_divergence"
)

// SignalNames lists all nine evaluators in weight order.
var SignalNames = []string{
	SignalOISurge,
	SignalFundingRate,
	SignalLiqLeverage,
	SignalCrossExVolume,
	SignalDepthImbalance,
	SignalVolPriceDecouple,
	SignalVolCompression,
	SignalLongShortRatio,
	SignalFutVolDivergence,
}

// Signal is one evaluator's output.
type Signal struct {
	Score   float64 `json:"score"` // 0..100
	Raw     float64 `json:"raw"`
	Quality Quality `json:"quality"`
}

// EventKind labels a cross-scan event.
type EventKind string

const (
	EventScoreJump EventKind = "SCORE_JUMP"
	EventUpgrade   EventKind = "UPGRADE"
	EventIgnition  EventKind = "IGNITION"
)

// Event is something notable that happened between two adjacent scans.
type Event struct {
	Kind    EventKind `json:"kind"`
	Detail  string    `json:"detail"`
	Current float64   `json:"current"`
	Prev    float64   `json:"prev"`
}

// EntryBand is the suggested entry zone for a classification.
type EntryBand struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Ideal float64 `json:"ideal"`
}

// TakeProfit is one staggered exit level. TP4 carries only TrailPct.
type TakeProfit struct {
	Price    float64 `json:"price,omitempty"`
	TrailPct float64 `json:"trail_pct,omitempty"`
	Snapped  bool    `json:"snapped,omitempty"` // pulled below an ask cluster
}

// Levels is the smart-levels output for an alertable result.
type Levels struct {
	Price       float64       `json:"price"`
	ATR         float64       `json:"atr"`
	Stop        float64       `json:"stop"`
	StopPct     float64       `json:"stop_pct"`
	StopMethod  string        `json:"stop_method"` // atr | swing_low | book_support
	Entry       EntryBand     `json:"entry"`
	TPs         [4]TakeProfit `json:"tps"`
	RiskReward  float64       `json:"risk_reward"`
	PositionUSD float64       `json:"position_usd"`
	Quality     Quality       `json:"quality"`
}

// ScanResult is the full outcome of scoring one symbol in one cycle.
type ScanResult struct {
	Symbol         string            `json:"symbol"`
	T              int64             `json:"t"`
	Price          float64           `json:"price"`
	BaseScore      float64           `json:"base_score"`
	FinalScore     float64           `json:"final_score"`
	Classification Classification    `json:"classification"`
	Signals        map[string]Signal `json:"signals"`
	Bonuses        []string          `json:"bonuses,omitempty"`
	Penalty        string            `json:"penalty,omitempty"`
	Levels         *Levels           `json:"levels,omitempty"`
	Quality        Quality           `json:"quality"`
}

// SignalScore returns the named signal's score, 0 when absent.
func (r *ScanResult) SignalScore(name string) float64 {
	if s, ok := r.Signals[name]; ok {
		return s.Score
	}
	return 0
}
