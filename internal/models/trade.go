package models

// TradeState is a registered trade's lifecycle stage.
type TradeState string

const (
	TradeOpen   TradeState = "OPEN"
	TradeClosed TradeState = "CLOSED"
)

// CloseReason records why a trade left the OPEN state.
type CloseReason string

const (
	CloseStopHit CloseReason = "STOP_HIT"
	CloseFinalTP CloseReason = "FINAL_TP"
	CloseManual  CloseReason = "MANUAL"
)

// Trade is a user-registered position watched by the monitor. Entries are
// manual; the system never places orders.
type Trade struct {
	ID        string     `json:"id"`
	Symbol    string     `json:"symbol"`
	Entry     float64    `json:"entry"`
	SizeUSD   float64    `json:"size_usd"`
	Stop      float64    `json:"stop"` // current stop, only ever moves up
	TPs       [4]float64 `json:"tps"`  // TP4 price 0 means trail-only
	State     TradeState `json:"state"`
	OpenedAt  int64      `json:"opened_at"` // ms
	ClosedAt  int64      `json:"closed_at,omitempty"`
	Reason    CloseReason `json:"reason,omitempty"`

	TrailStage    int     `json:"trail_stage"`    // index into the trail schedule, -1 before BE
	TPHits        [4]bool `json:"tp_hits"`
	Remaining     float64 `json:"remaining"`      // fraction of position still open
	RealizedPnL   float64 `json:"realized_pnl"`   // USD
	OpenScore     float64 `json:"open_score"`     // final score when registered
	LastScore     float64 `json:"last_score"`
	DegradeWarned [2]bool `json:"degrade_warned"` // [0] dropped >=10, [1] below watchlist
	LastDigestHr  int64   `json:"last_digest_hr"` // unix hour of last status digest
}

// PnL returns unrealized P&L in USD for the remaining fraction at price.
func (t *Trade) PnL(price float64) float64 {
	if t.Entry <= 0 {
		return 0
	}
	return t.SizeUSD * t.Remaining * (price - t.Entry) / t.Entry
}

// GainPct returns the percent move from entry at price.
func (t *Trade) GainPct(price float64) float64 {
	if t.Entry <= 0 {
		return 0
	}
	return (price - t.Entry) / t.Entry * 100
}
