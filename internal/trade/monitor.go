// Package trade watches user-registered positions: stop and take-profit
// hits, the trailing-stop schedule, score-degradation warnings and hourly
// digests. Entries are always manual; nothing here places orders.
package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpwatch/internal/alert"
	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/market"
	"github.com/sawpanic/pumpwatch/internal/models"
	"github.com/sawpanic/pumpwatch/internal/store"
)

const (
	tickInterval = 5 * time.Minute
	tpSlice      = 0.25

	degradeScoreDrop  = 10.0
	degradeScoreFloor = 48.0
)

// trailStage maps a gain threshold to a new stop, both in percent of entry.
type trailStage struct {
	GainPct float64
	StopPct float64
}

// trailSchedule only ever raises the stop: break-even at +5%, then locking
// progressively more of the move.
var trailSchedule = []trailStage{
	{5, 0},
	{10, 5},
	{15, 10},
	{25, 18},
	{40, 30},
	{60, 45},
}

// trailStageFor returns the highest schedule index whose gain threshold is
// reached, -1 below break-even.
func trailStageFor(gainPct float64) int {
	stage := -1
	for i, s := range trailSchedule {
		if gainPct >= s.GainPct {
			stage = i
		}
	}
	return stage
}

// fallback TP multiples when the symbol has no levels on record.
var fallbackTPs = [3]float64{1.06, 1.11, 1.18}

// Monitor owns registered trades.
type Monitor struct {
	store    *store.Store
	registry *market.Registry
	alerts   *alert.Manager
	maxOpen  int

	// price resolves the current market price; swapped out in tests.
	price func(ctx context.Context, symbol string) (float64, error)
}

// NewMonitor wires the trade watcher.
func NewMonitor(st *store.Store, reg *market.Registry, am *alert.Manager, maxOpen int) *Monitor {
	m := &Monitor{store: st, registry: reg, alerts: am, maxOpen: maxOpen}
	m.price = m.marketPrice
	return m
}

// marketPrice averages current tickers across exchanges, falling back to
// the stored aggregate when every venue fails.
func (m *Monitor) marketPrice(ctx context.Context, symbol string) (float64, error) {
	var sum float64
	var n int
	for _, src := range m.registry.Sources() {
		q, err := src.FetchTicker(ctx, symbol)
		if err != nil || q.Price <= 0 {
			continue
		}
		sum += q.Price
		n++
	}
	if n > 0 {
		return sum / float64(n), nil
	}
	if t, err := m.store.LatestTicker(ctx, symbol); err == nil && t != nil && t.Price > 0 {
		return t.Price, nil
	}
	return 0, errs.Ef(errs.KindTransientFetch, "trade: price "+symbol,
		"no exchange returned a price")
}

// Open registers a trade. stopPct is the initial stop distance as a
// fraction of entry.
func (m *Monitor) Open(ctx context.Context, symbol string, entry, sizeUSD, stopPct float64) (*models.Trade, error) {
	if entry <= 0 || sizeUSD <= 0 || stopPct <= 0 || stopPct >= 1 {
		return nil, errs.Ef(errs.KindConfig, "trade: open "+symbol,
			"entry, size and stop_pct must be positive (stop_pct < 1)")
	}
	if existing, err := m.store.OpenTradeForSymbol(ctx, symbol); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errs.Ef(errs.KindConfig, "trade: open "+symbol,
			"a trade on %s is already open", symbol)
	}
	if n, err := m.store.CountOpenTrades(ctx); err != nil {
		return nil, err
	} else if n >= m.maxOpen {
		return nil, errs.Ef(errs.KindConfig, "trade: open "+symbol,
			"max open trades reached (%d)", m.maxOpen)
	}

	t := &models.Trade{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Entry:      entry,
		SizeUSD:    sizeUSD,
		Stop:       entry * (1 - stopPct),
		State:      models.TradeOpen,
		OpenedAt:   time.Now().UnixMilli(),
		TrailStage: -1,
		Remaining:  1,
	}
	for i, mult := range fallbackTPs {
		t.TPs[i] = entry * mult
	}

	// Reuse the last scan's levels and score when the symbol is on record.
	if hist, err := m.store.LastResults(ctx, symbol, 1); err == nil && len(hist) > 0 {
		t.OpenScore = hist[0].FinalScore
		t.LastScore = hist[0].FinalScore
		if lv := hist[0].Levels; lv != nil {
			for i := 0; i < 3; i++ {
				if lv.TPs[i].Price > entry {
					t.TPs[i] = lv.TPs[i].Price
				}
			}
		}
	}

	if err := m.store.SaveTrade(ctx, t); err != nil {
		return nil, err
	}
	m.alerts.Emit(ctx, alert.Textf(alert.SeverityInfo, symbol, fmt.Sprintf(
		"trade registered: entry %.4f size $%.0f stop %.4f (-%.1f%%)",
		entry, sizeUSD, t.Stop, stopPct*100)))
	return t, nil
}

// Close closes the symbol's open trade at price (market price when 0) and
// reports realized P&L.
func (m *Monitor) Close(ctx context.Context, symbol string, price float64) (*models.Trade, error) {
	t, err := m.store.OpenTradeForSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errs.Ef(errs.KindConfig, "trade: close "+symbol, "no open trade on %s", symbol)
	}
	if price <= 0 {
		if price, err = m.price(ctx, symbol); err != nil {
			return nil, err
		}
	}
	m.closeTrade(ctx, t, price, models.CloseManual)
	return t, nil
}

// Adjust moves a level on the open trade. The stop may only move up.
func (m *Monitor) Adjust(ctx context.Context, symbol, field string, value float64) (*models.Trade, error) {
	t, err := m.store.OpenTradeForSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errs.Ef(errs.KindConfig, "trade: adjust "+symbol, "no open trade on %s", symbol)
	}

	switch field {
	case "stop":
		if value <= t.Stop {
			return nil, errs.Ef(errs.KindConfig, "trade: adjust "+symbol,
				"stop may only move up (current %.4f)", t.Stop)
		}
		t.Stop = value
	case "tp1":
		t.TPs[0] = value
	case "tp2":
		t.TPs[1] = value
	case "tp3":
		t.TPs[2] = value
	default:
		return nil, errs.Ef(errs.KindConfig, "trade: adjust "+symbol,
			"unknown field %q (stop|tp1|tp2|tp3)", field)
	}

	if err := m.store.SaveTrade(ctx, t); err != nil {
		return nil, err
	}
	m.alerts.Emit(ctx, alert.Textf(alert.SeverityInfo, symbol,
		fmt.Sprintf("%s adjusted to %.4f", field, value)))
	return t, nil
}

// Run polls open trades every five minutes until ctx is done. Independent
// of the scan cycle.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Tick(ctx, now)
		}
	}
}

// Tick processes every open trade once.
func (m *Monitor) Tick(ctx context.Context, now time.Time) {
	trades, err := m.store.OpenTrades(ctx)
	if err != nil {
		log.Error().Err(err).Msg("trade tick: listing open trades failed")
		return
	}
	for _, t := range trades {
		price, err := m.price(ctx, t.Symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", t.Symbol).Msg("trade tick: no price")
			continue
		}
		m.evaluate(ctx, t, price, now)
	}
}

// evaluate applies stop, TP, trail, degradation and digest rules to one
// trade at the given price.
func (m *Monitor) evaluate(ctx context.Context, t *models.Trade, price float64, now time.Time) {
	if price <= t.Stop {
		m.closeTrade(ctx, t, price, models.CloseStopHit)
		return
	}

	for i := 0; i < 4; i++ {
		if t.TPHits[i] || t.TPs[i] <= 0 || price < t.TPs[i] {
			continue
		}
		t.TPHits[i] = true
		if i == 3 {
			m.closeTrade(ctx, t, price, models.CloseFinalTP)
			return
		}
		slice := tpSlice
		if slice > t.Remaining {
			slice = t.Remaining
		}
		t.RealizedPnL += t.SizeUSD * slice * (price - t.Entry) / t.Entry
		t.Remaining -= slice
		m.alerts.Emit(ctx, alert.Textf(alert.SeverityWarning, t.Symbol, fmt.Sprintf(
			"TP%d hit at %.4f (+%.1f%%): sell %.0f%%, %.0f%% remains",
			i+1, price, t.GainPct(price), slice*100, t.Remaining*100)))
		if t.Remaining <= 1e-9 {
			m.closeTrade(ctx, t, price, models.CloseFinalTP)
			return
		}
	}

	m.applyTrail(ctx, t, price)
	m.checkDegradation(ctx, t)

	if hr := now.Unix() / 3600; hr > t.LastDigestHr {
		t.LastDigestHr = hr
		m.alerts.Emit(ctx, alert.Textf(alert.SeverityInfo, t.Symbol, fmt.Sprintf(
			"digest: price %.4f (%+.1f%%), realized $%.2f, open P&L $%.2f, score %.1f",
			price, t.GainPct(price), t.RealizedPnL, t.PnL(price), t.LastScore)))
	}

	if err := m.store.SaveTrade(ctx, t); err != nil {
		log.Error().Err(err).Str("symbol", t.Symbol).Msg("trade save failed")
	}
}

// applyTrail raises the stop along the schedule. The stop never decreases.
func (m *Monitor) applyTrail(ctx context.Context, t *models.Trade, price float64) {
	stage := trailStageFor(t.GainPct(price))
	if stage <= t.TrailStage {
		return
	}
	t.TrailStage = stage
	if newStop := t.Entry * (1 + trailSchedule[stage].StopPct/100); newStop > t.Stop {
		t.Stop = newStop
		m.alerts.Emit(ctx, alert.Textf(alert.SeverityInfo, t.Symbol, fmt.Sprintf(
			"trail: stop raised to %.4f (+%.0f%% locked)",
			t.Stop, trailSchedule[stage].StopPct)))
	}
}

// checkDegradation warns once per threshold when the symbol's score decays
// under the trade.
func (m *Monitor) checkDegradation(ctx context.Context, t *models.Trade) {
	hist, err := m.store.LastResults(ctx, t.Symbol, 1)
	if err != nil || len(hist) == 0 {
		return
	}
	t.LastScore = hist[0].FinalScore

	if !t.DegradeWarned[0] && t.OpenScore-t.LastScore >= degradeScoreDrop {
		t.DegradeWarned[0] = true
		m.alerts.Emit(ctx, alert.Textf(alert.SeverityWarning, t.Symbol, fmt.Sprintf(
			"DEGRADATION: score fell %.1f -> %.1f since entry", t.OpenScore, t.LastScore)))
	}
	if !t.DegradeWarned[1] && t.LastScore < degradeScoreFloor {
		t.DegradeWarned[1] = true
		m.alerts.Emit(ctx, alert.Textf(alert.SeverityWarning, t.Symbol, fmt.Sprintf(
			"DEGRADATION: score %.1f below watch floor", t.LastScore)))
	}
}

// closeTrade realizes the remaining fraction at price and persists the
// terminal state.
func (m *Monitor) closeTrade(ctx context.Context, t *models.Trade, price float64, reason models.CloseReason) {
	t.RealizedPnL += t.SizeUSD * t.Remaining * (price - t.Entry) / t.Entry
	t.Remaining = 0
	t.State = models.TradeClosed
	t.ClosedAt = time.Now().UnixMilli()
	t.Reason = reason

	if err := m.store.SaveTrade(ctx, t); err != nil {
		log.Error().Err(err).Str("symbol", t.Symbol).Msg("trade close save failed")
	}

	sev := alert.SeverityWarning
	if reason == models.CloseStopHit {
		sev = alert.SeverityError
	}
	m.alerts.Emit(ctx, alert.Textf(sev, t.Symbol, fmt.Sprintf(
		"%s: closed at %.4f, realized $%.2f", reason, price, t.RealizedPnL)))
}

// Status renders a digest of all open trades, pricing each at the current
// market.
func (m *Monitor) Status(ctx context.Context) (string, error) {
	trades, err := m.store.OpenTrades(ctx)
	if err != nil {
		return "", err
	}
	if len(trades) == 0 {
		return "no open trades", nil
	}
	out := fmt.Sprintf("%d open trade(s):\n", len(trades))
	for _, t := range trades {
		line := fmt.Sprintf("%s entry %.4f stop %.4f remaining %.0f%% realized $%.2f",
			t.Symbol, t.Entry, t.Stop, t.Remaining*100, t.RealizedPnL)
		if price, err := m.price(ctx, t.Symbol); err == nil {
			line += fmt.Sprintf(" | price %.4f (%+.1f%%) open P&L $%.2f",
				price, t.GainPct(price), t.PnL(price))
		}
		out += line + "\n"
	}
	return out, nil
}
