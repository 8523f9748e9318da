package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/models"
)

// SaveTrade upserts a trade by id. The monitor calls this on every state
// change so registered positions survive restarts.
func (s *Store) SaveTrade(ctx context.Context, t *models.Trade) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return errs.E(errs.KindInternal, "store: marshal trade", err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (id, symbol, state, payload) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET symbol = excluded.symbol,
			state = excluded.state, payload = excluded.payload`,
		t.ID, t.Symbol, string(t.State), payload); err != nil {
		return errs.E(errs.KindStoreIO, "store: save trade", err)
	}
	return nil
}

// OpenTrades returns all trades still in the OPEN state.
func (s *Store) OpenTrades(ctx context.Context) ([]*models.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx,
		`SELECT payload FROM trades WHERE state = ? ORDER BY rowid`, string(models.TradeOpen))
	if err != nil {
		return nil, errs.E(errs.KindStoreIO, "store: open trades", err)
	}
	defer rows.Close()

	ts, err := scanPayloads[models.Trade](rows, "trades")
	if err != nil {
		return nil, err
	}
	out := make([]*models.Trade, len(ts))
	for i := range ts {
		out[i] = &ts[i]
	}
	return out, nil
}

// OpenTradeForSymbol returns the open trade on symbol, or nil when none.
func (s *Store) OpenTradeForSymbol(ctx context.Context, symbol string) (*models.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var payload []byte
	err := s.db.GetContext(ctx, &payload,
		`SELECT payload FROM trades WHERE symbol = ? AND state = ? LIMIT 1`,
		symbol, string(models.TradeOpen))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.E(errs.KindStoreIO, "store: trade for symbol", err)
	}
	var t models.Trade
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, errs.E(errs.KindStoreCorruption, "store: decode trade", err)
	}
	return &t, nil
}

// CountOpenTrades reports how many positions are registered.
func (s *Store) CountOpenTrades(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var n int
	if err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM trades WHERE state = ?`, string(models.TradeOpen)); err != nil {
		return 0, errs.E(errs.KindStoreIO, "store: count trades", err)
	}
	return n, nil
}
