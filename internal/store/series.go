package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/models"
)

func tableFor(kind models.SeriesKind) string {
	switch kind {
	case models.SeriesCandles:
		return "candles"
	case models.SeriesOI:
		return "oi_points"
	case models.SeriesFunding:
		return "funding_points"
	case models.SeriesLS:
		return "ls_points"
	case models.SeriesTickers:
		return "tickers"
	case models.SeriesBook:
		return "book_snapshots"
	default:
		return ""
	}
}

// appendSeries upserts samples by (symbol, t) and trims the ring down to
// the kind's retention cap. Idempotent: re-appending a timestamp replaces
// the payload.
func appendSeries[T any](ctx context.Context, s *Store, kind models.SeriesKind, symbol string, items []T, tsOf func(T) int64) error {
	if len(items) == 0 {
		return nil
	}
	table := tableFor(kind)
	if table == "" {
		return errs.Ef(errs.KindInternal, "store: append", "unknown series kind %q", kind)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errs.E(errs.KindStoreIO, "store: begin append "+table, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (symbol, t, payload) VALUES (?, ?, ?)
		 ON CONFLICT (symbol, t) DO UPDATE SET payload = excluded.payload`, table))
	if err != nil {
		return errs.E(errs.KindStoreIO, "store: prepare append "+table, err)
	}
	defer stmt.Close()

	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return errs.E(errs.KindInternal, "store: marshal "+table, err)
		}
		if _, err := stmt.ExecContext(ctx, symbol, tsOf(item), payload); err != nil {
			return errs.E(errs.KindStoreIO, "store: append "+table, err)
		}
	}

	// Retention: keep only the newest cap rows per symbol.
	if cap := kind.RetentionCap(); cap > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE symbol = ? AND t < (
				SELECT COALESCE(MIN(t), 0) FROM (
					SELECT t FROM %s WHERE symbol = ? ORDER BY t DESC LIMIT ?))`,
			table, table), symbol, symbol, cap); err != nil {
			return errs.E(errs.KindStoreIO, "store: trim "+table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.E(errs.KindStoreIO, "store: commit append "+table, err)
	}
	return nil
}

// latestSeries returns the newest n samples in ascending t.
func latestSeries[T any](ctx context.Context, s *Store, kind models.SeriesKind, symbol string, n int) ([]T, error) {
	table := tableFor(kind)
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, fmt.Sprintf(
		`SELECT payload FROM (
			SELECT t, payload FROM %s WHERE symbol = ? ORDER BY t DESC LIMIT ?
		) ORDER BY t ASC`, table), symbol, n)
	if err != nil {
		return nil, errs.E(errs.KindStoreIO, "store: latest "+table, err)
	}
	defer rows.Close()
	return scanPayloads[T](rows, table)
}

// rangeSeries returns samples with t in [from, to], ascending.
func rangeSeries[T any](ctx context.Context, s *Store, kind models.SeriesKind, symbol string, from, to int64) ([]T, error) {
	table := tableFor(kind)
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, fmt.Sprintf(
		`SELECT payload FROM %s WHERE symbol = ? AND t >= ? AND t <= ? ORDER BY t ASC`,
		table), symbol, from, to)
	if err != nil {
		return nil, errs.E(errs.KindStoreIO, "store: range "+table, err)
	}
	defer rows.Close()
	return scanPayloads[T](rows, table)
}

type payloadRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanPayloads[T any](rows payloadRows, table string) ([]T, error) {
	var out []T
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errs.E(errs.KindStoreIO, "store: scan "+table, err)
		}
		var item T
		if err := json.Unmarshal(payload, &item); err != nil {
			return nil, errs.E(errs.KindStoreCorruption, "store: decode "+table, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStoreIO, "store: iterate "+table, err)
	}
	return out, nil
}

// AppendCandles upserts hourly candles for symbol.
func (s *Store) AppendCandles(ctx context.Context, symbol string, cs []models.Candle) error {
	return appendSeries(ctx, s, models.SeriesCandles, symbol, cs, func(c models.Candle) int64 { return c.T })
}

// AppendOI upserts open-interest points.
func (s *Store) AppendOI(ctx context.Context, symbol string, ps []models.OIPoint) error {
	return appendSeries(ctx, s, models.SeriesOI, symbol, ps, func(p models.OIPoint) int64 { return p.T })
}

// AppendFunding upserts funding points.
func (s *Store) AppendFunding(ctx context.Context, symbol string, ps []models.FundingPoint) error {
	return appendSeries(ctx, s, models.SeriesFunding, symbol, ps, func(p models.FundingPoint) int64 { return p.T })
}

// AppendLS upserts long/short ratio points.
func (s *Store) AppendLS(ctx context.Context, symbol string, ps []models.LSPoint) error {
	return appendSeries(ctx, s, models.SeriesLS, symbol, ps, func(p models.LSPoint) int64 { return p.T })
}

// AppendTicker upserts a ticker observation.
func (s *Store) AppendTicker(ctx context.Context, symbol string, t models.Ticker) error {
	return appendSeries(ctx, s, models.SeriesTickers, symbol, []models.Ticker{t}, func(t models.Ticker) int64 { return t.T })
}

// PutBook replaces the symbol's book snapshot; only the latest survives.
func (s *Store) PutBook(ctx context.Context, symbol string, b models.BookSnapshot) error {
	return appendSeries(ctx, s, models.SeriesBook, symbol, []models.BookSnapshot{b}, func(b models.BookSnapshot) int64 { return b.T })
}

// Candles returns the newest limit candles, ascending.
func (s *Store) Candles(ctx context.Context, symbol string, limit int) ([]models.Candle, error) {
	return latestSeries[models.Candle](ctx, s, models.SeriesCandles, symbol, limit)
}

// CandleRange returns candles with t in [from, to].
func (s *Store) CandleRange(ctx context.Context, symbol string, from, to int64) ([]models.Candle, error) {
	return rangeSeries[models.Candle](ctx, s, models.SeriesCandles, symbol, from, to)
}

// OIPoints returns the newest limit OI points, ascending.
func (s *Store) OIPoints(ctx context.Context, symbol string, limit int) ([]models.OIPoint, error) {
	return latestSeries[models.OIPoint](ctx, s, models.SeriesOI, symbol, limit)
}

// FundingPoints returns the newest limit funding points, ascending.
func (s *Store) FundingPoints(ctx context.Context, symbol string, limit int) ([]models.FundingPoint, error) {
	return latestSeries[models.FundingPoint](ctx, s, models.SeriesFunding, symbol, limit)
}

// LSPoints returns the newest limit long/short points, ascending.
func (s *Store) LSPoints(ctx context.Context, symbol string, limit int) ([]models.LSPoint, error) {
	return latestSeries[models.LSPoint](ctx, s, models.SeriesLS, symbol, limit)
}

// LatestTicker returns the newest ticker, or nil when none stored.
func (s *Store) LatestTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	ts, err := latestSeries[models.Ticker](ctx, s, models.SeriesTickers, symbol, 1)
	if err != nil || len(ts) == 0 {
		return nil, err
	}
	return &ts[len(ts)-1], nil
}

// Book returns the stored snapshot, or nil when none stored.
func (s *Store) Book(ctx context.Context, symbol string) (*models.BookSnapshot, error) {
	bs, err := latestSeries[models.BookSnapshot](ctx, s, models.SeriesBook, symbol, 1)
	if err != nil || len(bs) == 0 {
		return nil, err
	}
	return &bs[len(bs)-1], nil
}

// SeriesCounts is the row inventory the scheduler uses to decide between
// bootstrap and incremental fetching.
type SeriesCounts struct {
	Candles int
	OI      int
	Funding int
	LS      int
}

// SeriesCounts counts stored samples per kind for symbol.
func (s *Store) SeriesCounts(ctx context.Context, symbol string) (SeriesCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var out SeriesCounts
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"candles", &out.Candles},
		{"oi_points", &out.OI},
		{"funding_points", &out.Funding},
		{"ls_points", &out.LS},
	} {
		err := s.db.GetContext(ctx, q.dst,
			"SELECT COUNT(*) FROM "+q.table+" WHERE symbol = ?", symbol)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return out, errs.E(errs.KindStoreIO, "store: count "+q.table, err)
		}
	}
	return out, nil
}
