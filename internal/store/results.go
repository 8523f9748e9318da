package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/models"
)

// resultHistory is how many scan results survive per symbol. The event
// detector needs two; a few more make /watchlist and the digest richer.
const resultHistory = 5

// PutScanResult persists a result and prunes the symbol's history.
func (s *Store) PutScanResult(ctx context.Context, r *models.ScanResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return errs.E(errs.KindInternal, "store: marshal scan result", err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errs.E(errs.KindStoreIO, "store: begin scan result", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scan_results (symbol, t, payload) VALUES (?, ?, ?)
		 ON CONFLICT (symbol, t) DO UPDATE SET payload = excluded.payload`,
		r.Symbol, r.T, payload); err != nil {
		return errs.E(errs.KindStoreIO, "store: put scan result", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM scan_results WHERE symbol = ? AND t < (
			SELECT COALESCE(MIN(t), 0) FROM (
				SELECT t FROM scan_results WHERE symbol = ? ORDER BY t DESC LIMIT ?))`,
		r.Symbol, r.Symbol, resultHistory); err != nil {
		return errs.E(errs.KindStoreIO, "store: prune scan results", err)
	}
	return tx.Commit()
}

// LastResults returns up to n results for symbol, newest first.
func (s *Store) LastResults(ctx context.Context, symbol string, n int) ([]models.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx,
		`SELECT payload FROM scan_results WHERE symbol = ? ORDER BY t DESC LIMIT ?`,
		symbol, n)
	if err != nil {
		return nil, errs.E(errs.KindStoreIO, "store: last results", err)
	}
	defer rows.Close()
	return scanPayloads[models.ScanResult](rows, "scan_results")
}

// TopScores returns each symbol's latest result with final score >= min,
// highest first, at most limit.
func (s *Store) TopScores(ctx context.Context, min float64, limit int) ([]models.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx,
		`SELECT payload FROM scan_results sr
		 WHERE t = (SELECT MAX(t) FROM scan_results WHERE symbol = sr.symbol)`)
	if err != nil {
		return nil, errs.E(errs.KindStoreIO, "store: top scores", err)
	}
	defer rows.Close()

	all, err := scanPayloads[models.ScanResult](rows, "scan_results")
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, r := range all {
		if r.FinalScore >= min {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinalScore > out[j].FinalScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
