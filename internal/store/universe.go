package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/sawpanic/pumpwatch/internal/errs"
)

// Universe returns the cached symbol list and when it was fetched. An empty
// slice with zero time means no cache yet.
func (s *Store) Universe(ctx context.Context) ([]string, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var row struct {
		FetchedAt int64  `db:"fetched_at"`
		Payload   []byte `db:"payload"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT fetched_at, payload FROM universe WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, errs.E(errs.KindStoreIO, "store: read universe", err)
	}

	var symbols []string
	if err := json.Unmarshal(row.Payload, &symbols); err != nil {
		return nil, time.Time{}, errs.E(errs.KindStoreCorruption, "store: decode universe", err)
	}
	return symbols, time.UnixMilli(row.FetchedAt), nil
}

// PutUniverse replaces the cached symbol list.
func (s *Store) PutUniverse(ctx context.Context, symbols []string) error {
	payload, err := json.Marshal(symbols)
	if err != nil {
		return errs.E(errs.KindInternal, "store: marshal universe", err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO universe (id, fetched_at, payload) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET fetched_at = excluded.fetched_at,
			payload = excluded.payload`,
		time.Now().UnixMilli(), payload); err != nil {
		return errs.E(errs.KindStoreIO, "store: put universe", err)
	}
	return nil
}
