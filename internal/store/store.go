// Package store persists every per-symbol time series, scan results,
// registered trades and the symbol universe in a single embedded SQLite
// file. Callers get value semantics; rows live as JSON payloads keyed
// (symbol, t).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sawpanic/pumpwatch/internal/errs"
)

const callTimeout = 5 * time.Second

// Store wraps the SQLite handle. Safe for concurrent callers; SQLite in WAL
// mode serializes writers internally.
type Store struct {
	db   *sqlx.DB
	path string
}

// Open opens (creating if needed) the database at path and applies
// migrations. A failed integrity check or migration reports
// StoreCorruption.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, errs.E(errs.KindStoreIO, "store: open", err)
	}
	// A single writer connection sidesteps SQLITE_BUSY under concurrent
	// appends from the scheduler and trade monitor.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var check string
	if err := db.GetContext(ctx, &check, "PRAGMA quick_check"); err != nil || check != "ok" {
		db.Close()
		if err == nil {
			err = fmt.Errorf("quick_check: %s", check)
		}
		return nil, errs.E(errs.KindStoreCorruption, "store: integrity check", err)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// migrations are forward-only and idempotent; each entry runs inside a
// transaction and bumps schema_version.
var migrations = []string{
	// v1: series tables, scan results, trades, universe.
	`CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL, t INTEGER NOT NULL, payload TEXT NOT NULL,
		PRIMARY KEY (symbol, t));
	CREATE TABLE IF NOT EXISTS oi_points (
		symbol TEXT NOT NULL, t INTEGER NOT NULL, payload TEXT NOT NULL,
		PRIMARY KEY (symbol, t));
	CREATE TABLE IF NOT EXISTS funding_points (
		symbol TEXT NOT NULL, t INTEGER NOT NULL, payload TEXT NOT NULL,
		PRIMARY KEY (symbol, t));
	CREATE TABLE IF NOT EXISTS ls_points (
		symbol TEXT NOT NULL, t INTEGER NOT NULL, payload TEXT NOT NULL,
		PRIMARY KEY (symbol, t));
	CREATE TABLE IF NOT EXISTS tickers (
		symbol TEXT NOT NULL, t INTEGER NOT NULL, payload TEXT NOT NULL,
		PRIMARY KEY (symbol, t));
	CREATE TABLE IF NOT EXISTS book_snapshots (
		symbol TEXT NOT NULL, t INTEGER NOT NULL, payload TEXT NOT NULL,
		PRIMARY KEY (symbol, t));
	CREATE TABLE IF NOT EXISTS scan_results (
		symbol TEXT NOT NULL, t INTEGER NOT NULL, payload TEXT NOT NULL,
		PRIMARY KEY (symbol, t));
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY, symbol TEXT NOT NULL, state TEXT NOT NULL,
		payload TEXT NOT NULL);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades (symbol, state);
	CREATE TABLE IF NOT EXISTS universe (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		fetched_at INTEGER NOT NULL, payload TEXT NOT NULL);`,
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY, applied_at INTEGER NOT NULL)`); err != nil {
		return errs.E(errs.KindStoreCorruption, "store: create schema_version", err)
	}

	var current int
	err := s.db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errs.E(errs.KindStoreCorruption, "store: read schema_version", err)
	}

	for v := current; v < len(migrations); v++ {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return errs.E(errs.KindStoreCorruption, "store: begin migration", err)
		}
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			tx.Rollback()
			return errs.E(errs.KindStoreCorruption, fmt.Sprintf("store: apply migration %d", v+1), err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
			v+1, time.Now().UnixMilli()); err != nil {
			tx.Rollback()
			return errs.E(errs.KindStoreCorruption, "store: record migration", err)
		}
		if err := tx.Commit(); err != nil {
			return errs.E(errs.KindStoreCorruption, "store: commit migration", err)
		}
	}
	return nil
}

// Stats summarizes the database for `run --stats` and the ops endpoint.
type Stats struct {
	Rows       map[string]int64 `json:"rows"`
	Symbols    int              `json:"symbols"`
	LastScanMs int64            `json:"last_scan_ms"`
	FileBytes  int64            `json:"file_bytes"`
}

var statTables = []string{
	"candles", "oi_points", "funding_points", "ls_points",
	"tickers", "book_snapshots", "scan_results", "trades",
}

// Stats counts rows per table and reports file size and scan recency.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := &Stats{Rows: make(map[string]int64, len(statTables))}
	for _, table := range statTables {
		var n int64
		if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, errs.E(errs.KindStoreIO, "store: count "+table, err)
		}
		out.Rows[table] = n
	}
	if err := s.db.GetContext(ctx, &out.Symbols,
		`SELECT COUNT(DISTINCT symbol) FROM candles`); err != nil {
		return nil, errs.E(errs.KindStoreIO, "store: count symbols", err)
	}
	var last sql.NullInt64
	if err := s.db.GetContext(ctx, &last, `SELECT MAX(t) FROM scan_results`); err != nil {
		return nil, errs.E(errs.KindStoreIO, "store: last scan", err)
	}
	out.LastScanMs = last.Int64
	if fi, err := os.Stat(s.path); err == nil {
		out.FileBytes = fi.Size()
	}
	return out, nil
}

// Cleanup deletes series and scan rows older than the retention horizon and
// vacuums. Returns total rows removed.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	horizon := time.Now().AddDate(0, 0, -olderThanDays).UnixMilli()
	var total int64
	for _, table := range []string{
		"candles", "oi_points", "funding_points", "ls_points",
		"tickers", "book_snapshots", "scan_results",
	} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE t < ?", horizon)
		if err != nil {
			return total, errs.E(errs.KindStoreIO, "store: cleanup "+table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return total, errs.E(errs.KindStoreIO, "store: vacuum", err)
	}
	return total, nil
}
