// Package store provides the durable, process-wide tables that back the
// trace log, result cache, session scratchpad and rate counters (the
// rate_counters table is created but no package reads or writes it).
// pkg/trace and pkg/cache open their tables through a single *Store.
// Defaults to SQLite, serialized behind one connection the way the
// teacher's config.DBPool forces a single connection for SQLite DSNs to
// avoid "database is locked" errors; STORE_DRIVER/STORE_DSN can instead
// point it at Postgres or MySQL. Each Open builds its own config.DBPool,
// so no connection is shared with other openers of the same DSN.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/wjabrac/agentrun/pkg/config"
)

// Store owns the shared database handle and the DDL for every table the
// core's durable collaborators need:
//
//	traces(id, thread_id, created_at)
//	trace_events(id, trace_id, phase, role, payload, created_at)
//	tool_cache(cache_key, tool, args_hash, value, ttl_s, created_at)
//	session_kv(thread_id, key, value, created_at)
//	rate_counters(key, count, window_start)
type Store struct {
	db     *sql.DB
	pool   *config.DBPool
	driver string
	mu     sync.Mutex
}

// Open creates (or attaches to) the SQLite database at path and ensures the
// schema exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	return OpenWithConfig(&config.DatabaseConfig{Driver: "sqlite", DataSourceName: path})
}

// OpenWithConfig opens (or attaches to) the database cfg describes through a
// fresh config.DBPool, applying SQLite-specific pragmas only when the
// dialect is SQLite, then ensures the schema exists.
func OpenWithConfig(cfg *config.DatabaseConfig) (*Store, error) {
	pool := config.NewDBPool()
	db, err := pool.Get(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.DriverName(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.DriverName() == "sqlite3" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("store: enable WAL: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=10000"); err != nil {
			return nil, fmt.Errorf("store: busy_timeout: %w", err)
		}
	}

	s := &Store{db: db, pool: pool, driver: cfg.DriverName()}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS traces (
			id TEXT PRIMARY KEY,
			thread_id TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trace_events (
			id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			role TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trace_events_trace_id ON trace_events(trace_id)`,
		`CREATE TABLE IF NOT EXISTS tool_cache (
			cache_key TEXT PRIMARY KEY,
			tool TEXT NOT NULL,
			args_hash TEXT NOT NULL,
			value TEXT NOT NULL,
			ttl_s INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_kv (
			thread_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (thread_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS rate_counters (
			key TEXT PRIMARY KEY,
			count INTEGER NOT NULL,
			window_start DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// DB returns the underlying *sql.DB for packages that need direct access
// (pkg/trace, pkg/cache).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes every connection the underlying DBPool opened.
func (s *Store) Close() error {
	return s.pool.Close()
}
