// Package kvsqlite is the reference engine.Engine implementation: a
// database/sql + mattn/go-sqlite3 backend where each table URI maps to
// one key/value table, a session owns one *sql.Tx at a time, and a
// cursor is an accessor bound to one table that runs a plain SQL
// statement against the session's transaction for each call.
package kvsqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ha1tch/asyncstore/engine"
)

// Config holds SQLite-specific configuration, grounded on the same
// pragma/DSN knobs the teacher repo exposes for its own SQLite backend.
type Config struct {
	// Path to the database file, used verbatim as the DSN. For an
	// in-memory database shared across connections use
	// "file::memory:?cache=shared" (DefaultConfig's value); plain
	// ":memory:" gives every connection its own empty database.
	Path string

	// MaxOpenConns bounds the connection pool. Unlike a single-writer SQL
	// proxy, the dispatcher's worker pool needs at least as many
	// connections as configured workers so sessions don't serialize on a
	// single connection; DefaultConfig sets it to the caller-supplied
	// worker count.
	MaxOpenConns int
	MaxIdleConns int

	JournalMode string // WAL, DELETE, TRUNCATE, PERSIST, MEMORY, OFF
	Synchronous string // OFF, NORMAL, FULL, EXTRA
	CacheSize   int    // Number of pages (negative = KB)
	BusyTimeout int    // Milliseconds
}

// DefaultConfig returns sensible defaults for an in-memory engine sized
// for workerCount concurrent sessions.
func DefaultConfig(workerCount int) Config {
	if workerCount < 1 {
		workerCount = 1
	}
	return Config{
		Path:         "file::memory:?cache=shared",
		MaxOpenConns: workerCount,
		MaxIdleConns: workerCount,
		JournalMode:  "WAL",
		Synchronous:  "NORMAL",
		CacheSize:    -2000,
		BusyTimeout:  5000,
	}
}

// Engine is the SQLite-backed engine.Engine implementation.
type Engine struct {
	db *sql.DB

	mu      sync.Mutex
	tables  map[string]bool // table name -> ensured-to-exist
}

// Open opens (or creates) the SQLite database described by cfg.
func Open(cfg Config) (*Engine, error) {
	dsn := cfg.Path
	var opts []string
	if cfg.CacheSize != 0 {
		opts = append(opts, fmt.Sprintf("_cache_size=%d", cfg.CacheSize))
	}
	if cfg.BusyTimeout > 0 {
		opts = append(opts, fmt.Sprintf("_busy_timeout=%d", cfg.BusyTimeout))
	}
	if cfg.JournalMode != "" {
		opts = append(opts, fmt.Sprintf("_journal_mode=%s", cfg.JournalMode))
	}
	if cfg.Synchronous != "" {
		opts = append(opts, fmt.Sprintf("_synchronous=%s", cfg.Synchronous))
	}
	if len(opts) > 0 {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = dsn + sep + strings.Join(opts, "&")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("kvsqlite: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvsqlite: ping: %w", err)
	}

	return &Engine{
		db:     db,
		tables: make(map[string]bool),
	}, nil
}

// OpenSession returns a new, independent session backed by the same
// connection pool.
func (e *Engine) OpenSession(ctx context.Context) (engine.Session, error) {
	return &session{engine: e}, nil
}

// Close closes the underlying connection pool.
func (e *Engine) Close() error {
	return e.db.Close()
}

// ensureTable creates the key/value table for uri if it doesn't exist
// yet. Guarded by e.mu so concurrent workers racing to open a cursor on
// the same brand-new URI don't issue duplicate CREATE TABLE statements.
func (e *Engine) ensureTable(ctx context.Context, tx *sql.Tx, tableName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tables[tableName] {
		return nil
	}

	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (k BLOB PRIMARY KEY, v BLOB NOT NULL)",
		tableName,
	)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("kvsqlite: create table %s: %w", tableName, err)
	}
	e.tables[tableName] = true
	return nil
}

// tableName derives a safe SQLite identifier from a table URI such as
// "table:orders". Non-alphanumeric characters become underscores so the
// result is always a bare identifier, never something requiring quoting.
func tableName(uri string) string {
	var b strings.Builder
	b.WriteString("kv_")
	for _, r := range uri {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
