package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type openConfig struct {
	busyTimeout int
	synchronous string
	mkdirAll    bool
	maxEntries  int
}

func openDefaults() openConfig {
	return openConfig{
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		mkdirAll:    true,
		maxEntries:  DefaultMaxEntries,
	}
}

// Option customises Open.
type Option func(*openConfig)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *openConfig) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(c *openConfig) { c.synchronous = mode } }

// WithoutMkdirAll leaves the parent directory of the database alone.
func WithoutMkdirAll() Option { return func(c *openConfig) { c.mkdirAll = false } }

// WithMaxEntries bounds how many picks are retained. Default: 20.
func WithMaxEntries(n int) Option {
	return func(c *openConfig) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// Open opens (or creates) the pick history at path, applies the pragmas and
// the schema. path may be ":memory:".
func Open(path string, opts ...Option) (*Store, error) {
	cfg := openDefaults()
	for _, o := range opts {
		o(&cfg)
	}

	memory := path == ":memory:"
	if cfg.mkdirAll && !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if memory {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.synchronous),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: exec schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	return &Store{DB: db, max: cfg.maxEntries}, nil
}
