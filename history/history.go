// Package history keeps the most recent successful picks in SQLite so they
// can be listed again after the session that produced them is gone.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxEntries is how many picks are retained.
const DefaultMaxEntries = 20

// Entry is one remembered pick.
type Entry struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Framework string    `json:"framework,omitempty"`
	PageURL   string    `json:"page_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the history database handle.
type Store struct {
	DB  *sql.DB
	max int
}

// MaxEntries reports the retention bound.
func (s *Store) MaxEntries() int { return s.max }

// Add records e as the newest entry and trims the oldest beyond the
// retention bound. A re-used id replaces the earlier entry.
func (s *Store) Add(ctx context.Context, e Entry) error {
	if e.Path == "" {
		return fmt.Errorf("history: add: empty path")
	}
	if e.ID == "" {
		e.ID = uuid.Must(uuid.NewV7()).String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: add: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM picks WHERE id = ?`, e.ID); err != nil {
		return fmt.Errorf("history: add: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO picks (id, path, framework, page_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Path, e.Framework, e.PageURL, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("history: add: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM picks WHERE seq NOT IN (SELECT seq FROM picks ORDER BY seq DESC LIMIT ?)`, s.max)
	if err != nil {
		return fmt.Errorf("history: trim: %w", err)
	}
	return tx.Commit()
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, path, framework, page_url, created_at FROM picks ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.Path, &e.Framework, &e.PageURL, &ms); err != nil {
			return nil, fmt.Errorf("history: list: %w", err)
		}
		e.CreatedAt = time.UnixMilli(ms).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM picks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

// Clear removes every entry and returns how many there were.
func (s *Store) Clear(ctx context.Context) (int, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM picks`)
	if err != nil {
		return 0, fmt.Errorf("history: clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
