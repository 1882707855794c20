package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed Ledger.
type Store struct {
	DB *sql.DB
}

// Open opens (creating if needed) the database at path with WAL and a busy
// timeout, and applies the schema. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	// One writer, and ":memory:" would otherwise give each connection its own database.
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &Store{DB: db}, nil
}

// RecordCheck inserts one poll record.
func (s *Store) RecordCheck(ctx context.Context, c Check) error {
	months := c.Months
	if months == nil {
		months = []Month{}
	}
	blob, err := json.Marshal(months)
	if err != nil {
		return fmt.Errorf("history: marshal months: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO checks (id, started_at, duration_ms, status, error_kind,
		error_message, months, alerts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.StartedAt.UnixMilli(), c.Duration.Milliseconds(), c.Status,
		c.ErrorKind, c.Error, string(blob), c.Alerts,
	)
	if err != nil {
		return fmt.Errorf("history: insert check: %w", err)
	}
	return nil
}

// RecentChecks returns poll records, newest first.
func (s *Store) RecentChecks(ctx context.Context, limit int) ([]Check, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, status, error_kind, error_message, months, alerts
		FROM checks ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query checks: %w", err)
	}
	defer rows.Close()

	result := []Check{}
	for rows.Next() {
		var (
			c          Check
			startedMs  int64
			durationMs int64
			blob       string
		)
		if err := rows.Scan(&c.ID, &startedMs, &durationMs, &c.Status,
			&c.ErrorKind, &c.Error, &blob, &c.Alerts); err != nil {
			return nil, fmt.Errorf("history: scan check: %w", err)
		}
		c.StartedAt = time.UnixMilli(startedMs)
		c.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(blob), &c.Months); err != nil {
			return nil, fmt.Errorf("history: months of %s: %w", c.ID, err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// LastNotified returns the date list last announced for month.
func (s *Store) LastNotified(ctx context.Context, month string) (string, bool, error) {
	var dates string
	err := s.DB.QueryRowContext(ctx,
		`SELECT dates FROM notified WHERE month = ?`, month).Scan(&dates)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("history: last notified: %w", err)
	}
	return dates, true, nil
}

// MarkNotified records that dates were announced for month.
func (s *Store) MarkNotified(ctx context.Context, month, dates string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO notified (month, dates, notified_at) VALUES (?, ?, ?)
		ON CONFLICT(month) DO UPDATE SET dates = excluded.dates, notified_at = excluded.notified_at`,
		month, dates, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("history: mark notified: %w", err)
	}
	return nil
}

// Forget drops the announced record for month.
func (s *Store) Forget(ctx context.Context, month string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM notified WHERE month = ?`, month); err != nil {
		return fmt.Errorf("history: forget: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.DB.Close() }
