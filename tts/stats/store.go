package stats

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // SQLite driver.
)

const dayLayout = "2006-01-02"

// Store persists reading time increments in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Day is the reading time recorded on one calendar day.
type Day struct {
	Date    time.Time
	Seconds int
}

// Open opens or creates the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate stats database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reading_increments (
			id TEXT PRIMARY KEY,
			recorded_at TEXT NOT NULL,
			day TEXT NOT NULL,
			seconds INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reading_increments_day ON reading_increments(day);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddSeconds implements Sink. Every increment is its own row.
func (s *Store) AddSeconds(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reading_increments (id, recorded_at, day, seconds) VALUES (?, ?, ?, ?)`,
		uuid.NewString(),
		now.UTC().Format(time.RFC3339Nano),
		now.Format(dayLayout),
		n,
	)
	return err
}

// Total returns all recorded reading time.
func (s *Store) Total(ctx context.Context) (time.Duration, error) {
	var seconds sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT SUM(seconds) FROM reading_increments`).Scan(&seconds); err != nil {
		return 0, err
	}
	return time.Duration(seconds.Int64) * time.Second, nil
}

// Daily returns per-day totals for the last days days, oldest first.
// Days without reading are omitted.
func (s *Store) Daily(ctx context.Context, days int) ([]Day, error) {
	if days <= 0 {
		return nil, nil
	}
	since := s.now().AddDate(0, 0, -(days - 1)).Format(dayLayout)

	rows, err := s.db.QueryContext(ctx,
		`SELECT day, SUM(seconds) FROM reading_increments
		 WHERE day >= ?
		 GROUP BY day
		 ORDER BY day`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []Day
	for rows.Next() {
		var (
			day     string
			seconds int
		)
		if err := rows.Scan(&day, &seconds); err != nil {
			return nil, err
		}
		date, err := time.ParseInLocation(dayLayout, day, time.Local)
		if err != nil {
			return nil, fmt.Errorf("bad day %q: %w", day, err)
		}
		out = append(out, Day{Date: date, Seconds: seconds})
	}
	return out, rows.Err()
}
