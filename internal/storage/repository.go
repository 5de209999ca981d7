package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// Settings are the user preferences kept across sessions.
type Settings struct {
	CounterIntervalSeconds int
	PageSize               int
}

const (
	keyCounterInterval = "counter_interval_seconds"
	keyPageSize        = "page_size"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) Init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// CheckWritable fails early when the database file cannot be written.
func (r *Repository) CheckWritable(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES ('__probe', '', '') ON CONFLICT(key) DO NOTHING`); err != nil {
		return fmt.Errorf("write probe: %w", err)
	}
	return nil
}

// LoadSettings returns the stored settings, using defaults for keys that
// were never saved.
func (r *Repository) LoadSettings(ctx context.Context, defaults Settings) (Settings, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings WHERE key IN (?, ?)`, keyCounterInterval, keyPageSize)
	if err != nil {
		return Settings{}, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	out := defaults
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Settings{}, fmt.Errorf("scan setting: %w", err)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return Settings{}, fmt.Errorf("parse setting %s=%q: %w", key, value, err)
		}
		switch key {
		case keyCounterInterval:
			out.CounterIntervalSeconds = n
		case keyPageSize:
			out.PageSize = n
		}
	}
	if err := rows.Err(); err != nil {
		return Settings{}, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (r *Repository) SaveSettings(ctx context.Context, s Settings) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO settings (key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value=excluded.value,
  updated_at=excluded.updated_at
`)
	if err != nil {
		return fmt.Errorf("prepare save statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	values := map[string]int{
		keyCounterInterval: s.CounterIntervalSeconds,
		keyPageSize:        s.PageSize,
	}
	for key, value := range values {
		if _, err := stmt.ExecContext(ctx, key, strconv.Itoa(value), now); err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
