package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"metal-price-scraper/models"
)

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS completed_dates (
	date         TEXT    NOT NULL,
	currency     TEXT    NOT NULL,
	url          TEXT    NOT NULL,
	records      INTEGER NOT NULL,
	completed_at TEXT    NOT NULL,
	PRIMARY KEY (date, currency)
);`

// Checkpoint records which currencies of which dates were persisted, in an
// embedded SQLite database.
type Checkpoint struct {
	db *sql.DB
}

var _ ProgressTracker = (*Checkpoint)(nil)

// OpenCheckpoint opens or creates the checkpoint database at path.
func OpenCheckpoint(ctx context.Context, path string) (*Checkpoint, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("checkpoint: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %q: %w", path, err)
	}
	// one connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, checkpointSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: migrate: %w", err)
	}
	return &Checkpoint{db: db}, nil
}

// CompletedCurrencies returns the currencies already persisted for date.
func (c *Checkpoint) CompletedCurrencies(ctx context.Context, date string) ([]models.Currency, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT currency FROM completed_dates WHERE date = ? ORDER BY currency`, date)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: lookup %s: %w", date, err)
	}
	defer rows.Close()

	var done []models.Currency
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("checkpoint: scan %s: %w", date, err)
		}
		done = append(done, models.Currency(code))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: lookup %s: %w", date, err)
	}
	return done, nil
}

func (c *Checkpoint) MarkCompleted(ctx context.Context, date, url string, currency models.Currency, records int) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO completed_dates (date, currency, url, records, completed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, currency) DO UPDATE SET
			url = excluded.url,
			records = excluded.records,
			completed_at = excluded.completed_at`,
		date, string(currency), url, records, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("checkpoint: mark %s/%s: %w", date, currency, err)
	}
	return nil
}

// Count returns the number of completed (date, currency) pairs.
func (c *Checkpoint) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM completed_dates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("checkpoint: count: %w", err)
	}
	return n, nil
}

func (c *Checkpoint) Close() error {
	return c.db.Close()
}
