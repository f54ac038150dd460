package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"metal-price-scraper/models"
	"metal-price-scraper/utils"
)

// PostgresDataset persists price records to PostgreSQL. Every Append is a
// single transaction, so a batch is stored entirely or not at all.
type PostgresDataset struct {
	db *sql.DB
}

var _ DatasetWriter = (*PostgresDataset)(nil)

// NewPostgresDataset opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresDataset.
func NewPostgresDataset(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresDataset, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 6, BaseDelay: time.Second, Logger: logger}
	if err := retry.Do(ctx, "postgres-ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pd := &PostgresDataset{db: db}
	if err := pd.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pd, nil
}

func (pd *PostgresDataset) migrate(ctx context.Context) error {
	_, err := pd.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS price_records (
			id         BIGSERIAL    PRIMARY KEY,
			date       TEXT         NOT NULL,
			currency   VARCHAR(8)   NOT NULL,
			commodity  TEXT         NOT NULL,
			price      NUMERIC      NULL,
			unit       TEXT         NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_price_records_date     ON price_records(date);
		CREATE INDEX IF NOT EXISTS idx_price_records_currency ON price_records(currency);
	`)
	return err
}

// Append inserts the batch in one transaction.
func (pd *PostgresDataset) Append(ctx context.Context, records []models.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := pd.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	const batchSize = 100
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := insertBatch(ctx, tx, records[i:end]); err != nil {
			return fmt.Errorf("postgres: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func insertBatch(ctx context.Context, tx *sql.Tx, batch []models.PriceRecord) error {
	const cols = 5
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, r := range batch {
		base := idx * cols
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5))
		valueArgs = append(valueArgs, r.Date, string(r.Currency), r.Commodity, r.Price, r.Unit)
	}

	query := fmt.Sprintf(`
		INSERT INTO price_records (date, currency, commodity, price, unit)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	_, err := tx.ExecContext(ctx, query, valueArgs...)
	return err
}

// fetchByDate returns the records stored for date in insertion order.
func (pd *PostgresDataset) fetchByDate(ctx context.Context, date string) ([]models.PriceRecord, error) {
	rows, err := pd.db.QueryContext(ctx, `
		SELECT date, currency, commodity, price, unit
		FROM price_records
		WHERE date = $1
		ORDER BY id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch %s: %w", date, err)
	}
	defer rows.Close()

	var records []models.PriceRecord
	for rows.Next() {
		var r models.PriceRecord
		var currency string
		if err := rows.Scan(&r.Date, &currency, &r.Commodity, &r.Price, &r.Unit); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		r.Currency = models.Currency(currency)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (pd *PostgresDataset) Close() error {
	return pd.db.Close()
}
