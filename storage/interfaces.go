package storage

import (
	"context"

	"metal-price-scraper/models"
)

// DatasetWriter is the interface any price dataset backend must satisfy.
// Append adds one batch after everything already stored; existing rows are
// never rewritten.
type DatasetWriter interface {
	Append(ctx context.Context, records []models.PriceRecord) error
	Close() error
}

// ProgressTracker remembers which currencies of each date were persisted so a
// rerun only scrapes what is missing.
type ProgressTracker interface {
	CompletedCurrencies(ctx context.Context, date string) ([]models.Currency, error)
	MarkCompleted(ctx context.Context, date, url string, currency models.Currency, records int) error
	Close() error
}
