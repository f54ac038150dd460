package metalprice

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metal-price-scraper/browser/browsertest"
	"metal-price-scraper/config"
	"metal-price-scraper/models"
	"metal-price-scraper/storage"
)

type recordingSink struct {
	batches [][]models.PriceRecord
	err     error
}

func (s *recordingSink) Append(_ context.Context, records []models.PriceRecord) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, records)
	return nil
}

func (s *recordingSink) Close() error { return nil }

// priceSite serves one good date with USD and EUR tables, one date whose
// tables are empty, and leaves 20120104 unreachable.
func priceSite() (*browsertest.Browser, []string) {
	b := browsertest.New()
	good := b.AddPage(detailURL("20120103"), detailPage(models.CurrencyUSD, priceTable(
		row("Gold", "$1,650.20", "oz"),
		row("Silver", "$31.50", "oz"),
	)))
	good.Variants = map[string]string{
		"EUR": detailPage(models.CurrencyEUR, priceTable(row("Gold", "€1,254.10", "oz"))),
	}
	b.AddPage(detailURL("20120105"), detailPage(models.CurrencyUSD, priceTable()))

	return b, []string{detailURL("20120103"), detailURL("20120104"), detailURL("20120105")}
}

func priceConfig() *config.Config {
	cfg := testConfig()
	cfg.Currencies = []models.Currency{models.CurrencyUSD, models.CurrencyEUR}
	return cfg
}

func TestScrapePricesEndToEnd(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	dataset, err := storage.NewCSVDataset(filepath.Join(dir, "prices.csv"))
	require.NoError(t, err)
	defer dataset.Close()
	checkpoint, err := storage.OpenCheckpoint(ctx, filepath.Join(dir, "progress.db"))
	require.NoError(t, err)
	defer checkpoint.Close()

	b, links := priceSite()
	s := newTestScraper(priceConfig(), b)

	report, err := s.ScrapePrices(ctx, links, dataset, checkpoint)
	require.NoError(t, err)

	assert.Equal(t, 3, report.LinksTotal)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.LoadFailures)
	assert.Equal(t, 1, report.EmptyDates)
	assert.Equal(t, 3, report.RecordsWritten)
	assert.Equal(t, 2, report.ByCurrency[models.CurrencyUSD])
	assert.Equal(t, 1, report.ByCurrency[models.CurrencyEUR])

	records, err := storage.ReadDataset(filepath.Join(dir, "prices.csv"))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []models.Currency{models.CurrencyUSD, models.CurrencyUSD, models.CurrencyEUR},
		[]models.Currency{records[0].Currency, records[1].Currency, records[2].Currency})
	assert.Equal(t, "Silver", records[1].Commodity)

	done, err := checkpoint.CompletedCurrencies(ctx, "20120103")
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Currency{models.CurrencyUSD, models.CurrencyEUR}, done)
	done, err = checkpoint.CompletedCurrencies(ctx, "20120105")
	require.NoError(t, err)
	assert.Empty(t, done, "dates without records stay pending")

	// a second run skips the completed date and appends nothing new
	b.Navigations = nil
	report, err = s.ScrapePrices(ctx, links, dataset, checkpoint)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedComplete)
	assert.Equal(t, 0, report.Processed)
	assert.NotContains(t, b.Navigations, detailURL("20120103"))

	records, err = storage.ReadDataset(filepath.Join(dir, "prices.csv"))
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestScrapePricesRescrapesWhenSkipDisabled(t *testing.T) {
	ctx := context.Background()
	checkpoint, err := storage.OpenCheckpoint(ctx, ":memory:")
	require.NoError(t, err)
	defer checkpoint.Close()
	require.NoError(t, checkpoint.MarkCompleted(ctx, "20120103", detailURL("20120103"), models.CurrencyUSD, 2))
	require.NoError(t, checkpoint.MarkCompleted(ctx, "20120103", detailURL("20120103"), models.CurrencyEUR, 1))

	cfg := priceConfig()
	cfg.SkipCompleted = false
	b, links := priceSite()
	sink := &recordingSink{}

	report, err := newTestScraper(cfg, b).ScrapePrices(ctx, links[:1], sink, checkpoint)
	require.NoError(t, err)
	assert.Equal(t, 0, report.SkippedComplete)
	assert.Equal(t, 1, report.Processed)
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 3, "one batch holds every currency of the date")
}

func TestScrapePricesPersistenceFailureContinues(t *testing.T) {
	ctx := context.Background()
	checkpoint, err := storage.OpenCheckpoint(ctx, ":memory:")
	require.NoError(t, err)
	defer checkpoint.Close()

	b, links := priceSite()
	sink := &recordingSink{err: errors.New("disk full")}

	report, err := newTestScraper(priceConfig(), b).ScrapePrices(ctx, links, sink, checkpoint)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PersistFailures)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 0, report.RecordsWritten)
	assert.Len(t, b.Navigations, 5, "every link is still visited")

	done, err := checkpoint.CompletedCurrencies(ctx, "20120103")
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestScrapePricesStuckCurrencyOnlyLosesThatCurrency(t *testing.T) {
	b, links := priceSite()
	b.StuckSelect = true
	sink := &recordingSink{}

	report, err := newTestScraper(priceConfig(), b).ScrapePrices(context.Background(), links[:1], sink, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CurrencyFailures)
	assert.Equal(t, 1, report.Processed)
	require.Len(t, sink.batches, 1)
	for _, r := range sink.batches[0] {
		assert.Equal(t, models.CurrencyUSD, r.Currency)
	}
}

func TestScrapePricesResumesOnlyMissingCurrencies(t *testing.T) {
	ctx := context.Background()
	checkpoint, err := storage.OpenCheckpoint(ctx, ":memory:")
	require.NoError(t, err)
	defer checkpoint.Close()

	b, links := priceSite()
	b.StuckSelect = true
	s := newTestScraper(priceConfig(), b)

	report, err := s.ScrapePrices(ctx, links[:1], &recordingSink{}, checkpoint)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CurrencyFailures)
	assert.Equal(t, 1, report.Processed)

	done, err := checkpoint.CompletedCurrencies(ctx, "20120103")
	require.NoError(t, err)
	assert.Equal(t, []models.Currency{models.CurrencyUSD}, done, "the failed currency is not checkpointed")

	// the site recovers; only EUR is fetched on the rerun
	b.StuckSelect = false
	b.SelectCalls = nil
	sink := &recordingSink{}
	report, err = s.ScrapePrices(ctx, links[:1], sink, checkpoint)
	require.NoError(t, err)
	assert.Equal(t, 0, report.SkippedComplete)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, []string{"EUR"}, b.SelectCalls)
	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0], 1)
	assert.Equal(t, models.CurrencyEUR, sink.batches[0][0].Currency)

	// now complete, a third run skips the date without loading it
	b.Navigations = nil
	report, err = s.ScrapePrices(ctx, links[:1], &recordingSink{}, checkpoint)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedComplete)
	assert.Empty(t, b.Navigations)
}

func TestScrapePricesCancelled(t *testing.T) {
	b, links := priceSite()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestScraper(priceConfig(), b).ScrapePrices(ctx, links, &recordingSink{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Processed)
	assert.Empty(t, b.Navigations)
}
