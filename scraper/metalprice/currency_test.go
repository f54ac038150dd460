package metalprice

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metal-price-scraper/browser/browsertest"
	"metal-price-scraper/models"
	scrapeerrors "metal-price-scraper/pkg/errors"
)

func loadedBrowser(t *testing.T, html string) (*browsertest.Browser, *browsertest.Page) {
	t.Helper()
	b := browsertest.New()
	p := b.AddPage(detailURL("20120103"), html)
	require.NoError(t, b.Navigate(context.Background(), detailURL("20120103")))
	b.Navigations = nil
	return b, p
}

func TestSelectCurrencyAlreadySelected(t *testing.T) {
	b, _ := loadedBrowser(t, detailPage(models.CurrencyUSD, priceTable(row("Gold", "$1,650.20", "oz"))))
	s := newTestScraper(testConfig(), b)

	require.NoError(t, s.SelectCurrency(context.Background(), models.CurrencyUSD))
	require.NoError(t, s.SelectCurrency(context.Background(), models.CurrencyUSD))
	assert.Empty(t, b.SelectCalls, "an already selected currency needs no interaction")
}

func TestSelectCurrencyChangesValue(t *testing.T) {
	b, p := loadedBrowser(t, detailPage(models.CurrencyUSD, priceTable(row("Gold", "$1,650.20", "oz"))))
	p.Variants = map[string]string{
		"EUR": detailPage(models.CurrencyEUR, priceTable(row("Gold", "€1,500.00", "oz"))),
	}
	s := newTestScraper(testConfig(), b)

	require.NoError(t, s.SelectCurrency(context.Background(), models.CurrencyEUR))
	assert.Equal(t, []string{"EUR"}, b.SelectCalls)

	records := s.ExtractTable(context.Background(), "20120103", models.CurrencyEUR)
	require.Len(t, records, 1)
	assert.Equal(t, models.CurrencyEUR, records[0].Currency)
	assert.True(t, records[0].Price.Decimal.Equal(decimal.RequireFromString("1500")))
}

func TestSelectCurrencyUnconfirmed(t *testing.T) {
	b, _ := loadedBrowser(t, detailPage(models.CurrencyUSD, priceTable(row("Gold", "$1,650.20", "oz"))))
	b.StuckSelect = true
	s := newTestScraper(testConfig(), b)

	err := s.SelectCurrency(context.Background(), models.CurrencyGBP)
	require.Error(t, err)
	assert.Equal(t, scrapeerrors.KindElement, scrapeerrors.KindOf(err))
	assert.Equal(t, []string{"GBP"}, b.SelectCalls)
}

func TestSelectCurrencyMissingDropdown(t *testing.T) {
	b, _ := loadedBrowser(t, `<html><body>`+priceTable(row("Gold", "1", "oz"))+`</body></html>`)
	s := newTestScraper(testConfig(), b)

	err := s.SelectCurrency(context.Background(), models.CurrencyUSD)
	require.Error(t, err)
	assert.Equal(t, scrapeerrors.KindElement, scrapeerrors.KindOf(err))
}

func TestSelectCurrencyWaitsOutVisibleSpinner(t *testing.T) {
	html := `<html><body><select id="x"><option value="USD" selected>USD</option><option value="GBP">GBP</option></select>` +
		`<div class="spinner"></div>` + priceTable(row("Gold", "1", "oz")) + `</body></html>`
	b, _ := loadedBrowser(t, html)
	s := newTestScraper(testConfig(), b)

	// the spinner wait is best effort; the confirmed value is what counts
	require.NoError(t, s.SelectCurrency(context.Background(), models.CurrencyGBP))
}

func TestExtractTableSkipsMalformedRows(t *testing.T) {
	table := priceTable(
		row("Gold", "$1,650.20", "oz"),
		`<tr><td>Broken</td><td>$1.00</td></tr>`,
		row("  Silver \n  Bullion ", "$31.50", " oz "),
	)
	b, _ := loadedBrowser(t, detailPage(models.CurrencyUSD, table))
	s := newTestScraper(testConfig(), b)

	records := s.ExtractTable(context.Background(), "20120103", models.CurrencyUSD)
	require.Len(t, records, 2)

	assert.Equal(t, "Gold", records[0].Commodity)
	assert.Equal(t, "Silver Bullion", records[1].Commodity)
	assert.Equal(t, "oz", records[1].Unit)
	for _, r := range records {
		assert.Equal(t, "20120103", r.Date)
		assert.Equal(t, models.CurrencyUSD, r.Currency)
	}
	assert.True(t, records[0].Price.Decimal.Equal(decimal.RequireFromString("1650.2")))
	assert.True(t, records[1].Price.Decimal.Equal(decimal.RequireFromString("31.5")))
}

func TestExtractTableNullPrice(t *testing.T) {
	b, _ := loadedBrowser(t, detailPage(models.CurrencyUSD, priceTable(row("Rhodium", "N/A", "oz"))))
	s := newTestScraper(testConfig(), b)

	records := s.ExtractTable(context.Background(), "20120103", models.CurrencyUSD)
	require.Len(t, records, 1)
	assert.False(t, records[0].Price.Valid)
}

func TestExtractTableWithoutDataRows(t *testing.T) {
	b, _ := loadedBrowser(t, detailPage(models.CurrencyUSD, priceTable()))
	s := newTestScraper(testConfig(), b)

	assert.Empty(t, s.ExtractTable(context.Background(), "20120103", models.CurrencyUSD))
}

func TestExtractTableMissing(t *testing.T) {
	b, _ := loadedBrowser(t, detailPage(models.CurrencyUSD, ""))
	s := newTestScraper(testConfig(), b)

	assert.Empty(t, s.ExtractTable(context.Background(), "20120103", models.CurrencyUSD))
}
