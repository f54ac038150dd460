package services

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"metal-price-scraper/models"
)

func sampleBatch() []models.PriceRecord {
	price := decimal.NewNullDecimal(decimal.RequireFromString("1650.20"))
	return []models.PriceRecord{
		{Date: "20120515", Currency: models.CurrencyUSD, Commodity: "Gold", Price: price, Unit: "oz"},
		{Date: "20120515", Currency: models.CurrencyUSD, Commodity: "Lead", Unit: "lb"},
		{Date: "20120515", Currency: models.CurrencyEUR, Commodity: "Gold", Price: price, Unit: "oz"},
	}
}

func TestReportObserve(t *testing.T) {
	svc := NewReportService(newTestLogger())
	r := models.NewRunReport(10)

	svc.Observe(r, sampleBatch())
	svc.Observe(r, sampleBatch()[:1])

	assert.Equal(t, 4, r.RecordsWritten)
	assert.Equal(t, 1, r.NullPrices)
	assert.Equal(t, 3, r.ByCurrency[models.CurrencyUSD])
	assert.Equal(t, 1, r.ByCurrency[models.CurrencyEUR])
}

func TestReportObserveZeroValueReport(t *testing.T) {
	svc := NewReportService(newTestLogger())
	r := &models.RunReport{}

	svc.Observe(r, sampleBatch())
	assert.Equal(t, 3, r.RecordsWritten)
}

func TestReportPrint(t *testing.T) {
	svc := NewReportService(newTestLogger())
	r := models.NewRunReport(3)
	r.Processed = 2
	r.LoadFailures = 1
	svc.Observe(r, sampleBatch())

	var buf bytes.Buffer
	svc.Print(&buf, r)
	out := strings.ToLower(buf.String())

	assert.Contains(t, out, "price extraction summary")
	assert.Contains(t, out, "dates persisted")
	assert.Contains(t, out, "records by currency")
	assert.Contains(t, out, "usd")
	assert.Contains(t, out, "eur")
}

func TestReportPrintWithoutRecords(t *testing.T) {
	svc := NewReportService(newTestLogger())

	var buf bytes.Buffer
	svc.Print(&buf, models.NewRunReport(0))

	out := strings.ToLower(buf.String())
	assert.Contains(t, out, "price extraction summary")
	assert.NotContains(t, out, "records by currency")
}

func TestPrintDiscovery(t *testing.T) {
	svc := NewReportService(newTestLogger())
	r := &models.DiscoveryReport{
		YearsScanned: 3,
		YearsSkipped: []int{2011, 2013},
		LinksByYear:  map[int]int{2012: 2},
		LinksTotal:   2,
		LinksUnique:  2,
	}

	var buf bytes.Buffer
	svc.PrintDiscovery(&buf, r)
	out := strings.ToLower(buf.String())

	assert.Contains(t, out, "2012")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "2 (2 unique)")
}
