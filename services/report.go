package services

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"metal-price-scraper/models"
	"metal-price-scraper/utils"
)

// ReportService accumulates run statistics and renders them at the end of a job.
type ReportService struct {
	logger *utils.Logger
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

// Observe counts a persisted batch into the report.
func (s *ReportService) Observe(r *models.RunReport, batch []models.PriceRecord) {
	if r.ByCurrency == nil {
		r.ByCurrency = make(map[models.Currency]int)
	}
	r.RecordsWritten += len(batch)
	for _, rec := range batch {
		r.ByCurrency[rec.Currency]++
		if !rec.Price.Valid {
			r.NullPrices++
		}
	}
}

// Print renders the extraction report as tables.
func (s *ReportService) Print(w io.Writer, r *models.RunReport) {
	overview := newTable(w)
	overview.SetTitle("Price extraction summary")
	overview.AppendHeader(table.Row{"Metric", "Count"})
	overview.AppendRows([]table.Row{
		{"Links in input", r.LinksTotal},
		{"Dates persisted", r.Processed},
		{"Skipped (already completed)", r.SkippedComplete},
		{"Failed to load", r.LoadFailures},
		{"No data extracted", r.EmptyDates},
		{"Persistence failures", r.PersistFailures},
		{"Currency selections failed", r.CurrencyFailures},
	})
	overview.AppendFooter(table.Row{"Records written", r.RecordsWritten})
	overview.Render()

	if len(r.ByCurrency) == 0 {
		return
	}

	currencies := make([]string, 0, len(r.ByCurrency))
	for c := range r.ByCurrency {
		currencies = append(currencies, string(c))
	}
	sort.Strings(currencies)

	byCurrency := newTable(w)
	byCurrency.SetTitle("Records by currency")
	byCurrency.AppendHeader(table.Row{"Currency", "Records"})
	for _, c := range currencies {
		byCurrency.AppendRow(table.Row{c, r.ByCurrency[models.Currency(c)]})
	}
	byCurrency.AppendFooter(table.Row{"Null prices", r.NullPrices})
	byCurrency.Render()
}

// PrintDiscovery renders the link discovery report.
func (s *ReportService) PrintDiscovery(w io.Writer, r *models.DiscoveryReport) {
	t := newTable(w)
	t.SetTitle("Link discovery summary")
	t.AppendHeader(table.Row{"Year", "Links"})

	years := make([]int, 0, len(r.LinksByYear))
	for y := range r.LinksByYear {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		t.AppendRow(table.Row{y, r.LinksByYear[y]})
	}
	for _, y := range r.YearsSkipped {
		t.AppendRow(table.Row{y, "skipped"})
	}
	t.AppendFooter(table.Row{"Total", fmt.Sprintf("%d (%d unique)", r.LinksTotal, r.LinksUnique)})
	t.Render()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}
