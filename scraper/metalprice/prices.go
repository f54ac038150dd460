package metalprice

import (
	"context"
	"time"

	"metal-price-scraper/browser"
	"metal-price-scraper/models"
	scrapeerrors "metal-price-scraper/pkg/errors"
	"metal-price-scraper/storage"
	"metal-price-scraper/utils"
)

// ScrapePrices visits every link in order and appends one batch per date to
// sink. With SkipCompleted set, currencies the tracker already holds for a date
// are not scraped again and a date with nothing left is skipped; tracker may
// be nil. Only currencies that yielded records are checkpointed, so a rerun
// retries the rest. Per-URL failures are counted in the report and never stop
// the run. Only cancellation returns an error.
func (s *Scraper) ScrapePrices(ctx context.Context, links []string, sink storage.DatasetWriter, tracker storage.ProgressTracker) (*models.RunReport, error) {
	start := time.Now()
	report := models.NewRunReport(len(links))

	ready := make([]browser.Selector, 0, len(s.cfg.Selectors.DetailReady))
	for _, q := range s.cfg.Selectors.DetailReady {
		ready = append(ready, browser.Parse(q))
	}
	policy := s.loadPolicy(s.cfg.Timeouts.DetailReady)

	for i, link := range links {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		date := models.DateLink(link).Date()
		s.logger.Info("[prices] Processing URL %d/%d: %s", i+1, len(links), link)

		pending := s.pendingCurrencies(ctx, tracker, date)
		if len(pending) == 0 {
			report.SkippedComplete++
			s.logger.Info("[prices] %s already completed, skipping", date)
			continue
		}

		if err := s.nav.Load(ctx, link, policy, browser.AnyPresent(s.b, ready...)); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.LoadFailures++
			s.logger.Error("[prices] Skipping %s: %v", link, err)
			continue
		}

		batch, counts := s.scrapeDate(ctx, date, pending, report)
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if len(batch) == 0 {
			report.EmptyDates++
			s.logger.Warn("[prices] No data extracted for %s", date)
			continue
		}

		if err := sink.Append(ctx, batch); err != nil {
			report.PersistFailures++
			s.logger.Error("%v", scrapeerrors.NewPersistence(date, "append batch", err))
			continue
		}
		report.Processed++
		s.reports.Observe(report, batch)
		s.logger.Info("[prices] Appended %d records for %s", len(batch), date)

		if tracker == nil || date == "" {
			continue
		}
		for _, code := range pending {
			if counts[code] == 0 {
				continue
			}
			if err := tracker.MarkCompleted(ctx, date, link, code, counts[code]); err != nil {
				s.logger.Warn("[prices] Could not checkpoint %s/%s: %v", date, code, err)
			}
		}
	}

	s.logger.Info("[prices] Processed %d/%d dates in %s", report.Processed, report.LinksTotal, utils.Since(start))
	return report, nil
}

// pendingCurrencies returns the configured currencies still missing for date,
// in configured order.
func (s *Scraper) pendingCurrencies(ctx context.Context, tracker storage.ProgressTracker, date string) []models.Currency {
	if tracker == nil || !s.cfg.SkipCompleted || date == "" {
		return s.cfg.Currencies
	}
	done, err := tracker.CompletedCurrencies(ctx, date)
	if err != nil {
		s.logger.Warn("[prices] Checkpoint lookup for %s failed: %v", date, err)
		return s.cfg.Currencies
	}
	if len(done) == 0 {
		return s.cfg.Currencies
	}

	skip := make(map[models.Currency]bool, len(done))
	for _, code := range done {
		skip[code] = true
	}
	var pending []models.Currency
	for _, code := range s.cfg.Currencies {
		if !skip[code] {
			pending = append(pending, code)
		}
	}
	if len(pending) > 0 {
		s.logger.Info("[prices] %s resuming with %d missing currencies", date, len(pending))
	}
	return pending
}

// scrapeDate cycles the dropdown through currencies on the loaded page and
// concatenates the extracted tables. counts holds the records per currency.
func (s *Scraper) scrapeDate(ctx context.Context, date string, currencies []models.Currency, report *models.RunReport) ([]models.PriceRecord, map[models.Currency]int) {
	var batch []models.PriceRecord
	counts := make(map[models.Currency]int, len(currencies))
	for _, code := range currencies {
		if ctx.Err() != nil {
			return nil, nil
		}
		s.logger.Info("[prices] Processing currency: %s", code)

		if err := s.SelectCurrency(ctx, code); err != nil {
			report.CurrencyFailures++
			s.logger.Warn("[prices] Failed to select %s for %s, skipping: %v", code, date, err)
			continue
		}
		if err := pause(ctx, s.cfg.Pauses.BeforeTable); err != nil {
			return nil, nil
		}

		records := s.ExtractTable(ctx, date, code)
		if len(records) == 0 {
			s.logger.Warn("[prices] No data found for %s", code)
			continue
		}
		s.logger.Info("[prices] Extracted %d records for %s", len(records), code)
		counts[code] = len(records)
		batch = append(batch, records...)
	}
	return batch, counts
}
