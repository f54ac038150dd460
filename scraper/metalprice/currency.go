package metalprice

import (
	"context"
	"fmt"

	"metal-price-scraper/browser"
	"metal-price-scraper/models"
	scrapeerrors "metal-price-scraper/pkg/errors"
	"metal-price-scraper/services"
)

// SelectCurrency makes code the dropdown's current value. It does not touch
// the dropdown when code is already selected.
func (s *Scraper) SelectCurrency(ctx context.Context, code models.Currency) error {
	t := s.cfg.Timeouts
	dropdown := browser.Parse(s.cfg.Selectors.CurrencySelect)
	want := string(code)

	if err := s.waitFor(ctx, t.Dropdown, browser.Present(s.b, dropdown)); err != nil {
		return scrapeerrors.NewElement(dropdown.String(), "currency dropdown not found", err)
	}

	current, err := s.b.SelectedValue(ctx, dropdown)
	if err != nil {
		return scrapeerrors.NewElement(dropdown.String(), "read selected currency", err)
	}
	if current == want {
		s.logger.Debug("[currency] %s already selected", want)
		return nil
	}

	s.logger.Info("[currency] Changing currency from %s to %s", current, want)
	if err := s.b.SetSelectValue(ctx, dropdown, want); err != nil {
		return scrapeerrors.NewElement(dropdown.String(), fmt.Sprintf("select %s", want), err)
	}
	if err := pause(ctx, s.cfg.Pauses.AfterSelect); err != nil {
		return err
	}

	if s.cfg.Selectors.Spinner != "" {
		spinner := browser.Parse(s.cfg.Selectors.Spinner)
		if err := s.waitFor(ctx, t.Spinner, browser.IsHidden(s.b, spinner)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("[currency] spinner still showing after %v, continuing", t.Spinner)
		}
	}

	if err := s.waitFor(ctx, t.SelectConfirm, browser.HasValue(s.b, dropdown, want)); err != nil {
		return scrapeerrors.NewElement(dropdown.String(), fmt.Sprintf("currency change to %s not confirmed", want), err)
	}
	return nil
}

// ExtractTable reads the price table currently shown. Any failure is logged
// and yields no records.
func (s *Scraper) ExtractTable(ctx context.Context, date string, code models.Currency) []models.PriceRecord {
	t := s.cfg.Timeouts
	tbl := browser.Parse(s.cfg.Selectors.PriceTable)

	if err := s.waitFor(ctx, t.TableVisible, browser.IsVisible(s.b, tbl)); err != nil {
		s.logger.Warn("[table] %s/%s: price table not visible: %v", date, code, err)
		return nil
	}

	var html string
	hasRows := func(ctx context.Context) (bool, error) {
		h, err := s.b.OuterHTML(ctx, tbl)
		if err != nil {
			return false, err
		}
		n, err := services.RowCount(h)
		if err != nil {
			return false, err
		}
		html = h
		return n > 1, nil
	}
	if err := s.waitFor(ctx, t.TableRows, hasRows); err != nil {
		s.logger.Warn("[table] %s/%s: price table has no data rows: %v", date, code, err)
		return nil
	}

	records, err := s.cleaner.ParseTable(html, date, code)
	if err != nil {
		s.logger.Warn("[table] %s/%s: %v", date, code, err)
		return nil
	}
	return records
}
