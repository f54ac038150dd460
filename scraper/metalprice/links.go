package metalprice

import (
	"context"
	"fmt"
	"strings"

	"metal-price-scraper/browser"
	"metal-price-scraper/config"
	"metal-price-scraper/models"
	scrapeerrors "metal-price-scraper/pkg/errors"
	"metal-price-scraper/utils"
)

// DiscoverLinks loads the date archive and collects the detail-page links of
// every configured year in document order. A year that cannot be located or
// expanded is logged and skipped. Failing to load the archive itself is an
// error, as is cancellation; the links gathered so far are still returned.
func (s *Scraper) DiscoverLinks(ctx context.Context) ([]string, *models.DiscoveryReport, error) {
	report := &models.DiscoveryReport{LinksByYear: make(map[int]int)}
	archiveURL := s.cfg.ArchiveURL()

	ready := browser.Present(s.b, browser.Parse(s.cfg.Selectors.ArchiveReady))
	if err := s.nav.Load(ctx, archiveURL, s.loadPolicy(s.cfg.Timeouts.ArchiveReady), ready); err != nil {
		return nil, report, fmt.Errorf("load archive page: %w", err)
	}
	s.logger.Info("[discovery] Successfully loaded archive page %s", archiveURL)

	var links []string
	unique := utils.NewURLSet()
	for _, year := range s.cfg.Years() {
		if err := ctx.Err(); err != nil {
			return links, report, err
		}
		report.YearsScanned++
		s.logger.Info("[discovery] Processing year: %d", year)

		yearLinks, err := s.discoverYear(ctx, year)
		if err != nil {
			if ctx.Err() != nil {
				return links, report, ctx.Err()
			}
			report.YearsSkipped = append(report.YearsSkipped, year)
			s.logger.Warn("[discovery] Could not process year %d, skipping: %v", year, err)
			continue
		}

		for _, l := range yearLinks {
			unique.Add(l)
		}
		links = append(links, yearLinks...)
		report.LinksByYear[year] = len(yearLinks)
		s.logger.Info("[discovery] Found %d date links for %d", len(yearLinks), year)
	}

	report.LinksTotal = len(links)
	report.LinksUnique = unique.Size()
	s.logger.Info("[discovery] Total date links collected: %d (%d unique)", report.LinksTotal, report.LinksUnique)
	return links, report, nil
}

func (s *Scraper) discoverYear(ctx context.Context, year int) ([]string, error) {
	sel := s.cfg.Selectors
	t := s.cfg.Timeouts
	header := browser.Parse(config.ForYear(sel.YearHeader, year))
	panel := browser.Parse(config.ForYear(sel.YearPanel, year))

	if err := s.waitFor(ctx, t.YearHeader, browser.Present(s.b, header)); err != nil {
		return nil, scrapeerrors.NewElement(header.String(), "year header not found", err)
	}
	if err := s.b.ScrollIntoView(ctx, header); err != nil {
		return nil, scrapeerrors.NewElement(header.String(), "scroll into view", err)
	}
	if err := pause(ctx, s.cfg.Pauses.AfterScroll); err != nil {
		return nil, err
	}
	if err := s.waitFor(ctx, t.YearVisible, browser.IsVisible(s.b, header)); err != nil {
		return nil, scrapeerrors.NewElement(header.String(), "year header not visible", err)
	}

	open, err := s.b.Visible(ctx, panel)
	if err != nil {
		return nil, scrapeerrors.NewElement(panel.String(), "year panel not found", err)
	}
	if !open {
		s.logger.Info("[discovery] Expanding year %d section", year)
		if err := s.b.Click(ctx, header); err != nil {
			return nil, scrapeerrors.NewElement(header.String(), "expand year section", err)
		}
		if err := pause(ctx, s.cfg.Pauses.AfterExpand); err != nil {
			return nil, err
		}
		if err := s.waitFor(ctx, t.PanelVisible, browser.IsVisible(s.b, panel)); err != nil {
			return nil, scrapeerrors.NewElement(panel.String(), "year panel did not open", err)
		}
	}

	hrefs, err := s.b.Links(ctx, panel)
	if err != nil {
		return nil, scrapeerrors.NewElement(panel.String(), "read links", err)
	}

	var links []string
	for _, href := range hrefs {
		if href != "" && strings.Contains(href, sel.DetailLinkMarker) {
			links = append(links, href)
		}
	}
	return links, nil
}
