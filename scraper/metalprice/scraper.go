// Package metalprice drives a browser through dailymetalprice.com: it
// discovers the per-date price pages from the archive and extracts the price
// table of each page under every configured currency.
package metalprice

import (
	"context"
	"time"

	"metal-price-scraper/browser"
	"metal-price-scraper/config"
	"metal-price-scraper/services"
	"metal-price-scraper/utils"
)

// Scraper holds the browser and the site configuration shared by both jobs.
// It is strictly sequential: one page, one interaction at a time.
type Scraper struct {
	cfg     *config.Config
	b       browser.Browser
	nav     *browser.Navigator
	cleaner *services.Cleaner
	reports *services.ReportService
	logger  *utils.Logger
}

// New creates a ready-to-use Scraper over b.
func New(cfg *config.Config, b browser.Browser, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:     cfg,
		b:       b,
		nav:     browser.NewNavigator(b, utils.NewThrottle(cfg.RateLimitMs), logger),
		cleaner: services.NewCleaner(logger),
		reports: services.NewReportService(logger),
		logger:  logger,
	}
}

func (s *Scraper) loadPolicy(readyTimeout time.Duration) browser.LoadPolicy {
	return browser.LoadPolicy{
		MaxAttempts:  s.cfg.MaxRetries,
		ReadyTimeout: readyTimeout,
		Poll:         s.cfg.Timeouts.Poll,
		AdMarkers:    s.cfg.Selectors.AdMarkers,
	}
}

func (s *Scraper) waitFor(ctx context.Context, timeout time.Duration, pred browser.Predicate) error {
	return browser.WaitUntil(ctx, timeout, s.cfg.Timeouts.Poll, pred)
}

// pause sleeps for d unless ctx ends first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SessionConfig derives the browser settings both jobs start Chrome with.
func SessionConfig(cfg *config.Config) browser.SessionConfig {
	return browser.SessionConfig{
		Headless:        cfg.Headless,
		ChromeBin:       cfg.ChromeBin,
		UserAgent:       cfg.UserAgent,
		PageLoadTimeout: cfg.PageLoadTimeout,
		ScriptTimeout:   cfg.ScriptTimeout,
	}
}
