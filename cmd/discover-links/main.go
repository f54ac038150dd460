// Command discover-links walks the dailymetalprice.com date archive and
// writes every per-date price page link to LINKS_PATH.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"metal-price-scraper/browser"
	"metal-price-scraper/config"
	scrapeerrors "metal-price-scraper/pkg/errors"
	"metal-price-scraper/scraper/metalprice"
	"metal-price-scraper/services"
	"metal-price-scraper/storage"
	"metal-price-scraper/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	logger.Info("=== Date link discovery starting ===")
	logger.Info("Config | years: %d-%d | retries: %d | rate: %dms | output: %s",
		cfg.YearStart, cfg.YearEnd, cfg.MaxRetries, cfg.RateLimitMs, cfg.LinksPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("Link discovery failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	session, err := browser.NewSession(ctx, metalprice.SessionConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer session.Close()

	scraper := metalprice.New(cfg, session, logger.With("job", "discover-links"))
	links, report, err := scraper.DiscoverLinks(ctx)
	if err != nil {
		// a partial list would overwrite a complete one from an earlier run
		return fmt.Errorf("discover links (%d collected, not saved): %w", len(links), err)
	}

	store := storage.NewLinkStore(cfg.LinksPath)
	if err := store.WriteLinks(links); err != nil {
		return scrapeerrors.NewPersistence(store.Path(), "write links", err)
	}
	logger.Info("Total date links collected: %d", len(links))
	logger.Info("Links saved to %s", store.Path())

	services.NewReportService(logger).PrintDiscovery(os.Stdout, report)
	return nil
}
