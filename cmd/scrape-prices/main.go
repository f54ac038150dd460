// Command scrape-prices visits every link written by discover-links, reads the
// price table under each configured currency and appends the rows to the
// dataset.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
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

	logger.Info("=== Metal price extraction starting ===")
	logger.Info("Config | currencies: %v | retries: %d | rate: %dms | backend: %s | skip completed: %t",
		cfg.Currencies, cfg.MaxRetries, cfg.RateLimitMs, cfg.DatasetBackend, cfg.SkipCompleted)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("Price extraction failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	links, err := storage.NewLinkStore(cfg.LinksPath).ReadLinks()
	if errors.Is(err, fs.ErrNotExist) {
		logger.Error("Link file %s not found. Run discover-links first.", cfg.LinksPath)
		return scrapeerrors.NewPersistence(cfg.LinksPath, "read links", err)
	}
	if err != nil {
		return scrapeerrors.NewPersistence(cfg.LinksPath, "read links", err)
	}
	logger.Info("Loaded %d date links from %s", len(links), cfg.LinksPath)

	dataset, err := openDataset(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer dataset.Close()

	checkpoint, err := storage.OpenCheckpoint(ctx, cfg.CheckpointPath)
	if err != nil {
		return scrapeerrors.NewPersistence(cfg.CheckpointPath, "open checkpoint", err)
	}
	defer checkpoint.Close()
	if n, err := checkpoint.Count(ctx); err != nil {
		logger.Warn("Could not read checkpoint %s: %v", cfg.CheckpointPath, err)
	} else {
		logger.Info("Checkpoint %s holds %d completed date/currency pairs", cfg.CheckpointPath, n)
	}

	session, err := browser.NewSession(ctx, metalprice.SessionConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer session.Close()

	scraper := metalprice.New(cfg, session, logger.With("job", "scrape-prices"))
	report, err := scraper.ScrapePrices(ctx, links, dataset, checkpoint)

	services.NewReportService(logger).Print(os.Stdout, report)
	if err != nil {
		return fmt.Errorf("interrupted after %d dates: %w", report.Processed, err)
	}
	logger.Info("Scraping completed. Data saved to %s", datasetLocation(cfg))
	return nil
}

func openDataset(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.DatasetWriter, error) {
	switch cfg.DatasetBackend {
	case config.BackendPostgres:
		pg, err := storage.NewPostgresDataset(ctx, cfg.DSN(), logger)
		if err != nil {
			logger.Error("Make sure PostgreSQL is reachable at %s:%s", cfg.PostgresHost, cfg.PostgresPort)
			return nil, scrapeerrors.NewPersistence("postgres", "connect", err)
		}
		return pg, nil
	default:
		csvDataset, err := storage.NewCSVDataset(cfg.DatasetPath)
		if err != nil {
			return nil, scrapeerrors.NewPersistence(cfg.DatasetPath, "open dataset", err)
		}
		return csvDataset, nil
	}
}

func datasetLocation(cfg *config.Config) string {
	if cfg.DatasetBackend == config.BackendPostgres {
		return "PostgreSQL (table: price_records)"
	}
	return cfg.DatasetPath
}
