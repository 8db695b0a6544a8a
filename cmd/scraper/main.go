package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vmgd-scraper/internal/config"
	"vmgd-scraper/internal/models"
	"vmgd-scraper/internal/repository"
	"vmgd-scraper/internal/scraper"
	"vmgd-scraper/internal/services"
	"vmgd-scraper/pkg/database"
	"vmgd-scraper/pkg/logging"
	"vmgd-scraper/pkg/metrics"
)

func main() {
	// Parse command-line flags
	kindsFlag := flag.String("kind", "", "Comma-separated session kinds to run (default: SCRAPER_SESSIONS, or all)")
	debug := flag.Bool("debug", false, "Enable debug logging and the local page cache")
	dryRun := flag.Bool("dry-run", false, "Keep results in memory instead of PostgreSQL")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Scraper.Debug = true
		cfg.Scraper.UseCache = true
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	kinds, err := parseKinds(*kindsFlag, cfg.Scraper.Sessions)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.NewStructuredLogger("vmgd-scraper", config.Version, logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[SCRAPER_START] Starting scraping run", logging.Fields{
		"version":  config.Version,
		"base_url": cfg.Scraper.BaseURL,
		"kinds":    kinds,
		"dry_run":  *dryRun,
		"cache":    cfg.Scraper.UseCache,
	})

	metricsCollector := metrics.NewCollector("vmgd_scraper")

	var repo repository.ScraperRepository
	if *dryRun {
		repo = repository.NewMemoryRepository(nil)
	} else {
		db, err := database.NewPostgresDB(cfg.Database.Postgres(), logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[SCRAPER_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()

		repo = repository.NewScraperRepository(db, logger, metricsCollector)
	}

	fetcher := scraper.NewFetcher(cfg.Scraper.Fetcher(), logger, metricsCollector)

	errorService := services.NewErrorService(repo, cfg.Scraper.ErrorsDir, nil, logger, metricsCollector)
	sessionService := services.NewSessionService(repo, fetcher, errorService, services.SessionConfig{
		BaseURL:              cfg.Scraper.BaseURL,
		MaxConcurrentFetches: cfg.Scraper.MaxConcurrentFetches,
		MinSessionInterval:   cfg.Scraper.MinSessionInterval,
	}, nil, logger, metricsCollector)

	results, runErr := sessionService.RunAll(ctx, kinds)

	// Print results
	failed := 0
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("SCRAPING COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	for _, r := range results {
		line := fmt.Sprintf("%-24s %-10s pages=%d records=%d duration=%v",
			r.Kind, r.Outcome, r.Pages, r.Records, r.Duration.Round(time.Millisecond))
		if r.Failed() {
			failed++
			line += fmt.Sprintf(" code=%s during=%s", r.Code, r.FailedDuring)
		}
		fmt.Println(line)
		if r.Reason != "" {
			fmt.Printf("  %s\n", r.Reason)
		}
	}
	if runErr != nil {
		fmt.Printf("\nErrors:\n  %s\n", strings.ReplaceAll(runErr.Error(), "\n", "\n  "))
	}

	logger.Info(ctx, "[SCRAPER_COMPLETE] Scraping run finished", logging.Fields{
		"sessions": len(results),
		"failed":   failed,
	})

	if failed > 0 || runErr != nil {
		os.Exit(1)
	}
}

func parseKinds(flagValue string, configured []string) ([]models.SessionKind, error) {
	names := configured
	if flagValue != "" {
		names = strings.Split(flagValue, ",")
	}

	var kinds []models.SessionKind
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		kind, ok := models.ParseSessionKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown session kind %q", name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
