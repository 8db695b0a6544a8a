package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vmgd-scraper/internal/config"
	"vmgd-scraper/internal/handlers"
	"vmgd-scraper/internal/repository"
	"vmgd-scraper/internal/scraper"
	"vmgd-scraper/internal/services"
	"vmgd-scraper/pkg/database"
	"vmgd-scraper/pkg/logging"
	"vmgd-scraper/pkg/metrics"
)

// shutdownGrace bounds how long in-flight sessions get to finish or roll
// back after a signal.
const shutdownGrace = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("vmgd-api", config.Version, logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "[SERVER_ERROR] Server stopped with error", logging.Fields{}, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger) error {
	logger.Info(ctx, "[STARTUP] Starting VMGD scraper API server", logging.Fields{
		"version":  config.Version,
		"address":  fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"db_host":  cfg.Database.Host,
		"db_name":  cfg.Database.Database,
		"base_url": cfg.Scraper.BaseURL,
	})

	metricsCollector := metrics.NewCollector("vmgd_scraper")

	db, err := database.NewPostgresDB(cfg.Database.Postgres(), logger, metricsCollector)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	repo := repository.NewScraperRepository(db, logger, metricsCollector)
	fetcher := scraper.NewFetcher(cfg.Scraper.Fetcher(), logger, metricsCollector)
	errorService := services.NewErrorService(repo, cfg.Scraper.ErrorsDir, nil, logger, metricsCollector)
	sessionService := services.NewSessionService(repo, fetcher, errorService, services.SessionConfig{
		BaseURL:              cfg.Scraper.BaseURL,
		MaxConcurrentFetches: cfg.Scraper.MaxConcurrentFetches,
		MinSessionInterval:   cfg.Scraper.MinSessionInterval,
	}, nil, logger, metricsCollector)

	router := mux.NewRouter()
	handlers.NewSessionHandler(sessionService, logger, metricsCollector).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
	return nil
}
