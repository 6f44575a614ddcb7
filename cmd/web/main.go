// Command web serves the bond liquidity heatmap API. It recomputes the
// metrics batch on a poll interval and on demand via POST /api/refresh.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bondmap/internal/config"
	"bondmap/internal/infrastructure"
	"bondmap/internal/metrics"
	"bondmap/internal/pipeline"
	"bondmap/internal/store"
	"bondmap/internal/trades"
	transport "bondmap/internal/transport/http"
)

func main() {
	configFile := flag.String("config", "", "path to yaml config file (optional)")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	prom := infrastructure.NewPipelineMetrics(registry)

	tradeStore := trades.NewStore(cfg.Paths.TradesFile, logger)
	engine := metrics.NewEngine(cfg.Pipeline.MaxConcurrency, logger)
	metricStore := store.NewStore(cfg.Paths.MetricsDir, logger)
	pipe := pipeline.New(tradeStore, engine, metricStore, logger, prom)

	handler := transport.NewGridHandler(pipe, logger)
	router := transport.NewRouter(handler, logger, registry, transport.RouterOptions{
		RefreshRPS:   cfg.Server.RefreshRPS,
		RefreshBurst: cfg.Server.RefreshBurst,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initial batch so readers have data as soon as the server is up
	if result, err := pipe.Run(ctx); err != nil {
		logger.Warn("Initial metrics run failed", "error", err)
	} else {
		logger.Info("Initial metrics run complete",
			"run_id", result.RunID,
			"records", result.Records,
			"empty", result.Empty,
		)
	}

	go pollLoop(ctx, pipe, cfg.Pipeline.PollInterval, logger)

	go func() {
		logger.Info("Starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
		os.Exit(1)
	}
}

// pollLoop recomputes the metrics batch on a fixed interval until ctx ends
func pollLoop(ctx context.Context, pipe *pipeline.Pipeline, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := pipe.Run(ctx)
			if err != nil {
				logger.Error("Scheduled metrics run failed", "error", err)
				continue
			}
			logger.Info("Scheduled metrics run complete",
				"run_id", result.RunID,
				"records", result.Records,
				"empty", result.Empty,
			)
		}
	}
}
