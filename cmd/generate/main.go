// Command generate seeds the trade log with a synthetic trading session
// covering every rating and tenor bucket.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"bondmap/internal/config"
	"bondmap/internal/infrastructure"
	"bondmap/internal/synthetic"
	"bondmap/internal/trades"
)

func main() {
	configFile := flag.String("config", "", "path to yaml config file (optional)")
	date := flag.String("date", "", "trading date in YYYY-MM-DD format (defaults to today)")
	seed := flag.Int64("seed", 0, "random seed override (0 uses the configured seed)")
	appendMode := flag.Bool("append", false, "append to an existing trade log instead of replacing it")
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

	day := time.Now().UTC()
	if *date != "" {
		day, err = time.Parse("2006-01-02", *date)
		if err != nil {
			logger.Error("Invalid date", "date", *date, "error", err)
			os.Exit(1)
		}
	}

	genCfg := cfg.Generator
	if *seed != 0 {
		genCfg.Seed = *seed
	}

	if !*appendMode {
		if err := os.Remove(cfg.Paths.TradesFile); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to remove existing trade log", "error", err)
			os.Exit(1)
		}
	}

	events := synthetic.New(genCfg, logger).Generate(day)

	store := trades.NewStore(cfg.Paths.TradesFile, logger)
	appended, err := store.Append(context.Background(), events)
	if err != nil {
		logger.Error("Failed to append trades", "error", err)
		os.Exit(1)
	}

	logger.Info("Trade log seeded",
		"path", cfg.Paths.TradesFile,
		"events", appended,
		"date", day.Format("2006-01-02"),
	)
}
