// Command report recomputes the metrics batch from the trade log and writes
// the classified heatmap out as CSV and XLSX reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bondmap/internal/config"
	"bondmap/internal/exporter"
	"bondmap/internal/infrastructure"
	"bondmap/internal/metrics"
	"bondmap/internal/pipeline"
	"bondmap/internal/store"
	"bondmap/internal/trades"
)

func main() {
	configFile := flag.String("config", "", "path to yaml config file (optional)")
	outDir := flag.String("out", "", "output directory for reports (defaults to the configured reports dir)")
	skipRun := flag.Bool("skip-run", false, "export the latest published batch without recomputing")
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

	if *outDir == "" {
		*outDir = cfg.Paths.ReportsDir
	}

	prom := infrastructure.NewPipelineMetrics(prometheus.NewRegistry())
	tradeStore := trades.NewStore(cfg.Paths.TradesFile, logger)
	engine := metrics.NewEngine(cfg.Pipeline.MaxConcurrency, logger)
	metricStore := store.NewStore(cfg.Paths.MetricsDir, logger)
	pipe := pipeline.New(tradeStore, engine, metricStore, logger, prom)

	ctx := context.Background()

	if !*skipRun {
		result, err := pipe.Run(ctx)
		if err != nil {
			logger.Error("Metrics run failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Metrics run complete",
			"run_id", result.RunID,
			"instruments", result.Instruments,
			"skipped", result.Skipped,
			"records", result.Records,
			"duration", result.Duration.String(),
		)
	}

	snap, err := pipe.Snapshot(ctx)
	if err != nil {
		logger.Error("Failed to build grid snapshot", "error", err,
			"hint", "run without -skip-run or ingest trades first")
		os.Exit(1)
	}

	exp := exporter.New(*outDir, logger)
	stamp := time.Now().Format("2006-01-02")

	csvPath, err := exp.WriteGridCSV(snap, fmt.Sprintf("heatmap_%s.csv", stamp))
	if err != nil {
		logger.Error("Failed to write CSV report", "error", err)
		os.Exit(1)
	}

	xlsxPath, err := exp.WriteHeatmapXLSX(snap, fmt.Sprintf("heatmap_%s.xlsx", stamp))
	if err != nil {
		logger.Error("Failed to write XLSX report", "error", err)
		os.Exit(1)
	}

	logger.Info("Reports written",
		"csv", csvPath,
		"xlsx", xlsxPath,
		"cells", len(snap.Cells),
		"active_instruments", snap.Summary.ActiveInstruments,
	)
}
