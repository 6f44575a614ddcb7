// Package pipeline orchestrates one atomic batch run: load raw trades,
// derive metrics, swap the derived store. Grid aggregation is recomputed on
// read; cells are a view, never persisted.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bondmap/internal/grid"
	"bondmap/internal/infrastructure"
	"bondmap/internal/metrics"
	"bondmap/internal/store"
	"bondmap/internal/trades"
)

// RunResult summarizes one completed batch run
type RunResult struct {
	RunID       string        `json:"run_id"`
	ComputedAt  time.Time     `json:"computed_at"`
	TradeCount  int           `json:"trade_count"`
	Instruments int           `json:"instruments"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	Records     int           `json:"records"`
	Duration    time.Duration `json:"duration"`
	// Empty marks a run that produced no metrics. The previous batch is
	// left in place so consumers keep seeing the last known grid.
	Empty bool `json:"empty"`
}

// Pipeline runs the ingest -> metrics -> store batch. One run at a time; a
// failed run leaves the previous batch's output as the visible state.
type Pipeline struct {
	tradeStore  *trades.Store
	engine      *metrics.Engine
	metricStore *store.Store
	aggregator  *grid.Aggregator
	logger      *slog.Logger
	prom        *infrastructure.PipelineMetrics

	runMu sync.Mutex
}

// New creates a pipeline. prom may be nil to disable instrumentation.
func New(tradeStore *trades.Store, engine *metrics.Engine, metricStore *store.Store, logger *slog.Logger, prom *infrastructure.PipelineMetrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		tradeStore:  tradeStore,
		engine:      engine,
		metricStore: metricStore,
		aggregator:  grid.NewAggregator(logger),
		logger:      logger.With("component", "pipeline"),
		prom:        prom,
	}
}

// Run executes one batch to completion. Per-instrument failures are local;
// only source unavailability surfaces as an error, leaving prior output
// intact.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	start := time.Now()
	runID := uuid.New().String()
	logger := p.logger.With("run_id", runID)

	logger.InfoContext(ctx, "starting batch run")

	events, err := p.tradeStore.LoadAll(ctx)
	if err != nil {
		p.observeRun("failure", start, metrics.Stats{})
		return nil, fmt.Errorf("load trades: %w", err)
	}

	records, stats, err := p.engine.Compute(ctx, events)
	if err != nil {
		p.observeRun("failure", start, metrics.Stats{})
		return nil, fmt.Errorf("compute metrics: %w", err)
	}

	result := &RunResult{
		RunID:       runID,
		ComputedAt:  time.Now().UTC(),
		TradeCount:  len(events),
		Instruments: stats.Instruments,
		Skipped:     stats.Skipped,
		Failed:      stats.Failed,
		Records:     stats.Records,
	}

	if len(records) == 0 {
		// No metrics to publish; keep the previous batch visible
		result.Empty = true
		result.Duration = time.Since(start)
		p.observeRun("empty", start, stats)
		logger.WarnContext(ctx, "batch produced no metrics",
			"trades", len(events),
			"instruments", stats.Instruments,
			"skipped", stats.Skipped,
		)
		return result, nil
	}

	batch := &store.Batch{
		Manifest: store.Manifest{
			RunID:       runID,
			ComputedAt:  result.ComputedAt,
			TradeCount:  result.TradeCount,
			Instruments: stats.Instruments - stats.Skipped - stats.Failed,
			Records:     stats.Records,
		},
		Records: records,
	}
	if err := p.metricStore.Save(ctx, batch); err != nil {
		p.observeRun("failure", start, stats)
		return nil, fmt.Errorf("save metrics batch: %w", err)
	}

	result.Duration = time.Since(start)
	p.observeRun("success", start, stats)
	if p.prom != nil {
		p.prom.MetricRecords.Set(float64(stats.Records))
		p.prom.LastRunTimestamp.Set(float64(result.ComputedAt.Unix()))
	}

	logger.InfoContext(ctx, "batch run completed",
		"trades", result.TradeCount,
		"instruments", result.Instruments,
		"records", result.Records,
		"duration", result.Duration,
	)

	return result, nil
}

// Snapshot aggregates the current batch into a grid snapshot. Returns
// store.ErrNoBatch when no batch has been computed yet.
func (p *Pipeline) Snapshot(ctx context.Context) (*grid.Snapshot, error) {
	batch, err := p.metricStore.Load(ctx)
	if err != nil {
		return nil, err
	}

	events, err := p.tradeStore.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load instrument attributes: %w", err)
	}

	snapshot, err := p.aggregator.Aggregate(ctx, batch.Records, trades.Attributes(events))
	if err != nil {
		return nil, fmt.Errorf("aggregate grid: %w", err)
	}
	snapshot.ComputedAt = batch.Manifest.ComputedAt
	return snapshot, nil
}

func (p *Pipeline) observeRun(status string, start time.Time, stats metrics.Stats) {
	if p.prom == nil {
		return
	}
	p.prom.RunsTotal.WithLabelValues(status).Inc()
	p.prom.RunDuration.Observe(time.Since(start).Seconds())
	p.prom.InstrumentsSkipped.Add(float64(stats.Skipped))
	p.prom.InstrumentsFailed.Add(float64(stats.Failed))
}
