package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bondmap/internal/trades"
)

// Engine transforms ordered trade sequences into smoothed depth/liquidity
// time series. Instruments are computed as independent units of work; a
// failure in one instrument never aborts the batch.
type Engine struct {
	logger         *slog.Logger
	maxConcurrency int
}

// NewEngine creates a metrics engine. maxConcurrency bounds the instrument
// fan-out; values below 1 fall back to sequential processing.
func NewEngine(maxConcurrency int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Engine{
		logger:         logger.With("component", "metrics_engine"),
		maxConcurrency: maxConcurrency,
	}
}

// Compute derives one MetricRecord per surviving trade event. Instruments
// with fewer than MinTradesPerInstrument trades are skipped and logged.
// Empty input yields empty output, not an error.
func (e *Engine) Compute(ctx context.Context, events []trades.TradeEvent) ([]MetricRecord, Stats, error) {
	start := time.Now()

	grouped := groupByInstrument(events)

	var stats Stats
	stats.Instruments = len(grouped)

	e.logger.InfoContext(ctx, "starting metrics computation",
		"trades", len(events),
		"instruments", len(grouped),
	)

	type result struct {
		instrument string
		records    []MetricRecord
	}

	var (
		mu      sync.Mutex
		results []result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	for instrument, instrumentTrades := range grouped {
		if len(instrumentTrades) < MinTradesPerInstrument {
			stats.Skipped++
			e.logger.WarnContext(ctx, "skipping instrument with insufficient trades",
				"instrument", instrument,
				"trades", len(instrumentTrades),
				"required", MinTradesPerInstrument,
			)
			continue
		}

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			records, err := e.computeInstrument(instrument, instrumentTrades)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				e.logger.WarnContext(ctx, "metric computation failed for instrument",
					"instrument", instrument,
					"error", err,
				)
				return nil // isolate the failure, keep the batch going
			}
			results = append(results, result{instrument: instrument, records: records})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, stats, fmt.Errorf("metrics computation cancelled: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].instrument < results[j].instrument
	})

	var all []MetricRecord
	for _, r := range results {
		all = append(all, r.records...)
	}
	stats.Records = len(all)

	e.logger.InfoContext(ctx, "metrics computation completed",
		"duration", time.Since(start),
		"records", stats.Records,
		"instruments", stats.Instruments,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)

	return all, stats, nil
}

// computeInstrument runs the full rolling pipeline for one instrument.
// Panics are converted into per-instrument errors.
func (e *Engine) computeInstrument(instrument string, instrumentTrades []trades.TradeEvent) (records []MetricRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic computing %s: %v", instrument, r)
		}
	}()

	evs := make([]trades.TradeEvent, len(instrumentTrades))
	copy(evs, instrumentTrades)
	sort.Slice(evs, func(i, j int) bool {
		return evs[i].Timestamp.Before(evs[j].Timestamp)
	})

	n := len(evs)

	// Per-event deltas. The first print has no predecessor, so both series
	// start undefined and the windowing below excludes that position.
	timeSince := make([]float64, n)
	spread := make([]float64, n)
	timeSince[0] = math.NaN()
	spread[0] = math.NaN()
	for i := 1; i < n; i++ {
		timeSince[i] = evs[i].Timestamp.Sub(evs[i-1].Timestamp).Minutes()
		spread[i] = math.Abs(evs[i].Price-evs[i-1].Price) * 10000
	}

	quantities := make([]float64, n)
	for i, ev := range evs {
		quantities[i] = ev.Quantity
	}

	// Rolling smoothing and raw depth
	rawDepth := make([]float64, n)
	for i := 0; i < n; i++ {
		rollingVolume := rollingSum(quantities, i, depthWindow, depthMinObs)
		rollingSpread := rollingMean(spread, i, depthWindow, depthMinObs)
		rollingTime := rollingMean(timeSince, i, depthWindow, depthMinObs)

		if math.IsNaN(rollingVolume) || math.IsNaN(rollingSpread) || math.IsNaN(rollingTime) {
			rawDepth[i] = math.NaN()
			continue
		}
		rawDepth[i] = rollingVolume / (rollingTime + timeFloorMinutes) / (rollingSpread + spreadFloorBPS)
	}

	// Normalize within the instrument's own series. A non-positive maximum
	// (all-zero volume) passes raw values through unscaled.
	maxDepth := math.NaN()
	for _, d := range rawDepth {
		if math.IsNaN(d) {
			continue
		}
		if math.IsNaN(maxDepth) || d > maxDepth {
			maxDepth = d
		}
	}

	depth := make([]float64, n)
	for i, d := range rawDepth {
		if !math.IsNaN(d) && maxDepth > 0 {
			depth[i] = d / maxDepth * 100
		} else {
			depth[i] = d
		}
	}

	// Auxiliary series, independent of the depth windowing
	for i := 0; i < n; i++ {
		vwap := rollingVWAP(evs, i, vwapWindow)
		volume := rollingSum(quantities, i, volumeWindowSize, 1)

		// Any undefined field drops the record
		fields := []float64{depth[i], spread[i], timeSince[i], vwap, volume}
		defined := true
		for _, f := range fields {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				defined = false
				break
			}
		}
		if !defined {
			continue
		}

		records = append(records, MetricRecord{
			InstrumentID:  instrument,
			Timestamp:     evs[i].Timestamp,
			DepthScore:    depth[i],
			SpreadBPS:     spread[i],
			TimeSinceLast: timeSince[i],
			VWAP:          vwap,
			VolumeWindow:  volume,
			Price:         evs[i].Price,
			Quantity:      evs[i].Quantity,
		})
	}

	return records, nil
}

// rollingSum sums the trailing window ending at i, requiring minObs defined
// observations; returns NaN otherwise.
func rollingSum(values []float64, i, window, minObs int) float64 {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	count := 0
	for j := start; j <= i; j++ {
		if math.IsNaN(values[j]) {
			continue
		}
		sum += values[j]
		count++
	}
	if count < minObs {
		return math.NaN()
	}
	return sum
}

// rollingMean averages the trailing window ending at i, requiring minObs
// defined observations; returns NaN otherwise.
func rollingMean(values []float64, i, window, minObs int) float64 {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	count := 0
	for j := start; j <= i; j++ {
		if math.IsNaN(values[j]) {
			continue
		}
		sum += values[j]
		count++
	}
	if count < minObs {
		return math.NaN()
	}
	return sum / float64(count)
}

// rollingVWAP computes the trailing volume-weighted average price ending at
// i. A single observation suffices; zero total quantity is undefined.
func rollingVWAP(evs []trades.TradeEvent, i, window int) float64 {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	var pq, q float64
	for j := start; j <= i; j++ {
		pq += evs[j].Price * evs[j].Quantity
		q += evs[j].Quantity
	}
	if q == 0 {
		return math.NaN()
	}
	return pq / q
}

func groupByInstrument(events []trades.TradeEvent) map[string][]trades.TradeEvent {
	grouped := make(map[string][]trades.TradeEvent)
	for _, e := range events {
		grouped[e.InstrumentID] = append(grouped[e.InstrumentID], e)
	}
	return grouped
}
