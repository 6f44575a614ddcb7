package grid

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"bondmap/internal/metrics"
	"bondmap/internal/trades"
)

// Aggregator produces the latest cross-sectional liquidity picture from a
// metrics batch plus the static instrument attribute mapping.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates a grid aggregator
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger.With("component", "grid_aggregator")}
}

type cellKey struct {
	rating string
	tenor  TenorBucket
}

type cellAccum struct {
	depths      []float64
	spreads     []float64
	totalVolume float64
	instruments int
	lastTS      time.Time
	lastVWAP    float64
}

// Aggregate buckets the latest record of every instrument into (rating,
// tenor) cells, derives classification thresholds from the resulting grid,
// and classifies each populated cell. Empty input yields an empty snapshot.
func (a *Aggregator) Aggregate(ctx context.Context, records []metrics.MetricRecord, attrs map[string]trades.InstrumentAttrs) (*Snapshot, error) {
	snapshot := &Snapshot{}
	if len(records) == 0 {
		return snapshot, nil
	}

	// Tenor assignment happens per record from its own timestamp; records
	// with an unmapped instrument or a negative tenor are excluded.
	type bucketed struct {
		rec    metrics.MetricRecord
		rating string
		tenor  TenorBucket
	}

	excluded := 0
	valid := make([]bucketed, 0, len(records))
	for _, rec := range records {
		attr, ok := attrs[rec.InstrumentID]
		if !ok || attr.Rating == "" {
			excluded++
			continue
		}
		tenor, ok := BucketFor(attr.MaturityDate, rec.Timestamp)
		if !ok {
			excluded++
			continue
		}
		valid = append(valid, bucketed{rec: rec, rating: attr.Rating, tenor: tenor})
	}
	if excluded > 0 {
		a.logger.WarnContext(ctx, "excluded records with unmapped rating or invalid tenor",
			"excluded", excluded,
		)
	}

	// Latest record per instrument, by each instrument's own clock - a
	// lagging instrument's last known reading still counts.
	latest := make(map[string]bucketed)
	for _, b := range valid {
		cur, ok := latest[b.rec.InstrumentID]
		if !ok || b.rec.Timestamp.After(cur.rec.Timestamp) {
			latest[b.rec.InstrumentID] = b
		}
	}

	// Cell aggregation
	cells := make(map[cellKey]*cellAccum)
	for _, b := range latest {
		key := cellKey{rating: b.rating, tenor: b.tenor}
		acc, ok := cells[key]
		if !ok {
			acc = &cellAccum{}
			cells[key] = acc
		}
		acc.depths = append(acc.depths, b.rec.DepthScore)
		acc.spreads = append(acc.spreads, b.rec.SpreadBPS)
		acc.totalVolume += b.rec.Quantity
		acc.instruments++
		if acc.lastTS.IsZero() || b.rec.Timestamp.After(acc.lastTS) {
			acc.lastTS = b.rec.Timestamp
			acc.lastVWAP = b.rec.VWAP
		}
	}

	out := make([]Cell, 0, len(cells))
	for key, acc := range cells {
		out = append(out, Cell{
			Rating:          key.rating,
			Tenor:           key.tenor,
			TenorLabel:      key.tenor.String(),
			MedianDepth:     metrics.Median(acc.depths),
			MedianSpread:    metrics.Median(acc.spreads),
			TotalVolume:     acc.totalVolume,
			InstrumentCount: acc.instruments,
			LastVWAP:        acc.lastVWAP,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating < out[j].Rating
		}
		return out[i].Tenor < out[j].Tenor
	})

	// Dynamic thresholds from the current grid's own distribution
	depths := make([]float64, len(out))
	spreads := make([]float64, len(out))
	for i, c := range out {
		depths[i] = c.MedianDepth
		spreads[i] = c.MedianSpread
	}
	thresholds := Thresholds{
		DepthP25:     metrics.Quantile(depths, 0.25),
		DepthP75:     metrics.Quantile(depths, 0.75),
		MedianSpread: metrics.Median(spreads),
	}

	for i := range out {
		out[i].Color = classify(out[i].MedianDepth, out[i].MedianSpread, thresholds)
	}

	snapshot.Cells = out
	snapshot.Thresholds = thresholds
	snapshot.Summary = summarize(records)

	a.logger.InfoContext(ctx, "grid aggregation completed",
		"cells", len(out),
		"instruments", len(latest),
		"depth_p25", thresholds.DepthP25,
		"depth_p75", thresholds.DepthP75,
		"median_spread", thresholds.MedianSpread,
	)

	return snapshot, nil
}

// classify applies the tri-color rules in priority order. RED is asymmetric
// on purpose: its spread condition carries a 1.5x multiplier while GREEN's
// does not, so a cell is flagged poor more readily than good.
func classify(depth, spread float64, th Thresholds) Color {
	if math.IsNaN(depth) || depth < th.DepthP25 || spread > th.MedianSpread*1.5 {
		return ColorRed
	}
	if depth >= th.DepthP75 && spread <= th.MedianSpread {
		return ColorGreen
	}
	return ColorAmber
}

// summarize computes presentation summary stats over the full metrics batch
func summarize(records []metrics.MetricRecord) Summary {
	depths := make([]float64, len(records))
	instruments := make(map[string]bool)
	var totalVolume float64
	var latest time.Time

	for i, rec := range records {
		depths[i] = rec.DepthScore
		instruments[rec.InstrumentID] = true
		totalVolume += rec.Quantity
		if rec.Timestamp.After(latest) {
			latest = rec.Timestamp
		}
	}

	return Summary{
		ActiveInstruments: len(instruments),
		MeanDepth:         metrics.Mean(depths),
		TotalVolume:       totalVolume,
		LatestTimestamp:   latest,
	}
}
