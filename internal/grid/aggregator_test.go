package grid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bondmap/internal/metrics"
	"bondmap/internal/trades"
)

var obsTime = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

func record(instrument string, ts time.Time, depth, spread, quantity, vwap float64) metrics.MetricRecord {
	return metrics.MetricRecord{
		InstrumentID:  instrument,
		Timestamp:     ts,
		DepthScore:    depth,
		SpreadBPS:     spread,
		TimeSinceLast: 1,
		VWAP:          vwap,
		VolumeWindow:  quantity,
		Price:         100,
		Quantity:      quantity,
	}
}

func attrsFor(maturityYears map[string]int, ratings map[string]string) map[string]trades.InstrumentAttrs {
	attrs := make(map[string]trades.InstrumentAttrs)
	for id, years := range maturityYears {
		attrs[id] = trades.InstrumentAttrs{
			Rating:       ratings[id],
			MaturityDate: obsTime.AddDate(years, 0, 30),
		}
	}
	return attrs
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		name     string
		maturity time.Time
		expected TenorBucket
		ok       bool
	}{
		{"six months", obsTime.AddDate(0, 6, 0), Tenor0to1, true},
		{"two years", obsTime.AddDate(2, 0, 0), Tenor1to3, true},
		{"four years", obsTime.AddDate(4, 0, 0), Tenor3to5, true},
		{"seven years", obsTime.AddDate(7, 0, 0), Tenor5to10, true},
		{"fifteen years", obsTime.AddDate(15, 0, 0), Tenor10Plus, true},
		{"matured", obsTime.AddDate(0, 0, -10), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, ok := BucketFor(tt.maturity, obsTime)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.expected, bucket)
			}
		})
	}
}

func TestBucketForUsesRecordTimestamp(t *testing.T) {
	maturity := obsTime.AddDate(1, 0, 1)

	// Just under the 1y boundary from a later observation point
	early, ok := BucketFor(maturity, obsTime)
	require.True(t, ok)
	assert.Equal(t, Tenor1to3, early)

	late, ok := BucketFor(maturity, obsTime.AddDate(0, 2, 0))
	require.True(t, ok)
	assert.Equal(t, Tenor0to1, late)
}

func TestAggregateTwoInstrumentScenario(t *testing.T) {
	// AAA cell holds two instruments with depths 40 and 60 (median 50); AA
	// holds one with depth 10. Grid quantiles over [10, 50]: p25 = 20,
	// p75 = 40. AA's depth 10 < 20 classifies RED.
	agg := NewAggregator(nil)

	records := []metrics.MetricRecord{
		record("A1", obsTime, 40, 10, 1_000_000, 100),
		record("A2", obsTime, 60, 10, 1_000_000, 100),
		record("B1", obsTime, 10, 10, 1_000_000, 100),
	}
	attrs := attrsFor(
		map[string]int{"A1": 2, "A2": 2, "B1": 2},
		map[string]string{"A1": "AAA", "A2": "AAA", "B1": "AA"},
	)

	snapshot, err := agg.Aggregate(context.Background(), records, attrs)
	require.NoError(t, err)
	require.Len(t, snapshot.Cells, 2)

	assert.InDelta(t, 20.0, snapshot.Thresholds.DepthP25, 1e-9)
	assert.InDelta(t, 40.0, snapshot.Thresholds.DepthP75, 1e-9)
	assert.InDelta(t, 10.0, snapshot.Thresholds.MedianSpread, 1e-9)

	aa, ok := snapshot.CellAt("AA", Tenor1to3)
	require.True(t, ok)
	assert.InDelta(t, 10.0, aa.MedianDepth, 1e-9)
	assert.Equal(t, ColorRed, aa.Color)

	aaa, ok := snapshot.CellAt("AAA", Tenor1to3)
	require.True(t, ok)
	assert.InDelta(t, 50.0, aaa.MedianDepth, 1e-9)
	// depth 50 >= p75 (40) and spread 10 <= median spread (10)
	assert.Equal(t, ColorGreen, aaa.Color)
}

func TestAggregateLatestPerInstrument(t *testing.T) {
	agg := NewAggregator(nil)

	records := []metrics.MetricRecord{
		record("A1", obsTime.Add(-2*time.Hour), 30, 5, 2_000_000, 99),
		record("A1", obsTime, 80, 5, 1_000_000, 101),
		// Lagging instrument: its older reading still counts
		record("B1", obsTime.Add(-4*time.Hour), 50, 5, 3_000_000, 100),
	}
	attrs := attrsFor(
		map[string]int{"A1": 2, "B1": 2},
		map[string]string{"A1": "AAA", "B1": "AAA"},
	)

	snapshot, err := agg.Aggregate(context.Background(), records, attrs)
	require.NoError(t, err)
	require.Len(t, snapshot.Cells, 1)

	cell := snapshot.Cells[0]
	assert.Equal(t, 2, cell.InstrumentCount)
	// Median over latest readings only: (80+50)/2
	assert.InDelta(t, 65.0, cell.MedianDepth, 1e-9)
	// Volume sums latest readings only
	assert.InDelta(t, 4_000_000, cell.TotalVolume, 1e-6)
	// VWAP of the most recent contributor, not an average
	assert.InDelta(t, 101.0, cell.LastVWAP, 1e-9)
}

func TestAggregateCellCountsPartitionInstruments(t *testing.T) {
	agg := NewAggregator(nil)

	var records []metrics.MetricRecord
	ids := []string{"A1", "A2", "B1", "B2", "C1"}
	for i, id := range ids {
		records = append(records, record(id, obsTime, float64(10*(i+1)), 5, 1_000_000, 100))
	}
	attrs := attrsFor(
		map[string]int{"A1": 0, "A2": 2, "B1": 2, "B2": 7, "C1": 12},
		map[string]string{"A1": "AAA", "A2": "AAA", "B1": "AA", "B2": "AA", "C1": "A"},
	)

	snapshot, err := agg.Aggregate(context.Background(), records, attrs)
	require.NoError(t, err)

	total := 0
	for _, cell := range snapshot.Cells {
		total += cell.InstrumentCount
	}
	assert.Equal(t, len(ids), total)
	assert.Equal(t, len(ids), snapshot.Summary.ActiveInstruments)
}

func TestAggregateExcludesUnmappedAndMatured(t *testing.T) {
	agg := NewAggregator(nil)

	records := []metrics.MetricRecord{
		record("KNOWN", obsTime, 50, 5, 1_000_000, 100),
		record("UNMAPPED", obsTime, 60, 5, 1_000_000, 100),
		record("MATURED", obsTime, 70, 5, 1_000_000, 100),
	}
	attrs := map[string]trades.InstrumentAttrs{
		"KNOWN":   {Rating: "AAA", MaturityDate: obsTime.AddDate(2, 0, 0)},
		"MATURED": {Rating: "AAA", MaturityDate: obsTime.AddDate(0, 0, -30)},
	}

	snapshot, err := agg.Aggregate(context.Background(), records, attrs)
	require.NoError(t, err)

	require.Len(t, snapshot.Cells, 1)
	assert.Equal(t, 1, snapshot.Cells[0].InstrumentCount)
	assert.Equal(t, "AAA", snapshot.Cells[0].Rating)
}

func TestAggregateIdempotent(t *testing.T) {
	agg := NewAggregator(nil)

	var records []metrics.MetricRecord
	for i, id := range []string{"A1", "A2", "B1", "C1", "C2", "C3"} {
		records = append(records, record(id, obsTime.Add(time.Duration(i)*time.Minute), float64(7*(i+2)), float64(i+1), 1_000_000, 100))
	}
	attrs := attrsFor(
		map[string]int{"A1": 0, "A2": 2, "B1": 4, "C1": 7, "C2": 12, "C3": 12},
		map[string]string{"A1": "AAA", "A2": "AAA", "B1": "AA", "C1": "A", "C2": "A", "C3": "A"},
	)

	first, err := agg.Aggregate(context.Background(), records, attrs)
	require.NoError(t, err)
	second, err := agg.Aggregate(context.Background(), records, attrs)
	require.NoError(t, err)

	assert.Equal(t, first.Thresholds, second.Thresholds)
	assert.Equal(t, first.Cells, second.Cells)
}

func TestAggregateEmptyInput(t *testing.T) {
	agg := NewAggregator(nil)

	snapshot, err := agg.Aggregate(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Cells)
	assert.Equal(t, 0, snapshot.Summary.ActiveInstruments)
}

func TestClassifyBoundaries(t *testing.T) {
	th := Thresholds{DepthP25: 20, DepthP75: 60, MedianSpread: 10}

	tests := []struct {
		name     string
		depth    float64
		spread   float64
		expected Color
	}{
		{"depth exactly p25 is not red", 20, 10, ColorAmber},
		{"depth just below p25 is red", 19.999, 10, ColorRed},
		{"depth at p75 and spread at median is green", 60, 10, ColorGreen},
		{"depth at p75 but spread above median is amber", 60, 10.5, ColorAmber},
		{"spread above 1.5x median is red regardless of depth", 90, 15.1, ColorRed},
		{"spread exactly 1.5x median is not red", 40, 15, ColorAmber},
		{"middling cell is amber", 40, 10, ColorAmber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classify(tt.depth, tt.spread, th))
		})
	}
}

func TestClassifyEveryPopulatedCellGetsExactlyOneColor(t *testing.T) {
	agg := NewAggregator(nil)

	var records []metrics.MetricRecord
	ids := map[string]int{"A1": 0, "A2": 2, "B1": 4, "B2": 7, "C1": 12, "C2": 2}
	ratings := map[string]string{"A1": "AAA", "A2": "AAA", "B1": "AA", "B2": "AA", "C1": "A", "C2": "A"}
	i := 0
	for id := range ids {
		records = append(records, record(id, obsTime, float64(11*(i+1)), float64(2*i+1), 1_000_000, 100))
		i++
	}

	snapshot, err := agg.Aggregate(context.Background(), records, attrsFor(ids, ratings))
	require.NoError(t, err)
	require.NotEmpty(t, snapshot.Cells)

	for _, cell := range snapshot.Cells {
		assert.Contains(t, []Color{ColorRed, ColorAmber, ColorGreen}, cell.Color)
	}
}
