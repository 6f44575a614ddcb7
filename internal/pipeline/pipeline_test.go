package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bondmap/internal/grid"
	"bondmap/internal/infrastructure"
	"bondmap/internal/metrics"
	"bondmap/internal/store"
	"bondmap/internal/trades"
)

func newTestPipeline(t *testing.T) (*Pipeline, *trades.Store) {
	t.Helper()
	dir := t.TempDir()

	tradeStore := trades.NewStore(filepath.Join(dir, "trades.csv"), nil)
	metricStore := store.NewStore(filepath.Join(dir, "metrics"), nil)
	engine := metrics.NewEngine(2, nil)
	prom := infrastructure.NewPipelineMetrics(prometheus.NewRegistry())

	return New(tradeStore, engine, metricStore, nil, prom), tradeStore
}

func seedTrades(t *testing.T, tradeStore *trades.Store, instrument, rating string, count int, maturityYears int) {
	t.Helper()
	base := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	events := make([]trades.TradeEvent, count)
	for i := range events {
		events[i] = trades.TradeEvent{
			InstrumentID: instrument,
			Rating:       rating,
			MaturityDate: base.AddDate(maturityYears, 0, 15),
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			Quantity:     1_000_000,
			Price:        100 + 0.01*float64(i%3),
			BuyerCP:      "CP1",
			SellerCP:     "CP30",
		}
	}
	_, err := tradeStore.Append(context.Background(), events)
	require.NoError(t, err)
}

func TestRunProducesBatch(t *testing.T) {
	p, tradeStore := newTestPipeline(t)
	ctx := context.Background()

	seedTrades(t, tradeStore, "IN100", "AAA", 20, 2)
	seedTrades(t, tradeStore, "IN200", "AA", 15, 7)

	result, err := p.Run(ctx)
	require.NoError(t, err)

	assert.False(t, result.Empty)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 35, result.TradeCount)
	assert.Equal(t, 2, result.Instruments)
	assert.Equal(t, 0, result.Skipped)
	// 20 trades -> 15 records, 15 trades -> 10 records
	assert.Equal(t, 25, result.Records)
}

func TestRunEmptyInputLeavesPriorBatch(t *testing.T) {
	p, tradeStore := newTestPipeline(t)
	ctx := context.Background()

	seedTrades(t, tradeStore, "IN100", "AAA", 10, 2)
	first, err := p.Run(ctx)
	require.NoError(t, err)
	require.False(t, first.Empty)

	// A pipeline over an empty source reports an empty run and leaves the
	// previous batch visible.
	empty, _ := newTestPipeline(t)
	result, err := empty.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.Empty)
	assert.Zero(t, result.Records)

	snapshot, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot.Cells)
}

func TestRunSkipsThinInstruments(t *testing.T) {
	p, tradeStore := newTestPipeline(t)
	ctx := context.Background()

	seedTrades(t, tradeStore, "IN100", "AAA", 3, 2) // below minimum
	seedTrades(t, tradeStore, "IN200", "AA", 12, 2)

	result, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 7, result.Records)
}

func TestRunAllInstrumentsTooThin(t *testing.T) {
	p, tradeStore := newTestPipeline(t)
	ctx := context.Background()

	seedTrades(t, tradeStore, "IN100", "AAA", 3, 2)

	result, err := p.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.Empty)

	_, err = p.Snapshot(ctx)
	assert.ErrorIs(t, err, store.ErrNoBatch)
}

func TestSnapshotWithoutRun(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.Snapshot(context.Background())
	assert.ErrorIs(t, err, store.ErrNoBatch)
}

func TestSnapshotClassifiesCells(t *testing.T) {
	p, tradeStore := newTestPipeline(t)
	ctx := context.Background()

	seedTrades(t, tradeStore, "IN100", "AAA", 20, 2)
	seedTrades(t, tradeStore, "IN200", "AA", 20, 7)
	seedTrades(t, tradeStore, "IN300", "A", 20, 12)

	_, err := p.Run(ctx)
	require.NoError(t, err)

	snapshot, err := p.Snapshot(ctx)
	require.NoError(t, err)

	require.Len(t, snapshot.Cells, 3)
	for _, cell := range snapshot.Cells {
		assert.Contains(t, []grid.Color{grid.ColorRed, grid.ColorAmber, grid.ColorGreen}, cell.Color)
		assert.Equal(t, 1, cell.InstrumentCount)
	}
	assert.Equal(t, 3, snapshot.Summary.ActiveInstruments)
	assert.False(t, snapshot.ComputedAt.IsZero())
}

func TestRunReplacesPreviousBatch(t *testing.T) {
	p, tradeStore := newTestPipeline(t)
	ctx := context.Background()

	seedTrades(t, tradeStore, "IN100", "AAA", 10, 2)
	first, err := p.Run(ctx)
	require.NoError(t, err)

	seedTrades(t, tradeStore, "IN200", "AA", 10, 2)
	second, err := p.Run(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)

	snapshot, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Summary.ActiveInstruments)
}
