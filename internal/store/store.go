// Package store persists computed metrics batches with whole-batch atomic
// replacement: a new batch is staged under its own directory and a pointer
// file is renamed into place, so readers never observe a half-written run
// and a crash mid-run leaves the previous batch fully intact.
package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"bondmap/internal/metrics"
)

// ErrNoBatch indicates no metrics batch has been computed yet. The
// presentation layer renders this as "no data yet", distinct from a stale or
// failed run.
var ErrNoBatch = errors.New("no metrics batch computed yet")

const (
	currentPointer = "CURRENT"
	batchesDir     = "batches"
	manifestFile   = "manifest.json"
	metricsFile    = "metrics.csv"

	timestampLayout = time.RFC3339Nano
)

var metricsHeader = []string{
	"instrument_id", "trade_ts", "depth_score", "spread", "time_since_last",
	"vwap", "volume_window", "price", "quantity",
}

// Manifest describes one computed batch
type Manifest struct {
	RunID       string    `json:"run_id"`
	ComputedAt  time.Time `json:"computed_at"`
	TradeCount  int       `json:"trade_count"`
	Instruments int       `json:"instruments"`
	Records     int       `json:"records"`
}

// Batch is one complete computed metrics batch
type Batch struct {
	Manifest Manifest
	Records  []metrics.MetricRecord
}

// Store is the replace-on-each-run derived metrics table
type Store struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a metrics store rooted at dir
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Save stages the batch under its own directory, then atomically repoints
// the CURRENT pointer. Older batches beyond the previous one are pruned.
func (s *Store) Save(ctx context.Context, batch *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.Manifest.RunID == "" {
		return fmt.Errorf("batch has no run ID")
	}

	batchDir := filepath.Join(s.dir, batchesDir, batch.Manifest.RunID)
	if err := os.MkdirAll(batchDir, 0755); err != nil {
		return fmt.Errorf("create batch directory: %w", err)
	}

	if err := writeMetricsCSV(filepath.Join(batchDir, metricsFile), batch.Records); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	manifestData, err := json.MarshalIndent(batch.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(batchDir, manifestFile), manifestData, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	// Atomic repoint: write the pointer beside its final location, then
	// rename over it.
	previous, _ := s.currentRunID()

	tmpPointer := filepath.Join(s.dir, currentPointer+".tmp")
	if err := os.WriteFile(tmpPointer, []byte(batch.Manifest.RunID), 0644); err != nil {
		return fmt.Errorf("write pointer: %w", err)
	}
	if err := os.Rename(tmpPointer, filepath.Join(s.dir, currentPointer)); err != nil {
		return fmt.Errorf("swap pointer: %w", err)
	}

	s.prune(ctx, batch.Manifest.RunID, previous)

	s.logger.InfoContext(ctx, "saved metrics batch",
		"run_id", batch.Manifest.RunID,
		"records", batch.Manifest.Records,
		"instruments", batch.Manifest.Instruments,
	)

	return nil
}

// Load reads the current batch. Returns ErrNoBatch when nothing has been
// computed yet.
func (s *Store) Load(ctx context.Context) (*Batch, error) {
	runID, err := s.currentRunID()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoBatch
		}
		return nil, fmt.Errorf("read current pointer: %w", err)
	}

	batchDir := filepath.Join(s.dir, batchesDir, runID)

	manifestData, err := os.ReadFile(filepath.Join(batchDir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest for run %s: %w", runID, err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest for run %s: %w", runID, err)
	}

	records, err := readMetricsCSV(filepath.Join(batchDir, metricsFile))
	if err != nil {
		return nil, fmt.Errorf("read metrics for run %s: %w", runID, err)
	}

	s.logger.DebugContext(ctx, "loaded metrics batch",
		"run_id", runID,
		"records", len(records),
	)

	return &Batch{Manifest: manifest, Records: records}, nil
}

// currentRunID reads the CURRENT pointer
func (s *Store) currentRunID() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentPointer))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// prune removes batch directories other than the current and previous runs
func (s *Store) prune(ctx context.Context, current, previous string) {
	entries, err := os.ReadDir(filepath.Join(s.dir, batchesDir))
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == current || entry.Name() == previous {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, batchesDir, entry.Name())); err != nil {
			s.logger.WarnContext(ctx, "failed to prune old batch",
				"run_id", entry.Name(),
				"error", err,
			)
		}
	}
}

func writeMetricsCSV(path string, records []metrics.MetricRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(metricsHeader); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.InstrumentID,
			rec.Timestamp.Format(timestampLayout),
			formatFloat(rec.DepthScore),
			formatFloat(rec.SpreadBPS),
			formatFloat(rec.TimeSinceLast),
			formatFloat(rec.VWAP),
			formatFloat(rec.VolumeWindow),
			formatFloat(rec.Price),
			formatFloat(rec.Quantity),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func readMetricsCSV(path string) ([]metrics.MetricRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(metricsHeader)

	var records []metrics.MetricRecord
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if row[0] == "instrument_id" {
				continue
			}
		}

		rec, err := parseRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string) (metrics.MetricRecord, error) {
	var rec metrics.MetricRecord

	ts, err := time.Parse(timestampLayout, row[1])
	if err != nil {
		return rec, fmt.Errorf("parse trade_ts %q: %w", row[1], err)
	}

	fields := make([]float64, 7)
	for i, raw := range row[2:] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return rec, fmt.Errorf("parse %s %q: %w", metricsHeader[i+2], raw, err)
		}
		fields[i] = v
	}

	return metrics.MetricRecord{
		InstrumentID:  row[0],
		Timestamp:     ts,
		DepthScore:    fields[0],
		SpreadBPS:     fields[1],
		TimeSinceLast: fields[2],
		VWAP:          fields[3],
		VolumeWindow:  fields[4],
		Price:         fields[5],
		Quantity:      fields[6],
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
