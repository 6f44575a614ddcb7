// Package exporter writes heatmap snapshots out as CSV and XLSX reports.
package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"bondmap/internal/grid"
)

var csvHeader = []string{
	"rating", "tenor", "color", "median_depth", "median_spread_bps",
	"total_volume", "instrument_count", "last_vwap",
}

// Exporter writes snapshot reports into the reports directory
type Exporter struct {
	reportsDir string
	logger     *slog.Logger
}

// New creates an exporter rooted at reportsDir
func New(reportsDir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		reportsDir: reportsDir,
		logger:     logger.With("component", "exporter"),
	}
}

// WriteGridCSV writes one row per populated grid cell. The file is
// prefixed with a UTF-8 BOM so Excel opens it cleanly.
func (e *Exporter) WriteGridCSV(snap *grid.Snapshot, name string) (string, error) {
	fullPath := e.resolvePath(name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return "", fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return "", fmt.Errorf("failed to write headers: %w", err)
	}

	for i, cell := range snap.Cells {
		row := []string{
			cell.Rating,
			cell.TenorLabel,
			string(cell.Color),
			formatFloat(cell.MedianDepth),
			formatFloat(cell.MedianSpread),
			formatFloat(cell.TotalVolume),
			strconv.Itoa(cell.InstrumentCount),
			formatFloat(cell.LastVWAP),
		}
		if err := writer.Write(row); err != nil {
			return "", fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}

	e.logger.Info("wrote grid CSV report",
		"path", fullPath,
		"cells", len(snap.Cells),
	)
	return fullPath, nil
}

func (e *Exporter) resolvePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.reportsDir, name)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
