package exporter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"bondmap/internal/grid"
)

const heatmapSheet = "Heatmap"

// Classic Excel conditional-formatting palette
var fillColors = map[grid.Color]string{
	grid.ColorRed:   "FFC7CE",
	grid.ColorAmber: "FFEB9C",
	grid.ColorGreen: "C6EFCE",
}

var fontColors = map[grid.Color]string{
	grid.ColorRed:   "9C0006",
	grid.ColorAmber: "9C6500",
	grid.ColorGreen: "006100",
}

// WriteHeatmapXLSX renders the snapshot as a rating x tenor matrix with one
// color-filled cell per populated grid cell.
func (e *Exporter) WriteHeatmapXLSX(snap *grid.Snapshot, name string) (string, error) {
	fullPath := e.resolvePath(name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", heatmapSheet); err != nil {
		return "", fmt.Errorf("failed to rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create header style: %w", err)
	}

	cellStyles := make(map[grid.Color]int, len(fillColors))
	for color, fill := range fillColors {
		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fill}},
			Font:      &excelize.Font{Color: fontColors[color]},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		if err != nil {
			return "", fmt.Errorf("failed to create %s style: %w", color, err)
		}
		cellStyles[color] = style
	}

	buckets := grid.Buckets()

	// Header row: empty corner, then tenor labels
	if err := f.SetCellValue(heatmapSheet, "A1", "Rating"); err != nil {
		return "", err
	}
	for col, bucket := range buckets {
		axis, _ := excelize.CoordinatesToCellName(col+2, 1)
		if err := f.SetCellValue(heatmapSheet, axis, bucket.String()); err != nil {
			return "", err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(buckets)+1, 1)
	if err := f.SetCellStyle(heatmapSheet, "A1", lastHeader, headerStyle); err != nil {
		return "", err
	}

	for row, rating := range snap.Ratings() {
		axis, _ := excelize.CoordinatesToCellName(1, row+2)
		if err := f.SetCellValue(heatmapSheet, axis, rating); err != nil {
			return "", err
		}
		for col, bucket := range buckets {
			cell, ok := snap.CellAt(rating, bucket)
			if !ok {
				continue
			}
			axis, _ := excelize.CoordinatesToCellName(col+2, row+2)
			value := fmt.Sprintf("%.1f / %.1fbp (n=%d)", cell.MedianDepth, cell.MedianSpread, cell.InstrumentCount)
			if err := f.SetCellValue(heatmapSheet, axis, value); err != nil {
				return "", err
			}
			if err := f.SetCellStyle(heatmapSheet, axis, axis, cellStyles[cell.Color]); err != nil {
				return "", err
			}
		}
	}

	if err := f.SetColWidth(heatmapSheet, "A", "F", 22); err != nil {
		return "", err
	}

	if err := e.writeCellsSheet(f, snap); err != nil {
		return "", err
	}

	if err := f.SaveAs(fullPath); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}

	e.logger.Info("wrote heatmap workbook",
		"path", fullPath,
		"cells", len(snap.Cells),
	)
	return fullPath, nil
}

// writeCellsSheet adds a flat table of every populated cell next to the matrix
func (e *Exporter) writeCellsSheet(f *excelize.File, snap *grid.Snapshot) error {
	const sheet = "Cells"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to add cells sheet: %w", err)
	}

	for col, header := range csvHeader {
		axis, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, axis, header); err != nil {
			return err
		}
	}

	for row, cell := range snap.Cells {
		values := []interface{}{
			cell.Rating,
			cell.TenorLabel,
			string(cell.Color),
			cell.MedianDepth,
			cell.MedianSpread,
			cell.TotalVolume,
			cell.InstrumentCount,
			cell.LastVWAP,
		}
		for col, v := range values {
			axis, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, axis, v); err != nil {
				return err
			}
		}
	}

	return nil
}
