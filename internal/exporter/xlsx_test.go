package exporter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"bondmap/internal/grid"
)

func TestWriteHeatmapXLSX(t *testing.T) {
	dir := t.TempDir()
	path, err := New(dir, nil).WriteHeatmapXLSX(testSnapshot(), "heatmap.xlsx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "heatmap.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{heatmapSheet, "Cells"}, f.GetSheetList())

	corner, err := f.GetCellValue(heatmapSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Rating", corner)

	firstTenor, err := f.GetCellValue(heatmapSheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "0-1y", firstTenor)

	// Cells are sorted by rating, so AA comes first
	rating, err := f.GetCellValue(heatmapSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "AA", rating)

	// AA sits in the 1-3y column with its depth/spread summary
	value, err := f.GetCellValue(heatmapSheet, "C2")
	require.NoError(t, err)
	assert.Equal(t, "72.5 / 11.2bp (n=3)", value)

	// AAA 0-1y on the next row
	value, err = f.GetCellValue(heatmapSheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "12.4 / 44.0bp (n=1)", value)
}

func TestWriteHeatmapXLSXCellsSheet(t *testing.T) {
	dir := t.TempDir()
	path, err := New(dir, nil).WriteHeatmapXLSX(testSnapshot(), "heatmap.xlsx")
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Cells")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "AA", rows[1][0])
	assert.Equal(t, "green", rows[1][2])
	assert.Equal(t, "red", rows[2][2])
}

func TestWriteHeatmapXLSXEmptySnapshot(t *testing.T) {
	dir := t.TempDir()
	path, err := New(dir, nil).WriteHeatmapXLSX(&grid.Snapshot{}, "empty.xlsx")
	require.NoError(t, err)
	assert.FileExists(t, path)
}
