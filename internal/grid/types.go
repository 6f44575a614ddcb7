// Package grid aggregates the latest per-instrument liquidity metrics into a
// rating × tenor-bucket grid with a tri-color classification.
package grid

import (
	"time"
)

// TenorBucket partitions time-to-maturity into five ordered ranges.
type TenorBucket int

const (
	Tenor0to1 TenorBucket = iota
	Tenor1to3
	Tenor3to5
	Tenor5to10
	Tenor10Plus
)

// String returns the display label for the bucket
func (b TenorBucket) String() string {
	switch b {
	case Tenor0to1:
		return "0-1y"
	case Tenor1to3:
		return "1-3y"
	case Tenor3to5:
		return "3-5y"
	case Tenor5to10:
		return "5-10y"
	case Tenor10Plus:
		return "10y+"
	default:
		return "unknown"
	}
}

// Buckets returns all tenor buckets in display order
func Buckets() []TenorBucket {
	return []TenorBucket{Tenor0to1, Tenor1to3, Tenor3to5, Tenor5to10, Tenor10Plus}
}

// BucketFor assigns a tenor bucket from the time to maturity measured at the
// record's own timestamp, not a fixed observation date. Maturities in the
// past yield ok=false and the record is excluded rather than mis-bucketed.
func BucketFor(maturity, at time.Time) (TenorBucket, bool) {
	years := maturity.Sub(at).Hours() / 24 / 365
	switch {
	case years < 0:
		return 0, false
	case years < 1:
		return Tenor0to1, true
	case years < 3:
		return Tenor1to3, true
	case years < 5:
		return Tenor3to5, true
	case years < 10:
		return Tenor5to10, true
	default:
		return Tenor10Plus, true
	}
}

// Color is the three-level liquidity classification
type Color string

const (
	ColorRed   Color = "red"   // poor liquidity
	ColorAmber Color = "amber" // moderate liquidity
	ColorGreen Color = "green" // good liquidity
)

// Cell is the aggregated liquidity summary for one (rating, tenor) pair.
// Cells are a view over the latest metrics batch, recomputed on every
// aggregation and never persisted.
type Cell struct {
	Rating          string      `json:"rating"`
	Tenor           TenorBucket `json:"-"`
	TenorLabel      string      `json:"tenor"`
	MedianDepth     float64     `json:"median_depth"`
	MedianSpread    float64     `json:"median_spread"`
	TotalVolume     float64     `json:"total_volume"`
	InstrumentCount int         `json:"instrument_count"`
	LastVWAP        float64     `json:"last_vwap"`
	Color           Color       `json:"color"`
}

// Thresholds are classification boundaries derived fresh from the current
// grid on every aggregation; they shift as market conditions shift.
type Thresholds struct {
	DepthP25     float64 `json:"depth_p25"`
	DepthP75     float64 `json:"depth_p75"`
	MedianSpread float64 `json:"median_spread"`
}

// Summary carries cross-sectional statistics for the presentation layer
type Summary struct {
	ActiveInstruments int       `json:"active_instruments"`
	MeanDepth         float64   `json:"mean_depth"`
	TotalVolume       float64   `json:"total_volume"`
	LatestTimestamp   time.Time `json:"latest_timestamp"`
}

// Snapshot is one full cross-sectional liquidity picture
type Snapshot struct {
	ComputedAt time.Time  `json:"computed_at"`
	Cells      []Cell     `json:"cells"`
	Thresholds Thresholds `json:"thresholds"`
	Summary    Summary    `json:"summary"`
}

// CellAt returns the populated cell for the given combination, if any
func (s *Snapshot) CellAt(rating string, tenor TenorBucket) (Cell, bool) {
	for _, c := range s.Cells {
		if c.Rating == rating && c.Tenor == tenor {
			return c, true
		}
	}
	return Cell{}, false
}

// Ratings returns the distinct ratings present in the snapshot, in cell
// order (cells are sorted by rating, then tenor).
func (s *Snapshot) Ratings() []string {
	seen := make(map[string]bool)
	var ratings []string
	for _, c := range s.Cells {
		if !seen[c.Rating] {
			seen[c.Rating] = true
			ratings = append(ratings, c.Rating)
		}
	}
	return ratings
}
