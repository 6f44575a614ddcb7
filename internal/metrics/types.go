// Package metrics derives per-trade liquidity depth series from raw trade
// prints. Depth scores are normalized within each instrument's own series and
// are only meaningful relative to that instrument, never across instruments.
package metrics

import (
	"time"
)

// MetricRecord is one derived metrics row, emitted per surviving trade event.
type MetricRecord struct {
	InstrumentID  string    `json:"instrument_id"`
	Timestamp     time.Time `json:"trade_ts"`
	DepthScore    float64   `json:"depth_score"`     // 0-100 after per-instrument normalization
	SpreadBPS     float64   `json:"spread"`          // abs consecutive price change, basis points
	TimeSinceLast float64   `json:"time_since_last"` // minutes since the prior print
	VWAP          float64   `json:"vwap"`            // trailing volume-weighted average price
	VolumeWindow  float64   `json:"volume_window"`   // trailing raw quantity sum
	Price         float64   `json:"price"`
	Quantity      float64   `json:"quantity"`
}

// Stats summarizes one compute batch for instrumentation and logging.
type Stats struct {
	Instruments int // distinct instruments in the input
	Skipped     int // instruments below the minimum trade count
	Failed      int // instruments whose computation failed
	Records     int // metric records produced
}

// Computation constants. The window sizes and additive floors are fixed
// design constants, not configuration.
const (
	// MinTradesPerInstrument is the minimum trade count required before any
	// metrics are derived: one print for the first diff plus the minimum
	// rolling-window observations.
	MinTradesPerInstrument = 6

	// depthWindow is the trailing observation count for depth smoothing.
	depthWindow = 10
	// depthMinObs is the minimum defined observations in the depth window.
	depthMinObs = 5
	// vwapWindow is the trailing observation count for VWAP.
	vwapWindow = 10
	// volumeWindowSize is the trailing observation count for the raw volume sum.
	volumeWindowSize = 15

	// timeFloorMinutes and spreadFloorBPS keep the depth ratio bounded when
	// trades are near-simultaneous or zero-spread.
	timeFloorMinutes = 0.5
	spreadFloorBPS   = 0.5
)
