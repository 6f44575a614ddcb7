package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds Prometheus instrumentation for batch runs
type PipelineMetrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	InstrumentsSkipped prometheus.Counter
	InstrumentsFailed  prometheus.Counter
	MetricRecords      prometheus.Gauge
	LastRunTimestamp   prometheus.Gauge
}

// NewPipelineMetrics registers and returns pipeline metrics on the given registerer
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)

	return &PipelineMetrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bondmap",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total pipeline runs by outcome (success, failure, empty).",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bondmap",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		InstrumentsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bondmap",
			Subsystem: "pipeline",
			Name:      "instruments_skipped_total",
			Help:      "Instruments skipped for insufficient trade history.",
		}),
		InstrumentsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bondmap",
			Subsystem: "pipeline",
			Name:      "instruments_failed_total",
			Help:      "Instruments whose metric computation failed.",
		}),
		MetricRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "bondmap",
			Subsystem: "pipeline",
			Name:      "metric_records",
			Help:      "Metric records produced by the most recent successful run.",
		}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "bondmap",
			Subsystem: "pipeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful pipeline run.",
		}),
	}
}
