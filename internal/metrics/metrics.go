// Package metrics exposes Prometheus instrumentation for analyses, land-cover
// lookups and sensor calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/swc-cli/internal/cache"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Analyses by status (OK, NON_ARABLE, ERROR) and rule mode
	AnalysisOutcome *prometheus.CounterVec

	// Erosion risk levels of OK analyses
	RiskLevel *prometheus.CounterVec

	// Land-cover lookups by outcome
	LandCoverLookup *prometheus.CounterVec

	// Tiles skipped because they could not be opened or projected
	TileSkipped prometheus.Counter

	// Sensor latency by sensor name
	SensorLatency *prometheus.HistogramVec

	// Sensor fallbacks by sensor name
	SensorFallback *prometheus.CounterVec

	// End-to-end analysis latency
	AnalyzeLatency prometheus.Histogram

	factory promauto.Factory
}

// New registers all collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		factory: f,

		AnalysisOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swc_analysis_outcomes_total",
			Help: "Total analyses by status and rule mode",
		}, []string{"status", "mode"}),

		RiskLevel: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swc_erosion_risk_levels_total",
			Help: "Total erosion risk results by level",
		}, []string{"level"}),

		LandCoverLookup: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swc_landcover_lookups_total",
			Help: "Total land-cover lookups by outcome",
		}, []string{"outcome"}),

		TileSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "swc_landcover_tiles_skipped_total",
			Help: "Land-cover tiles skipped because they failed to open or project",
		}),

		SensorLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swc_sensor_duration_seconds",
			Help:    "Duration of sensor fetches by sensor",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"sensor"}),

		SensorFallback: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swc_sensor_fallbacks_total",
			Help: "Total sensor fetches that fell back to the configured default",
		}, []string{"sensor"}),

		AnalyzeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "swc_analyze_duration_seconds",
			Help:    "Duration of a full analysis including sensor fetches",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncrementOutcome records an analysis outcome. mode is empty for
// NON_ARABLE and ERROR outcomes.
func (m *Metrics) IncrementOutcome(status, mode string) {
	if m != nil {
		m.AnalysisOutcome.WithLabelValues(status, mode).Inc()
	}
}

// IncrementRiskLevel records an erosion risk level.
func (m *Metrics) IncrementRiskLevel(level string) {
	if m != nil {
		m.RiskLevel.WithLabelValues(level).Inc()
	}
}

// IncrementLookup records a land-cover lookup outcome.
func (m *Metrics) IncrementLookup(outcome string) {
	if m != nil {
		m.LandCoverLookup.WithLabelValues(outcome).Inc()
	}
}

// IncrementTileSkipped records a skipped land-cover tile.
func (m *Metrics) IncrementTileSkipped() {
	if m != nil {
		m.TileSkipped.Inc()
	}
}

// ObserveSensorLatency records the duration of one sensor fetch.
func (m *Metrics) ObserveSensorLatency(sensor string, d time.Duration) {
	if m != nil {
		m.SensorLatency.WithLabelValues(sensor).Observe(d.Seconds())
	}
}

// IncrementFallback records a sensor fallback.
func (m *Metrics) IncrementFallback(sensor string) {
	if m != nil {
		m.SensorFallback.WithLabelValues(sensor).Inc()
	}
}

// ObserveAnalyzeLatency records the duration of a full analysis.
func (m *Metrics) ObserveAnalyzeLatency(d time.Duration) {
	if m != nil {
		m.AnalyzeLatency.Observe(d.Seconds())
	}
}

// WatchCache exports the entry count, hits and misses of a cache, read from
// stats on every scrape. name becomes the "cache" label.
func (m *Metrics) WatchCache(name string, stats func() cache.Stats) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"cache": name}
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "swc_cache_entries",
		Help:        "Entries currently held by a cache",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Entries) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name:        "swc_cache_hits_total",
		Help:        "Cache lookups answered from the cache",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Hits) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name:        "swc_cache_misses_total",
		Help:        "Cache lookups that missed or found an expired entry",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Misses) })
}
