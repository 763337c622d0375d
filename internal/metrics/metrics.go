package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the exploration pipeline and dataset.
type Metrics struct {
	// Form submissions by outcome: ok, empty, invalid
	Explorations *prometheus.CounterVec

	// Pipeline latency by stage: filter, aggregate, join, total
	StageLatency *prometheus.HistogramVec

	// Eligible schemes per non-empty exploration
	MatchedSchemes prometheus.Histogram

	// Dataset reloads by result: ok, error
	Reloads *prometheus.CounterVec

	// Size of the installed snapshot
	DatasetSchemes prometheus.Gauge
	DatasetRegions prometheus.Gauge
}

// New registers all metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Explorations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schememap_explorations_total",
			Help: "Total eligibility explorations by outcome",
		}, []string{"outcome"}),

		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schememap_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"stage"}),

		MatchedSchemes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "schememap_matched_schemes",
			Help:    "Number of eligible schemes per non-empty exploration",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		Reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schememap_dataset_reloads_total",
			Help: "Total dataset reloads by result",
		}, []string{"result"}),

		DatasetSchemes: f.NewGauge(prometheus.GaugeOpts{
			Name: "schememap_dataset_schemes",
			Help: "Scheme records in the installed dataset",
		}),

		DatasetRegions: f.NewGauge(prometheus.GaugeOpts{
			Name: "schememap_dataset_regions",
			Help: "Dissolved regions in the installed dataset",
		}),
	}
}

// IncrementExploration records an exploration outcome.
func (m *Metrics) IncrementExploration(outcome string) {
	if m != nil {
		m.Explorations.WithLabelValues(outcome).Inc()
	}
}

// ObserveStage records the duration of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// ObserveMatched records the number of eligible schemes.
func (m *Metrics) ObserveMatched(n int) {
	if m != nil {
		m.MatchedSchemes.Observe(float64(n))
	}
}

// IncrementReload records a reload result.
func (m *Metrics) IncrementReload(result string) {
	if m != nil {
		m.Reloads.WithLabelValues(result).Inc()
	}
}

// SetDatasetSize records the installed snapshot size.
func (m *Metrics) SetDatasetSize(schemes, regions int) {
	if m != nil {
		m.DatasetSchemes.Set(float64(schemes))
		m.DatasetRegions.Set(float64(regions))
	}
}

// RegisterMiddlewareCounters exposes counters kept by the HTTP middlewares.
// A nil reg uses the default registerer.
func RegisterMiddlewareCounters(reg prometheus.Registerer, rateLimited, suspicious func() int64) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "schememap_rate_limited_requests_total",
		Help: "Requests rejected by the rate limiter",
	}, func() float64 { return float64(rateLimited()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "schememap_suspicious_requests_total",
		Help: "Requests flagged by the probe detector",
	}, func() float64 { return float64(suspicious()) })
}

// RegisterCacheCounters exposes hit and miss counts of the map image cache.
func RegisterCacheCounters(reg prometheus.Registerer, hits, misses func() int64) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "schememap_map_cache_hits_total",
		Help: "Map image requests served from cache",
	}, func() float64 { return float64(hits()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "schememap_map_cache_misses_total",
		Help: "Map image requests that had to render",
	}, func() float64 { return float64(misses()) })
}
