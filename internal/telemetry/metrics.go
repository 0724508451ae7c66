// Package telemetry holds the platform's Prometheus registry, grounded
// on the teacher's internal/interfaces/http.MetricsRegistry shape:
// stage-latency histograms, cache-hit gauges, and run-outcome counters
// naming the exact fields spec.md already requires on the Prediction
// run and backfill_status records (§3, §5), simply made observable.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric this platform exports.
type Registry struct {
	StageLatency *prometheus.HistogramVec // labels: stage (data_fetch|indicator_calc|signal_generation|notification)

	RunsTotal        *prometheus.CounterVec // labels: status
	SignalsGenerated prometheus.Counter

	BundleCacheHits   *prometheus.CounterVec // labels: interval
	BundleCacheMisses *prometheus.CounterVec

	IndicatorCacheHitRatio prometheus.Gauge

	BackfillQuality *prometheus.GaugeVec // labels: symbol, interval

	CircuitOpen *prometheus.GaugeVec // labels: source; 1 if open
}

// New constructs a Registry with every metric registered against reg.
// Callers typically pass prometheus.NewRegistry() in tests and
// prometheus.DefaultRegisterer in production, the way the teacher's
// NewMetricsRegistry takes no registerer and registers globally; this
// version takes one explicitly so tests don't collide on the global
// default registry.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drummond_stage_latency_ms",
			Help:    "Per-stage pipeline latency in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"stage"}),

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drummond_runs_total",
			Help: "Total scheduler runs by terminal status",
		}, []string{"status"}),

		SignalsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drummond_signals_generated_total",
			Help: "Total signals emitted across all runs",
		}),

		BundleCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drummond_bundle_cache_hits_total",
			Help: "Timeframe bundle cache hits by interval",
		}, []string{"interval"}),

		BundleCacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drummond_bundle_cache_misses_total",
			Help: "Timeframe bundle cache misses by interval",
		}, []string{"interval"}),

		IndicatorCacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drummond_indicator_cache_hit_ratio",
			Help: "Current indicator cache hit ratio (0.0 to 1.0)",
		}),

		BackfillQuality: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drummond_backfill_quality",
			Help: "bars_stored / expected_bars for the most recent backfill of a symbol/interval",
		}, []string{"symbol", "interval"}),

		CircuitOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drummond_circuit_open",
			Help: "1 if the named ingestion circuit breaker is open, else 0",
		}, []string{"source"}),
	}

	for _, c := range []prometheus.Collector{
		r.StageLatency, r.RunsTotal, r.SignalsGenerated, r.BundleCacheHits,
		r.BundleCacheMisses, r.IndicatorCacheHitRatio, r.BackfillQuality, r.CircuitOpen,
	} {
		reg.MustRegister(c)
	}
	return r
}

// ObserveStage records one stage's latency in milliseconds.
func (r *Registry) ObserveStage(stage string, ms int64) {
	r.StageLatency.WithLabelValues(stage).Observe(float64(ms))
}

// ObserveRun increments the run-outcome counter and, for a successful
// or partial run, the signals-generated total.
func (r *Registry) ObserveRun(status string, signalsGenerated int) {
	r.RunsTotal.WithLabelValues(status).Inc()
	r.SignalsGenerated.Add(float64(signalsGenerated))
}
