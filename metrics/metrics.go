package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IngestMetrics holds the ingestion pipeline metrics
type IngestMetrics struct {
	// Terminal run outcomes
	RunsTotal *prometheus.CounterVec

	// Rates persisted across successful runs
	RatesStoredTotal prometheus.Counter

	// Retry attempts per pipeline phase
	RetriesTotal *prometheus.CounterVec

	// End-to-end run duration
	RunDuration *prometheus.HistogramVec
}

// NewIngestMetrics creates and registers the ingestion metrics
func NewIngestMetrics() *IngestMetrics {
	return newIngestMetrics(prometheus.DefaultRegisterer)
}

// NewIngestMetricsWith creates the ingestion metrics against the given
// registerer. Used in tests
func NewIngestMetricsWith(reg prometheus.Registerer) *IngestMetrics {
	return newIngestMetrics(reg)
}

func newIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	factory := promauto.With(reg)

	return &IngestMetrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Total ingestion runs by terminal state",
			},
			[]string{"provider", "result"},
		),

		RatesStoredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_rates_stored_total",
				Help: "Total exchange rate rows persisted",
			},
		),

		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_retries_total",
				Help: "Total retry attempts by pipeline phase",
			},
			[]string{"phase"},
		),

		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_run_duration_seconds",
				Help:    "End-to-end ingestion run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms, 200ms, 400ms...
			},
			[]string{"result"},
		),
	}
}

// RecordRun records a terminal run outcome
func (m *IngestMetrics) RecordRun(provider, result string, durationSeconds float64) {
	m.RunsTotal.WithLabelValues(provider, result).Inc()
	m.RunDuration.WithLabelValues(result).Observe(durationSeconds)
}

// RecordRatesStored records the number of rates persisted by a run
func (m *IngestMetrics) RecordRatesStored(count int) {
	m.RatesStoredTotal.Add(float64(count))
}

// RecordRetry records a retry attempt for the given phase
func (m *IngestMetrics) RecordRetry(phase string) {
	m.RetriesTotal.WithLabelValues(phase).Inc()
}
