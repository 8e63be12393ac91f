// Package metrics exposes Prometheus instrumentation for the staging area,
// the relay client and the sweeper.
//
// All metrics use the stagekeeper_ prefix. A nil *Metrics is valid and
// records nothing, so components can be built without instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks staging-related Prometheus metrics.
type Metrics struct {
	// StagedTotal counts successful stagings by source (bytes, stream, empty, descriptor)
	StagedTotal *prometheus.CounterVec

	// StageFailuresTotal counts failed stagings by source
	StageFailuresTotal *prometheus.CounterVec

	// StagedBytesTotal counts payload bytes written into the staging area
	StagedBytesTotal prometheus.Counter

	// StagedFiles tracks the current registry size
	StagedFiles prometheus.Gauge

	// RelayTotal counts relay outcomes by result (success, failed)
	RelayTotal *prometheus.CounterVec

	// RelayAttemptsTotal counts per-candidate attempts by outcome
	RelayAttemptsTotal *prometheus.CounterVec

	// RelayDuration tracks the duration of a whole failover sequence
	RelayDuration prometheus.Histogram

	// SweepEvictedTotal counts files removed by the sweeper by kind (registered, orphan)
	SweepEvictedTotal *prometheus.CounterVec

	// SweepFailuresTotal counts evictions that could not be completed
	SweepFailuresTotal prometheus.Counter
}

// NewMetrics creates and registers the metrics with reg.
// Panics if registration fails (expected during initialization only).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StagedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagekeeper_staged_total",
				Help: "Total staged files by source",
			},
			[]string{"source"},
		),
		StageFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagekeeper_stage_failures_total",
				Help: "Total failed staging operations by source",
			},
			[]string{"source"},
		),
		StagedBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stagekeeper_staged_bytes_total",
				Help: "Total payload bytes written to the staging area",
			},
		),
		StagedFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stagekeeper_staged_files",
				Help: "Current number of registered staged files",
			},
		),
		RelayTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagekeeper_relay_total",
				Help: "Total relay operations by result",
			},
			[]string{"result"},
		),
		RelayAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagekeeper_relay_attempts_total",
				Help: "Total per-candidate relay attempts by outcome",
			},
			[]string{"outcome"}, // "accepted", "not_found", "rejected", "transport_error"
		),
		RelayDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stagekeeper_relay_duration_seconds",
				Help:    "Relay failover sequence duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SweepEvictedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagekeeper_sweep_evicted_total",
				Help: "Total files evicted by the sweeper by kind",
			},
			[]string{"kind"},
		),
		SweepFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stagekeeper_sweep_failures_total",
				Help: "Total evictions the sweeper could not complete",
			},
		),
	}

	reg.MustRegister(
		m.StagedTotal,
		m.StageFailuresTotal,
		m.StagedBytesTotal,
		m.StagedFiles,
		m.RelayTotal,
		m.RelayAttemptsTotal,
		m.RelayDuration,
		m.SweepEvictedTotal,
		m.SweepFailuresTotal,
	)

	return m
}

// RecordStaged records a successful staging of size bytes.
func (m *Metrics) RecordStaged(source string, size int64) {
	if m == nil {
		return
	}
	m.StagedTotal.WithLabelValues(source).Inc()
	if size > 0 {
		m.StagedBytesTotal.Add(float64(size))
	}
}

// RecordStageFailure records a failed staging.
func (m *Metrics) RecordStageFailure(source string) {
	if m == nil {
		return
	}
	m.StageFailuresTotal.WithLabelValues(source).Inc()
}

// SetStagedFiles updates the registry size gauge.
func (m *Metrics) SetStagedFiles(n int) {
	if m == nil {
		return
	}
	m.StagedFiles.Set(float64(n))
}

// RecordRelayAttempt records the outcome of a single candidate attempt.
func (m *Metrics) RecordRelayAttempt(outcome string) {
	if m == nil {
		return
	}
	m.RelayAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordRelay records a finished failover sequence.
func (m *Metrics) RecordRelay(success bool, seconds float64) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failed"
	}
	m.RelayTotal.WithLabelValues(result).Inc()
	m.RelayDuration.Observe(seconds)
}

// RecordEviction records a sweeper eviction of the given kind.
func (m *Metrics) RecordEviction(kind string) {
	if m == nil {
		return
	}
	m.SweepEvictedTotal.WithLabelValues(kind).Inc()
}

// RecordSweepFailure records an eviction the sweeper could not complete.
func (m *Metrics) RecordSweepFailure() {
	if m == nil {
		return
	}
	m.SweepFailuresTotal.Inc()
}
