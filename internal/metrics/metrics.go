package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pact-verifier/internal/types"
)

// Metrics holds the Prometheus metrics of verification runs
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal         *prometheus.CounterVec
	InteractionsTotal *prometheus.CounterVec
	ViolationsTotal   *prometheus.CounterVec
	RunDuration       prometheus.Histogram
}

// New creates and registers the metrics on registry. A nil registry gets a
// fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pact_verifier_runs_total",
				Help: "Total number of verification runs",
			},
			[]string{"outcome"},
		),
		InteractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pact_verifier_interactions_total",
				Help: "Total number of verified interactions",
			},
			[]string{"outcome"},
		),
		ViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pact_verifier_violations_total",
				Help: "Total number of violations by code",
			},
			[]string{"code", "severity"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pact_verifier_run_duration_seconds",
				Help:    "Verification run duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
		),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.InteractionsTotal,
		m.ViolationsTotal,
		m.RunDuration,
	)
	return m
}

// Observe records one finished run.
func (m *Metrics) Observe(result *types.VerificationResult, duration time.Duration) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()

	s := result.Summary
	m.InteractionsTotal.WithLabelValues("passed").Add(float64(s.Interactions - s.FailedInteractions))
	m.InteractionsTotal.WithLabelValues("failed").Add(float64(s.FailedInteractions))
	for _, v := range result.Violations {
		m.ViolationsTotal.WithLabelValues(string(v.Code), string(v.Severity)).Inc()
	}
	m.RunDuration.Observe(duration.Seconds())
}

// WriteTextfile writes all metrics in the Prometheus text format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
