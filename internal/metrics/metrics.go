// Package metrics exposes Prometheus collectors for simulation runs,
// predictions and rate limiting. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "celldyn"

// Run outcomes.
const (
	OutcomeComplete = "complete"
	OutcomeExtinct  = "extinct"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// UnknownCellLine labels runs rejected before their cell line resolved.
const UnknownCellLine = "unknown"

// Prediction kinds.
const (
	PredictionDose   = "optimal_dose"
	PredictionGrowth = "growth"
)

// Metrics holds celldyn's collectors and the registry they are registered on.
type Metrics struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	runSeconds  prometheus.Histogram
	steps       prometheus.Counter
	finalViable prometheus.Histogram
	predictions *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

// New creates a Metrics with a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_runs_total",
			Help:      "Simulation runs by cell line and outcome.",
		}, []string{"cell_line", "outcome"}),
		runSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_run_seconds",
			Help:      "Wall-clock duration of simulation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_steps_total",
			Help:      "Time steps executed across all runs.",
		}),
		finalViable: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_final_viable_cells",
			Help:      "Viable cells in the last snapshot of each run.",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 7),
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-operation rate limiter.",
		}, []string{"operation"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs,
		m.runSeconds,
		m.steps,
		m.finalViable,
		m.predictions,
		m.rateLimited,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records one finished (or rejected) run. steps and finalViable
// are ignored for rejected and failed runs.
func (m *Metrics) ObserveRun(cellLine, outcome string, steps, finalViable int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(cellLine, outcome).Inc()
	if outcome == OutcomeRejected || outcome == OutcomeFailed {
		return
	}
	m.runSeconds.Observe(elapsed.Seconds())
	m.steps.Add(float64(steps))
	m.finalViable.Observe(float64(finalViable))
}

// ObservePrediction records one prediction call.
func (m *Metrics) ObservePrediction(kind string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeComplete
	if err != nil {
		outcome = OutcomeRejected
	}
	m.predictions.WithLabelValues(kind, outcome).Inc()
}

// RateLimited records a request rejected for op.
func (m *Metrics) RateLimited(op string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(op).Inc()
}
