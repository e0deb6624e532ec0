// Package metrics exposes Prometheus instrumentation for the supervisor.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Metrics holds the supervisor collectors.
type Metrics struct {
	runs           *prometheus.CounterVec
	liveActions    prometheus.Gauge
	runDuration    *prometheus.HistogramVec
	stopFailures   prometheus.Counter
	expirations    prometheus.Counter
	appTransitions *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fgaction_runs_total",
				Help: "Completed action runs by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		liveActions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fgaction_live_actions",
				Help: "Actions currently holding an identifier",
			},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fgaction_run_duration_seconds",
				Help:    "Wall time from identifier acquisition to cleanup",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"strategy"},
		),
		stopFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fgaction_stop_failures_total",
				Help: "Native stop calls that returned an error",
			},
		),
		expirations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fgaction_expirations_total",
				Help: "Execution budget expiration notices delivered",
			},
		),
		appTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fgaction_app_state_transitions_total",
				Help: "Host application foreground/background transitions observed during headless runs",
			},
			[]string{"state"},
		),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{
		m.runs, m.liveActions, m.runDuration, m.stopFailures, m.expirations, m.appTransitions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RunFinished records a completed run.
func (m *Metrics) RunFinished(strategy, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(strategy, outcome).Inc()
	if outcome != OutcomeRejected {
		m.runDuration.WithLabelValues(strategy).Observe(seconds)
	}
}

// SetLive sets the number of live actions.
func (m *Metrics) SetLive(n int) {
	if m == nil {
		return
	}
	m.liveActions.Set(float64(n))
}

// StopFailed counts a failed native stop.
func (m *Metrics) StopFailed() {
	if m == nil {
		return
	}
	m.stopFailures.Inc()
}

// Expired counts a delivered expiration notice.
func (m *Metrics) Expired() {
	if m == nil {
		return
	}
	m.expirations.Inc()
}

// AppStateChanged counts a host application transition.
func (m *Metrics) AppStateChanged(state string) {
	if m == nil {
		return
	}
	m.appTransitions.WithLabelValues(state).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
