package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probe outcomes.
const (
	OutcomeReachable   = "reachable"
	OutcomeUnreachable = "unreachable"
	OutcomeDiscarded   = "discarded"
)

// Metrics holds the Prometheus metrics of the session shell.
type Metrics struct {
	ProbesTotal        *prometheus.CounterVec
	ProbeDuration      prometheus.Histogram
	BackendReachable   prometheus.Gauge
	TeardownsTotal     *prometheus.CounterVec
	TeardownsCollapsed prometheus.Counter
	SignOutFailures    prometheus.Counter
	StateClearFailures prometheus.Counter
	Subscribers        prometheus.Gauge
}

// New registers the metrics on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProbesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "library_shell_liveness_probes_total",
			Help: "Health probes by outcome",
		}, []string{"outcome"}),
		ProbeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "library_shell_liveness_probe_duration_ms",
			Help:    "Latency of backend health probes in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		BackendReachable: f.NewGauge(prometheus.GaugeOpts{
			Name: "library_shell_backend_reachable",
			Help: "Result of the most recent probe (1=reachable, 0=unreachable)",
		}),
		TeardownsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "library_shell_teardowns_total",
			Help: "Session teardowns performed, by trigger",
		}, []string{"reason"}),
		TeardownsCollapsed: f.NewCounter(prometheus.CounterOpts{
			Name: "library_shell_teardowns_collapsed_total",
			Help: "Teardown requests absorbed by one already in progress or complete",
		}),
		SignOutFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "library_shell_signout_failures_total",
			Help: "Identity provider sign-out calls that failed during teardown",
		}),
		StateClearFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "library_shell_state_clear_failures_total",
			Help: "Local state clears that failed during teardown",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "library_shell_identity_subscribers",
			Help: "Observers registered on the session authority store",
		}),
	}
}

// ObserveProbe records one probe outcome and its latency.
func (m *Metrics) ObserveProbe(outcome string, durationMs float64) {
	m.ProbesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeDiscarded {
		return
	}
	m.ProbeDuration.Observe(durationMs)
	if outcome == OutcomeReachable {
		m.BackendReachable.Set(1)
	} else {
		m.BackendReachable.Set(0)
	}
}

// IncTeardown counts a teardown performed for reason.
func (m *Metrics) IncTeardown(reason string) {
	m.TeardownsTotal.WithLabelValues(reason).Inc()
}

// IncTeardownCollapsed counts a teardown request that had no effect.
func (m *Metrics) IncTeardownCollapsed() {
	m.TeardownsCollapsed.Inc()
}

// IncSignOutFailures counts a failed remote sign-out.
func (m *Metrics) IncSignOutFailures() {
	m.SignOutFailures.Inc()
}

// IncStateClearFailures counts a failed local state clear.
func (m *Metrics) IncStateClearFailures() {
	m.StateClearFailures.Inc()
}

// SetSubscribers tracks the number of store observers.
func (m *Metrics) SetSubscribers(n int) {
	m.Subscribers.Set(float64(n))
}
