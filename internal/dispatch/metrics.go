package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for engine activity. A nil *Metrics
// records nothing.
type Metrics struct {
	actions        *prometheus.CounterVec
	retries        *prometheus.CounterVec
	verifyFailures *prometheus.CounterVec
	bridgeOutcomes *prometheus.CounterVec
	parseFailures  prometheus.Counter
	turnDuration   *prometheus.HistogramVec
}

// MustNewMetrics builds the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil). Registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "steward",
				Subsystem: "engine",
				Name:      "actions_total",
				Help:      "Actions processed, by kind and outcome status.",
			},
			[]string{"kind", "status"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "steward",
				Subsystem: "engine",
				Name:      "remote_retries_total",
				Help:      "Remote calls that were retried after a retryable error.",
			},
			[]string{"op"},
		),
		verifyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "steward",
				Subsystem: "engine",
				Name:      "verification_failures_total",
				Help:      "Mutations whose read-after-write check did not confirm the change.",
			},
			[]string{"service"},
		),
		bridgeOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "steward",
				Subsystem: "bridge",
				Name:      "requests_total",
				Help:      "Confirmation requests by bridge and outcome.",
			},
			[]string{"bridge", "outcome"},
		),
		parseFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "steward",
				Subsystem: "engine",
				Name:      "parse_failures_total",
				Help:      "Planner responses that could not be parsed into actions.",
			},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "steward",
				Subsystem: "engine",
				Name:      "turn_duration_seconds",
				Help:      "Wall time spent executing one turn, including confirmation waits.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"state"},
		),
	}
	reg.MustRegister(m.actions, m.retries, m.verifyFailures, m.bridgeOutcomes, m.parseFailures, m.turnDuration)
	return m
}

func (m *Metrics) action(kind string, status Status) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, string(status)).Inc()
}

func (m *Metrics) retry(op string, _ int, _ error) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) verifyFailure(service string) {
	if m == nil {
		return
	}
	m.verifyFailures.WithLabelValues(service).Inc()
}

// BridgeOutcome records a confirmation outcome; it matches the bridge
// observer signature
func (m *Metrics) BridgeOutcome(bridge, outcome string) {
	if m == nil {
		return
	}
	m.bridgeOutcomes.WithLabelValues(bridge, outcome).Inc()
}

func (m *Metrics) parseFailure() {
	if m == nil {
		return
	}
	m.parseFailures.Inc()
}

func (m *Metrics) turn(state State, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turnDuration.WithLabelValues(state.String()).Observe(elapsed.Seconds())
}
