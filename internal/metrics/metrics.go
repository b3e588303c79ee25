// Package metrics exposes Prometheus metrics for the match flows.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flyingdarts"

// Push outcomes
const (
	PushDelivered = "delivered"
	PushGone      = "gone"
	PushFailed    = "failed"
)

// Metrics groups the flow metrics. A nil *Metrics records nothing.
type Metrics struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	throws          prometheus.Counter
	matchesFinished prometheus.Counter
	pushes          *prometheus.CounterVec
	conflicts       prometheus.Counter
	connections     prometheus.Gauge
}

// New registers the metrics on reg
func New(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		commands: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "commands_total",
			Help:      "Match commands by action and outcome",
		}, []string{"action", "outcome"}),
		commandDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "command_duration_seconds",
			Help:      "Match command latency by action",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		throws: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "throws_total",
			Help:      "Throws recorded",
		}),
		matchesFinished: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "finished_total",
			Help:      "Matches that reached a winner",
		}),
		pushes: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "pushes_total",
			Help:      "Notification pushes by result",
		}, []string{"result"}),
		conflicts: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "write_conflicts_total",
			Help:      "Aggregate saves rejected by the version check",
		}),
		connections: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open WebSocket connections on this instance",
		}),
	}
}

// Command records the outcome and latency of one command
func (m *Metrics) Command(action string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.commands.WithLabelValues(action, outcome).Inc()
	m.commandDuration.WithLabelValues(action).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ThrowRecorded() {
	if m != nil {
		m.throws.Inc()
	}
}

func (m *Metrics) MatchFinished() {
	if m != nil {
		m.matchesFinished.Inc()
	}
}

// Push records one fan-out push result (PushDelivered, PushGone, PushFailed)
func (m *Metrics) Push(result string) {
	if m != nil {
		m.pushes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Conflict() {
	if m != nil {
		m.conflicts.Inc()
	}
}

// Connections sets the open connection gauge
func (m *Metrics) Connections(n int) {
	if m != nil {
		m.connections.Set(float64(n))
	}
}
