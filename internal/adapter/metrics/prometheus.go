package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bank"

// Prometheus implements ports.Metrics with Prometheus collectors.
type Prometheus struct {
	commandCounter  *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	sessionsTotal   prometheus.Counter
}

// NewPrometheus instantiates the collectors. Call Register before use.
func NewPrometheus() *Prometheus {
	return &Prometheus{
		// commandCounter is used to expose 'bank_commands_total'
		commandCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "number of protocol commands handled",
			},
			[]string{"command", "outcome"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "histogram of command handling latencies",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"command"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "number of open client sessions",
			},
		),
		sessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "number of client sessions accepted",
			},
		),
	}
}

// Register adds every collector to registry.
func (m *Prometheus) Register(registry prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.commandCounter,
		m.commandDuration,
		m.activeSessions,
		m.sessionsTotal,
	} {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// SessionOpened counts an accepted connection.
func (m *Prometheus) SessionOpened() {
	m.sessionsTotal.Inc()
	m.activeSessions.Inc()
}

// SessionClosed marks a connection as finished.
func (m *Prometheus) SessionClosed() {
	m.activeSessions.Dec()
}

// CommandHandled records one command and its latency.
// An empty code is reported as "unknown".
func (m *Prometheus) CommandHandled(code string, outcome string, elapsed time.Duration) {
	if code == "" {
		code = "unknown"
	}
	m.commandCounter.With(prometheus.Labels{"command": code, "outcome": outcome}).Inc()
	m.commandDuration.With(prometheus.Labels{"command": code}).Observe(elapsed.Seconds())
}
