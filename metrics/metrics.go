// Package metrics provides Prometheus instruments for the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No session ids in labels: command and result values are closed sets.
var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drone_bridge_sessions_active",
		Help: "Current number of open operator sessions.",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drone_bridge_sessions_total",
		Help: "Total number of operator sessions that completed the handshake.",
	})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drone_bridge_commands_total",
		Help: "Total number of inbound command frames, by command type and result.",
	}, []string{"command", "result"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "drone_bridge_dispatch_duration_seconds",
		Help:    "Latency of IPC method calls to the flight logic, by command type.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"command"})

	AnnounceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drone_bridge_announce_failures_total",
		Help: "Total number of presence announces that failed to publish.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drone_bridge_events_dropped_total",
		Help: "Total number of telemetry events dropped because the queue was full.",
	})
)

// RecordCommand counts one handled frame.
func RecordCommand(command, result string) {
	CommandsTotal.WithLabelValues(command, result).Inc()
}

// ObserveDispatch records the duration of one IPC call.
func ObserveDispatch(command string, d time.Duration) {
	DispatchDuration.WithLabelValues(command).Observe(d.Seconds())
}
