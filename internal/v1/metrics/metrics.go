package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat server.
//
// Naming convention: namespace_subsystem_name
// - namespace: parlor (application-level grouping)
// - subsystem: chatd (daemon-level grouping)
// - name: specific metric (connections_active, commands_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, sessions, rooms)
// - Counter: Cumulative events (commands, broadcasts, errors)
// - Histogram: Latency distributions (command handling time)

var (
	// ActiveConnections tracks the current number of open TCP connections (Gauge - current state)
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "connections_active",
		Help:      "Current number of open client connections",
	})

	// SessionsByState tracks sessions per state machine phase (GaugeVec with state label)
	SessionsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "sessions_active",
		Help:      "Current number of sessions per state (guest, logged_in, in_room)",
	}, []string{"state"})

	// OpenRooms tracks the number of rooms loaded in the registry (Gauge - current state)
	OpenRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "rooms_open",
		Help:      "Current number of rooms in the registry",
	})

	// CommandsTotal tracks dispatched commands by verb (CounterVec - cumulative)
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "commands_total",
		Help:      "Total commands dispatched, by verb",
	}, []string{"verb"})

	// CommandDuration tracks time spent handling a command (HistogramVec - latency distribution)
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "command_duration_seconds",
		Help:      "Time spent handling a dispatched command",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"verb"})

	// MessagesBroadcast counts chat lines fanned out to room peers (Counter - cumulative)
	MessagesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "messages_broadcast_total",
		Help:      "Total chat lines broadcast to room peers",
	})

	// BroadcastErrors counts failed peer writes during fan-out (Counter - cumulative)
	BroadcastErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "broadcast_errors_total",
		Help:      "Total failed peer writes during broadcast",
	})

	// LoginsTotal counts successful logins and registrations (Counter - cumulative)
	LoginsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "logins_total",
		Help:      "Total successful logins and registrations",
	})

	// LoginFailures counts rejected login and registration attempts (Counter - cumulative)
	LoginFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "login_failures_total",
		Help:      "Total rejected login and registration attempts",
	})

	// ModerationActions counts kicks, bans and mutes by action (CounterVec - cumulative)
	ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "moderation_actions_total",
		Help:      "Total moderation actions, by action",
	}, []string{"action"})

	// PersistenceErrors counts failed JSON store writes (Counter - cumulative)
	PersistenceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "persistence_errors_total",
		Help:      "Total failed JSON store writes",
	})

	// TimeoutsSwept counts sessions downgraded by the inactivity sweeper (Counter - cumulative)
	TimeoutsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "sessions_timed_out_total",
		Help:      "Total sessions returned to the lobby by the inactivity sweeper",
	})

	// ConnectionsThrottled counts connections rejected by the per-IP rate gate (Counter - cumulative)
	ConnectionsThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "connections_throttled_total",
		Help:      "Total connections rejected by the per-IP rate limit",
	})

	// CircuitBreakerState reports the events publisher breaker state (GaugeVec, 0=closed 1=open 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per dependency (0=closed, 1=open, 2=half-open)",
	}, []string{"dependency"})

	// CircuitBreakerFailures counts publishes dropped by an open breaker (CounterVec - cumulative)
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "chatd",
		Name:      "circuit_breaker_failures_total",
		Help:      "Operations dropped because a circuit breaker was open",
	}, []string{"dependency"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
