package observability

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Gate metrics
	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Authorization decisions by outcome and permission",
		},
		[]string{"outcome", "permission"},
	)

	SessionValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_validations_total",
			Help: "Session validations by resulting status",
		},
		[]string{"status"},
	)

	SessionLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "session_lookup_duration_seconds",
			Help:    "Latency of session and user lookups during validation",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
	)

	CSRFFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csrf_failures_total",
			Help: "State-changing requests rejected for a missing or invalid CSRF token",
		},
	)

	AuditEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_published_total",
			Help: "Audit events handed to the message broker",
		},
		[]string{"type", "result"},
	)

	// WebSocket metrics
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active notification WebSocket connections",
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications handed to the hub, by delivery result",
		},
		[]string{"result"},
	)

	// Database metrics
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordDBStats copies connection pool stats into the DB gauges
func RecordDBStats(stats sql.DBStats) {
	DBConnectionsOpen.Set(float64(stats.OpenConnections))
	DBConnectionsInUse.Set(float64(stats.InUse))
	DBConnectionsIdle.Set(float64(stats.Idle))
}
