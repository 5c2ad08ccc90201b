package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Instance metrics
	InstancesByStatus *prometheus.GaugeVec
	ProfilesCreated   prometheus.Counter
	ProfilesRemoved   prometheus.Counter

	// Command metrics
	LaunchesTotal prometheus.Counter
	LaunchErrors  prometheus.Counter
	StopsTotal    prometheus.Counter
	StopErrors    prometheus.Counter

	// Reconciliation metrics
	ReconcileTicks    prometheus.Counter
	ReconcileErrors   prometheus.Counter
	ReconcileDuration prometheus.Histogram
	Transitions       *prometheus.CounterVec
	ForeignProcesses  prometheus.Counter

	// Guard metrics
	GuardActive      prometheus.Gauge
	GuardTransitions prometheus.Counter
	GuardErrors      prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge

	startTime time.Time
	Uptime    prometheus.Gauge
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multibox_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "multibox_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		InstancesByStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "multibox_instances",
				Help: "Number of managed instances by status",
			},
			[]string{"status"},
		),
		ProfilesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multibox_profiles_created_total",
			Help: "Total number of profiles added",
		}),
		ProfilesRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multibox_profiles_removed_total",
			Help: "Total number of profiles removed",
		}),

		LaunchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multibox_launches_total",
			Help: "Total number of launch commands dispatched",
		}),
		LaunchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multibox_launch_errors_total",
			Help: "Total number of failed launch commands",
		}),
		StopsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multibox_stops_total",
			Help: "Total number of stop commands dispatched",
		}),
		StopErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multibox_stop_errors_total",
			Help: "Total number of failed stop commands",
		}),

		ReconcileTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multibox_reconcile_ticks_total",
			Help: "Total number of reconciliation ticks",
		}),
		ReconcileErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multibox_reconcile_errors_total",
			Help: "Total number of aborted reconciliation ticks",
		}),
		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "multibox_reconcile_duration_seconds",
			Help:    "Reconciliation tick duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		Transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multibox_transitions_total",
				Help: "Instance state transitions observed by reconciliation",
			},
			[]string{"kind"},
		),
		ForeignProcesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multibox_foreign_processes_total",
			Help: "Observed processes attributed to no managed profile",
		}),

		GuardActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "multibox_guard_active",
			Help: "1 when the exclusive launcher tool is active",
		}),
		GuardTransitions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multibox_guard_transitions_total",
			Help: "Total number of guard state transitions",
		}),
		GuardErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multibox_guard_errors_total",
			Help: "Total number of failed exclusivity checks",
		}),

		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "multibox_ws_connections",
			Help: "Active WebSocket connections",
		}),

		Uptime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "multibox_uptime_seconds",
			Help: "Server uptime in seconds",
		}),
	}
}

// Transition kinds recorded by the reconciliation loop.
const (
	TransitionPromotion    = "promotion"
	TransitionMigration    = "pid_migration"
	TransitionExternalStop = "external_stop"
	TransitionDriftStart   = "drift_start"
)

// RecordHTTPRequest records one HTTP request observation
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetInstanceCounts replaces the per-status instance gauges
func (m *Metrics) SetInstanceCounts(stopped, launching, running int) {
	m.InstancesByStatus.WithLabelValues("stopped").Set(float64(stopped))
	m.InstancesByStatus.WithLabelValues("launching").Set(float64(launching))
	m.InstancesByStatus.WithLabelValues("running").Set(float64(running))
}

// UpdateUptime refreshes the uptime gauge
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
