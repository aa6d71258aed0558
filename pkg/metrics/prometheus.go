package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder mirrors loop activity onto Prometheus metrics for
// operators who scrape the process. It is additive: the Collector remains
// the source of truth for snapshots.
type PrometheusRecorder struct {
	iterationsTotal *prometheus.CounterVec
	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	breakerTrips    *prometheus.CounterVec
	busDeliveries   prometheus.Counter
	contextPressure *prometheus.GaugeVec
	quarantineSize  prometheus.Gauge
}

// NewPrometheusRecorder registers the metric families with the default
// registerer.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		iterationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devloop_iterations_total",
				Help: "Total loop iterations by session",
			},
			[]string{"session_id"},
		),
		tasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devloop_tasks_total",
				Help: "Total dispatched task completions by session, agent, and status",
			},
			[]string{"session_id", "agent_id", "status"},
		),
		taskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devloop_task_duration_seconds",
				Help:    "Duration of dispatched tasks in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"session_id", "agent_id"},
		),
		breakerTrips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devloop_breaker_trips_total",
				Help: "Circuit breaker trips by level",
			},
			[]string{"session_id", "level"},
		),
		busDeliveries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "devloop_bus_deliveries_total",
				Help: "Total bus handler invocations",
			},
		),
		contextPressure: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "devloop_context_pressure_pct",
				Help: "Context memory pressure percentage",
			},
			[]string{"session_id"},
		),
		quarantineSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "devloop_quarantined_tests",
				Help: "Number of currently quarantined tests",
			},
		),
	}
}

// ObserveIteration counts one loop iteration.
func (p *PrometheusRecorder) ObserveIteration(sessionID string) {
	p.iterationsTotal.WithLabelValues(sessionID).Inc()
}

// ObserveTask records a task completion and its duration.
func (p *PrometheusRecorder) ObserveTask(sessionID, agentID string, success bool, duration time.Duration) {
	status := "completed"
	if !success {
		status = "failed"
	}
	p.tasksTotal.WithLabelValues(sessionID, agentID, status).Inc()
	p.taskDuration.WithLabelValues(sessionID, agentID).Observe(duration.Seconds())
}

// ObserveBreakerTrip counts a breaker opening at the given level.
func (p *PrometheusRecorder) ObserveBreakerTrip(sessionID, level string) {
	p.breakerTrips.WithLabelValues(sessionID, level).Inc()
}

// AddBusDeliveries counts handler invocations from a delivery burst.
func (p *PrometheusRecorder) AddBusDeliveries(count int) {
	p.busDeliveries.Add(float64(count))
}

// SetContextPressure publishes the current pressure percentage.
func (p *PrometheusRecorder) SetContextPressure(sessionID string, pct float64) {
	p.contextPressure.WithLabelValues(sessionID).Set(pct)
}

// SetQuarantineSize publishes the quarantined test count.
func (p *PrometheusRecorder) SetQuarantineSize(n int) {
	p.quarantineSize.Set(float64(n))
}
