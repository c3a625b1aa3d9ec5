package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskdesk_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	taskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_task_transitions_total",
		Help: "Count of task status transitions",
	}, []string{"from", "to"})

	completionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_completion_rejections_total",
		Help: "Count of updates rejected by the completion gate, by offending field",
	}, []string{"field"})

	authzDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_authz_denials_total",
		Help: "Count of denied authorization checks",
	}, []string{"role", "resource", "action"})

	tasksByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taskdesk_tasks",
		Help: "Number of tasks by status",
	}, []string{"status"})

	overdueTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskdesk_tasks_overdue",
		Help: "Number of non-completed tasks past their due date",
	})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_login_attempts_total",
		Help: "Login attempts by surface and result",
	}, []string{"surface", "result"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_task_events_total",
		Help: "Task change events published to subscribers",
	}, []string{"type", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveTransition records a task moving between statuses.
func ObserveTransition(from, to string) {
	if from == to {
		return
	}
	taskTransitions.WithLabelValues(from, to).Inc()
}

// ObserveCompletionRejection counts one rejected field per failed completion attempt.
func ObserveCompletionRejection(field string) {
	completionRejections.WithLabelValues(field).Inc()
}

// ObserveAuthzDenial counts a denied permission check.
func ObserveAuthzDenial(role, resource, action string) {
	authzDenials.WithLabelValues(role, resource, action).Inc()
}

// SetTaskCounts replaces the per-status gauges.
func SetTaskCounts(counts map[string]int) {
	tasksByStatus.Reset()
	for status, n := range counts {
		tasksByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// SetOverdue sets the overdue gauge.
func SetOverdue(count int) {
	if count < 0 {
		count = 0
	}
	overdueTasks.Set(float64(count))
}

// ObserveLogin records a login attempt.
func ObserveLogin(surface, result string) {
	loginAttempts.WithLabelValues(surface, result).Inc()
}

// ObserveEvent records a published task event.
func ObserveEvent(eventType, result string) {
	eventsPublished.WithLabelValues(eventType, result).Inc()
}
