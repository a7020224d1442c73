package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gigflow"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by endpoint and status code.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "code"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gig_transitions_total",
			Help:      "Committed gig and application transitions by action.",
		},
		[]string{"action"},
	)

	guardRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_rejections_total",
			Help:      "Actions refused by a marketplace guard, by action and reason.",
		},
		[]string{"action", "reason"},
	)

	calendarTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_tasks_total",
			Help:      "Calendar worker tasks by type and result.",
		},
		[]string{"type", "result"},
	)

	calendarFailed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calendar_failed_tasks",
			Help:      "Calendar tasks that ran out of retries.",
		},
	)

	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events published on the bus.",
		},
		[]string{"type"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, transitions, guardRejections, calendarTasks, calendarFailed, events)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveHTTP records the latency of a finished request.
func ObserveHTTP(endpoint, code string, seconds float64) {
	httpDuration.WithLabelValues(endpoint, code).Observe(seconds)
}

func IncTransition(action string) {
	transitions.WithLabelValues(action).Inc()
}

func IncGuardRejection(action, reason string) {
	guardRejections.WithLabelValues(action, reason).Inc()
}

func IncCalendarTask(taskType, result string) {
	calendarTasks.WithLabelValues(taskType, result).Inc()
}

// SetCalendarFailed reports how many calendar tasks sit in the failed state.
func SetCalendarFailed(n int) {
	calendarFailed.Set(float64(n))
}

func IncEvent(eventType string) {
	events.WithLabelValues(eventType).Inc()
}
