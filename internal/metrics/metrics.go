package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tracks the number of outbound calls to the Study Planner platform.
	PlannerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_api_requests_total",
			Help: "Total number of platform API requests made (by operation, method and status).",
		},
		[]string{"op", "method", "status"},
	)

	// Measures duration of platform API requests.
	PlannerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planner_api_request_duration_seconds",
			Help:    "Duration of platform API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 18), // 1ms → ~2m, chat calls run long
		},
		[]string{"op", "method"},
	)

	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_refresh_total",
			Help: "Number of token renewal cycles by outcome.",
		},
		[]string{"outcome"},
	)

	RefreshJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_refresh_joined_total",
			Help: "Number of callers that joined an in-flight renewal instead of starting one.",
		},
	)

	TerminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_terminations_total",
			Help: "Number of forced session terminations by reason.",
		},
		[]string{"reason"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Number of user-facing notifications emitted by severity.",
		},
		[]string{"severity"},
	)

	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Number of NATS publish failures",
		},
		[]string{"subject"},
	)
)

// ObserveDuration records the time taken for a function and updates the given histogram.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// silently ignore counters; they're not meant for duration tracking
	}
}

func IncPlannerRequest(op, method string, status int) {
	PlannerRequestsTotal.WithLabelValues(op, method, strconv.Itoa(status)).Inc()
}

func IncRefresh(outcome string) {
	RefreshTotal.WithLabelValues(outcome).Inc()
}

func IncRefreshJoined() {
	RefreshJoined.Inc()
}

func IncTermination(reason string) {
	TerminationsTotal.WithLabelValues(reason).Inc()
}

func IncNotification(severity string) {
	NotificationsTotal.WithLabelValues(severity).Inc()
}

func IncNATSPublishError(subject string) {
	NATSPublishErrors.WithLabelValues(subject).Inc()
}

// StartServer exposes /metrics on the ops port. Other ops handlers (the
// websocket stream) register on the default mux before this is called.
func StartServer(addr string) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		http.ListenAndServe(addr, nil) //nolint:errcheck
	}()
}
