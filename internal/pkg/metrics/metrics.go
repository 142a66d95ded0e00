package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered through promauto so no explicit wiring is needed
// beyond importing this package.

var (
	// HttpRequestsTotal counts processed HTTP requests, labeled by method,
	// route and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseregistry_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HttpRequestDuration measures server response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courseregistry_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// StoreOpsTotal counts key-value store operations by kind and outcome.
	StoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseregistry_store_ops_total",
			Help: "Total number of key-value store operations",
		},
		[]string{"op", "outcome"},
	)

	// CoursesTotal tracks the current number of indexed course records.
	CoursesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courseregistry_courses_total",
			Help: "Current number of course records in the index set",
		},
	)
)
