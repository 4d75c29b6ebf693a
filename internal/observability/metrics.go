package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce               sync.Once
	httpRequestsTotal          *prometheus.CounterVec
	httpLatencySeconds         *prometheus.HistogramVec
	httpErrorsTotal            *prometheus.CounterVec
	homeworkClassificationsTot *prometheus.CounterVec
	homeworkStatsRequestsTotal *prometheus.CounterVec
	attachmentRejectedTotal    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		homeworkClassificationsTot = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homework_classifications_total",
			Help: "Homework items classified per urgency status.",
		}, []string{"status"})

		homeworkStatsRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homework_stats_requests_total",
			Help: "Homework stats requests by cache outcome.",
		}, []string{"cache"})

		attachmentRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homework_attachment_rejected_total",
			Help: "Rejected homework attachments by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			homeworkClassificationsTot,
			homeworkStatsRequestsTotal,
			attachmentRejectedTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// HomeworkClassifications counts urgency classifications served to clients.
func HomeworkClassifications() *prometheus.CounterVec {
	RegisterMetrics()
	return homeworkClassificationsTot
}

// HomeworkStatsRequests counts stats lookups by cache outcome.
func HomeworkStatsRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return homeworkStatsRequestsTotal
}

// AttachmentRejected counts rejected attachments.
func AttachmentRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return attachmentRejectedTotal
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
