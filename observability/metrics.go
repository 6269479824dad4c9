// Package observability provides Prometheus metrics and gin middleware for
// monitoring cellbox.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ExecutionBuckets covers snippets from a few milliseconds up to the
// execution timeout
var ExecutionBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}

// Execution outcomes
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

var (
	// RequestsTotal counts HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbox_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cellbox_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ExecutionsTotal counts cell executions by outcome.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbox_executions_total",
			Help: "Cell executions",
		},
		[]string{"outcome"},
	)

	// ExecutionDuration records how long cell executions take, lock wait and
	// namespace persistence included.
	ExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cellbox_execution_duration_seconds",
			Help:    "Cell execution duration",
			Buckets: ExecutionBuckets,
		},
	)

	// ImagesTotal counts figures returned to clients.
	ImagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellbox_images_total",
			Help: "Rendered figures",
		},
	)

	// NotebooksTotal counts notebook creations and deletions.
	NotebooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbox_notebook_operations_total",
			Help: "Notebook operations",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ExecutionsTotal,
		ExecutionDuration,
		ImagesTotal,
		NotebooksTotal,
	)
}

// ObserveExecution records one finished cell execution
func ObserveExecution(outcome string, images int, elapsed time.Duration) {
	ExecutionsTotal.WithLabelValues(outcome).Inc()
	ExecutionDuration.Observe(elapsed.Seconds())
	if images > 0 {
		ImagesTotal.Add(float64(images))
	}
}

// Middleware records request count and duration. Routes are labelled with
// their pattern, never the concrete path, so user IDs do not leak into label
// values.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status()/100) + "xx"

		RequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.Handler()
}
