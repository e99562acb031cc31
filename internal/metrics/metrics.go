package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"method", "endpoint"},
	)

	// HintRequests counts hint workflow outcomes: ready, invalid, failed, busy.
	HintRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hint_requests_total",
			Help: "Hint requests by outcome",
		},
		[]string{"outcome"},
	)

	// LogDeliveries counts event log posts: ok, failed, dropped.
	LogDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_log_deliveries_total",
			Help: "Interaction event deliveries by result",
		},
		[]string{"result"},
	)

	LiveWorkflows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hint_workflows_live",
			Help: "Hint workflows currently held by the gateway",
		},
	)
)

var initOnce sync.Once

// Init registers the collectors with the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCounter, RequestDuration, HintRequests, LogDeliveries, LiveWorkflows)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
