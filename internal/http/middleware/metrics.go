package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "challenge_api"

	// routeUnmatched labels requests that hit no registered route, so
	// scanners probing random URLs cannot blow up label cardinality.
	routeUnmatched = "unmatched"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route template and status code.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route template.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_inflight",
		Help:      "Requests currently being served.",
	})

	httpResponseBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_response_size_bytes",
		Help:      "Response body size by method and route template.",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 8), // 256B..4MiB
	}, []string{"method", "route"})

	rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429, split into reads and writes.",
	}, []string{"kind"})

	idempotentReplays = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "idempotent_replays_total",
		Help:      "Requests whose Idempotency-Key matched a stored result.",
	}, []string{"scope"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, httpInflight, httpResponseBytes, rateLimited, idempotentReplays)
}

// Metrics records Prometheus request metrics. Series are labelled with the
// Gin route template (c.FullPath), never the raw URL.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := routeLabel(c)
		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		// Size is -1 when nothing was written (e.g. 204, 304).
		if n := c.Writer.Size(); n >= 0 {
			httpResponseBytes.WithLabelValues(method, route).Observe(float64(n))
		}
	}
}

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return routeUnmatched
}

func requestKind(method string) string {
	if isWrite(method) {
		return "write"
	}
	return "read"
}
