package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "meal"
	// route label for requests that matched no route
	unmatchedRoute = "unmatched"
)

var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, matched route and status.",
	}, []string{"method", "route", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "Latency of non-streaming HTTP requests.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_inflight",
		Help:      "Requests currently being served, open streams included.",
	})

	// Photo uploads dominate request sizes; responses stay small.
	httpReqSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_size_bytes",
		Help:      "Declared size of HTTP request bodies.",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 9),
	}, []string{"method", "route"})

	streamLife = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_stream_duration_seconds",
		Help:      "Lifetime of event-stream responses.",
		Buckets:   []float64{1, 10, 60, 300, 900, 3600},
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpReqSize, streamLife)
}

// Metrics instruments every request under the matched route pattern.
// Event-stream responses are timed separately so the feed stream does not
// skew request latency.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		elapsed := time.Since(start).Seconds()

		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		if c.Request.ContentLength > 0 {
			httpReqSize.WithLabelValues(method, route).Observe(float64(c.Request.ContentLength))
		}
		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			streamLife.WithLabelValues(route).Observe(elapsed)
			return
		}
		httpLat.WithLabelValues(method, route).Observe(elapsed)
	}
}
