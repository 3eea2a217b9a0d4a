package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests that matched no registered route, so stray
// paths cannot blow up label cardinality.
const unmatchedRoute = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	// Status is left out to keep the histogram small.
	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "Size of HTTP responses in bytes.",
		Buckets: prometheus.ExponentialBuckets(128, 4, 8), // 128B..2MiB
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "Current number of in-flight HTTP requests.",
	})

	// Event streams stay open for minutes; they get their own gauge.
	httpStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_streams_open",
		Help: "Current number of open server-sent event streams.",
	})

	httpRateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by a rate limiter, by route.",
	}, []string{"path"})

	httpPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_panics_total",
		Help: "Handler panics recovered, by route.",
	}, []string{"path"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpRespSize, httpInflight, httpStreams, httpRateLimited, httpPanics)
}

// Metrics records request counts, latency, and response sizes labeled by
// route pattern (e.g. /api/v1/sessions/:id/text). Event streams are counted
// but kept out of the latency histogram and the in-flight gauge.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		gauge := httpInflight
		stream := IsEventStream(c.Request)
		if stream {
			gauge = httpStreams
		}
		gauge.Inc()
		defer gauge.Dec()

		c.Next()

		route, method := routeLabel(c), c.Request.Method
		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		if !stream {
			httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		}
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}

// IsEventStream reports whether the client asked for server-sent events.
func IsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedRoute
}
