// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the Prometheus collectors of the directory API, all under
// the billsplit_http_ prefix. Routes are labelled by their registered
// pattern (/api/v1/groups/:id, not the raw URL); requests that matched no
// route share the "unmatched" label. Collectors register with the default
// registry on import.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "billsplit"
	metricsSubsystem = "http"
	unmatchedPath    = "unmatched"
)

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

var (
	httpReqs = counterVec("requests_total", "Requests by method, route and status code.", "method", "route", "status")

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "request_duration_seconds",
		Help:      "Request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_inflight",
		Help:      "Requests currently being served.",
	})

	// Bodies are capped at 1 MiB; a groups listing is the largest answer.
	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "response_size_bytes",
		Help:      "Response body size by method and route.",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 8), // 128B..2MiB
	}, []string{"method", "route"})

	authFailures = counterVec("auth_failures_total", "Requests rejected by bearer authentication, by reason.", "reason")
	rateLimited  = counterVec("rate_limited_total", "Requests refused with 429, by kind (read or write).", "kind")
	idemReplays  = counterVec("idempotent_replays_total", "Requests whose Idempotency-Key matched an earlier result, by scope.", "scope")
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, authFailures, rateLimited, idemReplays)
}

// Metrics records count, latency and response size of every request and
// tracks the number in flight. Install it before the handlers it measures.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedPath
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}
