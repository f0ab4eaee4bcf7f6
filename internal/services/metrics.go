package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments the gateway pipeline updates
// on every request. Exposed on /metrics via promhttp.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	CacheEvents     *prometheus.CounterVec
	RateLimited     *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
	UpstreamCost    *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Gateway requests by endpoint, method and status code.",
		}, []string{"endpoint", "method", "status"}),
		CacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_events_total",
			Help: "Cache lookups by endpoint and outcome (hit or miss).",
		}, []string{"endpoint", "outcome"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Requests rejected by rate limiting, by policy.",
		}, []string{"policy"}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_upstream_latency_seconds",
			Help:    "Upstream call latency by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		UpstreamCost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_upstream_cost_total",
			Help: "Cumulative upstream-reported cost by endpoint.",
		}, []string{"endpoint"}),
	}
}
