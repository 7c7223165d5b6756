// Package metrics registers the Prometheus metrics used by the rpc edge
// proxy. Collectors are registered at import time via promauto so the
// /metrics handler can be mounted without further setup.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts completed requests labelled by http method,
	// response status code, and cache outcome ("HIT", "MISS", "BYPASS",
	// "none").
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_proxy_requests_total",
			Help: "Total number of requests handled by the edge proxy.",
		},
		[]string{"method", "status", "cache"},
	)

	// RequestDuration observes end-to-end request latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edge_proxy_request_duration_seconds",
			Help:    "End-to-end request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// ProviderAttemptsTotal counts origin fetch attempts labelled by
	// provider host and outcome ("success", "timeout", "network_error",
	// "bad_status").
	ProviderAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_proxy_provider_attempts_total",
			Help: "Total origin fetch attempts by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderExhaustedTotal counts requests that failed every configured
	// provider attempt.
	ProviderExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_proxy_provider_exhausted_total",
			Help: "Total requests that exhausted the provider pool.",
		},
	)

	// CacheOperationsTotal counts edge cache operations labelled by
	// operation ("lookup", "store") and outcome ("hit", "miss", "error", "ok").
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_proxy_cache_operations_total",
			Help: "Total edge cache operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)
