// Package telemetry holds the process-wide Prometheus instruments.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts fresh cache hits per cache instance.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_hits_total",
			Help: "Total number of fresh cache hits",
		},
		[]string{"cache"},
	)

	// CacheMisses counts cache misses (absent or expired) per cache instance.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// CacheEvictions counts LRU evictions per cache instance.
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_evictions_total",
			Help: "Total number of LRU cache evictions",
		},
		[]string{"cache"},
	)

	// CacheStaleReads counts degraded reads that ignored entry expiry.
	CacheStaleReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_stale_reads_total",
			Help: "Total number of stale cache reads served as a fallback",
		},
		[]string{"cache"},
	)

	// UpstreamRequests counts upstream API calls by operation and outcome.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_upstream_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"operation", "outcome"}, // outcome: "ok" or "error"
	)

	// HTTPRequests counts dashboard API requests by route and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "Total number of dashboard HTTP requests",
		},
		[]string{"route", "status"},
	)
)
