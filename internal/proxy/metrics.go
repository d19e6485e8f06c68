package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	proxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Requests forwarded to the backend by surface, method and status",
		},
		[]string{"surface", "method", "status"},
	)

	proxyErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_errors_total",
			Help: "Failed backend exchanges by surface and error code",
		},
		[]string{"surface", "code"},
	)

	proxyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_backend_duration_seconds",
			Help:    "Backend round-trip latency by surface",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"surface"},
	)
)
