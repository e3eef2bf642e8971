package provider

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ServiceRequestsTotal counts remote service requests by response status
	ServiceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontoma_service_requests_total",
			Help: "Total number of requests sent to remote mapping services",
		},
		[]string{"service", "status"},
	)

	// ServiceDurationSeconds tracks remote service latency per attempt
	ServiceDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ontoma_service_duration_seconds",
			Help:    "Latency of remote mapping service requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)

func init() {
	prometheus.MustRegister(ServiceRequestsTotal)
	prometheus.MustRegister(ServiceDurationSeconds)
}

func observe(service ServiceID, status int, err error, d time.Duration) {
	ServiceRequestsTotal.WithLabelValues(string(service), statusLabel(status, err)).Inc()
	ServiceDurationSeconds.WithLabelValues(string(service)).Observe(d.Seconds())
}
