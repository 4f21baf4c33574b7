// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inductd_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inductd_http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})
)

// ObserveHTTPRequest records one completed request. Pass the chi route
// pattern, not the raw path, to keep label cardinality bounded.
func ObserveHTTPRequest(method, path, status string, seconds float64) {
	httpRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}

// IncHTTPInFlight tracks a request entering the handler chain.
func IncHTTPInFlight() { httpRequestsInFlight.Inc() }

// DecHTTPInFlight tracks a request leaving the handler chain.
func DecHTTPInFlight() { httpRequestsInFlight.Dec() }
