// Package observability exposes the client-side Prometheus metrics for the
// SDK. Collectors are registered lazily on first use so importing the module
// costs nothing until a request is made.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type clientMetrics struct {
	requests         *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	replayRejections prometheus.Counter
}

var (
	clientOnce     sync.Once
	clientRegistry *clientMetrics
)

// Client returns the lazily-initialised metrics registry used to record
// outbound API activity.
func Client() *clientMetrics {
	clientOnce.Do(func() {
		clientRegistry = &clientMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nebulauth",
				Subsystem: "client",
				Name:      "requests_total",
				Help:      "Total outbound API requests segmented by endpoint and outcome.",
			}, []string{"endpoint", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nebulauth",
				Subsystem: "client",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for outbound API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint"}),
			replayRejections: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nebulauth",
				Subsystem: "client",
				Name:      "replay_rejections_total",
				Help:      "Requests rejected locally by the strict replay guard.",
			}),
		}
		prometheus.MustRegister(
			clientRegistry.requests,
			clientRegistry.latency,
			clientRegistry.replayRejections,
		)
	})
	return clientRegistry
}

// ObserveRequest records one completed request attempt.
func (m *clientMetrics) ObserveRequest(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, outcome).Inc()
	m.latency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ReplayRejected records a strict-mode local rejection.
func (m *clientMetrics) ReplayRejected() {
	if m == nil {
		return
	}
	m.replayRejections.Inc()
}
