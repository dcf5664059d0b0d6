// Package metrics provides Prometheus metrics collection for the gate.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Global metrics - used by the application
	// Using atomic.Pointer for lock-free initialization checks on hot path metrics.
	requestsTotal       atomic.Pointer[prometheus.CounterVec]
	requestDuration     atomic.Pointer[prometheus.HistogramVec]
	scansTotal          atomic.Pointer[prometheus.CounterVec]
	authzDecisionsTotal atomic.Pointer[prometheus.CounterVec]
	loginFailuresTotal  atomic.Pointer[prometheus.Counter]
)

// Init initializes all Prometheus metrics and registers them with the provided registry.
// This should be called once at application startup.
func Init(reg prometheus.Registerer) error {
	requestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrgate",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled",
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestsTotalVec); err != nil {
		return fmt.Errorf("failed to register requestsTotal: %w", err)
	}

	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qrgate",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestDurationVec); err != nil {
		return fmt.Errorf("failed to register requestDuration: %w", err)
	}

	scansTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrgate",
			Name:      "scans_total",
			Help:      "Total number of scan resolutions by outcome",
		},
		[]string{"outcome"},
	)
	if err := reg.Register(scansTotalVec); err != nil {
		return fmt.Errorf("failed to register scansTotal: %w", err)
	}

	authzDecisionsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrgate",
			Name:      "authz_decisions_total",
			Help:      "Total number of authorization decisions by outcome",
		},
		[]string{"outcome"},
	)
	if err := reg.Register(authzDecisionsTotalVec); err != nil {
		return fmt.Errorf("failed to register authzDecisionsTotal: %w", err)
	}

	loginFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "qrgate",
			Name:      "login_failures_total",
			Help:      "Total number of failed login attempts",
		},
	)
	if err := reg.Register(loginFailures); err != nil {
		return fmt.Errorf("failed to register loginFailures: %w", err)
	}

	// Store metrics in atomics for lock-free access in record functions
	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	scansTotal.Store(scansTotalVec)
	authzDecisionsTotal.Store(authzDecisionsTotalVec)
	loginFailuresTotal.Store(&loginFailures)

	return nil
}

// RecordRequest increments the requests counter for the given method, path, and status code.
// The path should be normalized (e.g., "/scan/:id" instead of "/scan/<uuid>").
func RecordRequest(method, path, statusCode string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordRequestDuration records the latency for a request in seconds.
func RecordRequestDuration(method, path, statusCode string, durationSeconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
	}
}

// RecordScan increments the scan counter. Outcomes: "resolved", "not_found",
// "error".
func RecordScan(outcome string) {
	if counter := scansTotal.Load(); counter != nil {
		counter.WithLabelValues(outcome).Inc()
	}
}

// RecordAuthzDecision increments the authorization decision counter for
// the given outcome label.
func RecordAuthzDecision(outcome string) {
	if counter := authzDecisionsTotal.Load(); counter != nil {
		counter.WithLabelValues(outcome).Inc()
	}
}

// RecordLoginFailure increments the failed login counter.
func RecordLoginFailure() {
	if counter := loginFailuresTotal.Load(); counter != nil {
		(*counter).Inc()
	}
}

// Handler returns an HTTP handler for Prometheus metrics in text format.
// This handler should be registered at /metrics on the metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
