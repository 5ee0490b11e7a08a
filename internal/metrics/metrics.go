package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_requests_total",
			Help: "Total number of orchestrated requests",
		},
		[]string{"mode", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_request_duration_seconds",
			Help:    "End-to-end orchestrated request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)

	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_model_calls_total",
			Help: "Adapter invocations by provider, model config and outcome",
		},
		[]string{"provider", "model_config", "attempt", "status"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_provider_errors_total",
			Help: "Total number of provider errors",
		},
		[]string{"provider", "error_type"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_fallbacks_total",
			Help: "Fallback attempts against the system default model",
		},
		[]string{"outcome"},
	)

	DanglingPreferences = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_dangling_preferences_total",
			Help: "Requests whose selected model id did not resolve and were routed to the system default",
		},
	)

	DualFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_dual_failures_total",
			Help: "Requests where both the selected model and the fallback failed",
		},
	)

	ConnectionTests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_connection_tests_total",
			Help: "Model connection tests by provider and result",
		},
		[]string{"provider", "result"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_rate_limit_hits_total",
			Help: "Requests rejected by the per-user rate limit",
		},
	)
)

func RecordRequest(mode, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(mode, status).Inc()
	RequestDuration.WithLabelValues(mode).Observe(durationSec)
}

func RecordModelCall(provider, modelConfig, attempt, status string) {
	ModelCallsTotal.WithLabelValues(provider, modelConfig, attempt, status).Inc()
}

func RecordProviderError(provider, errorType string) {
	ProviderErrors.WithLabelValues(provider, errorType).Inc()
}

func RecordFallback(outcome string) {
	FallbacksTotal.WithLabelValues(outcome).Inc()
}

func RecordDanglingPreference() {
	DanglingPreferences.Inc()
}

func RecordDualFailure() {
	DualFailures.Inc()
}

func RecordConnectionTest(provider string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	ConnectionTests.WithLabelValues(provider, result).Inc()
}

func RecordRateLimitHit() {
	RateLimitHits.Inc()
}
