package riptide

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for dispatches and the
// resilience plugins. A nil collector records nothing. It is safe for
// concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	dispatchesTotal   *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec
	retryBudgetDenied *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec
	rateLimited         *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	return &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riptide_requests_total",
				Help: "Total number of HTTP exchanges by response series and status",
			},
			[]string{"method", "host", "series", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riptide_request_duration_seconds",
				Help:    "Duration of HTTP exchanges in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "host", "series"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riptide_requests_in_flight",
				Help: "Number of HTTP exchanges currently in flight",
			},
			[]string{"method", "host"},
		),
		dispatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riptide_dispatches_total",
				Help: "Total number of dispatches by outcome",
			},
			[]string{"method", "host", "outcome"},
		),
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riptide_dispatch_duration_seconds",
				Help:    "Duration from dispatch to completion of the future, routing included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "host", "outcome"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riptide_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "host", "attempt"},
		),
		retryBudgetDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riptide_retry_budget_exceeded_total",
				Help: "Total number of retries denied by the retry budget",
			},
			[]string{"host"},
		),
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riptide_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riptide_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"method", "host"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riptide_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "method", "host"},
		),
		registry: registry,
	}
}

// RecordRequest records one HTTP exchange.
func (mc *MetricsCollector) RecordRequest(method, host string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	series := SeriesOf(statusCode).String()
	mc.requestsTotal.WithLabelValues(method, host, series, strconv.Itoa(statusCode)).Inc()
	mc.requestDuration.WithLabelValues(method, host, series).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, host string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, host).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, host string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, host).Dec()
}

// RecordDispatch records the outcome of a completed future.
func (mc *MetricsCollector) RecordDispatch(method, host, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.dispatchesTotal.WithLabelValues(method, host, outcome).Inc()
	mc.dispatchDuration.WithLabelValues(method, host, outcome).Observe(duration.Seconds())
}

// RecordRetry increments retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, host string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, host, strconv.Itoa(attempt)).Inc()
}

// RecordRetryBudgetExceeded increments retry budget exceeded counter.
func (mc *MetricsCollector) RecordRetryBudgetExceeded(host string) {
	if mc == nil {
		return
	}

	mc.retryBudgetDenied.WithLabelValues(host).Inc()
}

// RecordCircuitBreakerState sets gauge to breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	var stateValue float64
	switch state {
	case StateClosed:
		stateValue = 0
	case StateOpen:
		stateValue = 1
	case StateHalfOpen:
		stateValue = 2
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(stateValue)
}

// RecordRateLimited increments the rate limiter rejection counter.
func (mc *MetricsCollector) RecordRateLimited(method, host string) {
	if mc == nil {
		return
	}

	mc.rateLimited.WithLabelValues(method, host).Inc()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, host string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, host).Inc()
}

// GetRegistry exposes the registerer the collector was built on.
func (mc *MetricsCollector) GetRegistry() prometheus.Registerer {
	return mc.registry
}
