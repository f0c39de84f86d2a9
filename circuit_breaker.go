package riptide

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CircuitState represents the state of the circuit breaker
type CircuitState int64

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker is a lock-free three state breaker.
type CircuitBreaker struct {
	config      CircuitBreakerConfig
	state       int64
	failures    int64
	lastFailure int64
	successes   int64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		config: config,
		state:  int64(StateClosed),
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}

// Allow checks if the request should be allowed through the circuit breaker
func (cb *CircuitBreaker) Allow() bool {
	switch cb.State() {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		lastFailure := atomic.LoadInt64(&cb.lastFailure)
		if time.Now().UnixNano()-lastFailure < int64(cb.config.RecoveryTimeout) {
			return false
		}
		if atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen)) {
			atomic.StoreInt64(&cb.successes, 0)
			return true
		}
		return cb.State() != StateOpen
	default:
		return false
	}
}

// RecordFailure records a failure in the circuit breaker
func (cb *CircuitBreaker) RecordFailure() {
	atomic.StoreInt64(&cb.lastFailure, time.Now().UnixNano())

	switch cb.State() {
	case StateClosed:
		if atomic.AddInt64(&cb.failures, 1) >= int64(cb.config.FailureThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateOpen))
		}
	case StateHalfOpen:
		// one failed trial reopens
		atomic.AddInt64(&cb.failures, 1)
		atomic.StoreInt64(&cb.state, int64(StateOpen))
		atomic.StoreInt64(&cb.successes, 0)
	}
}

// RecordSuccess records a success in the circuit breaker
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.State() {
	case StateClosed:
		atomic.StoreInt64(&cb.failures, 0)
	case StateHalfOpen:
		if atomic.AddInt64(&cb.successes, 1) >= int64(cb.config.SuccessThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateClosed))
			atomic.StoreInt64(&cb.failures, 0)
			atomic.StoreInt64(&cb.successes, 0)
		}
	}
}

// FailureCondition decides whether an exchange counts against the breaker.
type FailureCondition func(resp *http.Response, err error) bool

// DefaultFailureCondition counts transport failures and 5xx responses.
// Cancellation by the caller is not a failure.
func DefaultFailureCondition(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return resp != nil && resp.StatusCode >= 500
}

// CircuitBreakerPlugin rejects calls with ErrCircuitOpen while its breaker
// is open.
type CircuitBreakerPlugin struct {
	NopPlugin
	name      string
	breaker   *CircuitBreaker
	condition FailureCondition
	metrics   *MetricsCollector
	logger    Logger
}

// CircuitBreakerOption configures a CircuitBreakerPlugin.
type CircuitBreakerOption func(*CircuitBreakerPlugin)

// WithFailureCondition overrides what counts as a failure.
func WithFailureCondition(condition FailureCondition) CircuitBreakerOption {
	return func(p *CircuitBreakerPlugin) { p.condition = condition }
}

// WithBreakerMetrics reports state changes to collector.
func WithBreakerMetrics(collector *MetricsCollector) CircuitBreakerOption {
	return func(p *CircuitBreakerPlugin) { p.metrics = collector }
}

// WithBreakerLogger logs rejections and state changes.
func WithBreakerLogger(logger Logger) CircuitBreakerOption {
	return func(p *CircuitBreakerPlugin) { p.logger = logger }
}

// NewCircuitBreakerPlugin wraps a breaker built from config. name labels
// metrics and logs.
func NewCircuitBreakerPlugin(name string, config CircuitBreakerConfig, options ...CircuitBreakerOption) *CircuitBreakerPlugin {
	p := &CircuitBreakerPlugin{
		name:      name,
		breaker:   NewCircuitBreaker(config),
		condition: DefaultFailureCondition,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Breaker exposes the underlying breaker.
func (p *CircuitBreakerPlugin) Breaker() *CircuitBreaker {
	return p.breaker
}

func (p *CircuitBreakerPlugin) Around(next RequestExecution) RequestExecution {
	return func(ctx context.Context, args RequestArguments) (*http.Response, error) {
		if !p.breaker.Allow() {
			requestID, _ := RequestID.Get(args)
			if p.logger != nil {
				p.logger.Warn("Circuit breaker open", "requestID", requestID, "breaker", p.name, "method", args.Method())
			}
			p.metrics.RecordError("CircuitBreaker", args.Method(), hostOf(args))
			attempt, _ := Attempt.Get(args)
			return nil, &Error{
				Type:      ErrorTypeCircuitOpen,
				Message:   "circuit breaker " + p.name + " is open",
				RequestID: requestID,
				Method:    args.Method(),
				URL:       args.URITemplate(),
				Attempt:   attempt,
				Timestamp: time.Now(),
			}
		}

		before := p.breaker.State()
		resp, err := next(ctx, args)
		if p.condition(resp, err) {
			p.breaker.RecordFailure()
		} else {
			p.breaker.RecordSuccess()
		}

		after := p.breaker.State()
		p.metrics.RecordCircuitBreakerState(p.name, after)
		if after != before && p.logger != nil {
			p.logger.Info("Circuit breaker state changed", "breaker", p.name, "from", before.String(), "to", after.String())
		}
		return resp, err
	}
}
