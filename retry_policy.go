package riptide

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/whiskeysierra/riptide/internal/backoff"
)

// RetryPolicy decides whether a finished attempt is retried and after what
// delay. attempt counts retries already made, starting at 0.
type RetryPolicy interface {
	ShouldRetry(args RequestArguments, resp *http.Response, err error, attempt int) (time.Duration, bool)
}

// BackoffStrategy selects how DefaultRetryPolicy spaces retries.
type BackoffStrategy = backoff.Strategy

// Backoff strategies.
var (
	ExponentialJitter  BackoffStrategy = backoff.ExponentialJitter{}
	DecorrelatedJitter BackoffStrategy = backoff.DecorrelatedJitter{}
	ConstantBackoff    BackoffStrategy = backoff.Constant{}
)

// DefaultRetryPolicy retries idempotent calls on transient transport
// failures, 429 and 5xx responses, honouring Retry-After.
type DefaultRetryPolicy struct {
	maxRetries   int
	params       backoff.Params
	strategy     BackoffStrategy
	isIdempotent func(method string) bool
}

// NewDefaultRetryPolicy creates a retry policy with exponential jitter backoff
// that only retries idempotent methods.
func NewDefaultRetryPolicy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) *DefaultRetryPolicy {
	return NewDefaultRetryPolicyWithStrategy(maxRetries, initialBackoff, maxBackoff, multiplier, jitter, ExponentialJitter)
}

// NewDefaultRetryPolicyWithStrategy creates a retry policy with a specific backoff strategy.
func NewDefaultRetryPolicyWithStrategy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64, strategy BackoffStrategy) *DefaultRetryPolicy {
	if strategy == nil {
		strategy = ExponentialJitter
	}
	return &DefaultRetryPolicy{
		maxRetries: maxRetries,
		params: backoff.Params{
			Initial:    initialBackoff,
			Max:        maxBackoff,
			Multiplier: multiplier,
			Jitter:     jitter,
		},
		strategy:     strategy,
		isIdempotent: DefaultIsIdempotent,
	}
}

// WithIdempotency overrides which methods may be retried.
func (p *DefaultRetryPolicy) WithIdempotency(isIdempotent func(method string) bool) *DefaultRetryPolicy {
	copied := *p
	copied.isIdempotent = isIdempotent
	return &copied
}

// MaxRetries returns the retry limit.
func (p *DefaultRetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry implements the RetryPolicy interface.
func (p *DefaultRetryPolicy) ShouldRetry(args RequestArguments, resp *http.Response, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries {
		return 0, false
	}
	if !p.isIdempotent(args.Method()) {
		return 0, false
	}

	var delay time.Duration
	switch {
	case err != nil:
		if !retryableError(err) {
			return 0, false
		}
	case resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500):
		delay = parseRetryAfter(resp.Header.Get("Retry-After"))
	default:
		return 0, false
	}

	if delay == 0 {
		delay = p.calculateBackoff(attempt)
	}
	return delay, true
}

func (p *DefaultRetryPolicy) calculateBackoff(attempt int) time.Duration {
	return p.strategy.Delay(attempt, p.params)
}

// retryableError accepts transport failures and deadline expiry but never
// caller cancellation or request construction errors.
func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return false
	}
	var clientErr *Error
	if errors.As(err, &clientErr) && clientErr.Type == ErrorTypeValidation {
		return false
	}
	if errors.Is(err, ErrConversion) {
		return false
	}
	return IsTransient(err)
}

// DefaultIsIdempotent returns true for idempotent HTTP methods.
func DefaultIsIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds format and HTTP-date format.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

// RetryBudget caps the number of retries across all calls in a window.
type RetryBudget struct {
	maxRetries  int64
	perWindow   time.Duration
	current     int64
	windowStart int64
}

// NewRetryBudget creates a new retry budget tracker.
func NewRetryBudget(maxRetries int, perWindow time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  int64(maxRetries),
		perWindow:   perWindow,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow checks if a retry is allowed under the current budget.
func (rb *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := atomic.LoadInt64(&rb.windowStart)

	if now-windowStart >= int64(rb.perWindow) {
		if atomic.CompareAndSwapInt64(&rb.windowStart, windowStart, now) {
			atomic.StoreInt64(&rb.current, 0)
		}
	}

	if atomic.LoadInt64(&rb.current) >= rb.maxRetries {
		return false
	}
	return atomic.AddInt64(&rb.current, 1) <= rb.maxRetries
}

// GetStats returns current retry budget statistics.
func (rb *RetryBudget) GetStats() (current, max int64, windowStart time.Time) {
	return atomic.LoadInt64(&rb.current),
		rb.maxRetries,
		time.Unix(0, atomic.LoadInt64(&rb.windowStart))
}
