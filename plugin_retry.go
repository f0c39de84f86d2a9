package riptide

import (
	"context"
	"net/http"
	"time"
)

// RetryPlugin re-executes the rest of the chain while its policy asks for
// it. The response body of every discarded attempt is closed, and each
// attempt sees its number in the Attempt attribute.
type RetryPlugin struct {
	NopPlugin
	policy  RetryPolicy
	budget  *RetryBudget
	metrics *MetricsCollector
	logger  Logger
}

// RetryOption configures a RetryPlugin.
type RetryOption func(*RetryPlugin)

// WithRetryBudget shares budget between all calls through the plugin.
func WithRetryBudget(budget *RetryBudget) RetryOption {
	return func(p *RetryPlugin) { p.budget = budget }
}

// WithRetryMetrics records retries and budget denials.
func WithRetryMetrics(collector *MetricsCollector) RetryOption {
	return func(p *RetryPlugin) { p.metrics = collector }
}

// WithRetryLogger logs scheduled retries.
func WithRetryLogger(logger Logger) RetryOption {
	return func(p *RetryPlugin) { p.logger = logger }
}

// NewRetryPlugin returns a plugin retrying according to policy. A nil
// policy retries idempotent calls up to three times.
func NewRetryPlugin(policy RetryPolicy, options ...RetryOption) *RetryPlugin {
	if policy == nil {
		policy = NewDefaultRetryPolicy(3, 100*time.Millisecond, 10*time.Second, 2.0, 0.1)
	}
	p := &RetryPlugin{policy: policy}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *RetryPlugin) Around(next RequestExecution) RequestExecution {
	return func(ctx context.Context, args RequestArguments) (*http.Response, error) {
		requestID, _ := RequestID.Get(args)
		host := hostOf(args)

		for attempt := 0; ; attempt++ {
			resp, err := next(ctx, Attempt.Set(args, attempt+1))

			delay, retry := p.policy.ShouldRetry(args, resp, err, attempt)
			if !retry || ctx.Err() != nil {
				return resp, err
			}

			if p.budget != nil && !p.budget.Allow() {
				if resp != nil {
					drainAndClose(resp.Body)
				}
				p.metrics.RecordRetryBudgetExceeded(host)
				if p.logger != nil {
					p.logger.Warn("Retry budget exceeded", "requestID", requestID, "host", host)
				}
				return nil, &Error{
					Type:      ErrorTypeRetryBudgetExceeded,
					Message:   "retry budget exceeded",
					Cause:     err,
					RequestID: requestID,
					Method:    args.Method(),
					URL:       args.URITemplate(),
					Attempt:   attempt + 1,
					Timestamp: time.Now(),
				}
			}

			if resp != nil {
				drainAndClose(resp.Body)
			}
			p.metrics.RecordRetry(args.Method(), host, attempt+1)
			if p.logger != nil {
				p.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+2, "backoff", delay, "status", statusLabel(resp))
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, &TransportError{Method: args.Method(), URL: args.URITemplate(), Cause: ctx.Err()}
			case <-timer.C:
			}
		}
	}
}
