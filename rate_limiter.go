package riptide

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyFunc partitions calls between rate limiters.
type KeyFunc func(args RequestArguments) string

// HostKey limits per target host.
func HostKey(args RequestArguments) string {
	return "host:" + hostOf(args)
}

// OperationKey limits per OperationName, falling back to method and template.
func OperationKey(args RequestArguments) string {
	if name, ok := OperationName.Get(args); ok && name != "" {
		return "operation:" + name
	}
	return "route:" + args.Method() + ":" + args.URITemplate()
}

// RateLimitConfig describes one token bucket.
type RateLimitConfig struct {
	// Rate is the number of calls admitted per second.
	Rate  float64
	Burst int
	// Wait blocks a call until a token is available instead of rejecting
	// it with ErrRateLimited.
	Wait bool
}

// RateLimitPlugin admits calls through token buckets keyed by KeyFunc.
// Buckets are created on first use from the default config unless a key
// was registered explicitly.
type RateLimitPlugin struct {
	NopPlugin
	keyFunc  KeyFunc
	fallback RateLimitConfig
	metrics  *MetricsCollector
	logger   Logger

	mu       sync.RWMutex
	limiters map[string]*keyedLimiter
}

type keyedLimiter struct {
	limiter *rate.Limiter
	wait    bool
}

// RateLimitOption configures a RateLimitPlugin.
type RateLimitOption func(*RateLimitPlugin)

// WithRateLimitKey sets how calls are partitioned. The default is HostKey.
func WithRateLimitKey(keyFunc KeyFunc) RateLimitOption {
	return func(p *RateLimitPlugin) { p.keyFunc = keyFunc }
}

// WithRateLimitMetrics counts rejections.
func WithRateLimitMetrics(collector *MetricsCollector) RateLimitOption {
	return func(p *RateLimitPlugin) { p.metrics = collector }
}

// WithRateLimitLogger logs rejections.
func WithRateLimitLogger(logger Logger) RateLimitOption {
	return func(p *RateLimitPlugin) { p.logger = logger }
}

// NewRateLimitPlugin returns a plugin using config for every key that was
// not registered with Register.
func NewRateLimitPlugin(config RateLimitConfig, options ...RateLimitOption) *RateLimitPlugin {
	p := &RateLimitPlugin{
		keyFunc:  HostKey,
		fallback: config,
		limiters: make(map[string]*keyedLimiter),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Register installs a dedicated bucket for key.
func (p *RateLimitPlugin) Register(key string, config RateLimitConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiters[key] = newKeyedLimiter(config)
}

func newKeyedLimiter(config RateLimitConfig) *keyedLimiter {
	limit := rate.Limit(config.Rate)
	if config.Rate <= 0 {
		limit = rate.Inf
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &keyedLimiter{limiter: rate.NewLimiter(limit, burst), wait: config.Wait}
}

func (p *RateLimitPlugin) limiterFor(key string) *keyedLimiter {
	p.mu.RLock()
	l, ok := p.limiters[key]
	p.mu.RUnlock()
	if ok {
		return l
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[key]; ok {
		return l
	}
	l = newKeyedLimiter(p.fallback)
	p.limiters[key] = l
	return l
}

func (p *RateLimitPlugin) Around(next RequestExecution) RequestExecution {
	return func(ctx context.Context, args RequestArguments) (*http.Response, error) {
		key := p.keyFunc(args)
		l := p.limiterFor(key)

		if l.wait {
			if err := l.limiter.Wait(ctx); err != nil {
				return nil, p.rejected(args, key, err)
			}
		} else if !l.limiter.Allow() {
			return nil, p.rejected(args, key, nil)
		}

		return next(ctx, args)
	}
}

func (p *RateLimitPlugin) rejected(args RequestArguments, key string, cause error) error {
	requestID, _ := RequestID.Get(args)
	p.metrics.RecordRateLimited(args.Method(), hostOf(args))
	if p.logger != nil {
		p.logger.Warn("Rate limit exceeded", "requestID", requestID, "key", key)
	}
	return &Error{
		Type:      ErrorTypeRateLimit,
		Message:   "rate limit exceeded for " + key,
		Cause:     cause,
		RequestID: requestID,
		Method:    args.Method(),
		URL:       args.URITemplate(),
		Timestamp: time.Now(),
	}
}
