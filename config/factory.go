package config

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/whiskeysierra/riptide"
	"github.com/whiskeysierra/riptide/internal/backoff"
	"github.com/whiskeysierra/riptide/opentelemetry"
)

// Factory builds clients from a Config. Clients built by one factory share
// a metrics collector, so a registry is only registered with once. Each
// named client is built once; later calls return the same instance so that
// circuit breakers, budgets and limiters are shared.
type Factory struct {
	config         *Config
	registry       prometheus.Registerer
	tracerProvider trace.TracerProvider
	logger         riptide.Logger
	httpClient     *http.Client

	collectorOnce sync.Once
	collector     *riptide.MetricsCollector

	builds  singleflight.Group
	mu      sync.RWMutex
	clients map[string]*riptide.Client
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithRegistry registers metrics with registry instead of the default one.
func WithRegistry(registry prometheus.Registerer) FactoryOption {
	return func(f *Factory) { f.registry = registry }
}

// WithTracerProvider traces with provider instead of the global one.
func WithTracerProvider(provider trace.TracerProvider) FactoryOption {
	return func(f *Factory) { f.tracerProvider = provider }
}

// WithLogger is used by the logging plugin and debug output.
func WithLogger(logger riptide.Logger) FactoryOption {
	return func(f *Factory) { f.logger = logger }
}

// WithHTTPClient sends through client. Its timeout is overridden per client
// when a timeout is configured.
func WithHTTPClient(client *http.Client) FactoryOption {
	return func(f *Factory) { f.httpClient = client }
}

// NewFactory returns a factory for cfg.
func NewFactory(cfg *Config, options ...FactoryOption) *Factory {
	f := &Factory{
		config:   cfg,
		registry: prometheus.DefaultRegisterer,
		clients:  make(map[string]*riptide.Client),
	}
	for _, option := range options {
		option(f)
	}
	if f.logger == nil {
		f.logger = riptide.NewSimpleLogger()
	}
	if f.tracerProvider == nil {
		f.tracerProvider = otel.GetTracerProvider()
	}
	return f
}

func (f *Factory) metrics() *riptide.MetricsCollector {
	f.collectorOnce.Do(func() {
		f.collector = riptide.NewMetricsCollectorWithRegistry(f.registry)
	})
	return f.collector
}

// Client returns the named client, building it on first use. Concurrent
// first calls share one build.
func (f *Factory) Client(name string) (*riptide.Client, error) {
	f.mu.RLock()
	client, ok := f.clients[name]
	f.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := f.builds.Do(name, func() (any, error) {
		f.mu.RLock()
		existing, ok := f.clients[name]
		f.mu.RUnlock()
		if ok {
			return existing, nil
		}
		built, err := f.build(name)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.clients[name] = built
		f.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*riptide.Client), nil
}

func (f *Factory) build(name string) (*riptide.Client, error) {
	cc, ok := f.config.Clients[name]
	if !ok {
		return nil, fmt.Errorf("config: unknown client %q", name)
	}

	options, err := f.options(name, cc)
	if err != nil {
		return nil, err
	}

	client := riptide.New(options...)
	if !client.IsValid() {
		return nil, fmt.Errorf("config: client %q: %w", name, client.ValidationError())
	}
	return client, nil
}

// Clients builds every configured client.
func (f *Factory) Clients() (map[string]*riptide.Client, error) {
	clients := make(map[string]*riptide.Client, len(f.config.Clients))
	for _, name := range f.config.Names() {
		client, err := f.Client(name)
		if err != nil {
			return nil, err
		}
		clients[name] = client
	}
	return clients, nil
}

// options translates a client section into client options. Plugins are
// ordered outermost first: request id and default headers, tracing,
// logging, retry, circuit breaker, rate limit, metrics. Metrics and the
// breaker therefore observe every attempt.
func (f *Factory) options(name string, cc ClientConfig) ([]riptide.Option, error) {
	var options []riptide.Option

	if f.httpClient != nil {
		hc := *f.httpClient
		options = append(options, riptide.WithHTTPClient(&hc))
	}
	if cc.BaseURL != "" {
		options = append(options, riptide.WithBaseURL(cc.BaseURL))
	}
	if cc.Timeout > 0 {
		options = append(options, riptide.WithTimeout(cc.Timeout))
	}
	if cc.Debug {
		options = append(options, riptide.WithDebug(), riptide.WithLogger(f.logger))
	}

	var plugins []riptide.Plugin

	if cc.RequestID.Enabled {
		plugins = append(plugins, riptide.NewRequestIDPlugin(cc.RequestID.Header))
	}
	if len(cc.Headers) > 0 {
		headers := make(http.Header, len(cc.Headers))
		for k, v := range cc.Headers {
			headers.Set(k, v)
		}
		plugins = append(plugins, riptide.NewHeadersPlugin(headers))
	}
	if cc.Tracing.Enabled {
		tracer := f.tracerProvider.Tracer("github.com/whiskeysierra/riptide/opentelemetry")
		plugins = append(plugins, opentelemetry.NewPlugin(tracer,
			opentelemetry.WithDecorators(opentelemetry.StaticAttributesDecorator(opentelemetry.KeyClientName.String(name)))))
	}
	if cc.Logging.Enabled {
		plugins = append(plugins, riptide.NewLoggingPlugin(f.logger))
	}

	var collector *riptide.MetricsCollector
	if cc.Metrics.Enabled {
		collector = f.metrics()
		options = append(options, riptide.WithMetricsCollector(collector))
	}

	if cc.Retry.Enabled {
		policy, err := retryPolicy(cc.Retry)
		if err != nil {
			return nil, fmt.Errorf("config: client %q: %w", name, err)
		}
		retryOptions := []riptide.RetryOption{riptide.WithRetryMetrics(collector)}
		if cc.Retry.Budget.MaxRetries > 0 {
			retryOptions = append(retryOptions, riptide.WithRetryBudget(riptide.NewRetryBudget(cc.Retry.Budget.MaxRetries, cc.Retry.Budget.Window)))
		}
		if cc.Logging.Enabled {
			retryOptions = append(retryOptions, riptide.WithRetryLogger(f.logger))
		}
		plugins = append(plugins, riptide.NewRetryPlugin(policy, retryOptions...))
	}

	if cc.CircuitBreaker.Enabled {
		breakerOptions := []riptide.CircuitBreakerOption{riptide.WithBreakerMetrics(collector)}
		if cc.Logging.Enabled {
			breakerOptions = append(breakerOptions, riptide.WithBreakerLogger(f.logger))
		}
		plugins = append(plugins, riptide.NewCircuitBreakerPlugin(name, riptide.CircuitBreakerConfig{
			FailureThreshold: cc.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:  cc.CircuitBreaker.RecoveryTimeout,
			SuccessThreshold: cc.CircuitBreaker.SuccessThreshold,
		}, breakerOptions...))
	}

	if cc.RateLimit.Enabled {
		keyFunc := riptide.HostKey
		if cc.RateLimit.Key == "operation" {
			keyFunc = riptide.OperationKey
		}
		plugins = append(plugins, riptide.NewRateLimitPlugin(riptide.RateLimitConfig{
			Rate:  cc.RateLimit.Rate,
			Burst: cc.RateLimit.Burst,
			Wait:  cc.RateLimit.Wait,
		}, riptide.WithRateLimitKey(keyFunc), riptide.WithRateLimitMetrics(collector)))
	}

	if cc.Metrics.Enabled {
		plugins = append(plugins, riptide.NewMetricsPlugin(collector))
	}

	if len(plugins) > 0 {
		options = append(options, riptide.WithPlugins(plugins...))
	}
	return options, nil
}

func retryPolicy(rc RetryConfig) (*riptide.DefaultRetryPolicy, error) {
	strategy, err := backoff.ForName(rc.Strategy)
	if err != nil {
		return nil, err
	}

	maxRetries := rc.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	initial := rc.InitialBackoff
	if initial == 0 {
		initial = 100 * time.Millisecond
	}
	maxBackoff := rc.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 10 * time.Second
	}
	multiplier := rc.Multiplier
	if multiplier == 0 {
		multiplier = 2.0
	}

	return riptide.NewDefaultRetryPolicyWithStrategy(maxRetries, initial, maxBackoff, multiplier, rc.Jitter, strategy), nil
}
