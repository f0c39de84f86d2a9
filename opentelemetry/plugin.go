// Package opentelemetry traces riptide calls with OpenTelemetry.
//
// The plugin opens one client span per call. Plugins registered after it,
// such as retries, run inside that span. The W3C trace context of the span
// is injected into request headers through the global propagator.
package opentelemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/whiskeysierra/riptide"
)

const instrumentationName = "github.com/whiskeysierra/riptide/opentelemetry"

// Plugin is a riptide.Plugin that creates client spans.
type Plugin struct {
	riptide.NopPlugin
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	decorators []SpanDecorator
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithPropagator overrides the global text map propagator.
func WithPropagator(propagator propagation.TextMapPropagator) Option {
	return func(p *Plugin) { p.propagator = propagator }
}

// WithDecorators appends span decorators to the defaults.
func WithDecorators(decorators ...SpanDecorator) Option {
	return func(p *Plugin) { p.decorators = append(p.decorators, decorators...) }
}

// NewPlugin traces through tracer; nil uses the global tracer provider.
// The default decorators record method, URL, status code, errors and the
// component name.
func NewPlugin(tracer trace.Tracer, options ...Option) *Plugin {
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	p := &Plugin{
		tracer:     tracer,
		decorators: DefaultDecorators(),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *Plugin) Around(next riptide.RequestExecution) riptide.RequestExecution {
	return func(ctx context.Context, args riptide.RequestArguments) (*http.Response, error) {
		ctx, span := p.tracer.Start(ctx, spanName(args), trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		for _, decorator := range p.decorators {
			decorator.OnRequest(span, args)
		}

		carrier := propagation.HeaderCarrier(http.Header{})
		p.propagatorOrGlobal().Inject(ctx, carrier)
		for name, values := range carrier {
			args = args.ReplaceHeader(name, values...)
		}

		resp, err := next(ctx, args)

		for _, decorator := range p.decorators {
			decorator.OnResponse(span, args, resp, err)
		}
		return resp, err
	}
}

func (p *Plugin) propagatorOrGlobal() propagation.TextMapPropagator {
	if p.propagator != nil {
		return p.propagator
	}
	return otel.GetTextMapPropagator()
}

func spanName(args riptide.RequestArguments) string {
	if name, ok := riptide.OperationName.Get(args); ok && name != "" {
		return name
	}
	return args.Method()
}
