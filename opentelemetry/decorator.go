package opentelemetry

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/whiskeysierra/riptide"
)

// Attribute keys written by the bundled decorators.
const (
	KeyHTTPMethod     = attribute.Key("http.request.method")
	KeyURLFull        = attribute.Key("url.full")
	KeyURLTemplate    = attribute.Key("url.template")
	KeyServerAddress  = attribute.Key("server.address")
	KeyStatusCode     = attribute.Key("http.response.status_code")
	KeyStatusSeries   = attribute.Key("riptide.response.series")
	KeyAttempt        = attribute.Key("riptide.attempt")
	KeyComponent      = attribute.Key("component")
	KeyErrorType      = attribute.Key("error.type")
	KeyOperationName  = attribute.Key("riptide.operation")
	KeyClientName     = attribute.Key("riptide.client")
	componentName     = "riptide"
	errorTypeFallback = "_OTHER"
)

// SpanDecorator adds attributes and events to a call's span.
type SpanDecorator interface {
	OnRequest(span trace.Span, args riptide.RequestArguments)
	OnResponse(span trace.Span, args riptide.RequestArguments, resp *http.Response, err error)
}

// DecoratorFuncs builds a SpanDecorator from optional functions.
type DecoratorFuncs struct {
	Request  func(span trace.Span, args riptide.RequestArguments)
	Response func(span trace.Span, args riptide.RequestArguments, resp *http.Response, err error)
}

func (d DecoratorFuncs) OnRequest(span trace.Span, args riptide.RequestArguments) {
	if d.Request != nil {
		d.Request(span, args)
	}
}

func (d DecoratorFuncs) OnResponse(span trace.Span, args riptide.RequestArguments, resp *http.Response, err error) {
	if d.Response != nil {
		d.Response(span, args, resp, err)
	}
}

// DefaultDecorators returns the method, URL, status code, error and
// component decorators.
func DefaultDecorators() []SpanDecorator {
	return []SpanDecorator{
		HTTPMethodDecorator(),
		HTTPURLDecorator(),
		StatusCodeDecorator(),
		ErrorDecorator(),
		ComponentDecorator(componentName),
	}
}

func HTTPMethodDecorator() SpanDecorator {
	return DecoratorFuncs{Request: func(span trace.Span, args riptide.RequestArguments) {
		span.SetAttributes(KeyHTTPMethod.String(args.Method()))
	}}
}

// HTTPURLDecorator records the template and, when it resolves, the full URL
// and server address.
func HTTPURLDecorator() SpanDecorator {
	return DecoratorFuncs{Request: func(span trace.Span, args riptide.RequestArguments) {
		span.SetAttributes(KeyURLTemplate.String(args.URITemplate()))
		if u, err := args.URI(); err == nil {
			redacted := *u
			redacted.User = nil
			span.SetAttributes(KeyURLFull.String(redacted.String()), KeyServerAddress.String(u.Hostname()))
		}
	}}
}

// StatusCodeDecorator records the status and marks 5xx responses as errors.
func StatusCodeDecorator() SpanDecorator {
	return DecoratorFuncs{Response: func(span trace.Span, _ riptide.RequestArguments, resp *http.Response, err error) {
		if resp == nil {
			return
		}
		span.SetAttributes(
			KeyStatusCode.Int(resp.StatusCode),
			KeyStatusSeries.String(riptide.SeriesOf(resp.StatusCode).String()),
		)
		if resp.StatusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
	}}
}

// ErrorDecorator records a failed exchange on the span.
func ErrorDecorator() SpanDecorator {
	return DecoratorFuncs{Response: func(span trace.Span, _ riptide.RequestArguments, _ *http.Response, err error) {
		if err == nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(KeyErrorType.String(errorType(err)))
	}}
}

func ComponentDecorator(component string) SpanDecorator {
	return StaticAttributesDecorator(KeyComponent.String(component))
}

// StaticAttributesDecorator adds fixed attributes to every span.
func StaticAttributesDecorator(attrs ...attribute.KeyValue) SpanDecorator {
	return DecoratorFuncs{Request: func(span trace.Span, _ riptide.RequestArguments) {
		span.SetAttributes(attrs...)
	}}
}

// AttemptDecorator records riptide.Attempt. It only sees attempts when the
// plugin is registered after the retry plugin.
func AttemptDecorator() SpanDecorator {
	return DecoratorFuncs{Request: func(span trace.Span, args riptide.RequestArguments) {
		if attempt, ok := riptide.Attempt.Get(args); ok {
			span.SetAttributes(KeyAttempt.Int(attempt))
		}
	}}
}

// OperationNameDecorator renames the span after riptide.OperationName and
// records it as an attribute.
func OperationNameDecorator() SpanDecorator {
	return DecoratorFuncs{Request: func(span trace.Span, args riptide.RequestArguments) {
		if name, ok := riptide.OperationName.Get(args); ok && name != "" {
			span.SetName(name)
			span.SetAttributes(KeyOperationName.String(name))
		}
	}}
}

func errorType(err error) string {
	var clientErr *riptide.Error
	switch {
	case errors.As(err, &clientErr):
		return clientErr.Type
	case errors.Is(err, riptide.ErrTransport):
		return "transport"
	default:
		return errorTypeFallback
	}
}
