package riptide

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// RequestBuilder assembles one call. Builders are immutable: every method
// returns a new builder, so a partially configured builder can be shared
// and specialised.
type RequestBuilder struct {
	client *Client
	ctx    context.Context
	args   RequestArguments
}

func (b *RequestBuilder) with(args RequestArguments) *RequestBuilder {
	return &RequestBuilder{client: b.client, ctx: b.ctx, args: args}
}

// Header appends values to the named header.
func (b *RequestBuilder) Header(name string, values ...string) *RequestBuilder {
	return b.with(b.args.WithHeader(name, values...))
}

// Headers appends every given header.
func (b *RequestBuilder) Headers(headers http.Header) *RequestBuilder {
	return b.with(b.args.WithHeaders(headers))
}

// ContentType sets the request media type, which also selects the converter
// used for the body.
func (b *RequestBuilder) ContentType(mediaType string) *RequestBuilder {
	return b.with(b.args.ReplaceHeader("Content-Type", mediaType))
}

// Accept sets the acceptable response media types.
func (b *RequestBuilder) Accept(mediaTypes ...string) *RequestBuilder {
	return b.with(b.args.ReplaceHeader("Accept", strings.Join(mediaTypes, ", ")))
}

// QueryParam appends values to a query parameter.
func (b *RequestBuilder) QueryParam(name string, values ...string) *RequestBuilder {
	return b.with(b.args.WithQueryParam(name, values...))
}

// QueryParams appends every given query parameter.
func (b *RequestBuilder) QueryParams(params url.Values) *RequestBuilder {
	args := b.args
	for name, values := range params {
		args = args.WithQueryParam(name, values...)
	}
	return b.with(args)
}

// Body sets the value encoded as the request body.
func (b *RequestBuilder) Body(body any) *RequestBuilder {
	return b.with(b.args.WithBody(body))
}

// Operation names the call for logs, metrics and spans.
func (b *RequestBuilder) Operation(name string) *RequestBuilder {
	return b.with(OperationName.Set(b.args, name))
}

// With applies an arbitrary change to the arguments, typically setting a
// typed attribute.
func (b *RequestBuilder) With(change func(RequestArguments) RequestArguments) *RequestBuilder {
	return b.with(change(b.args))
}

// Context sets the context bounding the call. Cancelling it aborts the
// request and fails the future.
func (b *RequestBuilder) Context(ctx context.Context) *RequestBuilder {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RequestBuilder{client: b.client, ctx: ctx, args: b.args}
}

// Arguments returns the arguments built so far.
func (b *RequestBuilder) Arguments() RequestArguments {
	return b.args
}

// Dispatch sends the request and routes the response through route. The
// returned future completes once routing has finished; the call itself never
// blocks.
func (b *RequestBuilder) Dispatch(route Route) *Future[struct{}] {
	return b.client.dispatch(b.ctx, b.args, route)
}

// Call is shorthand for Dispatch(Call(handler)).
func (b *RequestBuilder) Call(handler ResponseHandler) *Future[struct{}] {
	return b.Dispatch(Call(handler))
}
