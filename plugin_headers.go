package riptide

import (
	"net/http"

	"github.com/google/uuid"
)

// FlowIDHeader carries the request id to the server.
const FlowIDHeader = "X-Flow-ID"

// RequestIDPlugin propagates the call's RequestID in a header, generating
// one when the client did not. An id already present in the header wins.
type RequestIDPlugin struct {
	NopPlugin
	header    string
	generator func() string
}

// NewRequestIDPlugin writes ids to header; the empty string selects
// FlowIDHeader.
func NewRequestIDPlugin(header string) *RequestIDPlugin {
	if header == "" {
		header = FlowIDHeader
	}
	return &RequestIDPlugin{header: header, generator: uuid.NewString}
}

func (p *RequestIDPlugin) Prepare(args RequestArguments) RequestArguments {
	if existing := args.Header(p.header); existing != "" {
		return RequestID.Set(args, existing)
	}
	id, ok := RequestID.Get(args)
	if !ok || id == "" {
		id = p.generator()
		args = RequestID.Set(args, id)
	}
	return args.ReplaceHeader(p.header, id)
}

// HeadersPlugin adds static headers to every call. Headers set on the
// request itself are kept.
type HeadersPlugin struct {
	NopPlugin
	headers http.Header
}

// NewHeadersPlugin returns a plugin adding headers.
func NewHeadersPlugin(headers http.Header) *HeadersPlugin {
	return &HeadersPlugin{headers: headers.Clone()}
}

func (p *HeadersPlugin) Prepare(args RequestArguments) RequestArguments {
	for name, values := range p.headers {
		if args.Header(name) != "" {
			continue
		}
		args = args.WithHeader(name, values...)
	}
	return args
}
