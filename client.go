package riptide

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPDoer sends a single HTTP request. *http.Client implements it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends requests through a plugin chain and routes every response
// through a caller supplied Route. It is safe for concurrent use; routes,
// converters and plugins are shared by all calls.
type Client struct {
	httpClient      HTTPDoer
	timeout         time.Duration
	baseURL         *url.URL
	baseURLErr      error
	converters      Converters
	plugins         []Plugin
	execution       RequestExecution
	metrics         *MetricsCollector
	debug           *DebugConfig
	logger          Logger
	validationError error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors. An
// invalid client fails every dispatch with the validation error.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		timeout:    30 * time.Second,
		converters: DefaultConverters(),
		debug:      DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
		return client
	}

	client.execution = compose(client.plugins, client.send)

	return client
}

// Converters returns the client's message converters.
func (c *Client) Converters() Converters {
	return c.converters
}

// Request starts a request for method and a URI template whose "{...}"
// placeholders are filled, in order, from vars.
func (c *Client) Request(method, uriTemplate string, vars ...any) *RequestBuilder {
	args := NewRequestArguments().
		WithMethod(method).
		WithBaseURL(c.baseURL).
		WithURI(uriTemplate, vars...)
	return &RequestBuilder{client: c, ctx: context.Background(), args: args}
}

func (c *Client) Get(uriTemplate string, vars ...any) *RequestBuilder {
	return c.Request(http.MethodGet, uriTemplate, vars...)
}

func (c *Client) Head(uriTemplate string, vars ...any) *RequestBuilder {
	return c.Request(http.MethodHead, uriTemplate, vars...)
}

func (c *Client) Post(uriTemplate string, vars ...any) *RequestBuilder {
	return c.Request(http.MethodPost, uriTemplate, vars...)
}

func (c *Client) Put(uriTemplate string, vars ...any) *RequestBuilder {
	return c.Request(http.MethodPut, uriTemplate, vars...)
}

func (c *Client) Patch(uriTemplate string, vars ...any) *RequestBuilder {
	return c.Request(http.MethodPatch, uriTemplate, vars...)
}

func (c *Client) Delete(uriTemplate string, vars ...any) *RequestBuilder {
	return c.Request(http.MethodDelete, uriTemplate, vars...)
}

func (c *Client) Options(uriTemplate string, vars ...any) *RequestBuilder {
	return c.Request(http.MethodOptions, uriTemplate, vars...)
}

func (c *Client) Trace(uriTemplate string, vars ...any) *RequestBuilder {
	return c.Request(http.MethodTrace, uriTemplate, vars...)
}

// send is the innermost execution: it turns arguments into an *http.Request
// and hands it to the transport.
func (c *Client) send(ctx context.Context, args RequestArguments) (*http.Response, error) {
	u, err := args.URI()
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeValidation,
			Message:   "invalid request uri",
			Cause:     err,
			Method:    args.Method(),
			URL:       args.URITemplate(),
			Timestamp: time.Now(),
		}
	}

	args, err = c.encodeBody(args)
	if err != nil {
		return nil, err
	}

	header := args.Headers()
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", UserAgent())
	}

	var body io.Reader
	if args.encoded != nil {
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", args.encoded.mediaType.String())
		}
		body = bytes.NewReader(args.encoded.data)
	}

	req, err := http.NewRequestWithContext(ctx, args.Method(), u.String(), body)
	if err != nil {
		return nil, &TransportError{Method: args.Method(), URL: u.String(), Cause: err}
	}
	req.Header = header

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: u.String(), Cause: err}
	}
	return resp, nil
}

// encodeBody writes the body through the converters unless that already
// happened. Readers are consumed here, once per call.
func (c *Client) encodeBody(args RequestArguments) (RequestArguments, error) {
	value := args.Body()
	if value == nil || args.encoded != nil {
		return args, nil
	}

	var requested MediaType
	if ct := args.Header("Content-Type"); ct != "" {
		mt, err := ParseMediaType(ct)
		if err != nil {
			return args, &ConversionError{Type: fmt.Sprintf("%T", value), Cause: err}
		}
		requested = mt
	}
	data, written, err := c.converters.Write(requested, value)
	if err != nil {
		return args, err
	}
	args.encoded = &encodedBody{data: data, mediaType: written}
	return args, nil
}

// dispatch runs one call asynchronously. The response body is closed on
// every path once routing has finished.
func (c *Client) dispatch(ctx context.Context, args RequestArguments, route Route) *Future[struct{}] {
	if c.validationError != nil {
		return failedFuture[struct{}](c.validationError)
	}
	if route == nil {
		return failedFuture[struct{}](&Error{
			Type:      ErrorTypeValidation,
			Message:   "route cannot be nil",
			Method:    args.Method(),
			URL:       args.URITemplate(),
			Timestamp: time.Now(),
		})
	}

	if c.debug != nil && c.debug.RequestIDGen != nil {
		if _, ok := RequestID.Get(args); !ok {
			args = RequestID.Set(args, c.debug.RequestIDGen())
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	future := newFuture[struct{}](cancel)
	call := &dispatchCall{client: c, args: args, start: time.Now()}

	go func() {
		defer cancel()
		err := call.run(ctx, future, route)
		if future.complete(struct{}{}, err) {
			if err != nil {
				call.transition(StateFailed, "error", err.Error())
			} else {
				call.transition(StateCompleted)
			}
		}
		c.metrics.RecordDispatch(call.args.Method(), call.host(), outcomeOf(future.Err()), time.Since(call.start))
	}()

	return future
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// MustValidateConfiguration re-runs validation returning an error (no panic).
func (c *Client) MustValidateConfiguration() error {
	return c.ValidateConfiguration()
}

func (c *Client) debugEnabled() bool {
	return c.debug != nil && c.debug.Enabled && c.logger != nil
}

// hostOf returns the host a call targets, for metric labels.
func hostOf(args RequestArguments) string {
	if u, err := args.URI(); err == nil && u.Host != "" {
		return u.Host
	}
	if base := args.BaseURL(); base != nil && base.Host != "" {
		return base.Host
	}
	return "unknown"
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4<<10))
	_ = body.Close()
}

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("riptide: panic during dispatch: %w", err)
	}
	return fmt.Errorf("riptide: panic during dispatch: %v", v)
}
