package riptide

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RequestArguments is the immutable description of one outbound call. Every
// With method returns a modified copy and leaves the receiver untouched, so
// plugins that need a change produce new arguments.
type RequestArguments struct {
	method     string
	baseURL    *url.URL
	template   string
	variables  []any
	query      url.Values
	headers    http.Header
	body       any
	encoded    *encodedBody
	attributes map[*attributeKey]any
}

// encodedBody is the body as written by the converters. It is produced once
// per call so that every attempt sends the same bytes.
type encodedBody struct {
	data      []byte
	mediaType MediaType
}

// NewRequestArguments returns empty arguments for a GET request.
func NewRequestArguments() RequestArguments {
	return RequestArguments{method: http.MethodGet}
}

// Method returns the HTTP method.
func (a RequestArguments) Method() string { return a.method }

// BaseURL returns a copy of the base URL, or nil.
func (a RequestArguments) BaseURL() *url.URL {
	if a.baseURL == nil {
		return nil
	}
	u := *a.baseURL
	return &u
}

// URITemplate returns the unexpanded URI template.
func (a RequestArguments) URITemplate() string { return a.template }

// URIVariables returns a copy of the template variables.
func (a RequestArguments) URIVariables() []any {
	return append([]any(nil), a.variables...)
}

// QueryParams returns a copy of the query parameters.
func (a RequestArguments) QueryParams() url.Values {
	out := make(url.Values, len(a.query))
	for k, v := range a.query {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Headers returns a copy of the request headers.
func (a RequestArguments) Headers() http.Header {
	if a.headers == nil {
		return http.Header{}
	}
	return a.headers.Clone()
}

// Header returns the first value of the named header.
func (a RequestArguments) Header(name string) string {
	return a.headers.Get(name)
}

// Body returns the request body value, or nil.
func (a RequestArguments) Body() any { return a.body }

// WithMethod sets the HTTP method.
func (a RequestArguments) WithMethod(method string) RequestArguments {
	a.method = strings.ToUpper(method)
	return a
}

// WithBaseURL sets the URL relative templates are resolved against.
func (a RequestArguments) WithBaseURL(base *url.URL) RequestArguments {
	if base == nil {
		a.baseURL = nil
		return a
	}
	u := *base
	a.baseURL = &u
	return a
}

// WithURI sets the URI template and its positional variables.
func (a RequestArguments) WithURI(template string, variables ...any) RequestArguments {
	a.template = template
	a.variables = append([]any(nil), variables...)
	return a
}

// WithQueryParam appends values to a query parameter.
func (a RequestArguments) WithQueryParam(name string, values ...string) RequestArguments {
	a.query = a.QueryParams()
	a.query[name] = append(a.query[name], values...)
	return a
}

// WithHeader appends values to a header.
func (a RequestArguments) WithHeader(name string, values ...string) RequestArguments {
	a.headers = a.Headers()
	for _, v := range values {
		a.headers.Add(name, v)
	}
	return a
}

// ReplaceHeader sets a header, replacing existing values.
func (a RequestArguments) ReplaceHeader(name string, values ...string) RequestArguments {
	a.headers = a.Headers()
	a.headers.Del(name)
	for _, v := range values {
		a.headers.Add(name, v)
	}
	return a
}

// WithHeaders appends all given headers.
func (a RequestArguments) WithHeaders(headers http.Header) RequestArguments {
	a.headers = a.Headers()
	for name, values := range headers {
		for _, v := range values {
			a.headers.Add(name, v)
		}
	}
	return a
}

// WithBody sets the body value; it is encoded by the client's converters.
func (a RequestArguments) WithBody(body any) RequestArguments {
	a.body = body
	a.encoded = nil
	return a
}

func (a RequestArguments) withAttribute(key *attributeKey, value any) RequestArguments {
	attrs := make(map[*attributeKey]any, len(a.attributes)+1)
	for k, v := range a.attributes {
		attrs[k] = v
	}
	attrs[key] = value
	a.attributes = attrs
	return a
}

// URI expands the template, resolves it against the base URL and appends
// the query parameters.
func (a RequestArguments) URI() (*url.URL, error) {
	expanded, err := ExpandTemplate(a.template, a.variables...)
	if err != nil {
		return nil, err
	}

	ref, err := url.Parse(expanded)
	if err != nil {
		return nil, fmt.Errorf("riptide: invalid uri %q: %w", expanded, err)
	}

	u := ref
	if a.baseURL != nil && !ref.IsAbs() {
		u = a.baseURL.ResolveReference(ref)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("riptide: uri %q is not absolute and no base url is configured", u)
	}

	if len(a.query) > 0 {
		q := u.Query()
		for k, vs := range a.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// ExpandTemplate replaces every "{name}" placeholder with the next
// variable, path escaped. Surplus variables are an error, as are missing ones.
func ExpandTemplate(template string, variables ...any) (string, error) {
	if !strings.Contains(template, "{") {
		if len(variables) > 0 {
			return "", fmt.Errorf("riptide: template %q takes no variables, got %d", template, len(variables))
		}
		return template, nil
	}

	var b strings.Builder
	next := 0
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("riptide: unterminated placeholder in template %q", template)
		}
		if next >= len(variables) {
			return "", fmt.Errorf("riptide: template %q: missing value for %s", template, rest[open:open+end+1])
		}
		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(fmt.Sprint(variables[next])))
		next++
		rest = rest[open+end+1:]
	}

	if next < len(variables) {
		return "", fmt.Errorf("riptide: template %q: %d unused variables", template, len(variables)-next)
	}
	return b.String(), nil
}

type attributeKey struct {
	name string
}

// Attribute is a typed key for values that travel with the request
// arguments through the plugin chain without being sent.
type Attribute[T any] struct {
	key *attributeKey
}

// NewAttribute returns a new, distinct attribute key.
func NewAttribute[T any](name string) Attribute[T] {
	return Attribute[T]{key: &attributeKey{name: name}}
}

// Name returns the attribute's name.
func (a Attribute[T]) Name() string { return a.key.name }

// Get returns the attribute's value in args.
func (a Attribute[T]) Get(args RequestArguments) (T, bool) {
	v, ok := args.attributes[a.key]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Set returns args with the attribute set.
func (a Attribute[T]) Set(args RequestArguments, value T) RequestArguments {
	return args.withAttribute(a.key, value)
}

// OperationName names the call for logging, metrics and tracing.
var OperationName = NewAttribute[string]("operation-name")

// Attempt is the current attempt, starting at 1, set by the retry plugin.
var Attempt = NewAttribute[int]("attempt")

// RequestID correlates the logs, headers and spans of one call. The client
// sets it from DebugConfig.RequestIDGen unless the caller already did.
var RequestID = NewAttribute[string]("request-id")
