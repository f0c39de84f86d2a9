package riptide

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
)

// Route is the terminal action executed on a matched response. Routes must
// not close the response body; the dispatcher does that on every path.
type Route interface {
	Execute(resp *http.Response, reader MessageReader) error
}

// RouteFunc adapts a function to a Route.
type RouteFunc func(resp *http.Response, reader MessageReader) error

func (f RouteFunc) Execute(resp *http.Response, reader MessageReader) error {
	return f(resp, reader)
}

// ResponseHandler handles a raw response.
type ResponseHandler func(resp *http.Response) error

// ResponseEntity is a converted body together with the response metadata.
type ResponseEntity[T any] struct {
	StatusCode int
	Header     http.Header
	Body       T
}

type passRoute struct{}

func (passRoute) Execute(*http.Response, MessageReader) error { return nil }

// Pass marks the response as handled without doing anything.
func Pass() Route { return passRoute{} }

// Call invokes handler with the raw response.
func Call(handler ResponseHandler) Route {
	return RouteFunc(func(resp *http.Response, _ MessageReader) error {
		return invoke(func() error { return handler(resp) })
	})
}

// Run invokes handler without arguments.
func Run(handler func() error) Route {
	return RouteFunc(func(*http.Response, MessageReader) error {
		return invoke(handler)
	})
}

// To converts the body into T and invokes handler with it.
func To[T any](handler func(T) error) Route {
	return RouteFunc(func(resp *http.Response, reader MessageReader) error {
		var value T
		if err := reader.Read(resp, &value); err != nil {
			return err
		}
		return invoke(func() error { return handler(value) })
	})
}

// Entity converts the body into T and invokes handler with the body, the
// status code and the headers.
func Entity[T any](handler func(ResponseEntity[T]) error) Route {
	return RouteFunc(func(resp *http.Response, reader MessageReader) error {
		entity := ResponseEntity[T]{StatusCode: resp.StatusCode, Header: resp.Header}
		if err := reader.Read(resp, &entity.Body); err != nil {
			return err
		}
		return invoke(func() error { return handler(entity) })
	})
}

// Into converts the body into T and writes it into capture. A conversion
// failure is written into the capture as well and fails the call.
func Into[T any](capture *Capture[T]) Route {
	return RouteFunc(func(resp *http.Response, reader MessageReader) error {
		var value T
		if err := reader.Read(resp, &value); err != nil {
			if ferr := capture.Fail(err); ferr != nil {
				return &HandlerError{Cause: ferr}
			}
			return err
		}
		if err := capture.Capture(value); err != nil {
			return &HandlerError{Cause: err}
		}
		return nil
	})
}

// IntoResponse writes the raw response (headers and status; the body is
// closed after dispatch) into capture.
func IntoResponse(capture *Capture[*http.Response]) Route {
	return RouteFunc(func(resp *http.Response, _ MessageReader) error {
		if err := capture.Capture(resp); err != nil {
			return &HandlerError{Cause: err}
		}
		return nil
	})
}

// Stream decodes a sequence of JSON values from the body and invokes handler
// for each one as it arrives. It understands concatenated and newline
// delimited JSON as well as RFC 7464 record separators.
func Stream[T any](handler func(T) error) Route {
	return RouteFunc(func(resp *http.Response, _ MessageReader) error {
		mediaType := ByContentType().Attribute(resp)
		dec := json.NewDecoder(&recordSeparatorReader{r: resp.Body})
		for {
			var item T
			err := dec.Decode(&item)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return &ConversionError{Type: reflect.TypeOf(&item).Elem().String(), MediaType: mediaType, Cause: err}
			}
			if err := invoke(func() error { return handler(item) }); err != nil {
				return err
			}
		}
	})
}

// Propagate converts the body into the error type T and fails the call
// with it, for example Propagate[*Problem]().
func Propagate[T error]() Route {
	return RouteFunc(func(resp *http.Response, reader MessageReader) error {
		var problem T
		if err := reader.Read(resp, &problem); err != nil {
			return err
		}
		if reflect.ValueOf(&problem).Elem().IsZero() {
			return &ConversionError{
				Type:      reflect.TypeOf(&problem).Elem().String(),
				MediaType: ByContentType().Attribute(resp),
				Cause:     errors.New("empty body"),
			}
		}
		return problem
	})
}

// Fail fails the call with a *UnexpectedResponseError carrying the status,
// headers and (up to 4 KiB of) the body.
func Fail() Route {
	return RouteFunc(func(resp *http.Response, _ MessageReader) error {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &UnexpectedResponseError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		}
	})
}

// UnexpectedResponseError is returned by the Fail route.
type UnexpectedResponseError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("riptide: unexpected response: %d %s: %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// invoke runs a user handler, wrapping errors and panics in *HandlerError.
func invoke(handler func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = &HandlerError{Cause: rerr}
				return
			}
			err = &HandlerError{Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := handler(); err != nil {
		var handlerErr *HandlerError
		if errors.As(err, &handlerErr) {
			return err
		}
		return &HandlerError{Cause: err}
	}
	return nil
}

// recordSeparatorReader drops the ASCII record separator (0x1E) that prefixes
// every record of an application/json-seq stream.
type recordSeparatorReader struct {
	r io.Reader
}

func (r *recordSeparatorReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	out := p[:0]
	for _, b := range p[:n] {
		if b != 0x1e {
			out = append(out, b)
		}
	}
	return len(out), err
}
