package riptide

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for common failure scenarios
var (
	// ErrNoRoute is matched by every *NoRouteError.
	ErrNoRoute = errors.New("riptide: no route matched")

	// ErrConversion is matched by every *ConversionError.
	ErrConversion = errors.New("riptide: conversion failed")

	// ErrHandler is matched by every *HandlerError.
	ErrHandler = errors.New("riptide: handler failed")

	// ErrTransport is matched by every *TransportError.
	ErrTransport = errors.New("riptide: transport failed")

	// ErrCaptureMisuse is the parent of ErrCaptureUnset and ErrCaptureAlreadySet.
	ErrCaptureMisuse = errors.New("riptide: capture misuse")

	// ErrCaptureUnset is returned when a Capture is read before being written.
	ErrCaptureUnset = fmt.Errorf("%w: capture not set", ErrCaptureMisuse)

	// ErrCaptureAlreadySet is returned on every write after the first one.
	ErrCaptureAlreadySet = fmt.Errorf("%w: capture already set", ErrCaptureMisuse)

	// ErrInvalidTree is returned when a routing tree cannot be constructed.
	ErrInvalidTree = errors.New("riptide: invalid routing tree")

	// ErrCancelled is the failure of a future that was cancelled by the caller.
	ErrCancelled = errors.New("riptide: cancelled")

	// ErrCircuitOpen is returned when the circuit breaker is in open state
	ErrCircuitOpen = errors.New("riptide: circuit open")

	// ErrRateLimited is returned when a request is denied due to rate limiting
	ErrRateLimited = errors.New("riptide: rate limited")

	// ErrRetryBudgetExceeded is returned when retry budget is exhausted
	ErrRetryBudgetExceeded = errors.New("riptide: retry budget exceeded")
)

// Error types used by Error.
const (
	ErrorTypeValidation          = "Validation"
	ErrorTypeCircuitOpen         = "CircuitOpen"
	ErrorTypeRateLimit           = "RateLimit"
	ErrorTypeRetryBudgetExceeded = "RetryBudgetExceeded"
	ErrorTypeNetwork             = "Network"
	ErrorTypeTimeout             = "Timeout"
)

// Error describes a configuration or plugin level failure.
type Error struct {
	Type      string
	Message   string
	Cause     error
	RequestID string
	Method    string
	URL       string
	Attempt   int
	Timestamp time.Time
}

// Error implements error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d)", msg, e.Attempt)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	switch e.Type {
	case ErrorTypeCircuitOpen:
		return target == ErrCircuitOpen
	case ErrorTypeRateLimit:
		return target == ErrRateLimited
	case ErrorTypeRetryBudgetExceeded:
		return target == ErrRetryBudgetExceeded
	}
	return false
}

// NoRouteError reports that no binding, including a wildcard, matched the
// attribute computed for a response.
type NoRouteError struct {
	Key        string
	Declared   []string
	StatusCode int
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("riptide: no route for %s (status %d), declared: [%s]",
		e.Key, e.StatusCode, strings.Join(e.Declared, ", "))
}

func (e *NoRouteError) Is(target error) bool {
	return target == ErrNoRoute
}

// ConversionError reports that a body could not be read into, or written from,
// the bound type.
type ConversionError struct {
	Type      string
	MediaType MediaType
	Cause     error
}

func (e *ConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("riptide: cannot convert %s as %s: %v", e.MediaType, e.Type, e.Cause)
	}
	return fmt.Sprintf("riptide: no converter for %s as %s", e.MediaType, e.Type)
}

func (e *ConversionError) Unwrap() error { return e.Cause }

func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

// HandlerError wraps an error returned (or a panic raised) by a user handler.
type HandlerError struct {
	Cause error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("riptide: handler failed: %v", e.Cause)
}

func (e *HandlerError) Unwrap() error { return e.Cause }

func (e *HandlerError) Is(target error) bool {
	return target == ErrHandler
}

// TransportError wraps a failure surfaced by the HTTP transport.
type TransportError struct {
	Method string
	URL    string
	Cause  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("riptide: %s %s: %v", e.Method, e.URL, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// CaptureFailedError is returned by Capture.Retrieve when the capture holds
// a failure instead of a value.
type CaptureFailedError struct {
	Cause error
}

func (e *CaptureFailedError) Error() string {
	return fmt.Sprintf("riptide: capture failed: %v", e.Cause)
}

func (e *CaptureFailedError) Unwrap() error { return e.Cause }

// CompletionError wraps the cause of a failed future for synchronous callers.
type CompletionError struct {
	Cause error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("riptide: completed exceptionally: %v", e.Cause)
}

func (e *CompletionError) Unwrap() error { return e.Cause }

// IsTransient reports whether err represents a failure that might succeed on retry:
// transport failures, timeouts, an open circuit, rate limiting and
// unexpected 5xx or 429 responses. An exhausted retry budget is final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRetryBudgetExceeded) {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return true
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return false
	}

	var unexpected *UnexpectedResponseError
	if errors.As(err, &unexpected) {
		return unexpected.StatusCode >= 500 || unexpected.StatusCode == http.StatusTooManyRequests
	}

	if errors.Is(err, ErrTransport) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var clientErr *Error
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout:
			return true
		}
	}

	return false
}
