package riptide

import (
	"sync/atomic"
)

const (
	captureUnset int32 = iota
	captureWriting
	captureSet
	captureFailed
)

// Capture is a single-assignment slot for the typed outcome of a dispatch.
// The first write wins; every later write fails with ErrCaptureAlreadySet,
// also when writes race. A Capture belongs to one call and must not be
// reused.
type Capture[T any] struct {
	state atomic.Int32
	value T
	err   error
}

// NewCapture returns an empty capture.
func NewCapture[T any]() *Capture[T] {
	return &Capture[T]{}
}

// Capture stores value.
func (c *Capture[T]) Capture(value T) error {
	if !c.state.CompareAndSwap(captureUnset, captureWriting) {
		return ErrCaptureAlreadySet
	}
	c.value = value
	c.state.Store(captureSet)
	return nil
}

// Fail stores a failure in place of a value.
func (c *Capture[T]) Fail(err error) error {
	if !c.state.CompareAndSwap(captureUnset, captureWriting) {
		return ErrCaptureAlreadySet
	}
	c.err = err
	c.state.Store(captureFailed)
	return nil
}

// IsSet reports whether a value or a failure has been stored.
func (c *Capture[T]) IsSet() bool {
	s := c.state.Load()
	return s == captureSet || s == captureFailed
}

// Retrieve returns the stored value. It fails with ErrCaptureUnset before
// any write and with a *CaptureFailedError after a failure.
func (c *Capture[T]) Retrieve() (T, error) {
	var zero T
	switch c.state.Load() {
	case captureSet:
		return c.value, nil
	case captureFailed:
		return zero, &CaptureFailedError{Cause: c.err}
	default:
		return zero, ErrCaptureUnset
	}
}

// Adapt turns a dispatch future into a future of the captured value.
// Cancelling the returned future cancels the dispatch.
func (c *Capture[T]) Adapt(future *Future[struct{}]) *Future[T] {
	adapted := newFuture[T](func() { future.Cancel() })
	future.Handle(func(_ struct{}, err error) {
		if err != nil {
			var zero T
			adapted.complete(zero, err)
			return
		}
		adapted.complete(c.Retrieve())
	})
	return adapted
}
