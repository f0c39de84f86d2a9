package riptide

import (
	"context"
	"sync"
	"sync/atomic"
)

// Future is the eventual outcome of a dispatch. It completes exactly once;
// cancellation races with completion and only the first one wins.
type Future[T any] struct {
	done   chan struct{}
	winner atomic.Bool
	value  T
	err    error
	cancel func()

	mu        sync.Mutex
	completed bool
	callbacks []func(T, error)
}

func newFuture[T any](cancel func()) *Future[T] {
	return &Future[T]{done: make(chan struct{}), cancel: cancel}
}

func failedFuture[T any](err error) *Future[T] {
	f := newFuture[T](nil)
	var zero T
	f.complete(zero, err)
	return f
}

// complete resolves the future. It reports false if the future was already
// resolved or cancelled.
func (f *Future[T]) complete(value T, err error) bool {
	if !f.winner.CompareAndSwap(false, true) {
		return false
	}
	f.value = value
	f.err = err

	f.mu.Lock()
	f.completed = true
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, callback := range callbacks {
		callback(value, err)
	}
	return true
}

// Done is closed once the future has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has completed.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get waits for the outcome. A failed outcome is returned as a
// *CompletionError wrapping the cause; if ctx ends first its error is
// returned and the future keeps running.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		if f.err != nil {
			var zero T
			return zero, &CompletionError{Cause: f.err}
		}
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Join waits for the outcome without a deadline.
func (f *Future[T]) Join() (T, error) {
	return f.Get(context.Background())
}

// Err returns the unwrapped cause of a failed future, or nil while pending
// and after success.
func (f *Future[T]) Err() error {
	if !f.IsDone() {
		return nil
	}
	return f.err
}

// Cancel fails the future with ErrCancelled and aborts the in-flight
// request. It reports false if the future had already completed.
func (f *Future[T]) Cancel() bool {
	var zero T
	if !f.complete(zero, ErrCancelled) {
		return false
	}
	if f.cancel != nil {
		f.cancel()
	}
	return true
}

// Handle registers a callback invoked with (value, nil) on success or
// (zero, cause) on failure. Callbacks run on the goroutine that completes
// the future, or immediately if it already has.
func (f *Future[T]) Handle(callback func(T, error)) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, callback)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	callback(f.value, f.err)
}
