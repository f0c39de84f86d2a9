package riptide

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// DispatchState is the lifecycle stage of one call.
type DispatchState int

const (
	StateBuilt DispatchState = iota
	StateSending
	StateAwaitingResponse
	StateDispatching
	StateCompleted
	StateFailed
)

func (s DispatchState) String() string {
	switch s {
	case StateBuilt:
		return "BUILT"
	case StateSending:
		return "SENDING"
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StateDispatching:
		return "DISPATCHING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// dispatchCall carries the per-call state of a single dispatch.
type dispatchCall struct {
	client *Client
	args   RequestArguments
	start  time.Time
	state  DispatchState
}

func (d *dispatchCall) transition(state DispatchState, keysAndValues ...interface{}) {
	d.state = state
	if !d.client.debugEnabled() || !d.client.debug.LogRouting {
		return
	}
	requestID, _ := RequestID.Get(d.args)
	kv := append([]interface{}{
		"requestID", requestID,
		"state", state.String(),
		"method", d.args.Method(),
		"uri", d.args.URITemplate(),
	}, keysAndValues...)
	d.client.logger.Debug("Dispatch state changed", kv...)
}

func (d *dispatchCall) host() string {
	return hostOf(d.args)
}

// run prepares, sends and routes. The body is encoded once, after the
// prepare hooks, so every attempt sends the same bytes. Routing is skipped
// when the future was completed in the meantime, which only happens on
// cancellation.
func (d *dispatchCall) run(ctx context.Context, future *Future[struct{}], route Route) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()

	d.transition(StateBuilt)

	d.transition(StateSending)
	d.args = prepare(d.client.plugins, d.args)
	if d.args, err = d.client.encodeBody(d.args); err != nil {
		return err
	}

	d.transition(StateAwaitingResponse)
	resp, err := d.client.execution(ctx, d.args)
	if err != nil {
		if resp != nil {
			drainAndClose(resp.Body)
		}
		return err
	}
	if resp == nil {
		return &TransportError{Method: d.args.Method(), URL: d.args.URITemplate(), Cause: errors.New("no response")}
	}
	defer drainAndClose(resp.Body)

	if future.IsDone() {
		return ErrCancelled
	}

	d.transition(StateDispatching, "status", resp.StatusCode, "series", SeriesOf(resp.StatusCode).String())
	return route.Execute(resp, d.client.converters)
}

// outcomeOf classifies a dispatch result for metrics.
func outcomeOf(err error) string {
	var unexpected *UnexpectedResponseError
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrNoRoute):
		return "no_route"
	case errors.Is(err, ErrConversion):
		return "conversion"
	case errors.As(err, &unexpected):
		return "unexpected_response"
	case errors.Is(err, ErrHandler):
		return "handler"
	case errors.Is(err, ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return "transport"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrRetryBudgetExceeded):
		return "retry_budget_exceeded"
	default:
		return "failed"
	}
}

// statusLabel formats a status code for metric labels, "0" meaning no response.
func statusLabel(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
