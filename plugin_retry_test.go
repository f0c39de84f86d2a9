package riptide

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryPolicy(maxRetries int) *DefaultRetryPolicy {
	return NewDefaultRetryPolicy(maxRetries, time.Millisecond, 5*time.Millisecond, 2.0, 0)
}

func TestRetryPluginRetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithPlugins(NewRetryPlugin(fastRetryPolicy(3))),
	)

	var status int
	_, err := client.Get("/").Call(func(resp *http.Response) error {
		status = resp.StatusCode
		return nil
	}).Join()

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryPluginGivesUpAndRoutesLastResponse(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithPlugins(NewRetryPlugin(fastRetryPolicy(2))),
	)

	_, err := client.Get("/").Dispatch(Dispatch(BySeries(), On(Successful).Pass())).Join()

	var noRoute *NoRouteError
	require.ErrorAs(t, err, &noRoute)
	assert.Equal(t, http.StatusBadGateway, noRoute.StatusCode)
	assert.Equal(t, int32(3), attempts.Load(), "1 initial attempt + 2 retries")
}

func TestRetryPluginSetsAttemptAndClosesDiscardedBodies(t *testing.T) {
	var mu sync.Mutex
	var bodies []*trackingBody
	var seen []int

	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		body := newTrackingBody("")
		bodies = append(bodies, body)
		resp := response(http.StatusServiceUnavailable, "", "")
		if len(bodies) == 3 {
			resp.StatusCode = http.StatusOK
		}
		resp.Body = body
		return resp, nil
	})

	observe := AroundFunc(func(next RequestExecution) RequestExecution {
		return func(ctx context.Context, args RequestArguments) (*http.Response, error) {
			attempt, _ := Attempt.Get(args)
			mu.Lock()
			seen = append(seen, attempt)
			mu.Unlock()
			return next(ctx, args)
		}
	})

	client := New(
		WithBaseURL("http://localhost"),
		WithDoer(doer),
		WithPlugins(NewRetryPlugin(fastRetryPolicy(3)), observe),
	)

	_, err := client.Get("/").Dispatch(Pass()).Join()
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, seen)
	require.Len(t, bodies, 3)
	for i, body := range bodies {
		assert.True(t, body.closed.Load(), "Expected body of attempt %d to be closed", i+1)
	}
}

func TestRetryPluginResendsReaderBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		first := len(bodies) == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithPlugins(NewRetryPlugin(fastRetryPolicy(3))),
	)

	var status int
	_, err := client.Put("/items/{id}", 1).
		Body(strings.NewReader("payload")).
		Dispatch(Dispatch(BySeries(),
			On(Successful).Call(Run(func() error { status = http.StatusOK; return nil })),
			AnySeries().Call(Fail()),
		)).Join()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"payload", "payload"}, bodies, "every attempt sends the same bytes")
}

func TestRetryPluginDoesNotRetryPost(t *testing.T) {
	var attempts atomic.Int32
	client := New(
		WithBaseURL("http://localhost"),
		WithDoer(doerFunc(func(*http.Request) (*http.Response, error) {
			attempts.Add(1)
			return response(http.StatusServiceUnavailable, "", ""), nil
		})),
		WithPlugins(NewRetryPlugin(fastRetryPolicy(3))),
	)

	_, err := client.Post("/").Dispatch(Pass()).Join()
	require.NoError(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRetryPluginBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)
	client := New(
		WithBaseURL(server.URL),
		WithPlugins(NewRetryPlugin(fastRetryPolicy(5),
			WithRetryBudget(NewRetryBudget(2, time.Minute)),
			WithRetryMetrics(collector),
		)),
	)

	_, err := client.Get("/").Dispatch(Pass()).Join()
	var clientErr *Error
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrorTypeRetryBudgetExceeded, clientErr.Type)
	assert.ErrorIs(t, err, ErrRetryBudgetExceeded)
	assert.Equal(t, 3, clientErr.Attempt)

	parsed, _ := url.Parse(server.URL)
	host := parsed.Host
	if exceeded := testutil.ToFloat64(collector.retryBudgetDenied.WithLabelValues(host)); exceeded != 1 {
		t.Errorf("Expected retry_budget_exceeded=1, got %f", exceeded)
	}
	if r1 := testutil.ToFloat64(collector.retriesTotal.WithLabelValues("GET", host, "1")); r1 != 1 {
		t.Errorf("Expected retriesTotal attempt=1 count=1, got %f", r1)
	}
	if r2 := testutil.ToFloat64(collector.retriesTotal.WithLabelValues("GET", host, "2")); r2 != 1 {
		t.Errorf("Expected retriesTotal attempt=2 count=1, got %f", r2)
	}
}

func TestRetryPluginStopsOnCancellation(t *testing.T) {
	var attempts atomic.Int32
	client := New(
		WithBaseURL("http://localhost"),
		WithDoer(doerFunc(func(*http.Request) (*http.Response, error) {
			attempts.Add(1)
			return nil, errors.New("connection refused")
		})),
		WithPlugins(NewRetryPlugin(NewDefaultRetryPolicyWithStrategy(5, time.Hour, time.Hour, 1, 0, ConstantBackoff))),
	)

	ctx, cancel := context.WithCancel(context.Background())
	future := client.Get("/").Context(ctx).Dispatch(Pass())

	require.Eventually(t, func() bool { return attempts.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	_, err := future.Join()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRetryPluginLogsRetries(t *testing.T) {
	logger := &captureLogger{}
	var attempts atomic.Int32
	client := New(
		WithBaseURL("http://localhost"),
		WithDoer(doerFunc(func(*http.Request) (*http.Response, error) {
			if attempts.Add(1) == 1 {
				return response(http.StatusTooManyRequests, "", ""), nil
			}
			return response(http.StatusOK, "", ""), nil
		})),
		WithPlugins(NewRetryPlugin(fastRetryPolicy(1), WithRetryLogger(logger))),
	)

	_, err := client.Get("/").Dispatch(Pass()).Join()
	require.NoError(t, err)

	rec, ok := logger.find("Scheduling retry")
	require.True(t, ok)
	assert.Equal(t, 2, rec.value("attempt"))
	assert.Equal(t, http.StatusTooManyRequests, rec.value("status"))
}
