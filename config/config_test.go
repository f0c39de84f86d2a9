package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/whiskeysierra/riptide"
)

const sampleDocument = `
defaults:
  timeout: 2s
  headers:
    Accept: application/json
  retry:
    enabled: true
    max-retries: 2
    initial-backoff: 1ms
    max-backoff: 5ms
clients:
  users:
    base-url: https://users.example.com
    headers:
      X-Client: users
    circuit-breaker:
      enabled: true
      failure-threshold: 3
  orders:
    base-url: https://orders.example.com
    timeout: 500ms
    retry:
      strategy: decorrelated-jitter
    rate-limit:
      enabled: true
      rate: 10
      burst: 5
      key: operation
`

func TestParseMergesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleDocument))
	require.NoError(t, err)

	assert.Equal(t, []string{"orders", "users"}, cfg.Names())

	users := cfg.Clients["users"]
	assert.Equal(t, "https://users.example.com", users.BaseURL)
	assert.Equal(t, 2*time.Second, users.Timeout)
	assert.Equal(t, map[string]string{"Accept": "application/json", "X-Client": "users"}, users.Headers)
	assert.True(t, users.Retry.Enabled)
	assert.Equal(t, 2, users.Retry.MaxRetries)
	assert.True(t, users.CircuitBreaker.Enabled)
	assert.Equal(t, 3, users.CircuitBreaker.FailureThreshold)

	orders := cfg.Clients["orders"]
	assert.Equal(t, 500*time.Millisecond, orders.Timeout)
	assert.Equal(t, map[string]string{"Accept": "application/json"}, orders.Headers, "clients must not share default maps")
	assert.Equal(t, "decorrelated-jitter", orders.Retry.Strategy)
	assert.Equal(t, time.Millisecond, orders.Retry.InitialBackoff)
	assert.Equal(t, "operation", orders.RateLimit.Key)
	assert.False(t, orders.CircuitBreaker.Enabled)
}

func TestParseRejectsInvalidClients(t *testing.T) {
	tests := []struct {
		name     string
		document string
		contains string
	}{
		{
			name:     "relative base url",
			document: "clients:\n  a:\n    base-url: /relative\n",
			contains: "must be an absolute URL",
		},
		{
			name:     "unknown backoff strategy",
			document: "clients:\n  a:\n    retry:\n      enabled: true\n      strategy: fibonacci\n",
			contains: "unknown strategy",
		},
		{
			name:     "rate limit without rate",
			document: "clients:\n  a:\n    rate-limit:\n      enabled: true\n",
			contains: "rate-limit.rate must be positive",
		},
		{
			name:     "bad rate limit key",
			document: "clients:\n  a:\n    rate-limit:\n      enabled: true\n      rate: 1\n      key: user\n",
			contains: "must be host or operation",
		},
		{
			name:     "budget without window",
			document: "clients:\n  a:\n    retry:\n      enabled: true\n      budget:\n        max-retries: 3\n",
			contains: "retry.budget.window",
		},
		{
			name:     "malformed yaml",
			document: "clients: [",
			contains: "config:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.document))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riptide.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDocument), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Clients, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFactoryUnknownClient(t *testing.T) {
	cfg, err := Parse([]byte(sampleDocument))
	require.NoError(t, err)

	_, err = NewFactory(cfg, WithRegistry(prometheus.NewRegistry())).Client("payments")
	assert.ErrorContains(t, err, `unknown client "payments"`)
}

func TestFactoryBuildsWorkingClient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get(riptide.FlowIDHeader))
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer server.Close()

	cfg, err := Parse([]byte(`
clients:
  users:
    base-url: ` + server.URL + `
    headers:
      Accept: application/json
    request-id:
      enabled: true
    metrics:
      enabled: true
    tracing:
      enabled: true
    retry:
      enabled: true
      max-retries: 2
      initial-backoff: 1ms
      max-backoff: 2ms
    circuit-breaker:
      enabled: true
`))
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	factory := NewFactory(cfg, WithRegistry(registry))
	clients, err := factory.Clients()
	require.NoError(t, err)
	client := clients["users"]
	require.NotNil(t, client)

	type user struct {
		ID int `json:"id"`
	}
	capture := riptide.NewCapture[user]()
	_, err = client.Get("/users/{id}", 7).
		Dispatch(riptide.Dispatch(riptide.BySeries(), riptide.On(riptide.Successful).Call(riptide.Into(capture)))).
		Join()
	require.NoError(t, err)

	got, err := capture.Retrieve()
	require.NoError(t, err)
	assert.Equal(t, 7, got.ID)
	assert.Equal(t, int32(2), calls.Load())

	count, err := testutil.GatherAndCount(registry, "riptide_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per observed status")

	again, err := factory.Client("users")
	require.NoError(t, err)
	assert.Same(t, client, again)
}

func TestFactoryBuildsEachClientOnce(t *testing.T) {
	cfg, err := Parse([]byte(sampleDocument))
	require.NoError(t, err)
	factory := NewFactory(cfg, WithRegistry(prometheus.NewRegistry()))

	var g errgroup.Group
	results := make([]*riptide.Client, 16)
	for i := range results {
		g.Go(func() error {
			client, err := factory.Client("orders")
			results[i] = client
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, client := range results {
		assert.Same(t, results[0], client)
	}
}
