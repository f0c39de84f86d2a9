package riptide

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// openBreaker returns a breaker that has just tripped.
func openBreaker(t *testing.T, config CircuitBreakerConfig) *CircuitBreaker {
	t.Helper()
	cb := NewCircuitBreaker(config)
	for i := 0; i < cb.config.FailureThreshold; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())
	return cb
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	tests := []struct {
		name   string
		config CircuitBreakerConfig
		want   CircuitBreakerConfig
	}{
		{
			name:   "zero config",
			config: CircuitBreakerConfig{},
			want:   CircuitBreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Minute, SuccessThreshold: 2},
		},
		{
			name:   "explicit config",
			config: CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, SuccessThreshold: 1},
			want:   CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, SuccessThreshold: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker(tt.config)
			assert.Equal(t, tt.want, cb.config)
			assert.Equal(t, StateClosed, cb.State())
			assert.True(t, cb.Allow())
		})
	}
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Hour})

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())

	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State(), "a success resets the failure count")

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, int64(3), cb.failures, "failures are not counted while open")
}

func TestCircuitBreakerTrialsAfterRecovery(t *testing.T) {
	cb := openBreaker(t, CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: 20 * time.Millisecond, SuccessThreshold: 2})

	assert.False(t, cb.Allow())
	time.Sleep(30 * time.Millisecond)

	require.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.failures)
	assert.Zero(t, cb.successes)
}

func TestCircuitBreakerFailedTrialReopens(t *testing.T) {
	cb := openBreaker(t, CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: 20 * time.Millisecond, SuccessThreshold: 2})

	time.Sleep(30 * time.Millisecond)
	require.True(t, cb.Allow())
	cb.RecordSuccess()

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.Zero(t, cb.successes)
	assert.False(t, cb.Allow(), "the recovery timeout restarts with the failed trial")
}

func TestCircuitBreakerConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 5, RecoveryTimeout: 10 * time.Millisecond})

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			for j := 0; j < 100; j++ {
				cb.Allow()
				if j%2 == 0 {
					cb.RecordSuccess()
				} else {
					cb.RecordFailure()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Contains(t, []CircuitState{StateClosed, StateOpen, StateHalfOpen}, cb.State())
}

func TestCircuitStateString(t *testing.T) {
	tests := map[CircuitState]string{
		StateClosed:      "closed",
		StateOpen:        "open",
		StateHalfOpen:    "half-open",
		CircuitState(42): "unknown",
	}
	for state, want := range tests {
		assert.Equal(t, want, state.String())
	}
}
