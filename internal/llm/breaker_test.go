package llm

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(cfg BreakerConfig) (*CircuitBreaker, *time.Time) {
	b := NewCircuitBreaker("test", cfg)
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return current }
	b.changedAt = current
	return b, &current
}

func TestBreakerOpensAtFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 5, OpenDuration: time.Minute, SuccessThreshold: 2})

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, "closed", b.Status().State, "failure %d must not trip the breaker", i+1)
	}

	b.RecordFailure()
	assert.Equal(t, "open", b.Status().State)

	var openErr *CircuitOpenError
	require.ErrorAs(t, b.Allow(), &openErr)
	assert.Equal(t, "test", openErr.Provider)
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, OpenDuration: time.Minute, SuccessThreshold: 2})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	// The streak broke, so only two consecutive failures are on the books.
	assert.Equal(t, "closed", b.Status().State)
	assert.Equal(t, 2, b.Status().ConsecutiveFailures)
}

func TestBreakerHalfOpenAfterOpenDuration(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, OpenDuration: time.Minute, SuccessThreshold: 2})

	b.RecordFailure()
	require.Equal(t, "open", b.Status().State)

	*clock = clock.Add(59 * time.Second)
	require.Error(t, b.Allow(), "still inside the open window")

	*clock = clock.Add(2 * time.Second)
	require.NoError(t, b.Allow(), "open window elapsed, probe admitted")
	assert.Equal(t, "half_open", b.Status().State)
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, OpenDuration: time.Minute, SuccessThreshold: 2})

	b.RecordFailure()
	*clock = clock.Add(2 * time.Minute)

	require.NoError(t, b.Allow())
	require.Error(t, b.Allow(), "second caller must wait for the probe result")

	b.RecordSuccess()
	require.NoError(t, b.Allow(), "probe succeeded, next probe admitted")
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, OpenDuration: time.Minute, SuccessThreshold: 2})

	b.RecordFailure()
	*clock = clock.Add(2 * time.Minute)

	require.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, "half_open", b.Status().State, "one success short of the threshold")

	require.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, "closed", b.Status().State)
	assert.Equal(t, 0, b.Status().ConsecutiveFailures)
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{FailureThreshold: 3, OpenDuration: time.Minute, SuccessThreshold: 2})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	*clock = clock.Add(2 * time.Minute)

	require.NoError(t, b.Allow())
	b.RecordFailure()

	// A single probe failure reopens regardless of FailureThreshold.
	assert.Equal(t, "open", b.Status().State)
	require.Error(t, b.Allow())
}

func TestBreakerReleaseUnblocksProbe(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, OpenDuration: time.Minute, SuccessThreshold: 2})

	b.RecordFailure()
	*clock = clock.Add(2 * time.Minute)

	require.NoError(t, b.Allow())
	require.Error(t, b.Allow())

	// Cancelled probe counts neither way but must not wedge the breaker.
	b.Release()
	require.NoError(t, b.Allow())
	assert.Equal(t, "half_open", b.Status().State)
}

func TestBreakerConcurrentAllow(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, OpenDuration: time.Minute, SuccessThreshold: 2})

	b.RecordFailure()
	*clock = clock.Add(2 * time.Minute)

	var admitted int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow() == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted, "exactly one concurrent caller is the half-open probe")
}

func TestBreakerConfigNormalize(t *testing.T) {
	b := NewCircuitBreaker("p", BreakerConfig{})
	assert.Equal(t, DefaultBreakerConfig, b.cfg)
}

func TestCircuitOpenErrorMessage(t *testing.T) {
	until := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	err := &CircuitOpenError{Provider: "openai", Until: until}
	assert.Contains(t, err.Error(), "openai")
	assert.Contains(t, err.Error(), "circuit open")
	assert.True(t, errors.As(error(err), new(*CircuitOpenError)))
}
