package llm

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the circuit state for one provider.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig parameterizes one provider's circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
	SuccessThreshold int
}

// DefaultBreakerConfig trips after 5 consecutive failures, stays open for
// 60s, and closes again after 2 consecutive probe successes.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	OpenDuration:     60 * time.Second,
	SuccessThreshold: 2,
}

func (c BreakerConfig) normalize() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = DefaultBreakerConfig.OpenDuration
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultBreakerConfig.SuccessThreshold
	}
	return c
}

// CircuitBreaker gates calls to one provider. All state lives behind the
// breaker's own mutex, so breakers for different providers never contend.
type CircuitBreaker struct {
	provider string
	cfg      BreakerConfig

	mu            sync.Mutex
	state         BreakerState
	failures      int
	successes     int
	changedAt     time.Time
	probeInFlight bool

	now func() time.Time // overridable in tests
}

// NewCircuitBreaker builds a closed breaker for one provider.
func NewCircuitBreaker(provider string, cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		provider:  provider,
		cfg:       cfg.normalize(),
		state:     StateClosed,
		changedAt: time.Now(),
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. While open it returns a
// *CircuitOpenError until OpenDuration has elapsed; the open→half-open
// transition happens lazily here, and exactly one concurrent caller is
// admitted as the half-open probe.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.changedAt) < b.cfg.OpenDuration {
			return &CircuitOpenError{Provider: b.provider, Until: b.changedAt.Add(b.cfg.OpenDuration)}
		}
		b.transition(StateHalfOpen)
		b.probeInFlight = true
		return nil
	default: // half-open
		if b.probeInFlight {
			return &CircuitOpenError{Provider: b.provider, Until: b.changedAt.Add(b.cfg.OpenDuration)}
		}
		b.probeInFlight = true
		return nil
	}
}

// RecordSuccess reports a call that ultimately succeeded. In closed state it
// resets the consecutive-failure counter; in half-open it counts toward
// SuccessThreshold and closes the circuit once reached.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probeInFlight = false
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
}

// RecordFailure reports one retry-exhausted failure. In closed state it
// counts toward FailureThreshold; any failure in half-open reopens the
// circuit immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
			slog.Warn("circuit breaker opened", "provider", b.provider, "failures", b.failures)
		}
	case StateHalfOpen:
		b.probeInFlight = false
		b.transition(StateOpen)
		slog.Warn("circuit breaker reopened after failed probe", "provider", b.provider)
	}
}

// Release abandons an admitted call without counting it either way, e.g.
// when the caller was cancelled mid-flight. Without it a cancelled half-open
// probe would wedge the breaker.
func (b *CircuitBreaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeInFlight = false
}

// transition must be called with b.mu held.
func (b *CircuitBreaker) transition(next BreakerState) {
	b.state = next
	b.changedAt = b.now()
	switch next {
	case StateClosed:
		b.failures = 0
		b.successes = 0
	case StateOpen:
		b.successes = 0
	case StateHalfOpen:
		b.successes = 0
	}
}

// BreakerStatus is a read-only snapshot for introspection endpoints.
type BreakerStatus struct {
	Provider             string    `json:"provider"`
	State                string    `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	ChangedAt            time.Time `json:"changed_at"`
}

// Status returns the current snapshot.
func (b *CircuitBreaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStatus{
		Provider:             b.provider,
		State:                b.state.String(),
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		ChangedAt:            b.changedAt,
	}
}
