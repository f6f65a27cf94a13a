package llm

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy bounds the retry loop around a single provider.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget (1 initial + retries).
	MaxAttempts int
	// BaseDelay is the wait before the first retry; it doubles before each
	// subsequent one (1s, 2s, 4s with the default).
	BaseDelay time.Duration
}

// DefaultRetryPolicy is 3 attempts with 1s/2s delays between them.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	return p
}

// delayBefore returns the backoff applied before attempt n (1-based):
// zero for the first attempt, then BaseDelay * 2^(n-2).
func (p RetryPolicy) delayBefore(n int) time.Duration {
	if n <= 1 {
		return 0
	}
	return p.BaseDelay << (n - 2)
}

// Attempt is one entry of the ephemeral per-call retry log. It exists only
// for the duration of one Send call, for error building and logging.
type Attempt struct {
	Number int
	Delay  time.Duration
	Err    error
}

type operation func(ctx context.Context) (*ChatResponse, error)

// runWithRetry executes op under the policy. Delays are real cancellable
// waits, never busy loops. Non-retryable errors propagate unchanged after
// the first attempt; exhaustion wraps the last error with the attempt count.
func runWithRetry(ctx context.Context, provider string, policy RetryPolicy, op operation) (*ChatResponse, []Attempt, error) {
	policy = policy.normalize()

	var attempts []Attempt
	var lastErr error

	for n := 1; n <= policy.MaxAttempts; n++ {
		if delay := policy.delayBefore(n); delay > 0 {
			select {
			case <-ctx.Done():
				return nil, attempts, &ProviderError{Provider: provider, Kind: KindCancelled, Err: ctx.Err()}
			case <-time.After(delay):
			}
			slog.Debug("retrying provider call", "provider", provider, "attempt", n, "delay", delay)
		}

		resp, err := op(ctx)
		if err == nil {
			// Success on any attempt surfaces as a plain success; earlier
			// failures live only in the attempt log.
			return resp, attempts, nil
		}
		lastErr = err
		attempts = append(attempts, Attempt{Number: n, Delay: policy.delayBefore(n), Err: err})

		kind := KindOf(err)
		if kind == KindCancelled || ctx.Err() != nil {
			return nil, attempts, &ProviderError{Provider: provider, Kind: KindCancelled, Err: err}
		}
		if !kind.Retryable() {
			return nil, attempts, err
		}
	}

	return nil, attempts, &RetryExhaustedError{Provider: provider, Attempts: policy.MaxAttempts, Last: lastErr}
}
