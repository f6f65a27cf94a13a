package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorKind classifies a provider failure. Retry and circuit-breaker
// decisions key on the kind, never on concrete backend error types.
type ErrorKind string

const (
	KindConnection     ErrorKind = "connection"
	KindTimeout        ErrorKind = "timeout"
	KindRateLimited    ErrorKind = "rate_limited"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindAuth           ErrorKind = "auth_error"
	KindServer         ErrorKind = "server_error"
	KindCircuitOpen    ErrorKind = "circuit_open"
	KindCancelled      ErrorKind = "cancelled"
)

// retryableKinds are retried locally before the failure is escalated to the
// breaker. invalid_request and auth_error fail immediately.
var retryableKinds = map[ErrorKind]bool{
	KindConnection:  true,
	KindTimeout:     true,
	KindRateLimited: true,
	KindServer:      true,
}

// Retryable reports whether an error of this kind may be retried.
func (k ErrorKind) Retryable() bool { return retryableKinds[k] }

// ProviderError is a classified failure from one provider adapter.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Status   int // HTTP status when applicable, 0 otherwise
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// CircuitOpenError rejects a call without touching the adapter. The
// orchestrator treats it as "skip this provider"; it is never retried.
type CircuitOpenError struct {
	Provider string
	Until    time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: circuit open until %s", e.Provider, e.Until.Format(time.RFC3339))
}

// RetryExhaustedError wraps the last error after the retry budget ran out.
// This is the unit of failure the breaker and the orchestrator observe.
type RetryExhaustedError struct {
	Provider string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts exhausted: %v", e.Provider, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// ProviderFailure is one entry in an AggregateError.
type ProviderFailure struct {
	Provider string    `json:"provider"`
	Attempts int       `json:"attempts"`
	Kind     ErrorKind `json:"kind"`
	Err      error     `json:"-"`
}

// AggregateError is returned when every provider in the order failed. It
// preserves the final error and attempt count per provider.
type AggregateError struct {
	Failures []ProviderFailure
}

func (e *AggregateError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s (%s, %d attempts)", f.Provider, f.Kind, f.Attempts)
	}
	return fmt.Sprintf("all providers failed: %s", strings.Join(parts, "; "))
}

func (e *AggregateError) add(provider string, attempts int, err error) {
	e.Failures = append(e.Failures, ProviderFailure{
		Provider: provider,
		Attempts: attempts,
		Kind:     KindOf(err),
		Err:      err,
	})
}

// KindOf extracts the error kind, unwrapping retry and classification
// wrappers. Unclassified errors report as server_error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var open *CircuitOpenError
	if errors.As(err, &open) {
		return KindCircuitOpen
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindServer
}

// classifyStatus maps an HTTP status code from a backend to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status >= 400 && status < 500:
		return KindInvalidRequest
	case status >= 500:
		return KindServer
	default:
		return KindConnection
	}
}

// classifyTransport maps a transport-level error to an error kind. The
// adapter's own deadline reports as timeout; the caller's cancellation stays
// distinct so the orchestrator can abort the whole call.
func classifyTransport(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
}
