package llm

import (
	"context"
	"time"
)

// TokenCountUnknown marks a token count the backend did not report.
// The usage accountant replaces it with a word-based estimate.
const TokenCountUnknown = -1

// Provider abstracts an LLM backend (OpenAI, Anthropic, Gemini, Ollama, mock).
type Provider interface {
	// ChatCompletion sends a chat request to the backend. Failures must be
	// returned as *ProviderError so the retry and breaker layers can key on
	// the error kind.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// HealthCheck probes backend liveness. It must honor ctx and never
	// touches circuit-breaker state.
	HealthCheck(ctx context.Context) error
	Name() string
	Models() []string
}

// Gateway provides multi-provider chat completions with retry, per-provider
// circuit breaking and ordered fallback.
type Gateway interface {
	// Send tries each provider in order until one succeeds. With no explicit
	// order it uses the configured default order. On total failure it returns
	// an *AggregateError with one entry per attempted provider.
	Send(ctx context.Context, req ChatRequest, providerOrder ...string) (*ChatResponse, error)

	Provider(name string) (Provider, error)
	ListModels() []ModelInfo

	// CheckHealth probes a single provider, independent of breaker state.
	CheckHealth(ctx context.Context, provider string) HealthStatus
	// CheckAllHealth probes every configured provider.
	CheckAllHealth(ctx context.Context) map[string]HealthStatus

	// BreakerStatus returns a read-only snapshot of a provider's breaker.
	BreakerStatus(provider string) (BreakerStatus, error)
	BreakerStatuses() map[string]BreakerStatus
}

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatRequest is the uniform input for chat completions across providers.
// Immutable once constructed; adapters must not modify it.
type ChatRequest struct {
	Model       string         `json:"model,omitempty"`
	Messages    []Message      `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	TopP        float64        `json:"top_p,omitempty"`
	TopK        int            `json:"top_k,omitempty"`
	Stop        []string       `json:"stop,omitempty"`
	// Extra carries provider-specific parameters. Ollama and Gemini forward
	// every key into their options/generationConfig objects; OpenAI honors
	// user, seed, frequency_penalty and presence_penalty; Anthropic honors
	// user_id. Unknown keys are ignored by adapters with typed wire formats.
	Extra map[string]any `json:"extra,omitempty"`
}

// extraNumber coerces a request-extra value to float64. JSON decoding yields
// float64; Go callers may pass ints.
func extraNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ChatResponse is the uniform output from chat completions.
type ChatResponse struct {
	ID           string `json:"id"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Role         string `json:"role"` // always "assistant"
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"` // stop, length, error
	Usage        Usage  `json:"usage"`
	LatencyMs    int64  `json:"latency_ms"`
}

// Finish reasons reported on a ChatResponse.
const (
	FinishStop   = "stop"
	FinishLength = "length"
	FinishError  = "error"
)

// Usage holds token counts and cost for one completed call.
// Invariant after accounting: TotalTokens == PromptTokens + CompletionTokens,
// CostUSD >= 0, and CostUSD == 0 for local/mock providers.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// ProviderConfig is the startup-time description of one backend. Zero-valued
// fields fall back to the gateway-wide defaults. Read-only after gateway
// construction; never mutated during request handling.
type ProviderConfig struct {
	ID      string
	Model   string
	APIKey  string
	BaseURL string

	// Timeout bounds each individual call to this provider.
	Timeout time.Duration
	// Temperature and MaxTokens are per-call defaults applied when the
	// request leaves them unset.
	Temperature float64
	MaxTokens   int

	Retry   RetryPolicy
	Breaker BreakerConfig
}

// ModelInfo describes an available model.
type ModelInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// HealthStatus is the result of a health probe.
type HealthStatus struct {
	Provider  string `json:"provider"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// UsageRecord is what the accountant pushes to the usage sink after every
// successful call.
type UsageRecord struct {
	RequestID        string    `json:"request_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	LatencyMs        int64     `json:"latency_ms"`
	Estimated        bool      `json:"estimated"` // token counts are word-based estimates
	Timestamp        time.Time `json:"timestamp"`
}
