package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/llmgateway/internal/config"
)

// healthTimeout caps every health probe regardless of the caller's context.
const healthTimeout = 5 * time.Second

// Options configures a gateway built from explicit providers.
type Options struct {
	// Order is the default provider priority when Send gets none.
	Order []string
	// Timeout bounds each individual adapter call.
	Timeout time.Duration
	Retry   RetryPolicy
	Breaker BreakerConfig
	Sink    UsageSink
	// Providers holds per-provider overrides keyed by provider name.
	// Zero-valued fields inherit the gateway-wide defaults above.
	Providers map[string]ProviderConfig
}

type gateway struct {
	providers  map[string]Provider
	breakers   map[string]*CircuitBreaker
	order      []string
	timeouts   map[string]time.Duration
	policies   map[string]RetryPolicy
	defaults   map[string]ProviderConfig
	accountant *Accountant
}

// New builds a gateway over explicit providers. Breakers, timeouts and retry
// budgets are resolved one per provider so a local daemon can run with a long
// timeout while a cloud API keeps a tight breaker.
func New(opts Options, providers ...Provider) Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	g := &gateway{
		providers:  make(map[string]Provider, len(providers)),
		breakers:   make(map[string]*CircuitBreaker, len(providers)),
		timeouts:   make(map[string]time.Duration, len(providers)),
		policies:   make(map[string]RetryPolicy, len(providers)),
		defaults:   make(map[string]ProviderConfig, len(providers)),
		accountant: NewAccountant(opts.Sink),
	}
	for _, p := range providers {
		name := p.Name()
		pc := opts.Providers[name]

		breaker := opts.Breaker
		if pc.Breaker.FailureThreshold > 0 {
			breaker.FailureThreshold = pc.Breaker.FailureThreshold
		}
		if pc.Breaker.OpenDuration > 0 {
			breaker.OpenDuration = pc.Breaker.OpenDuration
		}
		if pc.Breaker.SuccessThreshold > 0 {
			breaker.SuccessThreshold = pc.Breaker.SuccessThreshold
		}

		policy := opts.Retry
		if pc.Retry.MaxAttempts > 0 {
			policy.MaxAttempts = pc.Retry.MaxAttempts
		}
		if pc.Retry.BaseDelay > 0 {
			policy.BaseDelay = pc.Retry.BaseDelay
		}

		timeout := opts.Timeout
		if pc.Timeout > 0 {
			timeout = pc.Timeout
		}

		g.providers[name] = p
		g.breakers[name] = NewCircuitBreaker(name, breaker)
		g.timeouts[name] = timeout
		g.policies[name] = policy.normalize()
		g.defaults[name] = pc
	}
	for _, name := range opts.Order {
		if _, ok := g.providers[name]; ok {
			g.order = append(g.order, name)
		}
	}
	if len(g.order) == 0 {
		for _, p := range providers {
			g.order = append(g.order, p.Name())
		}
	}
	return g
}

// NewGateway wires adapters from environment-derived config, one per
// configured credential, the mock provider included for local development.
func NewGateway(cfg config.LLMConfig, sink UsageSink) Gateway {
	overrides := make(map[string]ProviderConfig, len(cfg.Overrides))
	for name, o := range cfg.Overrides {
		overrides[name] = ProviderConfig{
			ID:          name,
			BaseURL:     o.BaseURL,
			Timeout:     o.Timeout,
			Temperature: o.Temperature,
			MaxTokens:   o.MaxTokens,
			Retry:       RetryPolicy{MaxAttempts: o.RetryAttempts, BaseDelay: o.RetryBaseDelay},
			Breaker: BreakerConfig{
				FailureThreshold: o.BreakerFailureThreshold,
				OpenDuration:     o.BreakerOpenDuration,
				SuccessThreshold: o.BreakerSuccessThreshold,
			},
		}
	}

	var providers []Provider
	if cfg.OpenAIKey != "" {
		providers = append(providers, NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIModel, overrides["openai"].BaseURL))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicKey, cfg.AnthropicModel, overrides["anthropic"].BaseURL))
	}
	if cfg.GeminiKey != "" {
		providers = append(providers, NewGeminiProvider(cfg.GeminiKey, cfg.GeminiModel, overrides["gemini"].BaseURL))
	}
	if cfg.OllamaURL != "" {
		ollamaURL := cfg.OllamaURL
		if u := overrides["ollama"].BaseURL; u != "" {
			ollamaURL = u
		}
		providers = append(providers, NewOllamaProvider(ollamaURL, cfg.OllamaModel))
	}
	if cfg.MockResponse != "" {
		providers = append(providers, NewMockProvider("mock", MockStep{Content: cfg.MockResponse}))
	}

	return New(Options{
		Order:   cfg.ProviderOrder,
		Timeout: cfg.RequestTimeout,
		Retry:   RetryPolicy{MaxAttempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay},
		Breaker: BreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			OpenDuration:     cfg.BreakerOpenDuration,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
		},
		Sink:      sink,
		Providers: overrides,
	}, providers...)
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *gateway) Send(ctx context.Context, req ChatRequest, providerOrder ...string) (*ChatResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	order := providerOrder
	if len(order) == 0 {
		order = g.order
	}
	if len(order) == 0 {
		return nil, &ProviderError{Provider: "gateway", Kind: KindInvalidRequest, Err: errors.New("no providers configured")}
	}

	agg := &AggregateError{}
	for _, name := range order {
		p, ok := g.providers[name]
		if !ok {
			agg.add(name, 0, &ProviderError{Provider: name, Kind: KindInvalidRequest, Err: errors.New("provider not configured")})
			continue
		}
		breaker := g.breakers[name]

		if err := breaker.Allow(); err != nil {
			slog.Debug("circuit open, skipping provider", "provider", name)
			agg.add(name, 0, err)
			continue
		}

		callReq := applyDefaults(req, g.defaults[name])
		timeout := g.timeouts[name]

		start := time.Now()
		resp, attempts, err := runWithRetry(ctx, name, g.policies[name], func(ctx context.Context) (*ChatResponse, error) {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return p.ChatCompletion(callCtx, callReq)
		})

		if err == nil {
			breaker.RecordSuccess()
			g.accountant.Finalize(req, resp, time.Since(start))
			return resp, nil
		}

		if KindOf(err) == KindCancelled {
			// Caller gave up: release the breaker slot and abort the whole
			// call without trying remaining providers.
			breaker.Release()
			return nil, err
		}

		var exhausted *RetryExhaustedError
		if errors.As(err, &exhausted) {
			// Only retry exhaustion counts as one breaker failure; a call
			// that succeeded on a later attempt never reaches here.
			breaker.RecordFailure()
		} else {
			breaker.Release()
		}

		slog.Warn("provider failed, trying next",
			"provider", name,
			"attempts", len(attempts),
			"kind", KindOf(err),
			"error", err,
		)
		agg.add(name, len(attempts), err)
	}

	return nil, agg
}

func (g *gateway) CheckHealth(ctx context.Context, provider string) HealthStatus {
	p, ok := g.providers[provider]
	if !ok {
		return HealthStatus{Provider: provider, Healthy: false, Error: "provider not configured"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	start := time.Now()
	err := p.HealthCheck(probeCtx)
	status := HealthStatus{
		Provider:  provider,
		Healthy:   err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func (g *gateway) CheckAllHealth(ctx context.Context) map[string]HealthStatus {
	statuses := make(map[string]HealthStatus, len(g.providers))
	for name := range g.providers {
		statuses[name] = g.CheckHealth(ctx, name)
	}
	return statuses
}

func (g *gateway) BreakerStatus(provider string) (BreakerStatus, error) {
	b, ok := g.breakers[provider]
	if !ok {
		return BreakerStatus{}, fmt.Errorf("provider %q not configured", provider)
	}
	return b.Status(), nil
}

func (g *gateway) BreakerStatuses() map[string]BreakerStatus {
	statuses := make(map[string]BreakerStatus, len(g.breakers))
	for name, b := range g.breakers {
		statuses[name] = b.Status()
	}
	return statuses
}

func (g *gateway) ListModels() []ModelInfo {
	var models []ModelInfo
	for _, p := range g.providers {
		for _, m := range p.Models() {
			models = append(models, ModelInfo{Provider: p.Name(), Model: m})
		}
	}
	return models
}

// applyDefaults fills per-provider default parameters into fields the request
// leaves unset. The caller's request is never mutated.
func applyDefaults(req ChatRequest, pc ProviderConfig) ChatRequest {
	if req.Model == "" && pc.Model != "" {
		req.Model = pc.Model
	}
	if req.Temperature == 0 && pc.Temperature > 0 {
		req.Temperature = pc.Temperature
	}
	if req.MaxTokens == 0 && pc.MaxTokens > 0 {
		req.MaxTokens = pc.MaxTokens
	}
	return req
}

// validateRequest checks message shape once, before dispatch; adapters do no
// validation of their own beyond what the backend enforces.
func validateRequest(req ChatRequest) error {
	if len(req.Messages) == 0 {
		return &ProviderError{Provider: "gateway", Kind: KindInvalidRequest, Err: errors.New("messages required")}
	}
	for i, m := range req.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return &ProviderError{Provider: "gateway", Kind: KindInvalidRequest, Err: fmt.Errorf("message %d: unknown role %q", i, m.Role)}
		}
		if m.Content == "" {
			return &ProviderError{Provider: "gateway", Kind: KindInvalidRequest, Err: fmt.Errorf("message %d: empty content", i)}
		}
	}
	return nil
}
