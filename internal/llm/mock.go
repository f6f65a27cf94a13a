package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockStep is one scripted outcome of the mock provider: either a response
// or an injected failure.
type MockStep struct {
	Content string
	Err     error
}

// MockProvider is a deterministic test double. It cycles through its script
// one step per call; repeated identical call sequences produce identical
// response sequences. Cost always accounts to zero.
type MockProvider struct {
	name  string
	steps []MockStep

	mu    sync.Mutex
	calls int
}

// NewMockProvider builds a mock cycling through steps. With no steps it
// always answers "mock-response".
func NewMockProvider(name string, steps ...MockStep) *MockProvider {
	if name == "" {
		name = "mock"
	}
	if len(steps) == 0 {
		steps = []MockStep{{Content: "mock-response"}}
	}
	return &MockProvider{name: name, steps: steps}
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) Models() []string { return []string{"mock-model"} }

// Calls returns how many times ChatCompletion ran, for assertions about
// which providers a gateway actually invoked.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *MockProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ProviderError{Provider: p.name, Kind: KindCancelled, Err: err}
	}

	p.mu.Lock()
	step := p.steps[p.calls%len(p.steps)]
	p.calls++
	n := p.calls
	p.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}

	// Token counts stay unknown so the accountant's estimator path runs.
	return &ChatResponse{
		ID:           fmt.Sprintf("%s-%d", p.name, n),
		Provider:     p.name,
		Model:        "mock-model",
		Role:         "assistant",
		Content:      step.Content,
		FinishReason: FinishStop,
		Usage: Usage{
			PromptTokens:     TokenCountUnknown,
			CompletionTokens: TokenCountUnknown,
		},
	}, nil
}

func (p *MockProvider) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}
