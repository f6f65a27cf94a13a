package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

func NewOpenAIProvider(apiKey, defaultModel, baseURL string) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Models() []string {
	return []string{
		"gpt-4", "gpt-4-turbo", "gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo",
	}
}

func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	oReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if req.Temperature > 0 {
		oReq.Temperature = float32(req.Temperature)
	}
	if req.MaxTokens > 0 {
		oReq.MaxTokens = req.MaxTokens
	}
	if req.TopP > 0 {
		oReq.TopP = float32(req.TopP)
	}
	if len(req.Stop) > 0 {
		oReq.Stop = req.Stop
	}
	applyOpenAIExtras(&oReq, req.Extra)

	resp, err := p.client.CreateChatCompletion(ctx, oReq)
	if err != nil {
		return nil, p.classify(err)
	}

	content := ""
	finish := FinishStop
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		if resp.Choices[0].FinishReason == openai.FinishReasonLength {
			finish = FinishLength
		}
	}

	return &ChatResponse{
		ID:           resp.ID,
		Provider:     "openai",
		Model:        resp.Model,
		Role:         "assistant",
		Content:      content,
		FinishReason: finish,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.client.ListModels(ctx)
	if err != nil {
		return p.classify(err)
	}
	return nil
}

// applyOpenAIExtras maps the supported subset of request extras onto the
// typed wire format. Unknown keys are dropped.
func applyOpenAIExtras(oReq *openai.ChatCompletionRequest, extra map[string]any) {
	for key, value := range extra {
		switch key {
		case "user":
			if s, ok := value.(string); ok {
				oReq.User = s
			}
		case "seed":
			if n, ok := extraNumber(value); ok {
				seed := int(n)
				oReq.Seed = &seed
			}
		case "frequency_penalty":
			if n, ok := extraNumber(value); ok {
				oReq.FrequencyPenalty = float32(n)
			}
		case "presence_penalty":
			if n, ok := extraNumber(value); ok {
				oReq.PresencePenalty = float32(n)
			}
		}
	}
}

func (p *OpenAIProvider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "openai", Kind: classifyStatus(apiErr.HTTPStatusCode), Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: "openai", Kind: classifyStatus(reqErr.HTTPStatusCode), Status: reqErr.HTTPStatusCode, Err: err}
	}
	return &ProviderError{Provider: "openai", Kind: classifyTransport(err), Err: err}
}
