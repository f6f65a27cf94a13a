package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

func NewAnthropicProvider(apiKey, defaultModel, baseURL string) *AnthropicProvider {
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(clientOpts...),
		defaultModel: defaultModel,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []string {
	return []string{
		"claude-3-opus-20240229",
		"claude-3-sonnet-20240229",
		"claude-3-haiku-20240307",
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
	}
}

func (p *AnthropicProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	// Anthropic takes the system prompt out of band.
	var systemText string
	var msgs []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			systemText = m.Content
		case "user":
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	if req.TopK > 0 {
		params.TopK = anthropic.Int(int64(req.TopK))
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}
	applyAnthropicExtras(&params, req.Extra)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.classify(err)
	}

	content := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	finish := FinishStop
	if resp.StopReason == "max_tokens" {
		finish = FinishLength
	}

	return &ChatResponse{
		ID:           string(resp.ID),
		Provider:     "anthropic",
		Model:        string(resp.Model),
		Role:         "assistant",
		Content:      content,
		FinishReason: finish,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	// Minimal one-token completion; Anthropic has no dedicated liveness endpoint.
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.defaultModel),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return p.classify(err)
	}
	return nil
}

// applyAnthropicExtras maps the supported subset of request extras onto the
// typed wire format. Unknown keys are dropped.
func applyAnthropicExtras(params *anthropic.MessageNewParams, extra map[string]any) {
	for key, value := range extra {
		switch key {
		case "user_id":
			if s, ok := value.(string); ok {
				params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(s)}
			}
		}
	}
}

func (p *AnthropicProvider) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "anthropic", Kind: classifyStatus(apiErr.StatusCode), Status: apiErr.StatusCode, Err: err}
	}
	return &ProviderError{Provider: "anthropic", Kind: classifyTransport(err), Err: err}
}
