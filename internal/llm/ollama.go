package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OllamaProvider talks to a local Ollama daemon. Inference is free, so its
// responses always account to zero cost.
type OllamaProvider struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

func NewOllamaProvider(baseURL, defaultModel string) *OllamaProvider {
	if defaultModel == "" {
		defaultModel = "llama3"
	}
	return &OllamaProvider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Models() []string {
	return []string{"llama3", "mistral", "codellama", "phi3:mini"}
}

type ollamaChatReq struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	// Options is an open map so request extras pass through untouched.
	Options map[string]any `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResp struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func (p *OllamaProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	msgs := make([]ollamaMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}

	oReq := ollamaChatReq{
		Model:    model,
		Messages: msgs,
		Stream:   false,
		Options:  ollamaOptions(req),
	}

	body, _ := json.Marshal(oReq)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Kind: KindInvalidRequest, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{
			Provider: "ollama",
			Kind:     classifyStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("ollama chat: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}

	var oResp ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, &ProviderError{Provider: "ollama", Kind: KindServer, Err: fmt.Errorf("ollama decode: %w", err)}
	}

	// Older daemons omit eval counts; leave them unknown so the accountant
	// falls back to word-based estimation.
	promptTokens := oResp.PromptEvalCount
	if promptTokens == 0 {
		promptTokens = TokenCountUnknown
	}
	completionTokens := oResp.EvalCount
	if completionTokens == 0 {
		completionTokens = TokenCountUnknown
	}

	finish := FinishStop
	if oResp.DoneReason == "length" {
		finish = FinishLength
	}

	return &ChatResponse{
		ID:           uuid.NewString(),
		Provider:     "ollama",
		Model:        model,
		Role:         "assistant",
		Content:      oResp.Message.Content,
		FinishReason: finish,
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// ollamaOptions builds the daemon's options object from the request's
// sampling parameters and forwards every extra key verbatim. Named fields win
// over extras of the same name.
func ollamaOptions(req ChatRequest) map[string]any {
	opts := make(map[string]any, len(req.Extra)+4)
	for k, v := range req.Extra {
		opts[k] = v
	}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if req.TopP > 0 {
		opts["top_p"] = req.TopP
	}
	if req.TopK > 0 {
		opts["top_k"] = req.TopK
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// HealthCheck hits /api/tags, the daemon's cheap liveness endpoint.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return &ProviderError{Provider: "ollama", Kind: KindInvalidRequest, Err: err}
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return &ProviderError{Provider: "ollama", Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ProviderError{
			Provider: "ollama",
			Kind:     classifyStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("ollama tags: status %d", resp.StatusCode),
		}
	}
	return nil
}
