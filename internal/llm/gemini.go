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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider speaks the Generative Language REST API directly; there is
// no SDK dependency for it here.
type GeminiProvider struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

func NewGeminiProvider(apiKey, defaultModel, baseURL string) *GeminiProvider {
	if defaultModel == "" {
		defaultModel = "gemini-1.5-flash"
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiProvider{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Models() []string {
	return []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash"}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenReq struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	// GenerationConfig is an open map so request extras pass through untouched.
	GenerationConfig map[string]any `json:"generationConfig,omitempty"`
}

type geminiGenResp struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p *GeminiProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	// Gemini names the assistant role "model" and takes the system prompt
	// as a separate instruction block.
	var system *geminiContent
	var contents []geminiContent
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
		case "assistant":
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	gReq := geminiGenReq{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig:  geminiGenConfig(req),
	}

	var gResp geminiGenResp
	if err := p.post(ctx, fmt.Sprintf("/models/%s:generateContent", model), gReq, &gResp); err != nil {
		return nil, err
	}

	content := ""
	finish := FinishStop
	if len(gResp.Candidates) > 0 {
		for _, part := range gResp.Candidates[0].Content.Parts {
			content += part.Text
		}
		switch gResp.Candidates[0].FinishReason {
		case "STOP", "":
			finish = FinishStop
		case "MAX_TOKENS":
			finish = FinishLength
		default:
			finish = FinishError
		}
	}

	// Usage metadata is usually present; missing or zero counts fall back to
	// estimation rather than passing through as exact zeros.
	promptTokens := TokenCountUnknown
	completionTokens := TokenCountUnknown
	if gResp.UsageMetadata != nil {
		if gResp.UsageMetadata.PromptTokenCount > 0 {
			promptTokens = gResp.UsageMetadata.PromptTokenCount
		}
		if gResp.UsageMetadata.CandidatesTokenCount > 0 {
			completionTokens = gResp.UsageMetadata.CandidatesTokenCount
		}
	}

	return &ChatResponse{
		ID:           uuid.NewString(),
		Provider:     "gemini",
		Model:        model,
		Role:         "assistant",
		Content:      content,
		FinishReason: finish,
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// geminiGenConfig builds the generationConfig object from the request's
// sampling parameters and forwards every extra key verbatim. Named fields win
// over extras of the same name.
func geminiGenConfig(req ChatRequest) map[string]any {
	cfg := make(map[string]any, len(req.Extra)+5)
	for k, v := range req.Extra {
		cfg[k] = v
	}
	if req.Temperature > 0 {
		cfg["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		cfg["maxOutputTokens"] = req.MaxTokens
	}
	if req.TopP > 0 {
		cfg["topP"] = req.TopP
	}
	if req.TopK > 0 {
		cfg["topK"] = req.TopK
	}
	if len(req.Stop) > 0 {
		cfg["stopSequences"] = req.Stop
	}
	if len(cfg) == 0 {
		return nil
	}
	return cfg
}

// HealthCheck counts tokens for a one-word prompt, the cheapest authenticated
// round trip the API offers.
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	body := map[string]any{
		"contents": []geminiContent{{Role: "user", Parts: []geminiPart{{Text: "ping"}}}},
	}
	var out struct {
		TotalTokens int `json:"totalTokens"`
	}
	return p.post(ctx, fmt.Sprintf("/models/%s:countTokens", p.defaultModel), body, &out)
}

func (p *GeminiProvider) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &ProviderError{Provider: "gemini", Kind: KindInvalidRequest, Err: err}
	}

	url := p.baseURL + path + "?key=" + p.apiKey
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &ProviderError{Provider: "gemini", Kind: KindInvalidRequest, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return &ProviderError{Provider: "gemini", Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		var gErr geminiErrorResp
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &gErr) == nil && gErr.Error.Message != "" {
			msg = gErr.Error.Message
		}
		return &ProviderError{
			Provider: "gemini",
			Kind:     classifyStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("gemini: status %d: %s", resp.StatusCode, msg),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: "gemini", Kind: KindServer, Err: fmt.Errorf("gemini decode: %w", err)}
	}
	return nil
}
