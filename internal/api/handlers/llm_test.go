package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/llmgateway/internal/llm"
)

func testGateway(providers ...llm.Provider) llm.Gateway {
	return llm.New(llm.Options{
		Timeout: time.Second,
		Retry:   llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}, providers...)
}

func postChat(t *testing.T, h *LLMHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/llm/chat", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Chat(rr, req)
	return rr
}

func TestChatSuccess(t *testing.T) {
	gw := testGateway(llm.NewMockProvider("mock", llm.MockStep{Content: "pong"}))
	h := NewLLMHandler(gw)

	rr := postChat(t, h, `{"messages":[{"role":"user","content":"ping"}]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp llm.ChatResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, "mock", resp.Provider)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestChatPinsProviderOrder(t *testing.T) {
	a := llm.NewMockProvider("a", llm.MockStep{Content: "from a"})
	b := llm.NewMockProvider("b", llm.MockStep{Content: "from b"})
	h := NewLLMHandler(testGateway(a, b))

	rr := postChat(t, h, `{"messages":[{"role":"user","content":"ping"}],"providers":["b"]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp llm.ChatResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "b", resp.Provider)
	assert.Equal(t, 0, a.Calls())
}

func TestChatBadJSON(t *testing.T) {
	h := NewLLMHandler(testGateway(llm.NewMockProvider("mock")))

	rr := postChat(t, h, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChatValidationError(t *testing.T) {
	h := NewLLMHandler(testGateway(llm.NewMockProvider("mock")))

	rr := postChat(t, h, `{"messages":[]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, string(llm.KindInvalidRequest), body["kind"])
}

func TestChatAllProvidersDown(t *testing.T) {
	failing := llm.NewMockProvider("mock", llm.MockStep{
		Err: &llm.ProviderError{Provider: "mock", Kind: llm.KindServer, Err: errors.New("down")},
	})
	h := NewLLMHandler(testGateway(failing))

	rr := postChat(t, h, `{"messages":[{"role":"user","content":"ping"}]}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body struct {
		Error    string `json:"error"`
		Failures []struct {
			Provider string `json:"provider"`
			Attempts int    `json:"attempts"`
			Kind     string `json:"kind"`
		} `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Failures, 1)
	assert.Equal(t, "mock", body.Failures[0].Provider)
	assert.Equal(t, 3, body.Failures[0].Attempts)
	assert.Equal(t, "server_error", body.Failures[0].Kind)
}

func TestModels(t *testing.T) {
	h := NewLLMHandler(testGateway(llm.NewMockProvider("mock")))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/llm/models", nil)
	rr := httptest.NewRecorder()
	h.Models(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Models []llm.ModelInfo `json:"models"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Models, 1)
	assert.Equal(t, "mock", body.Models[0].Provider)
}

func TestBreakers(t *testing.T) {
	h := NewLLMHandler(testGateway(llm.NewMockProvider("mock")))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/llm/breakers", nil)
	rr := httptest.NewRecorder()
	h.Breakers(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Breakers map[string]llm.BreakerStatus `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Contains(t, body.Breakers, "mock")
	assert.Equal(t, "closed", body.Breakers["mock"].State)
}

func TestProviderHealth(t *testing.T) {
	h := NewLLMHandler(testGateway(llm.NewMockProvider("mock")))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/llm/health", nil)
	rr := httptest.NewRecorder()
	h.Health(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Providers map[string]llm.HealthStatus `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Providers["mock"].Healthy)
}
