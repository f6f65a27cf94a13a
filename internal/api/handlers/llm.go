package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nikhilbhutani/llmgateway/internal/llm"
)

type LLMHandler struct {
	gateway llm.Gateway
}

func NewLLMHandler(gw llm.Gateway) *LLMHandler {
	return &LLMHandler{gateway: gw}
}

type chatRequest struct {
	llm.ChatRequest
	// Providers pins the fallback order for this call. Empty means the
	// gateway's configured default.
	Providers []string `json:"providers,omitempty"`
}

func (h *LLMHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	resp, err := h.gateway.Send(r.Context(), req.ChatRequest, req.Providers...)
	if err != nil {
		writeJSON(w, statusForError(err), errorBody(err))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *LLMHandler) Models(w http.ResponseWriter, r *http.Request) {
	models := h.gateway.ListModels()
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}

func (h *LLMHandler) Health(w http.ResponseWriter, r *http.Request) {
	statuses := h.gateway.CheckAllHealth(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": statuses})
}

func (h *LLMHandler) Breakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"breakers": h.gateway.BreakerStatuses()})
}

// statusForError maps gateway failures to HTTP statuses. Bad input is the
// caller's fault, an exhausted fallback chain means no backend was usable,
// and anything else is a single upstream failure.
func statusForError(err error) int {
	var agg *llm.AggregateError
	if errors.As(err, &agg) {
		return http.StatusServiceUnavailable
	}
	switch llm.KindOf(err) {
	case llm.KindInvalidRequest:
		return http.StatusBadRequest
	case llm.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

func errorBody(err error) map[string]interface{} {
	body := map[string]interface{}{"error": err.Error()}

	var agg *llm.AggregateError
	if errors.As(err, &agg) {
		failures := make([]map[string]interface{}, 0, len(agg.Failures))
		for _, f := range agg.Failures {
			failures = append(failures, map[string]interface{}{
				"provider": f.Provider,
				"attempts": f.Attempts,
				"kind":     f.Kind,
				"error":    f.Err.Error(),
			})
		}
		body["failures"] = failures
		return body
	}

	if kind := llm.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	return body
}
