package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name             string
		provider         string
		model            string
		promptTokens     int
		completionTokens int
		want             float64
	}{
		{"gpt-4o", "openai", "gpt-4o", 1000, 1000, 0.005 + 0.015},
		{"gpt-4o-mini small call", "openai", "gpt-4o-mini", 200, 100, 200.0/1000*0.00015 + 100.0/1000*0.0006},
		{"claude sonnet", "anthropic", "claude-sonnet-4-20250514", 500, 500, 500.0/1000*0.003 + 500.0/1000*0.015},
		{"gemini flash", "gemini", "gemini-1.5-flash", 1000, 0, 0.000075},
		{"ollama is free", "ollama", "llama3", 100000, 100000, 0},
		{"mock is free", "mock", "mock-model", 1000, 1000, 0},
		{"unknown provider", "someprovider", "somemodel", 1000, 1000, 0},
		{"unknown model", "openai", "gpt-9", 1000, 1000, 0},
		{"zero tokens", "openai", "gpt-4o", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCost(tt.provider, tt.model, tt.promptTokens, tt.completionTokens)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
