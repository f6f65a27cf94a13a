package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.Equal(t, []string{"openai", "anthropic", "gemini", "ollama"}, cfg.LLM.ProviderOrder)
	assert.Equal(t, 3, cfg.LLM.RetryAttempts)
	assert.Equal(t, time.Second, cfg.LLM.RetryBaseDelay)
	assert.Equal(t, 60*time.Second, cfg.LLM.RequestTimeout)
	assert.Equal(t, 5, cfg.LLM.BreakerFailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.LLM.BreakerOpenDuration)
	assert.Equal(t, 2, cfg.LLM.BreakerSuccessThreshold)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("LLM_PROVIDER_ORDER", "anthropic, ollama ,mock")
	t.Setenv("LLM_RETRY_ATTEMPTS", "5")
	t.Setenv("LLM_RETRY_BASE_DELAY", "500ms")
	t.Setenv("LLM_BREAKER_OPEN_DURATION", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"anthropic", "ollama", "mock"}, cfg.LLM.ProviderOrder)
	assert.Equal(t, 5, cfg.LLM.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.LLM.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.LLM.BreakerOpenDuration)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "SERVER_PORT", "not-a-number"},
		{"bad retry attempts", "LLM_RETRY_ATTEMPTS", "three"},
		{"bad base delay", "LLM_RETRY_BASE_DELAY", "soon"},
		{"bad open duration", "LLM_BREAKER_OPEN_DURATION", "1 minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadProviderOverrides(t *testing.T) {
	t.Setenv("LLM_OLLAMA_TIMEOUT", "5m")
	t.Setenv("LLM_OLLAMA_RETRY_ATTEMPTS", "2")
	t.Setenv("LLM_OPENAI_BREAKER_FAILURE_THRESHOLD", "3")
	t.Setenv("LLM_OPENAI_BREAKER_OPEN_DURATION", "20s")
	t.Setenv("LLM_GEMINI_BASE_URL", "http://proxy.internal/gemini")
	t.Setenv("LLM_ANTHROPIC_TEMPERATURE", "0.2")
	t.Setenv("LLM_ANTHROPIC_MAX_TOKENS", "1024")

	cfg, err := Load()
	require.NoError(t, err)

	ollama := cfg.LLM.Overrides["ollama"]
	assert.Equal(t, 5*time.Minute, ollama.Timeout)
	assert.Equal(t, 2, ollama.RetryAttempts)

	openai := cfg.LLM.Overrides["openai"]
	assert.Equal(t, 3, openai.BreakerFailureThreshold)
	assert.Equal(t, 20*time.Second, openai.BreakerOpenDuration)

	assert.Equal(t, "http://proxy.internal/gemini", cfg.LLM.Overrides["gemini"].BaseURL)

	anthropic := cfg.LLM.Overrides["anthropic"]
	assert.Equal(t, 0.2, anthropic.Temperature)
	assert.Equal(t, 1024, anthropic.MaxTokens)
}

func TestLoadProviderOverridesAbsentByDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.LLM.Overrides, "untouched providers carry no override entry")
}

func TestLoadProviderOverridesRejectBadValues(t *testing.T) {
	t.Setenv("LLM_OLLAMA_TIMEOUT", "forever")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_OLLAMA_TIMEOUT")
}

func TestLoadServerLimits(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100.0, cfg.Server.RateLimitRPS)
	assert.Equal(t, 200, cfg.Server.RateLimitBurst)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)

	t.Setenv("SERVER_RATE_LIMIT_RPS", "2.5")
	t.Setenv("SERVER_RATE_LIMIT_BURST", "10")
	t.Setenv("SERVER_CORS_ORIGINS", "https://app.example.com,https://admin.example.com")

	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, 10, cfg.Server.RateLimitBurst)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins)
}

func TestValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OLLAMA_URL", "")
	t.Setenv("LLM_MOCK_RESPONSE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.Validate(), "no secret and no provider")

	t.Setenv("JWT_SECRET", "sekrit")
	cfg, err = Load()
	require.NoError(t, err)
	require.Error(t, cfg.Validate(), "still no provider")

	t.Setenv("LLM_MOCK_RESPONSE", "pong")
	cfg, err = Load()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.LLM.AnyProvider())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b ,"))
	assert.Nil(t, splitList(""))
	assert.Nil(t, splitList(" , ,"))
}
