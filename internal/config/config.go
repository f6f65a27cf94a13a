package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	LLM      LLMConfig
}

type ServerConfig struct {
	Host string
	Port int

	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

// LLMConfig describes the providers and the resilience parameters of the
// gateway. Adapters are wired for every credential that is present.
type LLMConfig struct {
	OpenAIKey      string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	GeminiKey      string
	GeminiModel    string
	OllamaURL      string
	OllamaModel    string
	MockResponse   string

	// ProviderOrder is the default fallback priority for Send calls that
	// pin no explicit order.
	ProviderOrder []string

	RequestTimeout time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration

	BreakerFailureThreshold int
	BreakerOpenDuration     time.Duration
	BreakerSuccessThreshold int

	// Overrides carries per-provider settings keyed by provider name,
	// loaded from LLM_<PROVIDER>_* env vars. Zero-valued fields inherit
	// the gateway-wide values above.
	Overrides map[string]ProviderOverride
}

// ProviderOverride is one provider's deviation from the gateway-wide
// resilience and call parameters.
type ProviderOverride struct {
	BaseURL        string
	Timeout        time.Duration
	Temperature    float64
	MaxTokens      int
	RetryAttempts  int
	RetryBaseDelay time.Duration

	BreakerFailureThreshold int
	BreakerOpenDuration     time.Duration
	BreakerSuccessThreshold int
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	rateLimitRPS, err := getEnvFloat("SERVER_RATE_LIMIT_RPS", 100)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_RATE_LIMIT_RPS: %w", err)
	}

	rateLimitBurst, err := getEnvInt("SERVER_RATE_LIMIT_BURST", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_RATE_LIMIT_BURST: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	retryAttempts, err := getEnvInt("LLM_RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_RETRY_ATTEMPTS: %w", err)
	}

	retryBaseDelay, err := getEnvDuration("LLM_RETRY_BASE_DELAY", time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_RETRY_BASE_DELAY: %w", err)
	}

	requestTimeout, err := getEnvDuration("LLM_REQUEST_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_REQUEST_TIMEOUT: %w", err)
	}

	failureThreshold, err := getEnvInt("LLM_BREAKER_FAILURE_THRESHOLD", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_BREAKER_FAILURE_THRESHOLD: %w", err)
	}

	openDuration, err := getEnvDuration("LLM_BREAKER_OPEN_DURATION", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_BREAKER_OPEN_DURATION: %w", err)
	}

	successThreshold, err := getEnvInt("LLM_BREAKER_SUCCESS_THRESHOLD", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_BREAKER_SUCCESS_THRESHOLD: %w", err)
	}

	overrides, err := loadProviderOverrides()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,

			RateLimitRPS:   rateLimitRPS,
			RateLimitBurst: rateLimitBurst,
			CORSOrigins:    splitList(getEnv("SERVER_CORS_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: maxConns,
			MinConns: minConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:    getEnv("LLM_OPENAI_MODEL", "gpt-4o"),
			AnthropicKey:   getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel: getEnv("LLM_ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			GeminiKey:      getEnv("GOOGLE_API_KEY", ""),
			GeminiModel:    getEnv("LLM_GEMINI_MODEL", "gemini-1.5-flash"),
			OllamaURL:      getEnv("OLLAMA_URL", ""),
			OllamaModel:    getEnv("LLM_OLLAMA_MODEL", "llama3"),
			MockResponse:   getEnv("LLM_MOCK_RESPONSE", ""),

			ProviderOrder: splitList(getEnv("LLM_PROVIDER_ORDER", "openai,anthropic,gemini,ollama")),

			RequestTimeout: requestTimeout,
			RetryAttempts:  retryAttempts,
			RetryBaseDelay: retryBaseDelay,

			BreakerFailureThreshold: failureThreshold,
			BreakerOpenDuration:     openDuration,
			BreakerSuccessThreshold: successThreshold,

			Overrides: overrides,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if !c.LLM.AnyProvider() {
		missing = append(missing, "OPENAI_API_KEY|ANTHROPIC_API_KEY|GOOGLE_API_KEY|OLLAMA_URL|LLM_MOCK_RESPONSE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

// AnyProvider reports whether at least one backend is configured.
func (c LLMConfig) AnyProvider() bool {
	return c.OpenAIKey != "" || c.AnthropicKey != "" || c.GeminiKey != "" ||
		c.OllamaURL != "" || c.MockResponse != ""
}

// overridableProviders are the backends that accept LLM_<PROVIDER>_* env
// overrides. The mock never needs them.
var overridableProviders = []string{"openai", "anthropic", "gemini", "ollama"}

func loadProviderOverrides() (map[string]ProviderOverride, error) {
	overrides := make(map[string]ProviderOverride)
	for _, name := range overridableProviders {
		prefix := "LLM_" + strings.ToUpper(name) + "_"

		var o ProviderOverride
		var err error
		o.BaseURL = getEnv(prefix+"BASE_URL", "")
		if o.Timeout, err = getEnvDuration(prefix+"TIMEOUT", 0); err != nil {
			return nil, fmt.Errorf("invalid %sTIMEOUT: %w", prefix, err)
		}
		if o.Temperature, err = getEnvFloat(prefix+"TEMPERATURE", 0); err != nil {
			return nil, fmt.Errorf("invalid %sTEMPERATURE: %w", prefix, err)
		}
		if o.MaxTokens, err = getEnvInt(prefix+"MAX_TOKENS", 0); err != nil {
			return nil, fmt.Errorf("invalid %sMAX_TOKENS: %w", prefix, err)
		}
		if o.RetryAttempts, err = getEnvInt(prefix+"RETRY_ATTEMPTS", 0); err != nil {
			return nil, fmt.Errorf("invalid %sRETRY_ATTEMPTS: %w", prefix, err)
		}
		if o.RetryBaseDelay, err = getEnvDuration(prefix+"RETRY_BASE_DELAY", 0); err != nil {
			return nil, fmt.Errorf("invalid %sRETRY_BASE_DELAY: %w", prefix, err)
		}
		if o.BreakerFailureThreshold, err = getEnvInt(prefix+"BREAKER_FAILURE_THRESHOLD", 0); err != nil {
			return nil, fmt.Errorf("invalid %sBREAKER_FAILURE_THRESHOLD: %w", prefix, err)
		}
		if o.BreakerOpenDuration, err = getEnvDuration(prefix+"BREAKER_OPEN_DURATION", 0); err != nil {
			return nil, fmt.Errorf("invalid %sBREAKER_OPEN_DURATION: %w", prefix, err)
		}
		if o.BreakerSuccessThreshold, err = getEnvInt(prefix+"BREAKER_SUCCESS_THRESHOLD", 0); err != nil {
			return nil, fmt.Errorf("invalid %sBREAKER_SUCCESS_THRESHOLD: %w", prefix, err)
		}

		if o != (ProviderOverride{}) {
			overrides[name] = o
		}
	}
	return overrides, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
