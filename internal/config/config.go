package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the gateway.
type Config struct {
	Port      int
	Redis     RedisConfig
	Providers ProvidersConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Webhook   WebhookConfig
	Database  DatabaseConfig
}

type RedisConfig struct {
	Host string
	Port int
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + strconv.Itoa(r.Port)
}

type ProvidersConfig struct {
	OpenAIAPIKey          string
	GeminiAPIKey          string
	PrimaryProvider       string
	EmbeddingProvider     string
	AllowProviderOverride bool
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	ServiceAPIKey string
}

type WebhookConfig struct {
	BaseURL string
	Secret  string
}

// DatabaseConfig configures ticket-classification persistence. When DSN is
// empty, the gateway runs without a persistence backend.
type DatabaseConfig struct {
	DSN string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port: envInt("PORT", 8080),
		Redis: RedisConfig{
			Host: envStr("REDIS_HOST", "localhost"),
			Port: envInt("REDIS_PORT", 6379),
		},
		Providers: ProvidersConfig{
			OpenAIAPIKey:          envStr("OPENAI_API_KEY", ""),
			GeminiAPIKey:          envStr("GEMINI_API_KEY", ""),
			PrimaryProvider:       envStr("PRIMARY_LLM_PROVIDER", "openai"),
			EmbeddingProvider:     envStr("EMBEDDING_PROVIDER", "openai"),
			AllowProviderOverride: envBool("ALLOW_PROVIDER_OVERRIDE", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "llmgate"),
		},
		Auth: AuthConfig{
			ServiceAPIKey: envStr("SERVICE_API_KEY", ""),
		},
		Webhook: WebhookConfig{
			BaseURL: envStr("WEBHOOK_BASE_URL", ""),
			Secret:  envStr("WEBHOOK_SECRET", ""),
		},
		Database: DatabaseConfig{
			DSN: envStr("DATABASE_URL", ""),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
