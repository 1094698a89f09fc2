package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Supported model providers.
const (
	ProviderScripted  = "scripted"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Supported session backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelRaw string `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel    slog.Level

	LLMProvider     string  `env:"LLM_PROVIDER" envDefault:"scripted"`
	ModelName       string  `env:"MODEL_NAME"`
	OllamaBaseURL   string  `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaModel     string  `env:"OLLAMA_MODEL" envDefault:"mistral"`
	Temperature     float64 `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	MaxTokens       int     `env:"LLM_MAX_TOKENS" envDefault:"150"`
	OpenAIAPIKey    string  `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string  `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string  `env:"GEMINI_API_KEY"`

	ModelTimeout time.Duration `env:"MODEL_TIMEOUT" envDefault:"30s"`
	ModelRetries int           `env:"MODEL_RETRIES" envDefault:"1"`

	SessionBackend string        `env:"SESSION_BACKEND" envDefault:"memory"`
	RedisURL       string        `env:"REDIS_URL" envDefault:"localhost:6379"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"1h"`

	CatalogDir string `env:"CATALOG_DIR"`

	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	VoiceRate      int     `env:"TTS_VOICE_RATE" envDefault:"150"`
	VoiceVolume    float64 `env:"TTS_VOICE_VOLUME" envDefault:"1.0"`
	SpeechLanguage string  `env:"SPEECH_LANGUAGE" envDefault:"en-US"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadFrom builds a Config from the given variables only. It is used by
// tests and tools that must not depend on the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.LLMProvider {
	case ProviderScripted, ProviderOllama:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.LLMProvider))
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.LLMProvider))
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.LLMProvider))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider))
	}

	switch c.SessionBackend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unsupported SESSION_BACKEND %q", c.SessionBackend))
	}

	if c.ModelRetries < 0 || c.ModelRetries > 1 {
		errs = append(errs, fmt.Errorf("MODEL_RETRIES must be 0 or 1, got %d", c.ModelRetries))
	}
	if c.ModelTimeout <= 0 {
		errs = append(errs, fmt.Errorf("MODEL_TIMEOUT must be positive"))
	}
	if c.VoiceVolume < 0 || c.VoiceVolume > 1 {
		errs = append(errs, fmt.Errorf("TTS_VOICE_VOLUME must be between 0.0 and 1.0, got %v", c.VoiceVolume))
	}
	if c.OTelEnabled && c.OTelEndpoint == "" {
		errs = append(errs, fmt.Errorf("OTEL_ENDPOINT is required when OTEL_ENABLED is set"))
	}

	return errors.Join(errs...)
}

// Model returns the model name for the configured provider.
func (c *Config) Model() string {
	if c.ModelName != "" {
		return c.ModelName
	}
	switch c.LLMProvider {
	case ProviderOllama:
		return c.OllamaModel
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderGemini:
		return "gemini-2.0-flash"
	default:
		return ProviderScripted
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
