package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/npc-engine/internal/config"
	"github.com/jwebster45206/npc-engine/pkg/chat"
)

// LLMService defines the interface for interacting with a model backend
type LLMService interface {
	// InitModel prepares the backend for use on startup
	InitModel(ctx context.Context, modelName string) error

	// GetChatResponse returns the backend's raw reply to messages
	GetChatResponse(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)
}

// GenerationOptions are the sampling settings shared by all backends.
type GenerationOptions struct {
	Temperature float64
	MaxTokens   int
}

// StatusError reports a backend that answered with a non-success status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API request failed with status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }

// NewLLMService selects the backend named by cfg.LLMProvider.
func NewLLMService(cfg *config.Config, logger *slog.Logger) (LLMService, error) {
	opts := GenerationOptions{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}
	model := cfg.Model()

	switch cfg.LLMProvider {
	case config.ProviderScripted:
		return NewScriptedService(logger), nil
	case config.ProviderOllama:
		return NewOllamaService(cfg.OllamaBaseURL, model, opts, logger), nil
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required when using openai provider")
		}
		return NewOpenAIService(cfg.OpenAIAPIKey, model, opts, logger), nil
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key is required when using anthropic provider")
		}
		return NewAnthropicService(cfg.AnthropicAPIKey, model, opts, logger), nil
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("Gemini API key is required when using gemini provider")
		}
		return NewGeminiService(cfg.GeminiAPIKey, model, opts, logger), nil
	default:
		return nil, fmt.Errorf("invalid LLM provider %q", cfg.LLMProvider)
	}
}
