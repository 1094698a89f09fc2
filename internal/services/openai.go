package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

// OpenAIService implements LLMService with the OpenAI Chat Completions API.
type OpenAIService struct {
	client    openai.Client
	modelName string
	opts      GenerationOptions
	logger    *slog.Logger
}

// NewOpenAIService creates an OpenAI backend. Extra request options are
// appended after the API key, which lets tests point the client at a
// local server.
func NewOpenAIService(apiKey, modelName string, opts GenerationOptions, logger *slog.Logger, reqOpts ...option.RequestOption) *OpenAIService {
	// The gateway owns retry policy.
	all := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, reqOpts...)
	return &OpenAIService{
		client:    openai.NewClient(all...),
		modelName: modelName,
		opts:      opts,
		logger:    logger,
	}
}

func (s *OpenAIService) InitModel(ctx context.Context, modelName string) error {
	s.logger.Info("Using OpenAI model", "model", modelName)
	return nil
}

func (s *OpenAIService) GetChatResponse(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(s.modelName),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(s.opts.Temperature),
	}
	if s.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(s.opts.MaxTokens))
	}

	s.logger.Debug("Sending OpenAI request", "model", s.modelName, "message_count", len(messages))
	completion, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: "openai", StatusCode: apiErr.StatusCode, Body: apiErr.Message, Err: err}
		}
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	return &chat.ChatResponse{Message: completion.Choices[0].Message.Content}, nil
}

func toOpenAIMessages(messages []chat.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.ChatRoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case chat.ChatRoleAgent:
			out = append(out, openai.AssistantMessage(msg.Content))
		case chat.ChatRoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		default:
			// Skip unknown roles
			continue
		}
	}
	return out
}
