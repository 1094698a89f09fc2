package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

const DefaultAnthropicMaxTokens = 1024

// AnthropicService implements LLMService for Anthropic Claude
type AnthropicService struct {
	client    anthropic.Client
	modelName string
	opts      GenerationOptions
	logger    *slog.Logger
}

func NewAnthropicService(apiKey string, modelName string, opts GenerationOptions, logger *slog.Logger, reqOpts ...option.RequestOption) *AnthropicService {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, reqOpts...)
	return &AnthropicService{
		client:    anthropic.NewClient(all...),
		modelName: modelName,
		opts:      opts,
		logger:    logger,
	}
}

func (a *AnthropicService) InitModel(ctx context.Context, modelName string) error {
	a.logger.Info("Using Anthropic model", "model", modelName)
	return nil
}

// splitChatMessages extracts and combines all system messages into a single system prompt
// and returns the remaining non-system messages
func splitChatMessages(messages []chat.ChatMessage) (string, []chat.ChatMessage) {
	var systemParts []string
	var nonSystemMessages []chat.ChatMessage

	for _, msg := range messages {
		if msg.Role == chat.ChatRoleSystem {
			systemParts = append(systemParts, msg.Content)
		} else {
			nonSystemMessages = append(nonSystemMessages, msg)
		}
	}

	return strings.Join(systemParts, "\n\n"), nonSystemMessages
}

func (a *AnthropicService) GetChatResponse(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	systemPrompt, conversation := splitChatMessages(messages)

	maxTokens := int64(a.opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.modelName),
		MaxTokens:   maxTokens,
		Messages:    toAnthropicMessages(conversation),
		Temperature: anthropic.Float(a.opts.Temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	a.logger.Debug("Sending Anthropic request", "model", a.modelName, "message_count", len(conversation))
	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Body: apiErr.Error(), Err: err}
		}
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		content.WriteString(block.Text)
	}

	return &chat.ChatResponse{Message: content.String()}, nil
}

func toAnthropicMessages(messages []chat.ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.ChatRoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case chat.ChatRoleAgent:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}
