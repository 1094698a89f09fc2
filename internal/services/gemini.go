package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

// GeminiService implements LLMService with Google's genai SDK.
type GeminiService struct {
	apiKey    string
	modelName string
	opts      GenerationOptions
	logger    *slog.Logger

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiService(apiKey, modelName string, opts GenerationOptions, logger *slog.Logger) *GeminiService {
	return &GeminiService{
		apiKey:    apiKey,
		modelName: modelName,
		opts:      opts,
		logger:    logger,
	}
}

// InitModel creates the SDK client.
func (g *GeminiService) InitModel(ctx context.Context, modelName string) error {
	_, err := g.getClient(ctx)
	if err != nil {
		return err
	}
	g.logger.Info("Using Gemini model", "model", modelName)
	return nil
}

func (g *GeminiService) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	if g.apiKey == "" {
		return nil, fmt.Errorf("google API key not configured")
	}

	cfg := &genai.ClientConfig{APIKey: g.apiKey, Backend: genai.BackendGeminiAPI}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

func (g *GeminiService) GetChatResponse(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return nil, err
	}

	systemPrompt, conversation := splitChatMessages(messages)
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(g.opts.Temperature)),
	}
	if g.opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(g.opts.MaxTokens)
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	g.logger.Debug("Sending Gemini request", "model", g.modelName, "message_count", len(conversation))
	result, err := client.Models.GenerateContent(ctx, g.modelName, toGeminiContents(conversation), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message, Err: err}
		}
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	var content strings.Builder
	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && !part.Thought {
				content.WriteString(part.Text)
			}
		}
		// first candidate only
		break
	}

	return &chat.ChatResponse{Message: content.String()}, nil
}

func toGeminiContents(messages []chat.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == chat.ChatRoleAgent {
			role = "model" // Gemini uses "model" instead of "assistant"
		}
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: msg.Content}},
			Role:  role,
		})
	}
	return contents
}
