package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

// ReadinessChecker is implemented by backends that can report whether they
// are reachable without generating anything.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

const (
	ollamaChatPath = "/api/chat"
	ollamaTagsPath = "/api/tags"
	ollamaPullPath = "/api/pull"

	// Pulls download whole model weights.
	ollamaPullTimeout = 10 * time.Minute
)

// OllamaService talks to a local Ollama server over its REST API.
type OllamaService struct {
	baseURL    string
	modelName  string
	opts       GenerationOptions
	httpClient *http.Client
	pullClient *http.Client
	logger     *slog.Logger

	readyRetries int
	retryDelay   time.Duration
}

type ollamaChatRequest struct {
	Model    string             `json:"model"`
	Messages []chat.ChatMessage `json:"messages"`
	Stream   bool               `json:"stream"`
	Options  ollamaOptions      `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatReply struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaService returns a backend for the Ollama server at baseURL.
// Request deadlines come from the caller's context.
func NewOllamaService(baseURL string, modelName string, opts GenerationOptions, logger *slog.Logger) *OllamaService {
	return &OllamaService{
		baseURL:      baseURL,
		modelName:    modelName,
		opts:         opts,
		httpClient:   &http.Client{},
		pullClient:   &http.Client{Timeout: ollamaPullTimeout},
		logger:       logger.With("provider", "ollama"),
		readyRetries: 5,
		retryDelay:   2 * time.Second,
	}
}

// InitModel waits for the server, then pulls modelName unless it is
// already installed.
func (s *OllamaService) InitModel(ctx context.Context, modelName string) error {
	log := s.logger.With("model", modelName)
	log.Info("Initializing LLM model")

	if err := s.awaitReady(ctx); err != nil {
		return fmt.Errorf("ollama service is not ready: %w", err)
	}

	installed, err := s.installedModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list installed models: %w", err)
	}
	// Untagged models are reported as "<name>:latest".
	if slices.Contains(installed, modelName) || slices.Contains(installed, modelName+":latest") {
		log.Info("Model already available")
		return nil
	}

	log.Info("Model not found, pulling it")
	pull := map[string]any{"name": modelName, "stream": false}
	if err := s.call(ctx, s.pullClient, http.MethodPost, ollamaPullPath, pull, nil); err != nil {
		return fmt.Errorf("failed to pull model: %w", err)
	}
	log.Info("Model pulled")
	return nil
}

// GetChatResponse sends one non-streaming chat completion.
func (s *OllamaService) GetChatResponse(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	s.logger.Debug("Sending chat request", "model", s.modelName, "message_count", len(messages))

	var reply ollamaChatReply
	err := s.call(ctx, s.httpClient, http.MethodPost, ollamaChatPath, ollamaChatRequest{
		Model:    s.modelName,
		Messages: messages,
		Options: ollamaOptions{
			Temperature: s.opts.Temperature,
			NumPredict:  s.opts.MaxTokens,
		},
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &chat.ChatResponse{Message: reply.Message.Content}, nil
}

// Ready reports whether the server answers the model listing endpoint.
func (s *OllamaService) Ready(ctx context.Context) error {
	return s.call(ctx, s.httpClient, http.MethodGet, ollamaTagsPath, nil, nil)
}

func (s *OllamaService) installedModels(ctx context.Context) ([]string, error) {
	var tags ollamaTags
	if err := s.call(ctx, s.httpClient, http.MethodGet, ollamaTagsPath, nil, &tags); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (s *OllamaService) awaitReady(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= s.readyRetries; attempt++ {
		if lastErr = s.Ready(ctx); lastErr == nil {
			return nil
		}
		s.logger.Debug("Ollama not ready yet", "error", lastErr, "attempt", attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
	return fmt.Errorf("no answer after %d attempts: %w", s.readyRetries, lastErr)
}

// call sends in as a JSON body (when non-nil) and decodes a 200 reply into
// out (when non-nil). Any other status becomes a *StatusError.
func (s *OllamaService) call(ctx context.Context, client *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Error("Ollama API returned error", "path", path, "status_code", resp.StatusCode, "response_body", string(raw))
		return &StatusError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Error("Failed to decode Ollama response", "path", path, "error", err)
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
