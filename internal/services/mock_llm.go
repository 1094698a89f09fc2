package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

// MockLLMAPI is a mock implementation of LLMService for testing
type MockLLMAPI struct {
	InitModelFunc       func(ctx context.Context, modelName string) error
	GetChatResponseFunc func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)
	ReadyFunc           func(ctx context.Context) error

	// Track calls for testing
	InitModelCalls       []string
	GetChatResponseCalls []GetChatResponseCall
	ReadyCalls           int

	mu sync.Mutex // protects all fields above
}

type GetChatResponseCall struct {
	Messages []chat.ChatMessage
}

// NewMockLLMAPI creates a new mock LLM service
func NewMockLLMAPI() *MockLLMAPI {
	return &MockLLMAPI{
		InitModelCalls:       make([]string, 0),
		GetChatResponseCalls: make([]GetChatResponseCall, 0),
	}
}

// InitModel mocks model initialization
func (m *MockLLMAPI) InitModel(ctx context.Context, modelName string) error {
	m.mu.Lock()
	m.InitModelCalls = append(m.InitModelCalls, modelName)
	fn := m.InitModelFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, modelName)
	}

	// Default behavior - success
	return nil
}

// GetChatResponse mocks response generation. The override runs without the
// mock's lock held so it may block on ctx.
func (m *MockLLMAPI) GetChatResponse(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	m.mu.Lock()
	m.GetChatResponseCalls = append(m.GetChatResponseCalls, GetChatResponseCall{
		Messages: messages,
	})
	fn := m.GetChatResponseFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}

	return &chat.ChatResponse{
		Message: "Mock response",
	}, nil
}

// Ready mocks the readiness probe
func (m *MockLLMAPI) Ready(ctx context.Context) error {
	m.mu.Lock()
	m.ReadyCalls++
	fn := m.ReadyFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// Reset clears all call tracking
func (m *MockLLMAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelCalls = make([]string, 0)
	m.GetChatResponseCalls = make([]GetChatResponseCall, 0)
	m.ReadyCalls = 0
}

// SetInitModelError sets up the mock to return an error on InitModel
func (m *MockLLMAPI) SetInitModelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelFunc = func(ctx context.Context, modelName string) error {
		return err
	}
}

// SetGetChatResponseError sets up the mock to return an error on GetChatResponse
func (m *MockLLMAPI) SetGetChatResponseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetChatResponseFunc = func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
		return nil, err
	}
}

// SetResponse makes every GetChatResponse call return reply
func (m *MockLLMAPI) SetResponse(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetChatResponseFunc = func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
		return &chat.ChatResponse{Message: reply}, nil
	}
}

// MockReply is one scripted outcome for SetResponses.
type MockReply struct {
	Message string
	Err     error
}

// SetResponses replays replies in order, repeating the last one once the
// sequence is exhausted.
func (m *MockLLMAPI) SetResponses(replies ...MockReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next int
	var seqMu sync.Mutex
	m.GetChatResponseFunc = func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
		seqMu.Lock()
		r := replies[len(replies)-1]
		if next < len(replies) {
			r = replies[next]
			next++
		}
		seqMu.Unlock()
		if r.Err != nil {
			return nil, r.Err
		}
		return &chat.ChatResponse{Message: r.Message}, nil
	}
}

// SetBlocking makes GetChatResponse wait until ctx is done
func (m *MockLLMAPI) SetBlocking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetChatResponseFunc = func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// SetReadyError sets up the mock to fail the readiness probe
func (m *MockLLMAPI) SetReadyError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadyFunc = func(ctx context.Context) error {
		return err
	}
}

// GetCalls returns a copy of the call tracking data in a thread-safe way
func (m *MockLLMAPI) GetCalls() ([]string, []GetChatResponseCall) {
	m.mu.Lock()
	defer m.mu.Unlock()

	initCalls := make([]string, len(m.InitModelCalls))
	copy(initCalls, m.InitModelCalls)

	respCalls := make([]GetChatResponseCall, len(m.GetChatResponseCalls))
	copy(respCalls, m.GetChatResponseCalls)

	return initCalls, respCalls
}
