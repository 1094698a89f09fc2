package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/npc-engine/internal/services"
	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
	"github.com/jwebster45206/npc-engine/pkg/prompts"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testContext = prompts.ModelContext{
	Prompt:      "say something",
	Environment: &dialogue.EnvironmentSnapshot{AvailableActions: []string{"idle"}},
}

func TestInvoke_Success(t *testing.T) {
	mock := services.NewMockLLMAPI()
	mock.SetResponse(`{"dialogue":"Hmph."}`)
	gw := New(mock, testLogger())

	reply, err := gw.Invoke(context.Background(), testContext, time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"dialogue":"Hmph."}`, reply)

	_, calls := mock.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, testContext.Messages(), calls[0].Messages)
}

func TestInvoke_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(m *services.MockLLMAPI)
		timeout time.Duration
		want    error
	}{
		{
			name: "status error",
			setup: func(m *services.MockLLMAPI) {
				m.SetGetChatResponseError(&services.StatusError{Provider: "ollama", StatusCode: 500})
			},
			timeout: time.Second,
			want:    ErrBackendError,
		},
		{
			name:    "generic error",
			setup:   func(m *services.MockLLMAPI) { m.SetGetChatResponseError(errors.New("boom")) },
			timeout: time.Second,
			want:    ErrBackendError,
		},
		{
			name:    "empty reply",
			setup:   func(m *services.MockLLMAPI) { m.SetResponse("   ") },
			timeout: time.Second,
			want:    ErrBackendError,
		},
		{
			name:    "timeout",
			setup:   func(m *services.MockLLMAPI) { m.SetBlocking() },
			timeout: 20 * time.Millisecond,
			want:    ErrTimedOut,
		},
		{
			name: "backend ignores its context",
			setup: func(m *services.MockLLMAPI) {
				m.GetChatResponseFunc = func(ctx context.Context, _ []chat.ChatMessage) (*chat.ChatResponse, error) {
					time.Sleep(time.Second)
					return &chat.ChatResponse{Message: "late"}, nil
				}
			},
			timeout: 20 * time.Millisecond,
			want:    ErrTimedOut,
		},
		{
			name: "panic",
			setup: func(m *services.MockLLMAPI) {
				m.GetChatResponseFunc = func(ctx context.Context, _ []chat.ChatMessage) (*chat.ChatResponse, error) {
					panic("backend exploded")
				}
			},
			timeout: time.Second,
			want:    ErrBackendError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := services.NewMockLLMAPI()
			tt.setup(mock)
			gw := New(mock, testLogger())

			start := time.Now()
			reply, err := gw.Invoke(context.Background(), testContext, tt.timeout)
			assert.Empty(t, reply)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsFailure(err))
			assert.Less(t, time.Since(start), 500*time.Millisecond)
		})
	}
}

func TestInvoke_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	backend := services.NewOllamaService(url, "mistral", services.GenerationOptions{}, testLogger())
	gw := New(backend, testLogger())

	_, err := gw.Invoke(context.Background(), testContext, 2*time.Second)
	assert.ErrorIs(t, err, ErrUnreachable)

	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, KindUnreachable, f.Kind)
}

func TestInvoke_OllamaStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("model loading"))
	}))
	defer srv.Close()

	backend := services.NewOllamaService(srv.URL, "mistral", services.GenerationOptions{}, testLogger())
	gw := New(backend, testLogger())

	_, err := gw.Invoke(context.Background(), testContext, 2*time.Second)
	assert.ErrorIs(t, err, ErrBackendError)

	var statusErr *services.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestInvoke_CallerCancel(t *testing.T) {
	mock := services.NewMockLLMAPI()
	mock.SetBlocking()
	gw := New(mock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := gw.Invoke(ctx, testContext, 5*time.Second)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.False(t, IsFailure(err))
}

func TestFailure_Error(t *testing.T) {
	f := &Failure{Kind: KindTimedOut, Err: context.DeadlineExceeded}
	assert.Equal(t, "model call timed out: context deadline exceeded", f.Error())
	assert.ErrorIs(t, f, context.DeadlineExceeded)
	assert.NotErrorIs(t, f, ErrUnreachable)
}
