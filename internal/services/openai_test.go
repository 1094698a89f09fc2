package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

func TestOpenAIService_GetChatResponse(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 0,
			"model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Take it."}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	svc := NewOpenAIService("sk-test", "gpt-test", GenerationOptions{Temperature: 0.7, MaxTokens: 80}, testLogger(),
		option.WithBaseURL(srv.URL+"/"))

	resp, err := svc.GetChatResponse(context.Background(), []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: "Be gruff."},
		{Role: chat.ChatRoleUser, Content: "sword?"},
		{Role: chat.ChatRoleAgent, Content: "Hmph."},
	})
	require.NoError(t, err)
	assert.Equal(t, "Take it.", resp.Message)

	assert.Equal(t, "gpt-test", body["model"])
	assert.EqualValues(t, 80, body["max_tokens"])
	assert.EqualValues(t, 0.7, body["temperature"])
	assert.Len(t, body["messages"], 3)
}

func TestOpenAIService_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":0,"model":"gpt-test","choices":[]}`))
	}))
	defer srv.Close()

	svc := NewOpenAIService("sk-test", "gpt-test", GenerationOptions{}, testLogger(), option.WithBaseURL(srv.URL+"/"))
	_, err := svc.GetChatResponse(context.Background(), []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}})
	assert.Error(t, err)
}

func TestOpenAIService_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	svc := NewOpenAIService("sk-test", "gpt-test", GenerationOptions{}, testLogger(), option.WithBaseURL(srv.URL+"/"))
	_, err := svc.GetChatResponse(context.Background(), []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "err = %v", err)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "openai", statusErr.Provider)
}

func TestToOpenAIMessages_SkipsUnknownRoles(t *testing.T) {
	out := toOpenAIMessages([]chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "a"},
		{Role: "narrator", Content: "b"},
	})
	assert.Len(t, out, 1)
}
