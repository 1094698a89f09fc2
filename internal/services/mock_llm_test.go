package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

func TestMockLLMService(t *testing.T) {
	mockService := NewMockLLMAPI()

	err := mockService.InitModel(context.Background(), "test-model")
	if err != nil {
		t.Errorf("InitModel failed: %v", err)
	}

	if len(mockService.InitModelCalls) != 1 {
		t.Errorf("Expected 1 InitModel call, got %d", len(mockService.InitModelCalls))
	}

	if mockService.InitModelCalls[0] != "test-model" {
		t.Errorf("Expected model name 'test-model', got '%s'", mockService.InitModelCalls[0])
	}

	messages := []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "Hello"},
	}

	response, err := mockService.GetChatResponse(context.Background(), messages)
	if err != nil {
		t.Errorf("GetChatResponse failed: %v", err)
	}

	if response.Message != "Mock response" {
		t.Errorf("Expected 'Mock response', got '%s'", response.Message)
	}

	_, generateCalls := mockService.GetCalls()
	if len(generateCalls) != 1 {
		t.Errorf("Expected 1 GetChatResponse call, got %d", len(generateCalls))
	}
}

func TestMockLLMService_ErrorHandling(t *testing.T) {
	mockService := NewMockLLMAPI()

	expectedErr := fmt.Errorf("initialization failed")
	mockService.SetInitModelError(expectedErr)

	err := mockService.InitModel(context.Background(), "test-model")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	if err.Error() != expectedErr.Error() {
		t.Errorf("Expected error '%s', got '%s'", expectedErr.Error(), err.Error())
	}

	mockService.SetGetChatResponseError(expectedErr)
	if _, err := mockService.GetChatResponse(context.Background(), nil); !errors.Is(err, expectedErr) {
		t.Errorf("Expected GetChatResponse error %v, got %v", expectedErr, err)
	}
}

func TestMockLLMService_SetResponses(t *testing.T) {
	mockService := NewMockLLMAPI()
	boom := errors.New("boom")
	mockService.SetResponses(MockReply{Err: boom}, MockReply{Message: "second"})

	if _, err := mockService.GetChatResponse(context.Background(), nil); !errors.Is(err, boom) {
		t.Errorf("Expected first call to fail, got %v", err)
	}
	for i := 0; i < 2; i++ {
		resp, err := mockService.GetChatResponse(context.Background(), nil)
		if err != nil || resp.Message != "second" {
			t.Errorf("call %d: expected 'second', got %v, %v", i+2, resp, err)
		}
	}

	mockService.Reset()
	if _, calls := mockService.GetCalls(); len(calls) != 0 {
		t.Errorf("Expected calls to be reset, got %d", len(calls))
	}
}

func TestMockLLMService_SetBlocking(t *testing.T) {
	mockService := NewMockLLMAPI()
	mockService.SetBlocking()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := mockService.GetChatResponse(ctx, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
