package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jwebster45206/npc-engine/internal/engine"
	"github.com/jwebster45206/npc-engine/internal/handlers"
	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
)

// errEventsUnavailable means the API runs without a pub/sub backend.
var errEventsUnavailable = errors.New("event stream not available")

// apiClient talks to the NPC engine HTTP API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, client *http.Client) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (c *apiClient) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func (c *apiClient) characters(ctx context.Context) ([]handlers.CharacterSummary, error) {
	var out handlers.CharactersResponse
	if err := c.do(ctx, http.MethodGet, "/v1/characters", nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	return out.Characters, nil
}

func (c *apiClient) interact(ctx context.Context, req engine.InteractRequest) (dialogue.DialogueAction, error) {
	var action dialogue.DialogueAction
	if err := c.do(ctx, http.MethodPost, "/v1/interact", req, http.StatusOK, &action); err != nil {
		return dialogue.DialogueAction{}, fmt.Errorf("interact request failed: %w", err)
	}
	return action, nil
}

func (c *apiClient) history(ctx context.Context, npcID, sessionID string) ([]chat.Turn, error) {
	var out handlers.SessionResponse
	if err := c.do(ctx, http.MethodGet, sessionPath(npcID, sessionID), nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return out.Turns, nil
}

func (c *apiClient) reset(ctx context.Context, npcID, sessionID string) error {
	if err := c.do(ctx, http.MethodDelete, sessionPath(npcID, sessionID), nil, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}

func sessionPath(npcID, sessionID string) string {
	return "/v1/sessions/" + url.PathEscape(npcID) + "/" + url.PathEscape(sessionID)
}

// do sends body as JSON and decodes a response with the wanted status into
// out. Error bodies are reported with the API's message when present.
func (c *apiClient) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		var errorResp handlers.ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		return errors.New(errorResp.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// sseEvent represents an event from the SSE stream
type sseEvent struct {
	Type string
	Data map[string]any
}

// listenEvents connects to the session's event stream and forwards events
// until ctx ends or the stream closes.
func (c *apiClient) listenEvents(ctx context.Context, npcID, sessionID string, eventChan chan<- sseEvent) error {
	path := "/v1/events/" + url.PathEscape(npcID) + "/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return errEventsUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SSE connection failed with status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	var current sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Empty line signals end of event
			if current.Type != "" {
				select {
				case eventChan <- current:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			current = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			current.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var data map[string]any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data); err == nil {
				current.Data = data
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return ctx.Err()
}
