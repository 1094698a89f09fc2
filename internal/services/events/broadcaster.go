package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-engine/pkg/dialogue"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeTurnDelivered EventType = "turn.delivered"
	EventTypeSessionEnded  EventType = "session.ended"
)

// Event represents a generic event structure
type Event struct {
	Type       EventType      `json:"type"`
	SessionKey string         `json:"session_key"`
	RequestID  string         `json:"request_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher is what the orchestrator needs to announce turn outcomes.
type Publisher interface {
	PublishTurnDelivered(ctx context.Context, sessionKey string, action dialogue.DialogueAction, attempts int, fallback bool) error
	PublishSessionEnded(ctx context.Context, sessionKey string, exchanges int, reason string) error
}

// Channel returns the pub/sub channel for a session key.
func Channel(sessionKey string) string {
	return "npc-events:" + sessionKey
}

// Broadcaster publishes events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishTurnDelivered publishes a turn.delivered event
func (b *Broadcaster) PublishTurnDelivered(ctx context.Context, sessionKey string, action dialogue.DialogueAction, attempts int, fallback bool) error {
	event := Event{
		Type:       EventTypeTurnDelivered,
		SessionKey: sessionKey,
		Data: map[string]any{
			"action":   action,
			"attempts": attempts,
			"fallback": fallback,
		},
	}
	return b.publish(ctx, event)
}

// PublishSessionEnded publishes a session.ended event
func (b *Broadcaster) PublishSessionEnded(ctx context.Context, sessionKey string, exchanges int, reason string) error {
	event := Event{
		Type:       EventTypeSessionEnded,
		SessionKey: sessionKey,
		Data: map[string]any{
			"exchanges": exchanges,
			"reason":    reason,
		},
	}
	return b.publish(ctx, event)
}

// Subscribe opens a subscription to one session's events. Callers must
// close the returned PubSub.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionKey string) *redis.PubSub {
	return b.redisClient.Subscribe(ctx, Channel(sessionKey))
}

func (b *Broadcaster) publish(ctx context.Context, event Event) error {
	channel := Channel(event.SessionKey)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
	)

	return nil
}
