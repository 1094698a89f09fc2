// Package engine orchestrates dialogue turns: it assembles the model
// context, invokes the backend through the gateway, validates the reply
// against the turn's action contract, and records the exchange.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jwebster45206/npc-engine/internal/gateway"
	"github.com/jwebster45206/npc-engine/internal/services/events"
	"github.com/jwebster45206/npc-engine/internal/session"
	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/npc"
	"github.com/jwebster45206/npc-engine/pkg/prompts"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultRetries = 1
	maxRetries     = 1
)

// FreeformFallbackReply is returned by Chat when the backend fails.
const FreeformFallbackReply = "(whispers) The winds are quiet..."

// ErrEmptyInput is returned for blank player input.
var ErrEmptyInput = errors.New("player input cannot be empty")

// Engine runs turns for characters in an injected catalog.
type Engine struct {
	catalog   *npc.Catalog
	store     session.Store
	gw        *gateway.Gateway
	locker    session.Locker
	publisher events.Publisher
	logger    *slog.Logger
	timeout   time.Duration
	retries   int
}

type Option func(*Engine)

// WithLocker replaces the default in-process turn lock.
func WithLocker(l session.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRetry sets how many times a failed model call is retried. Values
// above one are clamped to one.
func WithRetry(n int) Option {
	return func(e *Engine) {
		switch {
		case n < 0:
			e.retries = 0
		case n > maxRetries:
			e.retries = maxRetries
		default:
			e.retries = n
		}
	}
}

// WithPublisher announces delivered turns and ended sessions.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func New(catalog *npc.Catalog, store session.Store, gw *gateway.Gateway, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		store:   store,
		gw:      gw,
		locker:  session.NewMemoryLocker(),
		logger:  slog.Default(),
		timeout: DefaultTimeout,
		retries: DefaultRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the engine's character catalog.
func (e *Engine) Catalog() *npc.Catalog {
	return e.catalog
}

// invoke calls the model, retrying classified failures up to e.retries
// times. Cancellation is never retried.
func (e *Engine) invoke(ctx context.Context, logger *slog.Logger, call func(context.Context) (string, error)) (string, int, error) {
	var (
		raw      string
		err      error
		attempts int
	)
	for attempts < 1+e.retries {
		attempts++
		raw, err = call(ctx)
		if err == nil || !gateway.IsFailure(err) {
			break
		}
		if attempts <= e.retries {
			logger.Warn("Retrying model call", "attempt", attempts, "error", err)
		}
	}
	return raw, attempts, err
}

// Chat answers free text with arbitrary context. Replies are not validated
// and backend failures yield FreeformFallbackReply.
func (e *Engine) Chat(ctx context.Context, text string, vals map[string]any) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	messages, err := prompts.BuildChatMessages(text, vals)
	if err != nil {
		return "", fmt.Errorf("failed to build chat prompt: %w", err)
	}

	reply, _, err := e.invoke(ctx, e.logger, func(ctx context.Context) (string, error) {
		return e.gw.InvokeMessages(ctx, messages, e.timeout)
	})
	if err != nil {
		e.logger.Warn("Freeform chat fell back", "error", err)
		return FreeformFallbackReply, nil
	}
	return strings.TrimSpace(reply), nil
}

// History returns the stored turns of one session.
func (e *Engine) History(ctx context.Context, npcID, sessionID string) ([]chat.Turn, error) {
	if _, err := e.catalog.Get(npcID); err != nil {
		return nil, err
	}
	return e.store.Get(ctx, session.SessionKey(npcID, sessionID))
}

// ResetSession clears one session's history.
func (e *Engine) ResetSession(ctx context.Context, npcID, sessionID string) error {
	if _, err := e.catalog.Get(npcID); err != nil {
		return err
	}
	key := session.SessionKey(npcID, sessionID)
	if err := e.store.Reset(ctx, key); err != nil {
		return fmt.Errorf("failed to reset session %s: %w", key, err)
	}
	e.logger.Info("Session reset", "session_key", key)
	return nil
}
