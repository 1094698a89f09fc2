package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"

	"github.com/jwebster45206/npc-engine/internal/session"
	"github.com/jwebster45206/npc-engine/internal/telemetry"
	"github.com/jwebster45206/npc-engine/internal/voice"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
)

// StopReason explains why a session loop ended.
type StopReason string

const (
	StopLimit       StopReason = "limit"
	StopTermination StopReason = "termination"
	StopCanceled    StopReason = "canceled"
	StopInputClosed StopReason = "input_closed"
)

// terminationTokens end a session when they appear in the character's
// delivered reply.
var terminationTokens = []string{"exit", "quit", "bye"}

// SessionRequest configures a multi-turn conversation. MaxExchanges <= 0
// means no limit. An empty SessionID gets a generated one.
type SessionRequest struct {
	NPCID        string
	SessionID    string
	MaxExchanges int
	Environment  *dialogue.EnvironmentSnapshot
}

type SessionResult struct {
	SessionID  string
	Exchanges  int
	Turns      int
	StopReason StopReason
}

// Terminates reports whether a delivered reply ends the conversation.
func Terminates(reply string) bool {
	folded := cases.Fold().String(reply)
	for _, tok := range terminationTokens {
		if strings.Contains(folded, tok) {
			return true
		}
	}
	return false
}

// RunSession loops exchanges between the transcriber and the character
// until the exchange limit, a terminating reply, closed input, or ctx
// cancellation. The session is always reset before returning.
func (e *Engine) RunSession(ctx context.Context, req SessionRequest, in voice.Transcriber, out voice.Synthesizer) (SessionResult, error) {
	profile, err := e.catalog.Get(req.NPCID)
	if err != nil {
		return SessionResult{}, err
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	env := req.Environment
	if env == nil {
		env = &dialogue.EnvironmentSnapshot{}
	}
	key := session.SessionKey(req.NPCID, req.SessionID)
	logger := e.logger.With("npc_id", req.NPCID, "session_key", key)

	ctx, span := telemetry.Tracer().Start(ctx, "engine.session")
	defer span.End()
	span.SetAttributes(
		attribute.String("npc.id", req.NPCID),
		attribute.String("session.key", key),
		attribute.Int("session.max_exchanges", req.MaxExchanges),
	)

	res := SessionResult{SessionID: req.SessionID}
	defer func() {
		// ctx may already be canceled; the reset must still happen.
		stopCtx := context.WithoutCancel(ctx)
		if err := e.store.Reset(stopCtx, key); err != nil {
			logger.Error("Failed to reset session on stop", "error", err)
		}
		if s, ok := out.(voice.Stopper); ok {
			s.Stop()
		}
		if e.publisher != nil {
			if err := e.publisher.PublishSessionEnded(stopCtx, key, res.Exchanges, string(res.StopReason)); err != nil {
				logger.Warn("Failed to publish session event", "error", err)
			}
		}
		span.SetAttributes(
			attribute.Int("session.exchanges", res.Exchanges),
			attribute.String("session.stop_reason", string(res.StopReason)),
		)
		logger.Info("Session ended",
			"exchanges", res.Exchanges,
			"turns", res.Turns,
			"reason", res.StopReason)
	}()

	logger.Info("Session started", "max_exchanges", req.MaxExchanges)
	for {
		if req.MaxExchanges > 0 && res.Exchanges >= req.MaxExchanges {
			res.StopReason = StopLimit
			return res, nil
		}
		if ctx.Err() != nil {
			res.StopReason = StopCanceled
			return res, nil
		}

		res.Exchanges++
		logger.Debug("Exchange started", "exchange", res.Exchanges)

		text, err := in.Transcribe(ctx)
		switch {
		case err == nil && strings.TrimSpace(text) == "":
			logger.Debug("Empty transcription, no input this exchange")
			continue
		case err == nil:
		case voice.NoInput(err):
			logger.Debug("No input this exchange", "error", err)
			continue
		case errors.Is(err, voice.ErrInputClosed):
			res.StopReason = StopInputClosed
			return res, nil
		case ctx.Err() != nil:
			res.StopReason = StopCanceled
			return res, nil
		default:
			logger.Warn("Transcriber failed, no input this exchange", "error", err)
			continue
		}

		turn := e.RunTurn(ctx, TurnRequest{
			SessionKey:  key,
			Profile:     profile,
			Environment: env,
			PlayerInput: strings.TrimSpace(text),
		})
		if turn.State != StateDelivered {
			if ctx.Err() != nil {
				res.StopReason = StopCanceled
				return res, nil
			}
			logger.Warn("Turn not delivered", "exchange", res.Exchanges, "error", turn.Failure)
			continue
		}
		res.Turns++

		if !out.Speak(ctx, turn.Action.Dialogue) {
			logger.Warn("Speech delivery failed", "exchange", res.Exchanges)
		}

		if Terminates(turn.Action.Dialogue) {
			res.StopReason = StopTermination
			return res, nil
		}
	}
}
