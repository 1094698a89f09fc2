package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jwebster45206/npc-engine/internal/gateway"
	"github.com/jwebster45206/npc-engine/internal/session"
	"github.com/jwebster45206/npc-engine/internal/telemetry"
	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
	"github.com/jwebster45206/npc-engine/pkg/npc"
	"github.com/jwebster45206/npc-engine/pkg/prompts"
)

// State is a turn's position in its lifecycle. Delivered is terminal.
type State string

const (
	StateAwaitingInput    State = "awaiting_input"
	StateContextAssembled State = "context_assembled"
	StateAwaitingModel    State = "awaiting_model"
	StateValidated        State = "validated"
	StateDelivered        State = "delivered"
)

// TurnRequest is everything one turn needs. SessionKey and the store are
// ignored for stateless turns, which use History as given.
type TurnRequest struct {
	SessionKey  string
	Profile     npc.Profile
	Environment *dialogue.EnvironmentSnapshot
	PlayerInput string
	History     []chat.Turn
	Stateless   bool
}

// TurnResult always carries an action. Failure records why the fallback was
// used, if it was.
type TurnResult struct {
	Action   dialogue.DialogueAction
	State    State
	Failure  error
	Attempts int
}

// Fallback reports whether the turn delivered the canonical fallback
// because something went wrong.
func (r TurnResult) Fallback() bool {
	return r.Failure != nil
}

type turn struct {
	logger *slog.Logger
	state  State
}

func (t *turn) to(s State) {
	t.logger.Debug("Turn state", "from", t.state, "to", s)
	t.state = s
}

// RunTurn executes one turn. Every failure below the orchestrator is
// recovered into the canonical fallback; the turn never returns an error.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest) TurnResult {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("npc.id", req.Profile.ID),
		attribute.String("session.key", req.SessionKey),
		attribute.Bool("session.stateless", req.Stateless),
	)

	t := &turn{
		logger: e.logger.With("npc_id", req.Profile.ID, "session_key", req.SessionKey),
		state:  StateAwaitingInput,
	}
	res := e.runTurn(ctx, t, req)

	span.SetAttributes(
		attribute.String("turn.state", string(res.State)),
		attribute.String("turn.action", res.Action.Action),
		attribute.Int("turn.attempts", res.Attempts),
		attribute.Bool("turn.fallback", res.Fallback()),
	)
	if res.Failure != nil {
		span.SetStatus(codes.Error, res.Failure.Error())
	}
	return res
}

func (e *Engine) runTurn(ctx context.Context, t *turn, req TurnRequest) TurnResult {
	fallback := func(err error) TurnResult {
		return TurnResult{Action: dialogue.Fallback(), State: t.state, Failure: err}
	}

	if !req.Stateless {
		unlock, err := e.locker.Lock(ctx, req.SessionKey)
		if err != nil {
			t.logger.Warn("Could not acquire session lock", "error", err)
			return fallback(err)
		}
		defer unlock()
	}

	history, seeded := e.history(ctx, t.logger, req)

	mc, err := prompts.BuildModelContext(req.Profile, req.Environment, history, req.PlayerInput)
	if err != nil {
		t.logger.Error("Failed to assemble model context", "error", err)
		t.to(StateValidated)
		return fallback(err)
	}
	t.to(StateContextAssembled)

	t.to(StateAwaitingModel)
	raw, attempts, err := e.invoke(ctx, t.logger, func(ctx context.Context) (string, error) {
		return e.gw.Invoke(ctx, mc, e.timeout)
	})

	var (
		action  dialogue.DialogueAction
		failure error
	)
	if err != nil {
		// Same fallback value the validator would produce.
		action, failure = dialogue.Fallback(), err
	} else {
		action, failure = dialogue.Validate(raw, mc.Environment)
		if failure != nil {
			t.logger.Warn("Model response rejected", "error", failure, "raw_length", len(raw))
		}
	}
	t.to(StateValidated)

	if errors.Is(err, gateway.ErrCanceled) {
		t.logger.Info("Turn canceled by caller")
		return TurnResult{Action: action, State: t.state, Failure: failure, Attempts: attempts}
	}

	t.to(StateDelivered)
	res := TurnResult{Action: action, State: t.state, Failure: failure, Attempts: attempts}

	if req.Stateless {
		return res
	}

	turns := make([]chat.Turn, 0, len(seeded)+2)
	turns = append(turns, seeded...)
	turns = append(turns, chat.PlayerTurn(req.PlayerInput), chat.CharacterTurn(action.Dialogue))
	if err := e.store.Append(ctx, req.SessionKey, turns...); err != nil {
		t.logger.Error("Failed to record turn", "error", err)
	}

	if e.publisher != nil {
		if err := e.publisher.PublishTurnDelivered(ctx, req.SessionKey, action, attempts, failure != nil); err != nil {
			t.logger.Warn("Failed to publish turn event", "error", err)
		}
	}
	return res
}

// history picks the turns the model sees. Stored history wins; caller lines
// seed an empty session and are returned so they can be stored too.
func (e *Engine) history(ctx context.Context, logger *slog.Logger, req TurnRequest) (history, seeded []chat.Turn) {
	if req.Stateless {
		return req.History, nil
	}
	stored, err := e.store.Get(ctx, req.SessionKey)
	if err != nil {
		logger.Error("Failed to load session history", "error", err)
		return req.History, nil
	}
	if len(stored) == 0 && len(req.History) > 0 {
		return req.History, req.History
	}
	return stored, nil
}

// InteractRequest is the structured interaction call.
type InteractRequest struct {
	NPCID               string                        `json:"npc_id"`
	SessionID           string                        `json:"session_id,omitempty"`
	PlayerInput         string                        `json:"player_input"`
	ConversationHistory []string                      `json:"conversation_history,omitempty"`
	Environment         *dialogue.EnvironmentSnapshot `json:"environment"`
}

// Interact runs one structured turn. The only errors it returns are
// npc.ErrCharacterNotFound and ErrEmptyInput; model and validation
// problems yield the fallback action.
func (e *Engine) Interact(ctx context.Context, req InteractRequest) (dialogue.DialogueAction, error) {
	profile, err := e.catalog.Get(req.NPCID)
	if err != nil {
		return dialogue.DialogueAction{}, err
	}
	if strings.TrimSpace(req.PlayerInput) == "" {
		return dialogue.DialogueAction{}, ErrEmptyInput
	}

	env := req.Environment
	if env == nil {
		env = &dialogue.EnvironmentSnapshot{}
	}

	history := make([]chat.Turn, 0, len(req.ConversationHistory))
	for _, line := range req.ConversationHistory {
		if strings.TrimSpace(line) == "" {
			continue
		}
		history = append(history, chat.ParseHistoryLine(line, profile.Name))
	}

	res := e.RunTurn(ctx, TurnRequest{
		SessionKey:  session.SessionKey(req.NPCID, req.SessionID),
		Profile:     profile,
		Environment: env,
		PlayerInput: strings.TrimSpace(req.PlayerInput),
		History:     history,
		Stateless:   req.SessionID == "",
	})
	return res.Action, nil
}
