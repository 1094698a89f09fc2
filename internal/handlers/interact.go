package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/npc-engine/internal/engine"
	"github.com/jwebster45206/npc-engine/internal/logger"
	"github.com/jwebster45206/npc-engine/internal/middleware"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
	"github.com/jwebster45206/npc-engine/pkg/npc"
)

// Interactor runs structured turns.
type Interactor interface {
	Interact(ctx context.Context, req engine.InteractRequest) (dialogue.DialogueAction, error)
}

// InteractHandler serves POST /v1/interact.
type InteractHandler struct {
	engine Interactor
	logger *slog.Logger
}

func NewInteractHandler(e Interactor, logger *slog.Logger) *InteractHandler {
	return &InteractHandler{engine: e, logger: logger}
}

func (h *InteractHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.logger.Warn("Method not allowed for interact endpoint",
			"method", r.Method,
			"path", r.URL.Path)
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return
	}

	var req engine.InteractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("Invalid interact request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'npc_id' and 'player_input' fields.")
		return
	}

	log := logger.WithRequestID(h.logger, middleware.RequestID(r.Context())).With("npc_id", req.NPCID)
	if req.SessionID != "" {
		log = log.With("session_id", req.SessionID)
	}

	action, err := h.engine.Interact(r.Context(), req)
	switch {
	case errors.Is(err, npc.ErrCharacterNotFound):
		log.Warn("Unknown NPC requested")
		writeError(w, h.logger, http.StatusNotFound, "NPC not found")
		return
	case errors.Is(err, engine.ErrEmptyInput):
		writeError(w, h.logger, http.StatusBadRequest, "player_input cannot be empty.")
		return
	case err != nil:
		logger.WithError(log, err).Error("Interaction failed")
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to process interaction.")
		return
	}

	log.Debug("Interaction delivered", "action", action.Action, "fallback", dialogue.IsFallback(action))
	writeJSON(w, h.logger, http.StatusOK, action)
}
