package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/npc"
)

// SessionManager reads and resets stored conversations.
type SessionManager interface {
	History(ctx context.Context, npcID, sessionID string) ([]chat.Turn, error)
	ResetSession(ctx context.Context, npcID, sessionID string) error
}

type SessionResponse struct {
	NPCID     string      `json:"npc_id"`
	SessionID string      `json:"session_id"`
	Turns     []chat.Turn `json:"turns"`
}

const sessionsPrefix = "/v1/sessions"

// SessionsHandler serves stored conversation history.
// Routes:
// GET /v1/sessions/{npc_id}/{session_id}    - Read history
// DELETE /v1/sessions/{npc_id}/{session_id} - Reset history
type SessionsHandler struct {
	sessions SessionManager
	logger   *slog.Logger
}

func NewSessionsHandler(sessions SessionManager, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{sessions: sessions, logger: logger}
}

func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params, ok := pathParams(r.URL.Path, sessionsPrefix, 2)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid path. Expected /v1/sessions/{npc_id}/{session_id}")
		return
	}
	npcID, sessionID := params[0], params[1]

	switch r.Method {
	case http.MethodGet:
		h.handleRead(w, r, npcID, sessionID)
	case http.MethodDelete:
		h.handleDelete(w, r, npcID, sessionID)
	default:
		h.logger.Warn("Method not allowed for sessions endpoint", "method", r.Method)
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET, DELETE")
	}
}

func (h *SessionsHandler) handleRead(w http.ResponseWriter, r *http.Request, npcID, sessionID string) {
	turns, err := h.sessions.History(r.Context(), npcID, sessionID)
	if errors.Is(err, npc.ErrCharacterNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "NPC not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "npc_id", npcID, "session_id", sessionID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load session")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, SessionResponse{NPCID: npcID, SessionID: sessionID, Turns: turns})
}

func (h *SessionsHandler) handleDelete(w http.ResponseWriter, r *http.Request, npcID, sessionID string) {
	err := h.sessions.ResetSession(r.Context(), npcID, sessionID)
	if errors.Is(err, npc.ErrCharacterNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "NPC not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to reset session", "error", err, "npc_id", npcID, "session_id", sessionID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to reset session")
		return
	}
	h.logger.Debug("Session reset", "npc_id", npcID, "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}
