package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/npc-engine/internal/engine"
	"github.com/jwebster45206/npc-engine/pkg/chat"
)

// Chatter answers freeform chat.
type Chatter interface {
	Chat(ctx context.Context, text string, vals map[string]any) (string, error)
}

// ChatHandler handles freeform chat requests
type ChatHandler struct {
	engine Chatter
	logger *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(e Chatter, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		engine: e,
		logger: logger,
	}
}

// ServeHTTP handles HTTP requests for chat
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only allow POST method
	if r.Method != http.MethodPost {
		h.logger.Warn("Method not allowed for chat endpoint",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return
	}

	var request chat.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&request); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'text' field.")
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Text cannot be empty.")
		return
	}

	reply, err := h.engine.Chat(r.Context(), request.Text, request.Context)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyInput) {
			writeError(w, h.logger, http.StatusBadRequest, "Text cannot be empty.")
			return
		}
		h.logger.Error("Error generating chat response", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to generate response. Please try again.")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, chat.ChatReply{Reply: reply})
}
