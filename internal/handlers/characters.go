package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/npc-engine/pkg/npc"
)

type CharacterSummary struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Traits []string `json:"traits"`
}

type CharactersResponse struct {
	Characters []CharacterSummary `json:"characters"`
}

const charactersPrefix = "/v1/characters"

// CharactersHandler lists the catalog.
// Routes:
// GET /v1/characters      - List characters
// GET /v1/characters/{id} - Full profile
type CharactersHandler struct {
	catalog *npc.Catalog
	logger  *slog.Logger
}

func NewCharactersHandler(catalog *npc.Catalog, logger *slog.Logger) *CharactersHandler {
	return &CharactersHandler{catalog: catalog, logger: logger}
}

func (h *CharactersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	if params, ok := pathParams(r.URL.Path, charactersPrefix, 1); ok {
		p, err := h.catalog.Get(params[0])
		if errors.Is(err, npc.ErrCharacterNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "NPC not found")
			return
		}
		if err != nil {
			writeError(w, h.logger, http.StatusInternalServerError, "Failed to load character")
			return
		}
		writeJSON(w, h.logger, http.StatusOK, p)
		return
	}
	if _, ok := pathParams(r.URL.Path, charactersPrefix, 0); !ok {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid path. Expected /v1/characters or /v1/characters/{id}")
		return
	}

	resp := CharactersResponse{Characters: make([]CharacterSummary, 0, h.catalog.Len())}
	for _, id := range h.catalog.IDs() {
		p, err := h.catalog.Get(id)
		if err != nil {
			continue
		}
		resp.Characters = append(resp.Characters, CharacterSummary{ID: p.ID, Name: p.Name, Traits: p.Traits})
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
