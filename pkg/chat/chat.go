package chat

import (
	"fmt"
	"strings"
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RolePlayer    Role = "player"    // the human at the keyboard or microphone
	RoleCharacter Role = "character" // the NPC
)

// Backend message roles. These follow the chat-completion convention shared
// by Ollama, OpenAI and Anthropic.
const (
	ChatRoleUser   = "user"
	ChatRoleAgent  = "assistant"
	ChatRoleSystem = "system"
)

// maxSpeakerLabel bounds how far into a history line a "Name:" prefix may sit.
const maxSpeakerLabel = 30

// Turn is one line of a conversation. Turns are append-only within a session.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// PlayerTurn is shorthand for a player-authored turn.
func PlayerTurn(text string) Turn {
	return Turn{Role: RolePlayer, Text: text}
}

// CharacterTurn is shorthand for a character-authored turn.
func CharacterTurn(text string) Turn {
	return Turn{Role: RoleCharacter, Text: text}
}

// Line renders the turn as a labelled history line, e.g. "player: Hello".
func (t Turn) Line() string {
	return string(t.Role) + ": " + t.Text
}

// ParseHistoryLine converts a caller-supplied history line such as
// "Player: Hello there!" or "Kaelen: Hmph." into a Turn. A "player" label
// maps to the player; characterName or a "character" label maps to the
// character (both case-insensitive). Any other speaker is not the character,
// so its line stays on the player side with the label kept in the text.
// Lines without a plausible speaker label are treated as player speech.
func ParseHistoryLine(line, characterName string) Turn {
	line = strings.TrimSpace(line)
	idx := strings.Index(line, ":")
	if idx <= 0 || idx > maxSpeakerLabel {
		return PlayerTurn(line)
	}
	label := strings.TrimSpace(line[:idx])
	if len(strings.Fields(label)) > 3 {
		return PlayerTurn(line)
	}
	text := strings.TrimSpace(line[idx+1:])
	switch {
	case strings.EqualFold(label, string(RolePlayer)):
		return PlayerTurn(text)
	case strings.EqualFold(label, string(RoleCharacter)),
		characterName != "" && strings.EqualFold(label, characterName):
		return CharacterTurn(text)
	default:
		return PlayerTurn(label + ": " + text)
	}
}

// ChatMessage represents a single message sent to a model backend.
// The shape matches Ollama's /api/chat message format.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatResponse is the raw text returned by a model backend.
type ChatResponse struct {
	Message string `json:"message,omitempty"`
}

// ChatRequest is the freeform chat call: free text plus an arbitrary
// context mapping. It feeds a conversational assistant, not an in-game action.
type ChatRequest struct {
	Text    string         `json:"text"`
	Context map[string]any `json:"context,omitempty"`
}

// ChatReply is the freeform chat response.
type ChatReply struct {
	Reply string `json:"reply"`
}

func (cr *ChatRequest) Validate() error {
	if strings.TrimSpace(cr.Text) == "" {
		return fmt.Errorf("text cannot be empty")
	}
	return nil
}
