package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
	"github.com/jwebster45206/npc-engine/pkg/prompts"
)

// Action signatures the scripted rules react to.
const (
	scriptedSwordAction = "give_item(item_name='Magic_Sword')"
	scriptedDoorAction  = "unlock_door(door_name='Ancient_Door')"
)

// ScriptedService is a deterministic keyword-rule backend for demos and local
// development. It answers structured prompts with a JSON DialogueAction and
// freeform chat prompts with a short in-character line.
type ScriptedService struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewScriptedService(logger *slog.Logger) *ScriptedService {
	return &ScriptedService{logger: logger, now: time.Now}
}

func (s *ScriptedService) InitModel(ctx context.Context, modelName string) error {
	s.logger.Info("Using scripted model backend")
	return nil
}

func (s *ScriptedService) GetChatResponse(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages")
	}

	last := messages[len(messages)-1].Content
	if strings.Contains(last, prompts.TaskHeader) {
		reply, err := s.structuredReply(last)
		if err != nil {
			return nil, err
		}
		return &chat.ChatResponse{Message: reply}, nil
	}
	return &chat.ChatResponse{Message: s.freeformReply(last)}, nil
}

func (s *ScriptedService) structuredReply(prompt string) (string, error) {
	input := strings.ToLower(currentPlayerLine(prompt))
	actions := availableActions(prompt)

	var out dialogue.DialogueAction
	switch {
	case strings.Contains(input, "sword") && actions[scriptedSwordAction]:
		out = dialogue.DialogueAction{
			Dialogue:     "Ah, you've noticed my blade. It was forged in the heart of a dying star. Perhaps it can serve you better. Take it.",
			Action:       "give_item",
			ActionParams: dialogue.Params{"item_name": dialogue.String("Magic_Sword")},
			Emotion:      "proud",
		}
	case strings.Contains(input, "door") && actions[scriptedDoorAction]:
		out = dialogue.DialogueAction{
			Dialogue:     "This old door? It's been sealed for ages. Stand back, I have the key.",
			Action:       "unlock_door",
			ActionParams: dialogue.Params{"door_name": dialogue.String("Ancient_Door")},
			Emotion:      "determined",
		}
	case hasWord(input, "hello") || hasWord(input, "hi"):
		out = dialogue.DialogueAction{
			Dialogue:     "Hmph. What do you want?",
			Action:       "idle",
			ActionParams: dialogue.Params{},
			Emotion:      "grumpy",
		}
	default:
		out = dialogue.DialogueAction{
			Dialogue:     "I've got work to do. Stop bothering me.",
			Action:       "idle",
			ActionParams: dialogue.Params{},
			Emotion:      "annoyed",
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode scripted reply: %w", err)
	}
	return string(b), nil
}

func (s *ScriptedService) freeformReply(content string) string {
	var vals map[string]any
	var text string
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, prompts.ChatContextPrefix):
			_ = json.Unmarshal([]byte(strings.TrimPrefix(line, prompts.ChatContextPrefix)), &vals)
		case strings.HasPrefix(line, prompts.ChatPlayerPrefix):
			text = strings.TrimPrefix(line, prompts.ChatPlayerPrefix)
		}
	}

	name := contextString(vals, "npc_name", "NPC")
	loc := contextString(vals, "location", "village square")
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "hello"):
		return fmt.Sprintf("%s: Hello, traveler! It's %s at the %s.", name, s.now().Format("15:04"), loc)
	case strings.Contains(lower, "quest"):
		return name + ": I have a small task. Find 3 herbs near the river."
	case strings.Contains(lower, "bye"):
		return name + ": Farewell! May your path be clear."
	default:
		return name + ": I heard rumors about bandits near the old bridge."
	}
}

// currentPlayerLine returns the quoted player line that closes the
// conversation history section.
func currentPlayerLine(prompt string) string {
	end := strings.Index(prompt, prompts.SituationHeader)
	if end < 0 {
		end = len(prompt)
	}
	section := prompt[:end]
	idx := strings.LastIndex(section, "\n"+prompts.CurrentLinePrefix)
	if idx < 0 {
		return ""
	}
	line := strings.TrimSpace(section[idx+1+len(prompts.CurrentLinePrefix):])
	if nl := strings.Index(line, "\n"); nl >= 0 {
		line = line[:nl]
	}
	if unq, err := strconv.Unquote(line); err == nil {
		return unq
	}
	return line
}

// availableActions reads back the JSON action list from the situation block.
func availableActions(prompt string) map[string]bool {
	const marker = "following actions: "
	idx := strings.Index(prompt, marker)
	if idx < 0 {
		return nil
	}
	rest := prompt[idx+len(marker):]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[:nl]
	}
	var list []string
	if err := json.Unmarshal([]byte(rest), &list); err != nil {
		return nil
	}
	set := make(map[string]bool, len(list))
	for _, a := range list {
		set[a] = true
	}
	return set
}

func hasWord(text, word string) bool {
	for _, f := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	}) {
		if f == word {
			return true
		}
	}
	return false
}

func contextString(vals map[string]any, key, def string) string {
	if v, ok := vals[key].(string); ok && v != "" {
		return v
	}
	return def
}
