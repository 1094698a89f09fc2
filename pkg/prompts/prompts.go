package prompts

import (
	"encoding/json"
	"fmt"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

// Section headers of the structured prompt.
const (
	HistoryHeader   = "### CONVERSATION HISTORY:"
	SituationHeader = "### CURRENT SITUATION:"
	TaskHeader      = "### YOUR TASK:"
)

// CurrentLinePrefix starts the quoted player line that closes the history
// section. History turns use the same label, unquoted.
const CurrentLinePrefix = "player: "

// PersonaPrompt introduces the character. Arguments: name, traits,
// backstory, dialogue style.
const PersonaPrompt = "You are %s. Your personality is: %s. Your backstory: %s. Your dialogue style: %s"

// KnowledgePrompt carries the character's world knowledge.
const KnowledgePrompt = "Relevant world knowledge you possess: %s"

// OutputContract tells the model exactly which JSON object to produce. The
// field names must stay in sync with the response validator.
const OutputContract = `Respond as the character. Your entire response MUST be a single, valid JSON object with no other text or explanation. ` +
	`The JSON object must contain 'dialogue' (what you say), 'action' (the chosen action name from the available list, without parameters), ` +
	`'action_params' (an object of parameters for the action), and 'emotion' (a single word describing your current emotion).`

// ChatSystemPrompt is used for the freeform chat path.
const ChatSystemPrompt = "You are an in-game NPC. Keep replies short (1-2 lines), context-aware, and friendly."

// Line prefixes of the freeform chat prompt. Backends that script replies
// read them back.
const (
	ChatContextPrefix = "Context: "
	ChatPlayerPrefix  = "Player: "
)

// BuildChatMessages builds the freeform chat prompt. The context mapping is
// rendered as a JSON object, whose keys encoding/json sorts.
func BuildChatMessages(text string, context map[string]any) ([]chat.ChatMessage, error) {
	if context == nil {
		context = map[string]any{}
	}
	ctxJSON, err := json.Marshal(context)
	if err != nil {
		return nil, fmt.Errorf("error encoding chat context: %w", err)
	}

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: ChatSystemPrompt},
		{Role: chat.ChatRoleUser, Content: ChatContextPrefix + string(ctxJSON) + "\n" + ChatPlayerPrefix + text},
	}, nil
}
