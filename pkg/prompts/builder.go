package prompts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
	"github.com/jwebster45206/npc-engine/pkg/npc"
)

// ModelContext is an assembled prompt together with the environment it was
// built from. The same snapshot is later handed to the response validator.
type ModelContext struct {
	Prompt      string
	Environment *dialogue.EnvironmentSnapshot
}

// Messages returns the prompt as backend chat messages.
func (mc ModelContext) Messages() []chat.ChatMessage {
	return []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: mc.Prompt}}
}

// Builder assembles the structured model prompt using a fluent interface.
// Output is deterministic: identical inputs always yield an identical prompt.
type Builder struct {
	profile     *npc.Profile
	env         *dialogue.EnvironmentSnapshot
	history     []chat.Turn
	playerInput string
}

// New creates an empty prompt builder.
func New() *Builder {
	return &Builder{}
}

// WithProfile sets the character the model speaks as.
func (b *Builder) WithProfile(p npc.Profile) *Builder {
	b.profile = &p
	return b
}

// WithEnvironment sets the turn's environment snapshot.
func (b *Builder) WithEnvironment(env *dialogue.EnvironmentSnapshot) *Builder {
	b.env = env
	return b
}

// WithHistory sets prior turns, oldest first. All of them are rendered; the
// session store bounds how many a stored session keeps.
func (b *Builder) WithHistory(turns []chat.Turn) *Builder {
	b.history = turns
	return b
}

func (b *Builder) WithPlayerInput(input string) *Builder {
	b.playerInput = input
	return b
}

// Build renders the prompt. Sections are, in order: persona, knowledge,
// conversation history ending with the current player line, situation, and
// the output contract.
func (b *Builder) Build() (ModelContext, error) {
	if b.profile == nil {
		return ModelContext{}, fmt.Errorf("profile is required")
	}
	if b.env == nil {
		return ModelContext{}, fmt.Errorf("environment is required")
	}

	var sb strings.Builder

	// 1. Persona
	p := b.profile
	sb.WriteString(fmt.Sprintf(PersonaPrompt, p.Name, p.TraitList(), p.Backstory, p.DialogueStyle))
	sb.WriteString("\n\n")

	// 2. Knowledge
	sb.WriteString(fmt.Sprintf(KnowledgePrompt, p.Knowledge))
	sb.WriteString("\n\n")

	// 3. History and the current line
	sb.WriteString(HistoryHeader + "\n")
	for _, t := range b.history {
		sb.WriteString(t.Line() + "\n")
	}
	sb.WriteString(CurrentLinePrefix + strconv.Quote(b.playerInput) + "\n\n")

	// 4. Situation and the action contract
	objects, err := encodeList(b.env.NearbyObjects)
	if err != nil {
		return ModelContext{}, fmt.Errorf("error encoding nearby objects: %w", err)
	}
	actions, err := encodeList(b.env.AvailableActions)
	if err != nil {
		return ModelContext{}, fmt.Errorf("error encoding available actions: %w", err)
	}
	sb.WriteString(SituationHeader + "\n")
	sb.WriteString("Nearby objects of interest: " + objects + "\n")
	sb.WriteString("Based on the situation and conversation, you can perform ONLY ONE of the following actions: " + actions + "\n\n")

	// 5. Output contract
	sb.WriteString(TaskHeader + "\n")
	sb.WriteString(OutputContract)

	return ModelContext{Prompt: sb.String(), Environment: b.env}, nil
}

// encodeList renders a slice as a JSON array, "[]" when empty.
func encodeList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// BuildModelContext is a convenience function for the common case.
func BuildModelContext(p npc.Profile, env *dialogue.EnvironmentSnapshot, history []chat.Turn, playerInput string) (ModelContext, error) {
	return New().
		WithProfile(p).
		WithEnvironment(env).
		WithHistory(history).
		WithPlayerInput(playerInput).
		Build()
}
