package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
	"github.com/jwebster45206/npc-engine/pkg/npc"
	"github.com/jwebster45206/npc-engine/pkg/prompts"
)

func scriptedStructured(t *testing.T, input string, actions []string) dialogue.DialogueAction {
	t.Helper()
	env := &dialogue.EnvironmentSnapshot{AvailableActions: actions}
	mc, err := prompts.BuildModelContext(npc.Kaelen, env, nil, input)
	require.NoError(t, err)

	svc := NewScriptedService(testLogger())
	resp, err := svc.GetChatResponse(context.Background(), mc.Messages())
	require.NoError(t, err)

	action, err := dialogue.Validate(resp.Message, env)
	require.NoError(t, err, "scripted reply must satisfy the contract: %s", resp.Message)
	return action
}

func TestScriptedService_Structured(t *testing.T) {
	forge := []string{"idle", "give_item(item_name='Magic_Sword')", "unlock_door(door_name='Ancient_Door')", "speak"}

	tests := []struct {
		name    string
		input   string
		actions []string
		action  string
		emotion string
	}{
		{"sword offered", "That's a fine sword you have.", forge, "give_item", "proud"},
		{"door", "Can you open that door?", forge, "unlock_door", "determined"},
		{"greeting", "Hello there!", forge, "idle", "grumpy"},
		{"short greeting", "hi", forge, "idle", "grumpy"},
		{"hi inside a word is not a greeting", "This place is dusty.", forge, "idle", "annoyed"},
		{"sword without action", "Nice sword.", []string{"idle", "speak"}, "idle", "annoyed"},
		{"anything else", "Where is the tavern?", forge, "idle", "annoyed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scriptedStructured(t, tt.input, tt.actions)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.emotion, got.Emotion)
		})
	}
}

func TestScriptedService_ReadsOnlyCurrentLine(t *testing.T) {
	env := &dialogue.EnvironmentSnapshot{AvailableActions: []string{"idle", "give_item(item_name='Magic_Sword')"}}
	history := []chat.Turn{chat.PlayerTurn("Give me the sword."), chat.CharacterTurn("No.")}
	mc, err := prompts.BuildModelContext(npc.Kaelen, env, history, "hello")
	require.NoError(t, err)

	resp, err := NewScriptedService(testLogger()).GetChatResponse(context.Background(), mc.Messages())
	require.NoError(t, err)
	action, err := dialogue.Validate(resp.Message, env)
	require.NoError(t, err)
	assert.Equal(t, "idle", action.Action)
	assert.Equal(t, "grumpy", action.Emotion)
}

func TestScriptedService_SwordParams(t *testing.T) {
	got := scriptedStructured(t, "sword please", []string{"idle", "give_item(item_name='Magic_Sword')"})
	item, ok := got.ActionParams["item_name"].AsString()
	require.True(t, ok)
	assert.Equal(t, "Magic_Sword", item)
	assert.Contains(t, got.Dialogue, "Take it.")
}

func TestScriptedService_Freeform(t *testing.T) {
	svc := NewScriptedService(testLogger())
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 14, 5, 0, 0, time.UTC) }

	tests := []struct {
		name string
		text string
		ctx  map[string]any
		want string
	}{
		{"hello with context", "hello!", map[string]any{"npc_name": "Mira", "location": "herb garden"}, "Mira: Hello, traveler! It's 14:05 at the herb garden."},
		{"hello defaults", "Hello", nil, "NPC: Hello, traveler! It's 14:05 at the village square."},
		{"quest", "any quest for me?", map[string]any{"npc_name": "Mira"}, "Mira: I have a small task. Find 3 herbs near the river."},
		{"bye", "goodbye", nil, "NPC: Farewell! May your path be clear."},
		{"rumors", "what's new", nil, "NPC: I heard rumors about bandits near the old bridge."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := prompts.BuildChatMessages(tt.text, tt.ctx)
			require.NoError(t, err)
			resp, err := svc.GetChatResponse(context.Background(), msgs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Message)
		})
	}
}

func TestScriptedService_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScriptedService(testLogger()).GetChatResponse(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
