package prompts

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
	"github.com/jwebster45206/npc-engine/pkg/npc"
)

func forgeEnvironment() *dialogue.EnvironmentSnapshot {
	return &dialogue.EnvironmentSnapshot{
		NearbyObjects: []dialogue.NearbyObject{
			{Name: "Magic_Sword", Description: "A blade that hums faintly."},
			{Name: "Ancient_Door", Description: "A sealed stone door."},
		},
		AvailableActions: []string{"idle", "give_item(item_name='Magic_Sword')", "speak"},
	}
}

func TestNew(t *testing.T) {
	builder := New()
	if builder == nil {
		t.Fatal("Expected builder to be created, got nil")
	}
}

func TestBuilder_FluentInterface(t *testing.T) {
	env := forgeEnvironment()
	history := []chat.Turn{chat.PlayerTurn("Hello")}

	builder := New().
		WithProfile(npc.Kaelen).
		WithEnvironment(env).
		WithHistory(history).
		WithPlayerInput("That sword...")

	if builder.profile == nil || builder.profile.Name != "Kaelen" {
		t.Error("WithProfile did not set profile")
	}
	if builder.env != env {
		t.Error("WithEnvironment did not set environment")
	}
	if len(builder.history) != 1 {
		t.Error("WithHistory did not set history")
	}
	if builder.playerInput != "That sword..." {
		t.Error("WithPlayerInput did not set input")
	}
}

func TestBuilder_Build_Requirements(t *testing.T) {
	if _, err := New().WithEnvironment(forgeEnvironment()).Build(); err == nil {
		t.Error("Expected error when profile is missing")
	}
	if _, err := New().WithProfile(npc.Kaelen).Build(); err == nil {
		t.Error("Expected error when environment is missing")
	}
}

func TestBuilder_Build_SectionOrder(t *testing.T) {
	mc, err := New().
		WithProfile(npc.Kaelen).
		WithEnvironment(forgeEnvironment()).
		WithHistory([]chat.Turn{
			chat.PlayerTurn("Good day."),
			chat.CharacterTurn("Hmph. What do you want?"),
		}).
		WithPlayerInput("That's a fine sword.").
		Build()
	require.NoError(t, err)

	markers := []string{
		"You are Kaelen. Your personality is: grumpy, proud, secretly kind-hearted, distrustful of strangers.",
		"Relevant world knowledge you possess: Knows the location of the legendary Magic Sword",
		HistoryHeader,
		"\nplayer: Good day.\n",
		"\ncharacter: Hmph. What do you want?\n",
		`player: "That's a fine sword."`,
		SituationHeader,
		`Nearby objects of interest: [{"name":"Magic_Sword","description":"A blade that hums faintly."},{"name":"Ancient_Door","description":"A sealed stone door."}]`,
		`you can perform ONLY ONE of the following actions: ["idle","give_item(item_name='Magic_Sword')","speak"]`,
		TaskHeader,
		"'dialogue'", "'action'", "'action_params'", "'emotion'",
	}

	last := -1
	for _, m := range markers {
		idx := strings.Index(mc.Prompt, m)
		if idx < 0 {
			t.Fatalf("prompt missing %q\n%s", m, mc.Prompt)
		}
		if idx < last {
			t.Errorf("marker %q out of order", m)
		}
		last = idx
	}
}

func TestBuilder_Build_Deterministic(t *testing.T) {
	build := func() string {
		mc, err := BuildModelContext(npc.Kaelen, forgeEnvironment(), []chat.Turn{chat.PlayerTurn("hi")}, "hello")
		require.NoError(t, err)
		return mc.Prompt
	}
	first := build()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, build())
	}
}

func TestBuilder_Build_CarriesEnvironment(t *testing.T) {
	env := forgeEnvironment()
	mc, err := BuildModelContext(npc.Kaelen, env, nil, "hello")
	require.NoError(t, err)
	assert.Same(t, env, mc.Environment)

	msgs := mc.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.ChatRoleUser, msgs[0].Role)
	assert.Equal(t, mc.Prompt, msgs[0].Content)
}

func TestBuilder_Build_EmptyEnvironment(t *testing.T) {
	mc, err := BuildModelContext(npc.Kaelen, &dialogue.EnvironmentSnapshot{}, nil, "hello")
	require.NoError(t, err)
	assert.Contains(t, mc.Prompt, "Nearby objects of interest: []")
	assert.Contains(t, mc.Prompt, "following actions: []")
}

func TestBuilder_Build_FullHistory(t *testing.T) {
	var history []chat.Turn
	for i := 0; i < 26; i++ {
		history = append(history, chat.PlayerTurn(fmt.Sprintf("line-%02d", i)))
	}

	mc, err := New().
		WithProfile(npc.Kaelen).
		WithEnvironment(forgeEnvironment()).
		WithHistory(history).
		WithPlayerInput("now").
		Build()
	require.NoError(t, err)

	last := -1
	for _, turn := range history {
		idx := strings.Index(mc.Prompt, turn.Line()+"\n")
		require.GreaterOrEqual(t, idx, 0, "missing %q", turn.Text)
		assert.Greater(t, idx, last, "%q out of order", turn.Text)
		last = idx
	}
}

func TestBuildChatMessages(t *testing.T) {
	msgs, err := BuildChatMessages("hello there", map[string]any{
		"npc_name": "Mira",
		"location": "herb garden",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, chat.ChatRoleSystem, msgs[0].Role)
	assert.Equal(t, ChatSystemPrompt, msgs[0].Content)
	assert.Equal(t, chat.ChatRoleUser, msgs[1].Role)
	assert.Equal(t, `Context: {"location":"herb garden","npc_name":"Mira"}`+"\nPlayer: hello there", msgs[1].Content)

	msgs, err = BuildChatMessages("hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Context: {}\nPlayer: hi", msgs[1].Content)
}

func TestBuildChatMessages_UnencodableContext(t *testing.T) {
	_, err := BuildChatMessages("hi", map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}
