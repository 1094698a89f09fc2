package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/npc-engine/internal/engine"
	"github.com/jwebster45206/npc-engine/internal/handlers"
	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
)

const (
	PlaceHolderText = "Say something..."
	requestTimeout  = 45 * time.Second
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	api          *apiClient
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	// Character selection state
	showCharacterModal bool
	characters         []handlers.CharacterSummary
	selected           int
	loadingCharacters  bool

	// Conversation state
	character  handlers.CharacterSummary
	sessionID  string
	turns      []chat.Turn
	lastAction *dialogue.DialogueAction
	notes      []string

	// Event stream state
	events      chan sseEvent
	stopEvents  context.CancelFunc
	eventStatus string

	showQuitModal bool
	progressTick  int
}

type charactersLoadedMsg struct {
	characters []handlers.CharacterSummary
	err        error
}

type interactMsg struct {
	action dialogue.DialogueAction
	err    error
}

type historyMsg struct {
	turns []chat.Turn
	err   error
}

type resetMsg struct {
	err error
}

type eventMsg struct {
	event sseEvent
}

type eventsClosedMsg struct {
	err error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	emotionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")). // green
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, api *apiClient) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:             cfg,
		api:                api,
		textarea:           ta,
		chatViewport:       chatVp,
		metaViewport:       metaVp,
		showCharacterModal: true,
		loadingCharacters:  true,
		eventStatus:        "connecting",
	}
}

// environment builds the snapshot sent with every turn.
func (m ConsoleUI) environment() *dialogue.EnvironmentSnapshot {
	env := &dialogue.EnvironmentSnapshot{AvailableActions: m.config.Actions}
	for _, o := range m.config.Objects {
		name, desc, _ := strings.Cut(o, "=")
		env.NearbyObjects = append(env.NearbyObjects, dialogue.NearbyObject{
			Name:        strings.TrimSpace(name),
			Description: strings.TrimSpace(desc),
		})
	}
	return env
}

// formatTurn renders one history turn wrapped to width.
func formatTurn(t chat.Turn, npcName string, width int) string {
	if t.Role == chat.RolePlayer {
		return userStyle.Render("You: ") + wordwrap.String(t.Text, max(width-5, 10))
	}
	prefix := npcName + ": "
	return speakerStyle.Render(prefix) + wordwrap.String(t.Text, max(width-len(prefix), 10))
}

func formatActionLine(a *dialogue.DialogueAction) string {
	if a == nil {
		return ""
	}
	line := fmt.Sprintf("(%s) %s", a.Emotion, a.Action)
	if len(a.ActionParams) > 0 {
		line += " " + formatParams(a.ActionParams)
	}
	return line
}

func formatParams(p dialogue.Params) string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, k+"="+p[k].String())
	}
	return strings.Join(parts, ", ")
}

// transcript renders the conversation as plain text for the clipboard.
func transcript(turns []chat.Turn, npcName string) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Role == chat.RolePlayer {
			b.WriteString("You: ")
		} else {
			b.WriteString(npcName + ": ")
		}
		b.WriteString(t.Text + "\n")
	}
	return b.String()
}

func writeMetadata(m ConsoleUI) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("CHARACTER") + "\n\n")
	content.WriteString(m.character.Name + "\n")
	content.WriteString(promptStyle.Render(m.character.ID) + "\n\n")

	if len(m.character.Traits) > 0 {
		content.WriteString("Traits:\n")
		for _, t := range m.character.Traits {
			content.WriteString("• " + t + "\n")
		}
		content.WriteString("\n")
	}

	content.WriteString("Session:\n")
	if len(m.sessionID) > 8 {
		content.WriteString(m.sessionID[:8] + "...\n\n")
	} else {
		content.WriteString(m.sessionID + "\n\n")
	}

	content.WriteString("Turns:\n")
	content.WriteString(fmt.Sprintf("%d stored\n\n", len(m.turns)))

	content.WriteString("Last action:\n")
	if m.lastAction != nil {
		content.WriteString(formatActionLine(m.lastAction) + "\n\n")
	} else {
		content.WriteString("None yet\n\n")
	}

	content.WriteString("Actions:\n")
	for _, a := range m.config.Actions {
		content.WriteString("• " + a + "\n")
	}

	content.WriteString("\nEvents:\n")
	content.WriteString(m.eventStatus + "\n")

	content.WriteString("\n")
	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")

	return content.String()
}

// writeChatContent builds the chat content for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding

	var content strings.Builder
	content.WriteString(titleStyle.Render("NPC ENGINE") + "\n\n")
	content.WriteString(fmt.Sprintf("You are talking to %s.\n", m.character.Name))
	content.WriteString("Type below and press Enter to speak.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(chatWidth-6, 1))) + "\n\n")

	for i, t := range m.turns {
		content.WriteString(formatTurn(t, m.character.Name, chatWidth) + "\n")
		// The newest character line carries the validated action.
		if i == len(m.turns)-1 && t.Role == chat.RoleCharacter && m.lastAction != nil {
			content.WriteString(emotionStyle.Render(formatActionLine(m.lastAction)) + "\n")
		}
		content.WriteString("\n")
	}

	for _, n := range m.notes {
		content.WriteString(n + "\n\n")
	}

	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) resize() {
	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m *ConsoleUI) refresh() {
	m.writeChatContent()
	m.metaViewport.SetContent(writeMetadata(*m))
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadCharacters()
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Events keep arriving while a modal is open.
	switch msg := msg.(type) {
	case eventMsg:
		m.eventStatus = describeEvent(msg.event)
		m.metaViewport.SetContent(writeMetadata(m))
		return m, waitForEvent(m.events)
	case eventsClosedMsg:
		switch {
		case errors.Is(msg.err, errEventsUnavailable):
			m.eventStatus = "not available"
		case msg.err != nil && !errors.Is(msg.err, context.Canceled):
			m.eventStatus = "disconnected"
		}
		m.metaViewport.SetContent(writeMetadata(m))
		return m, nil
	}

	if m.showCharacterModal {
		return m.updateCharacterModal(msg)
	}

	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.textarea.Reset()
			m.loading = true
			m.progressTick = 0
			m.err = nil
			m.notes = nil

			// Show the player line right away; history refresh replaces it.
			m.turns = append(m.turns, chat.PlayerTurn(input))
			m.writeChatContent()

			return m, tea.Batch(m.sendInteract(input), progressTick())
		}

	case interactMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.writeChatContent()
			return m, nil
		}
		action := msg.action
		m.lastAction = &action
		m.turns = append(m.turns, chat.CharacterTurn(action.Dialogue))
		m.refresh()
		return m, m.refreshHistory()

	case historyMsg:
		if msg.err == nil {
			m.turns = msg.turns
			m.refresh()
		}

	case resetMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.turns = nil
			m.lastAction = nil
			m.notes = append(m.notes, promptStyle.Render("Conversation reset."))
		}
		m.refresh()

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func describeEvent(ev sseEvent) string {
	switch ev.Type {
	case "connected":
		return "connected"
	case "turn.delivered":
		fallback, _ := ev.Data["fallback"].(bool)
		attempts, _ := ev.Data["attempts"].(float64)
		if fallback {
			return fmt.Sprintf("fallback after %d attempt(s)", int(attempts))
		}
		return fmt.Sprintf("delivered in %d attempt(s)", int(attempts))
	case "session.ended":
		reason, _ := ev.Data["reason"].(string)
		return "session ended (" + reason + ")"
	default:
		return ev.Type
	}
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	m.textarea.Reset()
	cmd, arg, _ := strings.Cut(strings.TrimSpace(input), " ")

	switch strings.ToLower(cmd) {
	case "/help":
		m.notes = append(m.notes, titleStyle.Render("Help:")+`
• /help - Show this help
• /reset - Forget this conversation
• /copy - Copy the transcript to the clipboard
• /actions a;b;c - Replace the available actions
• Ctrl+C - Quit`)

	case "/reset":
		m.writeChatContent()
		return m, m.resetSession()

	case "/copy":
		if err := clipboard.WriteAll(transcript(m.turns, m.character.Name)); err != nil {
			m.notes = append(m.notes, errorStyle.Render("Copy failed: "+err.Error()))
		} else {
			m.notes = append(m.notes, promptStyle.Render("Transcript copied to clipboard."))
		}

	case "/actions":
		actions := splitList(arg)
		if len(actions) == 0 {
			m.notes = append(m.notes, errorStyle.Render("Usage: /actions idle;speak;give_item(item_name='Magic_Sword')"))
			break
		}
		m.config.Actions = actions
		m.notes = append(m.notes, promptStyle.Render("Actions: "+strings.Join(actions, ", ")))

	default:
		m.notes = append(m.notes, errorStyle.Render("Unknown command "+cmd+". Try /help."))
	}

	m.refresh()
	return m, nil
}

func (m ConsoleUI) sendInteract(input string) tea.Cmd {
	req := engine.InteractRequest{
		NPCID:       m.character.ID,
		SessionID:   m.sessionID,
		PlayerInput: input,
		Environment: m.environment(),
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		action, err := m.api.interact(ctx, req)
		return interactMsg{action, err}
	}
}

func (m ConsoleUI) refreshHistory() tea.Cmd {
	npcID, sessionID := m.character.ID, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		turns, err := m.api.history(ctx, npcID, sessionID)
		return historyMsg{turns, err}
	}
}

func (m ConsoleUI) resetSession() tea.Cmd {
	npcID, sessionID := m.character.ID, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return resetMsg{m.api.reset(ctx, npcID, sessionID)}
	}
}

func (m ConsoleUI) loadCharacters() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		characters, err := m.api.characters(ctx)
		return charactersLoadedMsg{characters, err}
	}
}

// listenEvents streams the session's events until ctx is canceled.
func (m ConsoleUI) listenEvents(ctx context.Context) tea.Cmd {
	ch, npcID, sessionID := m.events, m.character.ID, m.sessionID
	return func() tea.Msg {
		defer close(ch)
		return eventsClosedMsg{m.api.listenEvents(ctx, npcID, sessionID, ch)}
	}
}

func waitForEvent(ch <-chan sseEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{ev}
	}
}

// startConversation opens a fresh session with the selected character.
func (m ConsoleUI) startConversation() (tea.Model, tea.Cmd) {
	m.character = m.characters[m.selected]
	m.sessionID = uuid.NewString()
	m.showCharacterModal = false
	m.turns = nil
	m.lastAction = nil

	ctx, cancel := context.WithCancel(context.Background())
	m.stopEvents = cancel
	m.events = make(chan sseEvent, 16)

	if m.width > 0 && m.height > 0 {
		m.resize()
	}
	m.ready = true
	m.textarea.Focus()
	m.refresh()

	return m, tea.Batch(textarea.Blink, m.listenEvents(ctx), waitForEvent(m.events))
}

func (m ConsoleUI) quit() (tea.Model, tea.Cmd) {
	if m.stopEvents != nil {
		m.stopEvents()
	}
	return m, tea.Quit
}

func (m ConsoleUI) updateCharacterModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case charactersLoadedMsg:
		m.loadingCharacters = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.characters = msg.characters
		}

	case tea.KeyMsg:
		if m.loadingCharacters || m.err != nil {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m.quit()
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			m.showCharacterModal = false
			return m, nil
		case tea.KeyUp:
			if m.selected > 0 {
				m.selected--
			}
		case tea.KeyDown:
			if m.selected < len(m.characters)-1 {
				m.selected++
			}
		case tea.KeyEnter:
			if len(m.characters) > 0 {
				return m.startConversation()
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.sessionID != "" {
			m.resize()
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m.quit()
		default:
			switch msg.String() {
			case "y", "Y":
				return m.quit()
			case "n", "N":
				m.showQuitModal = false
				if m.sessionID == "" {
					m.showCharacterModal = true
					return m, nil
				}
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Leave Conversation?"))
	content.WriteString("\n\n")
	content.WriteString("Are you sure you want to quit?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderCharacterModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingCharacters:
		content.WriteString(modalTitleStyle.Render("Loading Characters..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait while we fetch available characters..."))
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(fmt.Sprintf("Failed to load characters: %v", m.err)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	default:
		content.WriteString(modalTitleStyle.Render("Who do you want to talk to?"))
		content.WriteString("\n\n")

		for i, c := range m.characters {
			line := fmt.Sprintf("%s (%s)", c.Name, strings.Join(c.Traits, ", "))
			if i == m.selected {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + line))
			} else {
				content.WriteString(modalItemStyle.Render("  " + line))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showCharacterModal {
		return m.renderCharacterModal()
	}

	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}

	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
