package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type ConsoleConfig struct {
	APIBaseURL string
	Timeout    time.Duration
	// Actions is the action contract sent with every turn.
	Actions []string
	// Objects are name=description pairs sent as nearby objects.
	Objects []string
}

func main() {
	cfg := &ConsoleConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		Timeout:    30 * time.Second,
		Actions:    splitList(getEnv("NPC_ACTIONS", "idle;speak;give_item(item_name='Magic_Sword')")),
		Objects:    splitList(getEnv("NPC_OBJECTS", "Magic_Sword=A glowing blade resting on the anvil")),
	}

	// No client timeout: the event stream is long-lived. Requests carry
	// their own deadline.
	api := newAPIClient(cfg.APIBaseURL, &http.Client{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	ok := api.healthy(ctx)
	cancel()
	if !ok {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	p := tea.NewProgram(NewConsoleUI(cfg, api),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

// splitList splits a semicolon separated list. Commas are left alone since
// action signatures may contain them.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
