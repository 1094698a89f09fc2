package runner

import (
	"time"

	"github.com/jwebster45206/npc-engine/pkg/dialogue"
)

// ResetSessionPrompt as a step's player_input resets the session instead of
// sending a turn.
const ResetSessionPrompt = "RESET_SESSION"

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name        string                        `json:"name"`
	NPCID       string                        `json:"npc_id,omitempty"`
	Environment *dialogue.EnvironmentSnapshot `json:"environment,omitempty"`
	SeedHistory []string                      `json:"seed_history,omitempty"` // Sent with the first turn only
	Steps       []TestStep                    `json:"steps,omitempty"`
	Cases       []string                      `json:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single test interaction and its expected outcomes.
// A step may override the suite environment for its turn.
type TestStep struct {
	Name         string                        `json:"name,omitempty"`
	PlayerInput  string                        `json:"player_input"`
	Environment  *dialogue.EnvironmentSnapshot `json:"environment,omitempty"`
	Expectations Expectations                  `json:"expect"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	// Delivered action
	Action   *string           `json:"action,omitempty"`
	Emotion  *string           `json:"emotion,omitempty"`
	Params   map[string]string `json:"action_params,omitempty"` // String params, compared exactly
	Fallback *bool             `json:"fallback,omitempty"`

	// Stored session after the step
	HistoryLen *int `json:"history_len,omitempty"`

	// Dialogue analysis
	DialogueContains    []string `json:"dialogue_contains,omitempty"`
	DialogueNotContains []string `json:"dialogue_not_contains,omitempty"`
	DialogueRegex       string   `json:"dialogue_regex,omitempty"`
	DialogueMaxLength   *int     `json:"dialogue_max_length,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	StepName string
	Success  bool
	Error    error
	Duration time.Duration
	Action   dialogue.DialogueAction
	IsReset  bool // True if this was a RESET_SESSION step (should not count toward pass/fail metrics)
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job       TestJob
	Results   []TestResult
	Error     error
	Duration  time.Duration
	SessionID string // Session used for this run
}
