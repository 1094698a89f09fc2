package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/npc-engine/internal/engine"
	"github.com/jwebster45206/npc-engine/internal/handlers"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
	"github.com/jwebster45206/npc-engine/pkg/npc"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running npc-engine API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
	NPCOverride       string // If set, overrides the character for all test cases
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite in a fresh session
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results:   make([]TestResult, 0, len(suite.Steps)),
		SessionID: uuid.NewString(),
	}

	npcID := suite.NPCID
	if r.NPCOverride != "" {
		npcID = r.NPCOverride
	}
	if npcID == "" {
		npcID = npc.Kaelen.ID
	}

	seed := suite.SeedHistory
	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)

		stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		stepResult := r.runStep(stepCtx, npcID, result.SessionID, suite, step, seed)
		cancel()
		result.Results = append(result.Results, stepResult)

		if stepResult.IsReset {
			seed = suite.SeedHistory
		} else {
			seed = nil
		}

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	// Leave nothing behind on the server.
	if err := r.resetSession(context.WithoutCancel(ctx), npcID, result.SessionID); err != nil {
		r.Logger("    Warning: failed to clean up session: %v", err)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// runStep executes a single test step and checks expectations
func (r *Runner) runStep(ctx context.Context, npcID, sessionID string, suite TestSuite, step TestStep, seed []string) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	if step.PlayerInput == ResetSessionPrompt {
		if err := r.resetSession(ctx, npcID, sessionID); err != nil {
			result.Error = fmt.Errorf("failed to reset session: %w", err)
		} else {
			result.Success = true
			result.IsReset = true
		}
		result.Duration = time.Since(start)
		return result
	}

	env := suite.Environment
	if step.Environment != nil {
		env = step.Environment
	}

	action, err := r.interact(ctx, engine.InteractRequest{
		NPCID:               npcID,
		SessionID:           sessionID,
		PlayerInput:         step.PlayerInput,
		ConversationHistory: seed,
		Environment:         env,
	})
	if err != nil {
		result.Error = fmt.Errorf("interact failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	result.Action = action

	historyLen := -1
	if step.Expectations.HistoryLen != nil {
		if historyLen, err = r.historyLen(ctx, npcID, sessionID); err != nil {
			result.Error = fmt.Errorf("failed to read session: %w", err)
			result.Duration = time.Since(start)
			return result
		}
	}

	if err := checkExpectations(step.Expectations, action, historyLen); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) interact(ctx context.Context, req engine.InteractRequest) (dialogue.DialogueAction, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return dialogue.DialogueAction{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/v1/interact", bytes.NewReader(body))
	if err != nil {
		return dialogue.DialogueAction{}, fmt.Errorf("failed to create POST request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(httpReq)
	if err != nil {
		return dialogue.DialogueAction{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return dialogue.DialogueAction{}, fmt.Errorf("interact returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var action dialogue.DialogueAction
	if err := json.NewDecoder(resp.Body).Decode(&action); err != nil {
		return dialogue.DialogueAction{}, fmt.Errorf("failed to decode action: %w", err)
	}
	return action, nil
}

func (r *Runner) historyLen(ctx context.Context, npcID, sessionID string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/v1/sessions/"+npcID+"/"+sessionID, nil)
	if err != nil {
		return 0, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("session read returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sess handlers.SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return 0, fmt.Errorf("failed to decode session: %w", err)
	}
	return len(sess.Turns), nil
}

func (r *Runner) resetSession(ctx context.Context, npcID, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.BaseURL+"/v1/sessions/"+npcID+"/"+sessionID, nil)
	if err != nil {
		return err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("session reset returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// checkExpectations validates a delivered action. historyLen is ignored
// unless the expectation asks for it.
func checkExpectations(exp Expectations, action dialogue.DialogueAction, historyLen int) error {
	if exp.Action != nil && action.Action != *exp.Action {
		return fmt.Errorf("expected action %s, got %s", *exp.Action, action.Action)
	}

	if exp.Emotion != nil && action.Emotion != *exp.Emotion {
		return fmt.Errorf("expected emotion %s, got %s", *exp.Emotion, action.Emotion)
	}

	for key, want := range exp.Params {
		v, ok := action.ActionParams[key]
		if !ok {
			return fmt.Errorf("expected action param %s, but it's missing. Actual params: %v", key, action.ActionParams)
		}
		if got, _ := v.AsString(); got != want {
			return fmt.Errorf("expected action param %s to be %s, got %s", key, want, v)
		}
	}

	if exp.Fallback != nil && dialogue.IsFallback(action) != *exp.Fallback {
		return fmt.Errorf("expected fallback=%t, got %+v", *exp.Fallback, action)
	}

	if exp.HistoryLen != nil && historyLen != *exp.HistoryLen {
		return fmt.Errorf("expected %d stored turns, got %d", *exp.HistoryLen, historyLen)
	}

	lowerDialogue := strings.ToLower(action.Dialogue)
	for _, expectedText := range exp.DialogueContains {
		if !strings.Contains(lowerDialogue, strings.ToLower(expectedText)) {
			return fmt.Errorf("expected dialogue to contain '%s', but it didn't", expectedText)
		}
	}
	for _, unexpectedText := range exp.DialogueNotContains {
		if strings.Contains(lowerDialogue, strings.ToLower(unexpectedText)) {
			return fmt.Errorf("expected dialogue to NOT contain '%s', but it did", unexpectedText)
		}
	}

	if exp.DialogueRegex != "" {
		matched, err := regexp.MatchString(exp.DialogueRegex, action.Dialogue)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("dialogue didn't match regex pattern: %s", exp.DialogueRegex)
		}
	}

	if exp.DialogueMaxLength != nil && len(action.Dialogue) > *exp.DialogueMaxLength {
		return fmt.Errorf("expected dialogue length <= %d, got %d", *exp.DialogueMaxLength, len(action.Dialogue))
	}

	return nil
}
