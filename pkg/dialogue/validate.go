package dialogue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrMalformedResponse means the raw output was not a record with exactly
	// the four required, correctly typed fields.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrInvalidAction means the response named an action outside the
	// turn's action contract.
	ErrInvalidAction = errors.New("invalid action")
)

// Response field names, as named in the output-contract instruction.
const (
	FieldDialogue     = "dialogue"
	FieldAction       = "action"
	FieldActionParams = "action_params"
	FieldEmotion      = "emotion"
)

// RequiredFields lists the response fields in contract order.
var RequiredFields = []string{FieldDialogue, FieldAction, FieldActionParams, FieldEmotion}

// Validate parses raw model output and checks it against the snapshot's
// action contract. It always returns a usable DialogueAction: the parsed
// action unchanged on success, or Fallback() together with an error wrapping
// ErrMalformedResponse or ErrInvalidAction.
func Validate(raw string, snap *EnvironmentSnapshot) (DialogueAction, error) {
	action, err := Parse(raw)
	if err != nil {
		return Fallback(), err
	}
	if !snap.Allows(action.Action) {
		return Fallback(), fmt.Errorf("%w: %q is not one of %v", ErrInvalidAction, action.Action, snap.ActionNames())
	}
	return action, nil
}

// Parse performs the structural half of validation only.
func Parse(raw string) (DialogueAction, error) {
	payload := stripCodeFence(raw)
	if payload == "" {
		return DialogueAction{}, fmt.Errorf("%w: empty output", ErrMalformedResponse)
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return DialogueAction{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if fields == nil {
		return DialogueAction{}, fmt.Errorf("%w: not an object", ErrMalformedResponse)
	}
	if _, err := dec.Token(); err != io.EOF {
		return DialogueAction{}, fmt.Errorf("%w: trailing data after object", ErrMalformedResponse)
	}

	for name := range fields {
		if !isRequiredField(name) {
			return DialogueAction{}, fmt.Errorf("%w: unexpected field %q", ErrMalformedResponse, name)
		}
	}

	var action DialogueAction
	var err error
	if action.Dialogue, err = stringField(fields, FieldDialogue); err != nil {
		return DialogueAction{}, err
	}
	if action.Action, err = stringField(fields, FieldAction); err != nil {
		return DialogueAction{}, err
	}
	if action.Emotion, err = stringField(fields, FieldEmotion); err != nil {
		return DialogueAction{}, err
	}
	if action.ActionParams, err = paramsField(fields, FieldActionParams); err != nil {
		return DialogueAction{}, err
	}
	return action, nil
}

func isRequiredField(name string) bool {
	for _, f := range RequiredFields {
		if f == name {
			return true
		}
	}
	return false
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrMalformedResponse, name)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", fmt.Errorf("%w: field %q must be a string", ErrMalformedResponse, name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: field %q: %v", ErrMalformedResponse, name, err)
	}
	return s, nil
}

func paramsField(fields map[string]json.RawMessage, name string) (Params, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", ErrMalformedResponse, name)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: field %q must be an object", ErrMalformedResponse, name)
	}
	var m map[string]ParamValue
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: field %q: %v", ErrMalformedResponse, name, err)
	}
	if m == nil {
		m = map[string]ParamValue{}
	}
	return Params(m), nil
}

// stripCodeFence removes surrounding whitespace and a Markdown code fence,
// which some backends wrap around JSON output.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(s[3:], "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		lang := strings.TrimSpace(s[:nl])
		if lang == "" || lang == "json" || lang == "JSON" {
			s = s[nl+1:]
		}
	}
	return strings.TrimSpace(s)
}
