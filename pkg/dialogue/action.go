package dialogue

// FallbackDialogue is spoken whenever a turn cannot produce a valid action.
const FallbackDialogue = "I... don't know what to say."

const (
	FallbackAction  = "idle"
	FallbackEmotion = "confused"
)

// DialogueAction is the only object a turn ever returns to a caller. It is
// either fully populated from a validated model response or it is the
// canonical fallback.
type DialogueAction struct {
	Dialogue     string `json:"dialogue"`
	Action       string `json:"action"`
	ActionParams Params `json:"action_params"`
	Emotion      string `json:"emotion"`
}

// Fallback returns a fresh copy of the canonical fallback action. A new
// Params map is allocated on every call so callers cannot alter the value
// seen by others.
func Fallback() DialogueAction {
	return DialogueAction{
		Dialogue:     FallbackDialogue,
		Action:       FallbackAction,
		ActionParams: Params{},
		Emotion:      FallbackEmotion,
	}
}

// IsFallback reports whether a equals the canonical fallback.
func IsFallback(a DialogueAction) bool {
	return a.Equal(Fallback())
}

// Equal reports field-wise equality, comparing params deeply.
func (a DialogueAction) Equal(o DialogueAction) bool {
	return a.Dialogue == o.Dialogue &&
		a.Action == o.Action &&
		a.Emotion == o.Emotion &&
		a.ActionParams.Equal(o.ActionParams)
}
