// Package voice defines the speech collaborators used by interactive
// sessions, with console and scripted implementations.
package voice

import (
	"context"
	"errors"
)

// Transcription outcomes other than recognized text. The first three mean
// "no input this exchange"; ErrInputClosed means no more input will come.
var (
	ErrUnrecognized = errors.New("speech not recognized")
	ErrServiceError = errors.New("speech service error")
	ErrTimedOut     = errors.New("listening timed out")
	ErrInputClosed  = errors.New("input closed")
)

// ErrVolumeRange is returned by SetVolume for values outside 0.0..1.0.
var ErrVolumeRange = errors.New("volume must be between 0.0 and 1.0")

// Transcriber turns the player's next utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context) (string, error)
}

// Synthesizer delivers character speech to the player.
type Synthesizer interface {
	// Speak reports whether delivery succeeded.
	Speak(ctx context.Context, text string) bool
	SetRate(wordsPerMinute int)
	SetVolume(v float64) error
	Rate() int
	Volume() float64
}

// NoInput reports whether err means the exchange had no usable input but
// the session may continue.
func NoInput(err error) bool {
	return errors.Is(err, ErrUnrecognized) || errors.Is(err, ErrServiceError) || errors.Is(err, ErrTimedOut)
}

// Stopper is implemented by synthesizers that hold playback resources
// which must be released when a session ends.
type Stopper interface {
	Stop()
}
