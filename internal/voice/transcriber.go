package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

type lineResult struct {
	text string
	err  error
}

// LineTranscriber reads typed player input one line at a time. A blank
// line is unrecognized speech; end of input closes the session.
type LineTranscriber struct {
	r     io.Reader
	once  sync.Once
	lines chan lineResult
}

var _ Transcriber = (*LineTranscriber)(nil)

func NewLineTranscriber(r io.Reader) *LineTranscriber {
	return &LineTranscriber{r: r}
}

func (t *LineTranscriber) start() {
	t.lines = make(chan lineResult)
	go func() {
		defer close(t.lines)
		scanner := bufio.NewScanner(t.r)
		for scanner.Scan() {
			t.lines <- lineResult{text: scanner.Text()}
		}
		if err := scanner.Err(); err != nil {
			t.lines <- lineResult{err: fmt.Errorf("%w: %v", ErrServiceError, err)}
		}
	}()
}

func (t *LineTranscriber) Transcribe(ctx context.Context) (string, error) {
	t.once.Do(t.start)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-t.lines:
		if !ok {
			return "", ErrInputClosed
		}
		if res.err != nil {
			return "", res.err
		}
		text := strings.TrimSpace(res.text)
		if text == "" {
			return "", ErrUnrecognized
		}
		return text, nil
	}
}

// Utterance is one scripted transcription outcome.
type Utterance struct {
	Text string
	Err  error
}

// ScriptedTranscriber replays a fixed sequence, then reports ErrInputClosed.
type ScriptedTranscriber struct {
	mu    sync.Mutex
	steps []Utterance
	next  int
}

var _ Transcriber = (*ScriptedTranscriber)(nil)

func NewScriptedTranscriber(steps ...Utterance) *ScriptedTranscriber {
	return &ScriptedTranscriber{steps: steps}
}

// Say is shorthand for a scripted transcriber that hears each line in turn.
func Say(lines ...string) *ScriptedTranscriber {
	steps := make([]Utterance, len(lines))
	for i, l := range lines {
		steps[i] = Utterance{Text: l}
	}
	return NewScriptedTranscriber(steps...)
}

func (t *ScriptedTranscriber) Transcribe(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.next >= len(t.steps) {
		return "", ErrInputClosed
	}
	u := t.steps[t.next]
	t.next++
	return u.Text, u.Err
}

// Remaining reports how many scripted utterances are left.
func (t *ScriptedTranscriber) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.steps) - t.next
}
