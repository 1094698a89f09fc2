package voice

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/muesli/reflow/wordwrap"
)

const (
	DefaultRate   = 150
	DefaultVolume = 1.0
	defaultWidth  = 80
)

type settings struct {
	mu     sync.Mutex
	rate   int
	volume float64
}

func (s *settings) SetRate(wordsPerMinute int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = wordsPerMinute
}

func (s *settings) SetVolume(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: got %v", ErrVolumeRange, v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
	return nil
}

func (s *settings) Rate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

func (s *settings) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// ConsoleSynthesizer "speaks" by printing the line, labelled with the
// character's name and wrapped to the terminal width.
type ConsoleSynthesizer struct {
	settings
	w     io.Writer
	name  string
	width int
}

var _ Synthesizer = (*ConsoleSynthesizer)(nil)

func NewConsoleSynthesizer(w io.Writer, name string) *ConsoleSynthesizer {
	return &ConsoleSynthesizer{
		settings: settings{rate: DefaultRate, volume: DefaultVolume},
		w:        w,
		name:     name,
		width:    defaultWidth,
	}
}

// SetWidth changes the wrap width. Non-positive widths disable wrapping.
func (c *ConsoleSynthesizer) SetWidth(width int) {
	c.width = width
}

func (c *ConsoleSynthesizer) Speak(ctx context.Context, text string) bool {
	if ctx.Err() != nil {
		return false
	}
	line := c.name + ": " + text
	if c.width > 0 {
		line = wordwrap.String(line, c.width)
	}
	_, err := fmt.Fprintln(c.w, line)
	return err == nil
}

// MockSynthesizer records spoken lines for tests.
type MockSynthesizer struct {
	settings
	mu      sync.Mutex
	Spoken  []string
	Fail    bool
	Stopped bool
}

var (
	_ Synthesizer = (*MockSynthesizer)(nil)
	_ Stopper     = (*MockSynthesizer)(nil)
)

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{settings: settings{rate: DefaultRate, volume: DefaultVolume}}
}

func (m *MockSynthesizer) Speak(_ context.Context, text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return false
	}
	m.Spoken = append(m.Spoken, text)
	return true
}

// Lines returns a copy of everything spoken so far.
func (m *MockSynthesizer) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Spoken))
	copy(out, m.Spoken)
	return out
}

func (m *MockSynthesizer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stopped = true
}

// IsStopped reports whether Stop was called.
func (m *MockSynthesizer) IsStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Stopped
}
