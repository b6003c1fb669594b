package capture

import (
	"encoding/binary"
	"sync"
)

const (
	levelWindowSize = 64
	// Soft speech barely moves a raw 16-bit sample; amplify so it remains
	// visible, clamped to the normalized range.
	levelGain = 8.0
)

// LevelMeter derives a redraw-ready amplitude signal from the live PCM
// stream. It has no effect on transcription; it shares the stream fan-out
// with the encoder and follows the session's pause state.
type LevelMeter struct {
	mu        sync.Mutex
	window    []float64
	pos       int
	suspended bool
}

func NewLevelMeter() *LevelMeter {
	return &LevelMeter{window: make([]float64, levelWindowSize)}
}

// Write folds PCM16-LE samples into the rolling amplitude window. Writes
// while suspended are dropped.
func (m *LevelMeter) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.suspended {
		return len(p), nil
	}

	for i := 0; i+1 < len(p); i += 2 {
		s := int16(binary.LittleEndian.Uint16(p[i:]))
		v := float64(s) / 32768.0 * levelGain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		m.window[m.pos] = v
		m.pos = (m.pos + 1) % len(m.window)
	}
	return len(p), nil
}

// Sample returns a fixed-size snapshot of normalized amplitudes in [-1, 1].
func (m *LevelMeter) Sample() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.window))
	copy(out, m.window)
	return out
}

// Suspend stops folding new samples while the session is paused.
func (m *LevelMeter) Suspend() {
	m.mu.Lock()
	m.suspended = true
	m.mu.Unlock()
}

func (m *LevelMeter) Resume() {
	m.mu.Lock()
	m.suspended = false
	m.mu.Unlock()
}

// Reset zeroes the window for a new session.
func (m *LevelMeter) Reset() {
	m.mu.Lock()
	for i := range m.window {
		m.window[i] = 0
	}
	m.pos = 0
	m.suspended = false
	m.mu.Unlock()
}
