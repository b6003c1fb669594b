package recorder

import (
	"sync"
	"time"
)

// saveSuppressor holds off redundant background saves for a short window
// after an explicit save. An explicit Stop already persisted the complete
// document; an autosave firing right behind it would write the same bytes
// again.
type saveSuppressor struct {
	ttl   time.Duration
	mu    sync.Mutex
	timer *time.Timer
	armed bool
}

func newSaveSuppressor(ttl time.Duration) *saveSuppressor {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &saveSuppressor{ttl: ttl}
}

// Arm starts (or restarts) the suppression window.
func (s *saveSuppressor) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.armed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.ttl, func() {
		s.mu.Lock()
		s.armed = false
		s.timer = nil
		s.mu.Unlock()
	})
}

// Disarm ends the suppression window early.
func (s *saveSuppressor) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.armed = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Active reports whether background saves should currently be skipped.
func (s *saveSuppressor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}
