package transcript

import "sync"

// Accumulator folds segments into one monotonically growing transcript.
// Accumulation is append-only: no segment is ever removed or reordered once
// appended, and FullText never rolls back to a prior value. Appending the
// same segment twice is not deduplicated; callers append exactly once.
type Accumulator struct {
	mu       sync.Mutex
	fullText string
	segments []Segment
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append concatenates the segment's text onto the transcript with
// whitespace-aware joining and records the segment in arrival order.
func (a *Accumulator) Append(seg Segment) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.fullText = Join(a.fullText, seg.Text)
	a.segments = append(a.segments, seg)
}

// Reset clears the transcript for a brand-new session.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.fullText = ""
	a.segments = nil
}

func (a *Accumulator) FullText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fullText
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.segments)
}

// Segments returns a copy of the appended segments in append order.
func (a *Accumulator) Segments() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Segment(nil), a.segments...)
}
