package transcript

import (
	"strings"
	"time"
)

// ErrorPlaceholder is the human-readable text carried by fallback segments.
// It appears inline in the transcript so the user sees continuity even
// through isolated chunk failures.
const ErrorPlaceholder = "[transcription unavailable for this part]"

// NoSpeechPlaceholder is substituted when transcription returns empty text.
const NoSpeechPlaceholder = "(no speech detected)"

// Segment is the transcription result for one audio chunk. Segments are
// immutable once created; the accumulator appends them exactly once.
type Segment struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	Confidence      float64   `json:"confidence"`
	IsFinal         bool      `json:"isFinal"`
	RecordingTime   int       `json:"recordingTime"`
	IsErrorFallback bool      `json:"error,omitempty"`
	ErrorDetail     string    `json:"errorDetail,omitempty"`
}

// Join concatenates two transcript fragments with exactly one space at the
// boundary. Leading/trailing whitespace on the new fragment never produces
// double spaces or missing separators.
func Join(full, text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return full
	}
	if full == "" {
		return t
	}
	return full + " " + t
}
