package ingest

import (
	"context"
	"sync"
	"time"
)

// Result is a transcription outcome for one audio chunk.
type Result struct {
	Text       string
	Confidence float64
}

// Transcriber turns one encoded audio chunk into text. Implementations
// wrap a single upstream capability; failure handling and fallback text
// live in the Service, not here.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, mimeType string, isFinal bool) (Result, error)
}

var simulatedPhrases = []string{
	"This is simulated transcription text for the current audio chunk.",
	"The pipeline is running in simulation mode without a speech backend.",
	"Each chunk produces one placeholder sentence in sequence.",
	"Simulated output keeps the full round trip exercisable offline.",
}

const simulatedFinalPhrase = "That concludes the simulated recording."

// Simulated produces deterministic placeholder text after a small delay,
// so the whole ingestion round trip works with no provider configured.
type Simulated struct {
	delay time.Duration

	mu sync.Mutex
	n  int
}

func NewSimulated(delay time.Duration) *Simulated {
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &Simulated{delay: delay}
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) Transcribe(ctx context.Context, _ []byte, _ string, isFinal bool) (Result, error) {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-timer.C:
	}

	if isFinal {
		return Result{Text: simulatedFinalPhrase, Confidence: 1}, nil
	}

	s.mu.Lock()
	phrase := simulatedPhrases[s.n%len(simulatedPhrases)]
	s.n++
	s.mu.Unlock()

	return Result{Text: phrase, Confidence: 1}, nil
}
