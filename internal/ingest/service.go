package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harshbhati1/syncscribe/internal/transcript"
)

// DefaultConfidence is the advisory score attached when the upstream
// capability does not report one.
const DefaultConfidence = 0.9

// Request is one chunk arriving at the ingestion endpoint, already
// parsed out of the wire format.
type Request struct {
	Audio         []byte
	MIMEType      string
	IsFinal       bool
	Timestamp     time.Time
	RecordingTime int
}

// Service runs chunks through the configured transcriber and always
// produces a segment: capability failures become inline fallback
// segments, never errors to the caller.
type Service struct {
	transcriber Transcriber
	dumpDir     string
	now         func() time.Time
}

func NewService(transcriber Transcriber, dumpDir string) *Service {
	return &Service{
		transcriber: transcriber,
		dumpDir:     dumpDir,
		now:         time.Now,
	}
}

// TranscriberName reports which backend is serving requests.
func (s *Service) TranscriberName() string {
	return s.transcriber.Name()
}

// Ingest transcribes one chunk. The returned segment always has
// non-empty text: real transcription, the no-speech placeholder, or the
// error placeholder when the capability fails.
func (s *Service) Ingest(ctx context.Context, req Request) transcript.Segment {
	mimeType := NormalizeMIME(req.MIMEType)

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now().UTC()
	}

	seg := transcript.Segment{
		ID:            uuid.NewString(),
		Timestamp:     timestamp,
		IsFinal:       req.IsFinal,
		RecordingTime: req.RecordingTime,
	}

	result, err := s.transcriber.Transcribe(ctx, req.Audio, mimeType, req.IsFinal)
	if err != nil {
		log.Printf("ingest: %s transcription failed (%d bytes, %s): %v",
			s.transcriber.Name(), len(req.Audio), mimeType, err)
		s.dumpChunk(req.Audio, mimeType)

		seg.Text = transcript.ErrorPlaceholder
		seg.IsErrorFallback = true
		seg.ErrorDetail = err.Error()
		return seg
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		text = transcript.NoSpeechPlaceholder
	}
	confidence := result.Confidence
	if confidence <= 0 {
		confidence = DefaultConfidence
	}

	seg.Text = text
	seg.Confidence = confidence
	return seg
}

// NormalizeMIME fills in the codec parameter that some clients omit on
// container types where the decoder needs it.
func NormalizeMIME(mimeType string) string {
	mt := strings.TrimSpace(mimeType)
	switch mt {
	case "":
		return "audio/webm;codecs=opus"
	case "audio/webm":
		return "audio/webm;codecs=opus"
	case "audio/ogg":
		return "audio/ogg;codecs=opus"
	default:
		return mt
	}
}

// dumpChunk writes the failing audio to disk for offline debugging.
// Best effort; disabled when no dump directory is configured.
func (s *Service) dumpChunk(audio []byte, mimeType string) {
	if s.dumpDir == "" {
		return
	}
	if err := os.MkdirAll(s.dumpDir, 0o755); err != nil {
		log.Printf("ingest: create dump dir: %v", err)
		return
	}

	name := fmt.Sprintf("chunk-%s%s", s.now().UTC().Format("20060102T150405.000"), extensionFor(mimeType))
	path := filepath.Join(s.dumpDir, name)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		log.Printf("ingest: dump failed chunk: %v", err)
		return
	}
	log.Printf("ingest: failed chunk dumped to %s", path)
}

func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mimeType, "audio/wav"):
		return ".wav"
	case strings.HasPrefix(mimeType, "audio/webm"):
		return ".webm"
	default:
		return ".bin"
	}
}
