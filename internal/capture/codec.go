package capture

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	pcmChannels = 1
	pcmBitDepth = 16
)

// Codec turns accumulated raw PCM into one self-contained encoded blob per
// chunk boundary.
type Codec interface {
	Name() string
	MIMEType() string
	// NewWriter probes runtime support and returns a chunk writer, or an
	// error if this codec cannot encode at the given rate on this build.
	NewWriter(sampleRate, channels int) (ChunkWriter, error)
}

// ChunkWriter accumulates PCM16-LE audio for the current boundary window.
type ChunkWriter interface {
	WritePCM(p []byte) error
	// Encode finalizes the current window into a container blob and resets
	// the writer for the next chunk.
	Encode() ([]byte, error)
	// Buffered is the number of raw PCM bytes awaiting encoding.
	Buffered() int
}

// DefaultCodecs is the preference-ordered codec list: Opus in an Ogg
// container when the runtime supports it, WAV as the generic fallback.
func DefaultCodecs() []Codec {
	return []Codec{OggOpus{}, WAV{}}
}

// SelectCodec walks the preference list and returns the first codec that
// probes successfully at the given rate.
func SelectCodec(codecs []Codec, sampleRate, channels int) (Codec, ChunkWriter, error) {
	var lastErr error
	for _, c := range codecs {
		w, err := c.NewWriter(sampleRate, channels)
		if err != nil {
			lastErr = err
			continue
		}
		return c, w, nil
	}
	return nil, nil, fmt.Errorf("no supported audio codec: %w", lastErr)
}

// WAV wraps PCM in a RIFF/WAVE container. Always supported.
type WAV struct{}

func (WAV) Name() string     { return "wav" }
func (WAV) MIMEType() string { return "audio/wav" }

func (WAV) NewWriter(sampleRate, channels int) (ChunkWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		channels = pcmChannels
	}
	return &wavWriter{sampleRate: sampleRate, channels: channels}, nil
}

type wavWriter struct {
	sampleRate int
	channels   int
	pcm        []byte
}

func (w *wavWriter) WritePCM(p []byte) error {
	w.pcm = append(w.pcm, p...)
	return nil
}

func (w *wavWriter) Buffered() int { return len(w.pcm) }

func (w *wavWriter) Encode() ([]byte, error) {
	if len(w.pcm) == 0 {
		return nil, nil
	}
	out := renderWAV(w.pcm, w.sampleRate, w.channels)
	w.pcm = nil
	return out, nil
}

func renderWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * pcmBitDepth / 8
	blockAlign := channels * pcmBitDepth / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM format tag
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(pcmBitDepth))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
