package capture

import (
	"bytes"
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	opus "gopkg.in/hraban/opus.v2"
)

const (
	opusFrameMillis = 20
	// Opus RTP streams always run on a 48 kHz clock regardless of the
	// encoder's input rate.
	opusClockRate       = 48000
	opusSamplesPerFrame = opusClockRate * opusFrameMillis / 1000
	opusMaxPacket       = 4000
)

// OggOpus encodes PCM into Opus frames muxed into a standalone Ogg stream
// per chunk. Preferred over WAV when libopus is available and the sample
// rate is one Opus accepts.
type OggOpus struct{}

func (OggOpus) Name() string     { return "ogg/opus" }
func (OggOpus) MIMEType() string { return "audio/ogg" }

func (OggOpus) NewWriter(sampleRate, channels int) (ChunkWriter, error) {
	if channels <= 0 {
		channels = pcmChannels
	}
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("ogg/opus: unsupported sample rate %d", sampleRate)
	}

	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("ogg/opus: create encoder: %w", err)
	}

	return &oggOpusWriter{
		enc:        enc,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

type oggOpusWriter struct {
	enc        *opus.Encoder
	sampleRate int
	channels   int
	pcm        []byte
}

func (w *oggOpusWriter) WritePCM(p []byte) error {
	w.pcm = append(w.pcm, p...)
	return nil
}

func (w *oggOpusWriter) Buffered() int { return len(w.pcm) }

// Encode packs the buffered PCM into 20ms Opus frames, padding the tail
// frame with silence, and muxes them into one Ogg stream.
func (w *oggOpusWriter) Encode() ([]byte, error) {
	if len(w.pcm) == 0 {
		return nil, nil
	}

	frameSamples := w.sampleRate * opusFrameMillis / 1000 * w.channels
	samples := pcmToInt16(w.pcm)
	w.pcm = nil
	if rem := len(samples) % frameSamples; rem != 0 {
		samples = append(samples, make([]int16, frameSamples-rem)...)
	}

	var buf bytes.Buffer
	ogg, err := oggwriter.NewWith(&buf, opusClockRate, uint16(w.channels))
	if err != nil {
		return nil, fmt.Errorf("ogg/opus: open muxer: %w", err)
	}

	packet := make([]byte, opusMaxPacket)
	var seq uint16
	var ts uint32
	for off := 0; off < len(samples); off += frameSamples {
		n, err := w.enc.Encode(samples[off:off+frameSamples], packet)
		if err != nil {
			_ = ogg.Close()
			return nil, fmt.Errorf("ogg/opus: encode frame: %w", err)
		}

		err = ogg.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: seq, Timestamp: ts},
			Payload: append([]byte(nil), packet[:n]...),
		})
		if err != nil {
			_ = ogg.Close()
			return nil, fmt.Errorf("ogg/opus: mux frame: %w", err)
		}
		seq++
		ts += opusSamplesPerFrame
	}

	if err := ogg.Close(); err != nil {
		return nil, fmt.Errorf("ogg/opus: finalize stream: %w", err)
	}
	return buf.Bytes(), nil
}

func pcmToInt16(p []byte) []int16 {
	out := make([]int16, len(p)/2)
	for i := range out {
		out[i] = int16(uint16(p[2*i]) | uint16(p[2*i+1])<<8)
	}
	return out
}
