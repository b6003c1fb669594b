package capture

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type chunkCollector struct {
	mu     sync.Mutex
	chunks []AudioChunk
	errs   []error
}

func (c *chunkCollector) onChunk(chunk AudioChunk) {
	c.mu.Lock()
	c.chunks = append(c.chunks, chunk)
	c.mu.Unlock()
}

func (c *chunkCollector) onError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func newWAVEncoder(t *testing.T, collector *chunkCollector) *Encoder {
	t.Helper()
	codec := WAV{}
	writer, err := codec.NewWriter(16000, 1)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	// Long interval: boundaries are driven manually in tests.
	return NewEncoder(codec, writer, time.Hour, collector.onChunk, collector.onError)
}

func TestEncoderMonotonicSequence(t *testing.T) {
	collector := &chunkCollector{}
	enc := newWAVEncoder(t, collector)
	enc.Start()

	for i := 0; i < 4; i++ {
		if _, err := enc.Write([]byte{1, 2, 3, 4}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		enc.boundary()
	}

	collector.mu.Lock()
	defer collector.mu.Unlock()
	if len(collector.chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(collector.chunks))
	}
	for i, chunk := range collector.chunks {
		if chunk.Seq != i {
			t.Errorf("chunk %d: expected seq %d, got %d", i, i, chunk.Seq)
		}
		if len(chunk.Data) == 0 {
			t.Errorf("chunk %d: zero-length payload emitted", i)
		}
		if chunk.IsFinal {
			t.Errorf("chunk %d: boundary chunk marked final", i)
		}
		if chunk.MIMEType != "audio/wav" {
			t.Errorf("chunk %d: mime %q", i, chunk.MIMEType)
		}
	}
}

func TestEncoderDiscardsEmptyWindow(t *testing.T) {
	collector := &chunkCollector{}
	enc := newWAVEncoder(t, collector)
	enc.Start()

	// Boundary fires with nothing buffered: no chunk, no seq consumed.
	enc.boundary()
	enc.boundary()

	if _, err := enc.Write([]byte{9, 9}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	enc.boundary()

	collector.mu.Lock()
	defer collector.mu.Unlock()
	if len(collector.chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(collector.chunks))
	}
	if collector.chunks[0].Seq != 0 {
		t.Errorf("empty windows consumed sequence indexes: got seq %d", collector.chunks[0].Seq)
	}
}

func TestEncoderPausePreservesPartialWindow(t *testing.T) {
	collector := &chunkCollector{}
	enc := newWAVEncoder(t, collector)
	enc.Start()

	before := []byte{10, 20, 30, 40, 50, 60}
	if _, err := enc.Write(before); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	enc.Pause()
	buffered := enc.Buffered()
	// Writes during pause are dropped, not appended.
	if _, err := enc.Write([]byte{99, 99}); err != nil {
		t.Fatalf("Write during pause failed: %v", err)
	}
	if got := enc.Buffered(); got != buffered {
		t.Fatalf("pause did not hold the buffer: %d != %d", got, buffered)
	}
	enc.Resume()
	if got := enc.Buffered(); got != len(before) {
		t.Fatalf("resume lost buffered audio: got %d bytes, want %d", got, len(before))
	}

	after := []byte{70, 80}
	if _, err := enc.Write(after); err != nil {
		t.Fatalf("Write after resume failed: %v", err)
	}

	chunk, err := enc.FlushFinal()
	if err != nil {
		t.Fatalf("FlushFinal failed: %v", err)
	}
	if chunk == nil {
		t.Fatal("expected final chunk")
	}
	if !chunk.IsFinal {
		t.Error("final chunk not marked final")
	}

	// WAV payload = 44-byte header + raw PCM: check byte-for-byte.
	want := append(append([]byte(nil), before...), after...)
	if got := chunk.Data[44:]; !bytes.Equal(got, want) {
		t.Errorf("pcm across pause/resume mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestEncoderFlushFinalEmptyWindow(t *testing.T) {
	collector := &chunkCollector{}
	enc := newWAVEncoder(t, collector)
	enc.Start()

	chunk, err := enc.FlushFinal()
	if err != nil {
		t.Fatalf("FlushFinal failed: %v", err)
	}
	if chunk != nil {
		t.Fatalf("expected no chunk for empty tail window, got seq %d", chunk.Seq)
	}
}

func TestEncoderWritesAfterStopDropped(t *testing.T) {
	collector := &chunkCollector{}
	enc := newWAVEncoder(t, collector)
	enc.Start()
	enc.Stop()

	if _, err := enc.Write([]byte{1, 2}); err != nil {
		t.Fatalf("Write after stop errored: %v", err)
	}
	if got := enc.Buffered(); got != 0 {
		t.Errorf("write after stop buffered %d bytes", got)
	}
}

type failingWriter struct {
	pcm int
}

func (f *failingWriter) WritePCM(p []byte) error { f.pcm += len(p); return nil }
func (f *failingWriter) Buffered() int           { return f.pcm }
func (f *failingWriter) Encode() ([]byte, error) { return nil, fmt.Errorf("codec backend gone") }

func TestEncoderBoundaryFailureSurfacesRestartError(t *testing.T) {
	collector := &chunkCollector{}
	enc := NewEncoder(WAV{}, &failingWriter{}, time.Hour, collector.onChunk, collector.onError)
	enc.Start()

	if _, err := enc.Write([]byte{1, 2}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	enc.boundary()

	collector.mu.Lock()
	defer collector.mu.Unlock()
	if len(collector.errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(collector.errs))
	}
	if !errors.Is(collector.errs[0], ErrEncoderRestart) {
		t.Errorf("expected ErrEncoderRestart, got %v", collector.errs[0])
	}
	if len(collector.chunks) != 0 {
		t.Errorf("chunk emitted despite encode failure")
	}
}

func TestEncoderTimerBoundary(t *testing.T) {
	collector := &chunkCollector{}
	codec := WAV{}
	writer, err := codec.NewWriter(16000, 1)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	enc := NewEncoder(codec, writer, 20*time.Millisecond, collector.onChunk, collector.onError)
	enc.Start()

	if _, err := enc.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		collector.mu.Lock()
		n := len(collector.chunks)
		collector.mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timer boundary never emitted a chunk")
		}
		time.Sleep(5 * time.Millisecond)
	}
	enc.Stop()
}
