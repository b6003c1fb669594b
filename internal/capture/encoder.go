package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultChunkInterval is the boundary cadence: the window after which the
// accumulated audio is closed off into a chunk and a new one begins.
const DefaultChunkInterval = 5 * time.Second

// ErrEncoderRestart reports that re-engaging the encoder after a chunk
// boundary failed. Fatal to the session: continuing would silently drop
// audio.
var ErrEncoderRestart = errors.New("encoder restart failed")

// AudioChunk is a bounded slice of encoded audio. Chunks are emitted with
// strictly increasing Seq; a window that captured zero bytes is discarded
// and never emitted.
type AudioChunk struct {
	Seq      int
	MIMEType string
	Data     []byte
	IsFinal  bool
}

// Encoder accumulates live PCM and emits encoded chunks at a fixed
// cadence. It implements io.Writer so it can sit on the device stream
// fan-out next to the level meter. Chunk delivery happens on the boundary
// timer's goroutine; the PCM buffer keeps accumulating the next window
// while the caller uploads the previous one.
type Encoder struct {
	codec    Codec
	writer   ChunkWriter
	interval time.Duration
	onChunk  func(AudioChunk)
	onError  func(error)

	mu      sync.Mutex
	timer   *time.Timer
	seq     int
	paused  bool
	stopped bool
}

func NewEncoder(codec Codec, writer ChunkWriter, interval time.Duration, onChunk func(AudioChunk), onError func(error)) *Encoder {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	return &Encoder{
		codec:    codec,
		writer:   writer,
		interval: interval,
		onChunk:  onChunk,
		onError:  onError,
	}
}

// Start arms the boundary timer.
func (e *Encoder) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.armLocked()
}

func (e *Encoder) armLocked() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.interval, e.boundary)
}

// Write accumulates PCM16-LE audio into the current window. Writes while
// paused or stopped are dropped without error so the device stream never
// tears down on a state change.
func (e *Encoder) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused || e.stopped {
		return len(p), nil
	}
	if err := e.writer.WritePCM(p); err != nil {
		return len(p), err
	}
	return len(p), nil
}

// Pause suspends the boundary timer without flushing. The partial window
// is held byte-for-byte until Resume or a final flush.
func (e *Encoder) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused || e.stopped {
		return
	}
	e.paused = true
	if e.timer != nil {
		e.timer.Stop()
	}
}

// Resume re-engages accumulation and re-arms the boundary timer.
func (e *Encoder) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused || e.stopped {
		return
	}
	e.paused = false
	e.armLocked()
}

// Buffered is the number of raw PCM bytes in the current partial window.
func (e *Encoder) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writer.Buffered()
}

// boundary fires on the timer: cut the current window, hand the chunk to
// the consumer, and keep encoding the next window without waiting.
func (e *Encoder) boundary() {
	e.mu.Lock()
	if e.paused || e.stopped {
		e.mu.Unlock()
		return
	}
	chunk, err := e.cutLocked(false)
	e.armLocked()
	e.mu.Unlock()

	if err != nil {
		if e.onError != nil {
			e.onError(err)
		}
		return
	}
	if chunk != nil {
		e.onChunk(*chunk)
	}
}

// cutLocked encodes the accumulated window into a chunk. Empty windows
// yield no chunk. An encode failure means the encoder cannot restart
// cleanly for the next window.
func (e *Encoder) cutLocked(final bool) (*AudioChunk, error) {
	if e.writer.Buffered() == 0 {
		return nil, nil
	}

	data, err := e.writer.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoderRestart, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	chunk := &AudioChunk{
		Seq:      e.seq,
		MIMEType: e.codec.MIMEType(),
		Data:     data,
		IsFinal:  final,
	}
	e.seq++
	return chunk, nil
}

// FlushFinal cuts whatever is buffered as the session's final chunk and
// stops the boundary timer. Returns the chunk, or nil if the tail window
// was empty.
func (e *Encoder) FlushFinal() (*AudioChunk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil, nil
	}
	e.stopped = true
	if e.timer != nil {
		e.timer.Stop()
	}
	return e.cutLocked(true)
}

// Stop halts the encoder without flushing. Used on fatal teardown.
func (e *Encoder) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	if e.timer != nil {
		e.timer.Stop()
	}
}

// NextSeq reports the sequence index the next emitted chunk will carry.
func (e *Encoder) NextSeq() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}
