package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// ErrDeviceUnavailable reports that the capture device could not be
// acquired or died mid-session. Fatal to the current recording attempt;
// the user must retry.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// Device is an exclusive handle on a live audio source. Stream blocks,
// writing PCM16-LE mono frames to w until the device is stopped or fails.
// Mute suspends delivery without releasing the device, so a paused session
// can resume on the same handle.
type Device interface {
	Start() error
	Stream(w io.Writer) error
	Mute()
	Unmute()
	Stop() error
}

// Mic captures from the default system microphone via PortAudio.
type Mic struct {
	stream *portaudio.Stream
	buf    []int16

	mu    sync.RWMutex
	muted bool
}

// OpenMic acquires the default capture device at the given sample rate.
// Failure to initialize or open is reported as ErrDeviceUnavailable.
func OpenMic(sampleRate, framesPerBuffer int) (*Mic, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initialize: %v", ErrDeviceUnavailable, err)
	}

	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: open stream: %v", ErrDeviceUnavailable, err)
	}

	return &Mic{stream: stream, buf: buf}, nil
}

func (m *Mic) Start() error {
	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("%w: start stream: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

// Stream reads from the mic and writes PCM16-LE to w until an error or
// stop. While muted the device is still serviced so the OS buffer does not
// overflow, but nothing is delivered downstream.
func (m *Mic) Stream(w io.Writer) error {
	var out bytes.Buffer
	out.Grow(len(m.buf) * 2)
	for {
		if err := m.stream.Read(); err != nil {
			return err
		}

		m.mu.RLock()
		muted := m.muted
		m.mu.RUnlock()
		if muted {
			continue
		}

		out.Reset()
		if err := binary.Write(&out, binary.LittleEndian, m.buf); err != nil {
			return err
		}
		if _, err := w.Write(out.Bytes()); err != nil {
			return err
		}
	}
}

func (m *Mic) Mute() {
	m.mu.Lock()
	m.muted = true
	m.mu.Unlock()
}

func (m *Mic) Unmute() {
	m.mu.Lock()
	m.muted = false
	m.mu.Unlock()
}

func (m *Mic) Stop() error {
	err := m.stream.Stop()
	_ = m.stream.Close()
	_ = portaudio.Terminate()
	return err
}

// ReaderDevice adapts any PCM16-LE byte stream (a pipe, a file, a test
// buffer) to the Device interface. Delivery is paced only by the source.
type ReaderDevice struct {
	r         io.Reader
	frameSize int

	mu      sync.RWMutex
	muted   bool
	stopped bool
}

func NewReaderDevice(r io.Reader, frameSize int) *ReaderDevice {
	if frameSize <= 0 {
		frameSize = 1024
	}
	return &ReaderDevice{r: r, frameSize: frameSize}
}

func (d *ReaderDevice) Start() error { return nil }

func (d *ReaderDevice) Stream(w io.Writer) error {
	frame := make([]byte, d.frameSize)
	for {
		d.mu.RLock()
		stopped, muted := d.stopped, d.muted
		d.mu.RUnlock()
		if stopped {
			return nil
		}

		n, err := d.r.Read(frame)
		if n > 0 && !muted {
			if _, werr := w.Write(frame[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (d *ReaderDevice) Mute() {
	d.mu.Lock()
	d.muted = true
	d.mu.Unlock()
}

func (d *ReaderDevice) Unmute() {
	d.mu.Lock()
	d.muted = false
	d.mu.Unlock()
}

func (d *ReaderDevice) Stop() error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return nil
}
