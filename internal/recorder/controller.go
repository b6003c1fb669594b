package recorder

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harshbhati1/syncscribe/internal/capture"
	"github.com/harshbhati1/syncscribe/internal/storage"
	"github.com/harshbhati1/syncscribe/internal/transcript"
)

// State is the recording session lifecycle. Transitions only happen
// through Start, Pause, Resume and Stop (or a fatal capture error, which
// forces Idle).
type State int

const (
	StateIdle State = iota
	StateActive
	StatePaused
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Options tune a controller. Zero values pick sensible defaults.
type Options struct {
	SampleRate    int
	Channels      int
	ChunkInterval time.Duration
	// DrainTimeout bounds how long Stop waits for in-flight chunk
	// uploads before giving up on them.
	DrainTimeout time.Duration
	// AutoSaveInterval enables periodic draft saves while recording.
	// Zero disables autosave.
	AutoSaveInterval time.Duration
	// SaveSuppressTTL is how long after an explicit save autosaves are
	// skipped.
	SaveSuppressTTL time.Duration
	Codecs          []capture.Codec
}

// Callbacks receive session events. All callbacks are optional and are
// invoked outside the controller's lock.
type Callbacks struct {
	// OnSegment fires for each segment as it is folded into the
	// transcript, in transcript order.
	OnSegment func(transcript.Segment)
	// OnState fires on every lifecycle transition.
	OnState func(State)
	// OnFatal fires when the capture pipeline dies mid-session and the
	// controller forces itself back to Idle. The user may Start again.
	OnFatal func(error)
}

// StopResult reports how a session ended.
type StopResult struct {
	Document storage.SessionDocument
	// Drained is false when Stop gave up waiting for in-flight uploads.
	Drained bool
	// UploadFailures counts chunks that got fallback segments.
	UploadFailures int
	// PersistErr is the final save failure, if any. The controller is
	// Idle either way.
	PersistErr error
}

// Controller owns one recording session at a time: it acquires the
// device, fans the PCM stream out to the encoder and level meter, uploads
// chunks as they are cut, folds the resulting segments back into order,
// and persists the finished document on Stop.
type Controller struct {
	uploader   Uploader
	persister  Persister
	opts       Options
	callbacks  Callbacks
	suppressor *saveSuppressor
	now        func() time.Time

	mu             sync.Mutex
	state          State
	// gen counts session lifetimes. Upload goroutines carry the gen they
	// were launched under; results from an ended session are dropped.
	gen            int
	sessionID      string
	title          string
	startedAt      time.Time
	elapsed        int
	device         capture.Device
	encoder        *capture.Encoder
	meter          *capture.LevelMeter
	acc            *transcript.Accumulator
	reorder        *transcript.Reorderer
	inflight       *sync.WaitGroup
	done           chan struct{}
	uploadFailures int
	finalFailed    bool
}

func NewController(uploader Uploader, persister Persister, opts Options, callbacks Callbacks) *Controller {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.ChunkInterval <= 0 {
		opts.ChunkInterval = capture.DefaultChunkInterval
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 30 * time.Second
	}
	if len(opts.Codecs) == 0 {
		opts.Codecs = capture.DefaultCodecs()
	}

	return &Controller{
		uploader:   uploader,
		persister:  persister,
		opts:       opts,
		callbacks:  callbacks,
		suppressor: newSaveSuppressor(opts.SaveSuppressTTL),
		now:        time.Now,
		state:      StateIdle,
		meter:      capture.NewLevelMeter(),
		acc:        transcript.NewAccumulator(),
	}
}

// Start begins a new session on the given device. The title is advisory
// and lands in the persisted document.
func (c *Controller) Start(device capture.Device, title string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}

	codec, writer, err := capture.SelectCodec(c.opts.Codecs, c.opts.SampleRate, c.opts.Channels)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("select codec: %w", err)
	}

	if err := device.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("start capture device: %w", err)
	}

	c.device = device
	c.encoder = capture.NewEncoder(codec, writer, c.opts.ChunkInterval, c.handleChunk, c.handleCaptureError)
	c.meter.Reset()
	c.acc.Reset()
	c.reorder = transcript.NewReorderer()
	c.sessionID = uuid.NewString()
	c.title = title
	c.startedAt = c.now().UTC()
	c.elapsed = 0
	c.uploadFailures = 0
	c.finalFailed = false
	c.inflight = &sync.WaitGroup{}
	c.done = make(chan struct{})
	c.state = StateActive
	done := c.done
	c.mu.Unlock()

	// A fresh session saves on its own schedule; the previous session's
	// post-stop suppression window must not swallow its autosaves.
	c.suppressor.Disarm()

	c.encoder.Start()
	log.Printf("recorder: session %s started (codec=%s, interval=%s)", c.sessionID, codec.Name(), c.opts.ChunkInterval)

	go c.streamLoop(device)
	go c.elapsedLoop(done)
	if c.persister != nil && c.opts.AutoSaveInterval > 0 {
		go c.autosaveLoop(done)
	}

	c.notifyState(StateActive)
	return nil
}

func (c *Controller) streamLoop(device capture.Device) {
	err := device.Stream(io.MultiWriter(c.encoder, c.meter))
	if err == nil {
		return
	}

	c.mu.Lock()
	recording := c.state == StateActive || c.state == StatePaused
	c.mu.Unlock()
	if recording {
		c.forceStop(fmt.Errorf("capture stream failed: %w", err))
	}
}

// elapsedLoop advances the recording clock once per second, but only
// while the session is Active. Paused time never counts.
func (c *Controller) elapsedLoop(done chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.state == StateActive {
				c.elapsed++
			}
			c.mu.Unlock()
		}
	}
}

func (c *Controller) autosaveLoop(done chan struct{}) {
	ticker := time.NewTicker(c.opts.AutoSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if c.suppressor.Active() {
				continue
			}
			c.mu.Lock()
			recording := c.state == StateActive || c.state == StatePaused
			doc := c.snapshotLocked(false)
			c.mu.Unlock()
			if !recording || doc.Transcript == "" {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := c.persister.Save(ctx, doc); err != nil {
				log.Printf("recorder: autosave for session %s failed: %v", doc.ID, err)
			}
			cancel()
		}
	}
}

// handleChunk ships a freshly cut chunk to the server on its own
// goroutine so the encoder keeps cutting the next window. A failed upload
// is converted into a fallback segment in place; the session continues.
func (c *Controller) handleChunk(chunk capture.AudioChunk) {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	elapsed := c.elapsed
	wg := c.inflight
	wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer wg.Done()

		meta := UploadMeta{Timestamp: c.now().UTC(), RecordingTime: elapsed}
		seg, err := c.uploader.Upload(context.Background(), chunk, meta)
		if err != nil {
			log.Printf("recorder: upload of chunk %d failed: %v", chunk.Seq, err)
			seg = transcript.Segment{
				ID:              uuid.NewString(),
				Text:            transcript.ErrorPlaceholder,
				Timestamp:       meta.Timestamp,
				IsFinal:         chunk.IsFinal,
				RecordingTime:   elapsed,
				IsErrorFallback: true,
				ErrorDetail:     err.Error(),
			}
			c.mu.Lock()
			if gen == c.gen {
				c.uploadFailures++
				if chunk.IsFinal {
					c.finalFailed = true
				}
			}
			c.mu.Unlock()
		}

		c.fold(gen, chunk.Seq, seg)
	}()
}

// fold inserts a segment at its chunk's slot; anything released in order
// is appended to the transcript exactly once. A result arriving after its
// session ended — an upload that outlived Stop's drain window — belongs
// to a finalized transcript and is discarded.
func (c *Controller) fold(gen, seq int, seg transcript.Segment) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		log.Printf("recorder: dropping late segment for chunk %d of an ended session", seq)
		return
	}
	released := c.reorder.Add(seq, seg)
	for _, s := range released {
		c.acc.Append(s)
	}
	onSegment := c.callbacks.OnSegment
	c.mu.Unlock()

	if onSegment != nil {
		for _, s := range released {
			onSegment(s)
		}
	}
}

// Pause suspends capture without releasing the device. The partial chunk
// window and the elapsed clock both freeze.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotRecording
	}
	c.state = StatePaused
	device, encoder := c.device, c.encoder
	c.mu.Unlock()

	device.Mute()
	encoder.Pause()
	c.meter.Suspend()
	c.notifyState(StatePaused)
	return nil
}

// Resume continues a paused session on the same device and chunk window.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused {
		c.mu.Unlock()
		return ErrNotRecording
	}
	c.state = StateActive
	device, encoder := c.device, c.encoder
	c.mu.Unlock()

	device.Unmute()
	encoder.Resume()
	c.meter.Resume()
	c.notifyState(StateActive)
	return nil
}

// Stop ends the session: the tail window is flushed as the final chunk,
// in-flight uploads are drained (bounded by DrainTimeout), the document
// is persisted, and the controller returns to Idle. A persist failure
// does not keep the session alive; it is reported in the result.
func (c *Controller) Stop(ctx context.Context) (StopResult, error) {
	c.mu.Lock()
	if c.state != StateActive && c.state != StatePaused {
		c.mu.Unlock()
		return StopResult{}, ErrNotRecording
	}
	c.state = StateStopping
	device, encoder, wg, done := c.device, c.encoder, c.inflight, c.done
	c.mu.Unlock()
	c.notifyState(StateStopping)

	finalChunk, flushErr := encoder.FlushFinal()
	if flushErr != nil {
		log.Printf("recorder: final flush failed, tail window lost: %v", flushErr)
		c.mu.Lock()
		c.finalFailed = true
		c.mu.Unlock()
	} else if finalChunk != nil {
		c.handleChunk(*finalChunk)
	}

	c.meter.Suspend()
	if err := device.Stop(); err != nil {
		log.Printf("recorder: device stop: %v", err)
	}
	close(done)

	drained := waitWithTimeout(ctx, wg, c.opts.DrainTimeout)
	if !drained {
		log.Printf("recorder: gave up waiting for in-flight uploads on session %s", c.sessionID)
	}

	c.mu.Lock()
	for _, s := range c.reorder.Drain() {
		c.acc.Append(s)
	}
	fullyPersisted := drained && !c.finalFailed && c.uploadFailures == 0
	doc := c.snapshotLocked(fullyPersisted)
	result := StopResult{
		Document:       doc,
		Drained:        drained,
		UploadFailures: c.uploadFailures,
	}
	c.mu.Unlock()

	if c.persister != nil {
		if err := c.persister.Save(ctx, doc); err != nil {
			log.Printf("recorder: persist session %s failed: %v", doc.ID, err)
			result.PersistErr = fmt.Errorf("persist session %s: %w", doc.ID, err)
			result.Document.FullyPersisted = false
		} else {
			c.suppressor.Arm()
		}
	}

	c.mu.Lock()
	c.state = StateIdle
	c.gen++
	c.device = nil
	c.encoder = nil
	c.mu.Unlock()
	c.notifyState(StateIdle)

	log.Printf("recorder: session %s stopped (segments=%d, failures=%d, drained=%t)",
		doc.ID, len(doc.Segments), result.UploadFailures, drained)
	return result, nil
}

// forceStop tears the session down after a fatal capture error. Uploads
// already in flight are left to finish on their own; nothing is
// persisted beyond what autosave already wrote.
func (c *Controller) forceStop(cause error) {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateStopping {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	device, encoder, done := c.device, c.encoder, c.done
	c.mu.Unlock()

	encoder.Stop()
	_ = device.Stop()
	c.meter.Suspend()
	close(done)

	c.mu.Lock()
	c.state = StateIdle
	c.gen++
	c.device = nil
	c.encoder = nil
	sessionID := c.sessionID
	c.mu.Unlock()

	log.Printf("recorder: session %s aborted: %v", sessionID, cause)
	c.notifyState(StateIdle)
	if c.callbacks.OnFatal != nil {
		c.callbacks.OnFatal(cause)
	}
}

func (c *Controller) handleCaptureError(err error) {
	c.forceStop(err)
}

// snapshotLocked builds the session document from current transcript
// state. Caller holds c.mu.
func (c *Controller) snapshotLocked(fullyPersisted bool) storage.SessionDocument {
	title := c.title
	if title == "" {
		title = "Recording " + c.startedAt.Format("2006-01-02 15:04")
	}
	return storage.SessionDocument{
		ID:             c.sessionID,
		Title:          title,
		Transcript:     c.acc.FullText(),
		Segments:       c.acc.Segments(),
		FullyPersisted: fullyPersisted,
		CreatedAt:      c.startedAt,
		UpdatedAt:      c.now().UTC(),
	}
}

func (c *Controller) notifyState(s State) {
	if c.callbacks.OnState != nil {
		c.callbacks.OnState(s)
	}
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID is the id of the in-progress (or most recent) session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Elapsed is the recorded time in whole seconds, excluding paused time.
func (c *Controller) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Transcript is the full text accumulated so far.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acc.FullText()
}

// Levels returns the current visualization window.
func (c *Controller) Levels() []float64 {
	return c.meter.Sample()
}

func waitWithTimeout(ctx context.Context, wg *sync.WaitGroup, timeout time.Duration) bool {
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-finished:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
