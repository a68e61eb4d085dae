package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

type State string

const (
	StateIdle               State = "idle"
	StateAwaitingPermission State = "awaiting_permission"
	StateRecording          State = "recording"
	StateTranscribing       State = "transcribing"
	StateFailed             State = "failed"
)

var (
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	ErrNoStream         = errors.New("capture: no microphone stream held")
	ErrBusy             = errors.New("capture: recording already in progress")
)

// Microphone acquires a permission-gated audio stream from the device layer.
type Microphone interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is a live microphone stream. Done fires when the stream dies
// outside our control, e.g. a hardware revoke.
type Stream interface {
	Stop()
	Done() <-chan struct{}
}

// Transcriber turns one recorded clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip []byte) (string, error)
}

// Hooks are the capture subsystem's outbound edges. Nil funcs are skipped.
type Hooks struct {
	State      func(State)
	Answer     func(string)
	Notice     func(string)
	StreamLost func()
}

// Capture owns the push-to-talk pipeline: at most one live microphone
// stream, an in-memory chunk buffer while recording, and one transcription
// in flight at a time.
type Capture struct {
	mic   Microphone
	tr    Transcriber
	hooks Hooks

	mu     sync.Mutex
	state  State
	stream Stream
	chunks [][]byte
	gen    uint64
}

func New(mic Microphone, tr Transcriber, hooks Hooks) *Capture {
	return &Capture{mic: mic, tr: tr, hooks: hooks, state: StateIdle}
}

func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Capture) HasStream() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// EnableVoice requests the microphone and holds the granted stream for the
// rest of voice mode. Denial leaves the subsystem idle and streamless.
func (c *Capture) EnableVoice(ctx context.Context) error {
	c.mu.Lock()
	if c.stream != nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateAwaitingPermission
	c.mu.Unlock()
	c.emitState(StateAwaitingPermission)

	stream, err := c.mic.Acquire(ctx)
	if err != nil {
		c.setState(StateIdle)
		c.notice("Microphone access denied. Please allow microphone access to use voice features.")
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	c.mu.Lock()
	c.stream = stream
	c.state = StateIdle
	gen := c.gen
	c.mu.Unlock()
	c.emitState(StateIdle)

	go c.watch(stream, gen)
	return nil
}

// watch treats an externally-ended stream as a fallback to text mode.
func (c *Capture) watch(stream Stream, gen uint64) {
	<-stream.Done()
	c.mu.Lock()
	if c.gen != gen || c.stream != stream {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.stream = nil
	c.chunks = nil
	c.state = StateIdle
	c.mu.Unlock()
	log.Printf("capture: microphone stream lost")
	c.notice("Microphone was disconnected. Switching to text input.")
	if c.hooks.StreamLost != nil {
		c.hooks.StreamLost()
	}
}

// StartRecording begins buffering audio. Requires a held stream.
func (c *Capture) StartRecording() error {
	c.mu.Lock()
	if c.stream == nil {
		c.mu.Unlock()
		return ErrNoStream
	}
	if c.state == StateRecording || c.state == StateTranscribing {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateRecording
	c.chunks = c.chunks[:0]
	c.mu.Unlock()
	c.emitState(StateRecording)
	return nil
}

// AppendChunk buffers one chunk of recorded audio. Chunks arriving outside
// a recording are dropped.
func (c *Capture) AppendChunk(b []byte) {
	if len(b) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return
	}
	chunk := make([]byte, len(b))
	copy(chunk, b)
	c.chunks = append(c.chunks, chunk)
}

// StopRecording flushes the buffered clip through the transcriber and, on
// success, emits the text as a submitted answer. Failures surface a notice
// and leave the transcript untouched.
func (c *Capture) StopRecording(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	clip := bytes.Join(c.chunks, nil)
	c.chunks = nil
	c.state = StateTranscribing
	gen := c.gen
	c.mu.Unlock()
	c.emitState(StateTranscribing)

	text, err := c.tr.Transcribe(ctx, clip)

	c.mu.Lock()
	stale := c.gen != gen
	if !stale {
		if err != nil {
			c.state = StateFailed
		} else {
			c.state = StateIdle
		}
	}
	c.mu.Unlock()
	if stale {
		return
	}

	if err != nil {
		log.Printf("capture: transcription failed: %v", err)
		c.emitState(StateFailed)
		c.notice("Could not transcribe your speech. Please try again or use text input.")
		c.setState(StateIdle)
		return
	}
	c.emitState(StateIdle)
	if text == "" {
		c.notice("Could not transcribe your speech. Please try again or use text input.")
		return
	}
	if c.hooks.Answer != nil {
		c.hooks.Answer(text)
	}
}

// Cancel drops any active recording or pending transcription result without
// emitting an answer. The stream stays held.
func (c *Capture) Cancel() {
	c.mu.Lock()
	c.gen++
	c.chunks = nil
	changed := c.state != StateIdle
	c.state = StateIdle
	c.mu.Unlock()
	if changed {
		c.emitState(StateIdle)
	}
}

// Release is the idempotent teardown: cancel whatever is in flight and stop
// the stream so no live tracks remain.
func (c *Capture) Release() {
	c.mu.Lock()
	c.gen++
	stream := c.stream
	c.stream = nil
	c.chunks = nil
	c.state = StateIdle
	c.mu.Unlock()
	if stream != nil {
		stream.Stop()
	}
}

func (c *Capture) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.emitState(s)
}

func (c *Capture) emitState(s State) {
	if c.hooks.State != nil {
		c.hooks.State(s)
	}
}

func (c *Capture) notice(msg string) {
	if c.hooks.Notice != nil {
		c.hooks.Notice(msg)
	}
}

// MicrophoneFunc adapts a function to the Microphone interface.
type MicrophoneFunc func(ctx context.Context) (Stream, error)

func (f MicrophoneFunc) Acquire(ctx context.Context) (Stream, error) { return f(ctx) }

// TranscriberFunc adapts a function to the Transcriber interface.
type TranscriberFunc func(ctx context.Context, clip []byte) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, clip []byte) (string, error) {
	return f(ctx, clip)
}
