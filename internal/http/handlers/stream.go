package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ariellien/intervu-backend/internal/core/capture"
	"github.com/ariellien/intervu-backend/internal/core/interview"
	"github.com/ariellien/intervu-backend/pkg/ws"
)

// Bridge adapts one browser client, reached over the session websocket, to
// the device-facing interfaces of the capture and synthesis subsystems: it
// is the microphone grant, the audio sink and the ambient recognizer.
type Bridge struct {
	id  string
	hub *ws.Hub

	mu      sync.Mutex
	micDone chan struct{}
	recCh   chan capture.Result

	Capture *capture.Capture
	Session *interview.Session
	Ambient *capture.Ambient
}

type wsStream struct {
	stop func()
	done chan struct{}
}

func (s *wsStream) Stop()                 { s.stop() }
func (s *wsStream) Done() <-chan struct{} { return s.done }

// Acquire implements capture.Microphone. The browser enforces the actual
// permission prompt; without a connected client there is nothing to grant.
func (b *Bridge) Acquire(ctx context.Context) (capture.Stream, error) {
	if _, ok := b.hub.Get(b.id); !ok {
		return nil, errors.New("no client connected")
	}
	b.mu.Lock()
	done := make(chan struct{})
	b.micDone = done
	b.mu.Unlock()
	return &wsStream{
		done: done,
		stop: func() { b.closeMic(done) },
	}, nil
}

func (b *Bridge) closeMic(done chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.micDone == done {
		b.micDone = nil
	}
	select {
	case <-done:
	default:
		close(done)
	}
}

// LoseMic signals a hardware-side revoke; the capture subsystem reacts by
// falling back to text mode.
func (b *Bridge) LoseMic() {
	b.mu.Lock()
	done := b.micDone
	b.micDone = nil
	b.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		default:
			close(done)
		}
	}
}

// Play implements synth.Player by shipping wav bytes to the client as one
// binary frame. The hub serializes the write against concurrent event
// publishes on the same connection.
func (b *Bridge) Play(ctx context.Context, wav []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.hub.PublishBinary(b.id, wav)
}

// Available and Speak implement synth.Native: the client's built-in speech
// synthesis, driven by a control event.
func (b *Bridge) Available() bool {
	_, ok := b.hub.Get(b.id)
	return ok
}

func (b *Bridge) Speak(ctx context.Context, text string) error {
	if _, ok := b.hub.Get(b.id); !ok {
		return errors.New("no client connected")
	}
	b.hub.Publish(b.id, gin.H{"type": "speak_native", "text": text})
	return nil
}

// Start and Stop implement capture.Recognizer over the same socket: the
// client runs the continuous recognizer and streams interim/final results
// back as control frames.
func (b *Bridge) Start(ctx context.Context) (<-chan capture.Result, error) {
	if _, ok := b.hub.Get(b.id); !ok {
		return nil, capture.ErrUnsupported
	}
	b.mu.Lock()
	ch := make(chan capture.Result, 16)
	b.recCh = ch
	b.mu.Unlock()
	b.hub.Publish(b.id, gin.H{"type": "ambient_start"})
	return ch, nil
}

func (b *Bridge) Stop() {
	b.hub.Publish(b.id, gin.H{"type": "ambient_stop"})
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recCh != nil {
		close(b.recCh)
		b.recCh = nil
	}
}

// pushResult sends under the lock so a concurrent Stop cannot close the
// channel mid-send.
func (b *Bridge) pushResult(r capture.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recCh == nil {
		return
	}
	select {
	case b.recCh <- r:
	default:
	}
}

// Bridges is the per-session bridge registry.
type Bridges struct {
	mu sync.Mutex
	m  map[string]*Bridge
}

func NewBridges() *Bridges {
	return &Bridges{m: map[string]*Bridge{}}
}

func (r *Bridges) Create(id string, hub *ws.Hub) *Bridge {
	b := &Bridge{id: id, hub: hub}
	r.mu.Lock()
	r.m[id] = b
	r.mu.Unlock()
	return b
}

func (r *Bridges) Get(id string) (*Bridge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.m[id]
	return b, ok
}

func (r *Bridges) Remove(id string) {
	r.mu.Lock()
	delete(r.m, id)
	r.mu.Unlock()
}

type StreamHandler struct {
	Hub      *ws.Hub
	Bridges  *Bridges
	Upgrader websocket.Upgrader
}

func NewStreamHandler(hub *ws.Hub, bridges *Bridges) *StreamHandler {
	return &StreamHandler{
		Hub:     hub,
		Bridges: bridges,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type controlFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Mode string `json:"mode"`
}

// WS is the session event stream: JSON control frames and binary audio
// chunks inbound, session events and synthesized audio outbound.
func (h *StreamHandler) WS(c *gin.Context) {
	id := c.Query("sess")
	br, ok := h.Bridges.Get(id)
	if id == "" || !ok {
		c.Status(http.StatusBadRequest)
		return
	}
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.Hub.Add(id, conn)
	defer func() {
		h.Hub.Remove(id)
		br.LoseMic()
		conn.Close()
	}()

	conn.SetReadLimit(8 << 20)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	h.Hub.Publish(id, gin.H{"type": "hello", "ts": time.Now().UnixMilli()})

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		if mt == websocket.BinaryMessage {
			br.Capture.AppendChunk(msg)
			continue
		}
		if mt != websocket.TextMessage {
			continue
		}

		var frame controlFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		h.handleControl(c.Request.Context(), br, frame)
	}
}

func (h *StreamHandler) handleControl(ctx context.Context, br *Bridge, frame controlFrame) {
	switch frame.Type {
	case "record_start":
		if err := br.Capture.StartRecording(); err != nil {
			h.Hub.Publish(br.id, gin.H{"type": "notice", "text": "Press the voice button to enable the microphone first."})
		}
	case "record_stop":
		go br.Capture.StopRecording(context.WithoutCancel(ctx))
	case "answer":
		go h.submit(br, frame.Text)
	case "mode":
		go func() { _ = br.Session.SetMode(context.WithoutCancel(ctx), frame.Mode) }()
	case "ambient_interim":
		br.pushResult(capture.Result{Text: frame.Text})
	case "ambient_final":
		br.pushResult(capture.Result{Text: frame.Text, Final: true})
	case "ambient_on":
		if err := br.Ambient.Start(context.WithoutCancel(ctx)); err != nil {
			h.Hub.Publish(br.id, gin.H{"type": "notice", "text": "Continuous speech recognition is not available."})
		}
	case "ambient_off":
		br.Ambient.Stop()
	case "mic_lost":
		br.LoseMic()
	case "end":
		_, _ = br.Session.End()
	}
}

func (h *StreamHandler) submit(br *Bridge, text string) {
	if err := br.Session.SubmitAnswer(context.Background(), text); err != nil {
		if errors.Is(err, interview.ErrBusy) {
			h.Hub.Publish(br.id, gin.H{"type": "notice", "text": "Hold on, the interviewer is still responding."})
		}
	}
}
