package interview

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariellien/intervu-backend/internal/core/pipeline"
	"github.com/ariellien/intervu-backend/pkg/types"
)

const (
	StatePending    = "candidate_turn_pending"
	StateGenerating = "generating_reply"
	StateSpeaking   = "speaking_reply"
	StateEnded      = "ended"
)

var (
	ErrBusy  = errors.New("interview: a reply is already being generated")
	ErrEnded = errors.New("interview: session has ended")
)

// contextWindow caps how many turns are re-serialized into the provider
// context each cycle, so long sessions don't grow the request unboundedly.
const contextWindow = 40

const defaultOpening = "Hello! I'm your AI interviewer today. We'll be focusing on React fundamentals and hooks. " +
	"Can you explain the difference between useState and useRef?"

// Pipeline produces the interviewer's reply and the per-answer feedback
// batch. Both are total: fallbacks inside the pipeline mean they always
// deliver something usable.
type Pipeline interface {
	GenerateReply(ctx context.Context, answer, question, transcript string) string
	GenerateFeedback(ctx context.Context, answer, question string) pipeline.Batch
}

// Capture is the microphone-to-text subsystem as the orchestrator sees it.
type Capture interface {
	EnableVoice(ctx context.Context) error
	Cancel()
	Release()
}

// Synth is the text-to-audio subsystem as the orchestrator sees it.
type Synth interface {
	Speak(ctx context.Context, text string)
	Cancel()
}

// History consumes a finished session.
type History interface {
	Save(rec types.SessionRecord) error
}

// Events push observable session changes to the presentation layer.
// Nil funcs are skipped.
type Events struct {
	Turn     func(types.Turn)
	Feedback func([]types.FeedbackItem)
	Tick     func(remaining int)
	State    func(string)
	Mode     func(string)
	Notice   func(string)
	Ended    func(types.SessionRecord)
}

type Config struct {
	ID       string
	Title    string
	Topics   []string
	Duration time.Duration
	Opening  string
}

// Session is the turn-based orchestration core for one live practice
// interview. All collaborators are constructor-injected so tests can run
// the whole machine against deterministic fakes.
type Session struct {
	cfg     Config
	pipe    Pipeline
	capture Capture
	synth   Synth
	history History
	events  Events
	timer   *Timer

	mu        sync.Mutex
	state     string
	mode      string
	turns     []types.Turn
	question  string
	feedback  []types.FeedbackItem
	lastBatch pipeline.Batch
	startedAt time.Time
	record    types.SessionRecord

	// feedbackWG lets End and tests wait out a feedback call in flight.
	feedbackWG sync.WaitGroup

	// feedbackCycle numbers the answer cycles; a batch from a superseded
	// cycle is discarded so the held feedback always describes the latest
	// answer.
	feedbackCycle uint64
}

func New(cfg Config, pipe Pipeline, capt Capture, syn Synth, hist History, events Events) *Session {
	if cfg.ID == "" {
		cfg.ID = "sess_" + uuid.NewString()
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Minute
	}
	if cfg.Opening == "" {
		cfg.Opening = defaultOpening
	}
	s := &Session{
		cfg:     cfg,
		pipe:    pipe,
		capture: capt,
		synth:   syn,
		history: hist,
		events:  events,
		state:   StatePending,
		mode:    types.ModeText,
	}
	s.timer = NewTimer(int(cfg.Duration.Seconds()), s.onTick, s.onExpire)
	return s
}

func (s *Session) ID() string { return s.cfg.ID }

// Start appends the opening interviewer turn and begins the countdown.
func (s *Session) Start() {
	s.mu.Lock()
	s.startedAt = time.Now()
	opening := s.appendTurnLocked(types.RoleInterviewer, s.cfg.Opening)
	if q, ok := ExtractQuestion(s.cfg.Opening); ok {
		s.question = q
	}
	s.mu.Unlock()
	s.emitTurn(opening)
	s.timer.Start()
}

// SubmitAnswer appends a candidate turn and drives one full cycle: reply and
// feedback are requested concurrently, the reply blocks the caller, feedback
// replaces the previous batch whenever it lands. Whitespace-only input is a
// silent no-op; a cycle already in flight is refused.
func (s *Session) SubmitAnswer(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	switch s.state {
	case StateEnded:
		s.mu.Unlock()
		return ErrEnded
	case StateGenerating:
		s.mu.Unlock()
		return ErrBusy
	}
	answer := s.appendTurnLocked(types.RoleCandidate, text)
	question := s.question
	transcript := s.transcriptLocked()
	s.state = StateGenerating
	s.feedbackCycle++
	cycle := s.feedbackCycle
	s.mu.Unlock()

	s.emitTurn(answer)
	s.emitState(StateGenerating)

	// Feedback rides alongside the reply and must not block it, or be
	// blocked by it. It may outlive the caller's request context.
	fbCtx := context.WithoutCancel(ctx)
	s.feedbackWG.Add(1)
	go func() {
		defer s.feedbackWG.Done()
		s.applyFeedback(cycle, s.pipe.GenerateFeedback(fbCtx, text, question))
	}()

	reply := s.pipe.GenerateReply(ctx, text, question, transcript)

	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return nil
	}
	turn := s.appendTurnLocked(types.RoleInterviewer, reply)
	extracted, found := ExtractQuestion(reply)
	if found {
		s.question = extracted
	}
	s.state = StatePending
	voice := s.mode == types.ModeVoice
	s.mu.Unlock()

	s.emitTurn(turn)
	s.emitState(StatePending)

	if voice {
		speech := reply
		if found {
			speech = extracted
		}
		s.synth.Speak(context.WithoutCancel(ctx), speech)
	}
	return nil
}

func (s *Session) applyFeedback(cycle uint64, batch pipeline.Batch) {
	s.mu.Lock()
	if s.state == StateEnded || cycle != s.feedbackCycle {
		s.mu.Unlock()
		return
	}
	s.feedback = batch.Items
	s.lastBatch = batch
	items := make([]types.FeedbackItem, len(batch.Items))
	copy(items, batch.Items)
	s.mu.Unlock()
	if s.events.Feedback != nil {
		s.events.Feedback(items)
	}
}

// SetMode switches between typed and spoken input. Switching is always
// legal and idempotent; voice needs the microphone grant, and leaving voice
// cancels whatever audio work is in flight.
func (s *Session) SetMode(ctx context.Context, mode string) error {
	if mode != types.ModeText && mode != types.ModeVoice {
		return errors.New("interview: unknown input mode " + mode)
	}

	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return ErrEnded
	}
	if s.mode == mode {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if mode == types.ModeVoice {
		if err := s.capture.EnableVoice(ctx); err != nil {
			return err
		}
	} else {
		s.capture.Cancel()
		s.capture.Release()
		s.synth.Cancel()
	}

	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	if s.events.Mode != nil {
		s.events.Mode(mode)
	}
	return nil
}

// OnStreamLost is wired to the capture subsystem: losing the microphone
// outside our control falls back to text mode instead of crashing the
// session.
func (s *Session) OnStreamLost() {
	s.mu.Lock()
	if s.state == StateEnded || s.mode == types.ModeText {
		s.mu.Unlock()
		return
	}
	s.mode = types.ModeText
	s.mu.Unlock()
	s.synth.Cancel()
	if s.events.Mode != nil {
		s.events.Mode(types.ModeText)
	}
}

// OnSpeaking is wired to the synthesizer and toggles the spoken-reply
// marker on the latest interviewer turn.
func (s *Session) OnSpeaking(on bool) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	var updated *types.Turn
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == types.RoleInterviewer {
			s.turns[i].Speaking = on
			t := s.turns[i]
			updated = &t
			break
		}
	}
	if on && s.state == StatePending {
		s.state = StateSpeaking
	} else if !on && s.state == StateSpeaking {
		s.state = StatePending
	}
	state := s.state
	s.mu.Unlock()

	if updated != nil {
		s.emitTurn(*updated)
	}
	s.emitState(state)
}

// End is the single idempotent teardown for every exit path: explicit end,
// timer expiry and server shutdown all land here. It cancels synthesis,
// releases the microphone, stops the timer and hands the finished record to
// the history collaborator.
func (s *Session) End() (types.SessionRecord, error) {
	s.mu.Lock()
	if s.state == StateEnded {
		rec := s.record
		s.mu.Unlock()
		return rec, nil
	}
	s.state = StateEnded
	rec := s.buildRecordLocked()
	s.record = rec
	s.mu.Unlock()

	s.synth.Cancel()
	s.capture.Cancel()
	s.capture.Release()
	s.timer.Stop()

	if s.history != nil {
		if err := s.history.Save(rec); err != nil {
			log.Printf("interview: saving session %s: %v", s.cfg.ID, err)
		}
	}
	s.emitState(StateEnded)
	if s.events.Ended != nil {
		s.events.Ended(rec)
	}
	return rec, nil
}

func (s *Session) onTick(remaining int) {
	if s.events.Tick != nil {
		s.events.Tick(remaining)
	}
}

func (s *Session) onExpire() {
	_, _ = s.End()
}

// Snapshot copies the observable session state for the presentation layer.
func (s *Session) Snapshot() types.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]types.Turn, len(s.turns))
	copy(turns, s.turns)
	feedback := make([]types.FeedbackItem, len(s.feedback))
	copy(feedback, s.feedback)
	return types.SessionSnapshot{
		ID:           s.cfg.ID,
		Title:        s.cfg.Title,
		State:        s.state,
		Mode:         s.mode,
		Question:     s.question,
		RemainingSec: s.timer.Remaining(),
		Turns:        turns,
		Feedback:     feedback,
	}
}

func (s *Session) appendTurnLocked(role, content string) types.Turn {
	t := types.Turn{
		ID:      "turn_" + uuid.NewString(),
		Role:    role,
		Content: content,
	}
	s.turns = append(s.turns, t)
	return t
}

// transcriptLocked serializes recent turns as alternating labeled lines,
// the provider-context format.
func (s *Session) transcriptLocked() string {
	turns := s.turns
	if len(turns) > contextWindow {
		turns = turns[len(turns)-contextWindow:]
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		if t.Role == types.RoleInterviewer {
			b.WriteString("Interviewer: ")
		} else {
			b.WriteString("Candidate: ")
		}
		b.WriteString(t.Content)
	}
	return b.String()
}

func (s *Session) buildRecordLocked() types.SessionRecord {
	elapsed := int(s.cfg.Duration.Seconds()) - s.timer.Remaining()
	if elapsed < 0 {
		elapsed = 0
	}
	questionCount := 0
	for _, t := range s.turns {
		if t.Role == types.RoleInterviewer {
			questionCount++
		}
	}

	tech := int(math.Round(s.lastBatch.TechnicalScore * 10))
	comm := int(math.Round(s.lastBatch.CommunicationScore * 10))
	var strengths, improvements []string
	for _, item := range s.lastBatch.Items {
		switch {
		case item.Type == types.FeedbackPositive:
			strengths = append(strengths, item.Content)
		case item.Type == types.FeedbackNegative,
			item.Type == types.FeedbackSuggestion && item.Title == "Communication Improvement":
			improvements = append(improvements, item.Content)
		}
	}

	return types.SessionRecord{
		ID:               s.cfg.ID,
		Title:            s.cfg.Title,
		Date:             time.Now().UTC().Truncate(time.Second),
		Duration:         elapsed,
		Topics:           s.cfg.Topics,
		QuestionCount:    questionCount,
		PerformanceScore: (tech + comm) / 2,
		Feedback: types.SessionFeedback{
			Strengths:          strengths,
			Improvements:       improvements,
			TechnicalScore:     tech,
			CommunicationScore: comm,
			OverallImpression:  s.lastBatch.Overall,
		},
	}
}

func (s *Session) emitTurn(t types.Turn) {
	if s.events.Turn != nil {
		s.events.Turn(t)
	}
}

func (s *Session) emitState(state string) {
	if s.events.State != nil {
		s.events.State(state)
	}
}
