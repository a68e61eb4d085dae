package interview

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariellien/intervu-backend/internal/core/capture"
	"github.com/ariellien/intervu-backend/internal/core/pipeline"
	"github.com/ariellien/intervu-backend/pkg/types"
)

type fakePipeline struct {
	mu          sync.Mutex
	reply       string
	batch       pipeline.Batch
	gate        chan struct{}
	feedbackFn  func(answer string) pipeline.Batch
	transcripts []string
	questions   []string
}

func (p *fakePipeline) GenerateReply(ctx context.Context, answer, question, transcript string) string {
	p.mu.Lock()
	p.transcripts = append(p.transcripts, transcript)
	p.questions = append(p.questions, question)
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return p.reply
}

func (p *fakePipeline) GenerateFeedback(ctx context.Context, answer, question string) pipeline.Batch {
	if p.feedbackFn != nil {
		return p.feedbackFn(answer)
	}
	return p.batch
}

type fakeCapture struct {
	mu        sync.Mutex
	enableErr error
	enables   int
	cancels   int
	releases  int
}

func (c *fakeCapture) EnableVoice(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enables++
	return c.enableErr
}

func (c *fakeCapture) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
}

func (c *fakeCapture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
}

type fakeSynth struct {
	mu      sync.Mutex
	spoken  []string
	cancels int
}

func (s *fakeSynth) Speak(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
}

func (s *fakeSynth) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func (s *fakeSynth) allSpoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type fakeHistory struct {
	mu   sync.Mutex
	recs []types.SessionRecord
}

func (h *fakeHistory) Save(rec types.SessionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, rec)
	return nil
}

func newTestSession(pipe *fakePipeline, capt *fakeCapture, syn *fakeSynth, hist *fakeHistory) *Session {
	return New(Config{
		ID:       "sess_test",
		Title:    "React Frontend Interview",
		Topics:   []string{"React", "Hooks"},
		Duration: 30 * time.Minute,
	}, pipe, capt, syn, hist, Events{})
}

func TestSubmitAnswerWhitespaceIsNoOp(t *testing.T) {
	pipe := &fakePipeline{reply: "next?"}
	sess := newTestSession(pipe, &fakeCapture{}, &fakeSynth{}, &fakeHistory{})

	for _, input := range []string{"", "   ", "\n\t  \n"} {
		require.NoError(t, sess.SubmitAnswer(context.Background(), input))
	}

	snap := sess.Snapshot()
	assert.Empty(t, snap.Turns)
	assert.Equal(t, StatePending, snap.State)
	assert.Empty(t, pipe.transcripts)
}

func TestSubmitAnswerFullCycle(t *testing.T) {
	pipe := &fakePipeline{
		reply: "Can you explain useState vs useRef?",
		batch: pipeline.Batch{
			Items:              []types.FeedbackItem{{Type: types.FeedbackPositive, Title: "Technical Strength", Content: "clear"}},
			TechnicalScore:     8,
			CommunicationScore: 7,
			Overall:            "Solid.",
		},
	}
	sess := newTestSession(pipe, &fakeCapture{}, &fakeSynth{}, &fakeHistory{})

	require.NoError(t, sess.SubmitAnswer(context.Background(), "Closures capture their scope."))
	sess.feedbackWG.Wait()

	snap := sess.Snapshot()
	require.Len(t, snap.Turns, 2)
	assert.Equal(t, types.RoleCandidate, snap.Turns[0].Role)
	assert.Equal(t, "Closures capture their scope.", snap.Turns[0].Content)
	assert.Equal(t, types.RoleInterviewer, snap.Turns[1].Role)
	assert.Equal(t, "Can you explain useState vs useRef?", snap.Turns[1].Content)
	assert.Equal(t, "Can you explain useState vs useRef?", snap.Question)
	assert.Equal(t, StatePending, snap.State)
	require.Len(t, snap.Feedback, 1)
	assert.Equal(t, "clear", snap.Feedback[0].Content)

	// The candidate's turn is part of the serialized context.
	require.Len(t, pipe.transcripts, 1)
	assert.True(t, strings.HasSuffix(pipe.transcripts[0], "Candidate: Closures capture their scope."))
}

func TestSlowFeedbackFromEarlierTurnIsDiscarded(t *testing.T) {
	firstStarted := make(chan struct{})
	release := make(chan struct{})
	pipe := &fakePipeline{reply: "noted"}
	pipe.feedbackFn = func(answer string) pipeline.Batch {
		if answer == "first answer" {
			close(firstStarted)
			<-release
		}
		return pipeline.Batch{
			Items:          []types.FeedbackItem{{Type: types.FeedbackPositive, Title: "Technical Strength", Content: answer}},
			TechnicalScore: 5,
		}
	}
	hist := &fakeHistory{}
	sess := newTestSession(pipe, &fakeCapture{}, &fakeSynth{}, hist)

	require.NoError(t, sess.SubmitAnswer(context.Background(), "first answer"))
	<-firstStarted
	require.NoError(t, sess.SubmitAnswer(context.Background(), "second answer"))

	require.Eventually(t, func() bool {
		snap := sess.Snapshot()
		return len(snap.Feedback) == 1 && snap.Feedback[0].Content == "second answer"
	}, time.Second, 5*time.Millisecond)

	// The first turn's batch lands last but must not overwrite the newer one.
	close(release)
	sess.feedbackWG.Wait()

	snap := sess.Snapshot()
	require.Len(t, snap.Feedback, 1)
	assert.Equal(t, "second answer", snap.Feedback[0].Content)

	rec, err := sess.End()
	require.NoError(t, err)
	assert.Equal(t, []string{"second answer"}, rec.Feedback.Strengths)
}

func TestSubmitAnswerRefusedWhileGenerating(t *testing.T) {
	gate := make(chan struct{})
	pipe := &fakePipeline{reply: "ok?", gate: gate}
	sess := newTestSession(pipe, &fakeCapture{}, &fakeSynth{}, &fakeHistory{})

	done := make(chan error, 1)
	go func() { done <- sess.SubmitAnswer(context.Background(), "first") }()

	require.Eventually(t, func() bool {
		return sess.Snapshot().State == StateGenerating
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, sess.SubmitAnswer(context.Background(), "second"), ErrBusy)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, StatePending, sess.Snapshot().State)
}

func TestQuestionUnchangedWhenReplyHasNone(t *testing.T) {
	pipe := &fakePipeline{reply: "Interesting. Let's move on."}
	sess := newTestSession(pipe, &fakeCapture{}, &fakeSynth{}, &fakeHistory{})
	sess.mu.Lock()
	sess.question = "What is a closure?"
	sess.mu.Unlock()

	require.NoError(t, sess.SubmitAnswer(context.Background(), "an answer"))
	assert.Equal(t, "What is a closure?", sess.Snapshot().Question)
}

func TestVoiceModeSpeaksExtractedQuestion(t *testing.T) {
	pipe := &fakePipeline{reply: "Good. How would you test this hook? Take your time."}
	syn := &fakeSynth{}
	sess := newTestSession(pipe, &fakeCapture{}, syn, &fakeHistory{})
	require.NoError(t, sess.SetMode(context.Background(), types.ModeVoice))

	require.NoError(t, sess.SubmitAnswer(context.Background(), "with a custom render"))

	spoken := syn.allSpoken()
	require.Len(t, spoken, 1)
	assert.Equal(t, "How would you test this hook?", spoken[0])
}

func TestTextModeDoesNotSpeak(t *testing.T) {
	pipe := &fakePipeline{reply: "And error handling?"}
	syn := &fakeSynth{}
	sess := newTestSession(pipe, &fakeCapture{}, syn, &fakeHistory{})

	require.NoError(t, sess.SubmitAnswer(context.Background(), "sure"))
	assert.Empty(t, syn.allSpoken())
}

func TestSetModeIdempotent(t *testing.T) {
	capt := &fakeCapture{}
	sess := newTestSession(&fakePipeline{}, capt, &fakeSynth{}, &fakeHistory{})

	require.NoError(t, sess.SetMode(context.Background(), types.ModeText))
	assert.Equal(t, 0, capt.cancels)

	require.NoError(t, sess.SetMode(context.Background(), types.ModeVoice))
	require.NoError(t, sess.SetMode(context.Background(), types.ModeVoice))
	assert.Equal(t, 1, capt.enables)
}

func TestSetModeBackToTextCancelsAudioWork(t *testing.T) {
	capt := &fakeCapture{}
	syn := &fakeSynth{}
	sess := newTestSession(&fakePipeline{}, capt, syn, &fakeHistory{})

	require.NoError(t, sess.SetMode(context.Background(), types.ModeVoice))
	require.NoError(t, sess.SetMode(context.Background(), types.ModeText))

	assert.Equal(t, 1, capt.cancels)
	assert.Equal(t, 1, capt.releases)
	assert.Equal(t, 1, syn.cancels)
	assert.Equal(t, types.ModeText, sess.Snapshot().Mode)
}

func TestSetModeVoiceDeniedStaysText(t *testing.T) {
	capt := &fakeCapture{enableErr: capture.ErrPermissionDenied}
	sess := newTestSession(&fakePipeline{}, capt, &fakeSynth{}, &fakeHistory{})

	err := sess.SetMode(context.Background(), types.ModeVoice)
	assert.ErrorIs(t, err, capture.ErrPermissionDenied)
	assert.Equal(t, types.ModeText, sess.Snapshot().Mode)
}

func TestSetModeUnknown(t *testing.T) {
	sess := newTestSession(&fakePipeline{}, &fakeCapture{}, &fakeSynth{}, &fakeHistory{})
	assert.Error(t, sess.SetMode(context.Background(), "morse"))
}

func TestOnStreamLostFallsBackToText(t *testing.T) {
	syn := &fakeSynth{}
	sess := newTestSession(&fakePipeline{}, &fakeCapture{}, syn, &fakeHistory{})
	require.NoError(t, sess.SetMode(context.Background(), types.ModeVoice))

	sess.OnStreamLost()

	assert.Equal(t, types.ModeText, sess.Snapshot().Mode)
	assert.Equal(t, 1, syn.cancels)
}

func TestEndIsIdempotentTeardown(t *testing.T) {
	capt := &fakeCapture{}
	syn := &fakeSynth{}
	hist := &fakeHistory{}
	pipe := &fakePipeline{
		reply: "How does reconciliation work?",
		batch: pipeline.Batch{
			Items: []types.FeedbackItem{
				{Type: types.FeedbackPositive, Title: "Technical Strength", Content: "clear"},
				{Type: types.FeedbackNegative, Title: "Technical Improvement", Content: "depth"},
				{Type: types.FeedbackSuggestion, Title: "Communication Improvement", Content: "pace"},
				{Type: types.FeedbackSuggestion, Title: "Overall Feedback", Content: "Solid."},
			},
			TechnicalScore:     8,
			CommunicationScore: 6,
			Overall:            "Solid.",
		},
	}
	sess := newTestSession(pipe, capt, syn, hist)
	require.NoError(t, sess.SubmitAnswer(context.Background(), "it diffs trees"))
	sess.feedbackWG.Wait()

	rec, err := sess.End()
	require.NoError(t, err)
	again, err := sess.End()
	require.NoError(t, err)
	assert.Equal(t, rec, again)

	assert.Equal(t, 1, syn.cancels)
	assert.Equal(t, 1, capt.releases)
	require.Len(t, hist.recs, 1)

	assert.Equal(t, "sess_test", rec.ID)
	assert.Equal(t, []string{"React", "Hooks"}, rec.Topics)
	assert.Equal(t, 1, rec.QuestionCount)
	assert.Equal(t, 80, rec.Feedback.TechnicalScore)
	assert.Equal(t, 60, rec.Feedback.CommunicationScore)
	assert.Equal(t, 70, rec.PerformanceScore)
	assert.Equal(t, []string{"clear"}, rec.Feedback.Strengths)
	assert.Equal(t, []string{"depth", "pace"}, rec.Feedback.Improvements)
	assert.Equal(t, "Solid.", rec.Feedback.OverallImpression)
	assert.Equal(t, StateEnded, sess.Snapshot().State)
}

func TestSubmitAnswerAfterEnd(t *testing.T) {
	sess := newTestSession(&fakePipeline{}, &fakeCapture{}, &fakeSynth{}, &fakeHistory{})
	_, err := sess.End()
	require.NoError(t, err)
	assert.ErrorIs(t, sess.SubmitAnswer(context.Background(), "hello?"), ErrEnded)
	assert.ErrorIs(t, sess.SetMode(context.Background(), types.ModeVoice), ErrEnded)
}

func TestTimerExpiryForcesSingleEnd(t *testing.T) {
	hist := &fakeHistory{}
	sess := New(Config{ID: "sess_t", Duration: 2 * time.Second}, &fakePipeline{}, &fakeCapture{}, &fakeSynth{}, hist, Events{})

	sess.timer.tick()
	assert.Equal(t, StatePending, sess.Snapshot().State)
	sess.timer.tick()
	assert.Equal(t, StateEnded, sess.Snapshot().State)
	sess.timer.tick()

	assert.Len(t, hist.recs, 1)
	assert.Equal(t, 0, sess.Snapshot().RemainingSec)
}

func TestStartAppendsOpeningTurn(t *testing.T) {
	sess := newTestSession(&fakePipeline{}, &fakeCapture{}, &fakeSynth{}, &fakeHistory{})
	sess.Start()
	defer func() { _, _ = sess.End() }()

	snap := sess.Snapshot()
	require.Len(t, snap.Turns, 1)
	assert.Equal(t, types.RoleInterviewer, snap.Turns[0].Role)
	assert.NotEmpty(t, snap.Question)
	assert.Contains(t, snap.Turns[0].Content, snap.Question)
}

func TestContextWindowCapsTranscript(t *testing.T) {
	pipe := &fakePipeline{reply: "noted"}
	sess := newTestSession(pipe, &fakeCapture{}, &fakeSynth{}, &fakeHistory{})

	sess.mu.Lock()
	for i := 0; i < contextWindow+10; i++ {
		sess.appendTurnLocked(types.RoleCandidate, "line")
	}
	transcript := sess.transcriptLocked()
	sess.mu.Unlock()

	assert.Equal(t, contextWindow, strings.Count(transcript, "\n")+1)
}

func TestOnSpeakingMarksLatestInterviewerTurn(t *testing.T) {
	pipe := &fakePipeline{reply: "What about suspense?"}
	sess := newTestSession(pipe, &fakeCapture{}, &fakeSynth{}, &fakeHistory{})
	require.NoError(t, sess.SubmitAnswer(context.Background(), "an answer"))

	sess.OnSpeaking(true)
	snap := sess.Snapshot()
	assert.True(t, snap.Turns[1].Speaking)
	assert.Equal(t, StateSpeaking, snap.State)

	sess.OnSpeaking(false)
	snap = sess.Snapshot()
	assert.False(t, snap.Turns[1].Speaking)
	assert.Equal(t, StatePending, snap.State)
}
