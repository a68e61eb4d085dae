package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariellien/intervu-backend/pkg/types"
)

type stubProvider struct {
	name        string
	reply       string
	replyErr    error
	feedback    string
	feedbackErr error
	replyCalls  int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) GenerateReply(ctx context.Context, answer, question, transcript string) (string, error) {
	p.replyCalls++
	return p.reply, p.replyErr
}

func (p *stubProvider) GenerateFeedback(ctx context.Context, answer, question string) (string, error) {
	return p.feedback, p.feedbackErr
}

func TestGenerateReplyVerbatim(t *testing.T) {
	prov := &stubProvider{name: "primary", reply: "Can you explain useState vs useRef?"}
	p := New([]Provider{prov}, 1)

	got := p.GenerateReply(context.Background(), "answer", "question", "")
	assert.Equal(t, "Can you explain useState vs useRef?", got)
}

func TestGenerateReplyStripsThink(t *testing.T) {
	prov := &stubProvider{name: "primary", reply: "<think>they know hooks</think>  What about useMemo?  "}
	p := New([]Provider{prov}, 1)

	got := p.GenerateReply(context.Background(), "answer", "question", "")
	assert.Equal(t, "What about useMemo?", got)
}

func TestGenerateReplyFallsThroughChain(t *testing.T) {
	dead := &stubProvider{name: "primary", replyErr: errors.New("boom")}
	alive := &stubProvider{name: "secondary", reply: "Tell me about closures."}
	p := New([]Provider{dead, alive}, 1)

	got := p.GenerateReply(context.Background(), "a", "q", "")
	assert.Equal(t, "Tell me about closures.", got)
	assert.Equal(t, 1, dead.replyCalls)
}

func TestGenerateReplyPoolOnTotalOutage(t *testing.T) {
	dead := &stubProvider{name: "primary", replyErr: errors.New("boom")}
	empty := &stubProvider{name: "secondary", reply: "<think>only thoughts</think>"}
	p := New([]Provider{dead, empty}, 42)

	got := p.GenerateReply(context.Background(), "a", "q", "")
	assert.Contains(t, fallbackReplies, got)
}

func TestGenerateFeedbackParses(t *testing.T) {
	prov := &stubProvider{name: "primary", feedback: "prose first " + wellFormedFeedback}
	p := New([]Provider{prov}, 1)

	batch := p.GenerateFeedback(context.Background(), "a", "q")
	require.Len(t, batch.Items, 4)
	assert.Equal(t, 8.0, batch.TechnicalScore)
}

func TestGenerateFeedbackRawExcerptOnUnparseable(t *testing.T) {
	prov := &stubProvider{name: "primary", feedback: "I think the candidate did fine overall."}
	fallback := &stubProvider{name: "secondary", feedback: wellFormedFeedback}
	p := New([]Provider{prov, fallback}, 1)

	// Unparseable content from a live provider is surfaced, not retried on
	// the next tier.
	batch := p.GenerateFeedback(context.Background(), "a", "q")
	require.Len(t, batch.Items, 2)
	assert.Equal(t, "Raw Feedback", batch.Items[1].Title)
	assert.Contains(t, batch.Items[1].Content, "did fine overall")
}

func TestGenerateFeedbackRawExcerptTruncates(t *testing.T) {
	long := make([]byte, 900)
	for i := range long {
		long[i] = 'x'
	}
	prov := &stubProvider{name: "primary", feedback: string(long)}
	p := New([]Provider{prov}, 1)

	batch := p.GenerateFeedback(context.Background(), "a", "q")
	require.Len(t, batch.Items, 2)
	assert.Len(t, batch.Items[1].Content, 503)
	assert.Equal(t, "...", batch.Items[1].Content[500:])
}

func TestGenerateFeedbackCannedOnTotalOutage(t *testing.T) {
	dead := &stubProvider{name: "primary", feedbackErr: errors.New("down")}
	p := New([]Provider{dead}, 1)

	batch := p.GenerateFeedback(context.Background(), "a", "q")
	require.NotEmpty(t, batch.Items)
	typesSeen := map[string]bool{}
	for _, item := range batch.Items {
		typesSeen[item.Type] = true
	}
	assert.True(t, typesSeen[types.FeedbackPositive])
	assert.True(t, typesSeen[types.FeedbackSuggestion])
	assert.True(t, typesSeen[types.FeedbackNegative])
}

func TestGenerateFeedbackNeverEmpty(t *testing.T) {
	payloads := []string{
		"",
		"not json at all",
		`{"technicalSkills":{"score":8`,
		"<think>internal</think>",
	}
	for _, payload := range payloads {
		prov := &stubProvider{name: "p", feedback: payload}
		p := New([]Provider{prov}, 1)
		batch := p.GenerateFeedback(context.Background(), "a", "q")
		assert.NotEmpty(t, batch.Items, "payload %q", payload)
	}
}
