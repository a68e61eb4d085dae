package pipeline

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"

	"github.com/ariellien/intervu-backend/internal/core/groq"
	"github.com/ariellien/intervu-backend/pkg/types"
)

const replySystemPrompt = "You are an experienced technical interviewer conducting a programming interview. " +
	"Your role is to ask questions, listen to the candidate's responses, and ask follow-up questions. " +
	"Do NOT provide detailed explanations or answers to your own questions. " +
	"Be professional, concise, and focus on evaluating the candidate's knowledge. " +
	"Ask one question at a time and wait for the candidate's response. " +
	"IMPORTANT: Do not use <think> tags or include your thinking process in your response. " +
	"Keep your responses brief and focused on guiding the interview."

const feedbackSystemPrompt = "As an expert interviewer, analyze the following interview answer and provide detailed feedback. " +
	"Consider technical accuracy, communication skills, problem-solving approach, and areas for improvement. " +
	"IMPORTANT: Return ONLY a valid JSON object with fields technicalSkills{score,strengths,areasToImprove}, " +
	"communicationSkills{score,strengths,areasToImprove} and overallFeedback, with no additional text, comments, or thinking. " +
	"DO NOT include any <think> tags or explanations outside the JSON. Your entire response must be a valid JSON object."

// Provider is one tier of the model fallback chain. Both methods return the
// provider's raw text; normalization is the pipeline's job.
type Provider interface {
	Name() string
	GenerateReply(ctx context.Context, answer, question, transcript string) (string, error)
	GenerateFeedback(ctx context.Context, answer, question string) (string, error)
}

// Pipeline shapes the reply and feedback requests, walks the provider chain
// and guarantees non-empty, well-formed output no matter what comes back.
type Pipeline struct {
	providers []Provider

	mu   sync.Mutex
	rand *rand.Rand
}

func New(providers []Provider, seed int64) *Pipeline {
	return &Pipeline{
		providers: providers,
		rand:      rand.New(rand.NewSource(seed)),
	}
}

var fallbackReplies = []string{
	"Thank you for that explanation. Now, let's go deeper - can you explain how you would implement this in a real-world scenario?",
	"Interesting perspective. Could you elaborate more on how this approach affects application performance?",
	"Good answer. Let's switch topics a bit - what about error handling in this context?",
	"That's a solid explanation. How would you approach testing this functionality?",
	"I appreciate your detailed response. Now, imagine you're explaining this to a junior developer - how would you simplify it?",
}

var fallbackFeedback = []types.FeedbackItem{
	{
		Type:    types.FeedbackPositive,
		Title:   "Clear Explanation",
		Content: "You provided a coherent and technically accurate explanation of the core concepts.",
	},
	{
		Type:    types.FeedbackSuggestion,
		Title:   "Consider Real-world Examples",
		Content: "Adding a specific code example or real-world scenario would strengthen your explanation.",
	},
	{
		Type:    types.FeedbackNegative,
		Title:   "Technical Depth",
		Content: "Consider diving deeper into the underlying mechanisms to demonstrate more comprehensive knowledge.",
	},
}

// GenerateReply never fails: every provider error ends in a canned follow-up
// so an outage cannot stall the conversation.
func (p *Pipeline) GenerateReply(ctx context.Context, answer, question, transcript string) string {
	for _, prov := range p.providers {
		out, err := prov.GenerateReply(ctx, answer, question, transcript)
		if err != nil {
			log.Printf("pipeline: %s reply failed: %v", prov.Name(), err)
			continue
		}
		out = strings.TrimSpace(StripThink(out))
		if out != "" {
			return out
		}
		log.Printf("pipeline: %s reply empty after cleanup", prov.Name())
	}
	return p.pick(fallbackReplies)
}

// GenerateFeedback never fails and never returns an empty batch. A provider
// that answers with unparseable text yields a raw-excerpt batch; providers
// that fail outright are skipped, and a dead chain yields the canned batch.
func (p *Pipeline) GenerateFeedback(ctx context.Context, answer, question string) Batch {
	for _, prov := range p.providers {
		raw, err := prov.GenerateFeedback(ctx, answer, question)
		if err != nil {
			log.Printf("pipeline: %s feedback failed: %v", prov.Name(), err)
			continue
		}
		batch, err := ParseFeedback(raw)
		if err != nil {
			log.Printf("pipeline: %s feedback unparseable: %v", prov.Name(), err)
			return rawExcerptFeedback(raw)
		}
		return batch
	}
	items := make([]types.FeedbackItem, len(fallbackFeedback))
	copy(items, fallbackFeedback)
	return Batch{Items: items}
}

func rawExcerptFeedback(raw string) Batch {
	excerpt := strings.TrimSpace(StripThink(raw))
	if len(excerpt) > 500 {
		excerpt = excerpt[:500] + "..."
	}
	return Batch{Items: []types.FeedbackItem{
		{
			Type:    types.FeedbackSuggestion,
			Title:   "General Feedback",
			Content: "The AI provided feedback but it couldn't be properly formatted. Here's the raw feedback:",
		},
		{
			Type:    types.FeedbackSuggestion,
			Title:   "Raw Feedback",
			Content: excerpt,
		},
	}}
}

func (p *Pipeline) pick(pool []string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pool[p.rand.Intn(len(pool))]
}

// GroqProvider is the primary tier, backed by the Groq chat API.
type GroqProvider struct {
	Client *groq.Client
	Model  string
}

func (g *GroqProvider) Name() string { return "groq" }

func (g *GroqProvider) GenerateReply(ctx context.Context, answer, question, transcript string) (string, error) {
	msgs := []groq.Message{{Role: "system", Content: replySystemPrompt}}
	if transcript != "" {
		msgs = append(msgs, groq.Message{Role: "system", Content: "Previous conversation context: " + transcript})
	}
	msgs = append(msgs, groq.Message{
		Role:    "user",
		Content: "Current question: " + question + "\nCandidate's answer: " + answer,
	})
	return g.Client.ChatCompletion(ctx, g.Model, msgs, groq.ChatOptions{
		Temperature: 0.6,
		TopP:        0.95,
		MaxTokens:   1000,
	})
}

func (g *GroqProvider) GenerateFeedback(ctx context.Context, answer, question string) (string, error) {
	msgs := []groq.Message{
		{Role: "system", Content: feedbackSystemPrompt},
		{Role: "user", Content: "Question: " + question + "\nAnswer: " + answer},
	}
	return g.Client.ChatCompletion(ctx, g.Model, msgs, groq.ChatOptions{
		Temperature: 0.6,
		TopP:        0.95,
		MaxTokens:   2000,
	})
}
