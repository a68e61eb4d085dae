package gemini

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Client is the secondary model provider, used when the primary chat
// provider is down. It returns raw text; tolerant parsing happens in the
// conversation pipeline.
type Client struct {
	c     *genai.Client
	model string
}

func New(apiKey, model string) (*Client, error) {
	tr := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2: false,
		MaxIdleConns:      100,
		IdleConnTimeout:   90 * time.Second,
	}
	hc := &http.Client{Transport: tr, Timeout: 30 * time.Second}
	reqTimeout := 15 * time.Second
	cl, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: "v1",
			Timeout:    &reqTimeout,
		},
	})
	if err != nil {
		return nil, err
	}
	return &Client{c: cl, model: model}, nil
}

func (g *Client) Name() string { return "gemini" }

func (g *Client) GenerateReply(ctx context.Context, answer, question, transcript string) (string, error) {
	parts := []*genai.Part{
		{Text: "You are an experienced technical interviewer conducting a programming interview. Ask questions and follow-ups, never answer them yourself. Be professional and concise. Ask one question at a time. Do not include any thinking process in your response."},
	}
	if transcript != "" {
		parts = append(parts, &genai.Part{Text: "Previous conversation context: " + transcript})
	}
	parts = append(parts, &genai.Part{Text: "Current question: " + question + "\nCandidate's answer: " + answer})
	return g.callOnce(ctx, parts, g.textConfig())
}

func (g *Client) GenerateFeedback(ctx context.Context, answer, question string) (string, error) {
	parts := []*genai.Part{
		{Text: "As an expert interviewer, analyze the following interview answer. Return ONLY a JSON object with technicalSkills{score,strengths,areasToImprove}, communicationSkills{score,strengths,areasToImprove} and overallFeedback."},
		{Text: "Question: " + question + "\nAnswer: " + answer},
	}
	// Schema-constrained call first, plain text as a second chance.
	if out, err := g.callOnce(ctx, parts, g.jsonConfig()); err == nil && out != "" {
		return out, nil
	}
	return g.callOnce(ctx, parts, g.textConfig())
}

func (g *Client) callOnce(ctx context.Context, parts []*genai.Part, cfg *genai.GenerateContentConfig) (string, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		resp, err := g.c.Models.GenerateContent(ctx, g.model, []*genai.Content{{Parts: parts}}, cfg)
		if err != nil {
			lastErr = err
			if retriable(err) {
				time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
				continue
			}
			return "", err
		}
		if text := collectText(resp); text != "" {
			return text, nil
		}
		lastErr = errors.New("empty response")
		time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
	}
	return "", lastErr
}

func collectText(resp *genai.GenerateContentResponse) string {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.MIMEType == "application/json" {
				return string(p.InlineData.Data)
			}
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return resp.Text()
}

func (g *Client) textConfig() *genai.GenerateContentConfig {
	temp := float32(0.6)
	topP := float32(0.95)
	return &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		MaxOutputTokens: 2000,
	}
}

func (g *Client) jsonConfig() *genai.GenerateContentConfig {
	cfg := g.textConfig()
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"technicalSkills":     skillSchema(),
			"communicationSkills": skillSchema(),
			"overallFeedback":     {Type: genai.TypeString},
		},
		Required: []string{"technicalSkills", "communicationSkills", "overallFeedback"},
	}
	return cfg
}

func skillSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"score":          {Type: genai.TypeNumber},
			"strengths":      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"areasToImprove": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"score", "strengths", "areasToImprove"},
	}
}

func retriable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected EOF") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "RST_STREAM") ||
		strings.Contains(s, "connection reset")
}
