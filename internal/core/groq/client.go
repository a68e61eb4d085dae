package groq

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

var ErrNoAPIKey = errors.New("groq: api key not configured")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	Temperature         float32   `json:"temperature"`
	TopP                float32   `json:"top_p"`
	MaxCompletionTokens int       `json:"max_completion_tokens"`
	Stream              bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Client talks to the Groq OpenAI-compatible API: chat completions,
// Whisper transcription and PlayAI speech.
type Client struct {
	hc      *http.Client
	baseURL string
	apiKey  string
}

func New(apiKey string) *Client {
	tr := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Client{
		hc:      &http.Client{Transport: tr, Timeout: 60 * time.Second},
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
	}
}

// SetBaseURL overrides the API endpoint, used by tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

type ChatOptions struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// ChatCompletion runs one non-streaming completion and returns the first
// choice's content.
func (c *Client) ChatCompletion(ctx context.Context, model string, msgs []Message, opts ChatOptions) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}
	body, err := json.Marshal(chatRequest{
		Model:               model,
		Messages:            msgs,
		Temperature:         opts.Temperature,
		TopP:                opts.TopP,
		MaxCompletionTokens: opts.MaxTokens,
		Stream:              false,
	})
	if err != nil {
		return "", err
	}

	var lastErr error
	for i := 0; i < 3; i++ {
		raw, err := c.post(ctx, "/chat/completions", "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			if retriable(err) {
				time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
				continue
			}
			return "", err
		}
		var resp chatResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", fmt.Errorf("groq: decode completion: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			lastErr = errors.New("groq: empty completion")
			time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", lastErr
}

// Transcribe uploads one recorded clip and returns its text. A malformed
// response body yields an empty string, not an error.
func (c *Client) Transcribe(ctx context.Context, clip []byte, model string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "audio.m4a")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(clip); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", model)
	_ = mw.WriteField("response_format", "verbose_json")
	if err := mw.Close(); err != nil {
		return "", err
	}

	raw, err := c.post(ctx, "/audio/transcriptions", mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", nil
	}
	return resp.Text, nil
}

// Speech synthesizes text and returns raw wav bytes. An empty payload is an
// error so callers can move to the next synthesis tier.
func (c *Client) Speech(ctx context.Context, model, voice, input string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	body, err := json.Marshal(speechRequest{
		Model:          model,
		Voice:          voice,
		Input:          input,
		ResponseFormat: "wav",
	})
	if err != nil {
		return nil, err
	}
	raw, err := c.post(ctx, "/audio/speech", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("groq: empty audio payload")
	}
	return raw, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("groq: %s: status %d: %s", path, resp.StatusCode, truncate(string(raw), 200))
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func retriable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected EOF") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "status 429") ||
		strings.Contains(s, "status 5")
}
