package pipeline

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/ariellien/intervu-backend/pkg/types"
)

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

var errNoJSON = errors.New("no JSON object in payload")

// StripThink removes reasoning scratchpad blocks some models leak into
// their output.
func StripThink(s string) string {
	return thinkRe.ReplaceAllString(s, "")
}

// Batch is one turn's worth of structured feedback. It replaces the previous
// batch wholesale; scores are on the provider's 0-10 scale.
type Batch struct {
	Items              []types.FeedbackItem
	TechnicalScore     float64
	CommunicationScore float64
	Overall            string
}

type skillFeedback struct {
	Score          float64  `json:"score"`
	Strengths      []string `json:"strengths"`
	AreasToImprove []string `json:"areasToImprove"`
}

type feedbackPayload struct {
	TechnicalSkills     skillFeedback `json:"technicalSkills"`
	CommunicationSkills skillFeedback `json:"communicationSkills"`
	OverallFeedback     string        `json:"overallFeedback"`
}

// ParseFeedback turns a raw model response into the flattened feedback batch.
// It strips scratchpad markup, locates the first balanced object in whatever
// prose surrounds it and parses only that span. The flattening order is a
// contract: technical strengths, technical improvements, communication
// strengths, communication improvements, overall impression.
func ParseFeedback(raw string) (Batch, error) {
	cleaned := StripThink(raw)
	span, err := firstJSONObject(cleaned)
	if err != nil {
		return Batch{}, err
	}
	var payload feedbackPayload
	if err := json.Unmarshal([]byte(span), &payload); err != nil {
		return Batch{}, err
	}
	batch := flatten(payload)
	if len(batch.Items) == 0 {
		return Batch{}, errors.New("feedback payload carried no items")
	}
	return batch, nil
}

func flatten(p feedbackPayload) Batch {
	var items []types.FeedbackItem
	for _, s := range p.TechnicalSkills.Strengths {
		items = append(items, types.FeedbackItem{Type: types.FeedbackPositive, Title: "Technical Strength", Content: s})
	}
	for _, a := range p.TechnicalSkills.AreasToImprove {
		items = append(items, types.FeedbackItem{Type: types.FeedbackNegative, Title: "Technical Improvement", Content: a})
	}
	for _, s := range p.CommunicationSkills.Strengths {
		items = append(items, types.FeedbackItem{Type: types.FeedbackPositive, Title: "Communication Strength", Content: s})
	}
	for _, a := range p.CommunicationSkills.AreasToImprove {
		items = append(items, types.FeedbackItem{Type: types.FeedbackSuggestion, Title: "Communication Improvement", Content: a})
	}
	if p.OverallFeedback != "" {
		items = append(items, types.FeedbackItem{Type: types.FeedbackSuggestion, Title: "Overall Feedback", Content: p.OverallFeedback})
	}
	return Batch{
		Items:              items,
		TechnicalScore:     p.TechnicalSkills.Score,
		CommunicationScore: p.CommunicationSkills.Score,
		Overall:            p.OverallFeedback,
	}
}

// firstJSONObject returns the first balanced {...} span, tracking string
// literals so braces inside values don't break the count.
func firstJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errNoJSON
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", errNoJSON
}
