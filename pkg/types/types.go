package types

import "time"

const (
	RoleCandidate   = "candidate"
	RoleInterviewer = "interviewer"
)

const (
	ModeText  = "text"
	ModeVoice = "voice"
)

const (
	FeedbackPositive   = "positive"
	FeedbackNegative   = "negative"
	FeedbackSuggestion = "suggestion"
)

type Turn struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Content  string `json:"content"`
	Speaking bool   `json:"speaking,omitempty"`
}

type FeedbackItem struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type CreateSessionReq struct {
	Title       string   `json:"title"`
	Topics      []string `json:"topics"`
	DurationSec int      `json:"duration_sec"`
	Mode        string   `json:"mode"`
}

type CreateSessionResp struct {
	SessionID string `json:"session_id"`
	WSURL     string `json:"ws_url"`
}

type AnswerReq struct {
	Text string `json:"text"`
}

type ModeReq struct {
	Mode string `json:"mode"`
}

type SessionSnapshot struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	State        string         `json:"state"`
	Mode         string         `json:"mode"`
	Question     string         `json:"question"`
	RemainingSec int            `json:"remaining_sec"`
	Turns        []Turn         `json:"turns"`
	Feedback     []FeedbackItem `json:"feedback"`
}

type TTSReq struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// SessionFeedback is the structured critique attached to a finished session.
type SessionFeedback struct {
	Strengths          []string `json:"strengths"`
	Improvements       []string `json:"improvements"`
	TechnicalScore     int      `json:"technicalScore"`
	CommunicationScore int      `json:"communicationScore"`
	OverallImpression  string   `json:"overallImpression"`
}

// SessionRecord is the shape handed to the history store when a session ends.
// Dates cross the wire as RFC 3339 strings.
type SessionRecord struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Date             time.Time       `json:"date"`
	Duration         int             `json:"duration"`
	Topics           []string        `json:"topics"`
	QuestionCount    int             `json:"questionCount"`
	PerformanceScore int             `json:"performanceScore"`
	Feedback         SessionFeedback `json:"feedback"`
}

// PerformanceMetrics aggregates finished sessions for the dashboard surface.
type PerformanceMetrics struct {
	TotalInterviews int             `json:"total_interviews"`
	AverageDuration float64         `json:"average_duration_min"`
	AverageScore    float64         `json:"average_score"`
	StrongestTopics []string        `json:"strongest_topics"`
	WeakestTopics   []string        `json:"weakest_topics"`
	CompletedTopics []string        `json:"completed_topics"`
	WeeklyActivity  []ActivityEntry `json:"weekly_activity"`
}

type ActivityEntry struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
