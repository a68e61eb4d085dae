package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ariellien/intervu-backend/internal/core/capture"
	"github.com/ariellien/intervu-backend/internal/core/interview"
	"github.com/ariellien/intervu-backend/internal/core/pipeline"
	"github.com/ariellien/intervu-backend/internal/core/synth"
	"github.com/ariellien/intervu-backend/internal/repo/history"
	"github.com/ariellien/intervu-backend/internal/repo/memory"
	"github.com/ariellien/intervu-backend/pkg/types"
	"github.com/ariellien/intervu-backend/pkg/ws"
)

type SessionsHandler struct {
	Repo        *memory.SessionRepo
	History     *history.Store
	Hub         *ws.Hub
	Bridges     *Bridges
	Pipe        *pipeline.Pipeline
	Transcriber capture.Transcriber
	Remote      synth.Remote
	Duration    time.Duration
	Scheme      string
	Host        string
}

// Create wires a full session: bridge, capture, synthesis and orchestrator,
// each collaborator injected, events published to the session's websocket.
func (h *SessionsHandler) Create(c *gin.Context) {
	var req types.CreateSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	id := "sess_" + uuid.NewString()
	duration := h.Duration
	if req.DurationSec > 0 {
		duration = time.Duration(req.DurationSec) * time.Second
	}
	title := req.Title
	if title == "" {
		title = "React Frontend Interview"
	}

	br := h.Bridges.Create(id, h.Hub)

	// sess is assigned below; the hooks only fire once the session is live.
	var sess *interview.Session

	capt := capture.New(br, h.Transcriber, capture.Hooks{
		State: func(st capture.State) {
			h.Hub.Publish(id, gin.H{"type": "capture", "state": st})
		},
		Answer: func(text string) {
			go func() { _ = sess.SubmitAnswer(context.Background(), text) }()
		},
		Notice: func(msg string) {
			h.Hub.Publish(id, gin.H{"type": "notice", "text": msg})
		},
		StreamLost: func() { sess.OnStreamLost() },
	})

	syn := synth.New(h.Remote, br, br, synth.Hooks{
		Speaking: func(on bool) { sess.OnSpeaking(on) },
	})

	events := interview.Events{
		Turn: func(t types.Turn) {
			h.Hub.Publish(id, gin.H{"type": "turn", "turn": t})
		},
		Feedback: func(items []types.FeedbackItem) {
			h.Hub.Publish(id, gin.H{"type": "feedback", "items": items})
		},
		Tick: func(remaining int) {
			h.Hub.Publish(id, gin.H{"type": "tick", "remaining_sec": remaining})
		},
		State: func(state string) {
			h.Hub.Publish(id, gin.H{"type": "state", "state": state})
		},
		Mode: func(mode string) {
			h.Hub.Publish(id, gin.H{"type": "mode", "mode": mode})
		},
		Notice: func(msg string) {
			h.Hub.Publish(id, gin.H{"type": "notice", "text": msg})
		},
		Ended: func(rec types.SessionRecord) {
			h.Hub.Publish(id, gin.H{"type": "ended", "record": rec})
			h.Repo.Remove(id)
			h.Bridges.Remove(id)
		},
	}

	sess = interview.New(interview.Config{
		ID:       id,
		Title:    title,
		Topics:   req.Topics,
		Duration: duration,
	}, h.Pipe, capt, syn, h.History, events)

	br.Capture = capt
	br.Session = sess
	br.Ambient = capture.NewAmbient(br, capture.AmbientHooks{
		Interim: func(text string) {
			h.Hub.Publish(id, gin.H{"type": "interim", "text": text})
		},
		Final: func(text string) {
			go func() { _ = sess.SubmitAnswer(context.Background(), text) }()
		},
	})

	h.Repo.Save(sess)
	sess.Start()

	c.JSON(http.StatusOK, types.CreateSessionResp{
		SessionID: id,
		WSURL:     h.Scheme + "://" + h.Host + "/v1/stream?sess=" + id,
	})
}

func (h *SessionsHandler) Get(c *gin.Context) {
	sess, ok := h.Repo.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (h *SessionsHandler) Answer(c *gin.Context) {
	sess, ok := h.Repo.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	var req types.AnswerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	switch err := sess.SubmitAnswer(c.Request.Context(), req.Text); {
	case errors.Is(err, interview.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "reply_in_progress"})
	case errors.Is(err, interview.ErrEnded):
		c.JSON(http.StatusGone, gin.H{"error": "session_ended"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "answer_failed"})
	default:
		c.JSON(http.StatusOK, sess.Snapshot())
	}
}

func (h *SessionsHandler) Mode(c *gin.Context) {
	sess, ok := h.Repo.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	var req types.ModeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	switch err := sess.SetMode(c.Request.Context(), req.Mode); {
	case errors.Is(err, capture.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission_denied"})
	case errors.Is(err, interview.ErrEnded):
		c.JSON(http.StatusGone, gin.H{"error": "session_ended"})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_mode"})
	default:
		c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
	}
}

func (h *SessionsHandler) End(c *gin.Context) {
	sess, ok := h.Repo.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	rec, err := sess.End()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "end_failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
