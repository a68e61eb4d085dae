package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ariellien/intervu-backend/internal/core/groq"
	"github.com/ariellien/intervu-backend/internal/core/synth"
	"github.com/ariellien/intervu-backend/pkg/types"
)

type TTSHandler struct {
	Client *groq.Client
	Model  string
	Voice  string
}

func NewTTSHandler(client *groq.Client, model, voice string) *TTSHandler {
	return &TTSHandler{Client: client, Model: model, Voice: voice}
}

// Synthesize converts text straight to wav bytes, outside any session.
func (h *TTSHandler) Synthesize(c *gin.Context) {
	var req types.TTSReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	voice := req.Voice
	if voice == "" {
		voice = h.Voice
	}
	wav, err := h.Client.Speech(c.Request.Context(), h.Model, voice, synth.TruncateForSpeech(req.Text))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "tts_failed"})
		return
	}
	c.Data(http.StatusOK, "audio/wav", wav)
}
