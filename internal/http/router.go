package http

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/ariellien/intervu-backend/internal/config"
	"github.com/ariellien/intervu-backend/internal/core/capture"
	"github.com/ariellien/intervu-backend/internal/core/gemini"
	"github.com/ariellien/intervu-backend/internal/core/groq"
	"github.com/ariellien/intervu-backend/internal/core/pipeline"
	"github.com/ariellien/intervu-backend/internal/core/synth"
	"github.com/ariellien/intervu-backend/internal/http/handlers"
	"github.com/ariellien/intervu-backend/internal/repo/history"
	"github.com/ariellien/intervu-backend/internal/repo/memory"
	"github.com/ariellien/intervu-backend/pkg/ws"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the API surface. The live-session repo is returned
// alongside so the entrypoint can end sessions on shutdown.
func NewRouter(cfg config.Config) (*gin.Engine, *memory.SessionRepo) {
	r := gin.Default()

	repo := memory.NewSessionRepo()
	store, err := history.NewStore(cfg.HistoryDir)
	if err != nil {
		log.Fatalf("history store: %v", err)
	}
	hub := ws.NewHub()
	bridges := handlers.NewBridges()

	gc := groq.New(cfg.GroqAPIKey)
	providers := []pipeline.Provider{&pipeline.GroqProvider{Client: gc, Model: cfg.ChatModel}}
	if cfg.GeminiAPIKey != "" {
		gem, err := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Printf("gemini fallback disabled: %v", err)
		} else {
			providers = append(providers, gem)
		}
	}
	pipe := pipeline.New(providers, time.Now().UnixNano())

	transcriber := capture.TranscriberFunc(func(ctx context.Context, clip []byte) (string, error) {
		return gc.Transcribe(ctx, clip, cfg.WhisperModel)
	})
	remote := synth.RemoteFunc(func(ctx context.Context, text string) ([]byte, error) {
		return gc.Speech(ctx, cfg.TTSModel, cfg.TTSVoice, text)
	})

	baseScheme := "ws"
	if os.Getenv("TLS") == "1" {
		baseScheme = "wss"
	}
	host := os.Getenv("PUBLIC_HOST")
	if host == "" {
		host = "localhost:" + cfg.Port
	}

	sh := &handlers.SessionsHandler{
		Repo:        repo,
		History:     store,
		Hub:         hub,
		Bridges:     bridges,
		Pipe:        pipe,
		Transcriber: transcriber,
		Remote:      remote,
		Duration:    time.Duration(cfg.SessionMinutes) * time.Minute,
		Scheme:      baseScheme,
		Host:        host,
	}
	wsh := handlers.NewStreamHandler(hub, bridges)
	th := handlers.NewTTSHandler(gc, cfg.TTSModel, cfg.TTSVoice)
	hh := handlers.NewHistoryHandler(store)

	api := r.Group("/v1")
	api.POST("/sessions", sh.Create)
	api.GET("/sessions/:id", sh.Get)
	api.POST("/sessions/:id/answer", sh.Answer)
	api.POST("/sessions/:id/mode", sh.Mode)
	api.POST("/sessions/:id/end", sh.End)
	api.POST("/tts", th.Synthesize)
	api.GET("/history", hh.List)
	api.GET("/history/metrics", hh.Metrics)
	api.GET("/history/:id", hh.Get)
	r.GET("/v1/stream", wsh.WS)
	return r, repo
}
