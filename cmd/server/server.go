package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariellien/intervu-backend/internal/config"
	"github.com/ariellien/intervu-backend/internal/core/interview"
	h "github.com/ariellien/intervu-backend/internal/http"
	"github.com/ariellien/intervu-backend/internal/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logging.Setup(cfg.LogFile)

	router, repo := h.NewRouter(cfg)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()
	log.Printf("listening on :%s", cfg.Port)

	<-ctx.Done()
	log.Printf("shutting down")

	// Live sessions are ended first so their records reach the history store.
	repo.Each(func(s *interview.Session) {
		if _, err := s.End(); err != nil {
			log.Printf("ending session %s: %v", s.ID(), err)
		}
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
