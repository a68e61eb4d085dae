package capture

import (
	"context"
	"errors"
	"log"
	"sync"
)

var ErrUnsupported = errors.New("capture: continuous recognition not supported")

// Result is one recognizer event. Interim results are advisory; only final
// phrases are forwarded as answers.
type Result struct {
	Text  string
	Final bool
}

// Recognizer is the platform's continuous speech recognizer. Its result
// channel closes when the recognizer stops on its own.
type Recognizer interface {
	Start(ctx context.Context) (<-chan Result, error)
	Stop()
}

// AmbientHooks receive recognizer output. Nil funcs are skipped.
type AmbientHooks struct {
	Interim func(string)
	Final   func(string)
}

// Ambient runs free-form continuous transcription, independent of the
// push-to-talk flow. While listening it restarts a recognizer that ends on
// its own, mirroring how browser recognizers time out mid-session.
type Ambient struct {
	rec   Recognizer
	hooks AmbientHooks

	mu        sync.Mutex
	listening bool
	gen       uint64
}

func NewAmbient(rec Recognizer, hooks AmbientHooks) *Ambient {
	return &Ambient{rec: rec, hooks: hooks}
}

func (a *Ambient) Supported() bool { return a.rec != nil }

func (a *Ambient) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

func (a *Ambient) Start(ctx context.Context) error {
	if a.rec == nil {
		return ErrUnsupported
	}
	a.mu.Lock()
	if a.listening {
		a.mu.Unlock()
		return nil
	}
	a.listening = true
	gen := a.gen
	a.mu.Unlock()

	results, err := a.rec.Start(ctx)
	if err != nil {
		a.mu.Lock()
		a.listening = false
		a.mu.Unlock()
		return err
	}
	go a.drain(ctx, results, gen)
	return nil
}

func (a *Ambient) drain(ctx context.Context, results <-chan Result, gen uint64) {
	for r := range results {
		a.mu.Lock()
		stale := a.gen != gen || !a.listening
		a.mu.Unlock()
		if stale {
			return
		}
		if r.Final {
			if a.hooks.Final != nil && r.Text != "" {
				a.hooks.Final(r.Text)
			}
		} else if a.hooks.Interim != nil {
			a.hooks.Interim(r.Text)
		}
	}

	// Channel closed. Restart if we are still supposed to be listening.
	a.mu.Lock()
	restart := a.listening && a.gen == gen
	a.mu.Unlock()
	if !restart || ctx.Err() != nil {
		return
	}
	next, err := a.rec.Start(ctx)
	if err != nil {
		log.Printf("capture: ambient recognizer restart failed: %v", err)
		a.mu.Lock()
		a.listening = false
		a.mu.Unlock()
		return
	}
	a.drain(ctx, next, gen)
}

func (a *Ambient) Stop() {
	if a.rec == nil {
		return
	}
	a.mu.Lock()
	if !a.listening {
		a.mu.Unlock()
		return
	}
	a.listening = false
	a.gen++
	a.mu.Unlock()
	a.rec.Stop()
}
