package synth

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"sync"
)

var ErrNoAudio = errors.New("synth: no audio produced")

// Remote is the primary synthesis provider, returning raw wav bytes.
type Remote interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player delivers synthesized audio to the output device. A play error is a
// tier failure, not a session failure.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// Native is the platform's built-in text-to-speech facility, the second
// tier of the fallback chain.
type Native interface {
	Available() bool
	Speak(ctx context.Context, text string) error
}

// Hooks surface speaking state transitions. Nil funcs are skipped.
type Hooks struct {
	Speaking func(bool)
}

// Synthesizer runs the cascading text-to-speech chain: remote provider,
// then native speech, then silence. At most one utterance is live; starting
// a new one cancels the previous one first.
type Synthesizer struct {
	remote Remote
	player Player
	native Native
	hooks  Hooks

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

func New(remote Remote, player Player, native Native, hooks Hooks) *Synthesizer {
	return &Synthesizer{remote: remote, player: player, native: native, hooks: hooks}
}

// Speak starts a best-effort utterance for text. It returns immediately;
// every failure path inside the chain degrades silently.
func (s *Synthesizer) Speak(ctx context.Context, text string) {
	text = TruncateForSpeech(text)
	if strings.TrimSpace(text) == "" {
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, cancel, gen, text)
}

func (s *Synthesizer) run(ctx context.Context, cancel context.CancelFunc, gen uint64, text string) {
	defer cancel()
	s.setSpeaking(gen, true)
	defer s.setSpeaking(gen, false)

	if err := s.speakRemote(ctx, text); err == nil {
		return
	} else if ctx.Err() != nil {
		return
	} else {
		log.Printf("synth: remote tier failed: %v", err)
	}

	if s.native != nil && s.native.Available() {
		if err := s.native.Speak(ctx, text); err != nil {
			log.Printf("synth: native tier failed: %v", err)
		}
		return
	}
	// No tier available: an utterance is best-effort, drop it silently.
}

func (s *Synthesizer) speakRemote(ctx context.Context, text string) error {
	if s.remote == nil {
		return ErrNoAudio
	}
	wav, err := s.remote.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if len(wav) == 0 {
		return ErrNoAudio
	}
	if s.player == nil {
		return ErrNoAudio
	}
	return s.player.Play(ctx, wav)
}

// Cancel silences the current utterance, if any. Safe to call repeatedly;
// invoked from every session exit path.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.gen++
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if s.hooks.Speaking != nil {
		s.hooks.Speaking(false)
	}
}

func (s *Synthesizer) setSpeaking(gen uint64, on bool) {
	s.mu.Lock()
	current := s.gen == gen
	s.mu.Unlock()
	if current && s.hooks.Speaking != nil {
		s.hooks.Speaking(on)
	}
}

var (
	questionSpanRe = regexp.MustCompile(`[^.!?]*\?`)
	sentenceRe     = regexp.MustCompile(`^([^.!?]*[.!?]){1,2}`)
)

// TruncateForSpeech bounds long replies before synthesis: prefer the first
// question, then the first sentence or two, then a hard cut.
func TruncateForSpeech(text string) string {
	if len(text) <= 500 {
		return text
	}
	if m := questionSpanRe.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	if m := sentenceRe.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return text[:200] + "..."
}

// RemoteFunc adapts a function to the Remote interface.
type RemoteFunc func(ctx context.Context, text string) ([]byte, error)

func (f RemoteFunc) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f(ctx, text)
}

// PlayerFunc adapts a function to the Player interface.
type PlayerFunc func(ctx context.Context, wav []byte) error

func (f PlayerFunc) Play(ctx context.Context, wav []byte) error { return f(ctx, wav) }
