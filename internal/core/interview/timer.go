package interview

import (
	"sync"
	"time"
)

// Timer counts a session down one second at a time. It never reports a
// negative value; hitting zero stops the timer and fires onExpire exactly
// once. Stop is safe from any exit path, repeatedly.
type Timer struct {
	mu        sync.Mutex
	remaining int
	stopped   bool
	stopCh    chan struct{}
	onTick    func(remaining int)
	onExpire  func()
}

func NewTimer(seconds int, onTick func(int), onExpire func()) *Timer {
	if seconds < 0 {
		seconds = 0
	}
	return &Timer{
		remaining: seconds,
		stopCh:    make(chan struct{}),
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

func (t *Timer) Start() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if t.tick() {
					return
				}
			case <-t.stopCh:
				return
			}
		}
	}()
}

// tick decrements once and reports whether the timer is done.
func (t *Timer) tick() bool {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return true
	}
	if t.remaining > 0 {
		t.remaining--
	}
	remaining := t.remaining
	expired := remaining == 0
	if expired {
		t.stopped = true
		close(t.stopCh)
	}
	t.mu.Unlock()

	if t.onTick != nil {
		t.onTick(remaining)
	}
	if expired && t.onExpire != nil {
		t.onExpire()
	}
	return expired
}

func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.stopCh)
}
