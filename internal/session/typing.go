package session

import (
	"sync"
	"time"
)

// typingNotifier debounces the local typing indicator. The first
// keystroke announces typing; the announcement is withdrawn after a quiet
// period with no further input, or immediately when the draft is cleared.
type typingNotifier struct {
	quiet time.Duration
	send  func(isTyping bool)

	mu     sync.Mutex
	active bool
	timer  *time.Timer
}

func newTypingNotifier(quiet time.Duration, send func(isTyping bool)) *typingNotifier {
	return &typingNotifier{quiet: quiet, send: send}
}

// Input reports the current draft text. Non-empty input starts or extends
// the typing announcement; empty input withdraws it at once.
func (t *typingNotifier) Input(draft string) {
	if draft == "" {
		t.Stop()
		return
	}

	t.mu.Lock()
	wasActive := t.active
	t.active = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.quiet, t.expire)
	t.mu.Unlock()

	if !wasActive {
		t.send(true)
	}
}

func (t *typingNotifier) expire() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.timer = nil
	t.mu.Unlock()

	t.send(false)
}

// Stop withdraws the typing announcement immediately, if one is active.
func (t *typingNotifier) Stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.send(false)
}
