package core

import (
	"testing"
	"time"

	"github.com/veloramarket/velora-chat/internal/proto"
)

// mustEvent waits for an event of the given wire type, skipping others.
func mustEvent(t *testing.T, ch <-chan proto.Event, eventType string) proto.Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.EventType() == eventType {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event %q not received", eventType)
	return nil
}

// mustNoEvent asserts no event of the given type arrives within the window.
func mustNoEvent(t *testing.T, ch <-chan proto.Event, eventType string, window time.Duration) {
	t.Helper()

	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.EventType() == eventType {
				t.Fatalf("unexpected event %q: %+v", eventType, ev)
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}
