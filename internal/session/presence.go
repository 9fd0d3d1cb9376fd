package session

import (
	"sync"

	"github.com/veloramarket/velora-chat/internal/proto"
)

// presence tracks which users the service reports as online. The service
// is the only writer: a local disconnect leaves the last known state in
// place rather than guessing everyone went offline.
type presence struct {
	mu     sync.RWMutex
	online map[string]proto.Participant
}

func newPresence() *presence {
	return &presence{online: make(map[string]proto.Participant)}
}

func (p *presence) setOnline(u proto.Participant) {
	p.mu.Lock()
	p.online[u.ID] = u
	p.mu.Unlock()
}

func (p *presence) setOffline(userID string) {
	p.mu.Lock()
	delete(p.online, userID)
	p.mu.Unlock()
}

func (p *presence) isOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

func (p *presence) snapshot() []proto.Participant {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]proto.Participant, 0, len(p.online))
	for _, u := range p.online {
		out = append(out, u)
	}
	return out
}
