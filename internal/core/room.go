package core

import "github.com/veloramarket/velora-chat/internal/proto"

// Room groups the clients currently joined to a two-party channel. ID is
// the server-assigned identifier; DirectKey is the canonical sorted pair of
// participant user ids, kept so commands addressed by either name resolve
// to the same room.
type Room struct {
	ID        string
	DirectKey string
	clients   map[*Client]struct{}
}

// NewRoom constructs a room with no joined clients.
func NewRoom(id, directKey string) *Room {
	return &Room{
		ID:        id,
		DirectKey: directKey,
		clients:   make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Has reports whether the client is joined.
func (r *Room) Has(c *Client) bool {
	_, ok := r.clients[c]
	return ok
}

// Broadcast sends an event to all joined clients.
func (r *Room) Broadcast(ev proto.Event) {
	for client := range r.clients {
		client.send(ev)
	}
}

// BroadcastExcept sends an event to all joined clients except one.
func (r *Room) BroadcastExcept(ev proto.Event, skip *Client) {
	for client := range r.clients {
		if client == skip {
			continue
		}
		client.send(ev)
	}
}

// Empty returns true if no clients are joined.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
