package core

import "github.com/veloramarket/velora-chat/internal/proto"

// Client is a connected chat participant as seen by the hub.
type Client struct {
	// ID identifies the connection; UserID identifies the account.
	ID     string
	UserID string
	Name   string
	Roles  []string

	Commands chan proto.Command
	Events   chan proto.Event

	// quit is closed when the hub forgets the client; the pump and the
	// transport's read loop select on it so they never outlive it.
	quit chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(connID, userID, name string) *Client {
	if name == "" {
		name = userID
	}
	return &Client{
		ID:       connID,
		UserID:   userID,
		Name:     name,
		Commands: make(chan proto.Command, 8),
		Events:   make(chan proto.Event, 8),
		quit:     make(chan struct{}),
	}
}

// Done is closed once the client has been unregistered from the hub.
func (c *Client) Done() <-chan struct{} {
	return c.quit
}

// send queues an event for the client, dropping it if the consumer is slow.
func (c *Client) send(ev proto.Event) {
	select {
	case c.Events <- ev:
	default:
		// Drop if slow consumer.
	}
}
