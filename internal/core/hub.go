package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	logpkg "github.com/veloramarket/velora-chat/internal/log"
	"github.com/veloramarket/velora-chat/internal/proto"
	"github.com/veloramarket/velora-chat/internal/store"
	"github.com/veloramarket/velora-chat/internal/utils"
)

type clientCommand struct {
	client *Client
	cmd    proto.Command
}

// Hub coordinates rooms, message fan-out and presence for all connected
// clients. All state mutation happens on the Run goroutine; transports only
// talk to it through channels.
type Hub struct {
	store store.Store // nil disables persistence (tests)
	log   *zerolog.Logger

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand

	clients    map[*Client]struct{}
	byUser     map[string]*Client
	rooms      map[string]*Room // by server-assigned id
	roomsByKey map[string]*Room // by canonical direct key
}

// NewHub creates a hub. The store may be nil, in which case rooms and
// messages live only in memory.
func NewHub(st store.Store, logger *zerolog.Logger) *Hub {
	if logger == nil {
		logger = logpkg.Nop()
	}
	return &Hub{
		store:      st,
		log:        logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 64),
		clients:    make(map[*Client]struct{}),
		byUser:     make(map[string]*Client),
		rooms:      make(map[string]*Room),
		roomsByKey: make(map[string]*Room),
	}
}

// RegisterClient announces a new connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient removes a connection from the hub.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.handleRegister(ctx, c)
			go h.pump(ctx, c)
		case c := <-h.unregister:
			h.handleUnregister(ctx, c)
		case cc := <-h.commands:
			if _, known := h.clients[cc.client]; !known {
				continue
			}
			h.handleCommand(ctx, cc.client, cc.cmd)
		}
	}
}

// pump forwards one client's commands into the hub loop until the client
// is unregistered.
func (h *Hub) pump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.quit:
			return
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-c.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	h.clients[c] = struct{}{}
	h.byUser[c.UserID] = c

	if h.store != nil {
		if err := h.store.SetUserOnline(ctx, c.UserID, true); err != nil {
			h.log.Warn().Err(err).Str("user_id", c.UserID).Msg("failed to persist online flag")
		}
	}

	c.send(&proto.ConnectionEvent{UserID: c.UserID})

	online := &proto.UserOnlineEvent{User: proto.Participant{ID: c.UserID, Name: c.Name, Roles: c.Roles}}
	for other := range h.clients {
		if other != c {
			other.send(online)
		}
	}

	h.log.Info().Str("user_id", c.UserID).Str("conn_id", c.ID).Msg("client registered")
}

func (h *Hub) handleUnregister(ctx context.Context, c *Client) {
	if _, known := h.clients[c]; !known {
		return
	}
	delete(h.clients, c)
	close(c.quit)
	if h.byUser[c.UserID] == c {
		delete(h.byUser, c.UserID)
	}

	for id, room := range h.rooms {
		if room.RemoveClient(c) && room.Empty() {
			delete(h.rooms, id)
			delete(h.roomsByKey, room.DirectKey)
		}
	}

	// Presence is pushed only when the user's last connection goes away.
	if _, still := h.byUser[c.UserID]; still {
		return
	}

	if h.store != nil {
		if err := h.store.SetUserOnline(ctx, c.UserID, false); err != nil {
			h.log.Warn().Err(err).Str("user_id", c.UserID).Msg("failed to persist offline flag")
		}
	}

	offline := &proto.UserOfflineEvent{User: proto.Participant{ID: c.UserID, Name: c.Name}}
	for other := range h.clients {
		other.send(offline)
	}

	h.log.Info().Str("user_id", c.UserID).Str("conn_id", c.ID).Msg("client unregistered")
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd proto.Command) {
	switch cmd := cmd.(type) {
	case *proto.JoinRoomCommand:
		h.joinRoom(ctx, c, cmd)
	case *proto.LeaveRoomCommand:
		h.leaveRoom(c, cmd)
	case *proto.SendMessageCommand:
		h.sendMessage(ctx, c, cmd)
	case *proto.TypingCommand:
		h.relayTyping(c, cmd)
	case *proto.MarkReadCommand:
		h.relayMarkRead(c, cmd)
	case *proto.RequestAvailableRoomsCommand:
		h.listAvailableRooms(ctx, c)
	case *proto.RequestOnlineUsersCommand:
		h.listOnlineUsers(c)
	default:
		c.send(&proto.ErrorEvent{Code: ErrCodeBadRequest, Message: "unsupported command"})
	}
}

func (h *Hub) joinRoom(ctx context.Context, c *Client, cmd *proto.JoinRoomCommand) {
	if cmd.ContactID == "" {
		c.send(&proto.ErrorEvent{Code: ErrCodeBadRequest, Message: "contactId is required"})
		return
	}

	// The key is derived server-side; the client's provisional roomId is
	// advisory only.
	key := proto.DirectKey(c.UserID, cmd.ContactID)

	room, ok := h.roomsByKey[key]
	if !ok {
		id, err := h.roomID(ctx, key, c.UserID, cmd.ContactID)
		if err != nil {
			h.log.Error().Err(err).Str("direct_key", key).Msg("failed to create room")
			c.send(&proto.ErrorEvent{Code: ErrCodeStorage, Message: "failed to create room"})
			return
		}
		room = NewRoom(id, key)
		h.rooms[id] = room
		h.roomsByKey[key] = room
	}

	room.AddClient(c)

	c.send(&proto.RoomJoinedEvent{RoomID: room.ID, DirectKey: key})
	room.BroadcastExcept(&proto.UserJoinedEvent{RoomID: room.ID, UserID: c.UserID, UserName: c.Name}, c)

	// Tell the counterpart a conversation now exists, whether or not they
	// have the room open.
	if counterpart, online := h.byUser[cmd.ContactID]; online {
		counterpart.send(&proto.RoomAvailableEvent{
			RoomID:      room.ID,
			DirectKey:   key,
			Initiator:   proto.Participant{ID: c.UserID, Name: c.Name, Roles: c.Roles},
			Participant: proto.Participant{ID: cmd.ContactID, Name: cmd.ContactName},
			Timestamp:   time.Now().UTC(),
		})
	}

	h.log.Debug().Str("user_id", c.UserID).Str("room_id", room.ID).Msg("joined room")
}

// roomID returns the persistent id for a direct room, creating the record
// when a store is attached.
func (h *Hub) roomID(ctx context.Context, key, userA, userB string) (string, error) {
	if h.store == nil {
		return uuid.NewString(), nil
	}
	room, err := h.store.CreateDirectRoom(ctx, key, userA, userB)
	if err != nil {
		return "", err
	}
	return room.ID, nil
}

func (h *Hub) leaveRoom(c *Client, cmd *proto.LeaveRoomCommand) {
	room := h.resolveRoom(cmd.RoomID)
	if room == nil {
		c.send(&proto.ErrorEvent{Code: ErrCodeRoomNotFound, Message: "room not found"})
		return
	}
	if !room.RemoveClient(c) {
		c.send(&proto.ErrorEvent{Code: ErrCodeNotInRoom, Message: "not in room"})
		return
	}
	if room.Empty() {
		delete(h.rooms, room.ID)
		delete(h.roomsByKey, room.DirectKey)
	}
	h.log.Debug().Str("user_id", c.UserID).Str("room_id", room.ID).Msg("left room")
}

func (h *Hub) sendMessage(ctx context.Context, c *Client, cmd *proto.SendMessageCommand) {
	room := h.resolveRoom(cmd.RoomID)
	if room == nil || !room.Has(c) {
		c.send(&proto.ErrorEvent{Code: ErrCodeNotInRoom, Message: "join the room before sending"})
		return
	}
	if cmd.Content == "" {
		c.send(&proto.ErrorEvent{Code: ErrCodeBadRequest, Message: "content is required"})
		return
	}

	// The client sends the same id through the REST persistence write;
	// keeping it makes the second insert a no-op and lets the sender's
	// session dedup the broadcast against reloaded history.
	id := cmd.MessageID
	if id == "" || utils.IsLocalMessageID(id) {
		id = uuid.NewString()
	}

	msg := &store.Message{
		ID:          id,
		RoomID:      room.ID,
		SenderID:    c.UserID,
		Content:     cmd.Content,
		MessageType: cmd.MessageType,
		Status:      proto.StatusSent,
		CreatedAt:   time.Now().UTC(),
	}

	if h.store != nil {
		if err := h.store.SaveMessage(ctx, msg); err != nil {
			// Fan-out still happens; the REST persistence path is the
			// client's second write.
			h.log.Error().Err(err).Str("room_id", room.ID).Msg("failed to persist message")
		}
	}

	// The sender gets the echo too; its session reconciles the local copy.
	room.Broadcast(&proto.NewMessageEvent{Message: proto.MessagePayload{
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		Timestamp:   msg.CreatedAt,
		Status:      msg.Status,
	}})
}

func (h *Hub) relayTyping(c *Client, cmd *proto.TypingCommand) {
	room := h.resolveRoom(cmd.RoomID)
	if room == nil || !room.Has(c) {
		return
	}
	room.BroadcastExcept(&proto.TypingEvent{RoomID: room.ID, UserID: c.UserID, IsTyping: cmd.IsTyping}, c)
}

func (h *Hub) relayMarkRead(c *Client, cmd *proto.MarkReadCommand) {
	room := h.resolveRoom(cmd.RoomID)
	if room == nil || !room.Has(c) {
		return
	}
	room.BroadcastExcept(&proto.MessagesReadEvent{RoomID: room.ID, ReaderID: c.UserID, MessageIDs: cmd.MessageIDs}, c)
}

func (h *Hub) listAvailableRooms(ctx context.Context, c *Client) {
	if h.store == nil {
		c.send(&proto.AvailableRoomsListEvent{Rooms: []proto.RoomSummary{}})
		return
	}

	rooms, err := h.store.ListRoomsForUser(ctx, c.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", c.UserID).Msg("failed to list rooms")
		c.send(&proto.ErrorEvent{Code: ErrCodeStorage, Message: "failed to list rooms"})
		return
	}

	summaries := make([]proto.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary := proto.RoomSummary{
			RoomID:    room.ID,
			DirectKey: room.DirectKey,
			Participants: []proto.Participant{
				h.participant(ctx, room.UserAID),
				h.participant(ctx, room.UserBID),
			},
			CreatedAt: room.CreatedAt,
		}
		if latest, err := h.store.LatestMessage(ctx, room.ID); err == nil {
			summary.LastMessage = &proto.MessagePayload{
				ID:        latest.ID,
				RoomID:    latest.RoomID,
				SenderID:  latest.SenderID,
				Content:   latest.Content,
				Timestamp: latest.CreatedAt,
				Status:    latest.Status,
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			h.log.Warn().Err(err).Str("room_id", room.ID).Msg("failed to load last message")
		}
		summaries = append(summaries, summary)
	}

	c.send(&proto.AvailableRoomsListEvent{Rooms: summaries})
}

func (h *Hub) participant(ctx context.Context, userID string) proto.Participant {
	p := proto.Participant{ID: userID}
	if h.store == nil {
		return p
	}
	if user, err := h.store.GetUserByID(ctx, userID); err == nil {
		p.Name = user.Name
		p.Roles = user.Roles
	}
	return p
}

func (h *Hub) listOnlineUsers(c *Client) {
	for other := range h.clients {
		if other == c {
			continue
		}
		c.send(&proto.UserOnlineEvent{User: proto.Participant{ID: other.UserID, Name: other.Name, Roles: other.Roles}})
	}
}

// resolveRoom accepts either a server-assigned room id or a canonical
// direct key; clients that have not yet seen room_joined still address the
// room by its provisional name.
func (h *Hub) resolveRoom(name string) *Room {
	if room, ok := h.rooms[name]; ok {
		return room
	}
	if room, ok := h.roomsByKey[name]; ok {
		return room
	}
	return nil
}
