package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/veloramarket/velora-chat/internal/config"
	"github.com/veloramarket/velora-chat/internal/proto"
	"github.com/veloramarket/velora-chat/internal/utils"
)

// Chat is the high-level chat client: it owns a Session, tracks the
// active room and its messages, and keeps presence, typing, and the
// conversation list current from service events.
type Chat struct {
	sess   *Session
	api    *API
	cfg    config.SessionConfig
	log    *zerolog.Logger
	userID string

	mu            sync.Mutex
	room          RoomInfo
	rec           reconciler
	peerTyping    map[string]bool
	conversations []proto.RoomSummary

	presence *presence
	typing   *typingNotifier
	onUpdate func()
}

// NewChat builds a chat client on top of an existing session and REST
// client. Open must be called before anything else.
func NewChat(sess *Session, api *API, cfg config.SessionConfig, logger *zerolog.Logger) *Chat {
	c := &Chat{
		sess:       sess,
		api:        api,
		cfg:        cfg,
		log:        logger,
		peerTyping: make(map[string]bool),
		presence:   newPresence(),
	}
	c.typing = newTypingNotifier(cfg.TypingQuietPeriod, c.sendTyping)
	return c
}

// SetOnUpdate registers a callback invoked whenever visible chat state
// changes. Set it before Open; it runs on session goroutines.
func (c *Chat) SetOnUpdate(fn func()) {
	c.onUpdate = fn
}

func (c *Chat) notify() {
	if c.onUpdate != nil {
		c.onUpdate()
	}
}

// Open connects the session as the given user, registers the chat's
// event handlers, and blocks until the connection is up.
func (c *Chat) Open(ctx context.Context, userID, token string) error {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()

	c.subscribe()
	c.sess.Connect(userID, token)

	if err := c.sess.WaitForConnection(ctx); err != nil {
		return err
	}
	return nil
}

// Close withdraws the typing indicator, disconnects the session, and
// drops its event handlers. Presence keeps its last known state; the
// service is the only authority on who is online.
func (c *Chat) Close() {
	c.typing.Stop()
	c.sess.Disconnect()
}

func (c *Chat) subscribe() {
	c.sess.Subscribe(proto.EventConnection, func(ev proto.Event) {
		c.onConnection(ev.(*proto.ConnectionEvent))
	})
	c.sess.Subscribe(proto.EventRoomJoined, func(ev proto.Event) {
		c.onRoomJoined(ev.(*proto.RoomJoinedEvent))
	})
	c.sess.Subscribe(proto.EventNewMessage, func(ev proto.Event) {
		c.onNewMessage(ev.(*proto.NewMessageEvent))
	})
	c.sess.Subscribe(proto.EventTyping, func(ev proto.Event) {
		c.onTyping(ev.(*proto.TypingEvent))
	})
	c.sess.Subscribe(proto.EventMessagesRead, func(ev proto.Event) {
		c.onMessagesRead(ev.(*proto.MessagesReadEvent))
	})
	c.sess.Subscribe(proto.EventRoomAvailable, func(ev proto.Event) {
		c.onRoomAvailable(ev.(*proto.RoomAvailableEvent))
	})
	c.sess.Subscribe(proto.EventAvailableRoomsList, func(ev proto.Event) {
		c.onAvailableRooms(ev.(*proto.AvailableRoomsListEvent))
	})
	c.sess.Subscribe(proto.EventUserOnline, func(ev proto.Event) {
		c.presence.setOnline(ev.(*proto.UserOnlineEvent).User)
		c.notify()
	})
	c.sess.Subscribe(proto.EventUserOffline, func(ev proto.Event) {
		c.presence.setOffline(ev.(*proto.UserOfflineEvent).User.ID)
		c.notify()
	})
	c.sess.Subscribe(proto.EventError, func(ev proto.Event) {
		e := ev.(*proto.ErrorEvent)
		c.log.Warn().Str("code", e.Code).Str("message", e.Message).Msg("service error")
	})
}

// onConnection fires on every successful open, including redials. A room
// selected before the drop is re-joined so the conversation resumes.
func (c *Chat) onConnection(ev *proto.ConnectionEvent) {
	c.log.Info().Str("user_id", ev.UserID).Msg("session ready")

	c.mu.Lock()
	room := c.room
	c.mu.Unlock()

	if room.Phase == RoomJoining || room.Phase == RoomJoined {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectWaitTimeout)
		defer cancel()
		err := c.sess.Send(ctx, &proto.JoinRoomCommand{
			RoomID:      room.DirectKey,
			ContactID:   room.ContactID,
			ContactName: room.ContactName,
		})
		if err != nil {
			c.log.Warn().Err(err).Msg("rejoin failed")
		}
	}
}

// SendMessage sends to the active room with an optimistic local echo. The
// send is written to both the socket and the REST endpoint; a persistence
// failure is logged but the echo stays visible, the service broadcast
// confirms or history reload corrects it.
func (c *Chat) SendMessage(ctx context.Context, content, messageType string) error {
	c.mu.Lock()
	if c.room.Phase != RoomJoined && c.room.Phase != RoomJoining {
		c.mu.Unlock()
		return ErrNoActiveRoom
	}
	roomID := c.room.ID
	directKey := c.room.DirectKey

	// One wire id shared by the socket command and the REST write, so the
	// service keeps a single copy and the broadcast dedups against a later
	// history reload. The placeholder keeps its local_ id until then.
	wireID := utils.NewID()
	local := Message{
		ID:          utils.NewLocalMessageID(),
		RoomID:      roomID,
		SenderID:    c.userID,
		Content:     content,
		MessageType: messageType,
		Timestamp:   time.Now(),
		Status:      proto.StatusSent,
		IsOwn:       true,
	}
	c.rec.appendLocal(local)
	c.mu.Unlock()

	c.typing.Stop()
	c.notify()

	go func() {
		postCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := c.api.PostMessage(postCtx, directKey, wireID, content, messageType); err != nil {
			c.log.Warn().Err(err).Str("room", directKey).Msg("message persistence failed")
		}
	}()

	return c.sess.Send(ctx, &proto.SendMessageCommand{
		RoomID:      roomID,
		MessageID:   wireID,
		Content:     content,
		MessageType: messageType,
	})
}

func (c *Chat) onNewMessage(ev *proto.NewMessageEvent) {
	c.mu.Lock()
	msg := fromPayload(ev.Message, c.userID)
	if c.room.Phase == RoomUnjoined ||
		(msg.RoomID != c.room.ID && msg.RoomID != c.room.DirectKey) {
		c.mu.Unlock()
		return
	}
	c.rec.applyServer(msg)
	// A message from the peer means their typing burst is over.
	if !msg.IsOwn {
		delete(c.peerTyping, msg.SenderID)
	}
	c.mu.Unlock()
	c.notify()
}

// TypingInput reports the current draft text, driving the debounced
// typing indicator for the active room.
func (c *Chat) TypingInput(draft string) {
	c.typing.Input(draft)
}

func (c *Chat) sendTyping(isTyping bool) {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room.Phase != RoomJoined && room.Phase != RoomJoining {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectWaitTimeout)
	defer cancel()
	err := c.sess.Send(ctx, &proto.TypingCommand{RoomID: room.ID, IsTyping: isTyping})
	if err != nil {
		c.log.Debug().Err(err).Msg("typing send failed")
	}
}

func (c *Chat) onTyping(ev *proto.TypingEvent) {
	c.mu.Lock()
	if ev.UserID == c.userID ||
		(ev.RoomID != c.room.ID && ev.RoomID != c.room.DirectKey) {
		c.mu.Unlock()
		return
	}
	if ev.IsTyping {
		c.peerTyping[ev.UserID] = true
	} else {
		delete(c.peerTyping, ev.UserID)
	}
	c.mu.Unlock()
	c.notify()
}

// MarkRead tells the service the given messages were read. The sender
// learns through a messages_read relay and updates its own copies.
func (c *Chat) MarkRead(ctx context.Context, messageIDs []string) error {
	c.mu.Lock()
	if c.room.Phase != RoomJoined && c.room.Phase != RoomJoining {
		c.mu.Unlock()
		return ErrNoActiveRoom
	}
	roomID := c.room.ID
	c.mu.Unlock()
	return c.sess.Send(ctx, &proto.MarkReadCommand{RoomID: roomID, MessageIDs: messageIDs})
}

func (c *Chat) onMessagesRead(ev *proto.MessagesReadEvent) {
	c.mu.Lock()
	if ev.RoomID != c.room.ID && ev.RoomID != c.room.DirectKey {
		c.mu.Unlock()
		return
	}
	c.rec.markRead(ev.MessageIDs, proto.StatusRead)
	c.mu.Unlock()
	c.notify()
}

func (c *Chat) onRoomAvailable(ev *proto.RoomAvailableEvent) {
	c.log.Info().Str("room_id", ev.RoomID).Str("from", ev.Initiator.Name).
		Msg("conversation opened by contact")

	// Refresh the conversation list; the push itself carries no history.
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectWaitTimeout)
	defer cancel()
	if err := c.sess.Send(ctx, &proto.RequestAvailableRoomsCommand{}); err != nil {
		c.log.Debug().Err(err).Msg("conversation refresh failed")
	}
}

func (c *Chat) onAvailableRooms(ev *proto.AvailableRoomsListEvent) {
	c.mu.Lock()
	c.conversations = ev.Rooms
	c.mu.Unlock()
	c.notify()
}

// RequestConversations asks the service for the caller's room list; the
// answer arrives as an available_rooms_list event.
func (c *Chat) RequestConversations(ctx context.Context) error {
	return c.sess.Send(ctx, &proto.RequestAvailableRoomsCommand{})
}

// RequestOnlineUsers asks the service to replay who is online.
func (c *Chat) RequestOnlineUsers(ctx context.Context) error {
	return c.sess.Send(ctx, &proto.RequestOnlineUsersCommand{})
}

// ListContacts fetches the user directory from the REST API.
func (c *Chat) ListContacts(ctx context.Context) ([]Contact, error) {
	return c.api.Contacts(ctx)
}

// Room returns the active room.
func (c *Chat) Room() RoomInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Messages returns a copy of the active room's message list.
func (c *Chat) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.snapshot()
}

// Conversations returns the last received room list.
func (c *Chat) Conversations() []proto.RoomSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]proto.RoomSummary, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// Online returns the users the service currently reports online.
func (c *Chat) Online() []proto.Participant {
	return c.presence.snapshot()
}

// IsOnline reports whether the service considers the user online.
func (c *Chat) IsOnline(userID string) bool {
	return c.presence.isOnline(userID)
}

// PeerTyping reports whether the contact in the active room is typing.
func (c *Chat) PeerTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peerTyping) > 0
}
