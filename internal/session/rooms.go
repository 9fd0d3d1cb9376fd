package session

import (
	"context"

	"github.com/veloramarket/velora-chat/internal/proto"
)

// RoomPhase is the lifecycle of the active room.
type RoomPhase int

const (
	RoomUnjoined RoomPhase = iota
	RoomJoining
	RoomJoined
	RoomLeaving
)

func (p RoomPhase) String() string {
	switch p {
	case RoomUnjoined:
		return "unjoined"
	case RoomJoining:
		return "joining"
	case RoomJoined:
		return "joined"
	case RoomLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// RoomInfo describes the active room. ID starts as the provisional direct
// key derived from the two participants and becomes the service-assigned
// id once the join is confirmed; DirectKey keeps the provisional name for
// matching confirmations and broadcasts that still use it.
type RoomInfo struct {
	Phase       RoomPhase
	ID          string
	DirectKey   string
	ContactID   string
	ContactName string
}

// SelectRoom switches the conversation to the given contact. The previous
// room is left, the message list is cleared, and a join is sent under the
// provisional key. History is loaded immediately under that key and again
// once the service confirms the join with the authoritative room id.
func (c *Chat) SelectRoom(ctx context.Context, contactID, contactName string) error {
	c.mu.Lock()
	if c.room.Phase == RoomJoined && c.room.ContactID == contactID {
		c.mu.Unlock()
		return nil
	}

	var leave *proto.LeaveRoomCommand
	if c.room.Phase == RoomJoined || c.room.Phase == RoomJoining {
		c.room.Phase = RoomLeaving
		leave = &proto.LeaveRoomCommand{RoomID: c.room.ID}
	}

	key := proto.DirectKey(c.userID, contactID)
	c.room = RoomInfo{
		Phase:       RoomJoining,
		ID:          key,
		DirectKey:   key,
		ContactID:   contactID,
		ContactName: contactName,
	}
	c.rec.clear()
	c.peerTyping = make(map[string]bool)
	c.mu.Unlock()

	c.typing.Stop()

	if leave != nil {
		if err := c.sess.Send(ctx, leave); err != nil {
			c.log.Warn().Err(err).Str("room", leave.RoomID).Msg("leave failed")
		}
	}

	err := c.sess.Send(ctx, &proto.JoinRoomCommand{
		RoomID:      key,
		ContactID:   contactID,
		ContactName: contactName,
	})
	if err != nil {
		return err
	}

	// First load under the provisional key; the service answers an unknown
	// room with an empty history, so this is cheap when the room is new.
	go c.loadHistory(key, key)
	c.notify()
	return nil
}

// LeaveRoom leaves the active room and clears the conversation view.
func (c *Chat) LeaveRoom(ctx context.Context) error {
	c.mu.Lock()
	if c.room.Phase == RoomUnjoined {
		c.mu.Unlock()
		return nil
	}
	roomID := c.room.ID
	c.room = RoomInfo{}
	c.rec.clear()
	c.peerTyping = make(map[string]bool)
	c.mu.Unlock()

	c.typing.Stop()
	c.notify()
	return c.sess.Send(ctx, &proto.LeaveRoomCommand{RoomID: roomID})
}

// onRoomJoined handles the join confirmation. The echoed direct key is
// matched against the active room; a confirmation for a room the user has
// already navigated away from is dropped. On a match the service-assigned
// id replaces the provisional one and history is reloaded under it.
func (c *Chat) onRoomJoined(ev *proto.RoomJoinedEvent) {
	c.mu.Lock()
	if c.room.Phase == RoomUnjoined || c.room.DirectKey != ev.DirectKey {
		c.mu.Unlock()
		c.log.Debug().Str("direct_key", ev.DirectKey).Msg("dropping stale join confirmation")
		return
	}
	c.room.ID = ev.RoomID
	c.room.Phase = RoomJoined
	key := c.room.DirectKey
	c.mu.Unlock()

	c.log.Info().Str("room_id", ev.RoomID).Msg("room joined")
	go c.loadHistory(ev.RoomID, key)
	c.notify()
}

// loadHistory fetches messages for roomName and merges them in, unless
// the active room changed while the request was in flight.
func (c *Chat) loadHistory(roomName, directKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectWaitTimeout)
	defer cancel()

	messages := c.api.History(ctx, roomName, c.userID)

	c.mu.Lock()
	if c.room.DirectKey != directKey {
		c.mu.Unlock()
		c.log.Debug().Str("room", roomName).Msg("discarding stale history load")
		return
	}
	c.rec.applyHistory(messages)
	c.mu.Unlock()
	c.notify()
}
