package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned when an inbound frame cannot be decoded. The
// receive loop logs it and drops the frame; it never tears the stream down.
var ErrMalformed = errors.New("malformed frame")

// Event is a decoded server-to-client frame. The concrete types below form
// a closed set over the recognized event kinds; frames with an unrecognized
// type decode to *UnknownEvent.
type Event interface {
	EventType() string
}

// ConnectionEvent confirms the connection is established and authenticated.
type ConnectionEvent struct {
	UserID string `json:"userId"`
}

// RoomJoinedEvent carries the server-assigned room id. DirectKey echoes the
// canonical key of the join request so the session can match confirmations
// against the room it currently has selected.
type RoomJoinedEvent struct {
	RoomID    string `json:"roomId"`
	DirectKey string `json:"directKey"`
}

// NewMessageEvent delivers a chat message to room participants, including
// the sender's own connection.
type NewMessageEvent struct {
	Message MessagePayload `json:"message"`
}

// UserJoinedEvent notifies room participants that a user joined the room.
type UserJoinedEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// TypingEvent relays a typing indicator to the other room participant.
type TypingEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// MessagesReadEvent notifies that the counterpart read messages in a room.
type MessagesReadEvent struct {
	RoomID     string   `json:"roomId"`
	ReaderID   string   `json:"readerId"`
	MessageIDs []string `json:"messageIds"`
}

// RoomAvailableEvent announces that a room now exists between two users.
type RoomAvailableEvent struct {
	RoomID      string      `json:"roomId"`
	DirectKey   string      `json:"directKey"`
	Initiator   Participant `json:"initiator"`
	Participant Participant `json:"participant"`
	Timestamp   time.Time   `json:"timestamp"`
}

// AvailableRoomsListEvent answers a request_available_rooms command.
type AvailableRoomsListEvent struct {
	Rooms []RoomSummary `json:"rooms"`
}

// UserOnlineEvent marks a contact online.
type UserOnlineEvent struct {
	User Participant `json:"user"`
}

// UserOfflineEvent marks a contact offline.
type UserOfflineEvent struct {
	User Participant `json:"user"`
}

// ErrorEvent carries a protocol-level error from the service.
type ErrorEvent struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// UnknownEvent is the forward-compatible fallback for unrecognized types.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (*ConnectionEvent) EventType() string         { return EventConnection }
func (*RoomJoinedEvent) EventType() string         { return EventRoomJoined }
func (*NewMessageEvent) EventType() string         { return EventNewMessage }
func (*UserJoinedEvent) EventType() string         { return EventUserJoined }
func (*TypingEvent) EventType() string             { return EventTyping }
func (*MessagesReadEvent) EventType() string       { return EventMessagesRead }
func (*RoomAvailableEvent) EventType() string      { return EventRoomAvailable }
func (*AvailableRoomsListEvent) EventType() string { return EventAvailableRoomsList }
func (*UserOnlineEvent) EventType() string         { return EventUserOnline }
func (*UserOfflineEvent) EventType() string        { return EventUserOffline }
func (*ErrorEvent) EventType() string              { return EventError }
func (e *UnknownEvent) EventType() string          { return e.Type }

// DecodeEvent parses an inbound frame into its typed event.
func DecodeEvent(data []byte) (Event, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	var ev Event
	switch env.Type {
	case EventConnection:
		ev = &ConnectionEvent{}
	case EventRoomJoined:
		ev = &RoomJoinedEvent{}
	case EventNewMessage:
		ev = &NewMessageEvent{}
	case EventUserJoined:
		ev = &UserJoinedEvent{}
	case EventTyping:
		ev = &TypingEvent{}
	case EventMessagesRead:
		ev = &MessagesReadEvent{}
	case EventRoomAvailable:
		ev = &RoomAvailableEvent{}
	case EventAvailableRoomsList:
		ev = &AvailableRoomsListEvent{}
	case EventUserOnline:
		ev = &UserOnlineEvent{}
	case EventUserOffline:
		ev = &UserOfflineEvent{}
	case EventError:
		ev = &ErrorEvent{}
	default:
		return &UnknownEvent{Type: env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return ev, nil
}

// EncodeEvent serializes a server-to-client event with its type tag.
func EncodeEvent(ev Event) ([]byte, error) {
	return encodeTagged(ev.EventType(), ev)
}
