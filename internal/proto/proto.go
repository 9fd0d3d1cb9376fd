// Package proto defines the JSON wire protocol spoken between the chat
// session and the room/presence service. Every frame is a flat envelope
// with a "type" discriminator and kind-specific fields.
package proto

import "time"

// Server-to-client event types.
const (
	EventConnection         = "connection"
	EventRoomJoined         = "room_joined"
	EventNewMessage         = "new_message"
	EventUserJoined         = "user_joined"
	EventTyping             = "typing"
	EventMessagesRead       = "messages_read"
	EventRoomAvailable      = "room_available"
	EventAvailableRoomsList = "available_rooms_list"
	EventUserOnline         = "user_online"
	EventUserOffline        = "user_offline"
	EventError              = "error"
)

// Client-to-server command types.
const (
	CmdJoinRoom              = "join_room"
	CmdLeaveRoom             = "leave_room"
	CmdSendMessage           = "send_message"
	CmdTyping                = "typing"
	CmdMarkRead              = "mark_read"
	CmdRequestAvailableRooms = "request_available_rooms"
	CmdRequestOnlineUsers    = "request_online_users"
)

// Delivery status values carried on the wire.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// DirectKey derives the canonical two-party room key from the sorted pair
// of participant ids. Both the session (provisional room id) and the
// service (room dedup) derive it; the two must agree.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// MessagePayload is a chat message as it appears on the wire.
type MessagePayload struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	SenderID    string    `json:"senderId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status,omitempty"`
}

// Participant identifies one side of a two-party room.
type Participant struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// RoomSummary describes an existing room in an available_rooms_list event.
type RoomSummary struct {
	RoomID       string          `json:"roomId"`
	DirectKey    string          `json:"directKey"`
	Participants []Participant   `json:"participants"`
	LastMessage  *MessagePayload `json:"lastMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
