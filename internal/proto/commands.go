package proto

import (
	"encoding/json"
	"fmt"
)

// Command is a client-to-server frame.
type Command interface {
	CommandType() string
}

// JoinRoomCommand asks the service to join (creating if needed) the
// two-party room for the given contact. RoomID carries the client-derived
// provisional key; the service answers with the authoritative id.
type JoinRoomCommand struct {
	RoomID      string `json:"roomId"`
	ContactID   string `json:"contactId"`
	ContactName string `json:"contactName,omitempty"`
}

// LeaveRoomCommand leaves a room.
type LeaveRoomCommand struct {
	RoomID string `json:"roomId"`
}

// SendMessageCommand publishes a chat message to a room. MessageID is the
// client-chosen id shared with the REST persistence write, so the two
// halves of a send store a single row.
type SendMessageCommand struct {
	RoomID      string `json:"roomId"`
	MessageID   string `json:"messageId,omitempty"`
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
}

// TypingCommand reports the local typing state for a room.
type TypingCommand struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// MarkReadCommand marks messages in a room as read.
type MarkReadCommand struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
}

// RequestAvailableRoomsCommand asks for the caller's existing rooms.
type RequestAvailableRoomsCommand struct{}

// RequestOnlineUsersCommand asks for the currently online users; the
// service answers with one user_online event per user.
type RequestOnlineUsersCommand struct{}

func (*JoinRoomCommand) CommandType() string              { return CmdJoinRoom }
func (*LeaveRoomCommand) CommandType() string             { return CmdLeaveRoom }
func (*SendMessageCommand) CommandType() string           { return CmdSendMessage }
func (*TypingCommand) CommandType() string                { return CmdTyping }
func (*MarkReadCommand) CommandType() string              { return CmdMarkRead }
func (*RequestAvailableRoomsCommand) CommandType() string { return CmdRequestAvailableRooms }
func (*RequestOnlineUsersCommand) CommandType() string    { return CmdRequestOnlineUsers }

// EncodeCommand serializes an outbound command with its type tag.
func EncodeCommand(cmd Command) ([]byte, error) {
	return encodeTagged(cmd.CommandType(), cmd)
}

// DecodeCommand parses a client frame on the service side.
func DecodeCommand(data []byte) (Command, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var cmd Command
	switch env.Type {
	case CmdJoinRoom:
		cmd = &JoinRoomCommand{}
	case CmdLeaveRoom:
		cmd = &LeaveRoomCommand{}
	case CmdSendMessage:
		cmd = &SendMessageCommand{}
	case CmdTyping:
		cmd = &TypingCommand{}
	case CmdMarkRead:
		cmd = &MarkReadCommand{}
	case CmdRequestAvailableRooms:
		cmd = &RequestAvailableRoomsCommand{}
	case CmdRequestOnlineUsers:
		cmd = &RequestOnlineUsersCommand{}
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrMalformed, env.Type)
	}

	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return cmd, nil
}

// encodeTagged flattens v into a JSON object and injects the type
// discriminator alongside its fields.
func encodeTagged(typ string, v any) ([]byte, error) {
	if u, ok := v.(*UnknownEvent); ok {
		return u.Raw, nil
	}

	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	fields["type"] = json.RawMessage(fmt.Sprintf("%q", typ))
	return json.Marshal(fields)
}
