package session

import (
	"time"

	"github.com/veloramarket/velora-chat/internal/proto"
	"github.com/veloramarket/velora-chat/internal/utils"
)

// Message is a chat message as the session presents it: the wire payload
// plus ownership, computed against the session's user.
type Message struct {
	ID          string
	RoomID      string
	SenderID    string
	Content     string
	MessageType string
	Timestamp   time.Time
	Status      string
	IsOwn       bool
}

// IsLocalEcho reports whether the message is an optimistic placeholder
// that has not been confirmed by the service yet.
func (m Message) IsLocalEcho() bool {
	return utils.IsLocalMessageID(m.ID)
}

func fromPayload(p proto.MessagePayload, ownUserID string) Message {
	return Message{
		ID:          p.ID,
		RoomID:      p.RoomID,
		SenderID:    p.SenderID,
		Content:     p.Content,
		MessageType: p.MessageType,
		Timestamp:   p.Timestamp,
		Status:      p.Status,
		IsOwn:       ownUserID != "" && p.SenderID == ownUserID,
	}
}
