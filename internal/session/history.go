package session

import (
	"context"
	"net/http"

	"github.com/veloramarket/velora-chat/internal/auth"
	"github.com/veloramarket/velora-chat/internal/proto"
)

// History fetches a room's persisted messages. Ownership of each entry is
// computed against ownUserID; when that is empty the user id is recovered
// from the session token's claims instead. A failed load yields an empty
// list so the conversation opens without history rather than erroring.
func (a *API) History(ctx context.Context, roomID, ownUserID string) []Message {
	owner := a.owner(ownUserID)

	var data struct {
		RoomID   string                 `json:"roomId"`
		Messages []proto.MessagePayload `json:"messages"`
	}
	err := a.do(ctx, http.MethodGet, "/api/v1/chat/rooms/"+escapePath(roomID)+"/messages", nil, &data)
	if err != nil {
		a.log.Warn().Err(err).Str("room", roomID).Msg("history load failed")
		return []Message{}
	}

	out := make([]Message, 0, len(data.Messages))
	for _, p := range data.Messages {
		out = append(out, fromPayload(p, owner))
	}
	return out
}

// PostMessage persists a message through the REST endpoint. The id is the
// one already sent over the socket, so the service stores a single row no
// matter which write lands first.
func (a *API) PostMessage(ctx context.Context, roomID, id, content, messageType string) (Message, error) {
	req := struct {
		ID          string `json:"id,omitempty"`
		Content     string `json:"content"`
		MessageType string `json:"messageType,omitempty"`
	}{ID: id, Content: content, MessageType: messageType}

	var data struct {
		Message proto.MessagePayload `json:"message"`
	}
	err := a.do(ctx, http.MethodPost, "/api/v1/chat/rooms/"+escapePath(roomID)+"/messages", req, &data)
	if err != nil {
		return Message{}, err
	}
	return fromPayload(data.Message, a.owner("")), nil
}

func (a *API) owner(ownUserID string) string {
	if ownUserID != "" {
		return ownUserID
	}
	id, err := auth.UserIDFromToken(a.token)
	if err != nil {
		a.log.Debug().Err(err).Msg("cannot recover user id from token")
		return ""
	}
	return id
}
