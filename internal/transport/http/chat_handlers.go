package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/veloramarket/velora-chat/internal/proto"
	"github.com/veloramarket/velora-chat/internal/store"
	"github.com/veloramarket/velora-chat/internal/utils"
)

// ChatHandlers serves the REST collaborator endpoints: the user directory,
// the online flag, and room message history/persistence.
type ChatHandlers struct {
	store    store.Store
	pageSize int
	log      *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(st store.Store, pageSize int, logger *zerolog.Logger) *ChatHandlers {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &ChatHandlers{store: st, pageSize: pageSize, log: logger}
}

// ContactResponse is a user directory entry.
type ContactResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
	IsOnline  bool     `json:"isOnline"`
	CreatedAt string   `json:"createdAt"`
}

// HistoryResponse wraps a room's message history.
type HistoryResponse struct {
	RoomID   string                 `json:"roomId"`
	Messages []proto.MessagePayload `json:"messages"`
}

// SetOnlineRequest flips the caller's online flag.
type SetOnlineRequest struct {
	IsOnline bool `json:"isOnline"`
}

// PostMessageRequest persists a message to a room. ID is the id the
// session already sent over the socket; reusing it keeps the two writes
// of a send down to one stored row.
type PostMessageRequest struct {
	ID          string `json:"id"`
	Content     string `json:"content" binding:"required"`
	MessageType string `json:"messageType"`
}

type apiResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ListContacts handles the user directory fetch.
// GET /api/v1/chat
func (h *ChatHandlers) ListContacts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	users, err := h.store.ListUsers(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to list contacts")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	contacts := make([]ContactResponse, 0, len(users))
	for _, u := range users {
		contacts = append(contacts, ContactResponse{
			ID:        u.ID,
			Name:      u.Name,
			Roles:     u.Roles,
			IsOnline:  u.IsOnline,
			CreatedAt: u.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, apiResponse{Success: true, Data: contacts})
}

// SetOnline handles the mark-online/offline call.
// POST /api/v1/chat/online
func (h *ChatHandlers) SetOnline(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SetOnlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.store.SetUserOnline(c.Request.Context(), userID, req.IsOnline); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to set online flag")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, apiResponse{Success: true})
}

// ListMessages handles the history fetch. The path segment accepts either a
// server-assigned room id or a provisional direct key; an unknown room
// yields an empty history rather than an error, because the session asks
// for provisional rooms before the service has confirmed them.
// GET /api/v1/chat/rooms/:roomID/messages
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	name := c.Param("roomID")
	room, err := h.resolveRoom(c, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, apiResponse{Success: true, Data: HistoryResponse{
				RoomID:   name,
				Messages: []proto.MessagePayload{},
			}})
			return
		}
		h.log.Error().Err(err).Str("room", name).Msg("failed to resolve room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if room.UserAID != userID && room.UserBID != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}

	limit := h.pageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	messages, err := h.store.ListMessages(c.Request.Context(), room.ID, limit, c.Query("before"))
	if err != nil {
		h.log.Error().Err(err).Str("room_id", room.ID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	payloads := make([]proto.MessagePayload, 0, len(messages))
	for _, msg := range messages {
		payloads = append(payloads, messagePayload(msg))
	}

	c.JSON(http.StatusOK, apiResponse{Success: true, Data: HistoryResponse{
		RoomID:   room.ID,
		Messages: payloads,
	}})
}

// PostMessage handles the persistence half of the session's dual-write.
// POST /api/v1/chat/rooms/:roomID/messages
func (h *ChatHandlers) PostMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	name := c.Param("roomID")
	room, err := h.resolveRoom(c, name)
	if errors.Is(err, store.ErrNotFound) {
		// A provisional key names both participants; the REST write may
		// arrive before the socket join created the room.
		room, err = h.createFromDirectKey(c, name, userID)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room", name).Msg("failed to resolve room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if room.UserAID != userID && room.UserBID != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}

	id := req.ID
	if utils.IsLocalMessageID(id) {
		// Placeholder ids never become durable; a fresh one is assigned.
		id = ""
	}
	msg := &store.Message{
		ID:          id,
		RoomID:      room.ID,
		SenderID:    userID,
		Content:     req.Content,
		MessageType: req.MessageType,
		Status:      proto.StatusSent,
	}
	if err := h.store.SaveMessage(c.Request.Context(), msg); err != nil {
		h.log.Error().Err(err).Str("room_id", room.ID).Msg("failed to save message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, apiResponse{Success: true, Data: gin.H{"message": messagePayload(msg)}})
}

func (h *ChatHandlers) resolveRoom(c *gin.Context, name string) (*store.Room, error) {
	room, err := h.store.GetRoomByID(c.Request.Context(), name)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return h.store.GetRoomByDirectKey(c.Request.Context(), name)
}

// createFromDirectKey creates the room named by a provisional key, provided
// the caller is one of the two participants it names.
func (h *ChatHandlers) createFromDirectKey(c *gin.Context, key, userID string) (*store.Room, error) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, store.ErrNotFound
	}
	if parts[0] != userID && parts[1] != userID {
		return nil, store.ErrNotFound
	}
	canonical := proto.DirectKey(parts[0], parts[1])
	if canonical != key {
		return nil, store.ErrNotFound
	}
	return h.store.CreateDirectRoom(c.Request.Context(), canonical, parts[0], parts[1])
}

func messagePayload(msg *store.Message) proto.MessagePayload {
	return proto.MessagePayload{
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		Timestamp:   msg.CreatedAt,
		Status:      msg.Status,
	}
}
