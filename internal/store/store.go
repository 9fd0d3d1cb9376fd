package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User is a marketplace user as the chat service sees it. Ids are opaque
// strings owned by the marketplace backend.
type User struct {
	ID        string
	Name      string
	Roles     []string
	IsOnline  bool
	CreatedAt time.Time
}

// Room is a two-party chat room. DirectKey is the canonical sorted-pair key
// used for dedup; ID is the server-assigned identifier clients must use
// once they learn it.
type Room struct {
	ID        string
	DirectKey string
	UserAID   string
	UserBID   string
	CreatedAt time.Time
}

// Message is a persisted chat message.
type Message struct {
	ID          string
	RoomID      string
	SenderID    string
	Content     string
	MessageType string
	Status      string
	CreatedAt   time.Time
}

// UserStore handles user directory persistence.
type UserStore interface {
	// UpsertUser inserts or updates a directory entry.
	UpsertUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by id.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// ListUsers lists directory entries, excluding the given user id.
	ListUsers(ctx context.Context, excludeID string) ([]*User, error)

	// SetUserOnline flips the online flag for a user.
	SetUserOnline(ctx context.Context, id string, online bool) error
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateDirectRoom creates the two-party room for directKey, or returns
	// the existing one. Room ids are assigned here, never by clients.
	CreateDirectRoom(ctx context.Context, directKey, userA, userB string) (*Room, error)

	// GetRoomByID retrieves a room by server-assigned id.
	GetRoomByID(ctx context.Context, id string) (*Room, error)

	// GetRoomByDirectKey retrieves a room by its canonical pair key.
	GetRoomByDirectKey(ctx context.Context, directKey string) (*Room, error)

	// ListRoomsForUser lists rooms the user participates in.
	ListRoomsForUser(ctx context.Context, userID string) ([]*Room, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns up to limit messages for a room in ascending
	// creation order. If beforeID is set, only messages older than it.
	ListMessages(ctx context.Context, roomID string, limit int, beforeID string) ([]*Message, error)

	// LatestMessage returns the newest message in a room, or ErrNotFound.
	LatestMessage(ctx context.Context, roomID string) (*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
