package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/veloramarket/velora-chat/internal/store"
)

// Store implements store.Store on SQLite.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	roles      TEXT NOT NULL DEFAULT '',
	is_online  BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	direct_key TEXT NOT NULL UNIQUE,
	user_a_id  TEXT NOT NULL,
	user_b_id  TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	room_id      TEXT NOT NULL REFERENCES rooms(id),
	sender_id    TEXT NOT NULL,
	content      TEXT NOT NULL,
	message_type TEXT NOT NULL DEFAULT 'text',
	status       TEXT NOT NULL DEFAULT 'sent',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at);
CREATE INDEX IF NOT EXISTS idx_rooms_user_a ON rooms(user_a_id);
CREATE INDEX IF NOT EXISTS idx_rooms_user_b ON rooms(user_b_id);
`

// New opens (creating if needed) a SQLite store at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// UpsertUser inserts or updates a directory entry.
func (s *Store) UpsertUser(ctx context.Context, user *store.User) error {
	query := `
		INSERT INTO users (id, name, roles, is_online)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, roles = excluded.roles
	`
	_, err := s.db.ExecContext(ctx, query, user.ID, user.Name, strings.Join(user.Roles, ","), user.IsOnline)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, name, roles, is_online, created_at
		FROM users
		WHERE id = ?
	`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// ListUsers lists directory entries, excluding the given user id.
func (s *Store) ListUsers(ctx context.Context, excludeID string) ([]*store.User, error) {
	query := `
		SELECT id, name, roles, is_online, created_at
		FROM users
		WHERE id != ?
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetUserOnline flips the online flag for a user.
func (s *Store) SetUserOnline(ctx context.Context, id string, online bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET is_online = ? WHERE id = ?`, online, id)
	if err != nil {
		return fmt.Errorf("set user online: %w", err)
	}
	return nil
}

// ==== RoomStore implementation ====

// CreateDirectRoom creates the two-party room for directKey, or returns the
// existing one.
func (s *Store) CreateDirectRoom(ctx context.Context, directKey, userA, userB string) (*store.Room, error) {
	if existing, err := s.GetRoomByDirectKey(ctx, directKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	id := uuid.NewString()
	query := `
		INSERT INTO rooms (id, direct_key, user_a_id, user_b_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(direct_key) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, id, directKey, userA, userB); err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	// Re-read by key: a concurrent insert may have won the conflict.
	return s.GetRoomByDirectKey(ctx, directKey)
}

// GetRoomByID retrieves a room by server-assigned id.
func (s *Store) GetRoomByID(ctx context.Context, id string) (*store.Room, error) {
	query := `
		SELECT id, direct_key, user_a_id, user_b_id, created_at
		FROM rooms
		WHERE id = ?
	`
	return scanRoom(s.db.QueryRowContext(ctx, query, id))
}

// GetRoomByDirectKey retrieves a room by its canonical pair key.
func (s *Store) GetRoomByDirectKey(ctx context.Context, directKey string) (*store.Room, error) {
	query := `
		SELECT id, direct_key, user_a_id, user_b_id, created_at
		FROM rooms
		WHERE direct_key = ?
	`
	return scanRoom(s.db.QueryRowContext(ctx, query, directKey))
}

// ListRoomsForUser lists rooms the user participates in.
func (s *Store) ListRoomsForUser(ctx context.Context, userID string) ([]*store.Room, error) {
	query := `
		SELECT id, direct_key, user_a_id, user_b_id, created_at
		FROM rooms
		WHERE user_a_id = ? OR user_b_id = ?
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// ==== MessageStore implementation ====

// SaveMessage persists a message. Missing ids and timestamps are assigned
// here so all callers share one id scheme. An id that is already stored is
// left untouched: the socket and REST halves of a send carry the same id,
// and whichever write lands second is a no-op.
func (s *Store) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.MessageType == "" {
		msg.MessageType = "text"
	}
	if msg.Status == "" {
		msg.Status = "sent"
	}

	query := `
		INSERT INTO messages (id, room_id, sender_id, content, message_type, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.MessageType, msg.Status, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns up to limit messages for a room in ascending
// creation order.
func (s *Store) ListMessages(ctx context.Context, roomID string, limit int, beforeID string) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if beforeID != "" {
		query := `
			SELECT id, room_id, sender_id, content, message_type, status, created_at
			FROM messages
			WHERE room_id = ?
			  AND created_at < (SELECT created_at FROM messages WHERE id = ?)
			ORDER BY created_at DESC
			LIMIT ?
		`
		rows, err = s.db.QueryContext(ctx, query, roomID, beforeID, limit)
	} else {
		query := `
			SELECT id, room_id, sender_id, content, message_type, status, created_at
			FROM messages
			WHERE room_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		`
		rows, err = s.db.QueryContext(ctx, query, roomID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest-first for the LIMIT; history is served oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// LatestMessage returns the newest message in a room.
func (s *Store) LatestMessage(ctx context.Context, roomID string) (*store.Message, error) {
	query := `
		SELECT id, room_id, sender_id, content, message_type, status, created_at
		FROM messages
		WHERE room_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanMessage(s.db.QueryRowContext(ctx, query, roomID))
}

// ==== scanning helpers ====

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.User, error) {
	var user store.User
	var roles string
	err := row.Scan(&user.ID, &user.Name, &roles, &user.IsOnline, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if roles != "" {
		user.Roles = strings.Split(roles, ",")
	}
	return &user, nil
}

func scanRoom(row rowScanner) (*store.Room, error) {
	var room store.Room
	err := row.Scan(&room.ID, &room.DirectKey, &room.UserAID, &room.UserBID, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan room: %w", err)
	}
	return &room, nil
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	err := row.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.MessageType, &msg.Status, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &msg, nil
}
