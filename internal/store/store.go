package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a platform account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	Photo        string
	IsActive     bool
	CreatedAt    time.Time
}

// DisplayName returns the name shown to other users.
func (u *User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Role identifies the account type within the studio platform.
type Role string

const (
	RoleClient  Role = "client"
	RoleTrainer Role = "trainer"
	RoleAdmin   Role = "admin"
)

// ConversationType distinguishes direct chats from group chats.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation is a persisted chat thread. This core only reads its
// participant set to authorize room joins.
type Conversation struct {
	ID        int64
	Type      ConversationType
	Name      string
	CreatedAt time.Time
}

// Message is a persisted chat message. Immutable once written.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Content        string
	CreatedAt      time.Time
}

// Receipt marks a message as read by a user. Unique per (message, user).
type Receipt struct {
	MessageID int64
	UserID    int64
	ReadAt    time.Time
}

// Notification is created as a side effect of message delivery for each
// non-sender participant. Consumed by the dashboard layer.
type Notification struct {
	ID        int64
	UserID    int64
	Type      string
	Payload   string
	ReadAt    *time.Time
	CreatedAt time.Time
}

// Session is a live training session. This core only checks participation
// to authorize session-room joins.
type Session struct {
	ID        int64
	TrainerID int64
	Title     string
	CreatedAt time.Time
}

// UserStore handles account lookup and creation.
type UserStore interface {
	// CreateUser creates a new account with a hashed password.
	CreateUser(ctx context.Context, email, passwordHash, firstName, lastName string, role Role) (*User, error)

	// GetUserByID retrieves an account by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves an account by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// ConversationStore handles conversation and participant persistence.
type ConversationStore interface {
	// CreateConversation creates a conversation and enrolls its participants.
	CreateConversation(ctx context.Context, convType ConversationType, name string, participantIDs []int64) (*Conversation, error)

	// IsParticipant reports whether the user belongs to the conversation.
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)

	// ListParticipants lists user IDs enrolled in the conversation.
	ListParticipants(ctx context.Context, conversationID int64) ([]int64, error)
}

// SessionStore handles live-session participation lookups.
type SessionStore interface {
	// CreateSession creates a live session owned by a trainer.
	CreateSession(ctx context.Context, trainerID int64, title string) (*Session, error)

	// AddSessionParticipant enrolls a user in a session.
	AddSessionParticipant(ctx context.Context, sessionID, userID int64) error

	// IsSessionParticipant reports whether the user is the session's
	// trainer or an enrolled participant.
	IsSessionParticipant(ctx context.Context, sessionID, userID int64) (bool, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a message with a server-assigned id and timestamp.
	InsertMessage(ctx context.Context, conversationID, senderID int64, content string) (*Message, error)

	// GetMessageByID retrieves a single message.
	GetMessageByID(ctx context.Context, id int64) (*Message, error)

	// ListMessages retrieves messages from a conversation, oldest first,
	// with cursor pagination. If beforeID is non-nil only messages older
	// than that message are returned.
	ListMessages(ctx context.Context, conversationID int64, limit int, beforeID *int64) ([]*Message, error)

	// ListUnread returns ids of messages in the conversation created at or
	// before the watermark message that have no receipt for the user.
	ListUnread(ctx context.Context, conversationID, userID, throughMessageID int64) ([]int64, error)
}

// ReceiptStore handles read-receipt persistence.
type ReceiptStore interface {
	// InsertReceiptIfAbsent records a read receipt unless one already
	// exists for the (message, user) pair. Reports whether a row was
	// actually inserted.
	InsertReceiptIfAbsent(ctx context.Context, messageID, userID int64, readAt time.Time) (bool, error)
}

// NotificationStore handles notification persistence.
type NotificationStore interface {
	// InsertNotification creates a notification for a user.
	InsertNotification(ctx context.Context, userID int64, notifType, payload string) (*Notification, error)

	// ListNotifications lists a user's notifications, newest first.
	ListNotifications(ctx context.Context, userID int64, limit int) ([]*Notification, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	SessionStore
	MessageStore
	ReceiptStore
	NotificationStore

	// Close closes the underlying database connection.
	Close() error
}
