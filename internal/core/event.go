package core

import "github.com/swanstudios/studiochat-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventUserOnline notifies that a user's first connection arrived.
	EventUserOnline EventKind = iota
	// EventUserOffline notifies that a user's last connection closed.
	EventUserOffline
	// EventUserJoined notifies room members that a user joined the room.
	EventUserJoined
	// EventNewMessage delivers a persisted chat message to a room.
	EventNewMessage
	// EventUserTyping relays transient typing state to a room.
	EventUserTyping
	// EventMessagesRead carries the ids newly marked read by a user.
	EventMessagesRead
	// EventNewNotification pushes a notification to its recipient.
	EventNewNotification
	// EventError notifies the requesting client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind         EventKind
	Room         string
	UserID       int64
	User         string
	Message      *Message
	MessageIDs   []int64
	Notification *store.Notification
	Error        *CoreError
}
