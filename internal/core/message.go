package core

import "time"

// Message is the domain model for a chat message as delivered to rooms.
type Message struct {
	ID             int64
	Room           string
	ConversationID int64
	SenderID       int64
	SenderName     string
	Content        string
	CreatedAt      time.Time
}
