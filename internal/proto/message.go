package proto

import "encoding/json"

// Inbound is the envelope for commands coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin     = "join"
	InboundTypeMsg      = "msg"
	InboundTypeTyping   = "typing"
	InboundTypeMarkRead = "mark_read"
	InboundTypePresence = "presence"

	OutboundTypeEvent  = "event"
	OutboundTypeResult = "result"
	OutboundTypeError  = "error"
)

// Outbound event names.
const (
	EventAuthenticated   = "authenticated"
	EventAuthError       = "auth_error"
	EventUserOnline      = "user_online"
	EventUserOffline     = "user_offline"
	EventUserJoined      = "user_joined"
	EventNewMessage      = "new_message"
	EventUserTyping      = "user_typing"
	EventMessagesRead    = "messages_read"
	EventNewNotification = "new_notification"
	EventPresence        = "presence"
)

// JoinData requests to join a specific room.
type JoinData struct {
	Room string `json:"room"`
}

// MsgData is a chat message from the client.
type MsgData struct {
	Room    string `json:"room"`
	Content string `json:"content"`
}

// TypingData is a transient typing ping.
type TypingData struct {
	Room string `json:"room"`
}

// MarkReadData marks everything up to a watermark message as read.
type MarkReadData struct {
	Room             string `json:"room"`
	ThroughMessageID int64  `json:"through_message_id"`
}

// PresenceQueryData asks for online status of a batch of users. The
// correlation id is echoed back on the response.
type PresenceQueryData struct {
	ID      string  `json:"id,omitempty"`
	UserIDs []int64 `json:"user_ids"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// AuthenticatedData confirms a successful handshake.
type AuthenticatedData struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	Name   string `json:"name"`
}

// PresenceStatusData answers a presence query.
type PresenceStatusData struct {
	ID       string         `json:"id,omitempty"`
	Statuses map[int64]bool `json:"statuses"`
}

// UserStatusData announces a global online/offline transition.
type UserStatusData struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// RoomUserData tags a room-scoped signal with its user.
type RoomUserData struct {
	Room   string `json:"room"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// MessageData is a persisted message delivered to a room.
type MessageData struct {
	ID         int64  `json:"id"`
	Room       string `json:"room"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	TS         int64  `json:"ts"`
}

// MessagesReadData carries the delta of newly-read message ids.
type MessagesReadData struct {
	Room       string  `json:"room"`
	UserID     int64   `json:"user_id"`
	MessageIDs []int64 `json:"message_ids"`
}

// NotificationData is pushed to online recipients as a side channel.
type NotificationData struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
