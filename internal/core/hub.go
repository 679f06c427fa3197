package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/swanstudios/studiochat-server/internal/store"
)

// NotifTypeNewMessage is the notification type written for message
// recipients; the dashboard polls rows of this type for offline users.
const NotifTypeNewMessage = "new_message"

// Hub coordinates presence, room membership, message fan-out and read
// receipts for all live connections in this process.
type Hub struct {
	store     store.Store
	presence  Presence
	rooms     *roomSet
	metrics   *Metrics
	log       *zerolog.Logger
	opTimeout time.Duration
}

// NewHub constructs a hub backed by the given store. Store calls made on
// behalf of a connection are bounded by opTimeout.
func NewHub(st store.Store, logger *zerolog.Logger, opTimeout time.Duration) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	return &Hub{
		store:     st,
		presence:  NewMemoryPresence(),
		rooms:     newRoomSet(),
		metrics:   newMetrics(),
		log:       logger,
		opTimeout: opTimeout,
	}
}

// Register adds an authenticated connection to the presence registry.
// The first connection for a user fans out user_online to everyone else.
func (h *Hub) Register(c *Client) {
	h.metrics.connOpened(c.Role)

	if wentOnline := h.presence.Add(c); wentOnline {
		ev := &Event{Kind: EventUserOnline, UserID: c.UserID, User: c.Name}
		h.presence.Each(func(other *Client) {
			if other.UserID != c.UserID {
				other.TrySend(ev)
			}
		})
	}

	h.log.Debug().Str("conn_id", c.ID).Int64("user_id", c.UserID).Msg("connection registered")
}

// Unregister runs the single cleanup pass for a closing connection:
// room membership first, then presence (emitting user_offline exactly
// once when the last connection closes), then the client itself.
func (h *Hub) Unregister(c *Client) {
	h.rooms.leaveAll(c)

	if wentOffline := h.presence.Remove(c); wentOffline {
		ev := &Event{Kind: EventUserOffline, UserID: c.UserID, User: c.Name}
		h.presence.Each(func(other *Client) {
			if other.UserID != c.UserID {
				other.TrySend(ev)
			}
		})
	}

	h.metrics.connClosed(c.Role)
	c.close()

	h.log.Debug().Str("conn_id", c.ID).Int64("user_id", c.UserID).Msg("connection unregistered")
}

// JoinRoom verifies the user is an authorized participant of the room's
// logical owner and joins the connection to it. Joins are idempotent;
// refusals leave the connection's room list untouched.
func (h *Hub) JoinRoom(ctx context.Context, c *Client, roomName string) *CoreError {
	rn, err := ParseRoomName(roomName)
	if err != nil {
		return coreError(ErrCodeBadRequest, "malformed room name")
	}

	if !h.authorize(ctx, c, rn) {
		h.log.Info().
			Str("conn_id", c.ID).
			Int64("user_id", c.UserID).
			Str("room", roomName).
			Msg("room join refused")
		return coreError(ErrCodeNotAuthorized, "not a participant of this room")
	}

	room, added := h.rooms.join(c, roomName)
	if added {
		room.broadcastExcept(c, &Event{
			Kind:   EventUserJoined,
			Room:   roomName,
			UserID: c.UserID,
			User:   c.Name,
		})
	}
	return nil
}

// authorize consults the participant store for the room's owner. Lookup
// errors and timeouts fail closed.
func (h *Hub) authorize(ctx context.Context, c *Client, rn RoomName) bool {
	switch rn.Kind {
	case RoomDashboard:
		return c.Role == rn.Role
	case RoomConversation:
		ctx, cancel := context.WithTimeout(ctx, h.opTimeout)
		defer cancel()
		ok, err := h.store.IsParticipant(ctx, rn.ConversationID, c.UserID)
		if err != nil {
			h.log.Warn().Err(err).Int64("conversation_id", rn.ConversationID).Msg("participant lookup failed")
			return false
		}
		return ok
	case RoomSession:
		ctx, cancel := context.WithTimeout(ctx, h.opTimeout)
		defer cancel()
		ok, err := h.store.IsSessionParticipant(ctx, rn.SessionID, c.UserID)
		if err != nil {
			h.log.Warn().Err(err).Int64("session_id", rn.SessionID).Msg("session lookup failed")
			return false
		}
		return ok
	}
	return false
}

// SubmitMessage persists a chat message and broadcasts it to the room.
// Persistence is the durability point: nothing is broadcast until the
// insert succeeds, and the room's send lock keeps delivery order equal
// to persistence order. Notification fan-out happens afterwards,
// detached and best-effort.
func (h *Hub) SubmitMessage(ctx context.Context, c *Client, roomName, content string) (*Message, *CoreError) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, coreError(ErrCodeBadRequest, "message content is required")
	}

	rn, err := ParseRoomName(roomName)
	if err != nil || rn.Kind != RoomConversation {
		return nil, coreError(ErrCodeBadRequest, "messages require a conversation room")
	}

	room := h.rooms.get(roomName)
	if room == nil || !room.has(c) {
		return nil, coreError(ErrCodeNotInRoom, "join the room before sending")
	}

	room.sendMu.Lock()
	sctx, cancel := context.WithTimeout(ctx, h.opTimeout)
	persisted, err := h.store.InsertMessage(sctx, rn.ConversationID, c.UserID, content)
	cancel()
	if err != nil {
		room.sendMu.Unlock()
		h.log.Error().Err(err).Int64("conversation_id", rn.ConversationID).Msg("message persist failed")
		return nil, coreError(ErrCodeSendFailed, "message could not be saved")
	}

	msg := &Message{
		ID:             persisted.ID,
		Room:           roomName,
		ConversationID: persisted.ConversationID,
		SenderID:       persisted.SenderID,
		SenderName:     c.Name,
		Content:        persisted.Content,
		CreatedAt:      persisted.CreatedAt,
	}
	room.broadcast(&Event{Kind: EventNewMessage, Room: roomName, Message: msg})
	room.sendMu.Unlock()

	go h.fanOutNotifications(msg)

	return msg, nil
}

// notificationPayload is the JSON stored on each recipient's
// notification row and pushed to their live connections.
type notificationPayload struct {
	ConversationID int64  `json:"conversation_id"`
	MessageID      int64  `json:"message_id"`
	SenderID       int64  `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	Preview        string `json:"preview"`
}

// fanOutNotifications creates one notification per non-sender
// participant and pushes it to their live connections. Runs detached
// from the submitting connection: its failures are logged, never
// surfaced, and never unwind the already-broadcast message.
func (h *Hub) fanOutNotifications(msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	participants, err := h.store.ListParticipants(ctx, msg.ConversationID)
	if err != nil {
		h.log.Warn().Err(err).Int64("conversation_id", msg.ConversationID).Msg("notification fan-out: participant list failed")
		return
	}

	preview := msg.Content
	if len(preview) > 120 {
		preview = preview[:120]
	}
	payload, err := json.Marshal(notificationPayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		Preview:        preview,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("notification fan-out: payload marshal failed")
		return
	}

	for _, uid := range participants {
		if uid == msg.SenderID {
			continue
		}

		n, err := h.store.InsertNotification(ctx, uid, NotifTypeNewMessage, string(payload))
		if err != nil {
			h.log.Warn().Err(err).Int64("user_id", uid).Int64("message_id", msg.ID).Msg("notification insert failed")
			continue
		}

		// Low-latency side channel for online recipients; the row alone
		// is the delivery path for everyone else.
		for _, conn := range h.presence.Connections(uid) {
			conn.TrySend(&Event{Kind: EventNewNotification, UserID: uid, Notification: n})
		}
	}
}

// MarkRead computes the set of previously-unread messages at or before
// the watermark, persists one receipt per message idempotently, and
// broadcasts only the newly-read delta. An empty delta broadcasts
// nothing, so concurrent duplicate requests produce one broadcast.
func (h *Hub) MarkRead(ctx context.Context, c *Client, roomName string, throughMessageID int64) ([]int64, *CoreError) {
	rn, err := ParseRoomName(roomName)
	if err != nil || rn.Kind != RoomConversation {
		return nil, coreError(ErrCodeBadRequest, "read marks require a conversation room")
	}

	room := h.rooms.get(roomName)
	if room == nil || !room.has(c) {
		return nil, coreError(ErrCodeNotInRoom, "join the room before marking read")
	}

	// The send lock serializes reconciliation per room, so concurrent
	// duplicate requests (two tabs) produce at most one non-empty delta.
	room.sendMu.Lock()
	defer room.sendMu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, h.opTimeout)
	defer cancel()

	unread, err := h.store.ListUnread(sctx, rn.ConversationID, c.UserID, throughMessageID)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", rn.ConversationID).Msg("unread lookup failed")
		return nil, coreError(ErrCodeMarkReadFailed, "read state could not be updated")
	}

	readAt := time.Now()
	newlyRead := make([]int64, 0, len(unread))
	for _, id := range unread {
		inserted, err := h.store.InsertReceiptIfAbsent(sctx, id, c.UserID, readAt)
		if err != nil {
			h.log.Error().Err(err).Int64("message_id", id).Msg("receipt insert failed")
			return nil, coreError(ErrCodeMarkReadFailed, "read state could not be updated")
		}
		if inserted {
			newlyRead = append(newlyRead, id)
		}
	}

	if len(newlyRead) > 0 {
		room.broadcast(&Event{
			Kind:       EventMessagesRead,
			Room:       roomName,
			UserID:     c.UserID,
			User:       c.Name,
			MessageIDs: newlyRead,
		})
	}
	return newlyRead, nil
}

// Typing relays transient typing state to the room, excluding the
// sender. Ephemeral: nothing is persisted, nobody is told on failure,
// and non-members are dropped silently.
func (h *Hub) Typing(c *Client, roomName string) {
	room := h.rooms.get(roomName)
	if room == nil || !room.has(c) {
		return
	}
	room.broadcastExcept(c, &Event{
		Kind:   EventUserTyping,
		Room:   roomName,
		UserID: c.UserID,
		User:   c.Name,
	})
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID int64) bool {
	return h.presence.IsOnline(userID)
}

// PresenceSnapshot answers a batch online-status query.
func (h *Hub) PresenceSnapshot(userIDs []int64) map[int64]bool {
	return h.presence.Snapshot(userIDs)
}

// Metrics returns the current connection counters and room sizes.
func (h *Hub) Metrics() MetricsSnapshot {
	return h.metrics.snapshot(h.rooms.sizes())
}
