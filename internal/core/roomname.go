package core

import (
	"errors"
	"strconv"
	"strings"
)

// RoomKind identifies which logical owner backs a broadcast group.
type RoomKind int

const (
	// RoomConversation is backed by a persisted conversation.
	RoomConversation RoomKind = iota
	// RoomSession is backed by a live training session.
	RoomSession
	// RoomDashboard groups all connections of one role.
	RoomDashboard
)

// RoomName is a parsed room identifier. Rooms are derived at runtime
// from conversation/session/role identifiers; they are not persisted.
type RoomName struct {
	Kind           RoomKind
	ConversationID int64
	SessionID      int64
	Role           string
	raw            string
}

// String returns the wire form of the room name.
func (r RoomName) String() string { return r.raw }

var errBadRoomName = errors.New("malformed room name")

// ParseRoomName parses "conversation:<id>", "session:<id>" or
// "dashboard:<role>".
func ParseRoomName(s string) (RoomName, error) {
	prefix, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return RoomName{}, errBadRoomName
	}

	switch prefix {
	case "conversation":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return RoomName{}, errBadRoomName
		}
		return RoomName{Kind: RoomConversation, ConversationID: id, raw: s}, nil
	case "session":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return RoomName{}, errBadRoomName
		}
		return RoomName{Kind: RoomSession, SessionID: id, raw: s}, nil
	case "dashboard":
		return RoomName{Kind: RoomDashboard, Role: rest, raw: s}, nil
	default:
		return RoomName{}, errBadRoomName
	}
}

// ConversationRoom returns the room name for a conversation.
func ConversationRoom(conversationID int64) string {
	return "conversation:" + strconv.FormatInt(conversationID, 10)
}

// SessionRoom returns the room name for a live session.
func SessionRoom(sessionID int64) string {
	return "session:" + strconv.FormatInt(sessionID, 10)
}

// DashboardRoom returns the room name for a role dashboard.
func DashboardRoom(role string) string {
	return "dashboard:" + role
}
