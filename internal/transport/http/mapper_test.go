package http

import (
	"testing"
	"time"

	"github.com/swanstudios/studiochat-server/internal/core"
	"github.com/swanstudios/studiochat-server/internal/proto"
	"github.com/swanstudios/studiochat-server/internal/store"
)

func TestOutboundFromEvent(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		event     *core.Event
		wantType  string
		wantEvent string
	}{
		{
			name:      "user online",
			event:     &core.Event{Kind: core.EventUserOnline, UserID: 1, User: "alice"},
			wantType:  proto.OutboundTypeEvent,
			wantEvent: proto.EventUserOnline,
		},
		{
			name:      "user offline",
			event:     &core.Event{Kind: core.EventUserOffline, UserID: 1},
			wantType:  proto.OutboundTypeEvent,
			wantEvent: proto.EventUserOffline,
		},
		{
			name:      "user joined",
			event:     &core.Event{Kind: core.EventUserJoined, Room: "conversation:1", UserID: 2},
			wantType:  proto.OutboundTypeEvent,
			wantEvent: proto.EventUserJoined,
		},
		{
			name: "new message",
			event: &core.Event{Kind: core.EventNewMessage, Room: "conversation:1", Message: &core.Message{
				ID: 7, Room: "conversation:1", SenderID: 2, SenderName: "bob", Content: "hi", CreatedAt: now,
			}},
			wantType:  proto.OutboundTypeEvent,
			wantEvent: proto.EventNewMessage,
		},
		{
			name:      "typing",
			event:     &core.Event{Kind: core.EventUserTyping, Room: "conversation:1", UserID: 2},
			wantType:  proto.OutboundTypeEvent,
			wantEvent: proto.EventUserTyping,
		},
		{
			name:      "messages read",
			event:     &core.Event{Kind: core.EventMessagesRead, Room: "conversation:1", UserID: 2, MessageIDs: []int64{5, 6}},
			wantType:  proto.OutboundTypeEvent,
			wantEvent: proto.EventMessagesRead,
		},
		{
			name: "new notification",
			event: &core.Event{Kind: core.EventNewNotification, UserID: 2, Notification: &store.Notification{
				ID: 3, UserID: 2, Type: core.NotifTypeNewMessage, Payload: `{"preview":"hi"}`, CreatedAt: now,
			}},
			wantType:  proto.OutboundTypeEvent,
			wantEvent: proto.EventNewNotification,
		},
		{
			name:     "error",
			event:    &core.Event{Kind: core.EventError, Error: &core.CoreError{Code: core.ErrCodeBadRequest, Message: "nope"}},
			wantType: proto.OutboundTypeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := outboundFromEvent(tt.event)
			if out.Type != tt.wantType {
				t.Errorf("type = %q, want %q", out.Type, tt.wantType)
			}
			if out.Event != tt.wantEvent {
				t.Errorf("event = %q, want %q", out.Event, tt.wantEvent)
			}
		})
	}
}

func TestOutboundMessagePayload(t *testing.T) {
	now := time.Now()
	out := outboundFromEvent(&core.Event{Kind: core.EventNewMessage, Message: &core.Message{
		ID: 7, Room: "conversation:1", SenderID: 2, SenderName: "bob", Content: "hi", CreatedAt: now,
	}})

	data, ok := out.Data.(proto.MessageData)
	if !ok {
		t.Fatalf("unexpected payload type %T", out.Data)
	}
	if data.ID != 7 || data.Room != "conversation:1" || data.SenderID != 2 || data.Content != "hi" {
		t.Fatalf("unexpected payload: %+v", data)
	}
	if data.TS != now.Unix() {
		t.Fatalf("timestamp: got %d, want %d", data.TS, now.Unix())
	}
}

func TestOutboundErrorPayload(t *testing.T) {
	out := outboundFromEvent(&core.Event{Kind: core.EventError, Error: &core.CoreError{
		Code: core.ErrCodeSendFailed, Message: "message could not be saved",
	}})
	if out.Error == nil || out.Error.Code != core.ErrCodeSendFailed {
		t.Fatalf("unexpected error payload: %+v", out.Error)
	}

	// A nil domain error still yields a well-formed envelope.
	out = outboundFromEvent(&core.Event{Kind: core.EventError})
	if out.Type != proto.OutboundTypeError || out.Error == nil {
		t.Fatalf("nil error must map to a generic error envelope: %+v", out)
	}
}
