package http

import (
	"context"
	"encoding/json"

	"github.com/swanstudios/studiochat-server/internal/core"
	"github.com/swanstudios/studiochat-server/internal/proto"
)

// dispatch routes an inbound command to its hub operation. A non-nil
// reply is written back on the caller's connection only; a non-nil error
// tears the connection down.
func (h *WSHandler) dispatch(ctx context.Context, client *core.Client, inbound proto.Inbound) (*proto.Outbound, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, err
		}
		if join.Room == "" {
			return protoError(core.ErrCodeBadRequest, "room is required"), nil
		}
		if cerr := h.hub.JoinRoom(ctx, client, join.Room); cerr != nil {
			return protoError(cerr.Code, cerr.Message), nil
		}
		return nil, nil

	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, err
		}
		if msg.Room == "" {
			return protoError(core.ErrCodeBadRequest, "room is required"), nil
		}
		// The sender sees the persisted message via the room broadcast;
		// failures come back here so a failed send never looks sent.
		if _, cerr := h.hub.SubmitMessage(ctx, client, msg.Room, msg.Content); cerr != nil {
			return protoError(cerr.Code, cerr.Message), nil
		}
		return nil, nil

	case proto.InboundTypeTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, err
		}
		h.hub.Typing(client, typing.Room)
		return nil, nil

	case proto.InboundTypeMarkRead:
		var mark proto.MarkReadData
		if err := json.Unmarshal(inbound.Data, &mark); err != nil {
			return nil, err
		}
		if mark.Room == "" || mark.ThroughMessageID <= 0 {
			return protoError(core.ErrCodeBadRequest, "room and through_message_id are required"), nil
		}
		if _, cerr := h.hub.MarkRead(ctx, client, mark.Room, mark.ThroughMessageID); cerr != nil {
			return protoError(cerr.Code, cerr.Message), nil
		}
		return nil, nil

	case proto.InboundTypePresence:
		var query proto.PresenceQueryData
		if err := json.Unmarshal(inbound.Data, &query); err != nil {
			return nil, err
		}
		return &proto.Outbound{
			Type:  proto.OutboundTypeResult,
			Event: proto.EventPresence,
			Data: proto.PresenceStatusData{
				ID:       query.ID,
				Statuses: h.hub.PresenceSnapshot(query.UserIDs),
			},
		}, nil

	default:
		return protoError(core.ErrCodeBadRequest, "unknown message type"), nil
	}
}

func protoError(code, msg string) *proto.Outbound {
	return &proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventUserOnline:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserOnline,
			Data:  proto.UserStatusData{UserID: event.UserID, Name: event.User},
		}
	case core.EventUserOffline:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserOffline,
			Data:  proto.UserStatusData{UserID: event.UserID, Name: event.User},
		}
	case core.EventUserJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserJoined,
			Data:  proto.RoomUserData{Room: event.Room, UserID: event.UserID, Name: event.User},
		}
	case core.EventNewMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data: proto.MessageData{
				ID:         event.Message.ID,
				Room:       event.Message.Room,
				SenderID:   event.Message.SenderID,
				SenderName: event.Message.SenderName,
				Content:    event.Message.Content,
				TS:         event.Message.CreatedAt.Unix(),
			},
		}
	case core.EventUserTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserTyping,
			Data:  proto.RoomUserData{Room: event.Room, UserID: event.UserID, Name: event.User},
		}
	case core.EventMessagesRead:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessagesRead,
			Data: proto.MessagesReadData{
				Room:       event.Room,
				UserID:     event.UserID,
				MessageIDs: event.MessageIDs,
			},
		}
	case core.EventNewNotification:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewNotification,
			Data: proto.NotificationData{
				ID:        event.Notification.ID,
				Type:      event.Notification.Type,
				Payload:   json.RawMessage(event.Notification.Payload),
				CreatedAt: event.Notification.CreatedAt.Unix(),
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
