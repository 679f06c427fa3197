package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/swanstudios/studiochat-server/internal/auth"
	"github.com/swanstudios/studiochat-server/internal/core"
	"github.com/swanstudios/studiochat-server/internal/proto"
)

// WSHandler upgrades HTTP connections, gates them through authentication
// and bridges them to core.Client.
type WSHandler struct {
	hub  *core.Hub
	gate *auth.Service
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, gate *auth.Service, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, gate: gate, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	// Auth gate: no presence entry, no rooms, no handlers until the
	// credential resolves to an active account.
	identity, gateErr := h.gate.Authenticate(ctx, bearerToken(r))
	if gateErr != nil {
		h.log.Info().Str("code", gateErr.Code).Msg("ws handshake rejected")
		_ = wsjson.Write(ctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventAuthError,
			Error: &proto.Error{Code: gateErr.Code, Msg: "authentication failed"},
		})
		conn.Close(websocket.StatusPolicyViolation, gateErr.Code)
		return
	}

	client := core.NewClient(uuid.NewString(), identity.UserID, identity.Role, identity.DisplayName)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	if err := wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventAuthenticated,
		Data: proto.AuthenticatedData{
			UserID: identity.UserID,
			Role:   identity.Role,
			Name:   identity.DisplayName,
		},
	}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// bearerToken pulls the credential from the Authorization header or,
// for browser clients that cannot set headers on upgrades, the token
// query parameter.
func bearerToken(r *stdhttp.Request) string {
	header := r.Header.Get("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return r.URL.Query().Get("token")
}

// readLoop consumes inbound commands one at a time, so each sender's
// operations run in submission order.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		reply, err := h.dispatch(ctx, client, inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("conn_id", client.ID).Str("type", inbound.Type).Msg("inbound dispatch failed")
			return err
		}
		if reply != nil {
			if writeErr := wsjson.Write(ctx, conn, *reply); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events():
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
