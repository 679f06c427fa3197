package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/swanstudios/studiochat-server/internal/auth"
	"github.com/swanstudios/studiochat-server/internal/config"
	"github.com/swanstudios/studiochat-server/internal/core"
	"github.com/swanstudios/studiochat-server/internal/proto"
	"github.com/swanstudios/studiochat-server/internal/store"
	"github.com/swanstudios/studiochat-server/internal/store/sqlite"
)

type testEnv struct {
	ts   *httptest.Server
	st   store.Store
	gate *auth.Service
	jwt  *auth.JWTConfig
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	logger := zerolog.Nop()
	gate := auth.NewService(st, jwtConfig)
	hub := core.NewHub(st, &logger, time.Second)

	server := NewServer(hub, gate, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, st: st, gate: gate, jwt: jwtConfig}
}

// registerUser creates an account through the gate and returns its token
// and store id.
func registerUser(t *testing.T, env *testEnv, email, firstName string) (string, int64) {
	t.Helper()
	token, err := env.gate.Register(context.Background(), email, "secret1", firstName, "", store.RoleClient)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	u, err := env.st.GetUserByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("lookup %s: %v", email, err)
	}
	return token, u.ID
}

func dialWS(ctx context.Context, t *testing.T, env *testEnv, token string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		wsURL += "?token=" + token
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

type wsFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readEvent reads frames until the named event arrives, skipping
// unrelated broadcasts (presence transitions and the like).
func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn, event string) wsFrame {
	t.Helper()
	for {
		var f wsFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read waiting for %q: %v", event, err)
		}
		if f.Event == event {
			return f
		}
	}
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestRegisterAndLoginEndpoints(t *testing.T) {
	env := startTestServer(t)
	post := func(path string, body string) (int, AuthResponse) {
		resp, err := env.ts.Client().Post(env.ts.URL+path, "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("post %s: %v", path, err)
		}
		defer resp.Body.Close()
		var out AuthResponse
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	status, out := post("/api/register", `{"email":"alice@example.com","password":"secret1","first_name":"Alice"}`)
	if status != 201 || out.Token == "" {
		t.Fatalf("register: status %d, token %q", status, out.Token)
	}

	status, _ = post("/api/register", `{"email":"alice@example.com","password":"secret1","first_name":"Alice"}`)
	if status != 409 {
		t.Fatalf("duplicate register: status %d", status)
	}

	status, _ = post("/api/login", `{"email":"alice@example.com","password":"wrong"}`)
	if status != 401 {
		t.Fatalf("bad login: status %d", status)
	}

	status, out = post("/api/login", `{"email":"alice@example.com","password":"secret1"}`)
	if status != 200 || out.Token == "" {
		t.Fatalf("login: status %d, token %q", status, out.Token)
	}
}

func TestMetricsEndpointRoleGate(t *testing.T) {
	env := startTestServer(t)
	clientToken, _ := registerUser(t, env, "alice@example.com", "Alice")
	adminToken, err := auth.GenerateToken(env.jwt, 99, "admin")
	if err != nil {
		t.Fatalf("generate admin token: %v", err)
	}

	get := func(token string) int {
		req, err := stdhttp.NewRequest(stdhttp.MethodGet, env.ts.URL+"/api/metrics", nil)
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := env.ts.Client().Do(req)
		if err != nil {
			t.Fatalf("metrics request: %v", err)
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	if status := get(clientToken); status != 403 {
		t.Fatalf("client should be forbidden, got %d", status)
	}
	if status := get(""); status != 401 {
		t.Fatalf("anonymous should be unauthorized, got %d", status)
	}
	if status := get(adminToken); status != 200 {
		t.Fatalf("admin should pass, got %d", status)
	}
}

func TestWebSocketAuthGate(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// No token at all.
	conn := dialWS(ctx, t, env, "")
	f := readEvent(ctx, t, conn, proto.EventAuthError)
	if f.Error == nil || f.Error.Code != auth.CodeMissingToken {
		t.Fatalf("expected missing_token, got %+v", f.Error)
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	// Garbage token.
	conn = dialWS(ctx, t, env, "garbage")
	f = readEvent(ctx, t, conn, proto.EventAuthError)
	if f.Error == nil || f.Error.Code != auth.CodeInvalidToken {
		t.Fatalf("expected invalid_token, got %+v", f.Error)
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	// Valid token without a matching account.
	orphan, err := auth.GenerateToken(env.jwt, 4242, "client")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	conn = dialWS(ctx, t, env, orphan)
	f = readEvent(ctx, t, conn, proto.EventAuthError)
	if f.Error == nil || f.Error.Code != auth.CodeAccountNotFound {
		t.Fatalf("expected account_not_found, got %+v", f.Error)
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}

func TestWebSocketChatFlow(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceToken, aliceID := registerUser(t, env, "alice@example.com", "Alice")
	bobToken, bobID := registerUser(t, env, "bob@example.com", "Bob")
	conv, err := env.st.CreateConversation(ctx, store.ConversationDirect, "", []int64{aliceID, bobID})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	room := core.ConversationRoom(conv.ID)

	alice := dialWS(ctx, t, env, aliceToken)
	defer alice.Close(websocket.StatusNormalClosure, "done")
	f := readEvent(ctx, t, alice, proto.EventAuthenticated)
	var authed proto.AuthenticatedData
	if err := json.Unmarshal(f.Data, &authed); err != nil {
		t.Fatalf("unmarshal authenticated: %v", err)
	}
	if authed.UserID != aliceID || authed.Name != "Alice" {
		t.Fatalf("unexpected handshake payload: %+v", authed)
	}

	bob := dialWS(ctx, t, env, bobToken)
	defer bob.Close(websocket.StatusNormalClosure, "done")
	readEvent(ctx, t, bob, proto.EventAuthenticated)

	send(ctx, t, alice, proto.InboundTypeJoin, proto.JoinData{Room: room})
	// A presence round trip on the same connection confirms the join has
	// been processed before Bob's arrives.
	send(ctx, t, alice, proto.InboundTypePresence, proto.PresenceQueryData{ID: "sync", UserIDs: nil})
	readEvent(ctx, t, alice, proto.EventPresence)

	send(ctx, t, bob, proto.InboundTypeJoin, proto.JoinData{Room: room})

	// Alice, already in the room, sees Bob arrive.
	f = readEvent(ctx, t, alice, proto.EventUserJoined)
	var joined proto.RoomUserData
	if err := json.Unmarshal(f.Data, &joined); err != nil {
		t.Fatalf("unmarshal user_joined: %v", err)
	}
	if joined.Room != room || joined.UserID != bobID {
		t.Fatalf("unexpected user_joined: %+v", joined)
	}

	send(ctx, t, bob, proto.InboundTypeMsg, proto.MsgData{Room: room, Content: "see you at 6"})

	var got proto.MessageData
	for _, conn := range []*websocket.Conn{alice, bob} {
		f = readEvent(ctx, t, conn, proto.EventNewMessage)
		if err := json.Unmarshal(f.Data, &got); err != nil {
			t.Fatalf("unmarshal new_message: %v", err)
		}
		if got.Room != room || got.SenderID != bobID || got.Content != "see you at 6" {
			t.Fatalf("unexpected message: %+v", got)
		}
	}

	// Alice reads up to the delivered message; Bob sees the receipt delta.
	send(ctx, t, alice, proto.InboundTypeMarkRead, proto.MarkReadData{Room: room, ThroughMessageID: got.ID})
	f = readEvent(ctx, t, bob, proto.EventMessagesRead)
	var read proto.MessagesReadData
	if err := json.Unmarshal(f.Data, &read); err != nil {
		t.Fatalf("unmarshal messages_read: %v", err)
	}
	if read.UserID != aliceID || len(read.MessageIDs) != 1 || read.MessageIDs[0] != got.ID {
		t.Fatalf("unexpected messages_read: %+v", read)
	}

	// Typing is relayed to everyone else in the room.
	send(ctx, t, bob, proto.InboundTypeTyping, proto.TypingData{Room: room})
	f = readEvent(ctx, t, alice, proto.EventUserTyping)
	var typing proto.RoomUserData
	if err := json.Unmarshal(f.Data, &typing); err != nil {
		t.Fatalf("unmarshal user_typing: %v", err)
	}
	if typing.Room != room || typing.UserID != bobID {
		t.Fatalf("unexpected user_typing: %+v", typing)
	}
}

func TestWebSocketJoinRefused(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceToken, aliceID := registerUser(t, env, "alice@example.com", "Alice")
	if _, err := env.st.CreateConversation(ctx, store.ConversationDirect, "", []int64{aliceID}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	// A second conversation Alice is not part of.
	_, bobID := registerUser(t, env, "bob@example.com", "Bob")
	other, err := env.st.CreateConversation(ctx, store.ConversationDirect, "", []int64{bobID})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	alice := dialWS(ctx, t, env, aliceToken)
	defer alice.Close(websocket.StatusNormalClosure, "done")
	readEvent(ctx, t, alice, proto.EventAuthenticated)

	send(ctx, t, alice, proto.InboundTypeJoin, proto.JoinData{Room: core.ConversationRoom(other.ID)})

	var f wsFrame
	if err := wsjson.Read(ctx, alice, &f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Type != proto.OutboundTypeError || f.Error == nil || f.Error.Code != core.ErrCodeNotAuthorized {
		t.Fatalf("expected not_authorized, got %+v", f)
	}
}

func TestWebSocketPresenceQuery(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceToken, _ := registerUser(t, env, "alice@example.com", "Alice")
	bobToken, bobID := registerUser(t, env, "bob@example.com", "Bob")

	alice := dialWS(ctx, t, env, aliceToken)
	defer alice.Close(websocket.StatusNormalClosure, "done")
	readEvent(ctx, t, alice, proto.EventAuthenticated)

	bob := dialWS(ctx, t, env, bobToken)
	readEvent(ctx, t, bob, proto.EventAuthenticated)

	// Bob is online right now.
	send(ctx, t, alice, proto.InboundTypePresence, proto.PresenceQueryData{ID: "q1", UserIDs: []int64{bobID, 999}})
	f := readEvent(ctx, t, alice, proto.EventPresence)
	if f.Type != proto.OutboundTypeResult {
		t.Fatalf("expected result envelope, got %q", f.Type)
	}
	var statuses struct {
		ID       string          `json:"id"`
		Statuses map[string]bool `json:"statuses"`
	}
	if err := json.Unmarshal(f.Data, &statuses); err != nil {
		t.Fatalf("unmarshal presence: %v", err)
	}
	bobKey := strconv.FormatInt(bobID, 10)
	if statuses.ID != "q1" || !statuses.Statuses[bobKey] || statuses.Statuses["999"] {
		t.Fatalf("unexpected presence payload: %+v", statuses)
	}

	// Bob drops; Alice sees the offline transition.
	bob.Close(websocket.StatusNormalClosure, "done")
	f = readEvent(ctx, t, alice, proto.EventUserOffline)
	var offline proto.UserStatusData
	if err := json.Unmarshal(f.Data, &offline); err != nil {
		t.Fatalf("unmarshal user_offline: %v", err)
	}
	if offline.UserID != bobID {
		t.Fatalf("unexpected user_offline: %+v", offline)
	}
}
