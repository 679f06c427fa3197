package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/swanstudios/studiochat-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for kind %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind == kind {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

var errStoreDown = errors.New("store unavailable")

// fakeStore is an in-memory store.Store for hub tests. Unimplemented
// methods panic via the embedded nil interface.
type fakeStore struct {
	store.Store

	mu            sync.Mutex
	nextMessageID int64
	base          time.Time
	participants  map[int64][]int64
	sessionUsers  map[int64][]int64
	messages      map[int64]*store.Message
	receipts      map[[2]int64]bool
	notifications []*store.Notification

	failInsertMessage      bool
	failParticipantLookup  bool
	failInsertNotification bool

	notifInserted chan *store.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		base:          time.Now(),
		participants:  make(map[int64][]int64),
		sessionUsers:  make(map[int64][]int64),
		messages:      make(map[int64]*store.Message),
		receipts:      make(map[[2]int64]bool),
		notifInserted: make(chan *store.Notification, 16),
	}
}

func (f *fakeStore) addParticipants(conversationID int64, userIDs ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants[conversationID] = append(f.participants[conversationID], userIDs...)
}

func (f *fakeStore) IsParticipant(_ context.Context, conversationID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failParticipantLookup {
		return false, errStoreDown
	}
	for _, id := range f.participants[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListParticipants(_ context.Context, conversationID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.participants[conversationID]...), nil
}

func (f *fakeStore) IsSessionParticipant(_ context.Context, sessionID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.sessionUsers[sessionID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertMessage(_ context.Context, conversationID, senderID int64, content string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertMessage {
		return nil, errStoreDown
	}
	f.nextMessageID++
	msg := &store.Message{
		ID:             f.nextMessageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      f.base.Add(time.Duration(f.nextMessageID) * time.Millisecond),
	}
	f.messages[msg.ID] = msg
	return msg, nil
}

func (f *fakeStore) GetMessageByID(_ context.Context, id int64) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return msg, nil
}

func (f *fakeStore) ListUnread(_ context.Context, conversationID, userID, throughMessageID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	watermark, ok := f.messages[throughMessageID]
	if !ok {
		return nil, nil
	}

	var ids []int64
	for id := int64(1); id <= f.nextMessageID; id++ {
		msg, ok := f.messages[id]
		if !ok || msg.ConversationID != conversationID || msg.SenderID == userID {
			continue
		}
		if msg.CreatedAt.After(watermark.CreatedAt) {
			continue
		}
		if f.receipts[[2]int64{id, userID}] {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) InsertReceiptIfAbsent(_ context.Context, messageID, userID int64, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]int64{messageID, userID}
	if f.receipts[key] {
		return false, nil
	}
	f.receipts[key] = true
	return true, nil
}

func (f *fakeStore) InsertNotification(_ context.Context, userID int64, notifType, payload string) (*store.Notification, error) {
	f.mu.Lock()
	if f.failInsertNotification {
		f.mu.Unlock()
		return nil, errStoreDown
	}
	n := &store.Notification{
		ID:        int64(len(f.notifications) + 1),
		UserID:    userID,
		Type:      notifType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	f.notifications = append(f.notifications, n)
	f.mu.Unlock()

	select {
	case f.notifInserted <- n:
	default:
	}
	return n, nil
}

func (f *fakeStore) notificationsFor(userID int64) []*store.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeStore) Close() error { return nil }
