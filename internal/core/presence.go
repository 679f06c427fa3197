package core

import "sync"

// Presence is the source of truth for who is online. Process-local in
// this implementation; the interface exists so a shared-store-backed
// registry can replace it without touching the message pipeline.
type Presence interface {
	// Add registers a connection and reports whether the user went from
	// zero to at least one connection.
	Add(c *Client) (wentOnline bool)

	// Remove drops a connection and reports whether the user's last
	// connection just closed.
	Remove(c *Client) (wentOffline bool)

	// IsOnline reports whether the user has at least one connection.
	IsOnline(userID int64) bool

	// Connections returns the user's live connections.
	Connections(userID int64) []*Client

	// Snapshot answers a batch online-status query.
	Snapshot(userIDs []int64) map[int64]bool

	// Each visits every live connection.
	Each(fn func(*Client))
}

// memoryPresence is a mutex-encapsulated map of user id to connection
// set. All transitions are decided under one lock, so online/offline is
// observed exactly once per user even under multi-device races.
type memoryPresence struct {
	mu     sync.Mutex
	byUser map[int64]map[*Client]struct{}
}

// NewMemoryPresence builds the in-process presence registry.
func NewMemoryPresence() Presence {
	return &memoryPresence{byUser: make(map[int64]map[*Client]struct{})}
}

func (p *memoryPresence) Add(c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.byUser[c.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		p.byUser[c.UserID] = conns
	}
	conns[c] = struct{}{}
	return !ok
}

func (p *memoryPresence) Remove(c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.byUser[c.UserID]
	if !ok {
		return false
	}
	if _, member := conns[c]; !member {
		return false
	}
	delete(conns, c)
	if len(conns) > 0 {
		return false
	}
	delete(p.byUser, c.UserID)
	return true
}

func (p *memoryPresence) IsOnline(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byUser[userID]) > 0
}

func (p *memoryPresence) Connections(userID int64) []*Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns := p.byUser[userID]
	out := make([]*Client, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

func (p *memoryPresence) Snapshot(userIDs []int64) map[int64]bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		out[id] = len(p.byUser[id]) > 0
	}
	return out
}

func (p *memoryPresence) Each(fn func(*Client)) {
	p.mu.Lock()
	clients := make([]*Client, 0, len(p.byUser))
	for _, conns := range p.byUser {
		for c := range conns {
			clients = append(clients, c)
		}
	}
	p.mu.Unlock()

	for _, c := range clients {
		fn(c)
	}
}
