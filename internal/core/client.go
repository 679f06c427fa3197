package core

import "sync"

// eventBuffer is the per-connection outbound queue size. Events beyond
// it are dropped rather than blocking fan-out on a slow consumer.
const eventBuffer = 128

// Client is one live connection as seen by the core layer. The identity
// fields are set once at registration and never change.
type Client struct {
	ID     string
	UserID int64
	Role   string
	Name   string

	mu     sync.Mutex
	closed bool
	events chan *Event
}

// NewClient constructs a client for an authenticated connection.
func NewClient(id string, userID int64, role, name string) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Role:   role,
		Name:   name,
		events: make(chan *Event, eventBuffer),
	}
}

// Events returns the channel the transport writer drains. It is closed
// when the hub unregisters the client.
func (c *Client) Events() <-chan *Event {
	return c.events
}

// TrySend queues an event without blocking. Returns false if the client
// is closed or its buffer is full.
func (c *Client) TrySend(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// close marks the client dead and closes its event channel. Safe against
// concurrent TrySend; idempotent.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}
