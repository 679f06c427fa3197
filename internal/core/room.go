package core

import "sync"

// Room groups connections subscribed to the same broadcast group.
type Room struct {
	Name string

	mu      sync.RWMutex
	members map[*Client]struct{}

	// sendMu serializes persist+broadcast so delivery order within the
	// room matches persistence order. Different rooms proceed in parallel.
	sendMu sync.Mutex
}

func newRoom(name string) *Room {
	return &Room{
		Name:    name,
		members: make(map[*Client]struct{}),
	}
}

func (r *Room) add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.members[c]; exists {
		return false
	}
	r.members[c] = struct{}{}
	return true
}

func (r *Room) remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.members[c]; !exists {
		return false
	}
	delete(r.members, c)
	return true
}

func (r *Room) has(c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[c]
	return ok
}

func (r *Room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// broadcast queues the event on every member. Sends never block; a slow
// or closed member is skipped, not waited on.
func (r *Room) broadcast(ev *Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.members {
		c.TrySend(ev)
	}
}

func (r *Room) broadcastExcept(skip *Client, ev *Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.members {
		if c == skip {
			continue
		}
		c.TrySend(ev)
	}
}

// roomSet owns all live rooms and each connection's joined set. One
// mutex guards both maps so disconnect cleanup is a single pass with no
// window where a broadcast targets a half-removed member.
type roomSet struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	joined map[*Client]map[string]*Room
}

func newRoomSet() *roomSet {
	return &roomSet{
		rooms:  make(map[string]*Room),
		joined: make(map[*Client]map[string]*Room),
	}
}

// get returns the named room, or nil if nobody has joined it yet.
func (s *roomSet) get(name string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[name]
}

// join adds the connection to the named room, creating it on first use.
// Reports whether the membership is new; re-joining is a no-op.
func (s *roomSet) join(c *Client, name string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[name]
	if !ok {
		room = newRoom(name)
		s.rooms[name] = room
	}

	added := room.add(c)
	if added {
		set, ok := s.joined[c]
		if !ok {
			set = make(map[string]*Room)
			s.joined[c] = set
		}
		set[name] = room
	}
	return room, added
}

// leaveAll removes the connection from every joined room and returns
// the rooms it left. Empty rooms are dropped.
func (s *roomSet) leaveAll(c *Client) []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.joined[c]
	delete(s.joined, c)

	left := make([]*Room, 0, len(set))
	for name, room := range set {
		room.remove(c)
		left = append(left, room)
		if room.size() == 0 {
			delete(s.rooms, name)
		}
	}
	return left
}

// sizes reports current membership count per room.
func (s *roomSet) sizes() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.rooms))
	for name, room := range s.rooms {
		out[name] = room.size()
	}
	return out
}
