package core

import "sync"

// Metrics passively counts connection events for operational dashboards.
type Metrics struct {
	mu      sync.Mutex
	total   int64
	active  int
	perRole map[string]int
}

// MetricsSnapshot is the read-only view exposed to health dashboards.
type MetricsSnapshot struct {
	TotalConnections   int64          `json:"total_connections"`
	ActiveConnections  int            `json:"active_connections"`
	PerRoleConnections map[string]int `json:"per_role_connections"`
	RoomSizes          map[string]int `json:"room_sizes"`
}

func newMetrics() *Metrics {
	return &Metrics{perRole: make(map[string]int)}
}

func (m *Metrics) connOpened(role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.active++
	m.perRole[role]++
}

func (m *Metrics) connClosed(role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
	if m.perRole[role] > 1 {
		m.perRole[role]--
	} else {
		delete(m.perRole, role)
	}
}

func (m *Metrics) snapshot(roomSizes map[string]int) MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	perRole := make(map[string]int, len(m.perRole))
	for role, n := range m.perRole {
		perRole[role] = n
	}
	return MetricsSnapshot{
		TotalConnections:   m.total,
		ActiveConnections:  m.active,
		PerRoleConnections: perRole,
		RoomSizes:          roomSizes,
	}
}
