package relay

import "time"

// StatsSnapshot is the aggregate view served on /stats. JSON field names
// match the wire protocol's camelCase; timestamps are epoch millis.
type StatsSnapshot struct {
	TotalConnections      int64   `json:"totalConnections"`
	ActiveConnections     int     `json:"activeConnections"`
	ActiveRooms           int     `json:"activeRooms"`
	TotalMessages         int64   `json:"totalMessages"`
	SkinUpdates           int64   `json:"skinUpdates"`
	HatUpdates            int64   `json:"hatUpdates"`
	AppearanceUpdates     int64   `json:"appearanceUpdates"`
	RoomsCreated          int64   `json:"roomsCreated"`
	Uptime                int64   `json:"uptime"`
	AveragePlayersPerRoom float64 `json:"averagePlayersPerRoom"`
	Timestamp             int64   `json:"timestamp"`
}

// RoomInfo is the per-room dump served on /rooms.
type RoomInfo struct {
	PlayerCount  int             `json:"playerCount"`
	Players      []PlayerSummary `json:"players"`
	CreatedAt    int64           `json:"createdAt"`
	LastActivity int64           `json:"lastActivity"`
	MessageCount int             `json:"messageCount"`
}

// PlayerSummary is one session's introspection record.
type PlayerSummary struct {
	Wuid         string         `json:"wuid"`
	RoomID       string         `json:"roomId,omitempty"`
	PlayerInfo   map[string]any `json:"playerInfo"`
	Online       bool           `json:"online"`
	JoinTime     int64          `json:"joinTime,omitempty"`
	LastActivity int64          `json:"lastActivity"`
	MessagesSent int            `json:"messagesSent"`
}

// Stats returns the aggregate counters. Read-only; safe to call concurrently
// with any relay operation.
func (m *Manager) Stats() StatsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	avg := 0.0
	if m.rooms.len() > 0 {
		total := 0
		m.rooms.forEach(func(r *Room) { total += r.Size() })
		avg = float64(total) / float64(m.rooms.len())
	}
	return StatsSnapshot{
		TotalConnections:      m.counters.totalConnections,
		ActiveConnections:     m.sessions.len(),
		ActiveRooms:           m.rooms.len(),
		TotalMessages:         m.counters.totalMessages,
		SkinUpdates:           m.counters.skinUpdates,
		HatUpdates:            m.counters.hatUpdates,
		AppearanceUpdates:     m.counters.appearanceUpdates,
		RoomsCreated:          m.counters.roomsCreated,
		Uptime:                now.Sub(m.startedAt).Milliseconds(),
		AveragePlayersPerRoom: avg,
		Timestamp:             now.UnixMilli(),
	}
}

// RoomsInfo returns the per-room dump keyed by room id.
func (m *Manager) RoomsInfo() map[string]RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]RoomInfo, m.rooms.len())
	m.rooms.forEach(func(r *Room) {
		players := make([]PlayerSummary, 0, r.Size())
		for _, wuid := range r.members {
			players = append(players, m.playerSummary(wuid, false))
		}
		out[r.ID] = RoomInfo{
			PlayerCount:  r.Size(),
			Players:      players,
			CreatedAt:    r.CreatedAt.UnixMilli(),
			LastActivity: r.LastActivity.UnixMilli(),
			MessageCount: r.MessageCount,
		}
	})
	return out
}

// PlayersInfo returns every registered session's record.
func (m *Manager) PlayersInfo() []PlayerSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PlayerSummary, 0, m.sessions.len())
	m.sessions.forEach(func(s *Session) {
		out = append(out, m.playerSummary(s.Wuid, true))
	})
	return out
}

func (m *Manager) playerSummary(wuid string, withRoom bool) PlayerSummary {
	p := PlayerSummary{Wuid: wuid, PlayerInfo: map[string]any{}}
	s := m.sessions.get(wuid)
	if s == nil {
		return p
	}
	p.PlayerInfo = s.PlayerInfo
	p.Online = s.Conn.IsConnected()
	p.LastActivity = s.LastActivity.UnixMilli()
	p.MessagesSent = s.MessagesSent
	if withRoom {
		p.RoomID = s.RoomID
		p.JoinTime = s.JoinedAt.UnixMilli()
	}
	return p
}

// Healthy reports the binary health flag for the HTTP layer.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.len() >= 0
}

// Uptime since the manager was constructed.
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.startedAt)
}
