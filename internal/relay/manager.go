// Package relay implements the session/room membership manager and broadcast
// fan-out for the sync server. All state is in-memory and dies with the
// process.
package relay

import (
	"log"
	"sync"
	"time"
)

// Conn is the transport handle the relay drives. Implementations must be
// comparable (one value per live connection) and safe for concurrent use.
type Conn interface {
	// Emit sends a named event to this client. Sends are fire-and-forget:
	// delivery failures surface later as a dead connection, not here.
	Emit(event string, payload map[string]any)
	// Close tears the connection down with a human-readable reason.
	Close(reason string)
	// IsConnected reports whether the underlying transport is still live.
	IsConnected() bool
}

// UpdateKind tags the three sync event families the relay routes.
type UpdateKind string

const (
	KindSkin       UpdateKind = "skin"
	KindHat        UpdateKind = "hat"
	KindAppearance UpdateKind = "appearance"
)

type JoinRequest struct {
	Wuid       string
	RoomID     string
	PlayerInfo map[string]any
}

// UpdateRequest carries the opaque appearance IDs of a sync event. Which
// fields are meaningful depends on the UpdateKind; values are never
// interpreted or bounds-checked here.
type UpdateRequest struct {
	Wuid   string
	RoomID string
	SkinID string
	HatID  string
	EyesID string
}

// Manager owns the session and room tables and applies every mutation under
// one mutex, so no operation observes a torn intermediate state of either
// table. Sweeper eviction and transport disconnects share the same removal
// path.
type Manager struct {
	mu       sync.Mutex
	sessions *sessionTable
	rooms    *roomTable

	startedAt time.Time
	counters  counters
}

type counters struct {
	totalConnections  int64
	totalMessages     int64
	skinUpdates       int64
	hatUpdates        int64
	appearanceUpdates int64
	roomsCreated      int64
}

func NewManager() *Manager {
	return &Manager{
		sessions:  newSessionTable(),
		rooms:     newRoomTable(),
		startedAt: time.Now().UTC(),
	}
}

// ConnectionOpened records a new raw transport connection, before any join.
func (m *Manager) ConnectionOpened() {
	m.mu.Lock()
	m.counters.totalConnections++
	m.mu.Unlock()
	metricConnectionsTotal.Inc()
}

// Join registers a player in a room, creating the room if needed. A join for
// an already-active wuid steals the identity: the prior connection is closed
// first. On success the other members get player_join and the joiner gets
// join_success with the current roster.
func (m *Manager) Join(c Conn, req JoinRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Wuid == "" || req.RoomID == "" {
		m.emitError(c, errInvalidRequest)
		return
	}

	now := time.Now().UTC()

	// Membership of the stolen session is dropped without a player_leave;
	// the join below re-announces presence immediately. A rejoin on the same
	// connection keeps it open.
	if prev := m.sessions.get(req.Wuid); prev != nil {
		if prev.Conn != c && prev.Conn.IsConnected() {
			prev.Conn.Close("replaced by newer join")
			log.Printf("replaced existing connection for %s", req.Wuid)
		}
		m.sessions.remove(req.Wuid)
		m.dropMembership(prev, false)
	}

	room, created := m.rooms.getOrCreate(req.RoomID, now)
	if created {
		m.counters.roomsCreated++
		metricRoomsCreated.Inc()
		log.Printf("created room %s", req.RoomID)
	}
	room.addMember(req.Wuid)
	room.LastActivity = now

	info := req.PlayerInfo
	if info == nil {
		info = map[string]any{}
	}
	m.sessions.put(&Session{
		Wuid:         req.Wuid,
		RoomID:       req.RoomID,
		Conn:         c,
		PlayerInfo:   info,
		JoinedAt:     now,
		LastActivity: now,
	})
	m.setGauges()

	m.broadcast(room, req.Wuid, "player_join", map[string]any{
		"wuid":       req.Wuid,
		"playerInfo": info,
		"timestamp":  now.UnixMilli(),
	})
	c.Emit("join_success", map[string]any{
		"roomId":        req.RoomID,
		"playersInRoom": room.Size(),
		"players":       m.roster(room, false),
		"serverTime":    now.UnixMilli(),
	})
	log.Printf("player %s joined room %s (%d members)", req.Wuid, req.RoomID, room.Size())
}

// Update relays a skin/hat/appearance change to the sender's room. The
// sender never receives the broadcast; it gets a single update_confirmed
// carrying the same fields.
func (m *Manager) Update(c Conn, kind UpdateKind, req UpdateRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, room, ok := m.validate(c, req.Wuid, req.RoomID)
	if !ok {
		return
	}

	now := time.Now().UTC()
	sess.LastActivity = now
	room.LastActivity = now
	room.MessageCount++
	m.counters.totalMessages++
	switch kind {
	case KindSkin:
		m.counters.skinUpdates++
	case KindHat:
		m.counters.hatUpdates++
	case KindAppearance:
		m.counters.appearanceUpdates++
	}
	metricUpdates.WithLabelValues(string(kind)).Inc()

	fields := updateFields(kind, req)

	out := map[string]any{"wuid": req.Wuid, "timestamp": now.UnixMilli()}
	for k, v := range fields {
		out[k] = v
	}
	m.broadcast(room, req.Wuid, string(kind)+"_update", out)

	ack := map[string]any{"type": string(kind), "timestamp": now.UnixMilli()}
	for k, v := range fields {
		ack[k] = v
	}
	c.Emit("update_confirmed", ack)
}

// updateFields picks the wire fields each kind carries.
func updateFields(kind UpdateKind, req UpdateRequest) map[string]any {
	switch kind {
	case KindSkin:
		return map[string]any{"skinId": req.SkinID}
	case KindHat:
		return map[string]any{"hatId": req.HatID}
	default:
		return map[string]any{"skinId": req.SkinID, "hatId": req.HatID, "eyesId": req.EyesID}
	}
}

// Heartbeat refreshes a session's liveness and answers with a pong. Unknown
// identities are silently ignored to tolerate the race window around
// disconnect/reconnect.
func (m *Manager) Heartbeat(c Conn, wuid string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.sessions.get(wuid)
	if wuid == "" || sess == nil {
		return
	}
	now := time.Now().UTC()
	sess.LastActivity = now

	playersInRoom := 0
	if room := m.rooms.get(sess.RoomID); room != nil {
		playersInRoom = room.Size()
	}
	c.Emit("pong", map[string]any{
		"timestamp":     now.UnixMilli(),
		"playersInRoom": playersInRoom,
		"serverUptime":  now.Sub(m.startedAt).Milliseconds(),
	})
}

// RoomPlayers answers a roster query. The caller must have a registered
// session; an unknown room yields an empty roster, not an error.
func (m *Manager) RoomPlayers(c Conn, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions.resolve(c) == nil {
		m.emitError(c, errUnauthorized)
		return
	}
	room := m.rooms.get(roomID)
	if room == nil {
		c.Emit("room_players", map[string]any{"players": []map[string]any{}})
		return
	}
	c.Emit("room_players", map[string]any{
		"roomId":    roomID,
		"players":   m.roster(room, true),
		"timestamp": time.Now().UnixMilli(),
	})
}

// Disconnect removes whatever session is bound to this connection. It is the
// single removal path, shared by transport closes and sweeper eviction, and
// is a no-op for connections that never joined.
func (m *Manager) Disconnect(c Conn, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnect(c, reason)
}

func (m *Manager) disconnect(c Conn, reason string) {
	sess := m.sessions.resolve(c)
	if sess == nil {
		return
	}
	m.sessions.remove(sess.Wuid)
	m.dropMembership(sess, true)
	m.setGauges()
	log.Printf("player %s left (%s)", sess.Wuid, reason)
}

// dropMembership removes a session from its room, destroying the room the
// moment it empties. announce controls the player_leave broadcast to any
// remaining members.
func (m *Manager) dropMembership(sess *Session, announce bool) {
	room := m.rooms.get(sess.RoomID)
	if room == nil {
		return
	}
	room.removeMember(sess.Wuid)
	if m.rooms.removeIfEmpty(room.ID) {
		log.Printf("removed empty room %s", room.ID)
		return
	}
	if announce {
		m.broadcast(room, sess.Wuid, "player_leave", map[string]any{
			"wuid":      sess.Wuid,
			"timestamp": time.Now().UnixMilli(),
		})
	}
}

// validate is the shared precondition gate for per-room operations. Checks
// run in order and the first failure wins; on success the session's message
// counter is bumped (introspection only, not rate limiting).
func (m *Manager) validate(c Conn, wuid, roomID string) (*Session, *Room, bool) {
	if wuid == "" || roomID == "" {
		m.emitError(c, errInvalidRequest)
		return nil, nil, false
	}
	sess := m.sessions.get(wuid)
	if sess == nil {
		m.emitError(c, errPlayerNotFound)
		return nil, nil, false
	}
	room := m.rooms.get(roomID)
	if room == nil {
		m.emitError(c, errRoomNotFound)
		return nil, nil, false
	}
	sess.MessagesSent++
	return sess, room, true
}

// broadcast fans an event out to every room member except the sender.
func (m *Manager) broadcast(room *Room, exclude string, event string, payload map[string]any) {
	for _, wuid := range room.members {
		if wuid == exclude {
			continue
		}
		if peer := m.sessions.get(wuid); peer != nil {
			peer.Conn.Emit(event, payload)
		}
	}
}

// roster serves the member list in insertion order. withActivity adds the
// lastActivity field room_players carries but join_success does not.
func (m *Manager) roster(room *Room, withActivity bool) []map[string]any {
	out := make([]map[string]any, 0, room.Size())
	for _, wuid := range room.members {
		entry := map[string]any{
			"wuid":       wuid,
			"playerInfo": map[string]any{},
			"online":     false,
		}
		if s := m.sessions.get(wuid); s != nil {
			entry["playerInfo"] = s.PlayerInfo
			entry["online"] = s.Conn.IsConnected()
			if withActivity {
				entry["lastActivity"] = s.LastActivity.UnixMilli()
			}
		}
		out = append(out, entry)
	}
	return out
}

func (m *Manager) emitError(c Conn, e *Error) {
	metricRequestErrors.WithLabelValues(e.Code).Inc()
	c.Emit("error", map[string]any{
		"code":      e.Code,
		"message":   e.Message,
		"timestamp": time.Now().UnixMilli(),
	})
}

func (m *Manager) setGauges() {
	metricActiveSessions.Set(float64(m.sessions.len()))
	metricActiveRooms.Set(float64(m.rooms.len()))
}
