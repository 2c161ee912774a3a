package relay

import "time"

// Room is a named broadcast group. Rooms are created lazily on first join and
// destroyed the instant the last member leaves.
type Room struct {
	ID           string
	members      []string // insertion order; rosters are served in this order
	CreatedAt    time.Time
	LastActivity time.Time
	MessageCount int
}

func (r *Room) addMember(wuid string) {
	if r.hasMember(wuid) {
		return
	}
	r.members = append(r.members, wuid)
}

func (r *Room) removeMember(wuid string) {
	for i, m := range r.members {
		if m == wuid {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return
		}
	}
}

func (r *Room) hasMember(wuid string) bool {
	for _, m := range r.members {
		if m == wuid {
			return true
		}
	}
	return false
}

func (r *Room) Size() int { return len(r.members) }

// Members returns a copy of the member list in insertion order.
func (r *Room) Members() []string {
	out := make([]string, len(r.members))
	copy(out, r.members)
	return out
}

// roomTable maps room id to room. Like sessionTable it relies on the
// Manager's mutex for all access.
type roomTable struct {
	rooms map[string]*Room
}

func newRoomTable() *roomTable {
	return &roomTable{rooms: make(map[string]*Room)}
}

func (t *roomTable) get(id string) *Room { return t.rooms[id] }

// getOrCreate is the only path that fabricates a room. The created flag lets
// the caller count room creations exactly once per key.
func (t *roomTable) getOrCreate(id string, now time.Time) (room *Room, created bool) {
	if r, ok := t.rooms[id]; ok {
		return r, false
	}
	r := &Room{ID: id, CreatedAt: now, LastActivity: now}
	t.rooms[id] = r
	return r, true
}

// removeIfEmpty deletes the room only when its member set is empty.
func (t *roomTable) removeIfEmpty(id string) bool {
	r, ok := t.rooms[id]
	if !ok || r.Size() > 0 {
		return false
	}
	delete(t.rooms, id)
	return true
}

func (t *roomTable) len() int { return len(t.rooms) }

func (t *roomTable) forEach(fn func(*Room)) {
	for _, r := range t.rooms {
		fn(r)
	}
}
