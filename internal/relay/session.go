package relay

import "time"

// Session is the single live presence record for one player identity. The
// identity (wuid) is client-supplied and not authenticated; a newer join with
// the same wuid steals it.
type Session struct {
	Wuid         string
	RoomID       string
	Conn         Conn
	PlayerInfo   map[string]any
	JoinedAt     time.Time
	LastActivity time.Time
	MessagesSent int
}

// sessionTable maps identity to session and connection back to identity.
// It does no locking of its own; every access runs under the Manager's mutex.
type sessionTable struct {
	byWuid map[string]*Session
	byConn map[Conn]string
}

func newSessionTable() *sessionTable {
	return &sessionTable{
		byWuid: make(map[string]*Session),
		byConn: make(map[Conn]string),
	}
}

func (t *sessionTable) get(wuid string) *Session { return t.byWuid[wuid] }

func (t *sessionTable) put(s *Session) {
	t.byWuid[s.Wuid] = s
	t.byConn[s.Conn] = s.Wuid
}

func (t *sessionTable) remove(wuid string) {
	if s, ok := t.byWuid[wuid]; ok {
		delete(t.byConn, s.Conn)
		delete(t.byWuid, wuid)
	}
}

// resolve finds the session bound to a connection, or nil.
func (t *sessionTable) resolve(c Conn) *Session {
	wuid, ok := t.byConn[c]
	if !ok {
		return nil
	}
	return t.byWuid[wuid]
}

func (t *sessionTable) len() int { return len(t.byWuid) }

func (t *sessionTable) forEach(fn func(*Session)) {
	for _, s := range t.byWuid {
		fn(s)
	}
}
