package relay

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically evicts sessions that went quiet or whose connection
// died without a disconnect signal. It is the only mechanism that reclaims
// rooms abandoned by ungraceful disconnects.
type Sweeper struct {
	mgr        *Manager
	interval   time.Duration
	staleAfter time.Duration
}

func NewSweeper(mgr *Manager, interval, staleAfter time.Duration) *Sweeper {
	return &Sweeper{mgr: mgr, interval: interval, staleAfter: staleAfter}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.mgr.SweepStale(time.Now().UTC(), s.staleAfter); n > 0 {
				log.Printf("sweeper evicted %d stale sessions", n)
			}
		}
	}
}

// SweepStale evicts every session whose last activity is older than
// staleAfter or whose connection is no longer live. Eviction runs through
// the same removal path as an explicit disconnect, so room cleanup and
// player_leave semantics are identical. Returns the number evicted.
func (m *Manager) SweepStale(now time.Time, staleAfter time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []*Session
	m.sessions.forEach(func(s *Session) {
		if now.Sub(s.LastActivity) > staleAfter || !s.Conn.IsConnected() {
			stale = append(stale, s)
		}
	})
	for _, s := range stale {
		s.Conn.Close("evicted: stale session")
		m.disconnect(s.Conn, "stale")
		metricEvictions.Inc()
	}
	return len(stale)
}
