// Package api serializes the relay's read-only introspection surface over
// HTTP. Handlers never mutate relay state.
package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"wormup/sync/internal/config"
	"wormup/sync/internal/relay"
)

const serverVersion = "2.0.0"

// StatsSource is the projection the handlers serialize. The relay Manager
// implements it.
type StatsSource interface {
	Stats() relay.StatsSnapshot
	RoomsInfo() map[string]relay.RoomInfo
	PlayersInfo() []relay.PlayerSummary
	Healthy() bool
	Uptime() time.Duration
}

type Handlers struct {
	cfg   config.Config
	stats StatsSource
}

func NewHandlers(cfg config.Config, src StatsSource) *Handlers {
	return &Handlers{cfg: cfg, stats: src}
}

func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":  "Wormup Sync Server",
		"version":  serverVersion,
		"status":   "running",
		"serverId": h.cfg.Server.ID,
		"stats":    h.stats.Stats(),
		"features": []string{
			"Real-time skin synchronization",
			"Real-time hat synchronization",
			"Full appearance synchronization",
			"Room management",
			"Player heartbeat monitoring",
			"Automatic cleanup",
		},
		"endpoints": map[string]string{
			"websocket": "/ws",
			"stats":     "/stats",
			"rooms":     "/rooms",
			"players":   "/players",
			"health":    "/health",
			"metrics":   "/metrics",
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

func (h *Handlers) HandleRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.RoomsInfo())
}

func (h *Handlers) HandlePlayers(w http.ResponseWriter, r *http.Request) {
	players := h.stats.PlayersInfo()
	writeJSON(w, http.StatusOK, map[string]any{
		"totalPlayers": len(players),
		"players":      players,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.stats.Stats()
	healthy := h.stats.Healthy()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":      status,
		"uptime":      h.stats.Uptime().Seconds(),
		"connections": st.ActiveConnections,
		"rooms":       st.ActiveRooms,
		"goroutines":  runtime.NumGoroutine(),
		"memory": map[string]any{
			"allocBytes": mem.Alloc,
			"sysBytes":   mem.Sys,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
