// Package playerws accepts player websocket connections and translates wire
// events into relay operations.
package playerws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	ws "nhooyr.io/websocket"

	"wormup/sync/internal/config"
	"wormup/sync/internal/relay"
)

const serverVersion = "2.0.0"

type Server struct {
	cfg config.Config
	mgr *relay.Manager
}

func NewServer(cfg config.Config, mgr *relay.Manager) *Server {
	return &Server{cfg: cfg, mgr: mgr}
}

type joinPayload struct {
	Wuid       string         `json:"wuid"`
	RoomID     string         `json:"roomId"`
	PlayerInfo map[string]any `json:"playerInfo"`
}

type updatePayload struct {
	Wuid   string `json:"wuid"`
	RoomID string `json:"roomId"`
	SkinID string `json:"skinId"`
	HatID  string `json:"hatId"`
	EyesID string `json:"eyesId"`
}

type heartbeatPayload struct {
	Wuid string `json:"wuid"`
}

type roomPlayersPayload struct {
	RoomID string `json:"roomId"`
}

// HandlePlayerWS upgrades the request and runs the connection's read loop
// until the client goes away, then routes the close through the relay's
// disconnect path.
func (s *Server) HandlePlayerWS(w http.ResponseWriter, r *http.Request) {
	wc, err := ws.Accept(w, r, s.acceptOptions())
	if err != nil {
		log.Printf("ws accept: %v", err)
		return
	}

	c := newConn(uuid.New().String(), wc)
	s.mgr.ConnectionOpened()
	log.Printf("ws %s: connected", c.ID())

	c.Emit("welcome", map[string]any{
		"message":   "Connected to Wormup Sync Server",
		"serverId":  s.cfg.Server.ID,
		"version":   serverVersion,
		"features":  []string{"skin_sync", "hat_sync", "appearance_sync", "heartbeat", "room_management"},
		"timestamp": time.Now().UnixMilli(),
	})

	readErr := s.readLoop(r, wc, c)

	reason := "transport closed"
	if st := ws.CloseStatus(readErr); st != -1 {
		reason = st.String()
	}
	c.Close("done")
	s.mgr.Disconnect(c, reason)
	log.Printf("ws %s: disconnected (%s)", c.ID(), reason)
}

func (s *Server) readLoop(r *http.Request, wc *ws.Conn, c *Conn) error {
	ctx := r.Context()
	for {
		typ, data, err := wc.Read(ctx)
		if err != nil {
			return err
		}
		if typ != ws.MessageText {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("ws %s: bad frame: %v", c.ID(), err)
			continue
		}
		s.dispatch(c, env)
	}
}

func (s *Server) dispatch(c *Conn, env Envelope) {
	switch env.Event {
	case "join_room":
		var p joinPayload
		if !decode(c, env, &p) {
			return
		}
		s.mgr.Join(c, relay.JoinRequest{Wuid: p.Wuid, RoomID: p.RoomID, PlayerInfo: p.PlayerInfo})
	case "skin_update":
		s.update(c, env, relay.KindSkin)
	case "hat_update":
		s.update(c, env, relay.KindHat)
	case "appearance_update":
		s.update(c, env, relay.KindAppearance)
	case "heartbeat":
		var p heartbeatPayload
		if !decode(c, env, &p) {
			return
		}
		s.mgr.Heartbeat(c, p.Wuid)
	case "get_room_players":
		var p roomPlayersPayload
		if !decode(c, env, &p) {
			return
		}
		s.mgr.RoomPlayers(c, p.RoomID)
	default:
		// Unregistered events are dropped, matching the original server.
		log.Printf("ws %s: unknown event %q", c.ID(), env.Event)
	}
}

func (s *Server) update(c *Conn, env Envelope, kind relay.UpdateKind) {
	var p updatePayload
	if !decode(c, env, &p) {
		return
	}
	s.mgr.Update(c, kind, relay.UpdateRequest{
		Wuid:   p.Wuid,
		RoomID: p.RoomID,
		SkinID: p.SkinID,
		HatID:  p.HatID,
		EyesID: p.EyesID,
	})
}

// decode unmarshals the payload. An absent payload passes through so the
// relay's own validation reports the missing fields.
func decode(c *Conn, env Envelope, v any) bool {
	if len(env.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		log.Printf("ws %s: bad %s payload: %v", c.ID(), env.Event, err)
		return false
	}
	return true
}

func (s *Server) acceptOptions() *ws.AcceptOptions {
	for _, o := range s.cfg.Server.AllowedOrigins {
		if o == "*" {
			return &ws.AcceptOptions{InsecureSkipVerify: true}
		}
	}
	return &ws.AcceptOptions{OriginPatterns: s.cfg.Server.AllowedOrigins}
}
