package playerws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ws "nhooyr.io/websocket"

	"wormup/sync/internal/config"
	"wormup/sync/internal/relay"
)

func newTestServer(t *testing.T) (*httptest.Server, *relay.Manager) {
	t.Helper()
	mgr := relay.NewManager()
	s := NewServer(config.Load(), mgr)
	srv := httptest.NewServer(http.HandlerFunc(s.HandlePlayerWS))
	t.Cleanup(srv.Close)
	return srv, mgr
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *ws.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := ws.Dial(ctx, u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close(ws.StatusNormalClosure, "test done") })
	return c
}

func send(t *testing.T, ctx context.Context, c *ws.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", event, err)
	}
	frame, _ := json.Marshal(Envelope{Event: event, Data: raw})
	if err := c.Write(ctx, ws.MessageText, frame); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func recv(t *testing.T, ctx context.Context, c *ws.Conn) (string, map[string]any) {
	t.Helper()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("bad frame %q: %v", data, err)
	}
	payload := map[string]any{}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("bad %s payload: %v", env.Event, err)
		}
	}
	return env.Event, payload
}

func expect(t *testing.T, ctx context.Context, c *ws.Conn, event string) map[string]any {
	t.Helper()
	got, payload := recv(t, ctx, c)
	if got != event {
		t.Fatalf("expected %s, got %s (%v)", event, got, payload)
	}
	return payload
}

func TestConnectWelcomeAndJoin(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, srv)

	w := expect(t, ctx, c, "welcome")
	if w["version"] != "2.0.0" {
		t.Fatalf("unexpected welcome payload %v", w)
	}

	send(t, ctx, c, "join_room", map[string]any{
		"wuid": "u1", "roomId": "r1", "playerInfo": map[string]any{"name": "worm"},
	})
	ok := expect(t, ctx, c, "join_success")
	if ok["roomId"] != "r1" || ok["playersInRoom"] != float64(1) {
		t.Fatalf("unexpected join_success payload %v", ok)
	}
}

func TestUpdateBeforeJoinRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, srv)
	expect(t, ctx, c, "welcome")

	send(t, ctx, c, "skin_update", map[string]any{"wuid": "u3", "roomId": "r1", "skinId": "red"})
	e := expect(t, ctx, c, "error")
	if e["code"] != "PLAYER_NOT_FOUND" {
		t.Fatalf("expected PLAYER_NOT_FOUND, got %v", e)
	}
}

func TestFanoutBetweenClients(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := dial(t, ctx, srv)
	expect(t, ctx, a, "welcome")
	send(t, ctx, a, "join_room", map[string]any{"wuid": "u1", "roomId": "r1"})
	expect(t, ctx, a, "join_success")

	b := dial(t, ctx, srv)
	expect(t, ctx, b, "welcome")
	send(t, ctx, b, "join_room", map[string]any{"wuid": "u2", "roomId": "r1"})
	ok := expect(t, ctx, b, "join_success")
	if ok["playersInRoom"] != float64(2) {
		t.Fatalf("expected 2 players, got %v", ok)
	}

	pj := expect(t, ctx, a, "player_join")
	if pj["wuid"] != "u2" {
		t.Fatalf("expected player_join for u2, got %v", pj)
	}

	send(t, ctx, a, "skin_update", map[string]any{"wuid": "u1", "roomId": "r1", "skinId": "red"})
	up := expect(t, ctx, b, "skin_update")
	if up["wuid"] != "u1" || up["skinId"] != "red" {
		t.Fatalf("unexpected skin_update %v", up)
	}
	ack := expect(t, ctx, a, "update_confirmed")
	if ack["type"] != "skin" || ack["skinId"] != "red" {
		t.Fatalf("unexpected ack %v", ack)
	}
}

func TestDisconnectAnnouncesLeave(t *testing.T) {
	srv, mgr := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := dial(t, ctx, srv)
	expect(t, ctx, a, "welcome")
	send(t, ctx, a, "join_room", map[string]any{"wuid": "u1", "roomId": "r1"})
	expect(t, ctx, a, "join_success")

	b := dial(t, ctx, srv)
	expect(t, ctx, b, "welcome")
	send(t, ctx, b, "join_room", map[string]any{"wuid": "u2", "roomId": "r1"})
	expect(t, ctx, b, "join_success")
	expect(t, ctx, a, "player_join")

	b.Close(ws.StatusNormalClosure, "bye")

	pl := expect(t, ctx, a, "player_leave")
	if pl["wuid"] != "u2" {
		t.Fatalf("expected player_leave for u2, got %v", pl)
	}

	deadline := time.Now().Add(5 * time.Second)
	for mgr.Stats().ActiveConnections != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("session for u2 was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStalledPeerDoesNotBlockRelay(t *testing.T) {
	srv, mgr := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := dial(t, ctx, srv)
	expect(t, ctx, a, "welcome")
	send(t, ctx, a, "join_room", map[string]any{"wuid": "u1", "roomId": "r1"})
	expect(t, ctx, a, "join_success")

	b := dial(t, ctx, srv)
	expect(t, ctx, b, "welcome")
	send(t, ctx, b, "join_room", map[string]any{"wuid": "u2", "roomId": "r1"})
	expect(t, ctx, b, "join_success")
	expect(t, ctx, a, "player_join")

	// b now stops reading entirely; its socket buffers and send queue fill
	// while a keeps broadcasting large updates through the room.

	go func() { // drain a's acks so a itself never backpressures
		for {
			if _, _, err := a.Read(ctx); err != nil {
				return
			}
		}
	}()

	var worstStats atomic.Int64
	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		for i := 0; i < 200; i++ {
			start := time.Now()
			mgr.Stats()
			if d := time.Since(start); d.Nanoseconds() > worstStats.Load() {
				worstStats.Store(d.Nanoseconds())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	big := strings.Repeat("x", 32<<10)
	for i := 0; i < 600; i++ {
		send(t, ctx, a, "skin_update", map[string]any{"wuid": "u1", "roomId": "r1", "skinId": big})
	}

	// The stalled peer is dropped instead of stalling everyone else.
	deadline := time.Now().Add(15 * time.Second)
	for mgr.Stats().ActiveConnections != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("stalled peer was never dropped")
		}
		time.Sleep(10 * time.Millisecond)
	}

	<-samplerDone
	if worst := time.Duration(worstStats.Load()); worst > time.Second {
		t.Fatalf("Stats() stalled behind a slow peer's writes: worst latency %s", worst)
	}
}

func TestMalformedFrameIgnored(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, srv)
	expect(t, ctx, c, "welcome")

	if err := c.Write(ctx, ws.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The connection survives the bad frame and keeps serving events.
	send(t, ctx, c, "join_room", map[string]any{"wuid": "u1", "roomId": "r1"})
	expect(t, ctx, c, "join_success")
}
