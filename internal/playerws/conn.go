package playerws

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	ws "nhooyr.io/websocket"
)

const (
	writeTimeout = 5 * time.Second

	// sendQueueSize bounds the per-connection outbound queue. A client that
	// stops reading fills its queue and is dropped instead of stalling the
	// relay.
	sendQueueSize = 64
)

// Envelope is the wire frame in both directions: a named event plus its JSON
// payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn adapts one websocket connection to the relay's transport contract.
// Emit only enqueues; a dedicated writer goroutine drains the queue, so no
// relay operation ever blocks on a peer's socket. A failed or overflowing
// send marks the connection dead so the sweeper can reclaim the session.
type Conn struct {
	id          string
	ws          *ws.Conn
	send        chan []byte
	done        chan struct{}
	closed      atomic.Bool
	closeReason string
}

func newConn(id string, c *ws.Conn) *Conn {
	conn := &Conn{
		id:   id,
		ws:   c,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
	go conn.writePump()
	return conn
}

// ID is the per-connection socket id, used in logs.
func (c *Conn) ID() string { return c.id }

func (c *Conn) Emit(event string, payload map[string]any) {
	if c.closed.Load() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ws %s: marshal %s: %v", c.id, event, err)
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		// Slow consumer: drop the client rather than block the relay.
		log.Printf("ws %s: send queue full; dropping connection", c.id)
		c.Close("send queue overflow")
	}
}

func (c *Conn) Close(reason string) {
	if c.closed.Swap(true) {
		return
	}
	c.closeReason = reason
	close(c.done)
}

func (c *Conn) IsConnected() bool { return !c.closed.Load() }

// writePump drains the send queue onto the socket. It owns every write,
// including the closing handshake, keeping all socket I/O off the relay's
// lock.
func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			_ = c.ws.Close(ws.StatusNormalClosure, c.closeReason)
			return
		case frame := <-c.send:
			if c.closed.Load() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.ws.Write(ctx, ws.MessageText, frame)
			cancel()
			if err != nil {
				c.closed.Store(true)
				_ = c.ws.Close(ws.StatusNormalClosure, "write failed")
				return
			}
		}
	}
}
