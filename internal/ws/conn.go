package ws

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// Conn wraps a websocket connection with a write lock and an activity clock.
// Gorilla connections allow one concurrent writer; the registry, the read
// loop and the watchdog all write.
type Conn struct {
	id         string
	ws         *websocket.Conn
	mu         sync.Mutex
	lastActive atomic.Int64
}

// NewConn wraps an upgraded websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	c := &Conn{id: newConnID(), ws: ws}
	c.Touch()
	return c
}

// ID returns the connection's identifier, used in logs.
func (c *Conn) ID() string { return c.id }

// Send writes one JSON frame.
func (c *Conn) Send(event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(event)
}

// Touch records inbound activity. Called for every received frame, not only
// pings.
func (c *Conn) Touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// IdleFor reports how long the connection has been silent.
func (c *Conn) IdleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActive.Load()))
}

// CloseWith sends a close control frame with the given code and reason, then
// closes the underlying connection. The pending read unblocks with an error.
func (c *Conn) CloseWith(code int, reason string) {
	c.mu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.mu.Unlock()
	_ = c.ws.Close()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
