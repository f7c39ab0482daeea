package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// maxInboundBytes bounds client messages; the feed is server to client.
const maxInboundBytes = 4 << 10

// Connection serialises writes to one gorilla socket. gorilla allows one
// concurrent writer, so pings and feed messages share the lock.
type Connection struct {
	id     string
	socket *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func NewConnection(id string, socket *websocket.Conn) *Connection {
	socket.SetReadLimit(maxInboundBytes)
	return &Connection{id: id, socket: socket}
}

func (c *Connection) ID() string {
	return c.id
}

// WriteMessage sends one frame, bounded by timeout when positive.
func (c *Connection) WriteMessage(messageType int, data []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if timeout > 0 {
		_ = c.socket.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.socket.WriteMessage(messageType, data)
}

// ExpectPongs arms a read deadline of wait that every pong pushes forward.
// A client that stops answering pings fails its next read.
func (c *Connection) ExpectPongs(wait time.Duration) {
	if wait <= 0 {
		return
	}
	_ = c.socket.SetReadDeadline(time.Now().Add(wait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(wait))
	})
}

// ReadMessage receives a message from the client.
func (c *Connection) ReadMessage() (int, []byte, error) {
	return c.socket.ReadMessage()
}

// Close sends a going-away frame and closes the socket. Safe to call twice.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	_ = c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.socket.Close()
}
