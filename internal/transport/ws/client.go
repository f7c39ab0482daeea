package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one live-feed subscriber. Messages are queued and written by a
// dedicated goroutine; a full queue drops the message instead of stalling
// the broadcaster.
type Client struct {
	conn   *Connection
	topics map[string]bool
	send   chan []byte
	done   chan struct{}
	once   sync.Once

	dropped atomic.Uint64
}

func newClient(conn *Connection, topics []string, queue int) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
	if len(topics) > 0 {
		c.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			c.topics[t] = true
		}
	}
	return c
}

func (c *Client) ID() string {
	return c.conn.ID()
}

// Wants reports whether the client subscribed to topic; no filter means all.
func (c *Client) Wants(topic string) bool {
	return c.topics == nil || c.topics[topic]
}

func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) writeLoop(writeTimeout, pingInterval time.Duration) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg, writeTimeout); err != nil {
				return
			}
		case <-ping.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil, writeTimeout); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound data; it exists to process control frames and
// notice disconnects. A missing pong within pongWait ends the client.
func (c *Client) readLoop(pongWait time.Duration) {
	defer c.Close()
	c.conn.ExpectPongs(pongWait)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
