package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"proscan-server-go/internal/platform/logging"
)

// Envelope is the wire format of every live message.
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// HubStats summarises broadcast activity.
type HubStats struct {
	Clients   int    `json:"clients"`
	Broadcast uint64 `json:"broadcast"`
	Dropped   uint64 `json:"dropped"`
}

// Hub tracks live-feed clients and fans messages out to them.
type Hub struct {
	logger  *logging.Logger
	clients sync.Map // map[string]*Client

	broadcast atomic.Uint64
	dropped   atomic.Uint64
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{logger: logger}
}

func (h *Hub) Register(c *Client) {
	if c == nil {
		return
	}
	h.clients.Store(c.ID(), c)
}

func (h *Hub) Unregister(id string) {
	if id == "" {
		return
	}
	if v, ok := h.clients.LoadAndDelete(id); ok {
		c := v.(*Client)
		h.dropped.Add(c.Dropped())
	}
}

// Broadcast encodes payload once and queues it for every interested client.
func (h *Hub) Broadcast(topic string, payload any) {
	var msg []byte
	h.clients.Range(func(_, value any) bool {
		c := value.(*Client)
		if !c.Wants(topic) {
			return true
		}
		if msg == nil {
			var err error
			msg, err = sonic.Marshal(Envelope{Type: topic, Timestamp: time.Now(), Data: payload})
			if err != nil {
				h.logger.ErrorTag(logging.TagWS, "encode %s message: %v", topic, err)
				return false
			}
		}
		c.enqueue(msg)
		return true
	})
	h.broadcast.Add(1)
}

// CloseAll terminates all clients.
func (h *Hub) CloseAll() {
	h.clients.Range(func(key, value any) bool {
		value.(*Client).Close()
		h.clients.Delete(key)
		return true
	})
}

func (h *Hub) Count() int {
	n := 0
	h.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (h *Hub) Stats() HubStats {
	dropped := h.dropped.Load()
	h.clients.Range(func(_, value any) bool {
		dropped += value.(*Client).Dropped()
		return true
	})
	return HubStats{Clients: h.Count(), Broadcast: h.broadcast.Load(), Dropped: dropped}
}
