package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"proscan-server-go/internal/platform/logging"
	"proscan-server-go/internal/platform/observability"
)

// RouterOptions configures the websocket router.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	QueueSize        int
	CheckOrigin      func(r *http.Request) bool
}

// Router upgrades HTTP requests into live-feed clients.
type Router struct {
	hub      *Hub
	logger   *logging.Logger
	upgrader *websocket.Upgrader
	opts     RouterOptions
}

func NewRouter(hub *Hub, logger *logging.Logger, opts RouterOptions) *Router {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	upgrader := &websocket.Upgrader{
		HandshakeTimeout: opts.HandshakeTimeout,
		CheckOrigin:      opts.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Router{hub: hub, logger: logger, upgrader: upgrader, opts: opts}
}

// Handle upgrades the connection. An optional topics query parameter
// (comma separated) limits what the client receives.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	spanCtx, spanEnd := observability.StartSpan(req.Context(), "transport.websocket", "handle")

	socket, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanEnd(err)
		observability.IncCounter("websocket.upgrade.error", 1, nil)
		r.logger.ErrorTag(logging.TagWS, "handshake failed: %v", err)
		return
	}
	spanEnd(nil)

	id := req.URL.Query().Get("client-id")
	if id == "" {
		id = uuid.NewString()
	}
	client := newClient(NewConnection(id, socket), parseTopics(req.URL.Query().Get("topics")), r.opts.QueueSize)
	r.hub.Register(client)
	observability.RecordMetric(spanCtx, "websocket.clients", float64(r.hub.Count()), nil)
	r.logger.InfoTag(logging.TagWS, "client %s connected from %s", id, req.RemoteAddr)

	go client.writeLoop(r.opts.WriteTimeout, r.opts.PingInterval)
	go func() {
		client.readLoop(r.opts.PingInterval * 2)
		r.hub.Unregister(id)
		r.logger.InfoTag(logging.TagWS, "client %s disconnected", id)
	}()
}

func parseTopics(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
