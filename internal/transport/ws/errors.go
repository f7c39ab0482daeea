package ws

import "proscan-server-go/internal/platform/errors"

// ErrConnectionClosed is returned by writes after Close.
var ErrConnectionClosed = errors.New(errors.KindTransport, "ws.write", "websocket connection closed")
