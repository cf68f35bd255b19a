package streamlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// socket.io v4 / engine.io v4 packet-type prefixes. The gateway only ever
// dials with transport=websocket, so no polling fallback or binary
// attachment handling is implemented.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
)

const (
	socketConnect    = '0'
	socketDisconnect = '1'
	socketEvent      = '2'
)

// Payload is a decoded "event"-type socket.io message: the event name and
// its raw JSON arguments, mirroring the shape the Rust client exposed to
// event handlers.
type Payload struct {
	Event string
	Args  json.RawMessage
}

// Connection is a socket.io v4 client connected over a raw WebSocket
// transport, matching Streamlabs's socket relay.
type Connection struct {
	conn      *websocket.Conn
	connected bool
	logger    *slog.Logger
}

// Connect dials the Streamlabs socket relay and completes the engine.io
// and socket.io namespace handshakes.
func Connect(ctx context.Context, socketToken string, logger *slog.Logger) (*Connection, error) {
	logger.Info("connecting to streamlabs socket")

	u := url.URL{
		Scheme: "wss",
		Host:   "sockets.streamlabs.com",
		Path:   "/socket.io/",
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	q.Set("token", socketToken)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial streamlabs socket: %w", err)
	}

	c := &Connection{conn: conn, connected: true, logger: logger}

	if _, _, err := conn.ReadMessage(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read engine.io open packet: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte{engineMessage, socketConnect}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send socket.io connect: %w", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read socket.io connect ack: %w", err)
	}
	if len(data) < 2 || data[0] != engineMessage || data[1] != socketConnect {
		conn.Close()
		return nil, fmt.Errorf("unexpected socket.io handshake response: %q", data)
	}

	return c, nil
}

// Run reads and decodes a single frame, transparently answering engine.io
// pings, and returns (continue, payload). Returns (false, nil, nil) once
// the connection has been marked disconnected, matching the original
// run() step semantics.
func (c *Connection) Run(ctx context.Context) (bool, *Payload, error) {
	if !c.connected {
		c.logger.Info("no longer connected to streamlabs socket")
		return false, nil, nil
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.connected = false
			return true, nil, nil
		}
		c.connected = false
		return true, nil, fmt.Errorf("read streamlabs frame: %w", err)
	}

	if len(data) == 0 {
		return true, nil, nil
	}

	switch data[0] {
	case enginePing:
		if werr := c.conn.WriteMessage(websocket.TextMessage, []byte{enginePong}); werr != nil {
			return true, nil, fmt.Errorf("pong streamlabs socket: %w", werr)
		}
		return true, nil, nil

	case engineClose:
		c.connected = false
		return true, nil, nil

	case engineMessage:
		return c.handleMessage(data[1:])

	default:
		return true, nil, nil
	}
}

func (c *Connection) handleMessage(body []byte) (bool, *Payload, error) {
	if len(body) == 0 {
		return true, nil, nil
	}

	switch body[0] {
	case socketDisconnect:
		c.connected = false
		return true, nil, nil

	case socketEvent:
		payload, err := parseEventFrame(body[1:])
		if err != nil {
			c.logger.Error("failed to parse streamlabs event frame", "error", err)
			return true, nil, nil
		}
		c.logger.Info("received streamlabs event", "event", payload.Event)
		return true, payload, nil

	default:
		return true, nil, nil
	}
}

// parseEventFrame decodes a `42["event", {...}]`-style body (the leading
// "42" has already been stripped) into an event name plus raw argument
// array. Streamlabs always sends exactly one argument object.
func parseEventFrame(body []byte) (*Payload, error) {
	body = skipAckID(body)

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode event frame: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty event frame")
	}

	var name string
	if err := json.Unmarshal(raw[0], &name); err != nil {
		return nil, fmt.Errorf("decode event name: %w", err)
	}

	args := json.RawMessage("null")
	if len(raw) > 1 {
		args = raw[1]
	}
	return &Payload{Event: name, Args: args}, nil
}

// skipAckID strips a leading ack id (a run of ASCII digits) that the
// socket.io protocol permits before the JSON array body.
func skipAckID(body []byte) []byte {
	i := 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
	}
	return []byte(strings.TrimSpace(string(body[i:])))
}

// Disconnect sends the socket.io disconnect frame and closes the
// transport.
func (c *Connection) Disconnect() error {
	if !c.connected {
		return nil
	}
	c.logger.Info("disconnecting from streamlabs socket")
	_ = c.conn.WriteMessage(websocket.TextMessage, []byte{engineMessage, socketDisconnect})
	c.connected = false
	return c.conn.Close()
}
