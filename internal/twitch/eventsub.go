package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nicklaw5/helix/v2"
)

// SessionState is one of the EventSub session lifecycle states.
type SessionState string

const (
	StateDisconnected   SessionState = "disconnected"
	StateConnecting     SessionState = "connecting"
	StateAwaitingWelcome SessionState = "awaiting_welcome"
	StateSubscribed     SessionState = "subscribed"
	StateReconnecting   SessionState = "reconnecting"
)

// DefaultWebSocketURL is the production EventSub WebSocket endpoint.
const DefaultWebSocketURL = "wss://eventsub.wss.twitch.tv/ws"

// subscriptionCatalogue is the fixed set of subscriptions created on every
// welcome/reconnect, per §4.D.
var subscriptionCatalogue = []string{
	"channel.bits.use",
	"channel.channel_points_custom_reward_redemption.add",
	"channel.channel_points_custom_reward_redemption.update",
	"channel.chat.message",
	"channel.chat.notification",
	"user.whisper.message",
}

const subscriptionVersion = "1"

// Event is a parsed EventSub notification payload, yielded upward for
// translation into a downstream protocol.TwitchEvent.
type Event struct {
	SubscriptionType string
	Payload          json.RawMessage
}

type eventsubMetadata struct {
	MessageType      string `json:"message_type"`
	SubscriptionType string `json:"subscription_type"`
}

type eventsubSessionPayload struct {
	Session struct {
		ID          string  `json:"id"`
		ReconnectURL *string `json:"reconnect_url"`
	} `json:"session"`
}

type eventsubNotificationPayload struct {
	Event json.RawMessage `json:"event"`
}

type eventsubFrame struct {
	Metadata eventsubMetadata `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// Session is a WebSocket client implementing the Twitch EventSub
// websocket-transport lifecycle: welcome → subscribe → notify → reconnect.
type Session struct {
	SessionID   string
	ConnectURL  string
	State       SessionState

	oauth  *OAuthClient
	token  *UserToken
	logger *slog.Logger

	conn *websocket.Conn
}

// NewSession builds a Session bound to tok; it does not connect yet.
func NewSession(oauth *OAuthClient, tok *UserToken, logger *slog.Logger) *Session {
	return &Session{
		ConnectURL: DefaultWebSocketURL,
		State:      StateDisconnected,
		oauth:      oauth,
		token:      tok,
		logger:     logger,
	}
}

// connect dials the current ConnectURL.
func (s *Session) connect(ctx context.Context) error {
	s.State = StateConnecting
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.ConnectURL, nil)
	if err != nil {
		return fmt.Errorf("dial EventSub websocket: %w", err)
	}
	s.conn = conn
	s.State = StateAwaitingWelcome
	return nil
}

// Run awaits a single frame and returns (continue, event). This mirrors
// the original service's run() step operation: the orchestrator drives
// this in a loop rather than Run looping internally.
func (s *Session) Run(ctx context.Context) (bool, *Event, error) {
	if s.conn == nil {
		if err := s.connect(ctx); err != nil {
			return false, nil, err
		}
	}

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if isTransportReset(err) {
			s.logger.Warn("eventsub connection reset, reconnecting transparently")
			s.conn = nil
			if err := s.connect(ctx); err != nil {
				return false, nil, err
			}
			return true, nil, nil
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("read EventSub frame: %w", err)
	}

	return s.processMessage(ctx, data)
}

// isTransportReset approximates the Rust ResetWithoutClosingHandshake
// condition: gorilla/websocket has no identical error type, so an
// abrupt peer reset surfaces as a plain network error on read rather
// than a close frame. Treating any non-close net.Error here as
// transient and reconnecting matches the original's "log, don't abort"
// policy without risking silently swallowing a permanent failure,
// since a truly dead socket will simply fail to reconnect next time.
func isTransportReset(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func (s *Session) processMessage(ctx context.Context, data []byte) (bool, *Event, error) {
	var frame eventsubFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return true, nil, fmt.Errorf("parse EventSub frame: %w", err)
	}

	switch frame.Metadata.MessageType {
	case "session_welcome", "session_reconnect":
		var payload eventsubSessionPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return true, nil, fmt.Errorf("parse welcome payload: %w", err)
		}
		if err := s.processWelcome(ctx, payload); err != nil {
			return true, nil, err
		}
		return true, nil, nil

	case "notification":
		var payload eventsubNotificationPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return true, nil, fmt.Errorf("parse notification payload: %w", err)
		}
		s.logger.Info("received eventsub notification", "subscription_type", frame.Metadata.SubscriptionType)
		return true, &Event{SubscriptionType: frame.Metadata.SubscriptionType, Payload: payload.Event}, nil

	case "revocation":
		s.logger.Warn("eventsub subscription revoked", "subscription_type", frame.Metadata.SubscriptionType)
		return false, nil, nil

	case "session_keepalive":
		return true, nil, nil

	default:
		return true, nil, nil
	}
}

// processWelcome stores the new session id, adopts a reconnect URL if
// supplied, and (re)issues the fixed subscription catalogue. Individual
// subscription failures are logged, not fatal, per §4.D.
func (s *Session) processWelcome(ctx context.Context, payload eventsubSessionPayload) error {
	s.SessionID = payload.Session.ID
	if payload.Session.ReconnectURL != nil && *payload.Session.ReconnectURL != "" {
		s.ConnectURL = *payload.Session.ReconnectURL
	}
	s.State = StateSubscribed

	client, err := s.oauth.NewHelixClient(s.token)
	if err != nil {
		return fmt.Errorf("build helix client for subscriptions: %w", err)
	}

	userID := fmt.Sprintf("%d", s.token.UserID)
	transport := helix.EventSubTransport{
		Method:    "websocket",
		SessionID: s.SessionID,
	}

	for _, subType := range subscriptionCatalogue {
		condition := conditionFor(subType, userID)
		_, err := client.CreateEventSubSubscription(&helix.EventSubSubscription{
			Type:      subType,
			Version:   subscriptionVersion,
			Condition: condition,
			Transport: transport,
		})
		if err != nil {
			s.logger.Warn("failed to subscribe", "subscription_type", subType, "error", err)
			continue
		}
		s.logger.Info("subscribed", "subscription_type", subType)
	}
	return nil
}

func conditionFor(subType, userID string) helix.EventSubCondition {
	switch subType {
	case "channel.chat.message", "channel.chat.notification":
		return helix.EventSubCondition{BroadcasterUserID: userID, UserID: userID}
	case "user.whisper.message":
		return helix.EventSubCondition{UserID: userID}
	default:
		return helix.EventSubCondition{BroadcasterUserID: userID}
	}
}

// Disconnect closes the underlying websocket if still open.
func (s *Session) Disconnect() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.State = StateDisconnected
	return err
}
