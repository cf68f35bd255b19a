package twitch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func newTestSession() *Session {
	return &Session{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestProcessMessage_Notification(t *testing.T) {
	s := newTestSession()
	frame := []byte(`{
		"metadata": {"message_type": "notification", "subscription_type": "channel.chat.message"},
		"payload": {"event": {"chatter_user_id": "123", "message": {"text": "hi"}}}
	}`)

	cont, event, err := s.processMessage(context.Background(), frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cont {
		t.Fatal("expected notification frames to keep the session open")
	}
	if event == nil {
		t.Fatal("expected a parsed event")
	}
	if event.SubscriptionType != "channel.chat.message" {
		t.Fatalf("subscription type = %q, want channel.chat.message", event.SubscriptionType)
	}

	var payload struct {
		ChatterUserID string `json:"chatter_user_id"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("failed to decode forwarded event payload: %v", err)
	}
	if payload.ChatterUserID != "123" {
		t.Fatalf("chatter_user_id = %q, want 123", payload.ChatterUserID)
	}
}

func TestProcessMessage_Revocation(t *testing.T) {
	s := newTestSession()
	frame := []byte(`{"metadata": {"message_type": "revocation", "subscription_type": "channel.bits.use"}, "payload": {}}`)

	cont, event, err := s.processMessage(context.Background(), frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cont {
		t.Fatal("expected a revocation to end the session")
	}
	if event != nil {
		t.Fatal("expected no event on revocation")
	}
}

func TestProcessMessage_Keepalive(t *testing.T) {
	s := newTestSession()
	frame := []byte(`{"metadata": {"message_type": "session_keepalive"}, "payload": {}}`)

	cont, event, err := s.processMessage(context.Background(), frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cont {
		t.Fatal("expected keepalive frames to keep the session open")
	}
	if event != nil {
		t.Fatal("expected no event on keepalive")
	}
}

func TestProcessMessage_UnknownMessageType(t *testing.T) {
	s := newTestSession()
	frame := []byte(`{"metadata": {"message_type": "something_new"}, "payload": {}}`)

	cont, event, err := s.processMessage(context.Background(), frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cont || event != nil {
		t.Fatal("expected unrecognized message types to be ignored, not fatal")
	}
}

func TestProcessMessage_InvalidFrame(t *testing.T) {
	s := newTestSession()
	if _, _, err := s.processMessage(context.Background(), []byte("not json")); err == nil {
		t.Fatal("expected an error for a malformed frame")
	}
}

func TestProcessMessage_InvalidNotificationPayload(t *testing.T) {
	s := newTestSession()
	frame := []byte(`{"metadata": {"message_type": "notification"}, "payload": "not an object"}`)
	if _, _, err := s.processMessage(context.Background(), frame); err == nil {
		t.Fatal("expected an error for a malformed notification payload")
	}
}

func TestConditionFor(t *testing.T) {
	cases := []struct {
		subType string
		want    string
	}{
		{"channel.chat.message", "broadcaster+user"},
		{"channel.chat.notification", "broadcaster+user"},
		{"user.whisper.message", "user-only"},
		{"channel.bits.use", "broadcaster-only"},
	}

	for _, tc := range cases {
		got := conditionFor(tc.subType, "42")
		switch tc.want {
		case "broadcaster+user":
			if got.BroadcasterUserID != "42" || got.UserID != "42" {
				t.Fatalf("%s: condition = %+v, want broadcaster and user id 42", tc.subType, got)
			}
		case "user-only":
			if got.UserID != "42" || got.BroadcasterUserID != "" {
				t.Fatalf("%s: condition = %+v, want user id 42 only", tc.subType, got)
			}
		case "broadcaster-only":
			if got.BroadcasterUserID != "42" || got.UserID != "" {
				t.Fatalf("%s: condition = %+v, want broadcaster id 42 only", tc.subType, got)
			}
		}
	}
}
