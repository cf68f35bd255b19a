package orchestrator

import (
	"encoding/json"

	"github.com/acmdf/vrctv/internal/protocol"
	"github.com/acmdf/vrctv/internal/streamlabs"
	"github.com/acmdf/vrctv/internal/twitch"
)

type messageFragment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type rewardRedemptionPayload struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserLogin string `json:"user_login"`
	Reward    struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reward"`
}

type bitsUsePayload struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserLogin string `json:"user_login"`
	Bits      int64  `json:"bits"`
	Message   struct {
		Text      string            `json:"text"`
		Fragments []messageFragment `json:"fragments"`
	} `json:"message"`
}

type whisperPayload struct {
	FromUserID   string `json:"from_user_id"`
	FromUserName string `json:"from_user_name"`
	Whisper      struct {
		Text string `json:"text"`
	} `json:"whisper"`
}

type chatMessagePayload struct {
	ChatterUserID   string `json:"chatter_user_id"`
	ChatterUserName string `json:"chatter_user_name"`
	Message         struct {
		Text string `json:"text"`
	} `json:"message"`
}

// translateAndBroadcast converts one parsed EventSub notification into
// the downstream wire events described in §4.H and fans them out to
// every sibling sharing this state token.
func (o *Orchestrator) translateAndBroadcast(st *connState, event *twitch.Event) {
	switch event.SubscriptionType {
	case "channel.channel_points_custom_reward_redemption.add",
		"channel.channel_points_custom_reward_redemption.update":
		o.translateChannelPoints(st, event.Payload)
	case "channel.bits.use":
		o.translateBitsUse(st, event.Payload)
	case "user.whisper.message":
		o.translateWhisper(st, event.Payload)
	case "channel.chat.message", "channel.chat.notification":
		o.translateChatMessage(st, event.Payload)
	default:
		o.Logger.Warn("unrecognised twitch subscription type", "subscription_type", event.SubscriptionType)
	}
}

func (o *Orchestrator) translateChannelPoints(st *connState, raw json.RawMessage) {
	var p rewardRedemptionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		o.Logger.Error("failed to parse channel points payload", "error", err)
		return
	}
	o.broadcastTwitchEvent(st, p.UserID, p.UserName, protocol.TwitchEventData{
		Type:       protocol.EventChannelPoints,
		RewardID:   p.Reward.ID,
		RewardName: p.Reward.Title,
	})
}

func (o *Orchestrator) translateBitsUse(st *connState, raw json.RawMessage) {
	var p bitsUsePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		o.Logger.Error("failed to parse bits use payload", "error", err)
		return
	}

	var emojis []string
	for _, frag := range p.Message.Fragments {
		if frag.Type == "emote" || frag.Type == "cheermote" {
			emojis = append(emojis, frag.Text)
		}
	}

	o.broadcastTwitchEvent(st, p.UserID, p.UserName, protocol.TwitchEventData{
		Type:    protocol.EventBitDonation,
		Amount:  p.Bits,
		Message: p.Message.Text,
		Emojis:  emojis,
	})
}

func (o *Orchestrator) translateWhisper(st *connState, raw json.RawMessage) {
	var p whisperPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		o.Logger.Error("failed to parse whisper payload", "error", err)
		return
	}

	o.broadcastEncoded(st, protocol.TypeNotify, protocol.Notify{
		Title:   p.FromUserName,
		Message: p.Whisper.Text,
	})
	o.broadcastTwitchEvent(st, p.FromUserID, p.FromUserName, protocol.TwitchEventData{
		Type:    protocol.EventWhisper,
		Sender:  p.FromUserName,
		Message: p.Whisper.Text,
	})
}

func (o *Orchestrator) translateChatMessage(st *connState, raw json.RawMessage) {
	var p chatMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		o.Logger.Error("failed to parse chat message payload", "error", err)
		return
	}

	o.broadcastTwitchEvent(st, p.ChatterUserID, p.ChatterUserName, protocol.TwitchEventData{
		Type:    protocol.EventMessage,
		Sender:  p.ChatterUserName,
		Message: p.Message.Text,
	})
}

func (o *Orchestrator) broadcastTwitchEvent(st *connState, userID, userName string, data protocol.TwitchEventData) {
	o.broadcastEncoded(st, protocol.TypeTwitchEvent, protocol.TwitchEvent{
		UserID:   userID,
		UserName: userName,
		Event:    data,
	})
}

func (o *Orchestrator) broadcastEncoded(st *connState, typ string, payload any) {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		o.Logger.Error("failed to encode broadcast message", "type", typ, "error", err)
		return
	}
	o.broadcastRaw(st, data)
}

func (o *Orchestrator) broadcastRaw(st *connState, data []byte) {
	failed := st.entry.Broadcast(data)
	for _, sender := range failed {
		o.Logger.Warn("dropped message to backpressured sibling", "state_token", st.entry.StateToken, "sender", sender)
	}
}

// broadcastStreamlabsEvent forwards a parsed Streamlabs socket.io
// payload as a StreamLabsEvent wire message, preserving unrecognised
// shapes verbatim with type "unknown".
func (o *Orchestrator) broadcastStreamlabsEvent(st *connState, payload *streamlabs.Payload) {
	events := decodeStreamlabsPayload(payload)
	o.broadcastEncoded(st, protocol.TypeStreamLabsEvent, protocol.StreamLabsEventsMessage{Events: events})
}

func decodeStreamlabsPayload(payload *streamlabs.Payload) []protocol.StreamLabsEvent {
	var rawEvents []json.RawMessage
	if err := json.Unmarshal(payload.Args, &rawEvents); err != nil {
		rawEvents = []json.RawMessage{payload.Args}
	}

	events := make([]protocol.StreamLabsEvent, 0, len(rawEvents))
	for _, raw := range rawEvents {
		var ev protocol.StreamLabsEvent
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Type == "" {
			events = append(events, protocol.StreamLabsEvent{Type: "unknown", Message: raw})
			continue
		}
		events = append(events, ev)
	}
	return events
}
