// Package protocol defines the JSON envelopes exchanged over the
// client-facing WebSocket. Every envelope carries a "type" tag; the
// orchestrator reads that tag first and then decodes the frame again
// into the concrete type it names.
package protocol

import "encoding/json"

// Envelope is the minimal shape needed to read the type tag before
// unmarshaling the rest of a client frame into its concrete type.
type Envelope struct {
	Type string `json:"type"`
}

// Client -> server message payloads.

type CodeRequest struct {
	ClientVersion string `json:"client_version,omitempty"`
}

type ConnectRequest struct {
	StateToken    string `json:"state_token"`
	ClientVersion string `json:"client_version,omitempty"`
}

type TwitchTriggerRequest struct {
	RequestID      int64            `json:"request_id"`
	Kind           string           `json:"kind"`
	RewardID       string           `json:"reward_id,omitempty"`
	RedemptionID   string           `json:"redemption_id,omitempty"`
	Rewards        []CustomReward   `json:"rewards,omitempty"`
}

const (
	TriggerChannelPointsFulfill = "channel_points_fulfill"
	TriggerChannelPointsCancel  = "channel_points_cancel"
	TriggerUpdateCustomRewards  = "update_custom_rewards"
	TriggerGetCustomRewards     = "get_custom_rewards"
)

// CustomReward is the wire shape of a desired or existing channel-point
// reward, shared between the client protocol and the reward reconciler.
type CustomReward struct {
	ID                       string `json:"id,omitempty"`
	Title                    string `json:"title"`
	Prompt                   string `json:"prompt"`
	Cost                     int64  `json:"cost"`
	IsEnabled                bool   `json:"is_enabled"`
	IsGlobalCooldownEnabled  bool   `json:"is_global_cooldown_enabled"`
	GlobalCooldownSeconds    int64  `json:"global_cooldown_seconds"`
}

// Server -> client message payloads.

type ConnectResponse struct {
	HasTwitch      bool    `json:"has_twitch"`
	TwitchID       *int64  `json:"twitch_id,omitempty"`
	TwitchName     *string `json:"twitch_name,omitempty"`
	HasStreamlabs  bool    `json:"has_streamlabs"`
	StreamlabsID   *string `json:"streamlabs_id,omitempty"`
	StreamlabsName *string `json:"streamlabs_name,omitempty"`
}

type CodeResponse struct {
	StateToken string `json:"state_token"`
}

type CustomRewardsMessage struct {
	Rewards []CustomReward `json:"rewards"`
}

type Notify struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// TwitchEvent carries a provider-neutral event envelope; Event holds one
// of the Event* variants below (ChannelPoints, BitDonation, Whisper,
// Message), named by its own "type" field.
type TwitchEvent struct {
	UserID   string          `json:"user_id"`
	UserName string          `json:"user_name"`
	Event    TwitchEventData `json:"event"`
}

type TwitchEventData struct {
	Type          string   `json:"type"`
	RewardID      string   `json:"reward_id,omitempty"`
	RewardName    string   `json:"reward_name,omitempty"`
	Amount        int64    `json:"amount,omitempty"`
	Message       string   `json:"message,omitempty"`
	Emojis        []string `json:"emojis,omitempty"`
	Sender        string   `json:"sender,omitempty"`
}

const (
	EventChannelPoints = "ChannelPoints"
	EventBitDonation   = "BitDonation"
	EventWhisper       = "Whisper"
	EventMessage       = "Message"
)

type ErrorMessage struct {
	RequestID int64  `json:"request_id"`
	Source    string `json:"source"`
	Message   string `json:"message"`
}

type TaskResponse struct {
	RequestID int64   `json:"request_id"`
	Success   bool    `json:"success"`
	Message   *string `json:"message,omitempty"`
}

// StreamLabsEvent is the loosely-typed shape forwarded from the
// Streamlabs socket.io session. Unrecognised payloads degrade to
// Type == "unknown" with the raw JSON kept verbatim in Message.
type StreamLabsEvent struct {
	EventID *string         `json:"event_id,omitempty"`
	For     *string         `json:"for,omitempty"`
	Message json.RawMessage `json:"message"`
	Type    string          `json:"type"`
}

type StreamLabsEventsMessage struct {
	Events []StreamLabsEvent `json:"events"`
}

// Outbound server message type tags.
const (
	TypeConnectResponse = "connectResponse"
	TypeCodeResponse    = "codeResponse"
	TypeCustomRewards   = "customRewards"
	TypeNotify          = "notify"
	TypeTwitchEvent     = "twitchEvent"
	TypeError           = "error"
	TypeTaskResponse    = "taskResponse"
	TypeStreamLabsEvent = "streamLabsEvent"
)

// Inbound client message type tags.
const (
	TypeCodeRequest    = "codeRequest"
	TypeConnect        = "connect"
	TypeTwitchTrigger  = "twitchTrigger"
)

// Encode wraps a payload with its type tag and marshals it to JSON text,
// ready to be written as a single WebSocket text frame.
func Encode(typ string, payload any) ([]byte, error) {
	wrapper := make(map[string]any)
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, err
	}
	wrapper["type"] = typ
	return json.Marshal(wrapper)
}
