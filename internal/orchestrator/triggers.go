package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/nicklaw5/helix/v2"

	"github.com/acmdf/vrctv/internal/protocol"
	"github.com/acmdf/vrctv/internal/twitch"
)

type twitchTriggerFrame struct {
	protocol.Envelope
	TwitchTriggerRequest protocol.TwitchTriggerRequest `json:"TwitchTriggerRequest"`
}

// handleTwitchTrigger dispatches a TwitchTrigger request. The 401-retry
// contract lives in twitch.OAuthClient.WithRefresh: a stale token is
// refreshed and the call retried exactly once, never recursively.
func (o *Orchestrator) handleTwitchTrigger(ctx context.Context, conn *websocket.Conn, st *connState, data []byte) (stop bool) {
	var frame twitchTriggerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		o.writeError(conn, -1, "server", err.Error())
		return false
	}
	req := frame.TwitchTriggerRequest

	twitchTok, _ := st.ctx.Snapshot()
	if twitchTok == nil {
		o.writeTaskResponse(conn, req.RequestID, false, "no twitch token on this connection")
		return false
	}
	broadcasterID := fmt.Sprintf("%d", twitchTok.UserID)
	preRefreshAccess := twitchTok.AccessToken

	var opErr error
	switch req.Kind {
	case protocol.TriggerChannelPointsFulfill:
		opErr = o.runRedemptionStatus(ctx, twitchTok, broadcasterID, req, "FULFILLED")
	case protocol.TriggerChannelPointsCancel:
		opErr = o.runRedemptionStatus(ctx, twitchTok, broadcasterID, req, "CANCELED")
	case protocol.TriggerUpdateCustomRewards:
		opErr = o.runUpdateCustomRewards(ctx, twitchTok, broadcasterID, req)
	case protocol.TriggerGetCustomRewards:
		opErr = o.runGetCustomRewards(conn, ctx, twitchTok, broadcasterID)
	default:
		o.writeTaskResponse(conn, req.RequestID, false, fmt.Sprintf("unrecognised trigger kind %q", req.Kind))
		return false
	}

	if twitchTok.AccessToken != preRefreshAccess {
		if err := o.Store.UpsertTwitchKey(ctx, twitchTok.UserID, twitchTok.AccessToken, twitchTok.RefreshToken, st.ctx.StateToken); err != nil {
			o.Logger.Error("failed to persist refreshed twitch token", "error", err)
		}
	}

	if opErr != nil {
		o.writeTaskResponse(conn, req.RequestID, false, opErr.Error())
		return false
	}
	o.writeTaskResponse(conn, req.RequestID, true, "")
	return false
}

func (o *Orchestrator) runRedemptionStatus(ctx context.Context, tok *twitch.UserToken, broadcasterID string, req protocol.TwitchTriggerRequest, status string) error {
	return o.TwitchOAuth.WithRefresh(ctx, tok, func(client *helix.Client) (int, error) {
		return twitch.UpdateRedemptionStatus(client, broadcasterID, req.RewardID, req.RedemptionID, status)
	})
}

func (o *Orchestrator) runUpdateCustomRewards(ctx context.Context, tok *twitch.UserToken, broadcasterID string, req protocol.TwitchTriggerRequest) error {
	desired := make([]twitch.Desired, 0, len(req.Rewards))
	for _, r := range req.Rewards {
		desired = append(desired, twitch.Desired{
			Title:                   r.Title,
			Prompt:                  r.Prompt,
			Cost:                    r.Cost,
			IsEnabled:               r.IsEnabled,
			IsGlobalCooldownEnabled: r.IsGlobalCooldownEnabled,
			GlobalCooldownSeconds:   r.GlobalCooldownSeconds,
		})
	}

	return o.TwitchOAuth.WithRefresh(ctx, tok, func(client *helix.Client) (int, error) {
		status, err := o.Reconciler.Reconcile(client, broadcasterID, desired)
		return status, err
	})
}

func (o *Orchestrator) runGetCustomRewards(conn *websocket.Conn, ctx context.Context, tok *twitch.UserToken, broadcasterID string) error {
	var rewards []protocol.CustomReward
	err := o.TwitchOAuth.WithRefresh(ctx, tok, func(client *helix.Client) (int, error) {
		existing, status, err := twitch.GetManageableRewards(client, broadcasterID)
		if err != nil {
			return status, err
		}
		rewards = make([]protocol.CustomReward, 0, len(existing))
		for _, r := range existing {
			rewards = append(rewards, protocol.CustomReward{
				ID:                      r.ID,
				Title:                   r.Title,
				Prompt:                  r.Prompt,
				Cost:                    int64(r.Cost),
				IsEnabled:               r.IsEnabled,
				IsGlobalCooldownEnabled: r.GlobalCooldownSetting.IsEnabled,
				GlobalCooldownSeconds:   int64(r.GlobalCooldownSetting.GlobalCooldownSeconds),
			})
		}
		return status, nil
	})
	if err != nil {
		return err
	}

	o.writeEncoded(conn, protocol.TypeCustomRewards, protocol.CustomRewardsMessage{Rewards: rewards})
	return nil
}

func (o *Orchestrator) writeTaskResponse(conn *websocket.Conn, requestID int64, success bool, message string) {
	var msgPtr *string
	if message != "" {
		msgPtr = &message
	}
	o.writeEncoded(conn, protocol.TypeTaskResponse, protocol.TaskResponse{
		RequestID: requestID,
		Success:   success,
		Message:   msgPtr,
	})
}
