package twitch

import (
	"context"
	"fmt"

	"github.com/nicklaw5/helix/v2"
)

// NewHelixClient builds a Helix client authenticated as tok.
func (c *OAuthClient) NewHelixClient(tok *UserToken) (*helix.Client, error) {
	return helix.NewClient(&helix.Options{
		ClientID:        c.ClientID,
		ClientSecret:    c.ClientSecret,
		UserAccessToken: tok.AccessToken,
	})
}

// WithRefresh runs fn against a Helix client built from tok. If fn
// reports a 401, the token is refreshed exactly once in place and fn is
// retried; a second 401 (or any refresh failure) is returned as-is. This
// is the single-shot, non-recursive retry contract §4.B requires.
func (c *OAuthClient) WithRefresh(ctx context.Context, tok *UserToken, fn func(*helix.Client) (statusCode int, err error)) error {
	client, err := c.NewHelixClient(tok)
	if err != nil {
		return err
	}

	status, callErr := fn(client)
	if status != 401 {
		return callErr
	}

	refreshed, err := c.RefreshOrValidate(ctx, tok.AccessToken, tok.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh after 401: %w", err)
	}
	*tok = *refreshed

	client, err = c.NewHelixClient(tok)
	if err != nil {
		return err
	}
	status, callErr = fn(client)
	if callErr == nil && status == 401 {
		return fmt.Errorf("Helix request still unauthorized after token refresh")
	}
	return callErr
}

// GetManageableRewards fetches the broadcaster's custom rewards that this
// client is permitted to manage.
func GetManageableRewards(client *helix.Client, broadcasterID string) ([]helix.ChannelCustomReward, int, error) {
	resp, err := client.GetChannelCustomRewards(&helix.ChannelCustomRewardsParams{
		BroadcasterID:         broadcasterID,
		OnlyManageableRewards: true,
	})
	if err != nil {
		return nil, 0, err
	}
	return resp.Data.ChannelCustomRewards, resp.StatusCode, nil
}

// CreateReward creates a new channel-point reward with all fields set.
func CreateReward(client *helix.Client, broadcasterID string, r Desired) (int, error) {
	resp, err := client.CreateCustomReward(&helix.ChannelCustomRewardsParams{
		BroadcasterID:                     broadcasterID,
		Title:                             r.Title,
		Cost:                              int(r.Cost),
		Prompt:                            r.Prompt,
		IsEnabled:                         r.IsEnabled,
		IsGlobalCooldownEnabled:           r.IsGlobalCooldownEnabled,
		GlobalCooldownSeconds:             int(r.GlobalCooldownSeconds),
	})
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// RewardDiff carries only the fields that differ from the existing
// reward; a nil field is left unset on the wire so Twitch leaves it
// unchanged.
type RewardDiff struct {
	Prompt                  *string
	Cost                    *int64
	IsEnabled               *bool
	IsGlobalCooldownEnabled *bool
	GlobalCooldownSeconds   *int64
}

// Empty reports whether diff has no fields set, meaning no update call
// is needed.
func (diff RewardDiff) Empty() bool {
	return diff.Prompt == nil &&
		diff.Cost == nil &&
		diff.IsEnabled == nil &&
		diff.IsGlobalCooldownEnabled == nil &&
		diff.GlobalCooldownSeconds == nil
}

// UpdateReward patches only the fields set in diff, leaving every other
// field on the existing reward untouched.
func UpdateReward(client *helix.Client, broadcasterID, rewardID string, diff RewardDiff) (int, error) {
	params := &helix.UpdateChannelCustomRewardsParams{
		BroadcasterID: broadcasterID,
		ID:            rewardID,
	}
	if diff.Prompt != nil {
		params.Prompt = *diff.Prompt
	}
	if diff.Cost != nil {
		params.Cost = int(*diff.Cost)
	}
	if diff.IsEnabled != nil {
		params.IsEnabled = *diff.IsEnabled
	}
	if diff.IsGlobalCooldownEnabled != nil {
		params.IsGlobalCooldownEnabled = *diff.IsGlobalCooldownEnabled
	}
	if diff.GlobalCooldownSeconds != nil {
		params.GlobalCooldownSeconds = int(*diff.GlobalCooldownSeconds)
	}

	resp, err := client.UpdateCustomReward(params)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// DeleteReward deletes a channel-point reward by id.
func DeleteReward(client *helix.Client, broadcasterID, rewardID string) (int, error) {
	resp, err := client.DeleteCustomRewards(&helix.DeleteCustomRewardsParams{
		BroadcasterID: broadcasterID,
		ID:            rewardID,
	})
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// UpdateRedemptionStatus fulfills or cancels a redemption.
func UpdateRedemptionStatus(client *helix.Client, broadcasterID, rewardID, redemptionID, status string) (int, error) {
	resp, err := client.UpdateChannelCustomRewardsRedemptionStatus(&helix.UpdateChannelCustomRewardsRedemptionStatusParams{
		BroadcasterID: broadcasterID,
		RewardID:      rewardID,
		ID:            redemptionID,
		Status:        status,
	})
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// Desired is the subset of protocol.CustomReward fields the reward
// reconciler diffs and writes through Helix.
type Desired struct {
	Title                   string
	Prompt                  string
	Cost                    int64
	IsEnabled               bool
	IsGlobalCooldownEnabled bool
	GlobalCooldownSeconds   int64
}
