// Package rewards implements the channel-point reward reconciler: given
// a desired reward set, it diffs against what Twitch reports as
// manageable and issues only the create/update/delete calls needed to
// converge.
package rewards

import (
	"log/slog"

	"github.com/nicklaw5/helix/v2"

	"github.com/acmdf/vrctv/internal/twitch"
)

// Reconciler applies a desired reward set to a broadcaster's channel via
// Helix, creating, updating, or deleting only what has actually changed.
type Reconciler struct {
	logger *slog.Logger
}

// New builds a Reconciler.
func New(logger *slog.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Reconcile fetches the broadcaster's manageable rewards, then for each
// desired reward either creates it (by title) or updates only the fields
// that differ, and finally deletes any manageable reward with no
// matching desired title. This matches the original service's
// find-by-title-or-create / diff-and-update-only-if-changed /
// delete-unmatched algorithm.
func (r *Reconciler) Reconcile(client *helix.Client, broadcasterID string, desired []twitch.Desired) (int, error) {
	existing, status, err := twitch.GetManageableRewards(client, broadcasterID)
	if err != nil {
		return status, err
	}

	byTitle := make(map[string]helix.ChannelCustomReward, len(existing))
	for _, reward := range existing {
		byTitle[reward.Title] = reward
	}

	wanted := make(map[string]struct{}, len(desired))
	for _, d := range desired {
		wanted[d.Title] = struct{}{}

		current, ok := byTitle[d.Title]
		if !ok {
			r.logger.Info("creating reward", "title", d.Title)
			if status, err := twitch.CreateReward(client, broadcasterID, d); err != nil {
				return status, err
			}
			continue
		}

		if diff := rewardDiff(current, d); !diff.Empty() {
			r.logger.Info("updating reward", "title", d.Title, "id", current.ID)
			if status, err := twitch.UpdateReward(client, broadcasterID, current.ID, diff); err != nil {
				return status, err
			}
		}
	}

	for _, reward := range existing {
		if _, ok := wanted[reward.Title]; ok {
			continue
		}
		r.logger.Info("deleting reward with no matching desired title", "title", reward.Title, "id", reward.ID)
		if status, err := twitch.DeleteReward(client, broadcasterID, reward.ID); err != nil {
			return status, err
		}
	}

	return 200, nil
}

// rewardDiff compares an existing reward against the desired record and
// returns only the fields that differ, so Reconcile can issue an update
// that touches nothing else. An empty diff means the reward is already
// converged, which is what makes Reconcile idempotent: applying the
// same desired set twice issues no update/create/delete calls the
// second time.
func rewardDiff(existing helix.ChannelCustomReward, d twitch.Desired) twitch.RewardDiff {
	var diff twitch.RewardDiff
	if existing.Prompt != d.Prompt {
		diff.Prompt = &d.Prompt
	}
	if existing.Cost != int(d.Cost) {
		cost := d.Cost
		diff.Cost = &cost
	}
	if existing.IsEnabled != d.IsEnabled {
		diff.IsEnabled = &d.IsEnabled
	}
	if existing.GlobalCooldownSetting.IsEnabled != d.IsGlobalCooldownEnabled {
		diff.IsGlobalCooldownEnabled = &d.IsGlobalCooldownEnabled
	}
	if existing.GlobalCooldownSetting.GlobalCooldownSeconds != int(d.GlobalCooldownSeconds) {
		seconds := d.GlobalCooldownSeconds
		diff.GlobalCooldownSeconds = &seconds
	}
	return diff
}
