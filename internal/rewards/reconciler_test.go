package rewards

import (
	"testing"

	"github.com/nicklaw5/helix/v2"

	"github.com/acmdf/vrctv/internal/twitch"
)

func TestRewardDiff(t *testing.T) {
	existing := helix.ChannelCustomReward{
		Title:     "Hydrate",
		Prompt:    "Drink water",
		Cost:      500,
		IsEnabled: true,
	}
	existing.GlobalCooldownSetting.IsEnabled = true
	existing.GlobalCooldownSetting.GlobalCooldownSeconds = 60

	matching := twitch.Desired{
		Title:                   "Hydrate",
		Prompt:                  "Drink water",
		Cost:                    500,
		IsEnabled:               true,
		IsGlobalCooldownEnabled: true,
		GlobalCooldownSeconds:   60,
	}
	if diff := rewardDiff(existing, matching); !diff.Empty() {
		t.Fatal("expected identical reward to produce an empty diff")
	}

	changedCost := matching
	changedCost.Cost = 750
	diff := rewardDiff(existing, changedCost)
	if diff.Empty() || diff.Cost == nil || *diff.Cost != 750 {
		t.Fatal("expected differing cost to produce a diff carrying only Cost")
	}
	if diff.Prompt != nil || diff.IsEnabled != nil || diff.IsGlobalCooldownEnabled != nil || diff.GlobalCooldownSeconds != nil {
		t.Fatal("expected unchanged fields to remain nil in the diff")
	}

	changedCooldown := matching
	changedCooldown.GlobalCooldownSeconds = 120
	diff = rewardDiff(existing, changedCooldown)
	if diff.Empty() || diff.GlobalCooldownSeconds == nil || *diff.GlobalCooldownSeconds != 120 {
		t.Fatal("expected differing cooldown to produce a diff carrying only GlobalCooldownSeconds")
	}
	if diff.Cost != nil || diff.Prompt != nil || diff.IsEnabled != nil || diff.IsGlobalCooldownEnabled != nil {
		t.Fatal("expected unchanged fields to remain nil in the diff")
	}
}
