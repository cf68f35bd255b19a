package orchestrator

import (
	"time"

	"golang.org/x/time/rate"
)

// AdmissionLimiters gates how often the orchestrator will validate or
// refresh a connecting client's stored token against each upstream,
// plus how often a brand new (never-before-seen) client may be issued a
// state token. These are fixed, process-wide gates rather than
// per-client limiters: there is exactly one Twitch upstream and one
// Streamlabs upstream per process, so there is exactly one bucket each.
type AdmissionLimiters struct {
	Twitch     *rate.Limiter
	Streamlabs *rate.Limiter
	NewClient  *rate.Limiter
}

// NewAdmissionLimiters builds the three fixed gates described in §4.H:
// one token hydration per 5 seconds against each of Twitch and
// Streamlabs, and one new client admitted per second.
func NewAdmissionLimiters() *AdmissionLimiters {
	return &AdmissionLimiters{
		Twitch:     rate.NewLimiter(rate.Every(5*time.Second), 1),
		Streamlabs: rate.NewLimiter(rate.Every(5*time.Second), 1),
		NewClient:  rate.NewLimiter(rate.Every(1*time.Second), 1),
	}
}
