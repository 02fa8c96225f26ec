// Package ratelimit tracks provider-imposed throttling. It extracts the
// Retry-After signal from 429 responses, records a per-provider "blocked
// until" deadline and the remaining request credits, and lets every request
// wait for that deadline first. State lives in a Store so that several ingest
// processes hitting the same provider observe each other's throttling.
package ratelimit

import (
	"time"
)

// Redis key layout for throttle state storage. %s is the provider name.
const (
	RedisKeyRemaining    = "ingest:rate_limit:%s:remaining"
	RedisKeyBlockedUntil = "ingest:rate_limit:%s:blocked_until"
	RedisKeyLastUpdate   = "ingest:rate_limit:%s:last_update"
)

// RemainingUnknown marks a state whose provider never reported its credits.
const RemainingUnknown = -1

// RemainingThresholdWarning logs a warning when the provider reports fewer
// remaining credits than this.
const RemainingThresholdWarning = 50

// State is the throttle state of one provider.
type State struct {
	// Remaining is the last value of the provider's X-Rate-Limit-Remaining
	// header, or RemainingUnknown.
	Remaining int `json:"remaining"`

	// BlockedUntil is the earliest time the next request may be issued.
	// Zero when the provider never asked us to back off.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// DefaultState is the state of a provider nothing is known about.
func DefaultState() *State {
	return &State{Remaining: RemainingUnknown}
}

// IsBlocked reports whether requests must wait at now.
func (s *State) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilUnblocked returns how long a request issued at now must wait.
// Returns 0 if the deadline has already passed.
func (s *State) TimeUntilUnblocked(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsLow reports whether the provider's reported credits fell below the warning threshold.
func (s *State) IsLow() bool {
	return s.Remaining != RemainingUnknown && s.Remaining < RemainingThresholdWarning
}
