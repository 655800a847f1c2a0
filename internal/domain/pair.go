package domain

import (
	"fmt"
	"time"
)

// MonitoredPair links one AMM market to the order-book market covering the
// same binary event. Owned by the pair store; the detector reads it fresh
// each scheduling pass.
type MonitoredPair struct {
	ID          int64
	Venue       Venue
	AMMMarketID string
	ConditionID string
	TokenIDYes  string
	TokenIDNo   string

	// Flipped means the AMM's "yes" outcome corresponds to the book's
	// "no" token (and vice versa).
	Flipped bool

	ProfitThresholdUSD float64
	ExpiryOverride     *time.Time
	AutotradeEnabled   bool
	Active             bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns a stable identifier used for cooldown and cache keys.
func (p MonitoredPair) Key() string {
	return fmt.Sprintf("%s:%s:%s", p.Venue, p.AMMMarketID, p.ConditionID)
}

// BookTokens returns the book-side token IDs in the AMM's outcome order,
// honoring Flipped: index 0 is the token aligned with the AMM "yes"
// outcome, index 1 with "no".
func (p MonitoredPair) BookTokens() [2]string {
	if p.Flipped {
		return [2]string{p.TokenIDNo, p.TokenIDYes}
	}
	return [2]string{p.TokenIDYes, p.TokenIDNo}
}

// EffectiveExpiry returns the override when set, otherwise fallback.
func (p MonitoredPair) EffectiveExpiry(fallback time.Time) time.Time {
	if p.ExpiryOverride != nil {
		return *p.ExpiryOverride
	}
	return fallback
}
