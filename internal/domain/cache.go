package domain

import (
	"context"
	"time"
)

// OpportunityQueue hands detected opportunities from the detector to the
// executor process.
type OpportunityQueue interface {
	Push(ctx context.Context, opp ArbitrageOpportunity) error
	// Pop blocks up to timeout and returns nil when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration) (*ArbitrageOpportunity, error)
	Len(ctx context.Context) (int64, error)
}

// ExecutionLock serializes execution attempts across processes. Acquire
// returns ErrLockHeld when another holder is active; the returned token
// must be presented to Release.
type ExecutionLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

// CooldownStore tracks per-pair trade cooldowns.
type CooldownStore interface {
	Active(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, d time.Duration) error
}
