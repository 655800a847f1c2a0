// Package schedule runs the detection loop: monitored pairs are
// partitioned into priority tiers by time to expiry, each tier is split
// into staggered segments, and every segment polls on its tier's interval.
// Re-partitioning happens periodically so pairs migrate between tiers as
// expiries approach, without restarting the segment clocks.
package schedule

import (
	"time"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// Tier is a polling priority class.
type Tier string

const (
	// TierHigh polls pairs whose market resolves within the configured
	// horizon; these are where prices move fastest.
	TierHigh Tier = "high"

	// TierNormal polls everything else at a relaxed cadence.
	TierNormal Tier = "normal"
)

// ExpiryFunc reports the best-known expiry for a pair. The second result
// is false when no expiry has been observed yet; such pairs poll at
// normal priority until one is known.
type ExpiryFunc func(domain.MonitoredPair) (time.Time, bool)

// Partition splits pairs into the high and normal tiers. A pair is high
// priority when its expiry is known and falls within horizon of now. An
// expiry override on the pair beats the observed value.
func Partition(pairs []domain.MonitoredPair, expiryOf ExpiryFunc, horizon time.Duration, now time.Time) (high, normal []domain.MonitoredPair) {
	for _, p := range pairs {
		var (
			expiry time.Time
			known  bool
		)
		if expiryOf != nil {
			expiry, known = expiryOf(p)
		}
		if p.ExpiryOverride != nil {
			expiry, known = *p.ExpiryOverride, true
		}
		if known && expiry.Sub(now) <= horizon {
			high = append(high, p)
		} else {
			normal = append(normal, p)
		}
	}
	return high, normal
}

// SplitRoundRobin deals pairs into count segments in round-robin order, so
// segment sizes differ by at most one: ten pairs over three segments give
// sizes 4, 3, 3. count below one is treated as one; trailing segments may
// be empty when there are fewer pairs than segments.
func SplitRoundRobin(pairs []domain.MonitoredPair, count int) [][]domain.MonitoredPair {
	if count < 1 {
		count = 1
	}
	segments := make([][]domain.MonitoredPair, count)
	for i, p := range pairs {
		idx := i % count
		segments[idx] = append(segments[idx], p)
	}
	return segments
}
