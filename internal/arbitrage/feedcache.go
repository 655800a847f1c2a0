package arbitrage

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ammarbot/internal/cache"
	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// CachedFeed wraps an AMMFeed with a read-through TTL cache keyed by market
// ID. Scheduler segments that fire close together reuse one upstream fetch
// per market instead of hammering the venue API. Execution paths that need
// a guaranteed-fresh quote should hold the raw feed, not this wrapper.
type CachedFeed struct {
	inner domain.AMMFeed
	cache *cache.Cache[string, domain.AMMMarket]
}

// NewCachedFeed wraps inner so MarketState results stay cached for ttl.
func NewCachedFeed(inner domain.AMMFeed, ttl time.Duration, logger *slog.Logger) *CachedFeed {
	return &CachedFeed{
		inner: inner,
		cache: cache.New[string, domain.AMMMarket](ttl, logger),
	}
}

// Venue reports the wrapped feed's venue.
func (f *CachedFeed) Venue() domain.Venue {
	return f.inner.Venue()
}

// MarketState returns the cached state for marketID, refreshing from the
// wrapped feed when the entry is missing or expired.
func (f *CachedFeed) MarketState(ctx context.Context, marketID string) (domain.AMMMarket, error) {
	return f.cache.GetOrRefresh(ctx, marketID, func(ctx context.Context) (domain.AMMMarket, error) {
		return f.inner.MarketState(ctx, marketID)
	})
}

// Invalidate drops the cached state for marketID so the next read refreshes.
// The executor calls this after a fill moves the pool.
func (f *CachedFeed) Invalidate(marketID string) {
	f.cache.Invalidate(marketID)
}

// PeekExpiry reports the expiry of the last observed state for marketID,
// however stale. Markets never fetched through this feed report false;
// the scheduler polls those at normal priority until a fetch lands.
func (f *CachedFeed) PeekExpiry(marketID string) (time.Time, bool) {
	m, ok := f.cache.Peek(marketID)
	if !ok || m.Expiry.IsZero() {
		return time.Time{}, false
	}
	return m.Expiry, true
}

var _ domain.AMMFeed = (*CachedFeed)(nil)
