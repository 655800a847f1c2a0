package domain

import "context"

// AMMFeed supplies point-in-time LMSR market state from an AMM venue.
type AMMFeed interface {
	Venue() Venue
	MarketState(ctx context.Context, marketID string) (AMMMarket, error)
}

// BookFeed supplies ask-side order books from the order-book venue.
type BookFeed interface {
	OrderBook(ctx context.Context, tokenID string) (OrderBook, error)
}

// RateFeed supplies a settlement-currency → USD reference rate.
type RateFeed interface {
	USDRate(ctx context.Context, symbol string) (float64, error)
}

// TradeStream delivers public trade prints for a set of outcome tokens
// until ctx is done.
type TradeStream interface {
	StreamTrades(ctx context.Context, assetIDs []string, out chan<- TradeEvent) error
}

// OpportunitySink receives qualifying opportunities from the detector.
// Delivery (alerting, persistence, queueing for execution) is entirely
// the sink's concern.
type OpportunitySink interface {
	EmitOpportunity(ctx context.Context, opp ArbitrageOpportunity) error
}
