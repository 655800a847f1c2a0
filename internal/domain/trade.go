package domain

import "time"

// TradeEvent is one public trade print from the order-book venue, consumed
// by the activity monitor.
type TradeEvent struct {
	ID        string // venue trade/transaction identifier, used for dedup
	AssetID   string
	Side      string // "BUY" or "SELL", taker side
	Price     float64
	Size      float64
	Timestamp time.Time
}

// Notional returns the trade's USD value.
func (t TradeEvent) Notional() float64 {
	return t.Price * t.Size
}
