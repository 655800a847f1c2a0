package domain

import "time"

// PriceLevel is a single price+size entry in an ask ladder. Size is the
// absolute quantity resting at that price, not a cumulative total.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is the standing sell-side liquidity (asks) for one outcome
// token, ascending by price.
type OrderBook struct {
	TokenID   string
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestAsk returns the lowest ask price, or 0 when the book is empty.
func (b OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// TotalSize returns the summed size across all ask levels.
func (b OrderBook) TotalSize() float64 {
	var total float64
	for _, lvl := range b.Asks {
		total += lvl.Size
	}
	return total
}

// Fill is the result of simulating a market buy against an ask ladder.
type Fill struct {
	Shares     float64 // quantity actually filled; may be below the request
	Cost       float64
	AvgPrice   float64 // Cost/Shares, 0 when nothing filled
	WorstPrice float64 // deepest level price consumed; the limit a FAK needs
	Complete   bool    // false when the ladder exhausted before the request
}

// Consume simulates buying quantity shares against the ladder: walk the
// asks from the lowest price, take min(remaining, level size) at each
// level, stop when filled or the book runs out. Pure with respect to the
// book; the ladder is a live external snapshot and is never mutated.
func (b OrderBook) Consume(quantity float64) Fill {
	if quantity <= 0 {
		return Fill{Complete: true}
	}

	remaining := quantity
	var cost, worst float64
	for _, lvl := range b.Asks {
		if remaining <= 0 {
			break
		}
		take := lvl.Size
		if take > remaining {
			take = remaining
		}
		cost += take * lvl.Price
		worst = lvl.Price
		remaining -= take
	}

	filled := quantity - remaining
	fill := Fill{
		Shares:     filled,
		Cost:       cost,
		WorstPrice: worst,
		Complete:   remaining <= 0,
	}
	if filled > 0 {
		fill.AvgPrice = cost / filled
	}
	return fill
}
