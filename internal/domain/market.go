package domain

import "time"

// Venue identifies an LMSR AMM platform.
type Venue string

const (
	VenueBodega Venue = "bodega"
	VenueMyriad Venue = "myriad"
)

// Known reports whether v names a supported AMM venue.
func (v Venue) Known() bool {
	switch v {
	case VenueBodega, VenueMyriad:
		return true
	}
	return false
}

// AMMState is a point-in-time snapshot of an LMSR market's liquidity state.
// QYes and QNo are the outstanding outcome share quantities, B the LMSR
// liquidity parameter. Prices derived from a valid state (B > 0) always sum
// to 1 within floating tolerance.
type AMMState struct {
	QYes    float64
	QNo     float64
	B       float64
	FeeRate float64 // multiplicative fee on the pre-fee trade cost
}

// Flip returns the state with the outcome quantities swapped. Used when a
// monitored pair maps AMM "yes" onto the book's "no" token.
func (s AMMState) Flip() AMMState {
	s.QYes, s.QNo = s.QNo, s.QYes
	return s
}

// AMMMarket is one binary market on an AMM venue.
type AMMMarket struct {
	ID       string
	Venue    Venue
	Title    string
	State    AMMState
	Currency string // settlement currency code; "USD" for stable-settled venues
	Expiry   time.Time
	Active   bool

	// ChainMarketID is the venue's on-chain market identifier, used when
	// positions are bought through the market contract. Zero for venues
	// without a chain surface.
	ChainMarketID int64
}

// BookMarket is the order-book venue's metadata for one binary market.
// TokenIDs are the outcome token identifiers in [yes, no] order.
type BookMarket struct {
	ConditionID string
	Question    string
	Slug        string
	TokenIDs    [2]string
	EndDate     time.Time
	Active      bool
}
