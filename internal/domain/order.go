package domain

import (
	"math/big"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType indicates the time-in-force policy. Hedge legs use FAK so a
// partial fill executes and the remainder is cancelled rather than resting.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeGTD OrderType = "GTD" // Good-Till-Date
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Order is a signed exchange order ready for submission. PriceTicks and
// SizeUnits are fixed-point (value * 1e6); MakerAmount and TakerAmount are
// the integer base-unit amounts that went into the signed payload.
type Order struct {
	ID          string
	TokenID     string
	Wallet      string
	Side        OrderSide
	Type        OrderType
	PriceTicks  int64
	SizeUnits   int64
	MakerAmount *big.Int
	TakerAmount *big.Int
	Status      OrderStatus
	Signature   string // EIP-712 hex
	CreatedAt   time.Time
}

// Price returns the float64 display price from fixed-point ticks.
func (o Order) Price() float64 {
	return float64(o.PriceTicks) / 1e6
}

// Size returns the float64 display size from fixed-point units.
func (o Order) Size() float64 {
	return float64(o.SizeUnits) / 1e6
}

// OrderResult wraps the exchange response after order submission. For a
// buy, TakingAmount is the share quantity actually executed and
// MakingAmount the collateral spent; a FAK order can fill for less than it
// asked, so callers size downstream legs from these, never from the order.
type OrderResult struct {
	Success      bool
	OrderID      string
	Status       OrderStatus
	Message      string
	ShouldRetry  bool
	MakingAmount float64
	TakingAmount float64
}

// FilledShares returns the executed share quantity for an order on the
// given side.
func (r OrderResult) FilledShares(side OrderSide) float64 {
	if side == OrderSideBuy {
		return r.TakingAmount
	}
	return r.MakingAmount
}
