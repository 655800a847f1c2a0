package arbitrage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// Symmetric fee-free market, USD venue. Target 0.6 from a 0.5 start:
// shares = 100*ln(0.6/0.4) = 40.5465, amm cost = 100*(ln 2.5 - ln 2) =
// 22.3144. Hedge 40.5465 shares at 0.38 = 15.4077. Payout 40.5465,
// total 37.7220, profit 2.8245, roi 0.074876, score 0.211482.
func TestEvaluateTarget_HandWorkedSymmetricMarket(t *testing.T) {
	state := domain.AMMState{QYes: 0, QNo: 0, B: 100, FeeRate: 0}
	book := domain.OrderBook{Asks: []domain.PriceLevel{{Price: 0.38, Size: 100}}}

	sc, ok, err := EvaluateTarget(state, book, 1.0, 0.6)
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, 40.5465, sc.AmmLeg.Shares, 1e-3)
	assert.InDelta(t, 22.3144, sc.AmmLeg.Cost, 1e-3)
	assert.InDelta(t, 40.5465, sc.BookLeg.Shares, 1e-3)
	assert.InDelta(t, 15.4077, sc.BookLeg.Cost, 1e-3)
	assert.True(t, sc.BookLeg.FillComplete)
	assert.InDelta(t, 40.5465, sc.GuaranteedPayout, 1e-3)
	assert.InDelta(t, 2.8245, sc.ProfitUSD, 1e-3)
	assert.InDelta(t, 0.074876, sc.ROI, 1e-4)
	assert.InDelta(t, 0.211482, sc.Score, 1e-3)
	assert.InDelta(t, 0.5, sc.PriceStart, 1e-9)
	assert.InDelta(t, 0.6, sc.PriceEnd, 1e-9)
}

// Same trade with a 2% fee on a venue whose currency trades at $0.50:
// amm leg 22.3144*1.02*0.5 = 11.3803, book qty halves to 20.2733 shares
// costing 7.7038, payout 20.2733, profit 1.1891.
func TestEvaluateTarget_AppliesFeeAndFXRate(t *testing.T) {
	state := domain.AMMState{QYes: 0, QNo: 0, B: 100, FeeRate: 0.02}
	book := domain.OrderBook{Asks: []domain.PriceLevel{{Price: 0.38, Size: 100}}}

	sc, ok, err := EvaluateTarget(state, book, 0.5, 0.6)
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, 40.5465, sc.AmmLeg.Shares, 1e-3)
	assert.InDelta(t, 11.3803, sc.AmmLeg.Cost, 1e-3)
	assert.InDelta(t, 20.2733, sc.BookLeg.Shares, 1e-3)
	assert.InDelta(t, 7.7038, sc.BookLeg.Cost, 1e-3)
	assert.InDelta(t, 20.2733, sc.GuaranteedPayout, 1e-3)
	assert.InDelta(t, 1.1891, sc.ProfitUSD, 1e-3)
}

// The live market from the ADA-settled venue: q_yes=10150, q_no=15544,
// b=3000 puts the bought outcome at 0.1421. Moving it to the 0.17 implied
// by the 0.83 best ask takes 637.1 shares for 99.2 ADA pre-fee; at
// ada_to_usd=0.60 the hedge is 382.3 book shares.
func TestEvaluateTarget_CrossCurrencyMarket(t *testing.T) {
	state := domain.AMMState{QYes: 10150, QNo: 15544, B: 3000, FeeRate: 0.02}
	book := domain.OrderBook{Asks: []domain.PriceLevel{
		{Price: 0.83, Size: 6000},
		{Price: 0.835, Size: 8000},
		{Price: 0.84, Size: 9000},
		{Price: 0.845, Size: 9000},
	}}

	sc, ok, err := EvaluateTarget(state, book, 0.60, 0.17)
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, 637.1, sc.AmmLeg.Shares, 0.5)
	assert.InDelta(t, 60.74, sc.AmmLeg.Cost, 0.25)
	assert.InDelta(t, 382.27, sc.BookLeg.Shares, 0.35)
	assert.InDelta(t, 317.28, sc.BookLeg.Cost, 0.35)
	assert.InDelta(t, 0.83, sc.BookLeg.AvgPrice, 1e-9)
	assert.InDelta(t, 4.23, sc.ProfitUSD, 0.15)
	assert.InDelta(t, 0.0112, sc.ROI, 5e-4)
	assert.InDelta(t, 0.1421, sc.PriceStart, 5e-4)
	assert.InDelta(t, 0.17, sc.PriceEnd, 1e-6)
	assert.Greater(t, sc.Score, 0.0)
}

func TestEvaluateTarget_TargetBelowCurrentPriceIsNoTrade(t *testing.T) {
	state := domain.AMMState{QYes: 60, QNo: 40, B: 100}
	book := domain.OrderBook{Asks: []domain.PriceLevel{{Price: 0.40, Size: 100}}}

	// Current price is 0.5498; buying cannot move it down to 0.5.
	sc, ok, err := EvaluateTarget(state, book, 1.0, 0.5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, sc)
}

func TestEvaluateTarget_ZeroFillIsNoTrade(t *testing.T) {
	state := domain.AMMState{QYes: 0, QNo: 0, B: 100}

	_, ok, err := EvaluateTarget(state, domain.OrderBook{}, 1.0, 0.6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateTarget_RejectsNonPositiveFXRate(t *testing.T) {
	state := domain.AMMState{QYes: 0, QNo: 0, B: 100}
	book := domain.OrderBook{Asks: []domain.PriceLevel{{Price: 0.38, Size: 100}}}

	_, _, err := EvaluateTarget(state, book, 0, 0.6)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

// A loss still produces a scenario: profit is negative, score equals
// profit, and the negative-ROI trade is visible rather than hidden.
func TestEvaluateFixedShares_ReportsLossWhenBookEmpty(t *testing.T) {
	state := domain.AMMState{QYes: 0, QNo: 0, B: 100, FeeRate: 0}

	sc, err := EvaluateFixedShares(state, domain.OrderBook{}, 1.0, 1.0)
	require.NoError(t, err)

	assert.Equal(t, 1.0, sc.AmmLeg.Shares)
	assert.Zero(t, sc.BookLeg.Shares)
	assert.False(t, sc.BookLeg.FillComplete)
	assert.Zero(t, sc.GuaranteedPayout)
	assert.Negative(t, sc.ProfitUSD)
	assert.Equal(t, sc.ProfitUSD, sc.Score)
	assert.Negative(t, sc.ROI)
}

func TestEvaluateFixedShares_RejectsNonPositiveShares(t *testing.T) {
	state := domain.AMMState{QYes: 0, QNo: 0, B: 100}

	_, err := EvaluateFixedShares(state, domain.OrderBook{}, 1.0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

// Partial fills cap the guaranteed payout at the filled book quantity.
func TestEvaluateFixedShares_PartialFillCapsPayout(t *testing.T) {
	state := domain.AMMState{QYes: 0, QNo: 0, B: 100, FeeRate: 0}
	book := domain.OrderBook{Asks: []domain.PriceLevel{{Price: 0.38, Size: 10}}}

	sc, err := EvaluateFixedShares(state, book, 1.0, 40)
	require.NoError(t, err)

	assert.InDelta(t, 10.0, sc.BookLeg.Shares, 1e-9)
	assert.False(t, sc.BookLeg.FillComplete)
	assert.InDelta(t, 10.0, sc.GuaranteedPayout, 1e-9)
	assert.Negative(t, sc.ProfitUSD)
}
