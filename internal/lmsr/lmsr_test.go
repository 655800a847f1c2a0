package lmsr

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

func TestPrice_SumsToOne(t *testing.T) {
	states := [][3]float64{
		{15544, 10150, 3000},
		{100, 100, 100},
		{0, 5000, 1000},
		{1e6, 999999, 10},
		{3.2, 7.9, 0.5},
	}
	for _, s := range states {
		p1, p2 := Price(s[0], s[1], s[2])
		assert.InDelta(t, 1.0, p1+p2, 1e-9)
		assert.Greater(t, p1, 0.0)
		assert.Less(t, p1, 1.0)
	}
}

func TestPrice_FallbackForNonPositiveB(t *testing.T) {
	p1, p2 := Price(10, 20, 0)
	assert.Equal(t, 0.5, p1)
	assert.Equal(t, 0.5, p2)

	p1, p2 = Price(10, 20, -5)
	assert.Equal(t, 0.5, p1)
	assert.Equal(t, 0.5, p2)
}

func TestPrice_KnownState(t *testing.T) {
	// (q1-q2)/b = 5394/3000 = 1.798 → p1 = 1/(1+e^-1.798) ≈ 0.8579
	p1, _ := Price(15544, 10150, 3000)
	assert.InDelta(t, 0.8579, p1, 0.0005)
}

func TestCost_RejectsNonPositiveB(t *testing.T) {
	_, err := Cost(10, 20, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))
}

func TestCost_StableForLargeScaledQuantities(t *testing.T) {
	// q/b = 1e5 would overflow a naive exp; the shifted form stays finite
	// and close to max(q1,q2).
	c, err := Cost(1e6, 2e5, 10)
	require.NoError(t, err)
	assert.False(t, math.IsInf(c, 0))
	assert.InDelta(t, 1e6, c, 1.0)
}

func TestCost_StrictlyIncreasing(t *testing.T) {
	base, err := Cost(500, 300, 200)
	require.NoError(t, err)
	for _, dq := range []float64{0.1, 1, 10, 100} {
		up1, err := Cost(500+dq, 300, 200)
		require.NoError(t, err)
		assert.Greater(t, up1, base)

		up2, err := Cost(500, 300+dq, 200)
		require.NoError(t, err)
		assert.Greater(t, up2, base)
	}
}

func TestBuyCost_PositiveAndAdditive(t *testing.T) {
	c1, err := BuyCost(1000, 800, 500, 50)
	require.NoError(t, err)
	assert.Greater(t, c1, 0.0)

	// Buying 50 then 50 more costs the same as buying 100 at once.
	c2, err := BuyCost(1050, 800, 500, 50)
	require.NoError(t, err)
	whole, err := BuyCost(1000, 800, 500, 100)
	require.NoError(t, err)
	assert.InDelta(t, whole, c1+c2, 1e-9)
}

func TestSolveSharesForPrice_RoundTrip(t *testing.T) {
	cases := []struct {
		q1, q2, b, target float64
	}{
		{10150, 15544, 3000, 0.17},
		{100, 100, 100, 0.6},
		{500, 2000, 750, 0.9},
		{0, 50, 40, 0.42},
	}
	for _, tc := range cases {
		x, err := SolveSharesForPrice(tc.q1, tc.q2, tc.b, tc.target)
		require.NoError(t, err)
		require.Greater(t, x, 0.0)

		p1, _ := Price(tc.q1+x, tc.q2, tc.b)
		assert.InDelta(t, tc.target, p1, 1e-4)
	}
}

func TestSolveSharesForPrice_ClosedForm(t *testing.T) {
	// x = 3000*ln(0.17/0.83) + 15544 - 10150 ≈ -4756.9 + 5394 = 637.1
	x, err := SolveSharesForPrice(10150, 15544, 3000, 0.17)
	require.NoError(t, err)
	assert.InDelta(t, 637.1, x, 0.5)
}

func TestSolveSharesForPrice_NoSolutionBelowCurrent(t *testing.T) {
	// Current p1 ≈ 0.858; buying only raises it, so 0.5 is unreachable.
	_, err := SolveSharesForPrice(15544, 10150, 3000, 0.5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoSolution))
}

func TestSolveSharesForPrice_RejectsDegenerateTargets(t *testing.T) {
	for _, p := range []float64{0, 1, -0.2, 1.3} {
		_, err := SolveSharesForPrice(100, 100, 100, p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidParameter))
	}
	_, err := SolveSharesForPrice(100, 100, -1, 0.6)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))
}

func TestSolveSharesForBudget_SpendsCloseToBudget(t *testing.T) {
	const budget, fee = 50.0, 0.02
	x, err := SolveSharesForBudget(100, 100, 100, budget, fee)
	require.NoError(t, err)
	require.Greater(t, x, 0.0)

	cost, err := BuyCost(100, 100, 100, x)
	require.NoError(t, err)
	spent := cost * (1 + fee)
	assert.LessOrEqual(t, spent, budget)
	assert.Greater(t, spent, budget*0.999)
}

func TestSolveSharesForBudget_ExpandsShortBracket(t *testing.T) {
	// Start price ≈ 0.0067 so the price-based upper bound lands far below
	// the true answer; the bracket must grow to cover it.
	const budget = 100.0
	x, err := SolveSharesForBudget(0, 5000, 1000, budget, 0)
	require.NoError(t, err)

	cost, err := BuyCost(0, 5000, 1000, x)
	require.NoError(t, err)
	assert.LessOrEqual(t, cost, budget)
	assert.Greater(t, cost, budget*0.99)
	assert.Greater(t, x, 2000.0)
}

func TestSolveSharesForBudget_MonotoneInBudget(t *testing.T) {
	small, err := SolveSharesForBudget(15544, 10150, 3000, 100, 0.02)
	require.NoError(t, err)
	large, err := SolveSharesForBudget(15544, 10150, 3000, 1000, 0.02)
	require.NoError(t, err)
	assert.Greater(t, large, small)
}

func TestSolveSharesForBudget_InvalidInputs(t *testing.T) {
	_, err := SolveSharesForBudget(100, 100, 0, 50, 0.02)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))

	_, err = SolveSharesForBudget(100, 100, 100, 50, -0.1)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))

	_, err = SolveSharesForBudget(100, 100, 100, 0, 0.02)
	assert.True(t, errors.Is(err, domain.ErrNoSolution))
}

func TestInferB_RecoversKnownParameter(t *testing.T) {
	p1, _ := Price(15544, 10150, 3000)
	b, err := InferB(15544, 10150, p1)
	require.NoError(t, err)
	assert.InDelta(t, 3000, b, 0.01)
}

func TestInferB_Indeterminate(t *testing.T) {
	_, err := InferB(100, 100, 0.6)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))

	_, err = InferB(200, 100, 1.0)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))
}
