// Package lmsr implements the Logarithmic Market Scoring Rule cost and
// price functions for binary markets, plus the two inverse solvers the
// arbitrage evaluator needs: closed-form shares-for-target-price and
// binary-search shares-for-budget. It is the single pricing source of
// truth; every evaluator consumes this package rather than carrying its
// own copy of the math.
//
// The cost function is C(q1,q2) = b*ln(e^{q1/b} + e^{q2/b}); prices are
// its partial derivatives (a softmax over q/b). b controls liquidity
// depth: the market maker's worst-case loss is b*ln(2).
package lmsr

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

const (
	// priceEpsilon bounds valid target prices away from 0 and 1, where
	// the logit is unbounded.
	priceEpsilon = 1e-9

	// budgetIterations is the binary-search depth for SolveSharesForBudget.
	// 30 halvings of the initial bracket give sub-unit share precision for
	// realistic liquidity ranges.
	budgetIterations = 30

	// budgetSafetyFactor widens the initial upper bound so the bracket is
	// guaranteed to contain the answer even when the price moves toward 1
	// during the fill.
	budgetSafetyFactor = 1.1
)

// Cost returns the LMSR cost function b*ln(e^{q1/b} + e^{q2/b}), computed
// with the scaled quantities shifted by their max before exponentiating so
// large q/b cannot overflow.
func Cost(q1, q2, b float64) (float64, error) {
	if b <= 0 {
		return 0, fmt.Errorf("lmsr: cost: b=%v: %w", b, domain.ErrInvalidParameter)
	}
	a1, a2 := q1/b, q2/b
	m := math.Max(a1, a2)
	return b * (m + math.Log(math.Exp(a1-m)+math.Exp(a2-m))), nil
}

// Price returns the instantaneous outcome probabilities, softmax([q1/b,
// q2/b]). For finite inputs p1+p2 == 1 and each lies in (0,1). When b <= 0
// it returns (0.5, 0.5) rather than an error so display paths stay simple;
// Cost is the operation that rejects a bad b.
func Price(q1, q2, b float64) (p1, p2 float64) {
	if b <= 0 {
		return 0.5, 0.5
	}
	a1, a2 := q1/b, q2/b
	m := math.Max(a1, a2)
	e1 := math.Exp(a1 - m)
	e2 := math.Exp(a2 - m)
	p1 = e1 / (e1 + e2)
	return p1, 1 - p1
}

// BuyCost returns Cost(q1+x, q2) - Cost(q1, q2), the pre-fee cost of
// buying x shares of outcome 1. Strictly positive for x > 0 because the
// cost function is strictly increasing in each coordinate. Callers buying
// outcome 2 pass a flipped state.
func BuyCost(q1, q2, b, x float64) (float64, error) {
	before, err := Cost(q1, q2, b)
	if err != nil {
		return 0, err
	}
	after, err := Cost(q1+x, q2, b)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

// SolveSharesForPrice returns the share quantity x of outcome 1 that moves
// the outcome-1 price to pTarget, by the closed form
//
//	x = b*ln(p/(1-p)) + q2 - q1
//
// derived from inverting the softmax. pTarget must lie strictly inside
// (priceEpsilon, 1-priceEpsilon). A non-positive x means the target is
// already on the wrong side of the current price (no forward purchase
// reaches it) and is reported as domain.ErrNoSolution, not a failure.
func SolveSharesForPrice(q1, q2, b, pTarget float64) (float64, error) {
	if b <= 0 {
		return 0, fmt.Errorf("lmsr: solve for price: b=%v: %w", b, domain.ErrInvalidParameter)
	}
	if pTarget <= priceEpsilon || pTarget >= 1-priceEpsilon {
		return 0, fmt.Errorf("lmsr: solve for price: target %v outside (0,1): %w", pTarget, domain.ErrInvalidParameter)
	}

	x := b*math.Log(pTarget/(1-pTarget)) + q2 - q1
	if x <= 0 {
		return 0, fmt.Errorf("lmsr: target price %v not reachable by buying: %w", pTarget, domain.ErrNoSolution)
	}
	return x, nil
}

// SolveSharesForBudget returns the largest outcome-1 share quantity whose
// fee-inclusive cost stays within maxCost. The fee makes the cost-vs-shares
// curve non-invertible in closed form, but it stays strictly monotone, so a
// bounded binary search converges without oscillation: the upper bound
// starts from a price-based heuristic (spending maxCost at the average of
// the current price and the 1.0 ceiling, widened by a safety factor) and
// the bracket is halved a fixed number of times.
func SolveSharesForBudget(q1, q2, b, maxCost, feeRate float64) (float64, error) {
	if b <= 0 {
		return 0, fmt.Errorf("lmsr: solve for budget: b=%v: %w", b, domain.ErrInvalidParameter)
	}
	if feeRate < 0 {
		return 0, fmt.Errorf("lmsr: solve for budget: fee rate %v: %w", feeRate, domain.ErrInvalidParameter)
	}
	if maxCost <= 0 {
		return 0, fmt.Errorf("lmsr: budget %v buys nothing: %w", maxCost, domain.ErrNoSolution)
	}

	startPrice, _ := Price(q1, q2, b)
	hi := maxCost / ((startPrice + 1.0) / 2) * budgetSafetyFactor
	lo := 0.0

	costWithin := func(x float64) bool {
		c, err := BuyCost(q1, q2, b, x)
		if err != nil {
			return false
		}
		return c*(1+feeRate) <= maxCost
	}

	// Ensure the bracket actually straddles the budget; the heuristic can
	// land short when the starting price is tiny.
	for i := 0; i < 8 && costWithin(hi); i++ {
		hi *= 2
	}

	for i := 0; i < budgetIterations; i++ {
		mid := (lo + hi) / 2
		if costWithin(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}

	if lo <= 0 {
		return 0, fmt.Errorf("lmsr: budget %v buys nothing: %w", maxCost, domain.ErrNoSolution)
	}
	return lo, nil
}

// InferB derives the liquidity parameter from an observed outcome-1 price
// and the outstanding quantities, for venues whose API reports prices but
// not b:
//
//	b = (q1 - q2) / ln(p/(1-p))
//
// Undefined when the price is 0.5 or the quantities are equal.
func InferB(q1, q2, price1 float64) (float64, error) {
	if price1 <= priceEpsilon || price1 >= 1-priceEpsilon {
		return 0, fmt.Errorf("lmsr: infer b: price %v outside (0,1): %w", price1, domain.ErrInvalidParameter)
	}
	diff := q1 - q2
	logit := math.Log(price1 / (1 - price1))
	if diff == 0 || logit == 0 {
		return 0, fmt.Errorf("lmsr: infer b: indeterminate from q1=q2 or p=0.5: %w", domain.ErrInvalidParameter)
	}
	b := diff / logit
	if b <= 0 {
		return 0, fmt.Errorf("lmsr: infer b: price and quantities disagree on sign: %w", domain.ErrInvalidParameter)
	}
	return b, nil
}
