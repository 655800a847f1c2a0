// Package arbitrage contains the cross-market evaluation core: the
// scenario evaluator, the two-stage optimal-size search, opportunity
// scoring, and the scheduled detector that runs them per monitored pair.
package arbitrage

import (
	"errors"
	"fmt"
	"math"

	"github.com/alanyoungcy/ammarbot/internal/domain"
	"github.com/alanyoungcy/ammarbot/internal/lmsr"
)

// Scenario is one fully evaluated two-legged hedge candidate. All monetary
// fields are USD; the AMM leg's native cost has already been converted.
type Scenario struct {
	TargetPrice float64 // AMM price of the bought outcome after the trade
	PriceStart  float64
	PriceEnd    float64

	AmmLeg  domain.TradeLeg
	BookLeg domain.TradeLeg

	// BookLimitPrice is the deepest ask level the book leg consumes; a FAK
	// at this limit crosses the whole planned ladder.
	BookLimitPrice float64

	GuaranteedPayout float64
	TotalCostUSD     float64
	ProfitUSD        float64
	ROI              float64
	Score            float64
}

// EvaluateTarget computes the hedge that moves the AMM price of the bought
// outcome to pTarget. The AMM state must be oriented so the bought outcome
// is QYes; book is the opposite outcome's ask ladder; fxRate converts the
// AMM settlement currency to USD (1.0 for USD-stable venues).
//
// The bool result is false for the two normal no-trade outcomes: the
// target sits on the wrong side of the current price, or the book offers
// no fill at all. Errors are reserved for invalid parameters.
func EvaluateTarget(state domain.AMMState, book domain.OrderBook, fxRate, pTarget float64) (Scenario, bool, error) {
	shares, err := lmsr.SolveSharesForPrice(state.QYes, state.QNo, state.B, pTarget)
	if err != nil {
		if errors.Is(err, domain.ErrNoSolution) {
			return Scenario{}, false, nil
		}
		return Scenario{}, false, fmt.Errorf("arbitrage: evaluate target %v: %w", pTarget, err)
	}

	sc, err := buildScenario(state, book, fxRate, shares)
	if err != nil {
		return Scenario{}, false, err
	}
	sc.TargetPrice = pTarget
	if sc.BookLeg.Shares <= 0 {
		return Scenario{}, false, nil
	}
	return sc, true, nil
}

// EvaluateFixedShares evaluates a hedge of exactly shares AMM shares,
// bypassing the inverse solver. Used for the deterministic fallback
// scenario; unlike EvaluateTarget it reports a zero-fill book leg as a
// (loss-making) result rather than excluding it.
func EvaluateFixedShares(state domain.AMMState, book domain.OrderBook, fxRate, shares float64) (Scenario, error) {
	if shares <= 0 {
		return Scenario{}, fmt.Errorf("arbitrage: fixed shares %v: %w", shares, domain.ErrInvalidParameter)
	}
	sc, err := buildScenario(state, book, fxRate, shares)
	if err != nil {
		return Scenario{}, err
	}
	sc.TargetPrice = sc.PriceEnd
	return sc, nil
}

func buildScenario(state domain.AMMState, book domain.OrderBook, fxRate, shares float64) (Scenario, error) {
	if fxRate <= 0 {
		return Scenario{}, fmt.Errorf("arbitrage: fx rate %v: %w", fxRate, domain.ErrInvalidParameter)
	}

	preFee, err := lmsr.BuyCost(state.QYes, state.QNo, state.B, shares)
	if err != nil {
		return Scenario{}, fmt.Errorf("arbitrage: amm leg cost: %w", err)
	}
	ammCostUSD := preFee * (1 + state.FeeRate) * fxRate

	// Each AMM share pays one unit of its settlement currency when the
	// bought outcome resolves; each book share pays $1 when the opposite
	// does. Equal USD payout on both branches therefore needs
	// shares*fxRate book shares.
	bookQty := shares * fxRate
	fill := book.Consume(bookQty)

	payout := math.Min(shares*fxRate, fill.Shares)
	totalCost := ammCostUSD + fill.Cost
	profit := payout - totalCost

	roi := 0.0
	if totalCost > 0 {
		roi = profit / totalCost
	}
	score := profit
	if profit >= 0 {
		score = roi * profit
	}

	pStart, _ := lmsr.Price(state.QYes, state.QNo, state.B)
	pEnd, _ := lmsr.Price(state.QYes+shares, state.QNo, state.B)

	return Scenario{
		PriceStart: pStart,
		PriceEnd:   pEnd,
		AmmLeg: domain.TradeLeg{
			Shares:       shares,
			Cost:         ammCostUSD,
			AvgPrice:     safeDiv(ammCostUSD, shares*fxRate),
			FillComplete: true,
		},
		BookLeg: domain.TradeLeg{
			Shares:       fill.Shares,
			Cost:         fill.Cost,
			AvgPrice:     fill.AvgPrice,
			FillComplete: fill.Complete,
		},
		BookLimitPrice:   fill.WorstPrice,
		GuaranteedPayout: payout,
		TotalCostUSD:     totalCost,
		ProfitUSD:        profit,
		ROI:              roi,
		Score:            score,
	}, nil
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
