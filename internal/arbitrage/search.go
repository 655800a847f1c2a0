package arbitrage

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

const (
	// Coarse stage: 51 targets stepped 0.01 below the book-implied price.
	coarsePoints = 51
	coarseStep   = 0.01

	// Fine stage: 21 targets stepped 0.001, floored just below the coarse
	// optimum. Only run when the coarse optimum is profitable.
	finePoints = 21
	fineStep   = 0.001

	// fallbackShares is the fixed trade size reported when no grid point
	// is profitable, so every pair check yields a deterministic scenario.
	fallbackShares = 1.0

	minTargetPrice = 1e-9
)

// SearchResult is the outcome of the optimal-size search for one direction.
type SearchResult struct {
	Best         Scenario
	Adjustment   float64 // distance below the implied price of the best target
	ImpliedPrice float64 // 1 - best ask of the hedge ladder
	FromFallback bool
}

// OptimalTarget grid-searches the AMM target price for the best-scoring
// hedge against the given ask ladder. The profit landscape over target
// price is not monotone once book depth and fees combine, hence coarse
// scan plus local refinement instead of a single bisection; the
// budget-constrained solver in the lmsr package stays a separate operation
// because it searches a monotone cost curve, not this landscape.
func OptimalTarget(state domain.AMMState, book domain.OrderBook, fxRate float64) (SearchResult, error) {
	bestAsk := book.BestAsk()
	implied := 1 - bestAsk

	res := SearchResult{ImpliedPrice: implied}
	haveBest := false

	// A missing or degenerate ladder leaves nothing to hedge against;
	// skip straight to the fallback scenario.
	if bestAsk > 0 && implied > minTargetPrice {
		scan := func(adjustments []float64) error {
			for _, adj := range adjustments {
				target := implied - adj
				if target <= minTargetPrice {
					break
				}
				sc, ok, err := EvaluateTarget(state, book, fxRate, target)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				if !haveBest || sc.Score > res.Best.Score {
					res.Best = sc
					res.Adjustment = adj
					haveBest = true
				}
			}
			return nil
		}

		coarse := make([]float64, coarsePoints)
		for i := range coarse {
			coarse[i] = float64(i) * coarseStep
		}
		if err := scan(coarse); err != nil {
			return SearchResult{}, err
		}

		if haveBest && res.Best.ProfitUSD > 0 {
			floor := math.Max(0, res.Adjustment-coarseStep)
			fine := make([]float64, finePoints)
			for i := range fine {
				fine[i] = floor + float64(i)*fineStep
			}
			if err := scan(fine); err != nil {
				return SearchResult{}, err
			}
		}
	}

	if haveBest && res.Best.ProfitUSD > 0 {
		return res, nil
	}

	fb, err := EvaluateFixedShares(state, book, fxRate, fallbackShares)
	if err != nil {
		return SearchResult{}, fmt.Errorf("arbitrage: fallback scenario: %w", err)
	}
	res.Best = fb
	res.Adjustment = 0
	res.FromFallback = true
	return res, nil
}
