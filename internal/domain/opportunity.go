package domain

import "time"

// Direction tags which side of the AMM a hedge trade takes. Both variants
// pair an AMM purchase with the opposite-outcome ask ladder on the book.
type Direction string

const (
	// DirectionBuyAmmHedgeBook buys the "yes" outcome on the AMM and
	// hedges with the book's "no" asks.
	DirectionBuyAmmHedgeBook Direction = "buy_amm_hedge_book"

	// DirectionSellAmmHedgeBook takes the mirror position: buys the AMM
	// "no" outcome (economically short "yes") and hedges with the book's
	// "yes" asks.
	DirectionSellAmmHedgeBook Direction = "sell_amm_hedge_book"
)

// TradeLeg is one side of a two-market hedge.
type TradeLeg struct {
	Shares       float64
	Cost         float64 // USD, fee included for the AMM leg
	AvgPrice     float64
	FillComplete bool
}

// ExecutionStatus is the lifecycle state of a detected opportunity once it
// reaches the executor.
type ExecutionStatus string

const (
	ExecStatusDetected          ExecutionStatus = "detected"
	ExecStatusSuccessReconciled ExecutionStatus = "success_reconciled"
	ExecStatusFailPreflight     ExecutionStatus = "fail_preflight"
	ExecStatusFailLeg1          ExecutionStatus = "fail_leg1"
	ExecStatusFailLeg2Unwound   ExecutionStatus = "fail_leg2_unwound"
	ExecStatusFailLeg2Unhedged  ExecutionStatus = "fail_leg2_unhedged"
)

// ArbitrageOpportunity is one evaluated two-legged hedge. Constructed per
// evaluation, immutable once produced; persistence and delivery belong to
// the sinks that consume it.
type ArbitrageOpportunity struct {
	ID        string
	PairID    int64
	PairKey   string
	Direction Direction

	AmmLeg  TradeLeg
	BookLeg TradeLeg

	// GuaranteedPayout is min(AmmLeg.Shares, BookLeg.Shares): exactly one
	// outcome pays 1.0 per share, and only the smaller leg is fully hedged.
	GuaranteedPayout float64
	TotalCostUSD     float64
	ProfitUSD        float64
	ROI              float64
	Score            float64
	APY              float64

	// FXRate is the AMM settlement currency → USD rate applied; 1.0 for
	// USD-stable venues.
	FXRate float64

	// Execution plan. AmmState is the detection-time LMSR snapshot oriented
	// so the AMM leg adds to QYes; the executor recomputes the AMM cost from
	// it once the actual book fill is known. BookTokenID is the outcome
	// token the book leg buys, BookLimitPrice the deepest ask level the plan
	// consumes (the FAK limit).
	AmmState       AMMState
	BookTokenID    string
	BookLimitPrice float64

	MarketExpiry time.Time
	DetectedAt   time.Time
	Status       ExecutionStatus
	ExecutedAt   *time.Time
}

// CheckResult is the outcome of evaluating a single monitored pair in one
// scheduling pass. Exactly one of Opportunity and Err may be set; both nil
// means the pair evaluated cleanly with nothing above threshold.
type CheckResult struct {
	Pair        MonitoredPair
	Opportunity *ArbitrageOpportunity
	Err         error
	Elapsed     time.Duration
}

// BatchReport aggregates the per-pair results of one scheduled segment run.
// A batch always completes; failures are isolated to their pair.
type BatchReport struct {
	StartedAt time.Time
	Results   []CheckResult
}

// Found returns the results that produced an opportunity.
func (r BatchReport) Found() []CheckResult {
	var out []CheckResult
	for _, res := range r.Results {
		if res.Opportunity != nil {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns the results that errored.
func (r BatchReport) Failed() []CheckResult {
	var out []CheckResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}
