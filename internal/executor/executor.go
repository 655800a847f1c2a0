// Package executor drains the opportunity queue and runs the two-legged
// hedge. The book leg fires first as a fill-and-kill, because its fill
// size is the uncertain one; the AMM leg is then re-sized to the actual
// fill and bought at deterministic LMSR cost. A failed AMM leg triggers a
// best-effort book unwind so no naked position survives the attempt.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ammarbot/internal/cache"
	"github.com/alanyoungcy/ammarbot/internal/domain"
	"github.com/alanyoungcy/ammarbot/internal/lmsr"
)

// Mode gates how much real money can move.
type Mode string

const (
	// ModeDryRun logs intended trades without touching any venue.
	ModeDryRun Mode = "dry_run"
	// ModeLimitedLive trades for real but caps each attempt at MaxTradeUSD.
	ModeLimitedLive Mode = "limited_live"
	// ModeLive trades the detected size.
	ModeLive Mode = "live"
)

// Config are the execution tunables.
type Config struct {
	Mode            Mode
	MaxTradeUSD     float64
	MaxDailyLossUSD float64
	Cooldown        time.Duration
	LockTTL         time.Duration
	PopTimeout      time.Duration
	MaxPriceDriftPc float64
	MaxAge          time.Duration
	ExpiryBuffer    time.Duration
	MinGasBalance   float64
}

// OpportunitySource hands the executor its work; in production the Redis
// queue the detector pushes to.
type OpportunitySource interface {
	Pop(ctx context.Context, timeout time.Duration) (*domain.ArbitrageOpportunity, error)
}

// PairSource resolves the pair an opportunity was detected on, fresh, so
// operator toggles flip mid-flight.
type PairSource interface {
	GetByID(ctx context.Context, id int64) (domain.MonitoredPair, error)
}

// StatusStore records the terminal state of each processed opportunity.
type StatusStore interface {
	UpdateStatus(ctx context.Context, id string, status domain.ExecutionStatus) error
}

// AuditLog is the append-only trail of execution attempts.
type AuditLog interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// BookVenue is the order-book side of the hedge: fresh books and market
// state for preflight, FAK placement for the legs.
type BookVenue interface {
	OrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error)
	GetMarket(ctx context.Context, conditionID string) (domain.BookMarket, error)
	BuyFAK(ctx context.Context, tokenID string, price, size float64) (domain.OrderResult, error)
	Unwind(ctx context.Context, tokenID string, size float64) (domain.OrderResult, error)
}

// AMMTrader buys outcome positions on an AMM venue for real. Venues
// without a trader are alert-only; preflight rejects their opportunities
// outside dry_run.
type AMMTrader interface {
	BuyOutcome(ctx context.Context, market domain.AMMMarket, outcomeID int, usdc float64) (string, error)
}

// Balances reads the on-chain funds preflight verifies before real orders
// go out. Nil in dry_run.
type Balances interface {
	BookUSDC(ctx context.Context) (float64, error)
	AMMUSDC(ctx context.Context, venue domain.Venue) (float64, error)
	GasBalance(ctx context.Context, venue domain.Venue) (float64, error)
}

// Alerter receives terminal execution outcomes. Optional.
type Alerter interface {
	ExecutionResult(ctx context.Context, opp domain.ArbitrageOpportunity, detail string)
}

// Deps are the collaborators an Executor drives. Feeds must cover every
// venue that monitored pairs reference; Traders, Balances, and Alerter may
// be nil (dry_run needs neither traders nor balances).
type Deps struct {
	Queue    OpportunitySource
	Pairs    PairSource
	Opps     StatusStore
	Book     BookVenue
	Feeds    map[domain.Venue]domain.AMMFeed
	Traders  map[domain.Venue]AMMTrader
	Balances Balances
	Cooldown domain.CooldownStore
	Lock     domain.ExecutionLock
	Audit    AuditLog
	Alerter  Alerter
}

// seenCapacity bounds the dedup window: an opportunity ID is dropped as a
// duplicate while it remains among the last seenCapacity processed IDs.
// The queue delivers at-least-once, and a redetect of the same pair
// carries a fresh ID, so the window only needs to cover redelivery.
const seenCapacity = 2000

// Executor pops queued opportunities and processes them one at a time.
// Cross-process safety comes from the execution lock and the pair
// cooldown, both shared through Redis.
type Executor struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	seen   *cache.SeenRing[string]
	ledger *lossLedger
}

// New creates an Executor.
func New(cfg Config, deps Deps, logger *slog.Logger) *Executor {
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	return &Executor{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "executor"), slog.String("mode", string(cfg.Mode))),
		seen:   cache.NewSeenRing[string](seenCapacity),
		ledger: newLossLedger(),
	}
}

// errorBackoff is how long the loop pauses after a queue error before
// polling again.
const errorBackoff = 30 * time.Second

// Run drains the queue until ctx is cancelled. Pop blocks up to the
// configured timeout, so an idle loop wakes regularly for housekeeping.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		opp, err := e.deps.Queue.Pop(ctx, e.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error("queue pop failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
			continue
		}

		if opp != nil {
			e.process(ctx, *opp)
		}
	}
}

// plan is the sized execution produced by preflight: fresh market data,
// per-leg quantities after any mode cap, and the venue outcome to buy.
type plan struct {
	pair       domain.MonitoredPair
	market     domain.AMMMarket // fresh venue snapshot
	state      domain.AMMState  // fresh, oriented so the AMM leg adds to QYes
	outcomeID  int              // venue outcome index the AMM leg buys
	bookShares float64
	bookCost   float64 // USD at the planned limit price
	ammShares  float64
	ammCostUSD float64
}

// process runs one opportunity end to end. Every terminal path records the
// status on the opportunity row; only duplicate or lock-contended pops exit
// silently.
func (e *Executor) process(ctx context.Context, opp domain.ArbitrageOpportunity) {
	log := e.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("pair_key", opp.PairKey),
		slog.String("direction", string(opp.Direction)),
	)

	if e.seen.Seen(opp.ID) {
		log.Debug("duplicate opportunity, skipping")
		return
	}

	token, err := e.deps.Lock.Acquire(ctx, "exec:"+opp.PairKey, e.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			log.Info("pair already executing elsewhere, skipping")
			return
		}
		e.markTerminal(ctx, &opp, domain.ExecStatusFailPreflight, fmt.Sprintf("lock: %v", err), log)
		return
	}
	defer func() {
		if err := e.deps.Lock.Release(context.WithoutCancel(ctx), "exec:"+opp.PairKey, token); err != nil {
			log.Warn("lock release failed", "error", err)
		}
	}()

	pl, err := e.preflight(ctx, opp)
	if err != nil {
		e.markTerminal(ctx, &opp, domain.ExecStatusFailPreflight, err.Error(), log)
		return
	}

	log.Info("preflight passed",
		"book_shares", pl.bookShares,
		"book_cost_usd", pl.bookCost,
		"amm_shares", pl.ammShares,
		"amm_cost_usd", pl.ammCostUSD,
		"limit_price", opp.BookLimitPrice)

	// The cooldown burns as soon as the legs can fire: a failed attempt
	// must not be retried immediately on the same pair.
	if err := e.deps.Cooldown.Set(ctx, opp.PairKey, e.cfg.Cooldown); err != nil {
		log.Warn("cooldown set failed", "error", err)
	}

	e.runLegs(ctx, &opp, pl, log)
}

// preflight re-validates the opportunity against live data and returns the
// sized plan. Any returned error is a rejection reason.
func (e *Executor) preflight(ctx context.Context, opp domain.ArbitrageOpportunity) (plan, error) {
	var pl plan

	pair, err := e.deps.Pairs.GetByID(ctx, opp.PairID)
	if err != nil {
		return pl, fmt.Errorf("pair %d lookup: %v", opp.PairID, err)
	}
	pl.pair = pair

	if !pair.Active {
		return pl, fmt.Errorf("pair disabled")
	}
	if !pair.AutotradeEnabled {
		return pl, fmt.Errorf("autotrade disabled for pair")
	}
	if e.cfg.Mode != ModeDryRun && e.deps.Traders[pair.Venue] == nil {
		return pl, fmt.Errorf("venue %s is alert-only, no trader wired", pair.Venue)
	}

	if age := time.Since(opp.DetectedAt); age > e.cfg.MaxAge {
		return pl, fmt.Errorf("opportunity stale: detected %s ago", age.Round(time.Second))
	}

	active, err := e.deps.Cooldown.Active(ctx, opp.PairKey)
	if err != nil {
		return pl, fmt.Errorf("cooldown check: %v", err)
	}
	if active {
		return pl, fmt.Errorf("pair cooling down")
	}

	// Fresh AMM state: the market must still be open, far enough from
	// expiry, and priced near what detection saw.
	feed := e.deps.Feeds[pair.Venue]
	if feed == nil {
		return pl, fmt.Errorf("no feed for venue %s", pair.Venue)
	}
	market, err := feed.MarketState(ctx, pair.AMMMarketID)
	if err != nil {
		return pl, fmt.Errorf("amm state: %v", err)
	}
	if !market.Active {
		return pl, fmt.Errorf("amm market closed")
	}
	expiry := pair.EffectiveExpiry(market.Expiry)
	if !expiry.IsZero() && time.Until(expiry) < e.cfg.ExpiryBuffer {
		return pl, fmt.Errorf("market expires in %s, inside buffer", time.Until(expiry).Round(time.Second))
	}
	pl.market = market

	pl.state = market.State
	pl.outcomeID = 0
	if opp.Direction == domain.DirectionSellAmmHedgeBook {
		pl.state = pl.state.Flip()
		pl.outcomeID = 1
	}

	// Fresh book state: the market must accept orders and the planned
	// depth must still be there at tolerable cost.
	bm, err := e.deps.Book.GetMarket(ctx, pair.ConditionID)
	if err != nil {
		return pl, fmt.Errorf("book market: %v", err)
	}
	if !bm.Active {
		return pl, fmt.Errorf("book market closed")
	}

	pl.bookShares = opp.BookLeg.Shares
	pl.ammShares = opp.AmmLeg.Shares
	pl.bookCost = opp.BookLeg.Cost
	pl.ammCostUSD = opp.AmmLeg.Cost

	// The cap scales both legs together so the hedge ratio survives.
	if e.cfg.Mode == ModeLimitedLive && pl.bookCost > e.cfg.MaxTradeUSD {
		scale := e.cfg.MaxTradeUSD / pl.bookCost
		pl.bookShares *= scale
		pl.ammShares *= scale
		pl.bookCost = pl.bookShares * opp.BookLimitPrice
		cost, err := ammCostUSD(pl.state, pl.ammShares, opp.FXRate)
		if err != nil {
			return pl, fmt.Errorf("resize amm leg: %v", err)
		}
		pl.ammCostUSD = cost
	}

	book, err := e.deps.Book.OrderBook(ctx, opp.BookTokenID)
	if err != nil {
		return pl, fmt.Errorf("book fetch: %v", err)
	}
	fill := book.Consume(pl.bookShares)
	if !fill.Complete {
		return pl, fmt.Errorf("book depth gone: %.2f of %.2f shares available", fill.Shares, pl.bookShares)
	}
	drift := 1 + e.cfg.MaxPriceDriftPc/100
	if fill.Cost > pl.bookCost*drift {
		return pl, fmt.Errorf("book cost drifted: %.2f planned, %.2f now", pl.bookCost, fill.Cost)
	}

	freshAmm, err := ammCostUSD(pl.state, pl.ammShares, opp.FXRate)
	if err != nil {
		return pl, fmt.Errorf("amm repricing: %v", err)
	}
	if freshAmm > pl.ammCostUSD*drift {
		return pl, fmt.Errorf("amm cost drifted: %.2f planned, %.2f now", pl.ammCostUSD, freshAmm)
	}

	if loss := e.ledger.today(); loss >= e.cfg.MaxDailyLossUSD {
		return pl, fmt.Errorf("daily loss cap reached: %.2f USD", loss)
	}

	if e.cfg.Mode != ModeDryRun {
		if err := e.checkBalances(ctx, pair.Venue, pl); err != nil {
			return pl, err
		}
	}

	return pl, nil
}

// checkBalances verifies collateral on both sides and gas on the AMM chain.
func (e *Executor) checkBalances(ctx context.Context, venue domain.Venue, pl plan) error {
	if e.deps.Balances == nil {
		return fmt.Errorf("no balance source wired for mode %s", e.cfg.Mode)
	}

	bookBal, err := e.deps.Balances.BookUSDC(ctx)
	if err != nil {
		return fmt.Errorf("book balance: %v", err)
	}
	if bookBal < pl.bookCost {
		return fmt.Errorf("book collateral short: have %.2f, need %.2f USDC", bookBal, pl.bookCost)
	}

	ammBal, err := e.deps.Balances.AMMUSDC(ctx, venue)
	if err != nil {
		return fmt.Errorf("amm balance: %v", err)
	}
	if ammBal < pl.ammCostUSD {
		return fmt.Errorf("amm collateral short: have %.2f, need %.2f USDC", ammBal, pl.ammCostUSD)
	}

	gas, err := e.deps.Balances.GasBalance(ctx, venue)
	if err != nil {
		return fmt.Errorf("gas balance: %v", err)
	}
	if gas < e.cfg.MinGasBalance {
		return fmt.Errorf("gas balance short: have %.6f, need %.6f", gas, e.cfg.MinGasBalance)
	}

	return nil
}

// runLegs places the book FAK, re-sizes the AMM leg to the actual fill,
// and buys it. Leg-2 failures unwind the book fill aggressively.
func (e *Executor) runLegs(ctx context.Context, opp *domain.ArbitrageOpportunity, pl plan, log *slog.Logger) {
	executed := pl.bookShares
	if e.cfg.Mode == ModeDryRun {
		log.Info("[dry run] book leg",
			"token", opp.BookTokenID,
			"limit", opp.BookLimitPrice,
			"shares", pl.bookShares)
	} else {
		result, err := e.deps.Book.BuyFAK(ctx, opp.BookTokenID, opp.BookLimitPrice, pl.bookShares)
		if err != nil {
			e.markTerminal(ctx, opp, domain.ExecStatusFailLeg1, fmt.Sprintf("book order: %v", err), log)
			return
		}
		executed = result.FilledShares(domain.OrderSideBuy)
		if executed <= 0 {
			e.markTerminal(ctx, opp, domain.ExecStatusFailLeg1,
				fmt.Sprintf("book FAK killed unfilled: %s", result.Message), log)
			return
		}
		log.Info("book leg filled", "order_id", result.OrderID, "shares", executed)
	}

	// Re-size the AMM leg to what actually filled. The fill can come back
	// short of the plan; hedging to the plan would leave the excess naked.
	fx := opp.FXRate
	if fx <= 0 {
		fx = 1
	}
	ammShares := executed / fx
	ammCost, err := ammCostUSD(pl.state, ammShares, fx)
	if err != nil {
		e.unwindAndMark(ctx, opp, executed, fmt.Sprintf("amm repricing: %v", err), log)
		return
	}

	if e.cfg.Mode == ModeDryRun {
		log.Info("[dry run] amm leg",
			"venue", string(pl.pair.Venue),
			"market", pl.pair.AMMMarketID,
			"outcome", pl.outcomeID,
			"shares", ammShares,
			"cost_usd", ammCost)
	} else {
		trader := e.deps.Traders[pl.pair.Venue]
		txHash, err := trader.BuyOutcome(ctx, pl.market, pl.outcomeID, ammCost)
		if err != nil {
			e.unwindAndMark(ctx, opp, executed, fmt.Sprintf("amm buy: %v", err), log)
			return
		}
		log.Info("amm leg bought", "tx", txHash, "shares", ammShares, "cost_usd", ammCost)
	}

	e.markTerminal(ctx, opp, domain.ExecStatusSuccessReconciled,
		fmt.Sprintf("hedged %.2f book shares against %.2f amm shares", executed, ammShares), log)
}

// unwindAndMark dumps the leg-1 fill with an aggressive FAK sell and
// records the terminal status. The realized loss feeds the daily cap.
func (e *Executor) unwindAndMark(ctx context.Context, opp *domain.ArbitrageOpportunity, shares float64, reason string, log *slog.Logger) {
	if e.cfg.Mode == ModeDryRun {
		log.Warn("[dry run] would unwind book leg", "shares", shares, "reason", reason)
		e.markTerminal(ctx, opp, domain.ExecStatusFailLeg2Unwound, reason, log)
		return
	}

	result, err := e.deps.Book.Unwind(ctx, opp.BookTokenID, shares)
	if err != nil || !result.Success {
		detail := reason + "; unwind failed"
		if err != nil {
			detail += ": " + err.Error()
		} else if result.Message != "" {
			detail += ": " + result.Message
		}
		e.ledger.add(shares * opp.BookLimitPrice)
		e.markTerminal(ctx, opp, domain.ExecStatusFailLeg2Unhedged, detail, log)
		return
	}

	// Proceeds from a floor-price dump are near zero; count the book cost
	// as lost and let reconciliation true it up.
	e.ledger.add(shares * opp.BookLimitPrice)
	e.markTerminal(ctx, opp, domain.ExecStatusFailLeg2Unwound, reason+"; book leg unwound", log)
}

// markTerminal stamps the outcome on the opportunity, persists it, logs an
// audit row, and alerts.
func (e *Executor) markTerminal(ctx context.Context, opp *domain.ArbitrageOpportunity, status domain.ExecutionStatus, detail string, log *slog.Logger) {
	now := time.Now().UTC()
	opp.Status = status
	opp.ExecutedAt = &now

	if status == domain.ExecStatusSuccessReconciled {
		log.Info("execution finished", "status", string(status), "detail", detail)
	} else {
		log.Warn("execution finished", "status", string(status), "detail", detail)
	}

	if err := e.deps.Opps.UpdateStatus(ctx, opp.ID, status); err != nil {
		log.Error("status update failed", "error", err)
	}
	if e.deps.Audit != nil {
		err := e.deps.Audit.Log(ctx, "execution", map[string]any{
			"opportunity_id": opp.ID,
			"pair_key":       opp.PairKey,
			"status":         string(status),
			"detail":         detail,
			"mode":           string(e.cfg.Mode),
		})
		if err != nil {
			log.Warn("audit log failed", "error", err)
		}
	}
	if e.deps.Alerter != nil {
		e.deps.Alerter.ExecutionResult(ctx, *opp, detail)
	}
}

// ammCostUSD prices buying shares on the oriented state, fee and FX
// included.
func ammCostUSD(state domain.AMMState, shares, fxRate float64) (float64, error) {
	if shares <= 0 {
		return 0, fmt.Errorf("no shares to price")
	}
	preFee, err := lmsr.BuyCost(state.QYes, state.QNo, state.B, shares)
	if err != nil {
		return 0, err
	}
	if fxRate <= 0 {
		fxRate = 1
	}
	return preFee * (1 + state.FeeRate) * fxRate, nil
}
