package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

type fakeQueue struct {
	opps []*domain.ArbitrageOpportunity
}

func (f *fakeQueue) Pop(ctx context.Context, timeout time.Duration) (*domain.ArbitrageOpportunity, error) {
	if len(f.opps) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(timeout):
			return nil, nil
		}
	}
	opp := f.opps[0]
	f.opps = f.opps[1:]
	return opp, nil
}

type fakePairs struct {
	pairs map[int64]domain.MonitoredPair
	err   error
}

func (f *fakePairs) GetByID(_ context.Context, id int64) (domain.MonitoredPair, error) {
	if f.err != nil {
		return domain.MonitoredPair{}, f.err
	}
	p, ok := f.pairs[id]
	if !ok {
		return domain.MonitoredPair{}, domain.ErrNotFound
	}
	return p, nil
}

type fakeStatusStore struct {
	statuses map[string]domain.ExecutionStatus
	err      error
}

func (f *fakeStatusStore) UpdateStatus(_ context.Context, id string, status domain.ExecutionStatus) error {
	if f.err != nil {
		return f.err
	}
	f.statuses[id] = status
	return nil
}

type fakeAMMFeed struct {
	venue   domain.Venue
	markets map[string]domain.AMMMarket
	err     error
}

func (f *fakeAMMFeed) Venue() domain.Venue { return f.venue }

func (f *fakeAMMFeed) MarketState(_ context.Context, id string) (domain.AMMMarket, error) {
	if f.err != nil {
		return domain.AMMMarket{}, f.err
	}
	m, ok := f.markets[id]
	if !ok {
		return domain.AMMMarket{}, domain.ErrNotFound
	}
	return m, nil
}

type orderCall struct {
	tokenID string
	price   float64
	size    float64
}

type fakeBook struct {
	books   map[string]domain.OrderBook
	markets map[string]domain.BookMarket

	buyResult domain.OrderResult
	buyErr    error
	buyCalls  []orderCall

	unwindResult domain.OrderResult
	unwindErr    error
	unwindCalls  []orderCall
}

func (f *fakeBook) OrderBook(_ context.Context, tokenID string) (domain.OrderBook, error) {
	b, ok := f.books[tokenID]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeBook) GetMarket(_ context.Context, conditionID string) (domain.BookMarket, error) {
	m, ok := f.markets[conditionID]
	if !ok {
		return domain.BookMarket{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeBook) BuyFAK(_ context.Context, tokenID string, price, size float64) (domain.OrderResult, error) {
	f.buyCalls = append(f.buyCalls, orderCall{tokenID, price, size})
	return f.buyResult, f.buyErr
}

func (f *fakeBook) Unwind(_ context.Context, tokenID string, size float64) (domain.OrderResult, error) {
	f.unwindCalls = append(f.unwindCalls, orderCall{tokenID: tokenID, size: size})
	return f.unwindResult, f.unwindErr
}

type traderCall struct {
	marketID  string
	outcomeID int
	usdc      float64
}

type fakeTrader struct {
	txHash string
	err    error
	calls  []traderCall
}

func (f *fakeTrader) BuyOutcome(_ context.Context, market domain.AMMMarket, outcomeID int, usdc float64) (string, error) {
	f.calls = append(f.calls, traderCall{market.ID, outcomeID, usdc})
	if f.err != nil {
		return "", f.err
	}
	return f.txHash, nil
}

type fakeBalances struct {
	book, amm, gas float64
	err            error
}

func (f *fakeBalances) BookUSDC(_ context.Context) (float64, error) {
	return f.book, f.err
}

func (f *fakeBalances) AMMUSDC(_ context.Context, _ domain.Venue) (float64, error) {
	return f.amm, f.err
}

func (f *fakeBalances) GasBalance(_ context.Context, _ domain.Venue) (float64, error) {
	return f.gas, f.err
}

type fakeCooldown struct {
	active map[string]bool
	set    map[string]time.Duration
}

func (f *fakeCooldown) Active(_ context.Context, key string) (bool, error) {
	return f.active[key], nil
}

func (f *fakeCooldown) Set(_ context.Context, key string, d time.Duration) error {
	f.set[key] = d
	return nil
}

type fakeLock struct {
	held     map[string]bool
	acquired []string
	released []string
}

func (f *fakeLock) Acquire(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.held[key] {
		return "", domain.ErrLockHeld
	}
	f.acquired = append(f.acquired, key)
	return "tok", nil
}

func (f *fakeLock) Release(_ context.Context, key, _ string) error {
	f.released = append(f.released, key)
	return nil
}

type auditEntry struct {
	event  string
	detail map[string]any
}

type fakeAudit struct {
	entries []auditEntry
}

func (f *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	f.entries = append(f.entries, auditEntry{event, detail})
	return nil
}

func (f *fakeAudit) last() auditEntry {
	return f.entries[len(f.entries)-1]
}

type fakeAlerter struct {
	mu      sync.Mutex
	opps    []domain.ArbitrageOpportunity
	details []string
}

func (f *fakeAlerter) ExecutionResult(_ context.Context, opp domain.ArbitrageOpportunity, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opps = append(f.opps, opp)
	f.details = append(f.details, detail)
}

func (f *fakeAlerter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opps)
}

type fixture struct {
	exec     *Executor
	pairs    *fakePairs
	opps     *fakeStatusStore
	book     *fakeBook
	feed     *fakeAMMFeed
	trader   *fakeTrader
	balances *fakeBalances
	cooldown *fakeCooldown
	lock     *fakeLock
	audit    *fakeAudit
	alerter  *fakeAlerter
}

// newFixture wires an executor to healthy fakes: a symmetric 50/50 AMM
// market, a book with 100 shares resting at the planned limit, funded
// balances, and a live-filling FAK result. Tests break one piece at a
// time.
func newFixture(mode Mode) *fixture {
	f := &fixture{
		pairs: &fakePairs{pairs: map[int64]domain.MonitoredPair{
			7: {
				ID:               7,
				Venue:            domain.VenueMyriad,
				AMMMarketID:      "mkt-1",
				ConditionID:      "0xcond",
				TokenIDYes:       "tok-yes",
				TokenIDNo:        "tok-no",
				AutotradeEnabled: true,
				Active:           true,
			},
		}},
		opps: &fakeStatusStore{statuses: map[string]domain.ExecutionStatus{}},
		book: &fakeBook{
			books: map[string]domain.OrderBook{
				"tok-no": {TokenID: "tok-no", Asks: []domain.PriceLevel{{Price: 0.38, Size: 100}}},
			},
			markets: map[string]domain.BookMarket{
				"0xcond": {ConditionID: "0xcond", TokenIDs: [2]string{"tok-yes", "tok-no"}, Active: true},
			},
			buyResult:    domain.OrderResult{Success: true, OrderID: "ord-1", Status: domain.OrderStatusMatched, TakingAmount: 40, MakingAmount: 15.2},
			unwindResult: domain.OrderResult{Success: true, MakingAmount: 40},
		},
		feed: &fakeAMMFeed{
			venue: domain.VenueMyriad,
			markets: map[string]domain.AMMMarket{
				"mkt-1": {
					ID:            "mkt-1",
					Venue:         domain.VenueMyriad,
					State:         domain.AMMState{QYes: 0, QNo: 0, B: 100, FeeRate: 0.02},
					Expiry:        time.Now().Add(48 * time.Hour),
					Active:        true,
					ChainMarketID: 42,
				},
			},
		},
		trader:   &fakeTrader{txHash: "0xabc"},
		balances: &fakeBalances{book: 1000, amm: 1000, gas: 1},
		cooldown: &fakeCooldown{active: map[string]bool{}, set: map[string]time.Duration{}},
		lock:     &fakeLock{held: map[string]bool{}},
		audit:    &fakeAudit{},
		alerter:  &fakeAlerter{},
	}

	cfg := Config{
		Mode:            mode,
		MaxTradeUSD:     250,
		MaxDailyLossUSD: 500,
		Cooldown:        5 * time.Minute,
		LockTTL:         30 * time.Second,
		PopTimeout:      50 * time.Millisecond,
		MaxPriceDriftPc: 1.0,
		MaxAge:          2 * time.Minute,
		ExpiryBuffer:    5 * time.Minute,
		MinGasBalance:   0.0001,
	}
	f.exec = New(cfg, Deps{
		Queue:    &fakeQueue{},
		Pairs:    f.pairs,
		Opps:     f.opps,
		Book:     f.book,
		Feeds:    map[domain.Venue]domain.AMMFeed{domain.VenueMyriad: f.feed},
		Traders:  map[domain.Venue]AMMTrader{domain.VenueMyriad: f.trader},
		Balances: f.balances,
		Cooldown: f.cooldown,
		Lock:     f.lock,
		Audit:    f.audit,
		Alerter:  f.alerter,
	}, slog.New(slog.DiscardHandler))
	return f
}

// testOpportunity is a 40-share hedge on the fixture market: 40 "no" book
// shares at 0.38 against 40 AMM "yes" shares costing 21.99 pre-fee.
func testOpportunity() domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		ID:               "opp-1",
		PairID:           7,
		PairKey:          "myriad:mkt-1:0xcond",
		Direction:        domain.DirectionBuyAmmHedgeBook,
		AmmLeg:           domain.TradeLeg{Shares: 40, Cost: 22.43, AvgPrice: 0.56, FillComplete: true},
		BookLeg:          domain.TradeLeg{Shares: 40, Cost: 15.2, AvgPrice: 0.38, FillComplete: true},
		GuaranteedPayout: 40,
		TotalCostUSD:     37.63,
		ProfitUSD:        2.37,
		FXRate:           1.0,
		AmmState:         domain.AMMState{QYes: 0, QNo: 0, B: 100, FeeRate: 0.02},
		BookTokenID:      "tok-no",
		BookLimitPrice:   0.38,
		MarketExpiry:     time.Now().Add(48 * time.Hour),
		DetectedAt:       time.Now(),
		Status:           domain.ExecStatusDetected,
	}
}

func TestProcessDryRunSuccess(t *testing.T) {
	f := newFixture(ModeDryRun)
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusSuccessReconciled, f.opps.statuses["opp-1"])
	assert.Empty(t, f.book.buyCalls, "dry run must not place orders")
	assert.Empty(t, f.trader.calls, "dry run must not buy on chain")

	require.Len(t, f.lock.acquired, 1)
	assert.Equal(t, "exec:myriad:mkt-1:0xcond", f.lock.acquired[0])
	assert.Equal(t, f.lock.acquired, f.lock.released)
	assert.Contains(t, f.cooldown.set, "myriad:mkt-1:0xcond")

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.last()
	assert.Equal(t, "execution", entry.event)
	assert.Equal(t, "opp-1", entry.detail["opportunity_id"])
	assert.Equal(t, string(domain.ExecStatusSuccessReconciled), entry.detail["status"])
	assert.Equal(t, "dry_run", entry.detail["mode"])

	require.Len(t, f.alerter.opps, 1)
	require.NotNil(t, f.alerter.opps[0].ExecutedAt)
}

func TestProcessLiveSuccess(t *testing.T) {
	f := newFixture(ModeLive)
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusSuccessReconciled, f.opps.statuses["opp-1"])

	require.Len(t, f.book.buyCalls, 1)
	assert.Equal(t, "tok-no", f.book.buyCalls[0].tokenID)
	assert.InDelta(t, 0.38, f.book.buyCalls[0].price, 1e-9)
	assert.InDelta(t, 40, f.book.buyCalls[0].size, 1e-9)

	require.Len(t, f.trader.calls, 1)
	call := f.trader.calls[0]
	assert.Equal(t, "mkt-1", call.marketID)
	assert.Equal(t, 0, call.outcomeID)
	// BuyCost(0, 0, 100, 40) = 21.9868, plus the 2% fee.
	assert.InDelta(t, 22.4265, call.usdc, 0.001)

	assert.Empty(t, f.book.unwindCalls)
}

func TestProcessPartialFillResizesHedge(t *testing.T) {
	f := newFixture(ModeLive)
	f.book.buyResult = domain.OrderResult{Success: true, OrderID: "ord-1", Status: domain.OrderStatusMatched, TakingAmount: 20, MakingAmount: 7.6}
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusSuccessReconciled, f.opps.statuses["opp-1"])
	require.Len(t, f.trader.calls, 1)
	// Only 20 of the planned 40 filled, so the AMM leg shrinks with it:
	// BuyCost(0, 0, 100, 20) = 10.4992, plus the 2% fee.
	assert.InDelta(t, 10.7092, f.trader.calls[0].usdc, 0.001)
}

func TestProcessSellDirectionBuysSecondOutcome(t *testing.T) {
	f := newFixture(ModeLive)
	opp := testOpportunity()
	opp.Direction = domain.DirectionSellAmmHedgeBook
	opp.BookTokenID = "tok-yes"
	f.book.books["tok-yes"] = domain.OrderBook{TokenID: "tok-yes", Asks: []domain.PriceLevel{{Price: 0.38, Size: 100}}}

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusSuccessReconciled, f.opps.statuses["opp-1"])
	require.Len(t, f.trader.calls, 1)
	assert.Equal(t, 1, f.trader.calls[0].outcomeID)
}

func TestProcessLeg1UnfilledFails(t *testing.T) {
	f := newFixture(ModeLive)
	f.book.buyResult = domain.OrderResult{Success: false, Status: domain.OrderStatusCancelled, Message: "killed"}
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusFailLeg1, f.opps.statuses["opp-1"])
	assert.Empty(t, f.trader.calls, "amm leg must not fire after a dead book leg")
	assert.Empty(t, f.book.unwindCalls, "nothing filled, nothing to unwind")
}

func TestProcessLeg1ErrorFails(t *testing.T) {
	f := newFixture(ModeLive)
	f.book.buyErr = errors.New("venue 500")
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusFailLeg1, f.opps.statuses["opp-1"])
	assert.Empty(t, f.trader.calls)
}

func TestProcessLeg2FailureUnwinds(t *testing.T) {
	f := newFixture(ModeLive)
	f.trader.err = errors.New("rpc timeout")
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusFailLeg2Unwound, f.opps.statuses["opp-1"])
	require.Len(t, f.book.unwindCalls, 1)
	assert.Equal(t, "tok-no", f.book.unwindCalls[0].tokenID)
	assert.InDelta(t, 40, f.book.unwindCalls[0].size, 1e-9)
	// The book cost of the dumped fill lands on the daily loss ledger.
	assert.InDelta(t, 15.2, f.exec.ledger.today(), 1e-9)
}

func TestProcessUnwindFailureLeavesUnhedged(t *testing.T) {
	f := newFixture(ModeLive)
	f.trader.err = errors.New("rpc timeout")
	f.book.unwindErr = errors.New("book down")
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusFailLeg2Unhedged, f.opps.statuses["opp-1"])
	assert.InDelta(t, 15.2, f.exec.ledger.today(), 1e-9)
	require.Len(t, f.alerter.details, 1)
	assert.Contains(t, f.alerter.details[0], "unwind failed")
}

func TestProcessLimitedLiveCapsSize(t *testing.T) {
	f := newFixture(ModeLimitedLive)
	f.exec.cfg.MaxTradeUSD = 7.6
	f.book.buyResult = domain.OrderResult{Success: true, OrderID: "ord-1", Status: domain.OrderStatusMatched, TakingAmount: 20, MakingAmount: 7.6}
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusSuccessReconciled, f.opps.statuses["opp-1"])
	require.Len(t, f.book.buyCalls, 1)
	assert.InDelta(t, 20, f.book.buyCalls[0].size, 1e-9, "7.60 cap at 0.38 buys 20 shares")
	require.Len(t, f.trader.calls, 1)
	assert.InDelta(t, 10.7092, f.trader.calls[0].usdc, 0.001)
}

func TestPreflightRejections(t *testing.T) {
	cases := []struct {
		name   string
		mode   Mode
		mutate func(f *fixture, opp *domain.ArbitrageOpportunity)
		reason string
	}{
		{
			name: "pair disabled",
			mode: ModeDryRun,
			mutate: func(f *fixture, _ *domain.ArbitrageOpportunity) {
				p := f.pairs.pairs[7]
				p.Active = false
				f.pairs.pairs[7] = p
			},
			reason: "pair disabled",
		},
		{
			name: "autotrade off",
			mode: ModeDryRun,
			mutate: func(f *fixture, _ *domain.ArbitrageOpportunity) {
				p := f.pairs.pairs[7]
				p.AutotradeEnabled = false
				f.pairs.pairs[7] = p
			},
			reason: "autotrade disabled",
		},
		{
			name: "alert-only venue outside dry run",
			mode: ModeLive,
			mutate: func(f *fixture, _ *domain.ArbitrageOpportunity) {
				delete(f.exec.deps.Traders, domain.VenueMyriad)
			},
			reason: "alert-only",
		},
		{
			name: "stale opportunity",
			mode: ModeDryRun,
			mutate: func(_ *fixture, opp *domain.ArbitrageOpportunity) {
				opp.DetectedAt = time.Now().Add(-3 * time.Minute)
			},
			reason: "stale",
		},
		{
			name: "pair cooling down",
			mode: ModeDryRun,
			mutate: func(f *fixture, opp *domain.ArbitrageOpportunity) {
				f.cooldown.active[opp.PairKey] = true
			},
			reason: "cooling down",
		},
		{
			name: "amm market closed",
			mode: ModeDryRun,
			mutate: func(f *fixture, _ *domain.ArbitrageOpportunity) {
				m := f.feed.markets["mkt-1"]
				m.Active = false
				f.feed.markets["mkt-1"] = m
			},
			reason: "amm market closed",
		},
		{
			name: "expiry inside buffer",
			mode: ModeDryRun,
			mutate: func(f *fixture, _ *domain.ArbitrageOpportunity) {
				m := f.feed.markets["mkt-1"]
				m.Expiry = time.Now().Add(2 * time.Minute)
				f.feed.markets["mkt-1"] = m
			},
			reason: "inside buffer",
		},
		{
			name: "book market closed",
			mode: ModeDryRun,
			mutate: func(f *fixture, _ *domain.ArbitrageOpportunity) {
				m := f.book.markets["0xcond"]
				m.Active = false
				f.book.markets["0xcond"] = m
			},
			reason: "book market closed",
		},
		{
			name: "book depth gone",
			mode: ModeDryRun,
			mutate: func(f *fixture, _ *domain.ArbitrageOpportunity) {
				f.book.books["tok-no"] = domain.OrderBook{TokenID: "tok-no", Asks: []domain.PriceLevel{{Price: 0.38, Size: 10}}}
			},
			reason: "depth gone",
		},
		{
			name: "book cost drifted",
			mode: ModeDryRun,
			mutate: func(f *fixture, _ *domain.ArbitrageOpportunity) {
				f.book.books["tok-no"] = domain.OrderBook{TokenID: "tok-no", Asks: []domain.PriceLevel{{Price: 0.5, Size: 100}}}
			},
			reason: "drifted",
		},
		{
			name: "amm cost drifted",
			mode: ModeDryRun,
			mutate: func(f *fixture, _ *domain.ArbitrageOpportunity) {
				// More outstanding "yes" shares push the buy cost up.
				m := f.feed.markets["mkt-1"]
				m.State.QYes = 80
				f.feed.markets["mkt-1"] = m
			},
			reason: "drifted",
		},
		{
			name: "book collateral short",
			mode: ModeLive,
			mutate: func(f *fixture, _ *domain.ArbitrageOpportunity) {
				f.balances.book = 1
			},
			reason: "collateral short",
		},
		{
			name: "gas short",
			mode: ModeLive,
			mutate: func(f *fixture, _ *domain.ArbitrageOpportunity) {
				f.balances.gas = 0
			},
			reason: "gas balance short",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(tc.mode)
			opp := testOpportunity()
			tc.mutate(f, &opp)

			f.exec.process(context.Background(), opp)

			assert.Equal(t, domain.ExecStatusFailPreflight, f.opps.statuses["opp-1"])
			assert.Empty(t, f.book.buyCalls)
			assert.Empty(t, f.trader.calls)
			require.NotEmpty(t, f.audit.entries)
			assert.Contains(t, f.audit.last().detail["detail"], tc.reason)
		})
	}
}

func TestPreflightAmmDriftUsesFreshState(t *testing.T) {
	// A moved curve in the cheap direction should still pass: the drift
	// gate only rejects when the fresh cost exceeds the plan.
	f := newFixture(ModeDryRun)
	m := f.feed.markets["mkt-1"]
	m.State.QNo = 20
	f.feed.markets["mkt-1"] = m
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusSuccessReconciled, f.opps.statuses["opp-1"])
}

func TestProcessLockHeldSkipsSilently(t *testing.T) {
	f := newFixture(ModeDryRun)
	opp := testOpportunity()
	f.lock.held["exec:"+opp.PairKey] = true

	f.exec.process(context.Background(), opp)

	assert.Empty(t, f.opps.statuses, "a contended pop is not a terminal outcome")
	assert.Empty(t, f.audit.entries)
	assert.Empty(t, f.cooldown.set)
}

func TestProcessDuplicateSkipped(t *testing.T) {
	f := newFixture(ModeDryRun)
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)
	f.exec.process(context.Background(), opp)

	assert.Len(t, f.audit.entries, 1, "redelivered opportunity must not execute twice")
	assert.Len(t, f.lock.acquired, 1)
}

func TestDailyLossCapBlocksExecution(t *testing.T) {
	f := newFixture(ModeLive)
	f.exec.ledger.add(600)
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusFailPreflight, f.opps.statuses["opp-1"])
	assert.Contains(t, f.audit.last().detail["detail"], "daily loss cap")
}

func TestCooldownBurnsBeforeLegs(t *testing.T) {
	f := newFixture(ModeLive)
	f.book.buyErr = errors.New("venue 500")
	opp := testOpportunity()

	f.exec.process(context.Background(), opp)

	assert.Equal(t, domain.ExecStatusFailLeg1, f.opps.statuses["opp-1"])
	assert.Contains(t, f.cooldown.set, opp.PairKey, "failed attempts still burn the cooldown")
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(ModeDryRun)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.exec.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRunProcessesQueuedOpportunity(t *testing.T) {
	f := newFixture(ModeDryRun)
	opp := testOpportunity()
	f.exec.deps.Queue = &fakeQueue{opps: []*domain.ArbitrageOpportunity{&opp}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.exec.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.alerter.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, domain.ExecStatusSuccessReconciled, f.opps.statuses["opp-1"])
}

func TestAmmCostAppliesFeeAndFX(t *testing.T) {
	state := domain.AMMState{QYes: 0, QNo: 0, B: 100, FeeRate: 0.02}

	cost, err := ammCostUSD(state, 40, 0.5)
	require.NoError(t, err)
	// 21.9868 pre-fee, 2% fee, settled in a currency worth 0.50 USD.
	assert.InDelta(t, 11.2133, cost, 0.001)

	_, err = ammCostUSD(state, 0, 1)
	assert.Error(t, err)
}

func TestLossLedgerRollsDaily(t *testing.T) {
	l := newLossLedger()
	l.add(10)
	l.add(5.5)
	assert.InDelta(t, 15.5, l.today(), 1e-9)

	l.add(-3)
	assert.InDelta(t, 15.5, l.today(), 1e-9, "gains never replenish the cap")

	l.mu.Lock()
	l.day = "2000-01-01"
	l.mu.Unlock()
	assert.Zero(t, l.today(), "a new day starts clean")
}
