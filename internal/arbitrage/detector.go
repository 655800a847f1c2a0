package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/ammarbot/internal/cache"
	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// DetectorConfig holds the tunable parameters for opportunity detection.
type DetectorConfig struct {
	MinProfitUSD float64
	MinROI       float64
	MinAPY       float64

	// FXFallback maps settlement currency codes to the constant used when
	// the rate feed has never succeeded for that currency.
	FXFallback map[string]float64
	FXCacheTTL time.Duration
}

// Detector evaluates monitored pairs against current market data and emits
// qualifying opportunities to the sink. It owns no schedule; the scheduler
// hands it batches of pairs.
type Detector struct {
	feeds   map[domain.Venue]domain.AMMFeed
	books   domain.BookFeed
	rates   domain.RateFeed
	sink    domain.OpportunitySink
	fxCache *cache.Cache[string, float64]
	cfg     DetectorConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewDetector creates a Detector. rates may be nil when every configured
// venue settles in USD; sink may be nil to run detection-only (results are
// still returned to the caller).
func NewDetector(
	feeds map[domain.Venue]domain.AMMFeed,
	books domain.BookFeed,
	rates domain.RateFeed,
	sink domain.OpportunitySink,
	cfg DetectorConfig,
	logger *slog.Logger,
) *Detector {
	ttl := cfg.FXCacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Detector{
		feeds:   feeds,
		books:   books,
		rates:   rates,
		sink:    sink,
		fxCache: cache.New[string, float64](ttl, logger),
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "detector")),
		now:     time.Now,
	}
}

// CheckBatch evaluates the given pairs sequentially and returns a report.
// Each pair's failure is isolated: one bad pair never blocks the rest of
// the pass, and a batch always completes with a (possibly empty) set of
// opportunities.
func (d *Detector) CheckBatch(ctx context.Context, pairs []domain.MonitoredPair) domain.BatchReport {
	report := domain.BatchReport{StartedAt: d.now()}

	for _, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		started := d.now()
		res := d.CheckPair(ctx, pair)
		res.Elapsed = d.now().Sub(started)
		report.Results = append(report.Results, res)

		if res.Err != nil {
			d.logger.WarnContext(ctx, "pair check failed",
				slog.String("pair", pair.Key()),
				slog.String("error", res.Err.Error()),
			)
		}
	}

	d.logger.InfoContext(ctx, "batch complete",
		slog.Int("pairs", len(report.Results)),
		slog.Int("found", len(report.Found())),
		slog.Int("failed", len(report.Failed())),
	)
	return report
}

// CheckPair fetches one pair's market data, searches both directions, and
// emits the best result when it clears the thresholds.
func (d *Detector) CheckPair(ctx context.Context, pair domain.MonitoredPair) domain.CheckResult {
	res := domain.CheckResult{Pair: pair}

	feed, ok := d.feeds[pair.Venue]
	if !ok {
		res.Err = fmt.Errorf("detector: no feed for venue %q: %w", pair.Venue, domain.ErrUpstreamUnavailable)
		return res
	}

	amm, err := feed.MarketState(ctx, pair.AMMMarketID)
	if err != nil {
		res.Err = fmt.Errorf("detector: amm state %s: %w", pair.AMMMarketID, err)
		return res
	}

	fxRate, err := d.fxRate(ctx, amm.Currency)
	if err != nil {
		res.Err = err
		return res
	}

	tokens := pair.BookTokens()
	bookForYes, err := d.books.OrderBook(ctx, tokens[0])
	if err != nil {
		res.Err = fmt.Errorf("detector: book %s: %w", tokens[0], err)
		return res
	}
	bookForNo, err := d.books.OrderBook(ctx, tokens[1])
	if err != nil {
		res.Err = fmt.Errorf("detector: book %s: %w", tokens[1], err)
		return res
	}

	var (
		best   SearchResult
		bestIn DirectionInput
		have   bool
	)
	for _, in := range DirectionInputs(amm.State, bookForYes, bookForNo) {
		sr, err := OptimalTarget(in.State, in.Hedge, fxRate)
		if err != nil {
			res.Err = fmt.Errorf("detector: search %s: %w", in.Direction, err)
			return res
		}
		if !have || sr.Best.ProfitUSD > best.Best.ProfitUSD {
			best = sr
			bestIn = in
			have = true
		}
	}
	if !have {
		return res
	}

	expiry := pair.EffectiveExpiry(amm.Expiry)
	now := d.now()
	apy := APY(best.Best.ROI, expiry, now)

	d.logger.DebugContext(ctx, "pair evaluated",
		slog.String("pair", pair.Key()),
		slog.String("direction", string(bestIn.Direction)),
		slog.Float64("profit_usd", best.Best.ProfitUSD),
		slog.Float64("roi", best.Best.ROI),
		slog.Float64("apy", apy),
		slog.Bool("fallback", best.FromFallback),
	)

	if !d.qualifies(pair, best, apy) {
		return res
	}

	opp := domain.ArbitrageOpportunity{
		ID:               uuid.NewString(),
		PairID:           pair.ID,
		PairKey:          pair.Key(),
		Direction:        bestIn.Direction,
		AmmLeg:           best.Best.AmmLeg,
		BookLeg:          best.Best.BookLeg,
		GuaranteedPayout: best.Best.GuaranteedPayout,
		TotalCostUSD:     best.Best.TotalCostUSD,
		ProfitUSD:        best.Best.ProfitUSD,
		ROI:              best.Best.ROI,
		Score:            best.Best.Score,
		APY:              apy,
		FXRate:           fxRate,
		AmmState:         bestIn.State,
		BookTokenID:      bestIn.Hedge.TokenID,
		BookLimitPrice:   best.Best.BookLimitPrice,
		MarketExpiry:     expiry,
		DetectedAt:       now,
		Status:           domain.ExecStatusDetected,
	}
	res.Opportunity = &opp

	d.logger.InfoContext(ctx, "opportunity detected",
		slog.String("opp_id", opp.ID),
		slog.String("pair", pair.Key()),
		slog.String("direction", string(bestIn.Direction)),
		slog.Float64("profit_usd", opp.ProfitUSD),
		slog.Float64("roi", opp.ROI),
		slog.Float64("apy", opp.APY),
	)

	if d.sink != nil {
		if err := d.sink.EmitOpportunity(ctx, opp); err != nil {
			// Sink trouble is an infra concern, not an evaluation failure;
			// the result still reports the find.
			d.logger.WarnContext(ctx, "opportunity emit failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return res
}

func (d *Detector) qualifies(pair domain.MonitoredPair, sr SearchResult, apy float64) bool {
	if sr.FromFallback {
		return false
	}
	minProfit := d.cfg.MinProfitUSD
	if pair.ProfitThresholdUSD > minProfit {
		minProfit = pair.ProfitThresholdUSD
	}
	if sr.Best.ProfitUSD < minProfit {
		return false
	}
	if sr.Best.ROI < d.cfg.MinROI {
		return false
	}
	if d.cfg.MinAPY > 0 && apy < d.cfg.MinAPY {
		return false
	}
	return true
}

// fxRate resolves the settlement-currency → USD rate through the TTL
// cache. USD short-circuits to 1. A feed that has never succeeded falls
// back to the configured constant rather than failing the pair.
func (d *Detector) fxRate(ctx context.Context, currency string) (float64, error) {
	if currency == "" || currency == "USD" {
		return 1.0, nil
	}
	if d.rates != nil {
		rate, err := d.fxCache.GetOrRefresh(ctx, currency, func(ctx context.Context) (float64, error) {
			return d.rates.USDRate(ctx, currency)
		})
		if err == nil && rate > 0 {
			return rate, nil
		}
	}
	if fallback, ok := d.cfg.FXFallback[currency]; ok && fallback > 0 {
		d.logger.Warn("using fx fallback rate",
			slog.String("currency", currency),
			slog.Float64("rate", fallback),
		)
		return fallback, nil
	}
	return 0, fmt.Errorf("detector: no fx rate for %s: %w", currency, domain.ErrUpstreamUnavailable)
}
