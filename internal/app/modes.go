package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ammarbot/internal/activity"
	"github.com/alanyoungcy/ammarbot/internal/arbitrage"
	"github.com/alanyoungcy/ammarbot/internal/domain"
	"github.com/alanyoungcy/ammarbot/internal/executor"
	"github.com/alanyoungcy/ammarbot/internal/matching"
	"github.com/alanyoungcy/ammarbot/internal/schedule"
	"github.com/alanyoungcy/ammarbot/internal/server"
	"github.com/alanyoungcy/ammarbot/internal/server/handler"
)

// serverShutdownTimeout bounds the drain of in-flight requests once the
// run context ends.
const serverShutdownTimeout = 5 * time.Second

// DetectMode runs the tiered scheduler over the monitored pairs, fanning
// detected opportunities out to the store, the execution queue, and the
// alert channels. A separate execute process (or full mode) drains the
// queue.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detect mode")

	g, ctx := errgroup.WithContext(ctx)

	sched := a.buildDetection(deps, true)
	g.Go(func() error {
		return sched.Run(ctx)
	})

	a.startArchiver(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}

	return g.Wait()
}

// ExecuteMode drains the opportunity queue that a detect process feeds.
func (a *App) ExecuteMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Executor.Enabled {
		return fmt.Errorf("execute mode requires executor.enabled")
	}
	a.logger.InfoContext(ctx, "starting execute mode",
		slog.String("executor_mode", a.cfg.Executor.Mode),
	)

	g, ctx := errgroup.WithContext(ctx)

	exec := a.buildExecutor(deps)
	g.Go(func() error {
		return exec.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}

	return g.Wait()
}

// MonitorMode watches the public trade stream for prints large enough to
// move the books of monitored pairs. No detection, no orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.Float64("min_notional_usd", a.cfg.Activity.MinNotionalUSD),
	)

	g, ctx := errgroup.WithContext(ctx)

	mon := a.buildMonitor(deps)
	g.Go(func() error {
		return mon.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}

	return g.Wait()
}

// MatchMode runs one catalogue sweep that proposes new pairs, then exits.
// Proposals land inactive; an operator reviews them via the pairs API.
func (a *App) MatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting match sweep",
		slog.Float64("cutoff", a.cfg.Matcher.Cutoff),
	)

	proposals, err := a.buildMatcher(deps).Run(ctx)
	if err != nil {
		return fmt.Errorf("match sweep: %w", err)
	}
	a.logger.InfoContext(ctx, "match sweep finished",
		slog.Int("proposals", len(proposals)),
	)
	return nil
}

// FullMode runs every enabled component in one process: detection,
// execution, the activity monitor, periodic match sweeps, the archiver,
// and the API server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	// Feed the queue only when this process also drains it.
	sched := a.buildDetection(deps, a.cfg.Executor.Enabled)
	g.Go(func() error {
		return sched.Run(ctx)
	})

	if a.cfg.Executor.Enabled {
		exec := a.buildExecutor(deps)
		g.Go(func() error {
			return exec.Run(ctx)
		})
	}

	if a.cfg.Activity.Enabled {
		mon := a.buildMonitor(deps)
		g.Go(func() error {
			return mon.Run(ctx)
		})
	}

	if a.cfg.Matcher.Enabled {
		matcher := a.buildMatcher(deps)
		interval := a.cfg.Matcher.Interval.Duration
		if interval <= 0 {
			interval = 6 * time.Hour
		}
		g.Go(func() error {
			return a.runMatchSweeps(ctx, matcher, interval)
		})
	}

	a.startArchiver(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}

	return g.Wait()
}

// buildDetection assembles the cached feeds, the fan-out sink, the
// detector, and the scheduler that drives it. withQueue controls whether
// detected opportunities are queued for execution; history and alerts
// always flow.
func (a *App) buildDetection(deps *Dependencies, withQueue bool) *schedule.Scheduler {
	ttl := a.cfg.Detector.PositionCacheTTL.Duration

	cached := make(map[domain.Venue]*arbitrage.CachedFeed, len(deps.Feeds))
	feeds := make(map[domain.Venue]domain.AMMFeed, len(deps.Feeds))
	for venue, feed := range deps.Feeds {
		cf := arbitrage.NewCachedFeed(feed, ttl, a.logger)
		cached[venue] = cf
		feeds[venue] = cf
	}

	var queue domain.OpportunityQueue
	if withQueue {
		queue = deps.Queue
	}
	sink := newOpportunitySink(deps.Opps, queue, deps.Notifier, a.logger)

	det := arbitrage.NewDetector(feeds, deps.Clob, deps.Rates, sink, a.detectorConfig(), a.logger)

	// Tier assignment reads the expiry last observed through the cache;
	// pairs never polled stay normal priority until their first fetch.
	expiryOf := func(p domain.MonitoredPair) (time.Time, bool) {
		cf, ok := cached[p.Venue]
		if !ok {
			return time.Time{}, false
		}
		return cf.PeekExpiry(p.AMMMarketID)
	}

	return schedule.New(a.scheduleConfig(), deps.Pairs, det, expiryOf, deps.AppCfg, a.logger)
}

func (a *App) buildExecutor(deps *Dependencies) *executor.Executor {
	d := executor.Deps{
		Queue:    deps.Queue,
		Pairs:    deps.Pairs,
		Opps:     deps.Opps,
		Book:     deps.Clob,
		Feeds:    deps.Feeds,
		Traders:  deps.Traders,
		Cooldown: deps.Cooldown,
		Lock:     deps.Lock,
		Audit:    deps.Audit,
		Alerter:  deps.Notifier,
	}
	if deps.Balances != nil {
		d.Balances = deps.Balances
	}
	return executor.New(a.executorConfig(), d, a.logger)
}

func (a *App) buildMonitor(deps *Dependencies) *activity.Monitor {
	cfg := activity.Config{
		MinNotionalUSD: a.cfg.Activity.MinNotionalUSD,
		DedupWindow:    a.cfg.Activity.DedupWindow,
	}
	return activity.New(cfg, deps.Pairs, deps.Stream, deps.Notifier, a.logger)
}

func (a *App) buildMatcher(deps *Dependencies) *matching.Matcher {
	cfg := matching.Config{
		Cutoff:       a.cfg.Matcher.Cutoff,
		MaxProposals: a.cfg.Matcher.MaxProposals,
	}
	return matching.New(cfg, deps.Catalogues, deps.Clob, deps.Pairs, deps.Notifier, a.logger)
}

// runMatchSweeps runs one sweep immediately, then one per interval. A
// failed sweep is logged and retried at the next tick.
func (a *App) runMatchSweeps(ctx context.Context, matcher *matching.Matcher, interval time.Duration) error {
	sweep := func() {
		proposals, err := matcher.Run(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "match sweep failed",
				slog.String("error", err.Error()),
			)
			return
		}
		a.logger.InfoContext(ctx, "match sweep finished",
			slog.Int("proposals", len(proposals)),
		)
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sweep()
		}
	}
}

// startArchiver adds the daily archive loop to the group when the archive
// is wired for this mode.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	g.Go(func() error {
		return deps.Archiver.RunDaily(ctx)
	})
}

// startServer adds the API server plus its shutdown watcher to the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var queue handler.QueueStats
	if deps.Queue != nil {
		queue = deps.Queue
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(),
		Status:        handler.NewStatusHandler(a.cfg.Mode, queue, a.logger),
		Pairs:         handler.NewPairHandler(deps.Pairs, a.logger),
		Opportunities: handler.NewOpportunityHandler(deps.Opps, a.logger),
	}
	if deps.Audit != nil {
		handlers.Audit = handler.NewAuditHandler(deps.Audit, a.logger)
	}
	if deps.Gamma != nil {
		handlers.Markets = handler.NewMarketHandler(deps.Gamma, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiToken,
	}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func (a *App) detectorConfig() arbitrage.DetectorConfig {
	fallback := make(map[string]float64)
	if a.cfg.Bodega.Enabled && a.cfg.Bodega.Currency != "" && a.cfg.Bodega.FXFallback > 0 {
		fallback[a.cfg.Bodega.Currency] = a.cfg.Bodega.FXFallback
	}
	return arbitrage.DetectorConfig{
		MinProfitUSD: a.cfg.Detector.MinProfitUSD,
		MinROI:       a.cfg.Detector.MinROI,
		MinAPY:       a.cfg.Detector.MinAPY,
		FXFallback:   fallback,
		FXCacheTTL:   a.cfg.Detector.FXCacheTTL.Duration,
	}
}

func (a *App) scheduleConfig() schedule.Config {
	return schedule.Config{
		HighPriorityHorizon: a.cfg.Scheduler.HighHorizon.Duration,
		High: schedule.TierConfig{
			Interval:     a.cfg.Scheduler.HighInterval.Duration,
			SegmentCount: a.cfg.Scheduler.HighSegments,
		},
		Normal: schedule.TierConfig{
			Interval:     a.cfg.Scheduler.NormalInterval.Duration,
			SegmentCount: a.cfg.Scheduler.NormalSegments,
		},
		RepartitionInterval: a.cfg.Scheduler.Repartition.Duration,
		MisfireGrace:        a.cfg.Scheduler.MisfireGrace.Duration,
	}
}

func (a *App) executorConfig() executor.Config {
	return executor.Config{
		Mode:            executor.Mode(a.cfg.Executor.Mode),
		MaxTradeUSD:     a.cfg.Executor.MaxTradeUSD,
		MaxDailyLossUSD: a.cfg.Executor.MaxDailyLossUSD,
		Cooldown:        a.cfg.Executor.Cooldown.Duration,
		LockTTL:         a.cfg.Executor.LockTTL.Duration,
		PopTimeout:      a.cfg.Executor.PopTimeout.Duration,
		MaxPriceDriftPc: a.cfg.Executor.MaxPriceDriftPc,
		MaxAge:          a.cfg.Executor.MaxAge.Duration,
		ExpiryBuffer:    a.cfg.Executor.ExpiryBuffer.Duration,
		MinGasBalance:   a.cfg.Executor.MinEthBalance,
	}
}
