// Package activity watches the order-book venue's public trade prints for
// the monitored markets and surfaces unusually large trades. A whale
// filling one side of a watched book is an early signal the curve is
// about to move against a standing opportunity.
package activity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/ammarbot/internal/cache"
	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// Config holds the large-trade monitor parameters.
type Config struct {
	// MinNotionalUSD is the price*size threshold a print must reach to be
	// flagged.
	MinNotionalUSD float64

	// DedupWindow is how many recent trade IDs to remember. Reconnects
	// replay recent prints; the window absorbs them.
	DedupWindow int
}

// PairSource lists the pairs whose book tokens the monitor watches.
type PairSource interface {
	ListActive(ctx context.Context) ([]domain.MonitoredPair, error)
}

// Notifier receives flagged trades. Optional.
type Notifier interface {
	LargeTrade(ctx context.Context, trade domain.TradeEvent)
}

// Monitor consumes the public trade stream and flags prints whose notional
// clears the configured threshold.
type Monitor struct {
	cfg    Config
	pairs  PairSource
	stream domain.TradeStream
	notify Notifier
	logger *slog.Logger

	seen *cache.SeenRing[string]
}

// New creates a Monitor. notify may be nil; flagged trades are then only
// logged.
func New(cfg Config, pairs PairSource, stream domain.TradeStream, notify Notifier, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 2000
	}
	return &Monitor{
		cfg:    cfg,
		pairs:  pairs,
		stream: stream,
		notify: notify,
		logger: logger.With(slog.String("component", "activity")),
		seen:   cache.NewSeenRing[string](cfg.DedupWindow),
	}
}

// Run resolves the watch list from the active pairs and consumes the
// stream until ctx is cancelled. The stream reconnects internally, so a
// returned error means the watch list was empty or the context ended.
func (m *Monitor) Run(ctx context.Context) error {
	pairs, err := m.pairs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("activity: list pairs: %w", err)
	}

	assets := watchList(pairs)
	if len(assets) == 0 {
		return fmt.Errorf("activity: no active pairs to watch")
	}
	m.logger.Info("watching trade prints",
		slog.Int("assets", len(assets)),
		slog.Float64("min_notional_usd", m.cfg.MinNotionalUSD))

	out := make(chan domain.TradeEvent, 64)
	errc := make(chan error, 1)
	go func() {
		errc <- m.stream.StreamTrades(ctx, assets, out)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case ev := <-out:
			m.handle(ctx, ev)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, ev domain.TradeEvent) {
	if m.seen.Seen(ev.ID) {
		return
	}
	notional := ev.Notional()
	if notional < m.cfg.MinNotionalUSD {
		return
	}

	m.logger.Info("large trade",
		slog.String("asset_id", ev.AssetID),
		slog.String("side", ev.Side),
		slog.Float64("price", ev.Price),
		slog.Float64("size", ev.Size),
		slog.Float64("notional_usd", notional))

	if m.notify != nil {
		m.notify.LargeTrade(ctx, ev)
	}
}

// watchList collects the distinct book token IDs across pairs.
func watchList(pairs []domain.MonitoredPair) []string {
	seen := make(map[string]struct{}, len(pairs)*2)
	var out []string
	for _, p := range pairs {
		for _, tok := range []string{p.TokenIDYes, p.TokenIDNo} {
			if tok == "" {
				continue
			}
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	return out
}
