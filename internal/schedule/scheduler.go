package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// BatchRunner evaluates one segment's pairs. Within a call the pairs are
// checked sequentially; distinct segments call it concurrently.
type BatchRunner interface {
	CheckBatch(ctx context.Context, pairs []domain.MonitoredPair) domain.BatchReport
}

// TierConfig is the polling cadence of one priority tier.
type TierConfig struct {
	Interval     time.Duration
	SegmentCount int
}

// Config holds the scheduler's tunables. Operator overrides from the app
// config store are re-read at every re-partition.
type Config struct {
	HighPriorityHorizon time.Duration
	High                TierConfig
	Normal              TierConfig
	RepartitionInterval time.Duration

	// MisfireGrace skips a segment run that starts later than this past
	// its scheduled tick, instead of working through a backlog of stale
	// runs after a stall. Zero disables the check.
	MisfireGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.HighPriorityHorizon <= 0 {
		c.HighPriorityHorizon = 10 * time.Hour
	}
	if c.High.Interval <= 0 {
		c.High.Interval = time.Minute
	}
	if c.High.SegmentCount < 1 {
		c.High.SegmentCount = 3
	}
	if c.Normal.Interval <= 0 {
		c.Normal.Interval = 5 * time.Minute
	}
	if c.Normal.SegmentCount < 1 {
		c.Normal.SegmentCount = 3
	}
	if c.RepartitionInterval <= 0 {
		c.RepartitionInterval = 5 * time.Minute
	}
	return c
}

// topologyDiffers reports whether switching to next requires restarting
// the segment goroutines. Pair movements never do; cadence and segment
// count changes do.
func (c Config) topologyDiffers(next Config) bool {
	return c.High != next.High ||
		c.Normal != next.Normal ||
		c.RepartitionInterval != next.RepartitionInterval
}

// SegmentStatus describes one segment's current assignment.
type SegmentStatus struct {
	Tier     Tier     `json:"tier"`
	Index    int      `json:"index"`
	PairKeys []string `json:"pair_keys"`
}

// Status is a point-in-time snapshot of the scheduler's partitioning.
type Status struct {
	RepartitionedAt time.Time       `json:"repartitioned_at"`
	HighPairs       int             `json:"high_pairs"`
	NormalPairs     int             `json:"normal_pairs"`
	Segments        []SegmentStatus `json:"segments"`
}

// Scheduler owns the polling loops. Construct with New, then Run blocks
// until the context is cancelled.
type Scheduler struct {
	base      Config
	source    domain.PairStore
	runner    BatchRunner
	expiryOf  ExpiryFunc
	overrides domain.AppConfigStore
	logger    *slog.Logger
	now       func() time.Time

	mu              sync.RWMutex
	segments        map[Tier][][]domain.MonitoredPair
	repartitionedAt time.Time
}

// New creates a Scheduler. overrides may be nil to run on the static
// config; expiryOf may be nil when no live expiries are available, which
// pins every pair without an override to the normal tier.
func New(cfg Config, source domain.PairStore, runner BatchRunner, expiryOf ExpiryFunc, overrides domain.AppConfigStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		base:      cfg.withDefaults(),
		source:    source,
		runner:    runner,
		expiryOf:  expiryOf,
		overrides: overrides,
		logger:    logger.With(slog.String("component", "scheduler")),
		now:       time.Now,
		segments:  make(map[Tier][][]domain.MonitoredPair),
	}
}

// Run executes segment loops until ctx is cancelled, re-reading operator
// overrides and re-partitioning every RepartitionInterval. Cadence or
// segment-count changes restart the loops; pair movements between tiers
// apply in place on the next re-partition.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		cfg := s.loadConfig(ctx)
		if err := s.repartition(ctx, cfg); err != nil {
			s.logger.Error("initial partition failed", slog.String("error", err.Error()))
		}

		s.logger.Info("scheduler starting",
			slog.Duration("high_interval", cfg.High.Interval),
			slog.Int("high_segments", cfg.High.SegmentCount),
			slog.Duration("normal_interval", cfg.Normal.Interval),
			slog.Int("normal_segments", cfg.Normal.SegmentCount),
		)

		err := s.runEpoch(ctx, cfg)
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
		if errors.Is(err, errTopologyChanged) {
			continue
		}
		if err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
	}
}

var errTopologyChanged = errors.New("topology changed")

func (s *Scheduler) runEpoch(ctx context.Context, cfg Config) error {
	epochCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(epochCtx)

	spawn := func(tier Tier, tc TierConfig) {
		for i := 0; i < tc.SegmentCount; i++ {
			i := i
			stagger := time.Duration(i) * tc.Interval / time.Duration(tc.SegmentCount)
			g.Go(func() error {
				err := s.runSegment(gctx, tier, i, tc.Interval, stagger, cfg.MisfireGrace)
				if gctx.Err() != nil {
					return nil
				}
				return err
			})
		}
	}
	spawn(TierHigh, cfg.High)
	spawn(TierNormal, cfg.Normal)

	g.Go(func() error {
		err := s.supervise(gctx, cfg)
		if gctx.Err() != nil && !errors.Is(err, errTopologyChanged) {
			return nil
		}
		return err
	})

	return g.Wait()
}

// supervise re-reads overrides and re-partitions on a fixed cadence,
// requesting an epoch restart when the loop topology changed.
func (s *Scheduler) supervise(ctx context.Context, active Config) error {
	ticker := time.NewTicker(active.RepartitionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cfg := s.loadConfig(ctx)
			if active.topologyDiffers(cfg) {
				s.logger.Info("scheduler cadence changed, restarting segments")
				return errTopologyChanged
			}
			if err := s.repartition(ctx, cfg); err != nil {
				s.logger.Error("repartition failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Scheduler) runSegment(ctx context.Context, tier Tier, index int, interval, stagger, grace time.Duration) error {
	// Stagger the first run so a tier's segments spread across the
	// interval instead of bursting together.
	if stagger > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stagger):
		}
	}

	s.runOnce(ctx, tier, index, s.now(), grace)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-ticker.C:
			s.runOnce(ctx, tier, index, tick, grace)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, tier Tier, index int, scheduledAt time.Time, grace time.Duration) {
	if grace > 0 {
		if late := s.now().Sub(scheduledAt); late > grace {
			s.logger.Warn("segment run misfired, skipping",
				slog.String("tier", string(tier)),
				slog.Int("segment", index),
				slog.Duration("late", late),
			)
			return
		}
	}

	pairs := s.segmentPairs(tier, index)
	if len(pairs) == 0 {
		return
	}

	s.logger.Debug("segment run",
		slog.String("tier", string(tier)),
		slog.Int("segment", index),
		slog.Int("pairs", len(pairs)),
	)
	s.runner.CheckBatch(ctx, pairs)
}

func (s *Scheduler) segmentPairs(tier Tier, index int) []domain.MonitoredPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	segs := s.segments[tier]
	if index >= len(segs) {
		return nil
	}
	return segs[index]
}

func (s *Scheduler) repartition(ctx context.Context, cfg Config) error {
	pairs, err := s.source.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("schedule: list pairs: %w", err)
	}

	high, normal := Partition(pairs, s.expiryOf, cfg.HighPriorityHorizon, s.now())

	s.mu.Lock()
	s.segments[TierHigh] = SplitRoundRobin(high, cfg.High.SegmentCount)
	s.segments[TierNormal] = SplitRoundRobin(normal, cfg.Normal.SegmentCount)
	s.repartitionedAt = s.now()
	s.mu.Unlock()

	s.logger.Info("pairs partitioned",
		slog.Int("total", len(pairs)),
		slog.Int("high", len(high)),
		slog.Int("normal", len(normal)),
	)
	return nil
}

// Status reports the current partitioning for the ops API.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{RepartitionedAt: s.repartitionedAt}
	for _, tier := range []Tier{TierHigh, TierNormal} {
		for i, seg := range s.segments[tier] {
			keys := make([]string, 0, len(seg))
			for _, p := range seg {
				keys = append(keys, p.Key())
			}
			st.Segments = append(st.Segments, SegmentStatus{Tier: tier, Index: i, PairKeys: keys})
			if tier == TierHigh {
				st.HighPairs += len(seg)
			} else {
				st.NormalPairs += len(seg)
			}
		}
	}
	return st
}

// Override keys read from the app config store at each re-partition.
const (
	keyHighHorizonMinutes = "scheduler.high_horizon_minutes"
	keyHighIntervalSecs   = "scheduler.high_interval_seconds"
	keyHighSegments       = "scheduler.high_segments"
	keyNormalIntervalSecs = "scheduler.normal_interval_seconds"
	keyNormalSegments     = "scheduler.normal_segments"
	keyRepartitionSecs    = "scheduler.repartition_seconds"
	keyMisfireGraceSecs   = "scheduler.misfire_grace_seconds"
)

// loadConfig merges operator overrides onto the base config. Unparseable
// values are logged and ignored.
func (s *Scheduler) loadConfig(ctx context.Context) Config {
	cfg := s.base
	if s.overrides == nil {
		return cfg
	}

	values, err := s.overrides.All(ctx)
	if err != nil {
		s.logger.Warn("config overrides unavailable", slog.String("error", err.Error()))
		return cfg
	}

	s.applyDuration(values, keyHighHorizonMinutes, time.Minute, &cfg.HighPriorityHorizon)
	s.applyDuration(values, keyHighIntervalSecs, time.Second, &cfg.High.Interval)
	s.applyInt(values, keyHighSegments, &cfg.High.SegmentCount)
	s.applyDuration(values, keyNormalIntervalSecs, time.Second, &cfg.Normal.Interval)
	s.applyInt(values, keyNormalSegments, &cfg.Normal.SegmentCount)
	s.applyDuration(values, keyRepartitionSecs, time.Second, &cfg.RepartitionInterval)
	s.applyDuration(values, keyMisfireGraceSecs, time.Second, &cfg.MisfireGrace)

	return cfg.withDefaults()
}

func (s *Scheduler) applyDuration(values map[string]string, key string, unit time.Duration, dst *time.Duration) {
	raw, ok := values[key]
	if !ok {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		s.logger.Warn("ignoring invalid override", slog.String("key", key), slog.String("value", raw))
		return
	}
	*dst = time.Duration(n) * unit
}

func (s *Scheduler) applyInt(values map[string]string, key string, dst *int) {
	raw, ok := values[key]
	if !ok {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		s.logger.Warn("ignoring invalid override", slog.String("key", key), slog.String("value", raw))
		return
	}
	*dst = n
}
