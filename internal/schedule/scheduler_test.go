package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

func makePairs(n int) []domain.MonitoredPair {
	pairs := make([]domain.MonitoredPair, n)
	for i := range pairs {
		pairs[i] = domain.MonitoredPair{
			ID:          int64(i + 1),
			Venue:       domain.VenueBodega,
			AMMMarketID: fmt.Sprintf("m%d", i+1),
			ConditionID: fmt.Sprintf("c%d", i+1),
			Active:      true,
		}
	}
	return pairs
}

type fakePairStore struct {
	pairs []domain.MonitoredPair
}

func (f *fakePairStore) Insert(context.Context, domain.MonitoredPair) (int64, error) { return 0, nil }
func (f *fakePairStore) GetByID(context.Context, int64) (domain.MonitoredPair, error) {
	return domain.MonitoredPair{}, domain.ErrNotFound
}
func (f *fakePairStore) ListActive(context.Context) ([]domain.MonitoredPair, error) {
	return f.pairs, nil
}
func (f *fakePairStore) List(context.Context) ([]domain.MonitoredPair, error) { return f.pairs, nil }
func (f *fakePairStore) SetActive(context.Context, int64, bool) error        { return nil }
func (f *fakePairStore) Exists(context.Context, domain.Venue, string, string) (bool, error) {
	return false, nil
}

type batchCall struct {
	at    time.Time
	pairs int
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []batchCall
}

func (r *recordingRunner) CheckBatch(_ context.Context, pairs []domain.MonitoredPair) domain.BatchReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, batchCall{at: time.Now(), pairs: len(pairs)})
	return domain.BatchReport{}
}

func (r *recordingRunner) snapshot() []batchCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]batchCall, len(r.calls))
	copy(out, r.calls)
	return out
}

type fakeConfigStore struct {
	values map[string]string
}

func (f *fakeConfigStore) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}
func (f *fakeConfigStore) Set(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}
func (f *fakeConfigStore) All(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

func TestSplitRoundRobin_TenPairsThreeSegments(t *testing.T) {
	segments := SplitRoundRobin(makePairs(10), 3)

	require.Len(t, segments, 3)
	assert.Len(t, segments[0], 4)
	assert.Len(t, segments[1], 3)
	assert.Len(t, segments[2], 3)

	// Dealing order: pair i lands in segment i mod 3.
	assert.Equal(t, int64(1), segments[0][0].ID)
	assert.Equal(t, int64(4), segments[0][1].ID)
	assert.Equal(t, int64(7), segments[0][2].ID)
	assert.Equal(t, int64(10), segments[0][3].ID)
	assert.Equal(t, int64(2), segments[1][0].ID)
	assert.Equal(t, int64(3), segments[2][0].ID)
}

func TestSplitRoundRobin_FewerPairsThanSegments(t *testing.T) {
	segments := SplitRoundRobin(makePairs(2), 3)

	require.Len(t, segments, 3)
	assert.Len(t, segments[0], 1)
	assert.Len(t, segments[1], 1)
	assert.Empty(t, segments[2])
}

func TestSplitRoundRobin_CountFloorsAtOne(t *testing.T) {
	segments := SplitRoundRobin(makePairs(4), 0)

	require.Len(t, segments, 1)
	assert.Len(t, segments[0], 4)
}

func TestPartition_SplitsByExpiryHorizon(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	pairs := makePairs(3)
	expiries := map[int64]time.Time{
		1: now.Add(2 * time.Hour),  // urgent
		2: now.Add(20 * time.Hour), // relaxed
		// pair 3 has no known expiry
	}
	expiryOf := func(p domain.MonitoredPair) (time.Time, bool) {
		e, ok := expiries[p.ID]
		return e, ok
	}

	high, normal := Partition(pairs, expiryOf, 10*time.Hour, now)

	require.Len(t, high, 1)
	assert.Equal(t, int64(1), high[0].ID)
	require.Len(t, normal, 2)
	assert.Equal(t, int64(2), normal[0].ID)
	assert.Equal(t, int64(3), normal[1].ID)
}

func TestPartition_ExpiryOverrideBeatsObserved(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	override := now.Add(time.Hour)
	pairs := makePairs(1)
	pairs[0].ExpiryOverride = &override

	// The observed expiry says the market is weeks out; the operator
	// knows better.
	expiryOf := func(domain.MonitoredPair) (time.Time, bool) {
		return now.Add(500 * time.Hour), true
	}

	high, normal := Partition(pairs, expiryOf, 10*time.Hour, now)
	assert.Len(t, high, 1)
	assert.Empty(t, normal)
}

func TestPartition_NilExpiryFuncGoesNormal(t *testing.T) {
	high, normal := Partition(makePairs(5), nil, 10*time.Hour, time.Now())
	assert.Empty(t, high)
	assert.Len(t, normal, 5)
}

func TestScheduler_StaggersSegmentFirstRuns(t *testing.T) {
	runner := &recordingRunner{}
	s := New(Config{
		High:                TierConfig{Interval: 300 * time.Millisecond, SegmentCount: 3},
		Normal:              TierConfig{Interval: 300 * time.Millisecond, SegmentCount: 3},
		RepartitionInterval: time.Minute,
	}, &fakePairStore{pairs: makePairs(10)}, runner, nil, nil, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithTimeout(context.Background(), 280*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	// All ten pairs are normal tier; its three segments fire once each at
	// 0, 100 and 200ms carrying 4, 3 and 3 pairs.
	calls := runner.snapshot()
	require.Len(t, calls, 3)
	assert.Equal(t, 4, calls[0].pairs)
	assert.Equal(t, 3, calls[1].pairs)
	assert.Equal(t, 3, calls[2].pairs)
	assert.True(t, calls[1].at.After(calls[0].at))
	assert.True(t, calls[2].at.After(calls[1].at))
	assert.GreaterOrEqual(t, calls[1].at.Sub(calls[0].at), 25*time.Millisecond)
	assert.GreaterOrEqual(t, calls[2].at.Sub(calls[1].at), 25*time.Millisecond)
}

func TestScheduler_SkipsMisfiredRuns(t *testing.T) {
	runner := &recordingRunner{}
	s := New(Config{}, &fakePairStore{pairs: makePairs(3)}, runner, nil, nil, slog.New(slog.DiscardHandler))

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.repartition(context.Background(), s.base))

	// Ten seconds late against a five second grace: skipped.
	s.now = func() time.Time { return base.Add(10 * time.Second) }
	s.runOnce(context.Background(), TierNormal, 0, base, 5*time.Second)
	assert.Empty(t, runner.snapshot())

	// Within grace: runs.
	s.runOnce(context.Background(), TierNormal, 0, base.Add(9*time.Second), 5*time.Second)
	assert.Len(t, runner.snapshot(), 1)

	// Grace of zero disables the check entirely.
	s.runOnce(context.Background(), TierNormal, 0, base, 0)
	assert.Len(t, runner.snapshot(), 2)
}

func TestScheduler_RepartitionMovesPairAcrossTiers(t *testing.T) {
	pairs := makePairs(1)
	expiry := time.Date(2026, 6, 2, 8, 0, 0, 0, time.UTC)
	expiryOf := func(domain.MonitoredPair) (time.Time, bool) { return expiry, true }

	s := New(Config{}, &fakePairStore{pairs: pairs}, &recordingRunner{}, expiryOf, nil, slog.New(slog.DiscardHandler))

	// Twenty hours out: normal tier.
	now := expiry.Add(-20 * time.Hour)
	s.now = func() time.Time { return now }
	require.NoError(t, s.repartition(context.Background(), s.base))

	st := s.Status()
	assert.Equal(t, 0, st.HighPairs)
	assert.Equal(t, 1, st.NormalPairs)

	// Nine hours out, inside the 10h horizon: the next re-partition
	// promotes the pair.
	now = expiry.Add(-9 * time.Hour)
	require.NoError(t, s.repartition(context.Background(), s.base))

	st = s.Status()
	assert.Equal(t, 1, st.HighPairs)
	assert.Equal(t, 0, st.NormalPairs)
	assert.Equal(t, now, st.RepartitionedAt)
}

func TestScheduler_LoadConfigAppliesOverrides(t *testing.T) {
	overrides := &fakeConfigStore{values: map[string]string{
		keyHighIntervalSecs:   "30",
		keyNormalSegments:     "5",
		keyHighHorizonMinutes: "120",
		keyHighSegments:       "zero", // unparseable, ignored
	}}
	s := New(Config{}, &fakePairStore{}, &recordingRunner{}, nil, overrides, slog.New(slog.DiscardHandler))

	cfg := s.loadConfig(context.Background())
	assert.Equal(t, 30*time.Second, cfg.High.Interval)
	assert.Equal(t, 5, cfg.Normal.SegmentCount)
	assert.Equal(t, 2*time.Hour, cfg.HighPriorityHorizon)
	assert.Equal(t, s.base.High.SegmentCount, cfg.High.SegmentCount)
	assert.Equal(t, s.base.Normal.Interval, cfg.Normal.Interval)
}

func TestScheduler_TopologyChangeDetection(t *testing.T) {
	base := Config{}.withDefaults()

	same := base
	assert.False(t, base.topologyDiffers(same))

	faster := base
	faster.High.Interval = time.Second
	assert.True(t, base.topologyDiffers(faster))

	wider := base
	wider.Normal.SegmentCount = 7
	assert.True(t, base.topologyDiffers(wider))
}

func TestScheduler_RunReturnsNilOnCancel(t *testing.T) {
	s := New(Config{}, &fakePairStore{pairs: makePairs(2)}, &recordingRunner{}, nil, nil, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
