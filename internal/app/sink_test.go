package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

type sinkOppStore struct {
	inserted []domain.ArbitrageOpportunity
	err      error
}

func (s *sinkOppStore) Insert(_ context.Context, opp domain.ArbitrageOpportunity) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, opp)
	return nil
}

func (s *sinkOppStore) UpdateStatus(context.Context, string, domain.ExecutionStatus) error {
	return nil
}

func (s *sinkOppStore) ListRecent(context.Context, int) ([]domain.ArbitrageOpportunity, error) {
	return nil, nil
}

func (s *sinkOppStore) ListBetween(context.Context, time.Time, time.Time) ([]domain.ArbitrageOpportunity, error) {
	return nil, nil
}

type sinkQueue struct {
	pushed []domain.ArbitrageOpportunity
	err    error
}

func (q *sinkQueue) Push(_ context.Context, opp domain.ArbitrageOpportunity) error {
	if q.err != nil {
		return q.err
	}
	q.pushed = append(q.pushed, opp)
	return nil
}

func (q *sinkQueue) Pop(context.Context, time.Duration) (*domain.ArbitrageOpportunity, error) {
	return nil, nil
}

func (q *sinkQueue) Len(context.Context) (int64, error) { return 0, nil }

type sinkNotifier struct {
	emitted []domain.ArbitrageOpportunity
	err     error
}

func (n *sinkNotifier) EmitOpportunity(_ context.Context, opp domain.ArbitrageOpportunity) error {
	if n.err != nil {
		return n.err
	}
	n.emitted = append(n.emitted, opp)
	return nil
}

func TestSinkFansOut(t *testing.T) {
	store := &sinkOppStore{}
	queue := &sinkQueue{}
	notifier := &sinkNotifier{}
	sink := newOpportunitySink(store, queue, notifier, slog.New(slog.DiscardHandler))

	opp := domain.ArbitrageOpportunity{ID: "opp-1", PairID: 3, ProfitUSD: 4.2}
	require.NoError(t, sink.EmitOpportunity(context.Background(), opp))

	require.Len(t, store.inserted, 1)
	require.Len(t, queue.pushed, 1)
	require.Len(t, notifier.emitted, 1)
	assert.Equal(t, "opp-1", store.inserted[0].ID)
}

func TestSinkContinuesPastFailure(t *testing.T) {
	store := &sinkOppStore{err: assert.AnError}
	queue := &sinkQueue{}
	notifier := &sinkNotifier{}
	sink := newOpportunitySink(store, queue, notifier, slog.New(slog.DiscardHandler))

	err := sink.EmitOpportunity(context.Background(), domain.ArbitrageOpportunity{ID: "opp-2"})

	require.ErrorIs(t, err, assert.AnError)
	assert.Len(t, queue.pushed, 1, "queue push must survive a store failure")
	assert.Len(t, notifier.emitted, 1, "alert must survive a store failure")
}

func TestSinkSkipsNilDestinations(t *testing.T) {
	sink := newOpportunitySink(nil, nil, nil, slog.New(slog.DiscardHandler))

	assert.NoError(t, sink.EmitOpportunity(context.Background(), domain.ArbitrageOpportunity{ID: "opp-3"}))
}
