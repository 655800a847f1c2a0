package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// opportunitySink fans a detected opportunity out to persistence, the
// execution queue, and the alert channels. Each destination is optional
// and failures are independent: a down Redis must not suppress the alert,
// and a down Telegram must not lose the history row.
type opportunitySink struct {
	store    domain.OpportunityStore
	queue    domain.OpportunityQueue
	notifier domain.OpportunitySink
	logger   *slog.Logger
}

func newOpportunitySink(store domain.OpportunityStore, queue domain.OpportunityQueue, notifier domain.OpportunitySink, logger *slog.Logger) *opportunitySink {
	return &opportunitySink{
		store:    store,
		queue:    queue,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "sink")),
	}
}

// EmitOpportunity implements domain.OpportunitySink.
func (s *opportunitySink) EmitOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	var errs []error

	if s.store != nil {
		if err := s.store.Insert(ctx, opp); err != nil {
			s.logger.Error("opportunity insert failed",
				slog.String("id", opp.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("insert: %w", err))
		}
	}

	if s.queue != nil {
		if err := s.queue.Push(ctx, opp); err != nil {
			s.logger.Error("opportunity enqueue failed",
				slog.String("id", opp.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("enqueue: %w", err))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.EmitOpportunity(ctx, opp); err != nil {
			s.logger.Warn("opportunity alert failed",
				slog.String("id", opp.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("notify: %w", err))
		}
	}

	return errors.Join(errs...)
}

var _ domain.OpportunitySink = (*opportunitySink)(nil)
