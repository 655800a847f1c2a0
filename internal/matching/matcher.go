// Package matching proposes monitored pairs by sweeping the active
// catalogues of every AMM venue against the order book's and scoring
// title similarity. Proposals land in the pair store disabled; an
// operator reviews orientation and flips them on.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// Config holds the pair-proposal parameters.
type Config struct {
	// Cutoff is the minimum similarity score a title pairing must reach.
	Cutoff float64

	// MaxProposals caps insertions per sweep so a catalogue glitch cannot
	// flood the review queue.
	MaxProposals int
}

// AMMCatalogue lists an AMM venue's active markets.
type AMMCatalogue interface {
	Venue() domain.Venue
	ListActiveMarkets(ctx context.Context) ([]domain.AMMMarket, error)
}

// BookCatalogue pages through the order-book venue's market catalogue.
// An empty returned cursor ends the sweep.
type BookCatalogue interface {
	ListMarkets(ctx context.Context, cursor string) ([]domain.BookMarket, string, error)
}

// PairStore is the slice of pair persistence the matcher writes through.
type PairStore interface {
	Exists(ctx context.Context, venue domain.Venue, ammMarketID, conditionID string) (bool, error)
	Insert(ctx context.Context, pair domain.MonitoredPair) (int64, error)
}

// Notifier hears about each inserted proposal. Optional.
type Notifier interface {
	PairProposed(ctx context.Context, pair domain.MonitoredPair, score float64)
}

// Proposal is one inserted pair with the score that produced it.
type Proposal struct {
	Pair  domain.MonitoredPair
	Score float64
}

// Matcher runs one catalogue sweep per call.
type Matcher struct {
	cfg    Config
	amms   []AMMCatalogue
	book   BookCatalogue
	pairs  PairStore
	notify Notifier
	logger *slog.Logger
}

// New creates a Matcher. notify may be nil.
func New(cfg Config, amms []AMMCatalogue, book BookCatalogue, pairs PairStore, notify Notifier, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		cfg:    cfg,
		amms:   amms,
		book:   book,
		pairs:  pairs,
		notify: notify,
		logger: logger.With(slog.String("component", "matcher")),
	}
}

// Run sweeps every AMM venue against the book catalogue once and returns
// the proposals it inserted. A venue whose listing fails is skipped; the
// sweep fails only when the book catalogue is unreachable.
func (m *Matcher) Run(ctx context.Context) ([]Proposal, error) {
	books, err := m.allBookMarkets(ctx)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		m.logger.Warn("book catalogue empty, nothing to match")
		return nil, nil
	}

	var proposals []Proposal
	for _, cat := range m.amms {
		markets, err := cat.ListActiveMarkets(ctx)
		if err != nil {
			m.logger.Warn("venue listing failed, skipping",
				slog.String("venue", string(cat.Venue())),
				slog.String("error", err.Error()))
			continue
		}

		for _, am := range markets {
			if m.cfg.MaxProposals > 0 && len(proposals) >= m.cfg.MaxProposals {
				m.logger.Info("proposal cap reached", slog.Int("cap", m.cfg.MaxProposals))
				return proposals, nil
			}

			prop, ok, err := m.propose(ctx, cat.Venue(), am, books)
			if err != nil {
				return proposals, err
			}
			if ok {
				proposals = append(proposals, prop)
			}
		}
	}

	m.logger.Info("sweep finished", slog.Int("proposals", len(proposals)))
	return proposals, nil
}

// propose scores one AMM market against the book catalogue and inserts
// the best pairing when it clears the cutoff and is not already known.
func (m *Matcher) propose(ctx context.Context, venue domain.Venue, am domain.AMMMarket, books []domain.BookMarket) (Proposal, bool, error) {
	if am.Title == "" {
		return Proposal{}, false, nil
	}

	best, score := bestMatch(am.Title, books)
	if score < m.cfg.Cutoff {
		return Proposal{}, false, nil
	}

	exists, err := m.pairs.Exists(ctx, venue, am.ID, best.ConditionID)
	if err != nil {
		return Proposal{}, false, fmt.Errorf("matching: exists check: %w", err)
	}
	if exists {
		return Proposal{}, false, nil
	}

	pair := domain.MonitoredPair{
		Venue:       venue,
		AMMMarketID: am.ID,
		ConditionID: best.ConditionID,
		TokenIDYes:  best.TokenIDs[0],
		TokenIDNo:   best.TokenIDs[1],

		// Proposals start dark. The operator confirms the outcome
		// orientation before anything trades on them.
		AutotradeEnabled: false,
		Active:           false,
	}
	id, err := m.pairs.Insert(ctx, pair)
	if err != nil {
		return Proposal{}, false, fmt.Errorf("matching: insert proposal: %w", err)
	}
	pair.ID = id

	m.logger.Info("pair proposed",
		slog.String("venue", string(venue)),
		slog.String("amm_market", am.ID),
		slog.String("condition_id", best.ConditionID),
		slog.String("amm_title", am.Title),
		slog.String("book_question", best.Question),
		slog.Float64("score", score))

	if m.notify != nil {
		m.notify.PairProposed(ctx, pair, score)
	}
	return Proposal{Pair: pair, Score: score}, true, nil
}

// allBookMarkets pages the whole catalogue, keeping only open markets
// with both outcome tokens listed.
func (m *Matcher) allBookMarkets(ctx context.Context) ([]domain.BookMarket, error) {
	var out []domain.BookMarket
	cursor := ""
	for {
		page, next, err := m.book.ListMarkets(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("matching: book catalogue: %w", err)
		}
		for _, bm := range page {
			if !bm.Active {
				continue
			}
			if bm.TokenIDs[0] == "" || bm.TokenIDs[1] == "" {
				continue
			}
			if !bm.EndDate.IsZero() && bm.EndDate.Before(time.Now()) {
				continue
			}
			out = append(out, bm)
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

// bestMatch returns the highest-scoring book market for a title.
func bestMatch(title string, books []domain.BookMarket) (domain.BookMarket, float64) {
	var (
		best  domain.BookMarket
		score float64
	)
	for _, bm := range books {
		if s := similarity(title, bm.Question); s > score {
			best, score = bm, s
		}
	}
	return best, score
}
