package matching

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

type fakeCatalogue struct {
	venue   domain.Venue
	markets []domain.AMMMarket
	err     error
}

func (f *fakeCatalogue) Venue() domain.Venue { return f.venue }

func (f *fakeCatalogue) ListActiveMarkets(_ context.Context) ([]domain.AMMMarket, error) {
	return f.markets, f.err
}

type bookPage struct {
	markets []domain.BookMarket
	next    string
}

type fakeBookCatalogue struct {
	pages map[string]bookPage
	err   error
}

func (f *fakeBookCatalogue) ListMarkets(_ context.Context, cursor string) ([]domain.BookMarket, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	page := f.pages[cursor]
	return page.markets, page.next, nil
}

type fakePairStore struct {
	existing map[string]bool
	inserted []domain.MonitoredPair
	nextID   int64
}

func (f *fakePairStore) Exists(_ context.Context, venue domain.Venue, ammMarketID, conditionID string) (bool, error) {
	return f.existing[string(venue)+"|"+ammMarketID+"|"+conditionID], nil
}

func (f *fakePairStore) Insert(_ context.Context, pair domain.MonitoredPair) (int64, error) {
	f.nextID++
	f.inserted = append(f.inserted, pair)
	return f.nextID, nil
}

type captureNotifier struct {
	pairs  []domain.MonitoredPair
	scores []float64
}

func (c *captureNotifier) PairProposed(_ context.Context, pair domain.MonitoredPair, score float64) {
	c.pairs = append(c.pairs, pair)
	c.scores = append(c.scores, score)
}

func openBook(conditionID, question string) domain.BookMarket {
	return domain.BookMarket{
		ConditionID: conditionID,
		Question:    question,
		TokenIDs:    [2]string{conditionID + "-yes", conditionID + "-no"},
		EndDate:     time.Now().Add(72 * time.Hour),
		Active:      true,
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{
			name: "identical titles",
			a:    "Will Bitcoin reach $100k by March 2026?",
			b:    "Will Bitcoin reach $100k by March 2026?",
			want: 1.0,
		},
		{
			name: "reworded but same tokens",
			a:    "Will Bitcoin reach $100k by March 2026?",
			b:    "Bitcoin to reach $100k by March 2026",
			want: 1.0,
		},
		{
			name: "different subject",
			a:    "Will Bitcoin reach $100k by March 2026?",
			b:    "Will Ethereum reach $5k by March 2026?",
			want: 0.6,
		},
		{
			name: "empty title",
			a:    "",
			b:    "Will Bitcoin reach $100k?",
			want: 0,
		},
		{
			name: "filler words only",
			a:    "will the be of",
			b:    "Will Bitcoin reach $100k?",
			want: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, similarity(tc.a, tc.b), 1e-9)
		})
	}
}

func TestRunProposesAboveCutoff(t *testing.T) {
	amm := &fakeCatalogue{venue: domain.VenueMyriad, markets: []domain.AMMMarket{
		{ID: "mkt-1", Title: "Will Bitcoin reach $100k by March 2026?"},
	}}
	book := &fakeBookCatalogue{pages: map[string]bookPage{
		"": {markets: []domain.BookMarket{
			openBook("0xbtc", "Bitcoin to reach $100k by March 2026"),
			openBook("0xeth", "Will Ethereum reach $5k by March 2026?"),
		}},
	}}
	store := &fakePairStore{}
	notify := &captureNotifier{}
	m := New(Config{Cutoff: 0.82, MaxProposals: 25}, []AMMCatalogue{amm}, book, store, notify, slog.New(slog.DiscardHandler))

	proposals, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, proposals, 1)

	pair := proposals[0].Pair
	assert.Equal(t, domain.VenueMyriad, pair.Venue)
	assert.Equal(t, "mkt-1", pair.AMMMarketID)
	assert.Equal(t, "0xbtc", pair.ConditionID)
	assert.Equal(t, "0xbtc-yes", pair.TokenIDYes)
	assert.Equal(t, "0xbtc-no", pair.TokenIDNo)
	assert.False(t, pair.Active, "proposals start dark")
	assert.False(t, pair.AutotradeEnabled)
	assert.EqualValues(t, 1, pair.ID)
	assert.InDelta(t, 1.0, proposals[0].Score, 1e-9)

	require.Len(t, store.inserted, 1)
	require.Len(t, notify.pairs, 1)
}

func TestRunIgnoresWeakMatches(t *testing.T) {
	amm := &fakeCatalogue{venue: domain.VenueMyriad, markets: []domain.AMMMarket{
		{ID: "mkt-1", Title: "Will Bitcoin reach $100k by March 2026?"},
	}}
	book := &fakeBookCatalogue{pages: map[string]bookPage{
		"": {markets: []domain.BookMarket{
			openBook("0xeth", "Will Ethereum reach $5k by March 2026?"),
		}},
	}}
	store := &fakePairStore{}
	m := New(Config{Cutoff: 0.82}, []AMMCatalogue{amm}, book, store, nil, slog.New(slog.DiscardHandler))

	proposals, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, proposals)
	assert.Empty(t, store.inserted)
}

func TestRunSkipsExistingPairs(t *testing.T) {
	amm := &fakeCatalogue{venue: domain.VenueMyriad, markets: []domain.AMMMarket{
		{ID: "mkt-1", Title: "Will Bitcoin reach $100k by March 2026?"},
	}}
	book := &fakeBookCatalogue{pages: map[string]bookPage{
		"": {markets: []domain.BookMarket{
			openBook("0xbtc", "Will Bitcoin reach $100k by March 2026?"),
		}},
	}}
	store := &fakePairStore{existing: map[string]bool{"myriad|mkt-1|0xbtc": true}}
	m := New(Config{Cutoff: 0.82}, []AMMCatalogue{amm}, book, store, nil, slog.New(slog.DiscardHandler))

	proposals, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, proposals, "a known pair must not be re-proposed")
}

func TestRunHonorsProposalCap(t *testing.T) {
	amm := &fakeCatalogue{venue: domain.VenueMyriad, markets: []domain.AMMMarket{
		{ID: "mkt-1", Title: "Will Bitcoin reach $100k by March 2026?"},
		{ID: "mkt-2", Title: "Will Ethereum reach $5k by March 2026?"},
		{ID: "mkt-3", Title: "Will Solana reach $500 by March 2026?"},
	}}
	book := &fakeBookCatalogue{pages: map[string]bookPage{
		"": {markets: []domain.BookMarket{
			openBook("0xbtc", "Will Bitcoin reach $100k by March 2026?"),
			openBook("0xeth", "Will Ethereum reach $5k by March 2026?"),
			openBook("0xsol", "Will Solana reach $500 by March 2026?"),
		}},
	}}
	store := &fakePairStore{}
	m := New(Config{Cutoff: 0.82, MaxProposals: 2}, []AMMCatalogue{amm}, book, store, nil, slog.New(slog.DiscardHandler))

	proposals, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, proposals, 2)
}

func TestRunPagesThroughCatalogue(t *testing.T) {
	amm := &fakeCatalogue{venue: domain.VenueMyriad, markets: []domain.AMMMarket{
		{ID: "mkt-1", Title: "Will Bitcoin reach $100k by March 2026?"},
	}}
	book := &fakeBookCatalogue{pages: map[string]bookPage{
		"":   {markets: []domain.BookMarket{openBook("0xeth", "Will Ethereum reach $5k by March 2026?")}, next: "c2"},
		"c2": {markets: []domain.BookMarket{openBook("0xbtc", "Will Bitcoin reach $100k by March 2026?")}},
	}}
	store := &fakePairStore{}
	m := New(Config{Cutoff: 0.82}, []AMMCatalogue{amm}, book, store, nil, slog.New(slog.DiscardHandler))

	proposals, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, "0xbtc", proposals[0].Pair.ConditionID)
}

func TestRunFiltersUnpairableBookMarkets(t *testing.T) {
	closed := openBook("0xbtc", "Will Bitcoin reach $100k by March 2026?")
	closed.Active = false

	ended := openBook("0xbtc2", "Will Bitcoin reach $100k by March 2026?")
	ended.EndDate = time.Now().Add(-time.Hour)

	tokenless := openBook("0xbtc3", "Will Bitcoin reach $100k by March 2026?")
	tokenless.TokenIDs[1] = ""

	amm := &fakeCatalogue{venue: domain.VenueMyriad, markets: []domain.AMMMarket{
		{ID: "mkt-1", Title: "Will Bitcoin reach $100k by March 2026?"},
	}}
	book := &fakeBookCatalogue{pages: map[string]bookPage{
		"": {markets: []domain.BookMarket{closed, ended, tokenless}},
	}}
	store := &fakePairStore{}
	m := New(Config{Cutoff: 0.82}, []AMMCatalogue{amm}, book, store, nil, slog.New(slog.DiscardHandler))

	proposals, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, proposals)
}

func TestRunSkipsFailedVenue(t *testing.T) {
	down := &fakeCatalogue{venue: domain.VenueBodega, err: errors.New("api down")}
	up := &fakeCatalogue{venue: domain.VenueMyriad, markets: []domain.AMMMarket{
		{ID: "mkt-1", Title: "Will Bitcoin reach $100k by March 2026?"},
	}}
	book := &fakeBookCatalogue{pages: map[string]bookPage{
		"": {markets: []domain.BookMarket{openBook("0xbtc", "Will Bitcoin reach $100k by March 2026?")}},
	}}
	store := &fakePairStore{}
	m := New(Config{Cutoff: 0.82}, []AMMCatalogue{down, up}, book, store, nil, slog.New(slog.DiscardHandler))

	proposals, err := m.Run(context.Background())
	require.NoError(t, err, "one venue being down must not abort the sweep")
	require.Len(t, proposals, 1)
	assert.Equal(t, domain.VenueMyriad, proposals[0].Pair.Venue)
}

func TestRunFailsWhenBookUnreachable(t *testing.T) {
	amm := &fakeCatalogue{venue: domain.VenueMyriad}
	book := &fakeBookCatalogue{err: errors.New("clob 503")}
	m := New(Config{Cutoff: 0.82}, []AMMCatalogue{amm}, book, &fakePairStore{}, nil, slog.New(slog.DiscardHandler))

	_, err := m.Run(context.Background())
	assert.ErrorContains(t, err, "book catalogue")
}
