package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// MarketSearcher finds candidate order-book markets for pairing.
type MarketSearcher interface {
	SearchMarkets(ctx context.Context, query string, limit int) ([]domain.BookMarket, error)
}

// MarketHandler serves order-book market discovery, backing the manual
// half of the pairing workflow: an operator searches here, then POSTs the
// chosen market to /api/pairs.
type MarketHandler struct {
	searcher MarketSearcher
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(searcher MarketSearcher, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		searcher: searcher,
		logger:   logger.With(slog.String("handler", "market")),
	}
}

type searchMarketsResponse struct {
	Markets []domain.BookMarket `json:"markets"`
	Count   int                 `json:"count"`
}

// SearchMarkets handles GET /api/markets/search?q=<query>&limit=<n>.
func (h *MarketHandler) SearchMarkets(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := parseLimit(r, 25, 100)

	markets, err := h.searcher.SearchMarkets(r.Context(), query, limit)
	if err != nil {
		h.logger.Error("market search failed", slog.String("query", query), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "market search failed")
		return
	}
	if markets == nil {
		markets = []domain.BookMarket{}
	}

	writeJSON(w, http.StatusOK, searchMarketsResponse{Markets: markets, Count: len(markets)})
}
