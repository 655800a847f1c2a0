package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// PairStore defines the pair operations the handler needs. Declared
// locally so the handler package does not depend on the concrete store.
type PairStore interface {
	List(ctx context.Context) ([]domain.MonitoredPair, error)
	Insert(ctx context.Context, pair domain.MonitoredPair) (int64, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Exists(ctx context.Context, venue domain.Venue, ammMarketID, conditionID string) (bool, error)
}

// PairHandler serves the monitored-pair management endpoints.
type PairHandler struct {
	pairs  PairStore
	logger *slog.Logger
}

// NewPairHandler creates a PairHandler with the given store and logger.
func NewPairHandler(pairs PairStore, logger *slog.Logger) *PairHandler {
	return &PairHandler{
		pairs:  pairs,
		logger: logger,
	}
}

// listPairsResponse wraps the list endpoint output.
type listPairsResponse struct {
	Pairs []domain.MonitoredPair `json:"pairs"`
	Count int                    `json:"count"`
}

// ListPairs returns all monitored pairs, active or not.
// GET /api/pairs
func (h *PairHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.pairs.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pairs failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list pairs")
		return
	}

	if pairs == nil {
		pairs = []domain.MonitoredPair{}
	}
	writeJSON(w, http.StatusOK, listPairsResponse{Pairs: pairs, Count: len(pairs)})
}

// createPairRequest is the POST /api/pairs body.
type createPairRequest struct {
	Venue              string  `json:"venue"`
	AMMMarketID        string  `json:"amm_market_id"`
	ConditionID        string  `json:"condition_id"`
	TokenIDYes         string  `json:"token_id_yes"`
	TokenIDNo          string  `json:"token_id_no"`
	Flipped            bool    `json:"flipped"`
	ProfitThresholdUSD float64 `json:"profit_threshold_usd"`
	AutotradeEnabled   bool    `json:"autotrade_enabled"`
	Active             bool    `json:"active"`
}

// CreatePair registers a new monitored pair.
// POST /api/pairs
func (h *PairHandler) CreatePair(w http.ResponseWriter, r *http.Request) {
	var req createPairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	venue := domain.Venue(req.Venue)
	if !venue.Known() {
		writeError(w, http.StatusBadRequest, "unknown venue: "+req.Venue)
		return
	}
	if req.AMMMarketID == "" || req.ConditionID == "" {
		writeError(w, http.StatusBadRequest, "amm_market_id and condition_id are required")
		return
	}
	if req.TokenIDYes == "" || req.TokenIDNo == "" {
		writeError(w, http.StatusBadRequest, "token_id_yes and token_id_no are required")
		return
	}

	exists, err := h.pairs.Exists(r.Context(), venue, req.AMMMarketID, req.ConditionID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: pair lookup failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to check for existing pair")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "pair already exists")
		return
	}

	pair := domain.MonitoredPair{
		Venue:              venue,
		AMMMarketID:        req.AMMMarketID,
		ConditionID:        req.ConditionID,
		TokenIDYes:         req.TokenIDYes,
		TokenIDNo:          req.TokenIDNo,
		Flipped:            req.Flipped,
		ProfitThresholdUSD: req.ProfitThresholdUSD,
		AutotradeEnabled:   req.AutotradeEnabled,
		Active:             req.Active,
	}

	id, err := h.pairs.Insert(r.Context(), pair)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: insert pair failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create pair")
		return
	}

	h.logger.InfoContext(r.Context(), "pair created",
		slog.Int64("pair_id", id),
		slog.String("venue", req.Venue),
		slog.String("amm_market_id", req.AMMMarketID),
	)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// setActiveRequest is the PATCH /api/pairs/{id} body.
type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetPairActive flips a pair's scheduling flag.
// PATCH /api/pairs/{id}
func (h *PairHandler) SetPairActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pair id")
		return
	}

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.pairs.SetActive(r.Context(), id, req.Active); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pair not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: set pair active failed",
			slog.Int64("pair_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update pair")
		return
	}

	h.logger.InfoContext(r.Context(), "pair updated",
		slog.Int64("pair_id", id),
		slog.Bool("active", req.Active),
	)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": req.Active})
}
