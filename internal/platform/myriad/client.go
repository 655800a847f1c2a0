// Package myriad is the REST client for the Myriad prediction-market
// API. Markets are addressed by slug and settle in USDC on the
// configured land, so no FX conversion applies.
package myriad

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/ammarbot/internal/domain"
	"github.com/alanyoungcy/ammarbot/internal/lmsr"
)

const stateOpen = "open"

// Config holds the venue parameters for a Client.
type Config struct {
	BaseURL string
	APIKey  string

	// NetworkID and LandID scope market listings to one settlement pool.
	NetworkID string
	LandID    string

	// FeeRate is the venue's multiplicative trading fee.
	FeeRate float64
}

// Client is the REST client for the Myriad API.
type Client struct {
	baseURL    string
	apiKey     string
	networkID  string
	landID     string
	feeRate    float64
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ domain.AMMFeed = (*Client)(nil)

// NewClient creates a new Myriad REST client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		networkID: cfg.NetworkID,
		landID:    cfg.LandID,
		feeRate:   cfg.FeeRate,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(5, 10),
	}
}

// Venue identifies this feed.
func (c *Client) Venue() domain.Venue {
	return domain.VenueMyriad
}

// MarketState fetches one market by slug and derives its LMSR snapshot.
// Outcome 0 maps to "yes" and outcome 1 to "no"; pair configuration
// flips the mapping when the market is phrased the other way round.
func (c *Client) MarketState(ctx context.Context, marketID string) (domain.AMMMarket, error) {
	m, err := c.fetchMarket(ctx, marketID)
	if err != nil {
		return domain.AMMMarket{}, err
	}
	if len(m.Outcomes) != 2 {
		return domain.AMMMarket{}, fmt.Errorf("myriad: market %s has %d outcomes, want 2", marketID, len(m.Outcomes))
	}

	yes, ok := m.outcomeByID(0)
	if !ok {
		return domain.AMMMarket{}, fmt.Errorf("myriad: market %s: outcome 0 missing", marketID)
	}
	no, ok := m.outcomeByID(1)
	if !ok {
		return domain.AMMMarket{}, fmt.Errorf("myriad: market %s: outcome 1 missing", marketID)
	}

	b, err := lmsr.InferB(yes.SharesHeld, no.SharesHeld, yes.Price)
	if err != nil {
		return domain.AMMMarket{}, fmt.Errorf("myriad: market %s: infer liquidity: %w", marketID, err)
	}

	return domain.AMMMarket{
		ID:    m.Slug,
		Venue: domain.VenueMyriad,
		Title: m.Title,
		State: domain.AMMState{
			QYes:    yes.SharesHeld,
			QNo:     no.SharesHeld,
			B:       b,
			FeeRate: c.feeRate,
		},
		Currency:      "USD",
		Expiry:        m.ExpiresAt,
		Active:        m.State == stateOpen,
		ChainMarketID: m.ID,
	}, nil
}

// ListActiveMarkets returns the open binary markets on the configured
// network and land.
func (c *Client) ListActiveMarkets(ctx context.Context) ([]domain.AMMMarket, error) {
	params := url.Values{}
	params.Set("state", stateOpen)
	if c.networkID != "" {
		params.Set("network_id", c.networkID)
	}
	if c.landID != "" {
		params.Set("land_ids", c.landID)
	}

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("myriad: list markets: %w", err)
	}

	var ms []market
	if err := json.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("myriad: decode markets: %w", err)
	}

	var markets []domain.AMMMarket
	for _, m := range ms {
		if len(m.Outcomes) != 2 {
			continue
		}
		markets = append(markets, domain.AMMMarket{
			ID:            m.Slug,
			Venue:         domain.VenueMyriad,
			Title:         m.Title,
			Currency:      "USD",
			Expiry:        m.ExpiresAt,
			Active:        true,
			ChainMarketID: m.ID,
		})
	}
	return markets, nil
}

func (c *Client) fetchMarket(ctx context.Context, slug string) (market, error) {
	body, err := c.doGet(ctx, "/markets/"+url.PathEscape(slug))
	if err != nil {
		return market{}, fmt.Errorf("myriad: get market %s: %w", slug, err)
	}

	var m market
	if err := json.Unmarshal(body, &m); err != nil {
		return market{}, fmt.Errorf("myriad: decode market %s: %w", slug, err)
	}
	return m, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}
