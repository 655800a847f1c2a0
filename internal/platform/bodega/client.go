// Package bodega is the REST client for the Bodega Market V3 prediction
// market API. Bodega settles in ADA and does not expose its LMSR
// liquidity parameter, so the client infers it from the live price.
package bodega

import (
	"bytes"
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

// microUnit converts the API's integer price fields to unit prices.
const microUnit = 1e6

const statusActive = "Active"

// Config holds the venue parameters for a Client.
type Config struct {
	BaseURL string
	APIKey  string

	// Currency is the settlement currency code, e.g. "ADA".
	Currency string

	// FeeRate is the venue's multiplicative trading fee. Bodega does not
	// report it per market.
	FeeRate float64
}

// Client is the REST client for the Bodega API.
type Client struct {
	baseURL    string
	apiKey     string
	currency   string
	feeRate    float64
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ domain.AMMFeed = (*Client)(nil)

// NewClient creates a new Bodega REST client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		currency: cfg.Currency,
		feeRate:  cfg.FeeRate,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(5, 10),
	}
}

// Venue identifies this feed.
func (c *Client) Venue() domain.Venue {
	return domain.VenueBodega
}

// MarketState fetches the market's pool configuration and live prices and
// combines them into an LMSR snapshot. The liquidity parameter is
// inferred from the outstanding shares and the quoted yes price.
func (c *Client) MarketState(ctx context.Context, marketID string) (domain.AMMMarket, error) {
	cfg, err := c.fetchMarketConfig(ctx, marketID)
	if err != nil {
		return domain.AMMMarket{}, err
	}
	info, err := c.fetchPredictionInfo(ctx, marketID)
	if err != nil {
		return domain.AMMMarket{}, err
	}

	var qYes, qNo float64
	for _, opt := range cfg.Options {
		switch strings.ToUpper(opt.Side) {
		case "YES":
			qYes = opt.Shares
		case "NO":
			qNo = opt.Shares
		}
	}

	pYes := float64(info.Prices.YesPrice) / microUnit
	if pYes <= 0 || pYes >= 1 {
		return domain.AMMMarket{}, fmt.Errorf("bodega: market %s: yes price %v out of range", marketID, pYes)
	}

	b, err := lmsr.InferB(qYes, qNo, pYes)
	if err != nil {
		return domain.AMMMarket{}, fmt.Errorf("bodega: market %s: infer liquidity: %w", marketID, err)
	}

	return domain.AMMMarket{
		ID:    cfg.ID,
		Venue: domain.VenueBodega,
		Title: cfg.Name,
		State: domain.AMMState{
			QYes:    qYes,
			QNo:     qNo,
			B:       b,
			FeeRate: c.feeRate,
		},
		Currency: c.currency,
		Expiry:   time.UnixMilli(cfg.Deadline),
		Active:   cfg.Status == statusActive,
	}, nil
}

// ListActiveMarkets returns the venue's open markets with a future
// deadline. States carry pool shares only; MarketState is the
// authoritative snapshot for pricing.
func (c *Client) ListActiveMarkets(ctx context.Context) ([]domain.AMMMarket, error) {
	body, err := c.doPost(ctx, "/getMarketConfigs", struct{}{})
	if err != nil {
		return nil, fmt.Errorf("bodega: list markets: %w", err)
	}

	var resp struct {
		MarketConfigs []marketConfig `json:"marketConfigs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bodega: decode market configs: %w", err)
	}

	now := time.Now()
	var markets []domain.AMMMarket
	for _, cfg := range resp.MarketConfigs {
		if cfg.Status != statusActive {
			continue
		}
		expiry := time.UnixMilli(cfg.Deadline)
		if !expiry.After(now) {
			continue
		}
		markets = append(markets, domain.AMMMarket{
			ID:       cfg.ID,
			Venue:    domain.VenueBodega,
			Title:    cfg.Name,
			Currency: c.currency,
			Expiry:   expiry,
			Active:   true,
		})
	}
	return markets, nil
}

func (c *Client) fetchMarketConfig(ctx context.Context, marketID string) (marketConfig, error) {
	body, err := c.doGet(ctx, "/getMarketConfig?id="+url.QueryEscape(marketID))
	if err != nil {
		return marketConfig{}, fmt.Errorf("bodega: get market config %s: %w", marketID, err)
	}

	var resp struct {
		MarketConfig marketConfig `json:"marketConfig"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return marketConfig{}, fmt.Errorf("bodega: decode market config %s: %w", marketID, err)
	}
	if resp.MarketConfig.ID == "" {
		return marketConfig{}, fmt.Errorf("bodega: market config %s: %w", marketID, domain.ErrNotFound)
	}
	return resp.MarketConfig, nil
}

func (c *Client) fetchPredictionInfo(ctx context.Context, marketID string) (predictionInfo, error) {
	body, err := c.doGet(ctx, "/getPredictionInfo?id="+url.QueryEscape(marketID))
	if err != nil {
		return predictionInfo{}, fmt.Errorf("bodega: get prediction info %s: %w", marketID, err)
	}

	var resp struct {
		PredictionInfo predictionInfo `json:"predictionInfo"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return predictionInfo{}, fmt.Errorf("bodega: decode prediction info %s: %w", marketID, err)
	}
	return resp.PredictionInfo, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) doPost(ctx context.Context, path string, reqBody any) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(jsonBody))
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
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

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(respBody, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}
	return respBody, nil
}
