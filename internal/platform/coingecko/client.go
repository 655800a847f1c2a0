// Package coingecko supplies settlement-currency USD reference rates
// from the CoinGecko simple price API.
package coingecko

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
)

// Config holds the client parameters.
type Config struct {
	BaseURL string
	APIKey  string

	// IDMap maps currency codes to CoinGecko coin IDs, e.g. ADA→cardano.
	IDMap map[string]string
}

// Client is the REST client for the CoinGecko API.
type Client struct {
	baseURL    string
	apiKey     string
	idMap      map[string]string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ domain.RateFeed = (*Client)(nil)

// NewClient creates a new CoinGecko client.
func NewClient(cfg Config) *Client {
	idMap := make(map[string]string, len(cfg.IDMap))
	for code, id := range cfg.IDMap {
		idMap[strings.ToUpper(code)] = id
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		idMap:      idMap,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		// The free tier allows roughly 30 calls/minute.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

// USDRate returns the USD price of one unit of the given currency code.
func (c *Client) USDRate(ctx context.Context, symbol string) (float64, error) {
	coinID, ok := c.idMap[strings.ToUpper(symbol)]
	if !ok {
		return 0, fmt.Errorf("coingecko: no coin id mapped for %q", symbol)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("coingecko: rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", "usd")
	reqURL := c.baseURL + "/simple/price?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coingecko: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("coingecko: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("coingecko: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return 0, fmt.Errorf("coingecko: decode response: %w", err)
	}

	usd, ok := prices[coinID]["usd"]
	if !ok || usd <= 0 {
		return 0, fmt.Errorf("coingecko: no usd quote for %s", coinID)
	}
	return usd, nil
}
