// Package polymarket implements the order-book venue: CLOB order books and
// FAK order placement, Gamma market discovery, and the market-channel
// WebSocket trade stream.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/ammarbot/internal/crypto"
	"github.com/alanyoungcy/ammarbot/internal/domain"
)

const (
	// zeroAddress is the public taker for open orders.
	zeroAddress = "0x0000000000000000000000000000000000000000"

	// endCursor is the sentinel the markets endpoint returns on the last
	// page ("-1" base64-encoded).
	endCursor = "LTE="

	// priceTickCents and shareStepUnits mirror the venue's minimum price
	// increment (0.01) and share increment (0.0001).
	priceTickCents  = 100
	shareStepUnits  = 10_000
	usdcBaseUnits   = 1_000_000
	unwindSellPrice = 0.01
)

// ClobConfig holds the CLOB endpoint and order-signing parameters.
type ClobConfig struct {
	BaseURL string

	// SignatureType selects the CLOB signature scheme: 1 for email/magic
	// wallets, 2 for browser-wallet proxy accounts. Funder is the proxy
	// address holding the USDC collateral; empty means the signing EOA
	// trades for itself.
	SignatureType int
	Funder        string
}

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API: public order books plus authenticated order placement.
type ClobClient struct {
	baseURL       string
	httpClient    *http.Client
	limiter       *rate.Limiter
	signer        *crypto.Signer
	hmacAuth      *crypto.HMACAuth
	signatureType int
	funder        string
}

var _ domain.BookFeed = (*ClobClient)(nil)

// NewClobClient creates a CLOB client. signer and hmac may be nil for
// read-only use (order books and market lookups need no authentication);
// DeriveAPIKey can populate the HMAC credentials later when a signer is
// present.
func NewClobClient(cfg ClobConfig, signer *crypto.Signer, hmac *crypto.HMACAuth) *ClobClient {
	return &ClobClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:       rate.NewLimiter(rate.Limit(5), 10),
		signer:        signer,
		hmacAuth:      hmac,
		signatureType: cfg.SignatureType,
		funder:        cfg.Funder,
	}
}

// OrderBook fetches the current ask ladder for one outcome token.
func (c *ClobClient) OrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.doGet(ctx, "/book?"+params.Encode())
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var raw apiBook
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}

	book := raw.toDomain()
	if book.TokenID == "" {
		book.TokenID = tokenID
	}
	return book, nil
}

// GetMarket fetches one market's metadata by condition ID. The executor
// uses it pre-flight to confirm the market still accepts orders.
func (c *ClobClient) GetMarket(ctx context.Context, conditionID string) (domain.BookMarket, error) {
	body, err := c.doGet(ctx, "/markets/"+url.PathEscape(conditionID))
	if err != nil {
		return domain.BookMarket{}, fmt.Errorf("polymarket/clob: get market %s: %w", conditionID, err)
	}

	var raw apiClobMarket
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.BookMarket{}, fmt.Errorf("polymarket/clob: decode market: %w", err)
	}
	return raw.toDomain(), nil
}

// ListMarkets fetches one page of the venue's market catalogue. Pass an
// empty cursor for the first page; iteration ends when the returned cursor
// is empty. Used by the auto-matcher to sweep for pairable markets.
func (c *ClobClient) ListMarkets(ctx context.Context, cursor string) ([]domain.BookMarket, string, error) {
	path := "/markets"
	if cursor != "" {
		params := url.Values{}
		params.Set("next_cursor", cursor)
		path += "?" + params.Encode()
	}

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("polymarket/clob: list markets: %w", err)
	}

	var page struct {
		Data       []apiClobMarket `json:"data"`
		NextCursor string          `json:"next_cursor"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, "", fmt.Errorf("polymarket/clob: decode markets page: %w", err)
	}

	markets := make([]domain.BookMarket, 0, len(page.Data))
	for i := range page.Data {
		markets = append(markets, page.Data[i].toDomain())
	}

	next := page.NextCursor
	if next == endCursor {
		next = ""
	}
	return markets, next, nil
}

// BuyFAK submits a fill-and-kill buy: whatever crosses the book at or
// below price executes immediately, the remainder is cancelled. The
// returned result's TakingAmount is the share quantity actually acquired.
//
// Price and size are snapped down to the venue's increments first; a
// request that normalizes to zero returns an empty successful result
// rather than an error.
func (c *ClobClient) BuyFAK(ctx context.Context, tokenID string, price, size float64) (domain.OrderResult, error) {
	priceUnits, sharesUnits, _ := normalizeBuyArgs(price, size)
	if priceUnits <= 0 || sharesUnits <= 0 {
		return domain.OrderResult{Success: true}, nil
	}

	// makerAmount is collateral offered, takerAmount the shares wanted,
	// both in the venue's 1e6 fixed point. Cents (1e-2) times share steps
	// (1e-4) is already base units (1e-6), so the products need no
	// rescaling; normalization above guarantees whole-cent collateral.
	makerAmount := new(big.Int).SetInt64(priceUnits * sharesUnits)
	takerAmount := new(big.Int).SetInt64(sharesUnits * (usdcBaseUnits / shareStepUnits))

	order, err := c.signOrder(tokenID, domain.OrderSideBuy, priceUnits, sharesUnits, makerAmount, takerAmount)
	if err != nil {
		return domain.OrderResult{}, err
	}
	return c.PostOrder(ctx, order)
}

// SellFAK submits a fill-and-kill sell at the given limit. The unwind path
// uses it with a floor price so the order crosses whatever bids exist.
// Size is snapped down to whole cents of a share, matching what the venue
// accepts for market-like sells.
func (c *ClobClient) SellFAK(ctx context.Context, tokenID string, price, size float64) (domain.OrderResult, error) {
	priceUnits := int64(math.Floor(price*priceTickCents + 1e-9))
	sharesUnits := int64(math.Floor(size*100+1e-9)) * (shareStepUnits / 100)
	if priceUnits <= 0 || sharesUnits <= 0 {
		return domain.OrderResult{Success: true}, nil
	}

	// For a sell the maker offers shares and takes collateral.
	makerAmount := new(big.Int).SetInt64(sharesUnits * (usdcBaseUnits / shareStepUnits))
	takerAmount := new(big.Int).SetInt64(priceUnits * sharesUnits)

	order, err := c.signOrder(tokenID, domain.OrderSideSell, priceUnits, sharesUnits, makerAmount, takerAmount)
	if err != nil {
		return domain.OrderResult{}, err
	}
	return c.PostOrder(ctx, order)
}

// Unwind dumps size shares with an aggressive FAK sell at the venue's
// minimum price, the closest thing the CLOB has to a market sell.
func (c *ClobClient) Unwind(ctx context.Context, tokenID string, size float64) (domain.OrderResult, error) {
	return c.SellFAK(ctx, tokenID, unwindSellPrice, size)
}

// PostOrder submits a signed order to the CLOB API and returns the result.
func (c *ClobClient) PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	if c.signer == nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w: no signer configured", domain.ErrUnauthorized)
	}

	maker := c.funder
	if maker == "" {
		maker = order.Wallet
	}
	body := map[string]any{
		"order": map[string]any{
			"salt":          order.ID,
			"tokenID":       order.TokenID,
			"makerAmount":   order.MakerAmount.String(),
			"takerAmount":   order.TakerAmount.String(),
			"side":          strings.ToUpper(string(order.Side)),
			"feeRateBps":    "0",
			"nonce":         "0",
			"expiration":    "0",
			"signatureType": c.signatureType,
			"signature":     order.Signature,
			"maker":         maker,
			"signer":        order.Wallet,
			"taker":         zeroAddress,
		},
		"owner":     c.ownerKey(),
		"orderType": string(order.Type),
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult apiOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	result := apiResult.toDomain()
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: order rejected: %s", result.Message)
	}
	return result, nil
}

// DeriveAPIKey performs the CLOB auth flow to obtain an HMAC API key. It
// signs a ClobAuth EIP-712 message and sends it with L1 headers to the
// derive-api-key endpoint. On success it populates the client's hmacAuth.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	if c.signer == nil {
		return fmt.Errorf("polymarket/clob: derive api key: %w: no signer configured", domain.ErrUnauthorized)
	}

	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/clob: auth failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	return nil
}

// --------------------------------------------------------------------------
// Order construction
// --------------------------------------------------------------------------

// signOrder assembles and EIP-712-signs an order from fixed-point units.
func (c *ClobClient) signOrder(tokenID string, side domain.OrderSide, priceUnits, sharesUnits int64, makerAmount, takerAmount *big.Int) (domain.Order, error) {
	salt := strconv.FormatInt(rand.Int63(), 10)
	wallet := c.signer.Address().Hex()
	maker := c.funder
	if maker == "" {
		maker = wallet
	}

	sideCode := 0
	if side == domain.OrderSideSell {
		sideCode = 1
	}

	sig, err := c.signer.SignOrder(crypto.OrderPayload{
		Salt:          salt,
		Maker:         maker,
		Signer:        wallet,
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideCode,
		SignatureType: c.signatureType,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("polymarket/clob: sign order: %w", err)
	}

	return domain.Order{
		ID:          salt,
		TokenID:     tokenID,
		Wallet:      wallet,
		Side:        side,
		Type:        domain.OrderTypeFAK,
		PriceTicks:  priceUnits * (usdcBaseUnits / priceTickCents),
		SizeUnits:   sharesUnits * (usdcBaseUnits / shareStepUnits),
		MakerAmount: makerAmount,
		TakerAmount: takerAmount,
		Status:      domain.OrderStatusPending,
		Signature:   sig,
		CreatedAt:   time.Now(),
	}, nil
}

// normalizeBuyArgs snaps a buy to the venue's increments so the maker
// amount lands on exact cents. Price floors to the tick, shares floor to
// the step and then down to the nearest multiple that makes
// price*shares a whole-cent product. Returns fixed-point units (price in
// cents, shares in 1e-4 steps) plus the resulting dollar cost.
func normalizeBuyArgs(price, size float64) (priceUnits, sharesUnits int64, usd float64) {
	priceUnits = int64(math.Floor(price*priceTickCents + 1e-9))
	sharesUnits = int64(math.Floor(size*shareStepUnits + 1e-9))
	if priceUnits <= 0 || sharesUnits <= 0 {
		return 0, 0, 0
	}

	// cents = priceUnits*sharesUnits/1e4, so the product must divide 1e4.
	const modulus = int64(shareStepUnits * priceTickCents / 100)
	needMultiple := modulus / gcd(priceUnits, modulus)
	sharesUnits = sharesUnits / needMultiple * needMultiple
	if sharesUnits == 0 {
		return 0, 0, 0
	}

	cents := priceUnits * sharesUnits / (shareStepUnits * priceTickCents / 100)
	return priceUnits, sharesUnits, float64(cents) / 100
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// ownerKey returns the HMAC API key the CLOB expects in the order envelope.
func (c *ClobClient) ownerKey() string {
	if c.hmacAuth != nil {
		return c.hmacAuth.Key
	}
	return ""
}

// doGet sends an unauthenticated GET against a public CLOB endpoint.
func (c *ClobClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the CLOB API. It returns the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil && c.signer != nil {
		address := c.signer.Address().Hex()
		headers := c.hmacAuth.L2Headers(address, method, path, bodyStr)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
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
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
