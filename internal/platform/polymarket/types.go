package polymarket

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma
// API responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// apiPriceLevel is one price+size entry as the CLOB serializes it.
type apiPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// apiBook is the response of GET /book for one outcome token. The CLOB
// returns both sides; only the asks matter for hedge sizing.
type apiBook struct {
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Bids      []apiPriceLevel `json:"bids"`
	Asks      []apiPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// toDomain converts the raw book to a domain.OrderBook with asks sorted
// ascending by price. Levels that fail to parse are dropped.
func (b *apiBook) toDomain() domain.OrderBook {
	book := domain.OrderBook{TokenID: b.AssetID}

	for _, lvl := range b.Asks {
		p, errP := strconv.ParseFloat(lvl.Price, 64)
		s, errS := strconv.ParseFloat(lvl.Size, 64)
		if errP != nil || errS != nil || p <= 0 || s <= 0 {
			continue
		}
		book.Asks = append(book.Asks, domain.PriceLevel{Price: p, Size: s})
	}
	// The CLOB serializes asks descending (best last); the evaluator wants
	// them ascending.
	sort.Slice(book.Asks, func(i, j int) bool {
		return book.Asks[i].Price < book.Asks[j].Price
	})

	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil {
		book.Timestamp = time.UnixMilli(ms)
	} else {
		book.Timestamp = time.Now()
	}
	return book
}

// apiOrderResult is the response from placing an order via the CLOB API.
// makingAmount/takingAmount report what actually executed, which for a FAK
// order can be anything from zero to the full request.
type apiOrderResult struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg,omitempty"`
	OrderID      string `json:"orderID,omitempty"`
	Status       string `json:"status,omitempty"`
	MakingAmount string `json:"makingAmount,omitempty"`
	TakingAmount string `json:"takingAmount,omitempty"`
	TransactID   string `json:"transactID,omitempty"`
	ShouldRetry  bool   `json:"shouldRetry,omitempty"`
}

// toDomain converts an apiOrderResult to a domain.OrderResult.
func (r *apiOrderResult) toDomain() domain.OrderResult {
	result := domain.OrderResult{
		Success:     r.Success,
		OrderID:     r.OrderID,
		Message:     r.ErrorMsg,
		ShouldRetry: r.ShouldRetry,
	}
	result.MakingAmount, _ = strconv.ParseFloat(r.MakingAmount, 64)
	result.TakingAmount, _ = strconv.ParseFloat(r.TakingAmount, 64)

	switch r.Status {
	case "live", "open":
		result.Status = domain.OrderStatusOpen
	case "matched":
		result.Status = domain.OrderStatusMatched
	case "delayed":
		result.Status = domain.OrderStatusPending
	default:
		if r.Success {
			result.Status = domain.OrderStatusPending
		} else {
			result.Status = domain.OrderStatusFailed
		}
	}
	return result
}

// apiClobMarket is a market as returned by CLOB GET /markets/{condition_id}.
type apiClobMarket struct {
	ConditionID     string         `json:"condition_id"`
	Question        string         `json:"question"`
	MarketSlug      string         `json:"market_slug"`
	Active          bool           `json:"active"`
	Closed          bool           `json:"closed"`
	AcceptingOrders bool           `json:"accepting_orders"`
	EndDateISO      string         `json:"end_date_iso"`
	Tokens          []apiClobToken `json:"tokens"`
}

// apiClobToken is a token entry inside the CLOB market response.
type apiClobToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// toDomain converts an apiClobMarket to a domain.BookMarket. Token order in
// the response is not contractual, so outcomes are matched by label with
// index order as the fallback.
func (m *apiClobMarket) toDomain() domain.BookMarket {
	bm := domain.BookMarket{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Slug:        m.MarketSlug,
		Active:      m.Active && !m.Closed && m.AcceptingOrders,
	}
	for i, tok := range m.Tokens {
		switch {
		case strings.EqualFold(tok.Outcome, "Yes"):
			bm.TokenIDs[0] = tok.TokenID
		case strings.EqualFold(tok.Outcome, "No"):
			bm.TokenIDs[1] = tok.TokenID
		case i < 2 && bm.TokenIDs[i] == "":
			bm.TokenIDs[i] = tok.TokenID
		}
	}
	if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		bm.EndDate = t
	}
	return bm
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// apiGammaMarket is a market as returned by the Gamma discovery API.
// Outcome and token lists arrive JSON-encoded inside strings.
type apiGammaMarket struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	ConditionID  string   `json:"condition_id"`
	Slug         string   `json:"slug"`
	Active       flexBool `json:"active"`
	Closed       bool     `json:"closed"`
	Volume       string   `json:"volume"`
	EndDateISO   string   `json:"end_date_iso"`
	Outcomes     string   `json:"outcomes"`       // e.g. "[\"Yes\",\"No\"]"
	ClobTokenIDs string   `json:"clob_token_ids"` // e.g. "[\"123\",\"456\"]"
}

// toDomain converts an apiGammaMarket to a domain.BookMarket. The token ID
// list decodes positionally: first entry is the first outcome's token,
// which for a binary market is "Yes".
func (m *apiGammaMarket) toDomain() domain.BookMarket {
	bm := domain.BookMarket{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Slug:        m.Slug,
		Active:      bool(m.Active) && !m.Closed,
	}

	var tokenIDs []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err == nil {
		for i, id := range tokenIDs {
			if i >= 2 {
				break
			}
			bm.TokenIDs[i] = id
		}
	}
	if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		bm.EndDate = t
	}
	return bm
}

// isBinary reports whether the market has exactly the Yes/No outcome pair
// the evaluator can price.
func (m *apiGammaMarket) isBinary() bool {
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return false
	}
	return len(outcomes) == 2
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// wsSubscription is the JSON payload sent on connect to subscribe the
// market channel for a set of outcome tokens.
type wsSubscription struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// wsTradeMessage is a "last_trade_price" event from the market channel: a
// public trade print for one outcome token.
type wsTradeMessage struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
}

// toDomain converts a trade message to a domain.TradeEvent. The venue sends
// no trade identifier, so the dedup key is derived from the print's fields.
func (t *wsTradeMessage) toDomain() domain.TradeEvent {
	ev := domain.TradeEvent{
		AssetID: t.AssetID,
		Side:    strings.ToUpper(t.Side),
	}
	ev.Price, _ = strconv.ParseFloat(t.Price, 64)
	ev.Size, _ = strconv.ParseFloat(t.Size, 64)

	if ms, err := strconv.ParseInt(t.Timestamp, 10, 64); err == nil {
		ev.Timestamp = time.UnixMilli(ms)
	} else {
		ev.Timestamp = time.Now()
	}
	ev.ID = t.AssetID + ":" + t.Timestamp + ":" + t.Price + ":" + t.Size
	return ev
}
