package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

const (
	// writeWait bounds every write, including pings.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before the read
	// side gives up on it.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait so a healthy peer always
	// answers in time.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// WSClient streams public trade prints from the CLOB market-channel
// WebSocket. It implements domain.TradeStream for the activity monitor.
type WSClient struct {
	wsURL  string
	logger *slog.Logger
}

var _ domain.TradeStream = (*WSClient)(nil)

// NewWSClient creates a market-channel WebSocket client.
//
// wsURL is the WebSocket root, e.g. "wss://ws-subscriptions-clob.polymarket.com".
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{
		wsURL:  wsURL,
		logger: logger.With("component", "polymarket_ws"),
	}
}

// StreamTrades connects to the market channel, subscribes to the given
// outcome tokens and forwards their trade prints to out until ctx is done.
// Dropped connections are redialed with exponential backoff and the
// subscription is replayed after every reconnect. The caller owns out.
func (c *WSClient) StreamTrades(ctx context.Context, assetIDs []string, out chan<- domain.TradeEvent) error {
	if len(assetIDs) == 0 {
		return fmt.Errorf("polymarket/ws: no asset IDs to subscribe")
	}

	delay := reconnectDelay
	for {
		start := time.Now()
		err := c.runConn(ctx, assetIDs, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that survived a while earns a fresh backoff.
		if time.Since(start) > maxReconnectDelay {
			delay = reconnectDelay
		}
		c.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"retry_in", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConn dials, subscribes and pumps frames until the connection or ctx
// fails.
func (c *WSClient) runConn(ctx context.Context, assetIDs []string, out chan<- domain.TradeEvent) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL+"/ws/market", nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: dial %s: %w", c.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sub := wsSubscription{Type: "market", AssetIDs: assetIDs}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	c.logger.Info("subscribed to market channel", "assets", len(assetIDs))

	// The ping loop doubles as the ctx watcher: closing the connection is
	// the only way to unblock ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("polymarket/ws: read: %w", err)
		}
		for _, ev := range decodeTradeFrame(raw) {
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// decodeTradeFrame extracts trade prints from one frame. The market channel
// batches events into arrays and multiplexes book snapshots and price
// changes onto the same socket; everything that is not a last_trade_price
// event is dropped here.
func decodeTradeFrame(raw []byte) []domain.TradeEvent {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	var msgs []wsTradeMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil
		}
	} else {
		var msg wsTradeMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil
		}
		msgs = append(msgs, msg)
	}

	var events []domain.TradeEvent
	for i := range msgs {
		if msgs[i].EventType != "last_trade_price" {
			continue
		}
		events = append(events, msgs[i].toDomain())
	}
	return events
}
