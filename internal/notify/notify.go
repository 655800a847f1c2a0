// Package notify fans operator alerts out to the configured channels.
// Event types can be filtered so an operator running dry_run all day is
// not paged for every detected opportunity. Delivery is best effort:
// failures are logged, never propagated, because no caller can do
// anything useful with a dead webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// Event types operators can filter on.
const (
	EventOpportunity  = "opportunity"
	EventExecution    = "execution"
	EventLargeTrade   = "large_trade"
	EventPairProposed = "pair_proposed"
	EventError        = "error"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs (e.g. "telegram").
	Name() string
}

// Service formats domain events into messages and dispatches them to
// every sender. Events not in the allowlist are dropped; an empty
// allowlist passes everything.
type Service struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewService creates a Service delivering to senders, filtered to the
// given event types.
func NewService(senders []Sender, events []string, logger *slog.Logger) *Service {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Service{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// EmitOpportunity implements the detector's opportunity sink.
func (s *Service) EmitOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	msg := fmt.Sprintf(
		"%s (%s)\nprofit $%.2f on $%.2f outlay | ROI %.2f%% | APY %.1f%%\nAMM leg %.1f shares @ %.4f | book leg %.1f shares @ %.4f",
		opp.PairKey, opp.Direction,
		opp.ProfitUSD, opp.TotalCostUSD, opp.ROI*100, opp.APY*100,
		opp.AmmLeg.Shares, opp.AmmLeg.AvgPrice,
		opp.BookLeg.Shares, opp.BookLeg.AvgPrice)
	s.send(ctx, EventOpportunity, "Arbitrage opportunity", msg)
	return nil
}

// ExecutionResult reports a terminal execution outcome.
func (s *Service) ExecutionResult(ctx context.Context, opp domain.ArbitrageOpportunity, detail string) {
	title := "Execution " + string(opp.Status)
	msg := fmt.Sprintf("%s (%s)\n%s", opp.PairKey, opp.Direction, detail)
	s.send(ctx, EventExecution, title, msg)
}

// LargeTrade flags an unusually large print on a watched book.
func (s *Service) LargeTrade(ctx context.Context, trade domain.TradeEvent) {
	msg := fmt.Sprintf("%s %s %.1f shares @ %.4f ($%.0f)",
		trade.Side, trade.AssetID, trade.Size, trade.Price, trade.Notional())
	s.send(ctx, EventLargeTrade, "Large trade", msg)
}

// PairProposed announces an auto-matched pair awaiting review.
func (s *Service) PairProposed(ctx context.Context, pair domain.MonitoredPair, score float64) {
	msg := fmt.Sprintf("%s market %s ↔ book %s (score %.2f)\nInserted disabled; review orientation before enabling.",
		pair.Venue, pair.AMMMarketID, pair.ConditionID, score)
	s.send(ctx, EventPairProposed, "Pair proposed", msg)
}

// Error reports a component failure worth waking someone for.
func (s *Service) Error(ctx context.Context, scope string, err error) {
	s.send(ctx, EventError, "Error in "+scope, err.Error())
}

// send filters by event type and fans out. A failed sender never blocks
// the remaining ones.
func (s *Service) send(ctx context.Context, event, title, message string) {
	if len(s.events) > 0 && !s.events[event] {
		s.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return
	}

	for _, snd := range s.senders {
		if err := snd.Send(ctx, title, message); err != nil {
			s.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", snd.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", snd.Name()),
			slog.String("title", title))
	}
}

// postJSON is the shared webhook POST both senders use: marshal, send,
// and require a 2xx response.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, scope string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", scope, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", scope, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", scope, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", scope, resp.StatusCode, string(respBody))
	}
	return nil
}
