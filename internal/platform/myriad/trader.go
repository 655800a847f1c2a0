package myriad

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/ammarbot/internal/domain"
	"github.com/alanyoungcy/ammarbot/internal/platform/chain"
)

// Trader buys Myriad outcome positions through the market contract on the
// Abstract chain. The REST client reads state; buys go on-chain because
// the venue has no trading API.
type Trader struct {
	chain *chain.Client
}

// NewTrader wraps a connected chain client. The client's wallet is the
// position owner.
func NewTrader(c *chain.Client) *Trader {
	return &Trader{chain: c}
}

// BuyOutcome spends usdc on the given outcome and returns the transaction
// hash. The market must carry its on-chain ID; markets listed before the
// venue exposed chain IDs cannot be traded.
func (t *Trader) BuyOutcome(ctx context.Context, market domain.AMMMarket, outcomeID int, usdc float64) (string, error) {
	if market.ChainMarketID == 0 {
		return "", fmt.Errorf("myriad: market %s has no chain id", market.ID)
	}
	return t.chain.BuyPosition(ctx, chain.MyriadMarket, chain.AbstractUSDC, market.ChainMarketID, outcomeID, usdc)
}
