package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// VenueFunds binds an AMM venue to the chain client and collateral token
// that fund its buys. The client's wallet is the funded account.
type VenueFunds struct {
	Client     *Client
	Collateral common.Address
}

// Balances reads the on-chain funds execution preflight verifies. The
// book side settles on Polygon; each AMM venue may settle on its own
// chain, so venues map to their own clients.
type Balances struct {
	book      *Client
	bookToken common.Address
	venues    map[domain.Venue]VenueFunds
}

// NewBalances wires the book-side client and the per-venue funding map.
func NewBalances(book *Client, bookToken common.Address, venues map[domain.Venue]VenueFunds) *Balances {
	return &Balances{book: book, bookToken: bookToken, venues: venues}
}

// BookUSDC returns the wallet's collateral balance on the book chain.
func (b *Balances) BookUSDC(ctx context.Context) (float64, error) {
	return b.book.TokenBalance(ctx, b.bookToken, b.book.Address(), USDCDecimals)
}

// AMMUSDC returns the wallet's collateral balance on the venue's chain.
func (b *Balances) AMMUSDC(ctx context.Context, venue domain.Venue) (float64, error) {
	vf, ok := b.venues[venue]
	if !ok {
		return 0, fmt.Errorf("chain: no funding chain for venue %s", venue)
	}
	return vf.Client.TokenBalance(ctx, vf.Collateral, vf.Client.Address(), USDCDecimals)
}

// GasBalance returns the wallet's native token balance on the venue's
// chain, in whole coins.
func (b *Balances) GasBalance(ctx context.Context, venue domain.Venue) (float64, error) {
	vf, ok := b.venues[venue]
	if !ok {
		return 0, fmt.Errorf("chain: no funding chain for venue %s", venue)
	}
	return vf.Client.NativeBalance(ctx, vf.Client.Address())
}
