package arbitrage

import "github.com/alanyoungcy/ammarbot/internal/domain"

// DirectionInput is the oriented data for evaluating one trade direction:
// the AMM state rotated so the bought outcome sits in QYes, and the ask
// ladder of the opposite outcome's book token.
type DirectionInput struct {
	Direction domain.Direction
	State     domain.AMMState
	Hedge     domain.OrderBook
}

// DirectionInputs expands a pair's fetched market data into both trade
// directions. bookForYes/bookForNo are the ladders of the book tokens
// aligned with the AMM's yes/no outcomes respectively (the pair's Flipped
// mapping is already applied by the caller via BookTokens).
func DirectionInputs(state domain.AMMState, bookForYes, bookForNo domain.OrderBook) [2]DirectionInput {
	return [2]DirectionInput{
		{
			Direction: domain.DirectionBuyAmmHedgeBook,
			State:     state,
			Hedge:     bookForNo,
		},
		{
			Direction: domain.DirectionSellAmmHedgeBook,
			State:     state.Flip(),
			Hedge:     bookForYes,
		},
	}
}
