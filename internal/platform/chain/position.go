package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var marketABI abi.ABI

func init() {
	var err error
	marketABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "buy",
			"type": "function",
			"inputs": [
				{"name": "marketId", "type": "uint256"},
				{"name": "outcomeId", "type": "uint256"},
				{"name": "minOutcomeSharesToBuy", "type": "uint256"},
				{"name": "value", "type": "uint256"}
			],
			"outputs": []
		}
	]`))
	if err != nil {
		panic("chain: market abi parse: " + err.Error())
	}
}

// BuyPosition spends usdc (whole units) of collateral on outcomeID of the
// given market through the market contract. The collateral allowance is
// topped up first when short. Returns the transaction hash.
//
// The share floor is left at one base unit; the preflight state re-check is
// what guards against a moved curve.
func (c *Client) BuyPosition(ctx context.Context, market, collateral common.Address, marketID int64, outcomeID int, usdc float64) (string, error) {
	if usdc <= 0 {
		return "", fmt.Errorf("chain: buy amount must be positive, got %f", usdc)
	}

	value := usdcBaseUnits(usdc)

	if err := c.ensureAllowance(ctx, collateral, market, value); err != nil {
		return "", err
	}

	callData, err := marketABI.Pack("buy",
		big.NewInt(marketID),
		big.NewInt(int64(outcomeID)),
		big.NewInt(1),
		value,
	)
	if err != nil {
		return "", fmt.Errorf("chain: pack buy: %w", err)
	}

	receipt, txHash, err := c.sendAndWait(ctx, market, callData, buyGasLimit)
	if err != nil {
		return txHash, fmt.Errorf("chain: buy position: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, fmt.Errorf("chain: buy tx %s reverted", txHash)
	}

	c.logger.Info("position bought",
		"market_id", marketID,
		"outcome_id", outcomeID,
		"usdc", usdc,
		"gas_used", receipt.GasUsed,
		"tx", txHash)
	return txHash, nil
}

// ensureAllowance approves the spender for the exact purchase amount when
// the standing allowance does not cover it.
func (c *Client) ensureAllowance(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	current, err := c.allowance(ctx, token, spender)
	if err != nil {
		return err
	}
	if current.Cmp(amount) >= 0 {
		return nil
	}
	return c.approve(ctx, token, spender, amount)
}

// usdcBaseUnits converts whole USDC to the token's 6-decimal fixed point,
// truncating dust below one base unit.
func usdcBaseUnits(usdc float64) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(usdc), big.NewFloat(1e6))
	out, _ := scaled.Int(nil)
	return out
}
