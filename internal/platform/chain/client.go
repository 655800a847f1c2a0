// Package chain is the EVM surface behind live execution: collateral and
// gas balance reads on Polygon and the Abstract chain, and LMSR position
// buys on the Myriad market contract.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Deployed contract addresses.
var (
	// PolygonUSDC is the USDC.e collateral the order book settles in.
	PolygonUSDC = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

	// AbstractUSDC is the collateral token on the Abstract chain.
	AbstractUSDC = common.HexToAddress("0x84a71ccd554cc1b02749b35d22f684cc8ec987e1")

	// MyriadMarket is the market contract holding every Myriad market.
	MyriadMarket = common.HexToAddress("0x3e0f5F8F5FB043aBFA475C0308417Bf72c463289")
)

const (
	// USDCDecimals is shared by the collateral tokens on both chains.
	USDCDecimals = 6

	// approvalGasLimit is a conservative upper bound used when the node's
	// estimate is unavailable.
	approvalGasLimit = uint64(80_000)
	buyGasLimit      = uint64(400_000)

	gasPriceTTL    = 5 * time.Minute
	receiptTimeout = 90 * time.Second
)

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		}
	]`))
	if err != nil {
		panic("chain: erc20 abi parse: " + err.Error())
	}
}

// Client wraps one EVM RPC endpoint. A client without a signing key can
// only read balances; sending transactions requires the key.
type Client struct {
	rpc     *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	address common.Address
	logger  *slog.Logger

	mu     sync.Mutex
	gasWei *big.Int
	gasAt  time.Time
}

// Dial connects to the RPC endpoint and queries its chain ID. privateKeyHex
// may be empty for a read-only client.
func Dial(ctx context.Context, rpcURL, privateKeyHex string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("chain: query chain id: %w", err)
	}

	c := &Client{
		rpc:     rpc,
		chainID: chainID,
		logger:  logger.With("component", "chain", "chain_id", chainID.String()),
	}

	if privateKeyHex != "" {
		key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			rpc.Close()
			return nil, fmt.Errorf("chain: invalid private key: %w", err)
		}
		c.key = key
		c.address = ethcrypto.PubkeyToAddress(key.PublicKey)
	}

	return c, nil
}

// Address returns the signing address, zero for read-only clients.
func (c *Client) Address() common.Address {
	return c.address
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// TokenBalance returns owner's ERC-20 balance in whole token units.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address, decimals int) (float64, error) {
	callData, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return 0, fmt.Errorf("chain: pack balanceOf: %w", err)
	}

	raw, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: balanceOf %s: %w", token.Hex(), err)
	}

	vals, err := erc20ABI.Unpack("balanceOf", raw)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("chain: unpack balanceOf: %w", err)
	}
	return scaleDown(vals[0].(*big.Int), decimals), nil
}

// NativeBalance returns owner's native coin balance in whole units (18
// decimals), used for gas checks.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (float64, error) {
	wei, err := c.rpc.BalanceAt(ctx, owner, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: native balance: %w", err)
	}
	return scaleDown(wei, 18), nil
}

// allowance queries the current ERC-20 allowance of spender on token.
func (c *Client) allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	callData, err := erc20ABI.Pack("allowance", c.address, spender)
	if err != nil {
		return nil, fmt.Errorf("chain: pack allowance: %w", err)
	}

	raw, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: allowance: %w", err)
	}

	vals, err := erc20ABI.Unpack("allowance", raw)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("chain: unpack allowance: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// approve grants spender an allowance of amount on token and waits for the
// transaction to confirm.
func (c *Client) approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	callData, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return fmt.Errorf("chain: pack approve: %w", err)
	}

	receipt, txHash, err := c.sendAndWait(ctx, token, callData, approvalGasLimit)
	if err != nil {
		return fmt.Errorf("chain: approve: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("chain: approve tx %s reverted", txHash)
	}
	c.logger.Info("allowance granted", "token", token.Hex(), "spender", spender.Hex(), "tx", txHash)
	return nil
}

// sendAndWait signs and submits a state-changing call, then polls until the
// receipt lands or the timeout expires. Gas is the node's estimate plus 20%,
// falling back to gasFallback when estimation fails.
func (c *Client) sendAndWait(ctx context.Context, to common.Address, callData []byte, gasFallback uint64) (*types.Receipt, string, error) {
	if c.key == nil {
		return nil, "", fmt.Errorf("no signing key configured")
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, "", fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("gas price: %w", err)
	}

	gas, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.address,
		To:       &to,
		GasPrice: gasPrice,
		Data:     callData,
	})
	if err != nil {
		gas = gasFallback
		c.logger.Warn("gas estimate failed, using fallback", "error", err, "limit", gas)
	}
	gas = gas * 12 / 10

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, callData)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return nil, "", fmt.Errorf("sign tx: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return nil, "", fmt.Errorf("send tx: %w", err)
	}
	txHash := signed.Hash()

	waitCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	receipt, err := c.waitForReceipt(waitCtx, txHash)
	if err != nil {
		return nil, txHash.Hex(), fmt.Errorf("wait receipt %s: %w", txHash.Hex(), err)
	}
	return receipt, txHash.Hex(), nil
}

// gasPrice returns the node's suggested gas price with a 10% inclusion
// buffer, cached to avoid hammering the RPC.
func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached, at := c.gasWei, c.gasAt
	c.mu.Unlock()

	if cached != nil && time.Since(at) < gasPriceTTL {
		return cached, nil
	}

	price, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	c.mu.Lock()
	c.gasWei, c.gasAt = buffered, time.Now()
	c.mu.Unlock()

	return buffered, nil
}

// waitForReceipt polls for a transaction receipt until mined or ctx done.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.rpc.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}

// scaleDown converts a fixed-point integer amount to whole units.
func scaleDown(n *big.Int, decimals int) float64 {
	f := new(big.Float).SetInt(n)
	f.Quo(f, new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	out, _ := f.Float64()
	return out
}
