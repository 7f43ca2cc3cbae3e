package web3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const (
	defaultSingleUpdateGas uint64 = 150_000
	defaultBatchBaseGas    uint64 = 50_000
	defaultBatchPerItemGas uint64 = 100_000
	batchGasBufferPercent  uint64 = 20
)

// FeeQuote is the EIP-1559 fee triple computed for one send (spec.md
// §4.6): max_fee = 2*base_fee + priority_fee.
type FeeQuote struct {
	BaseFee     *big.Int
	PriorityFee *big.Int
	MaxFee      *big.Int
}

// GasPolicy implements spec.md §4.6's gas estimation and price-cap rules.
type GasPolicy struct {
	maxGasPriceGwei float64
}

func NewGasPolicy(maxGasPriceGwei float64) *GasPolicy {
	return &GasPolicy{maxGasPriceGwei: maxGasPriceGwei}
}

// Quote reads the node's current base fee (eth_gasPrice) and suggested
// priority fee (eth_maxPriorityFeePerGas), rejecting with
// GasTooHighError when the base fee exceeds the configured cap.
func (g *GasPolicy) Quote(ctx context.Context, client *ethclient.Client) (FeeQuote, error) {
	baseFee, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return FeeQuote{}, fmt.Errorf("web3: suggest gas price: %w", err)
	}
	priorityFee, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return FeeQuote{}, fmt.Errorf("web3: suggest priority fee: %w", err)
	}

	capWei := gweiToWei(g.maxGasPriceGwei)
	if baseFee.Cmp(capWei) > 0 {
		return FeeQuote{}, &GasTooHighError{BaseFeeGwei: weiToGwei(baseFee), CapGwei: g.maxGasPriceGwei}
	}

	maxFee := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), priorityFee)
	return FeeQuote{BaseFee: baseFee, PriorityFee: priorityFee, MaxFee: maxFee}, nil
}

// weiGweiFactor is the exact 10^9 wei-per-gwei conversion factor. Gas
// price comparisons against the configured cap use shopspring/decimal
// rather than big.Float so that repeated gwei<->wei round trips never
// accumulate binary-floating-point drift near the cap boundary (spec.md
// §4.6's "base_fee = cap" boundary case must compare exactly).
var weiGweiFactor = decimal.New(1, 9)

func weiToGwei(wei *big.Int) float64 {
	d := decimal.NewFromBigInt(wei, 0).Div(weiGweiFactor)
	out, _ := d.Float64()
	return out
}

func gweiToWei(gwei float64) *big.Int {
	d := decimal.NewFromFloat(gwei).Mul(weiGweiFactor)
	return d.BigInt()
}

// EstimateSingleGas estimates gas for one updateSentiment call, falling
// back to the spec's flat default (150_000) if estimation fails.
func (g *GasPolicy) EstimateSingleGas(ctx context.Context, client *ethclient.Client, msg ethereum.CallMsg) uint64 {
	if est, err := client.EstimateGas(ctx, msg); err == nil {
		return est
	}
	return defaultSingleUpdateGas
}

// EstimateBatchGas estimates gas for a batchUpdateSentiment call of n
// items, applying a 20% buffer over whichever figure (estimated or the
// 50_000 + 100_000*n fallback formula) is used.
func (g *GasPolicy) EstimateBatchGas(ctx context.Context, client *ethclient.Client, msg ethereum.CallMsg, n int) uint64 {
	gas, err := client.EstimateGas(ctx, msg)
	if err != nil {
		gas = defaultBatchBaseGas + defaultBatchPerItemGas*uint64(n)
	}
	return gas + gas*batchGasBufferPercent/100
}
