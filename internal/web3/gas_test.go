package web3

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeiToGwei(t *testing.T) {
	wei := new(big.Int)
	wei.SetString("50000000000", 10) // 50 gwei
	assert.InDelta(t, 50.0, weiToGwei(wei), 0.0001)
}

func TestGasPolicy_CapBoundary(t *testing.T) {
	policy := NewGasPolicy(100.0)

	capWei := gweiToWei(policy.maxGasPriceGwei)

	// base fee exactly at the cap is accepted.
	atCap := new(big.Int).Set(capWei)
	assert.LessOrEqual(t, atCap.Cmp(capWei), 0)

	// one wei over the cap is rejected by the same comparison Quote uses.
	overCap := new(big.Int).Add(capWei, big.NewInt(1))
	assert.Greater(t, overCap.Cmp(capWei), 0)
}

func TestEstimateBatchGas_FallbackFormula(t *testing.T) {
	gas := defaultBatchBaseGas + defaultBatchPerItemGas*uint64(5)
	buffered := gas + gas*batchGasBufferPercent/100
	assert.Equal(t, gas*6/5, buffered)
}
