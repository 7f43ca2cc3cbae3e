package notary

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toxzak-svg/sentibridge/internal/config"
	"github.com/toxzak-svg/sentibridge/internal/web3"
	"github.com/toxzak-svg/sentibridge/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"})
}

func TestMakeDataHash_MatchesJoinConvention(t *testing.T) {
	a := MakeDataHash("post-1", "7500", "2026-07-31T00:00:00Z")
	b := crypto.Keccak256Hash([]byte("post-1|7500|2026-07-31T00:00:00Z"))
	assert.Equal(t, b, a)
}

func TestMakeDataHash_OrderSensitive(t *testing.T) {
	a := MakeDataHash("x", "y")
	b := MakeDataHash("y", "x")
	assert.NotEqual(t, a, b)
}

func TestMakeAndSign_RecoversSignerAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	hexKey := "0x" + common.Bytes2Hex(crypto.FromECDSA(key))
	km, err := web3.NewLocalKeyManager(hexKey, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	dataHash, sig, err := MakeAndSign(ctx, km, "post-42", "8200", "2026-07-31T12:00:00Z")
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.GreaterOrEqual(t, sig[64], byte(27))

	digest := personalSignDigest(dataHash)
	sigForRecover := make([]byte, 65)
	copy(sigForRecover, sig)
	sigForRecover[64] -= 27

	pub, err := crypto.SigToPub(digest[:], sigForRecover)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(*pub))
}
