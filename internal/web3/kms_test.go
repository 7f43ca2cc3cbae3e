package web3

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toxzak-svg/sentibridge/internal/config"
	"github.com/toxzak-svg/sentibridge/pkg/observability"
)

// fakeKMS signs locally but speaks the DER-encoded wire format a real KMS
// would, exercising the hand-rolled ASN.1 parsing in kms.go end-to-end.
type fakeKMS struct {
	key *ecdsa.PrivateKey
}

func (f *fakeKMS) GetPublicKey(ctx context.Context, keyID string) ([]byte, error) {
	x := f.key.PublicKey.X.Bytes()
	y := f.key.PublicKey.Y.Bytes()
	xPadded := make([]byte, 32)
	yPadded := make([]byte, 32)
	copy(xPadded[32-len(x):], x)
	copy(yPadded[32-len(y):], y)
	der := append([]byte{}, spkiUncompressedMarker...)
	der = append(der, xPadded...)
	der = append(der, yPadded...)
	return der, nil
}

func (f *fakeKMS) Sign(ctx context.Context, keyID string, digest []byte) ([]byte, error) {
	r, s, err := ecdsaSignRS(f.key, digest)
	if err != nil {
		return nil, err
	}
	return encodeDERSignature(r, s), nil
}

func ecdsaSignRS(key *ecdsa.PrivateKey, digest []byte) (*big.Int, *big.Int, error) {
	return ecdsa.Sign(rand.Reader, key, digest)
}

func encodeDERInteger(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	if b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}
	out := []byte{0x02, byte(len(b))}
	return append(out, b...)
}

func encodeDERSignature(r, s *big.Int) []byte {
	rEnc := encodeDERInteger(r)
	sEnc := encodeDERInteger(s)
	body := append(append([]byte{}, rEnc...), sEnc...)
	return append([]byte{0x30, byte(len(body))}, body...)
}

func TestKMSKeyManager_SignDigest_RecoversConfiguredAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	logger := observability.NewLogger(config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"})
	km := NewKMSKeyManager(&fakeKMS{key: key}, "test-key-1", logger)

	ctx := context.Background()
	require.NoError(t, km.Initialize(ctx))
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), km.Address())

	var digest [32]byte
	copy(digest[:], crypto.Keccak256([]byte("hello oracle")))

	sig, err := km.SignDigest(ctx, digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{0, 1}, sig[64])

	recoverSig := make([]byte, 65)
	copy(recoverSig, sig)
	pub, err := crypto.SigToPub(digest[:], recoverSig)
	require.NoError(t, err)
	assert.Equal(t, km.Address(), crypto.PubkeyToAddress(*pub))
}

func TestNormalizeLowS_FlipsHighS(t *testing.T) {
	n := crypto.S256().Params().N
	high := new(big.Int).Sub(n, big.NewInt(1))
	got := normalizeLowS(high)
	assert.Equal(t, big.NewInt(1), got)

	half := new(big.Int).Rsh(n, 1)
	low := new(big.Int).Sub(half, big.NewInt(1))
	assert.Equal(t, low, normalizeLowS(low))
}

func TestParseDERSignature_RoundTrips(t *testing.T) {
	r := big.NewInt(123456789)
	s := big.NewInt(987654321)
	der := encodeDERSignature(r, s)

	gotR, gotS, err := parseDERSignature(der)
	require.NoError(t, err)
	assert.Equal(t, r, gotR)
	assert.Equal(t, s, gotS)
}

func TestParseDERSignature_RejectsBadTag(t *testing.T) {
	_, _, err := parseDERSignature([]byte{0x31, 0x00})
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "sequence tag")
}
