// Package notary builds and signs the (data_hash, signature) attestation
// pairs an external notary contract can verify: keccak256 over
// "post_id|score_str|timestamp_iso", signed with the Ethereum personal-sign
// convention. Grounded on
// _examples/original_source/workers/src/utils/notary.py, reusing the same
// KeyManager the oracle submitter signs transactions with rather than
// loading a second key (spec.md §6).
package notary

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/toxzak-svg/sentibridge/internal/web3"
)

// MakeDataHash hashes parts joined by "|", matching make_data_hash's
// concatenation scheme exactly.
func MakeDataHash(parts ...string) [32]byte {
	joined := strings.Join(parts, "|")
	return crypto.Keccak256Hash([]byte(joined))
}

// personalSignDigest wraps a 32-byte hash with the Ethereum "personal_sign"
// prefix before hashing again, the convention eth_account's encode_defunct
// follows for a hex-string payload.
func personalSignDigest(dataHash [32]byte) [32]byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(dataHash))
	return crypto.Keccak256Hash([]byte(prefix), dataHash[:])
}

// SignDataHash signs dataHash under the personal-sign convention, using
// km's digest-signing primitive, and normalizes the recovery byte to the
// 27/28 convention most verifiers (including eth_account) expect.
func SignDataHash(ctx context.Context, km web3.KeyManager, dataHash [32]byte) ([]byte, error) {
	digest := personalSignDigest(dataHash)
	sig, err := km.SignDigest(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("notary: sign data hash: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("notary: signature has unexpected length %d", len(sig))
	}
	out := make([]byte, 65)
	copy(out, sig)
	if out[64] < 27 {
		out[64] += 27
	}
	return out, nil
}

// MakeAndSign is the one-call convenience matching make_and_sign: hash
// parts, then sign the hash. Callers typically pass (post_id, score_str,
// timestamp_iso).
func MakeAndSign(ctx context.Context, km web3.KeyManager, parts ...string) (dataHash [32]byte, signature []byte, err error) {
	dataHash = MakeDataHash(parts...)
	signature, err = SignDataHash(ctx, km, dataHash)
	return dataHash, signature, err
}
