// Package web3 implements the key manager and oracle submitter: local and
// remote-KMS transaction signing, gas policy, EIP-1559 transaction
// construction, and confirmation-wait logic, grounded on
// original_source/workers/src/blockchain/{key_manager,oracle_submitter}.py
// and the teacher's internal/web3/gas_optimizer.go /
// internal/web3/hardware_wallet.go for the go-ethereum client idiom.
package web3

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/toxzak-svg/sentibridge/pkg/observability"
)

// KeyManager is the common contract every signer variant implements
// (spec.md §4.5): initialize, sign a 32-byte digest, report the derived
// address, release resources. Transaction signing and notary
// personal-sign both build on SignDigest, so local and KMS variants need
// only one signing primitive each.
type KeyManager interface {
	Initialize(ctx context.Context) error
	Address() common.Address
	// SignDigest signs a 32-byte digest, returning a 65-byte
	// r||s||v signature with v in {0,1}.
	SignDigest(ctx context.Context, digest [32]byte) ([]byte, error)
	Close() error
}

// LocalKeyManager loads a single private key from configuration and signs
// locally. Not intended for production use (spec.md §4.5); Initialize
// logs a prominent warning each time it is called.
type LocalKeyManager struct {
	privKey *ecdsa.PrivateKey
	address common.Address
	logger  *observability.Logger
}

// NewLocalKeyManager parses hexKey (with or without a 0x prefix) and
// derives its public address. The key bytes live only in privKey.D and
// are scrubbed on Close.
func NewLocalKeyManager(hexKey string, logger *observability.Logger) (*LocalKeyManager, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
	if err != nil {
		return nil, fmt.Errorf("web3: local key manager: invalid private key: %w", err)
	}
	return &LocalKeyManager{
		privKey: key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		logger:  logger,
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func (k *LocalKeyManager) Initialize(ctx context.Context) error {
	k.logger.Warn(ctx, "local key manager active: signing with an in-process private key is not intended for production", map[string]interface{}{
		"signer_address": k.address.Hex(),
	})
	return nil
}

func (k *LocalKeyManager) Address() common.Address { return k.address }

func (k *LocalKeyManager) SignDigest(ctx context.Context, digest [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], k.privKey)
	if err != nil {
		return nil, &SignerError{Op: "sign", Err: err}
	}
	return sig, nil
}

// Close scrubs the private key's scalar from memory. The big.Int backing
// array is zeroed in place before the reference is dropped.
func (k *LocalKeyManager) Close() error {
	if k.privKey != nil && k.privKey.D != nil {
		words := k.privKey.D.Bits()
		for i := range words {
			words[i] = 0
		}
		k.privKey.D.SetInt64(0)
	}
	k.privKey = nil
	return nil
}
