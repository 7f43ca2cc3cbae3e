package web3

import "fmt"

// GasTooHighError rejects a submission attempt when the observed base fee
// exceeds the configured cap (spec.md §4.6, §7). Nothing is sent for the
// rejected tokens; the orchestrator has already reset their accumulators
// for the cycle, so their data is not carried into the next one.
type GasTooHighError struct {
	BaseFeeGwei float64
	CapGwei     float64
}

func (e *GasTooHighError) Error() string {
	return fmt.Sprintf("web3: base fee %.2f gwei exceeds cap %.2f gwei", e.BaseFeeGwei, e.CapGwei)
}

// NonceError wraps a failure to read or resynchronize the signer's nonce
// (spec.md §7). Repeated failures should transition the worker to its
// Error state.
type NonceError struct {
	Op  string
	Err error
}

func (e *NonceError) Error() string { return fmt.Sprintf("web3: nonce %s: %v", e.Op, e.Err) }
func (e *NonceError) Unwrap() error { return e.Err }

// SignerError covers an unreachable KMS or an exhausted recovery-id
// search (spec.md §4.5, §7). The submission fails; the caller retries
// next cycle.
type SignerError struct {
	Op  string
	Err error
}

func (e *SignerError) Error() string { return fmt.Sprintf("web3: signer %s: %v", e.Op, e.Err) }
func (e *SignerError) Unwrap() error { return e.Err }

// ConfirmationTimeoutError marks a transaction whose receipt never
// surfaced within the configured timeout (spec.md §4.6, §7). The nonce is
// not reused; the transaction may still confirm later.
type ConfirmationTimeoutError struct {
	TxHash string
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("web3: confirmation timeout waiting for tx %s", e.TxHash)
}
