package web3

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/toxzak-svg/sentibridge/internal/config"
	"github.com/toxzak-svg/sentibridge/internal/domain"
	"github.com/toxzak-svg/sentibridge/internal/validate"
	"github.com/toxzak-svg/sentibridge/pkg/observability"
)

// TxState is one of the states a submitted transaction passes through
// (spec.md §4.6).
type TxState string

const (
	TxPending   TxState = "pending"
	TxSubmitted TxState = "submitted"
	TxConfirmed TxState = "confirmed"
	TxFailed    TxState = "failed"
	TxReplaced  TxState = "replaced"
)

// TransactionReceipt is the outcome of one SubmitUpdate/SubmitBatch call.
type TransactionReceipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Status      TxState
	Error       string
}

// Submitter implements the EIP-1559 transaction lifecycle for the oracle
// contract's two entry points (spec.md §4.6): nonce discipline under
// contention, gas policy, signing, broadcast, and confirmation wait.
// Grounded on the teacher's internal/web3/gas_optimizer.go and
// internal/web3/erc20_helpers.go for the ethclient/ABI idiom.
type Submitter struct {
	client     *ethclient.Client
	rpcClient  *rpc.Client
	chainID    *big.Int
	contract   common.Address
	keyManager KeyManager
	gas        *GasPolicy
	cfg        config.ChainConfig
	logger     *observability.Logger
	metrics    *observability.MetricsProvider

	nonceMu sync.Mutex
	nonce   uint64
}

// NewSubmitter dials the configured RPC endpoint, validates the contract
// address, initializes the key manager, and seeds the nonce counter from
// the node's current pending transaction count (spec.md §4.6
// Initialization). Failures here are Fatal per spec.md §7.
func NewSubmitter(ctx context.Context, cfg config.ChainConfig, km KeyManager, logger *observability.Logger, metrics *observability.MetricsProvider) (*Submitter, error) {
	contract, err := validateChecksumAddress(cfg.OracleContractAddr)
	if err != nil {
		return nil, fmt.Errorf("web3: fatal: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("web3: fatal: connect to %s: %w", cfg.RPCURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("web3: fatal: verify chain connection: %w", err)
	}

	s := &Submitter{
		client:     client,
		rpcClient:  client.Client(),
		chainID:    chainID,
		contract:   contract,
		keyManager: km,
		gas:        NewGasPolicy(cfg.MaxGasPriceGwei),
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}

	if err := s.verifyPOAConnection(ctx); err != nil {
		logger.Warn(ctx, "poa extradata compatibility check failed", map[string]interface{}{"error": err.Error()})
	}

	if err := km.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("web3: fatal: initialize key manager: %w", err)
	}

	nonce, err := client.PendingNonceAt(ctx, km.Address())
	if err != nil {
		return nil, fmt.Errorf("web3: fatal: read initial nonce: %w", err)
	}
	s.nonce = nonce

	logger.Info(ctx, "oracle submitter initialized", map[string]interface{}{
		"chain_id":        chainID.String(),
		"contract":        contract.Hex(),
		"signer":          km.Address().Hex(),
		"starting_nonce":  nonce,
	})

	return s, nil
}

func (s *Submitter) Close() error {
	s.client.Close()
	return s.keyManager.Close()
}

// poaHeader decodes only the fields the compatibility check needs,
// bypassing go-ethereum's types.Header (whose 32-byte extraData
// assumption would otherwise reject this chain's 97-byte POA extradata).
type poaHeader struct {
	Number    string `json:"number"`
	ExtraData string `json:"extraData"`
}

func (s *Submitter) verifyPOAConnection(ctx context.Context) error {
	var raw poaHeader
	if err := s.rpcClient.CallContext(ctx, &raw, "eth_getBlockByNumber", "latest", false); err != nil {
		return fmt.Errorf("fetch latest block: %w", err)
	}
	extraDataBytes := 0
	if len(raw.ExtraData) > 2 {
		extraDataBytes = (len(raw.ExtraData) - 2) / 2
	}
	s.logger.Debug(ctx, "poa extradata middleware check", map[string]interface{}{
		"extradata_bytes": extraDataBytes,
	})
	return nil
}

func validateChecksumAddress(addr string) (common.Address, error) {
	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("%q is not a well-formed 0x-prefixed 40-hex-char address", addr)
	}
	hasUpper, hasLower := false, false
	for _, r := range addr[2:] {
		switch {
		case r >= 'a' && r <= 'f':
			hasLower = true
		case r >= 'A' && r <= 'F':
			hasUpper = true
		}
	}
	if hasUpper && hasLower {
		if checksummed := common.HexToAddress(addr).Hex(); checksummed != addr {
			return common.Address{}, fmt.Errorf("%q fails EIP-55 checksum (expected %s)", addr, checksummed)
		}
	}
	return common.HexToAddress(addr), nil
}

// nextNonce atomically takes the current nonce and increments it
// (spec.md §5): guarded by a mutex even under cooperative scheduling,
// since concurrent submit calls may race around network I/O.
func (s *Submitter) nextNonce() uint64 {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()
	n := s.nonce
	s.nonce++
	return n
}

// releaseNonce restores n as the next nonce to hand out, but only if
// nothing else has been assigned since — otherwise rolling back would
// either reuse a nonce already in flight or open a gap (spec.md §5).
func (s *Submitter) releaseNonce(n uint64) {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()
	if s.nonce == n+1 {
		s.nonce = n
	}
}

// resyncNonce re-queries the node's pending transaction count after a
// broadcast failure (spec.md §5, §7 NonceError).
func (s *Submitter) resyncNonce(ctx context.Context) error {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()
	n, err := s.client.PendingNonceAt(ctx, s.keyManager.Address())
	if err != nil {
		return &NonceError{Op: "resync", Err: err}
	}
	s.nonce = n
	return nil
}

func (s *Submitter) buildTx(nonce uint64, gasLimit uint64, fee FeeQuote, data []byte) *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: fee.PriorityFee,
		GasFeeCap: fee.MaxFee,
		Gas:       gasLimit,
		To:        &s.contract,
		Value:     big.NewInt(0),
		Data:      data,
	})
}

// signTransaction hashes tx under the chain's EIP-1559 signing scheme and
// delegates the raw digest signature to the key manager, matching
// spec.md §4.5's single sign_transaction contract generalized to
// digest-signing (shared with internal/notary).
func (s *Submitter) signTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signer := types.NewLondonSigner(s.chainID)
	digest := signer.Hash(tx)
	sig, err := s.keyManager.SignDigest(ctx, digest)
	if err != nil {
		return nil, err
	}
	return tx.WithSignature(signer, sig)
}

// SubmitUpdate sends one updateSentiment transaction and waits for
// confirmation (spec.md §4.6).
func (s *Submitter) SubmitUpdate(ctx context.Context, update domain.OracleUpdate) (*TransactionReceipt, error) {
	if err := validate.ScoreBps(update.Score); err != nil {
		return nil, err
	}

	data, err := oracleABI.Pack("updateSentiment", update.Token,
		big.NewInt(int64(update.Score)), big.NewInt(int64(update.SampleSize)), update.SourceHash)
	if err != nil {
		return nil, fmt.Errorf("web3: pack updateSentiment: %w", err)
	}

	fee, err := s.gas.Quote(ctx, s.client)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.UpdateGasPrice(ctx, weiToGwei(fee.BaseFee))
	}

	from := s.keyManager.Address()
	msg := ethereum.CallMsg{From: from, To: &s.contract, Data: data}
	gasLimit := s.gas.EstimateSingleGas(ctx, s.client, msg)

	return s.sendAndConfirm(ctx, gasLimit, fee, data)
}

// SubmitBatch sends one batchUpdateSentiment transaction for up to the
// contract's batch cap (spec.md §4.6).
func (s *Submitter) SubmitBatch(ctx context.Context, updates []domain.OracleUpdate) (*TransactionReceipt, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("web3: empty batch")
	}
	if len(updates) > s.cfg.BatchSizeCap {
		return nil, fmt.Errorf("web3: batch of %d exceeds contract cap %d", len(updates), s.cfg.BatchSizeCap)
	}

	tokens := make([]string, len(updates))
	scores := make([]*big.Int, len(updates))
	volumes := make([]*big.Int, len(updates))
	hashes := make([][32]byte, len(updates))
	for i, u := range updates {
		if err := validate.ScoreBps(u.Score); err != nil {
			return nil, err
		}
		tokens[i] = u.Token
		scores[i] = big.NewInt(int64(u.Score))
		volumes[i] = big.NewInt(int64(u.SampleSize))
		hashes[i] = u.SourceHash
	}

	data, err := oracleABI.Pack("batchUpdateSentiment", tokens, scores, volumes, hashes)
	if err != nil {
		return nil, fmt.Errorf("web3: pack batchUpdateSentiment: %w", err)
	}

	fee, err := s.gas.Quote(ctx, s.client)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.UpdateGasPrice(ctx, weiToGwei(fee.BaseFee))
	}

	from := s.keyManager.Address()
	msg := ethereum.CallMsg{From: from, To: &s.contract, Data: data}
	gasLimit := s.gas.EstimateBatchGas(ctx, s.client, msg, len(updates))

	return s.sendAndConfirm(ctx, gasLimit, fee, data)
}

func (s *Submitter) sendAndConfirm(ctx context.Context, gasLimit uint64, fee FeeQuote, data []byte) (*TransactionReceipt, error) {
	nonce := s.nextNonce()

	tx := s.buildTx(nonce, gasLimit, fee, data)
	signedTx, err := s.signTransaction(ctx, tx)
	if err != nil {
		s.releaseNonce(nonce)
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	if err := s.client.SendTransaction(sendCtx, signedTx); err != nil {
		s.releaseNonce(nonce)
		if rerr := s.resyncNonce(ctx); rerr != nil {
			s.logger.Error(ctx, "nonce resync after broadcast failure also failed", rerr, nil)
		}
		return nil, fmt.Errorf("web3: broadcast failed: %w", err)
	}

	return s.waitForConfirmation(ctx, signedTx.Hash())
}

// waitForConfirmation polls for the transaction's receipt every 2s up to
// ConfirmationTimeout, requiring ConfirmationBlocks of depth before
// reporting Confirmed/Failed (spec.md §4.6). A timeout returns a Pending
// receipt; the nonce already spent is never reused.
func (s *Submitter) waitForConfirmation(ctx context.Context, txHash common.Hash) (*TransactionReceipt, error) {
	deadline := time.Now().Add(s.cfg.ConfirmationTimeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		if receipt, err := s.client.TransactionReceipt(ctx, txHash); err == nil {
			current, cerr := s.client.BlockNumber(ctx)
			if cerr == nil && current >= receipt.BlockNumber.Uint64()+uint64(s.cfg.ConfirmationBlocks) {
				status := TxFailed
				if receipt.Status == types.ReceiptStatusSuccessful {
					status = TxConfirmed
				}
				return &TransactionReceipt{TxHash: txHash, BlockNumber: receipt.BlockNumber.Uint64(), Status: status}, nil
			}
		}

		if time.Now().After(deadline) {
			return &TransactionReceipt{TxHash: txHash, Status: TxPending, Error: "confirmation timeout"},
				&ConfirmationTimeoutError{TxHash: txHash.Hex()}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
