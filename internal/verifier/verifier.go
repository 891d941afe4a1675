package verifier

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	"github.com/insoblok/inso-txpool/internal/mempool"
)

// DefaultMaxTxSize is the largest encoded transaction accepted, in bytes.
const DefaultMaxTxSize = 128 * 1024

var (
	// ErrNilTransaction is returned when there is nothing to verify.
	ErrNilTransaction = errors.New("nil transaction")

	// ErrOversizedData is returned when the encoded transaction exceeds MaxTxSize.
	ErrOversizedData = errors.New("oversized data")

	// ErrGasLimit is returned when the gas limit exceeds the block gas limit.
	ErrGasLimit = errors.New("exceeds block gas limit")

	// ErrIntrinsicGas is returned when the gas limit is below the cost of a plain transfer.
	ErrIntrinsicGas = errors.New("intrinsic gas too low")

	// ErrGasPriceOverflow is returned when the gas price does not fit in 256 bits.
	ErrGasPriceOverflow = errors.New("gas price higher than 2^256-1")

	// ErrUnderpriced is returned when a remote transaction pays less than MinGasPrice.
	ErrUnderpriced = errors.New("transaction underpriced")

	// ErrInvalidSender is returned when the signature does not yield a sender.
	ErrInvalidSender = errors.New("invalid sender")

	// ErrNonceTooLow is returned when the nonce is below the sender's state nonce.
	ErrNonceTooLow = errors.New("nonce too low")
)

// Config holds the static admission rules.
type Config struct {
	ChainID     *big.Int
	MinGasPrice *big.Int // remote transactions only; nil disables the check
	MaxTxSize   uint64   // 0 means DefaultMaxTxSize
	MaxGas      uint64   // block gas limit; 0 disables the check
}

// Verifier performs the stateless checks and the nonce check that gate
// entry to the pool.
type Verifier struct {
	signer types.Signer
	cfg    Config
	nonces mempool.NonceSource
	logger log.Logger
}

// New creates a verifier. nonces may be nil to skip the state nonce check.
func New(cfg Config, nonces mempool.NonceSource) *Verifier {
	if cfg.MaxTxSize == 0 {
		cfg.MaxTxSize = DefaultMaxTxSize
	}
	return &Verifier{
		signer: types.LatestSignerForChainID(cfg.ChainID),
		cfg:    cfg,
		nonces: nonces,
		logger: log.New("module", "verifier"),
	}
}

// VerifyTransaction implements mempool.Verifier.
func (v *Verifier) VerifyTransaction(utx mempool.UnverifiedTransaction) (*mempool.Transaction, error) {
	tx := utx.Tx
	if tx == nil {
		return nil, ErrNilTransaction
	}
	if size := tx.Size(); size > v.cfg.MaxTxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrOversizedData, size, v.cfg.MaxTxSize)
	}
	if v.cfg.MaxGas > 0 && tx.Gas() > v.cfg.MaxGas {
		return nil, fmt.Errorf("%w: have %d, limit %d", ErrGasLimit, tx.Gas(), v.cfg.MaxGas)
	}
	if tx.Gas() < params.TxGas {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGas, tx.Gas(), params.TxGas)
	}
	if tx.GasPrice().BitLen() > 256 {
		return nil, ErrGasPriceOverflow
	}
	if utx.Origin != mempool.OriginLocal && v.cfg.MinGasPrice != nil && tx.GasPrice().Cmp(v.cfg.MinGasPrice) < 0 {
		return nil, fmt.Errorf("%w: have %v, minimum %v", ErrUnderpriced, tx.GasPrice(), v.cfg.MinGasPrice)
	}

	sender, err := types.Sender(v.signer, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSender, err)
	}
	if v.nonces != nil {
		if next := v.nonces.GetNonce(sender); tx.Nonce() < next {
			return nil, fmt.Errorf("%w: address %s, tx %d, state %d", ErrNonceTooLow, sender.Hex(), tx.Nonce(), next)
		}
	}

	verified := mempool.NewTransaction(tx, sender, utx.Origin)
	v.logger.Trace("Transaction verified",
		"hash", verified.Hash().Hex(),
		"sender", sender.Hex(),
		"insertionID", verified.InsertionID(),
	)
	return verified, nil
}
