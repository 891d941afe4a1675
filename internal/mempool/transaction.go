package mempool

import (
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// txOverhead approximates the bookkeeping cost of one resident transaction
// (struct, index entries, map slot) on top of its encoded size.
const txOverhead = 256

// insertionCounter hands out process-wide insertion ids. The first id is 1.
var insertionCounter atomic.Uint64

// Origin describes where an unverified transaction came from.
type Origin int

const (
	// OriginRemote is a transaction from an untrusted source: a peer, or the
	// public RPC endpoint.
	OriginRemote Origin = iota
	// OriginLocal is a transaction from the node operator, e.g. through an RPC
	// endpoint configured with rpc.local_origin. It is exempt from the minimum
	// gas price.
	OriginLocal
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// UnverifiedTransaction is a transaction as received, before any signature
// or state checks. The pool never looks inside it; it is handed to the
// Verifier as is.
type UnverifiedTransaction struct {
	Tx     *types.Transaction
	Origin Origin
}

// Transaction is a verified, immutable pool entry. The same pointer is shared
// by every index of the pool for as long as the transaction is resident.
type Transaction struct {
	tx          *types.Transaction
	hash        common.Hash
	sender      common.Address
	gasPrice    uint256.Int
	insertionID uint64
	memUsage    uint64
	origin      Origin
}

// NewTransaction wraps a signed transaction whose sender has already been
// recovered. It assigns the next insertion id, so callers must only invoke it
// once verification has succeeded.
func NewTransaction(tx *types.Transaction, sender common.Address, origin Origin) *Transaction {
	t := &Transaction{
		tx:          tx,
		hash:        tx.Hash(),
		sender:      sender,
		insertionID: insertionCounter.Add(1),
		memUsage:    tx.Size() + txOverhead,
		origin:      origin,
	}
	if price, overflow := uint256.FromBig(tx.GasPrice()); !overflow {
		t.gasPrice = *price
	} else {
		t.gasPrice.SetAllOne()
	}
	return t
}

// Tx returns the underlying signed transaction.
func (t *Transaction) Tx() *types.Transaction { return t.tx }

// Hash returns the transaction hash.
func (t *Transaction) Hash() common.Hash { return t.hash }

// Sender returns the recovered sender address.
func (t *Transaction) Sender() common.Address { return t.sender }

// Nonce returns the sender nonce of the transaction.
func (t *Transaction) Nonce() uint64 { return t.tx.Nonce() }

// Gas returns the gas limit of the transaction.
func (t *Transaction) Gas() uint64 { return t.tx.Gas() }

// GasPrice returns a copy of the gas price. For dynamic-fee transactions this
// is the fee cap.
func (t *Transaction) GasPrice() *uint256.Int { return new(uint256.Int).Set(&t.gasPrice) }

// InsertionID is the verification-order sequence number used as the final
// tie-breaker between equally scored transactions.
func (t *Transaction) InsertionID() uint64 { return t.insertionID }

// MemUsage is the estimated number of bytes the transaction keeps alive
// while resident.
func (t *Transaction) MemUsage() uint64 { return t.memUsage }

// Origin reports whether the transaction was submitted locally or by a peer.
func (t *Transaction) Origin() Origin { return t.origin }

// gasPriceRef exposes the price without copying, for comparisons.
func (t *Transaction) gasPriceRef() *uint256.Int { return &t.gasPrice }
