package mempool

import "github.com/ethereum/go-ethereum/common"

// Verifier turns untrusted input into a pool transaction. Its errors are
// returned by Pool.Import untouched.
type Verifier interface {
	VerifyTransaction(tx UnverifiedTransaction) (*Transaction, error)
}

// TxPool is the part of Pool used by the RPC surface.
type TxPool interface {
	// Import verifies and admits a transaction.
	Import(tx UnverifiedTransaction) (*Transaction, error)

	// Find returns the resident transaction with the given hash, or nil.
	Find(hash common.Hash) *Transaction

	// Cancel removes a resident transaction on request.
	Cancel(hash common.Hash) *Transaction

	// Pending returns the includable transactions, best first.
	Pending(ready ReadyChecker) *PendingIterator

	// PendingFrom returns the includable transactions of one sender.
	PendingFrom(sender common.Address, ready ReadyChecker) *PendingIterator

	// Status classifies every resident transaction.
	Status(ready ReadyChecker) Status

	// LightStatus reports occupancy in constant time.
	LightStatus() LightStatus
}

// LightStatus is the O(1) view of pool occupancy.
type LightStatus struct {
	MemUsage         uint64 `json:"memUsage"`
	TransactionCount int    `json:"transactionCount"`
	Senders          int    `json:"senders"`
}

// Status is the readiness breakdown of all resident transactions.
type Status struct {
	Stalled int `json:"stalled"`
	Pending int `json:"pending"`
	Future  int `json:"future"`
}

var _ TxPool = (*Pool)(nil)
