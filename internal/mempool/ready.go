package mempool

import "github.com/ethereum/go-ethereum/common"

// Readiness classifies a transaction against the state a block would be
// built on.
type Readiness int

const (
	// Stalled transactions can never be included (e.g. nonce already used).
	Stalled Readiness = iota
	// Ready transactions can be included right now.
	Ready
	// Future transactions wait for a gap to be filled.
	Future
)

func (r Readiness) String() string {
	switch r {
	case Stalled:
		return "stalled"
	case Ready:
		return "ready"
	case Future:
		return "future"
	default:
		return "unknown"
	}
}

// ReadyChecker decides readiness. Implementations are usually stateful for
// the duration of one Pending or Status call: each Ready answer is taken as
// "this transaction will be included", so build a fresh checker per call
// unless carrying state over is intended.
type ReadyChecker interface {
	IsReady(tx *Transaction) Readiness
}

// ReadyFunc adapts a function to the ReadyChecker interface.
type ReadyFunc func(tx *Transaction) Readiness

// IsReady calls f(tx).
func (f ReadyFunc) IsReady(tx *Transaction) Readiness { return f(tx) }

// NonceSource yields the next nonce each account must use, usually the
// committed chain state.
type NonceSource interface {
	GetNonce(addr common.Address) uint64
}

// NonceReady tracks the next expected nonce of every sender it has seen.
// A transaction is Ready when its nonce matches, Future when it is ahead and
// Stalled when it is behind. Each Ready answer advances the sender.
type NonceReady struct {
	nonces map[common.Address]uint64
	source NonceSource
	start  uint64
}

// NewNonceReady creates a checker whose senders all start at nonce start.
func NewNonceReady(start uint64) *NonceReady {
	return &NonceReady{nonces: make(map[common.Address]uint64), start: start}
}

// NewStateNonceReady creates a checker that seeds each sender from source
// the first time the sender is seen.
func NewStateNonceReady(source NonceSource) *NonceReady {
	return &NonceReady{nonces: make(map[common.Address]uint64), source: source}
}

// SetNonce overrides the expected nonce of addr.
func (r *NonceReady) SetNonce(addr common.Address, nonce uint64) {
	r.nonces[addr] = nonce
}

// Nonce returns the nonce addr is currently expected to use next.
func (r *NonceReady) Nonce(addr common.Address) uint64 {
	if n, ok := r.nonces[addr]; ok {
		return n
	}
	if r.source != nil {
		n := r.source.GetNonce(addr)
		r.nonces[addr] = n
		return n
	}
	return r.start
}

// IsReady implements ReadyChecker.
func (r *NonceReady) IsReady(tx *Transaction) Readiness {
	sender := tx.Sender()
	expected := r.Nonce(sender)
	switch nonce := tx.Nonce(); {
	case nonce == expected:
		r.nonces[sender] = expected + 1
		return Ready
	case nonce > expected:
		return Future
	default:
		return Stalled
	}
}
