package mempool

import (
	"cmp"

	"github.com/holiman/uint256"
)

// Choice is the outcome of a same-slot collision between a resident and an
// incoming transaction.
type Choice int

const (
	// InsertNew keeps both transactions. Only valid when the slots differ.
	InsertNew Choice = iota
	// ReplaceOld evicts the resident transaction in favour of the new one.
	ReplaceOld
	// RejectNew keeps the resident transaction.
	RejectNew
)

func (c Choice) String() string {
	switch c {
	case InsertNew:
		return "insert"
	case ReplaceOld:
		return "replace"
	case RejectNew:
		return "reject"
	default:
		return "unknown"
	}
}

// ChangeKind identifies the structural change applied to a sender queue.
type ChangeKind int

const (
	// InsertedAt: a transaction was inserted at Change.Index.
	InsertedAt ChangeKind = iota
	// RemovedAt: the transaction previously at Change.Index was removed.
	RemovedAt
	// ReplacedAt: the transaction at Change.Index was swapped for a new one.
	ReplacedAt
	// Culled: Change.Index transactions were removed from the front of the queue.
	Culled
	// Event: an external scoring event (Change.Event) concerns the whole queue.
	Event
)

// Change describes why UpdateScores is invoked.
type Change struct {
	Kind  ChangeKind
	Index int
	Event any

	// Penalty is how many times the sender has been penalized. The pool
	// tracks it per sender and sets it on every change.
	Penalty uint
}

// Scoring orders transactions and decides replacements. Scores are
// set-relative: UpdateScores always sees the full queue of one sender and may
// rewrite any score in it.
type Scoring interface {
	// Compare orders two transactions of the same sender. Zero means both
	// occupy the same slot.
	Compare(old, new *Transaction) int

	// Choose decides a same-slot collision.
	Choose(old, new *Transaction) Choice

	// UpdateScores recomputes scores after change has been applied to txs.
	// len(scores) == len(txs); the score of a newly inserted slot starts at zero.
	UpdateScores(txs []*Transaction, scores []uint256.Int, change Change)

	// ShouldReplace reports whether new is worth more than old when old would
	// have to be evicted to make room, possibly across senders.
	ShouldReplace(old, new *Transaction) bool
}

// PenalizeEvent is the scoring event that demotes every transaction of a
// sender. The demotion sticks until the sender leaves the pool.
type PenalizeEvent struct{}

// penaltyShift is how far a penalized sender's scores are shifted right.
const penaltyShift = 3

// NonceAndGasPrice is the default scoring: queues are ordered by nonce and a
// transaction's score is its gas price.
type NonceAndGasPrice struct {
	// PriceBump is the minimum percentage increase a replacement must offer.
	// Zero only requires the new price to be strictly higher.
	PriceBump uint64
}

// Compare orders by nonce.
func (s NonceAndGasPrice) Compare(oldTx, newTx *Transaction) int {
	return cmp.Compare(oldTx.Nonce(), newTx.Nonce())
}

// Choose replaces the resident transaction only if the newcomer pays more.
// At equal price the transaction verified first wins.
func (s NonceAndGasPrice) Choose(oldTx, newTx *Transaction) Choice {
	if s.PriceBump > 0 {
		threshold := uint256.NewInt(100 + s.PriceBump)
		threshold.Mul(threshold, oldTx.gasPriceRef())
		threshold.Div(threshold, uint256.NewInt(100))
		if newTx.gasPriceRef().Lt(threshold) {
			return RejectNew
		}
	}
	if outbids(oldTx, newTx) {
		return ReplaceOld
	}
	return RejectNew
}

// penalized sets dst to the gas price of tx shifted right once per penalty.
func penalized(dst *uint256.Int, tx *Transaction, penalty uint) {
	dst.Rsh(tx.gasPriceRef(), penalty*penaltyShift)
}

// UpdateScores sets the score of a touched slot to its gas price, demoted by
// the sender's penalty. Events rescore every slot.
func (s NonceAndGasPrice) UpdateScores(txs []*Transaction, scores []uint256.Int, change Change) {
	switch change.Kind {
	case InsertedAt, ReplacedAt:
		penalized(&scores[change.Index], txs[change.Index], change.Penalty)
	case RemovedAt, Culled:
	case Event:
		for i := range txs {
			penalized(&scores[i], txs[i], change.Penalty)
		}
	}
}

// ShouldReplace compares gas prices across senders. Within one sender a
// transaction may only push out one with a higher nonce, so eviction never
// opens a gap below the newcomer.
func (s NonceAndGasPrice) ShouldReplace(oldTx, newTx *Transaction) bool {
	if oldTx.Sender() == newTx.Sender() {
		return newTx.Nonce() < oldTx.Nonce()
	}
	return outbids(oldTx, newTx)
}

// CumulativeGasPrice scores each slot by the cheapest gas price among itself
// and all lower nonces of the same sender: a transaction cannot be mined
// before its predecessors, so it is worth no more than they are.
type CumulativeGasPrice struct {
	NonceAndGasPrice
}

// UpdateScores recomputes the running minimum over the whole queue.
func (s CumulativeGasPrice) UpdateScores(txs []*Transaction, scores []uint256.Int, change Change) {
	for i, tx := range txs {
		penalized(&scores[i], tx, change.Penalty)
		if i > 0 && scores[i-1].Lt(&scores[i]) {
			scores[i].Set(&scores[i-1])
		}
	}
}

// outbids reports whether new strictly beats old on price, falling back to
// insertion order at equal price.
func outbids(oldTx, newTx *Transaction) bool {
	switch newTx.gasPriceRef().Cmp(oldTx.gasPriceRef()) {
	case 1:
		return true
	case 0:
		return newTx.InsertionID() < oldTx.InsertionID()
	default:
		return false
	}
}
