package mempool

import (
	"container/heap"

	"github.com/holiman/uint256"
)

// senderCursor walks a snapshot of one sender's queue.
type senderCursor struct {
	txs    []*Transaction
	scores []uint256.Int
	pos    int
}

// pendingHead is the next unconsumed transaction of a sender.
type pendingHead struct {
	cursor *senderCursor
	index  int // position in the heap, -1 once popped
}

func (h *pendingHead) tx() *Transaction     { return h.cursor.txs[h.cursor.pos] }
func (h *pendingHead) score() *uint256.Int { return &h.cursor.scores[h.cursor.pos] }

// headQueue implements heap.Interface over sender heads.
// Higher score = popped first (max-heap).
type headQueue []*pendingHead

func (q headQueue) Len() int { return len(q) }

func (q headQueue) Less(i, j int) bool {
	// Higher score first
	if c := q[i].score().Cmp(q[j].score()); c != 0 {
		return c > 0
	}
	// Earlier verified first
	return q[i].tx().InsertionID() < q[j].tx().InsertionID()
}

func (q headQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *headQueue) Push(x interface{}) {
	item := x.(*pendingHead)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *headQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*q = old[:n-1]
	return item
}

// PendingIterator yields includable transactions, merging the per-sender
// nonce queues by descending score. It consumes its ReadyChecker and cannot
// be restarted. It works on a snapshot, so the pool may change while it is
// being drained.
type PendingIterator struct {
	ready ReadyChecker
	heads headQueue
	last  *pendingHead // head that produced the last transaction
}

func newPendingIterator(ready ReadyChecker, cursors []*senderCursor) *PendingIterator {
	it := &PendingIterator{
		ready: ready,
		heads: make(headQueue, 0, len(cursors)),
	}
	for _, c := range cursors {
		if len(c.txs) > 0 {
			it.heads = append(it.heads, &pendingHead{cursor: c, index: len(it.heads)})
		}
	}
	heap.Init(&it.heads)
	return it
}

// Next returns the next ready transaction, or nil once exhausted.
func (it *PendingIterator) Next() *Transaction {
	for it.heads.Len() > 0 {
		head := it.heads[0]
		tx := head.tx()
		switch it.ready.IsReady(tx) {
		case Ready:
			it.advance(head)
			it.last = head
			return tx
		case Stalled:
			// Obsolete nonce, the next one may still be ready.
			it.advance(head)
		default:
			// Nothing behind a future nonce can be ready either.
			heap.Pop(&it.heads)
		}
	}
	return nil
}

// SkipSender drops the remaining transactions of the sender of the last
// transaction returned by Next. Block builders call it when that transaction
// does not fit, since nothing behind it can be included either.
func (it *PendingIterator) SkipSender() {
	if it.last == nil {
		return
	}
	if it.last.index >= 0 {
		heap.Remove(&it.heads, it.last.index)
	}
	it.last = nil
}

// Collect drains up to n transactions. n <= 0 drains everything.
func (it *PendingIterator) Collect(n int) []*Transaction {
	var out []*Transaction
	for n <= 0 || len(out) < n {
		tx := it.Next()
		if tx == nil {
			break
		}
		out = append(out, tx)
	}
	return out
}

// advance moves the top head to its sender's next transaction.
func (it *PendingIterator) advance(head *pendingHead) {
	head.cursor.pos++
	if head.cursor.pos >= len(head.cursor.txs) {
		heap.Pop(&it.heads)
		return
	}
	heap.Fix(&it.heads, 0)
}
