package mempool

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/btree"
	"github.com/holiman/uint256"
)

// scoredTx is an entry of the global priority index.
type scoredTx struct {
	score uint256.Int
	tx    *Transaction
}

// worseThan orders the global index from worst to best: lower score first,
// then later insertion first.
func worseThan(a, b scoredTx) bool {
	if c := a.score.Cmp(&b.score); c != 0 {
		return c < 0
	}
	if a.tx.insertionID != b.tx.insertionID {
		return a.tx.insertionID > b.tx.insertionID
	}
	return bytes.Compare(a.tx.hash[:], b.tx.hash[:]) < 0
}

// senderQueue holds one sender's transactions in Scoring.Compare order
// together with their scores.
type senderQueue struct {
	txs     []*Transaction
	scores  []uint256.Int
	penalty uint
}

// search returns the position of tx's slot and whether it is occupied.
func (q *senderQueue) search(s Scoring, tx *Transaction) (int, bool) {
	i := sort.Search(len(q.txs), func(i int) bool { return s.Compare(q.txs[i], tx) >= 0 })
	return i, i < len(q.txs) && s.Compare(q.txs[i], tx) == 0
}

// indexOf returns the position of exactly tx, or -1.
func (q *senderQueue) indexOf(s Scoring, tx *Transaction) int {
	if i, ok := q.search(s, tx); ok && q.txs[i] == tx {
		return i
	}
	return slices.Index(q.txs, tx)
}

// Pool is a capacity-bounded, priority-ordered transaction pool. Every
// resident transaction is reachable through the hash lookup, its sender's
// nonce-ordered queue and the global priority index; all three are only
// changed through mutate.
type Pool struct {
	mu sync.RWMutex

	opts     Options
	scoring  Scoring
	verifier Verifier
	listener Listener

	all      map[common.Hash]*Transaction
	senders  map[common.Address]*senderQueue
	index    *btree.BTreeG[scoredTx]
	memUsage uint64

	logger log.Logger
}

// New creates an empty pool. A nil scoring defaults to NonceAndGasPrice, a
// nil listener to NoopListener. The verifier may be nil if only
// ImportVerified is used.
func New(opts Options, scoring Scoring, verifier Verifier, listener Listener) *Pool {
	if scoring == nil {
		scoring = NonceAndGasPrice{}
	}
	if listener == nil {
		listener = NoopListener{}
	}
	opts = opts.sanitize()
	p := &Pool{
		opts:     opts,
		scoring:  scoring,
		verifier: verifier,
		listener: listener,
		all:      make(map[common.Hash]*Transaction, opts.MaxCount),
		senders:  make(map[common.Address]*senderQueue),
		index:    btree.NewG[scoredTx](32, worseThan),
		logger:   log.New("module", "txpool"),
	}
	return p
}

// Options returns the capacity limits the pool was built with.
func (p *Pool) Options() Options { return p.opts }

// Import verifies tx and admits it. Verifier errors are returned unchanged.
func (p *Pool) Import(tx UnverifiedTransaction) (*Transaction, error) {
	if p.verifier == nil {
		return nil, ErrNoVerifier
	}
	verified, err := p.verifier.VerifyTransaction(tx)
	if err != nil {
		return nil, err
	}
	return p.ImportVerified(verified)
}

// ImportVerified admits an already verified transaction.
func (p *Pool) ImportVerified(tx *Transaction) (*Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.add(tx); err != nil {
		p.listener.Rejected(tx, err)
		return nil, err
	}
	return tx, nil
}

func (p *Pool) add(tx *Transaction) error {
	hash := tx.Hash()
	if _, ok := p.all[hash]; ok {
		return &AlreadyImportedError{Hash: hash}
	}

	q := p.senders[tx.Sender()]
	if q != nil {
		if i, ok := q.search(p.scoring, tx); ok {
			return p.replace(q.txs[i], tx)
		}
	}

	var victims []*Transaction
	if q != nil && len(q.txs) >= p.opts.MaxPerSender {
		worst := q.txs[len(q.txs)-1]
		if !p.scoring.ShouldReplace(worst, tx) {
			return &TooCheapToEnterError{Hash: hash}
		}
		victims = append(victims, worst)
	}
	victims, err := p.makeRoom(tx, len(p.all)+1, p.memUsage+tx.MemUsage(), victims, nil)
	if err != nil {
		return err
	}
	p.evict(victims, tx)
	p.insert(tx)

	p.logger.Debug("Transaction imported",
		"hash", hash.Hex(),
		"sender", tx.Sender().Hex(),
		"nonce", tx.Nonce(),
		"evicted", len(victims),
		"poolSize", len(p.all),
	)
	p.listener.Added(tx, nil)
	return nil
}

// replace resolves a collision between the resident old and tx.
func (p *Pool) replace(old, tx *Transaction) error {
	switch choice := p.scoring.Choose(old, tx); choice {
	case RejectNew:
		return &TooCheapToReplaceError{Old: old.Hash(), New: tx.Hash()}
	case ReplaceOld:
		victims, err := p.makeRoom(tx, len(p.all), p.memUsage-old.MemUsage()+tx.MemUsage(), nil, old)
		if err != nil {
			return err
		}
		p.evict(victims, tx)
		p.swap(old, tx)

		p.logger.Debug("Transaction replaced",
			"hash", tx.Hash().Hex(),
			"old", old.Hash().Hex(),
			"sender", tx.Sender().Hex(),
			"nonce", tx.Nonce(),
		)
		p.listener.Added(tx, old)
		return nil
	default:
		return fmt.Errorf("%w: %s at nonce %d", ErrInvalidChoice, choice, tx.Nonce())
	}
}

// makeRoom picks the transactions to evict so that count entries using mem
// bytes fit the limits, on top of the already chosen victims. It walks the
// global index from the worst entry up and refuses as soon as an entry is not
// worth replacing by tx. Nothing is evicted here.
func (p *Pool) makeRoom(tx *Transaction, count int, mem uint64, victims []*Transaction, keep *Transaction) ([]*Transaction, error) {
	for _, v := range victims {
		count--
		mem -= v.MemUsage()
	}
	fits := func() bool { return count <= p.opts.MaxCount && mem <= p.opts.MaxMemUsage }
	if fits() {
		return victims, nil
	}
	refused := false
	p.index.Ascend(func(item scoredTx) bool {
		if fits() {
			return false
		}
		if item.tx == keep || slices.Contains(victims, item.tx) {
			return true
		}
		if !p.scoring.ShouldReplace(item.tx, tx) {
			refused = true
			return false
		}
		victims = append(victims, item.tx)
		count--
		mem -= item.tx.MemUsage()
		return true
	})
	if refused || !fits() {
		return nil, &TooCheapToEnterError{Hash: tx.Hash()}
	}
	return victims, nil
}

// evict removes victims to make room for by.
func (p *Pool) evict(victims []*Transaction, by *Transaction) {
	for _, v := range victims {
		p.remove(v)
		p.logger.Debug("Transaction dropped", "hash", v.Hash().Hex(), "by", by.Hash().Hex())
		p.listener.Dropped(v, by)
	}
}

// mutate applies fn to the queue of sender and resynchronises the global
// index with the rescored queue.
func (p *Pool) mutate(sender common.Address, fn func(q *senderQueue) Change) {
	q := p.senders[sender]
	if q == nil {
		q = new(senderQueue)
		p.senders[sender] = q
	}
	for i, tx := range q.txs {
		p.index.Delete(scoredTx{score: q.scores[i], tx: tx})
	}
	change := fn(q)
	if len(q.txs) == 0 {
		delete(p.senders, sender)
		return
	}
	change.Penalty = q.penalty
	p.scoring.UpdateScores(q.txs, q.scores, change)
	for i, tx := range q.txs {
		p.index.ReplaceOrInsert(scoredTx{score: q.scores[i], tx: tx})
	}
}

func (p *Pool) insert(tx *Transaction) {
	p.mutate(tx.Sender(), func(q *senderQueue) Change {
		i, _ := q.search(p.scoring, tx)
		q.txs = slices.Insert(q.txs, i, tx)
		q.scores = slices.Insert(q.scores, i, uint256.Int{})
		p.all[tx.Hash()] = tx
		p.memUsage += tx.MemUsage()
		return Change{Kind: InsertedAt, Index: i}
	})
}

func (p *Pool) swap(old, tx *Transaction) {
	p.mutate(old.Sender(), func(q *senderQueue) Change {
		i := q.indexOf(p.scoring, old)
		q.txs[i] = tx
		delete(p.all, old.Hash())
		p.all[tx.Hash()] = tx
		p.memUsage = p.memUsage - old.MemUsage() + tx.MemUsage()
		return Change{Kind: ReplacedAt, Index: i}
	})
}

func (p *Pool) remove(tx *Transaction) {
	p.mutate(tx.Sender(), func(q *senderQueue) Change {
		i := q.indexOf(p.scoring, tx)
		q.txs = slices.Delete(q.txs, i, i+1)
		q.scores = slices.Delete(q.scores, i, i+1)
		delete(p.all, tx.Hash())
		p.memUsage -= tx.MemUsage()
		return Change{Kind: RemovedAt, Index: i}
	})
}

// Remove takes the transaction with the given hash out of the pool without
// notifying the listener; the caller decides what the removal means. It
// returns nil if the hash is not resident.
func (p *Pool) Remove(hash common.Hash) *Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := p.all[hash]
	if tx == nil {
		return nil
	}
	p.remove(tx)
	return tx
}

// Mined removes the transactions included in a block and reports them as
// mined. Unknown hashes are skipped.
func (p *Pool) Mined(hashes ...common.Hash) []*Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []*Transaction
	for _, hash := range hashes {
		tx := p.all[hash]
		if tx == nil {
			continue
		}
		p.remove(tx)
		p.listener.Mined(tx)
		removed = append(removed, tx)
	}
	return removed
}

// Invalidate removes a transaction found invalid against new chain state.
func (p *Pool) Invalidate(hash common.Hash) *Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := p.all[hash]
	if tx == nil {
		return nil
	}
	p.remove(tx)
	p.listener.Invalid(tx)
	return tx
}

// Cancel removes a transaction on explicit request.
func (p *Pool) Cancel(hash common.Hash) *Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := p.all[hash]
	if tx == nil {
		return nil
	}
	p.remove(tx)
	p.listener.Canceled(tx)
	return tx
}

// Cull removes the stalled prefix of each given sender's queue, all senders
// if senders is nil, and returns how many transactions were removed.
func (p *Pool) Cull(senders []common.Address, ready ReadyChecker) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if senders == nil {
		senders = make([]common.Address, 0, len(p.senders))
		for addr := range p.senders {
			senders = append(senders, addr)
		}
	}
	var culled int
	for _, addr := range senders {
		q := p.senders[addr]
		if q == nil {
			continue
		}
		n := 0
		for n < len(q.txs) && ready.IsReady(q.txs[n]) == Stalled {
			n++
		}
		if n == 0 {
			continue
		}
		stale := slices.Clone(q.txs[:n])
		p.mutate(addr, func(q *senderQueue) Change {
			for _, tx := range stale {
				delete(p.all, tx.Hash())
				p.memUsage -= tx.MemUsage()
			}
			q.txs = slices.Delete(q.txs, 0, n)
			q.scores = slices.Delete(q.scores, 0, n)
			return Change{Kind: Culled, Index: n}
		})
		for _, tx := range stale {
			p.listener.Culled(tx)
		}
		culled += n
	}
	if culled > 0 {
		p.logger.Debug("Culled stalled transactions", "count", culled, "poolSize", len(p.all))
	}
	return culled
}

// UpdateScores passes a scoring event to every transaction of sender. A
// PenalizeEvent raises the sender's penalty, which applies to every later
// rescoring until the sender has no transactions left.
func (p *Pool) UpdateScores(sender common.Address, event any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.senders[sender]; !ok {
		return
	}
	p.mutate(sender, func(q *senderQueue) Change {
		if _, ok := event.(PenalizeEvent); ok {
			q.penalty++
		}
		return Change{Kind: Event, Event: event}
	})
}

// Clear empties the pool without notifying the listener.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.all = make(map[common.Hash]*Transaction, p.opts.MaxCount)
	p.senders = make(map[common.Address]*senderQueue)
	p.index.Clear(false)
	p.memUsage = 0
}

// Find returns the resident transaction with the given hash, or nil.
func (p *Pool) Find(hash common.Hash) *Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.all[hash]
}

// Contains reports whether hash is resident.
func (p *Pool) Contains(hash common.Hash) bool {
	return p.Find(hash) != nil
}

// SenderCount returns the number of resident transactions of addr.
func (p *Pool) SenderCount(addr common.Address) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if q := p.senders[addr]; q != nil {
		return len(q.txs)
	}
	return 0
}

// Worst returns the lowest-priority resident transaction, or nil.
func (p *Pool) Worst() *Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if item, ok := p.index.Min(); ok {
		return item.tx
	}
	return nil
}

// Pending returns an iterator over the includable transactions, best
// first. The iterator owns a snapshot of the pool taken now.
func (p *Pool) Pending(ready ReadyChecker) *PendingIterator {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cursors := make([]*senderCursor, 0, len(p.senders))
	for _, q := range p.senders {
		cursors = append(cursors, q.snapshot())
	}
	return newPendingIterator(ready, cursors)
}

// PendingFrom is Pending restricted to one sender.
func (p *Pool) PendingFrom(sender common.Address, ready ReadyChecker) *PendingIterator {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var cursors []*senderCursor
	if q := p.senders[sender]; q != nil {
		cursors = append(cursors, q.snapshot())
	}
	return newPendingIterator(ready, cursors)
}

func (q *senderQueue) snapshot() *senderCursor {
	return &senderCursor{
		txs:    slices.Clone(q.txs),
		scores: slices.Clone(q.scores),
	}
}

// Status runs every resident transaction through ready. It is O(n).
func (p *Pool) Status(ready ReadyChecker) Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var status Status
	for _, q := range p.senders {
		for _, tx := range q.txs {
			switch ready.IsReady(tx) {
			case Stalled:
				status.Stalled++
			case Ready:
				status.Pending++
			case Future:
				status.Future++
			}
		}
	}
	return status
}

// LightStatus reports occupancy in constant time.
func (p *Pool) LightStatus() LightStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return LightStatus{
		MemUsage:         p.memUsage,
		TransactionCount: len(p.all),
		Senders:          len(p.senders),
	}
}
