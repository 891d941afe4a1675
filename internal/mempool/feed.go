package mempool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	lru "github.com/hashicorp/golang-lru/v2"
)

// EventKind names a lifecycle transition.
type EventKind int

const (
	EventAdded EventKind = iota
	EventRejected
	EventDropped
	EventInvalid
	EventCanceled
	EventCulled
	EventMined
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRejected:
		return "rejected"
	case EventDropped:
		return "dropped"
	case EventInvalid:
		return "invalid"
	case EventCanceled:
		return "canceled"
	case EventCulled:
		return "culled"
	case EventMined:
		return "mined"
	default:
		return "unknown"
	}
}

// TxEvent is published by FeedListener.
type TxEvent struct {
	Kind   EventKind
	Tx     *Transaction
	Other  *Transaction // replaced transaction for EventAdded, evictor for EventDropped
	Reason error        // set for EventRejected
}

// FeedListener republishes pool events on an event.Feed. Sends happen under
// the pool lock, so subscribers must drain their channel from a goroutine
// that never waits on the pool.
type FeedListener struct {
	feed  event.Feed
	scope event.SubscriptionScope
}

// NewFeedListener creates an empty feed.
func NewFeedListener() *FeedListener {
	return new(FeedListener)
}

// Subscribe registers ch for all future events.
func (f *FeedListener) Subscribe(ch chan<- TxEvent) event.Subscription {
	return f.scope.Track(f.feed.Subscribe(ch))
}

// Close unsubscribes every subscriber.
func (f *FeedListener) Close() {
	f.scope.Close()
}

func (f *FeedListener) send(ev TxEvent) { f.feed.Send(ev) }

func (f *FeedListener) Added(tx, old *Transaction) {
	f.send(TxEvent{Kind: EventAdded, Tx: tx, Other: old})
}

func (f *FeedListener) Rejected(tx *Transaction, reason error) {
	f.send(TxEvent{Kind: EventRejected, Tx: tx, Reason: reason})
}

func (f *FeedListener) Dropped(tx, by *Transaction) {
	f.send(TxEvent{Kind: EventDropped, Tx: tx, Other: by})
}

func (f *FeedListener) Invalid(tx *Transaction)  { f.send(TxEvent{Kind: EventInvalid, Tx: tx}) }
func (f *FeedListener) Canceled(tx *Transaction) { f.send(TxEvent{Kind: EventCanceled, Tx: tx}) }
func (f *FeedListener) Culled(tx *Transaction)   { f.send(TxEvent{Kind: EventCulled, Tx: tx}) }
func (f *FeedListener) Mined(tx *Transaction)    { f.send(TxEvent{Kind: EventMined, Tx: tx}) }

// RejectionCache remembers why recently refused or evicted transactions are
// not in the pool, bounded to a fixed number of hashes.
type RejectionCache struct {
	NoopListener
	reasons *lru.Cache[common.Hash, string]
}

// NewRejectionCache creates a cache holding up to size reasons.
func NewRejectionCache(size int) (*RejectionCache, error) {
	c, err := lru.New[common.Hash, string](size)
	if err != nil {
		return nil, err
	}
	return &RejectionCache{reasons: c}, nil
}

// Reason returns the recorded reason for hash, if any.
func (c *RejectionCache) Reason(hash common.Hash) (string, bool) {
	return c.reasons.Get(hash)
}

func (c *RejectionCache) Added(tx, _ *Transaction) {
	c.reasons.Remove(tx.Hash())
}

func (c *RejectionCache) Rejected(tx *Transaction, reason error) {
	c.reasons.Add(tx.Hash(), reason.Error())
}

func (c *RejectionCache) Dropped(tx, _ *Transaction) {
	c.reasons.Add(tx.Hash(), "dropped: pool capacity")
}

func (c *RejectionCache) Invalid(tx *Transaction) {
	c.reasons.Add(tx.Hash(), "invalid")
}

func (c *RejectionCache) Culled(tx *Transaction) {
	c.reasons.Add(tx.Hash(), "culled: stalled nonce")
}
