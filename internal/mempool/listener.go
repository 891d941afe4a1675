package mempool

import "github.com/ethereum/go-ethereum/log"

// Listener observes the lifecycle of pool transactions. Every callback runs
// after the corresponding pool mutation and before the pool call that caused
// it returns, while the pool's write lock is held: implementations must not
// call back into the pool and must not block.
type Listener interface {
	// Added is called when tx became resident. old is the transaction it
	// replaced at the same slot, or nil.
	Added(tx, old *Transaction)
	// Rejected is called when tx was refused admission.
	Rejected(tx *Transaction, reason error)
	// Dropped is called when tx was evicted to make room; by is the
	// transaction that took its place.
	Dropped(tx, by *Transaction)
	// Invalid is called when a resident tx was found invalid against new state.
	Invalid(tx *Transaction)
	// Canceled is called when a resident tx was removed on request.
	Canceled(tx *Transaction)
	// Culled is called when a resident tx was removed for being stalled.
	Culled(tx *Transaction)
	// Mined is called when a resident tx was included in a block.
	Mined(tx *Transaction)
}

// NoopListener ignores every event. Embed it to implement only some callbacks.
type NoopListener struct{}

func (NoopListener) Added(_, _ *Transaction)           {}
func (NoopListener) Rejected(_ *Transaction, _ error) {}
func (NoopListener) Dropped(_, _ *Transaction)         {}
func (NoopListener) Invalid(_ *Transaction)            {}
func (NoopListener) Canceled(_ *Transaction)           {}
func (NoopListener) Culled(_ *Transaction)             {}
func (NoopListener) Mined(_ *Transaction)              {}

// MultiListener forwards every event to each listener in order.
type MultiListener []Listener

func (m MultiListener) Added(tx, old *Transaction) {
	for _, l := range m {
		l.Added(tx, old)
	}
}

func (m MultiListener) Rejected(tx *Transaction, reason error) {
	for _, l := range m {
		l.Rejected(tx, reason)
	}
}

func (m MultiListener) Dropped(tx, by *Transaction) {
	for _, l := range m {
		l.Dropped(tx, by)
	}
}

func (m MultiListener) Invalid(tx *Transaction) {
	for _, l := range m {
		l.Invalid(tx)
	}
}

func (m MultiListener) Canceled(tx *Transaction) {
	for _, l := range m {
		l.Canceled(tx)
	}
}

func (m MultiListener) Culled(tx *Transaction) {
	for _, l := range m {
		l.Culled(tx)
	}
}

func (m MultiListener) Mined(tx *Transaction) {
	for _, l := range m {
		l.Mined(tx)
	}
}

// LogListener writes every event to a logger at debug level.
type LogListener struct {
	logger log.Logger
}

// NewLogListener creates a listener logging under the "txpool-events" module.
func NewLogListener() *LogListener {
	return &LogListener{logger: log.New("module", "txpool-events")}
}

func (l *LogListener) Added(tx, old *Transaction) {
	if old != nil {
		l.logger.Debug("Transaction replaced",
			"hash", tx.Hash().Hex(),
			"old", old.Hash().Hex(),
			"sender", tx.Sender().Hex(),
			"nonce", tx.Nonce(),
			"gasPrice", tx.GasPrice(),
		)
		return
	}
	l.logger.Debug("Transaction added",
		"hash", tx.Hash().Hex(),
		"sender", tx.Sender().Hex(),
		"nonce", tx.Nonce(),
		"gasPrice", tx.GasPrice(),
		"origin", tx.Origin(),
	)
}

func (l *LogListener) Rejected(tx *Transaction, reason error) {
	l.logger.Debug("Transaction rejected", "hash", tx.Hash().Hex(), "sender", tx.Sender().Hex(), "err", reason)
}

func (l *LogListener) Dropped(tx, by *Transaction) {
	if by == nil {
		l.logger.Debug("Transaction dropped", "hash", tx.Hash().Hex())
		return
	}
	l.logger.Debug("Transaction dropped", "hash", tx.Hash().Hex(), "by", by.Hash().Hex())
}

func (l *LogListener) Invalid(tx *Transaction) {
	l.logger.Debug("Transaction invalidated", "hash", tx.Hash().Hex())
}

func (l *LogListener) Canceled(tx *Transaction) {
	l.logger.Debug("Transaction canceled", "hash", tx.Hash().Hex())
}

func (l *LogListener) Culled(tx *Transaction) {
	l.logger.Debug("Transaction culled", "hash", tx.Hash().Hex(), "nonce", tx.Nonce())
}

func (l *LogListener) Mined(tx *Transaction) {
	l.logger.Debug("Transaction mined", "hash", tx.Hash().Hex())
}
