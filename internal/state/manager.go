package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

// Key prefixes for the state database.
var (
	prefixNonce  = []byte("n") // n + address -> next nonce (big-endian uint64)
	prefixHeader = []byte("b") // b + blockNum -> BlockHeader (RLP)
	keyHead      = []byte("head")
)

// ErrUnexpectedBlock is returned when a block does not extend the current head.
var ErrUnexpectedBlock = errors.New("block does not extend head")

// Manager tracks the committed account nonces and the chain head. It is the
// nonce source of the verifier and of the readiness checks.
type Manager struct {
	mu     sync.RWMutex
	db     ethdb.KeyValueStore
	head   insoTypes.BlockHeader
	logger log.Logger
}

// NewManager opens the state kept in db, restoring the head if one was stored.
func NewManager(db ethdb.KeyValueStore) (*Manager, error) {
	m := &Manager{
		db:     db,
		logger: log.New("module", "state"),
	}
	if data, err := db.Get(keyHead); err == nil && len(data) > 0 {
		if err := rlp.DecodeBytes(data, &m.head); err != nil {
			return nil, fmt.Errorf("decode head: %w", err)
		}
		m.logger.Info("State restored from database", "head", m.head.Number, "hash", m.head.Hash.Hex())
	}
	return m, nil
}

func nonceKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixNonce...), addr.Bytes()...)
}

func headerKey(num uint64) []byte {
	key := append([]byte{}, prefixHeader...)
	return binary.BigEndian.AppendUint64(key, num)
}

// GetNonce returns the next nonce addr must use.
func (m *Manager) GetNonce(addr common.Address) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nonce(addr)
}

func (m *Manager) nonce(addr common.Address) uint64 {
	data, err := m.db.Get(nonceKey(addr))
	if err != nil || len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// SetNonce overwrites the next nonce of addr, e.g. from a genesis allocation.
func (m *Manager) SetNonce(addr common.Address, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(nonceKey(addr), binary.BigEndian.AppendUint64(nil, nonce))
}

// CurrentBlock returns the number of the latest applied block.
func (m *Manager) CurrentBlock() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.head.Number
}

// Head returns a copy of the latest applied header.
func (m *Manager) Head() insoTypes.BlockHeader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.head
}

// HeaderByNumber returns a stored header, or nil.
func (m *Manager) HeaderByNumber(num uint64) *insoTypes.BlockHeader {
	data, err := m.db.Get(headerKey(num))
	if err != nil {
		return nil
	}
	header := new(insoTypes.BlockHeader)
	if err := rlp.DecodeBytes(data, header); err != nil {
		m.logger.Error("Corrupt header", "number", num, "err", err)
		return nil
	}
	return header
}

// ApplyBlock commits a block: every sender's nonce moves past its included
// transactions and the head advances.
func (m *Manager) ApplyBlock(block *insoTypes.Block) error {
	if len(block.Senders) != len(block.Transactions) {
		return fmt.Errorf("block %d: %d senders for %d transactions", block.Header.Number, len(block.Senders), len(block.Transactions))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if block.Header.Number != m.head.Number+1 {
		return fmt.Errorf("%w: have %d, head %d", ErrUnexpectedBlock, block.Header.Number, m.head.Number)
	}

	next := make(map[common.Address]uint64)
	for i, tx := range block.Transactions {
		sender := block.Senders[i]
		n, ok := next[sender]
		if !ok {
			n = m.nonce(sender)
		}
		if tx.Nonce()+1 > n {
			n = tx.Nonce() + 1
		}
		next[sender] = n
	}

	headerData, err := rlp.EncodeToBytes(block.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	batch := m.db.NewBatch()
	for addr, n := range next {
		if err := batch.Put(nonceKey(addr), binary.BigEndian.AppendUint64(nil, n)); err != nil {
			return err
		}
	}
	if err := batch.Put(headerKey(block.Header.Number), headerData); err != nil {
		return err
	}
	if err := batch.Put(keyHead, headerData); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("write block %d: %w", block.Header.Number, err)
	}

	m.head = *block.Header
	m.logger.Debug("Block applied",
		"number", block.Header.Number,
		"txCount", len(block.Transactions),
		"senders", len(next),
	)
	return nil
}

// Close closes the underlying database.
func (m *Manager) Close() error {
	return m.db.Close()
}
