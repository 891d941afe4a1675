package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockHeader is the header of a locally produced block.
type BlockHeader struct {
	Number     uint64         `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Timestamp  uint64         `json:"timestamp"`
	GasUsed    uint64         `json:"gasUsed"`
	GasLimit   uint64         `json:"gasLimit"`
	TxCount    uint64         `json:"txCount"`
	Coinbase   common.Address `json:"coinbase"`
}

// Block is a produced block: its header, the included transactions and the
// sender of each transaction, index for index.
type Block struct {
	Header       *BlockHeader         `json:"header"`
	Transactions []*types.Transaction `json:"transactions"`
	Senders      []common.Address     `json:"senders"`
}

// NewBlock creates a new Block.
func NewBlock(header *BlockHeader, txs []*types.Transaction, senders []common.Address) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
		Senders:      senders,
	}
}

// Hashes returns the hashes of the included transactions.
func (b *Block) Hashes() []common.Hash {
	hashes := make([]common.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash()
	}
	return hashes
}
