package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PoolTx is the JSON view of a resident pool transaction.
type PoolTx struct {
	Hash        common.Hash    `json:"hash"`
	Sender      common.Address `json:"sender"`
	Nonce       hexutil.Uint64 `json:"nonce"`
	Gas         hexutil.Uint64 `json:"gas"`
	GasPrice    *hexutil.Big   `json:"gasPrice"`
	InsertionID uint64         `json:"insertionId"`
	Origin      string         `json:"origin"`
}

// PoolStatus is the JSON view of the pool occupancy and readiness breakdown.
type PoolStatus struct {
	Pending          int    `json:"pending"`
	Future           int    `json:"future"`
	Stalled          int    `json:"stalled"`
	TransactionCount int    `json:"transactionCount"`
	Senders          int    `json:"senders"`
	MemUsage         uint64 `json:"memUsage"`
	MaxCount         int    `json:"maxCount"`
	MaxPerSender     int    `json:"maxPerSender"`
	MaxMemUsage      uint64 `json:"maxMemUsage"`
	CurrentBlock     uint64 `json:"currentBlock"`
}
