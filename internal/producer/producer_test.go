package producer

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/params"

	"github.com/insoblok/inso-txpool/internal/config"
	"github.com/insoblok/inso-txpool/internal/mempool"
	"github.com/insoblok/inso-txpool/internal/state"
)

var testChainID = big.NewInt(42069)

type account struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newAccount(t *testing.T) account {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return account{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (a account) tx(t *testing.T, nonce uint64, gasPrice int64) *mempool.Transaction {
	t.Helper()
	return a.txWithGas(t, nonce, gasPrice, params.TxGas)
}

func (a account) txWithGas(t *testing.T, nonce uint64, gasPrice int64, gas uint64) *mempool.Transaction {
	t.Helper()
	raw := types.NewTransaction(nonce, common.Address{0xaa}, big.NewInt(1), gas, big.NewInt(gasPrice), nil)
	signed, err := types.SignTx(raw, types.LatestSignerForChainID(testChainID), a.key)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	return mempool.NewTransaction(signed, a.addr, mempool.OriginRemote)
}

func setup(t *testing.T, cfg *config.ProducerConfig, listener mempool.Listener) (*Producer, *mempool.Pool, *state.Manager) {
	t.Helper()
	sm, err := state.NewManager(memorydb.New())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	pool := mempool.New(mempool.DefaultOptions, nil, nil, listener)
	return New(cfg, pool, sm, common.Address{0xc0}), pool, sm
}

func importAll(t *testing.T, pool *mempool.Pool, txs ...*mempool.Transaction) {
	t.Helper()
	for _, tx := range txs {
		if _, err := pool.ImportVerified(tx); err != nil {
			t.Fatalf("import nonce %d: %v", tx.Nonce(), err)
		}
	}
}

func testConfig() *config.ProducerConfig {
	return &config.ProducerConfig{
		Enabled:       true,
		BlockTime:     time.Hour,
		MaxBlockGas:   30_000_000,
		MaxTxPerBlock: 100,
	}
}

func TestProduceBlockIncludesReadyTransactions(t *testing.T) {
	p, pool, sm := setup(t, testConfig(), nil)
	a, b := newAccount(t), newAccount(t)

	gapped := b.tx(t, 2, 5e9)
	importAll(t, pool, a.tx(t, 0, 1e9), a.tx(t, 1, 1e9), b.tx(t, 0, 2e9), gapped)

	block, err := p.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	if len(block.Transactions) != 3 {
		t.Fatalf("included %d transactions, want 3", len(block.Transactions))
	}
	if block.Header.Number != 1 {
		t.Errorf("Number = %d, want 1", block.Header.Number)
	}
	if block.Header.GasUsed != 3*params.TxGas {
		t.Errorf("GasUsed = %d, want %d", block.Header.GasUsed, 3*params.TxGas)
	}
	if got := sm.GetNonce(a.addr); got != 2 {
		t.Errorf("nonce(a) = %d, want 2", got)
	}
	if got := sm.GetNonce(b.addr); got != 1 {
		t.Errorf("nonce(b) = %d, want 1", got)
	}
	// The gapped transaction stays behind as future
	if n := pool.LightStatus().TransactionCount; n != 1 {
		t.Errorf("pool size = %d, want 1", n)
	}
	if !pool.Contains(gapped.Hash()) {
		t.Error("gapped transaction left the pool")
	}
	if sm.Head().Hash != block.Header.Hash {
		t.Error("state head does not match produced block")
	}
}

func TestProduceBlockRespectsGasLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBlockGas = 2 * params.TxGas
	p, pool, _ := setup(t, cfg, nil)
	a := newAccount(t)
	importAll(t, pool, a.tx(t, 0, 1e9), a.tx(t, 1, 1e9), a.tx(t, 2, 1e9))

	block, err := p.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	if len(block.Transactions) != 2 {
		t.Errorf("included %d transactions, want 2", len(block.Transactions))
	}
	if n := pool.LightStatus().TransactionCount; n != 1 {
		t.Errorf("pool size = %d, want 1", n)
	}
}

func TestProduceBlockSkipsSenderThatDoesNotFit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBlockGas = 70_000
	p, pool, _ := setup(t, cfg, nil)
	a, b := newAccount(t), newAccount(t)

	a0, a1, a2 := a.tx(t, 0, 5e9), a.txWithGas(t, 1, 5e9, 60_000), a.tx(t, 2, 5e9)
	b0 := b.tx(t, 0, 1e9)
	importAll(t, pool, a0, a1, a2, b0)

	block, err := p.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	got := block.Hashes()
	if len(got) != 2 || got[0] != a0.Hash() || got[1] != b0.Hash() {
		t.Fatalf("included %d transactions, want a0 then b0", len(got))
	}
	// a1 fits an empty block, so it waits for the next one
	if !pool.Contains(a1.Hash()) || !pool.Contains(a2.Hash()) {
		t.Error("skipped sender lost transactions")
	}

	block, err = p.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	if got := block.Hashes(); len(got) != 1 || got[0] != a1.Hash() {
		t.Errorf("second block has %d transactions, want a1 alone", len(got))
	}
}

func TestProduceBlockDropsTransactionAboveGasLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBlockGas = 100_000
	rec := &invalidRecorder{}
	p, pool, _ := setup(t, cfg, rec)
	a, b := newAccount(t), newAccount(t)

	huge := a.txWithGas(t, 0, 100e9, cfg.MaxBlockGas+1)
	importAll(t, pool, huge, a.tx(t, 1, 100e9), b.tx(t, 0, 1e9), b.tx(t, 1, 1e9))

	for i := 1; i <= 3; i++ {
		block, err := p.ProduceBlock()
		if err != nil {
			t.Fatalf("ProduceBlock: %v", err)
		}
		if i == 1 && len(block.Transactions) != 2 {
			t.Errorf("block 1 included %d transactions, want 2", len(block.Transactions))
		}
	}
	if pool.Contains(huge.Hash()) {
		t.Error("transaction above the block gas limit still pooled")
	}
	if len(rec.invalid) != 1 || rec.invalid[0] != huge {
		t.Errorf("invalid events = %d, want the oversized transaction", len(rec.invalid))
	}
}

type invalidRecorder struct {
	mempool.NoopListener
	invalid []*mempool.Transaction
}

func (r *invalidRecorder) Invalid(tx *mempool.Transaction) { r.invalid = append(r.invalid, tx) }

func TestProduceBlockRespectsTxCount(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTxPerBlock = 1
	p, pool, _ := setup(t, cfg, nil)
	a, b := newAccount(t), newAccount(t)
	best := b.tx(t, 0, 9e9)
	importAll(t, pool, a.tx(t, 0, 1e9), best)

	block, err := p.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	if len(block.Transactions) != 1 || block.Transactions[0].Hash() != best.Hash() {
		t.Fatalf("block should hold only the best paying transaction")
	}
}

func TestProduceBlockCullsStalled(t *testing.T) {
	p, pool, sm := setup(t, testConfig(), nil)
	a, b := newAccount(t), newAccount(t)
	importAll(t, pool, a.tx(t, 0, 1e9), a.tx(t, 1, 1e9), b.tx(t, 0, 1e9))

	// a's nonces were consumed elsewhere
	if err := sm.SetNonce(a.addr, 5); err != nil {
		t.Fatalf("SetNonce: %v", err)
	}
	block, err := p.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	if len(block.Transactions) != 1 {
		t.Errorf("included %d transactions, want 1", len(block.Transactions))
	}
	if n := pool.LightStatus().TransactionCount; n != 0 {
		t.Errorf("pool size = %d, want 0", n)
	}
}

func TestProduceEmptyBlocksChain(t *testing.T) {
	p, _, sm := setup(t, testConfig(), nil)

	first, err := p.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	second, err := p.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	if second.Header.ParentHash != first.Header.Hash {
		t.Error("second block does not link to first")
	}
	if first.Header.Hash == second.Header.Hash {
		t.Error("consecutive blocks share a hash")
	}
	if sm.CurrentBlock() != 2 {
		t.Errorf("CurrentBlock = %d, want 2", sm.CurrentBlock())
	}
}

func TestEarlySealOnFeed(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTxPerBlock = 2
	feed := mempool.NewFeedListener()
	p, pool, sm := setup(t, cfg, feed)
	p.SetFeed(feed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	a := newAccount(t)
	deadline := time.After(5 * time.Second)
	for nonce := uint64(0); sm.CurrentBlock() == 0; nonce++ {
		importAll(t, pool, a.tx(t, nonce, 1e9))
		select {
		case <-deadline:
			t.Fatal("no block sealed before the block time")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
