package producer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/insoblok/inso-txpool/internal/config"
	"github.com/insoblok/inso-txpool/internal/mempool"
	"github.com/insoblok/inso-txpool/internal/metrics"
	"github.com/insoblok/inso-txpool/internal/state"
	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

// Pool is the part of the transaction pool the producer drives.
type Pool interface {
	Pending(ready mempool.ReadyChecker) *mempool.PendingIterator
	Mined(hashes ...common.Hash) []*mempool.Transaction
	Invalidate(hash common.Hash) *mempool.Transaction
	Cull(senders []common.Address, ready mempool.ReadyChecker) int
	LightStatus() mempool.LightStatus
}

// Producer is the block production engine. On every tick, or as soon as
// enough transactions have arrived, it takes the best ready transactions
// from the pool, commits them to state and reports them as mined.
type Producer struct {
	mu       sync.Mutex
	cfg      *config.ProducerConfig
	pool     Pool
	state    *state.Manager
	coinbase common.Address
	feed     *mempool.FeedListener
	gauges   *mempool.StatusGauges
	metrics  *metrics.Metrics
	added    atomic.Int64
	seal     chan struct{}
	cancel   context.CancelFunc
	logger   log.Logger
}

// New creates a new block producer.
func New(cfg *config.ProducerConfig, pool Pool, sm *state.Manager, coinbase common.Address) *Producer {
	return &Producer{
		cfg:      cfg,
		pool:     pool,
		state:    sm,
		coinbase: coinbase,
		seal:     make(chan struct{}, 1),
		logger:   log.New("module", "producer"),
	}
}

// SetFeed lets the producer seal early once a full block worth of
// transactions has been added to the pool.
func (p *Producer) SetFeed(f *mempool.FeedListener) { p.feed = f }

// SetGauges attaches the pool occupancy gauges refreshed after each block.
func (p *Producer) SetGauges(g *mempool.StatusGauges) { p.gauges = g }

// SetMetrics attaches the node metrics.
func (p *Producer) SetMetrics(m *metrics.Metrics) { p.metrics = m }

// Start begins the block production loop. Runs until the context is cancelled.
func (p *Producer) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(p.cfg.BlockTime)
	defer ticker.Stop()

	if p.feed != nil {
		events := make(chan mempool.TxEvent, 256)
		sub := p.feed.Subscribe(events)
		defer sub.Unsubscribe()
		go p.watch(ctx, events, sub.Err())
	}

	p.logger.Info("Block producer started",
		"blockTime", p.cfg.BlockTime,
		"maxBlockGas", p.cfg.MaxBlockGas,
		"maxTxPerBlock", p.cfg.MaxTxPerBlock,
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Block producer stopped")
			return
		case <-ticker.C:
		case <-p.seal:
			p.logger.Debug("Sealing early", "added", p.added.Load())
		}
		if _, err := p.ProduceBlock(); err != nil {
			p.logger.Error("Block production failed", "err", err)
		}
	}
}

// watch counts pool additions. It never touches the pool, so the pool can
// always deliver to it.
func (p *Producer) watch(ctx context.Context, events <-chan mempool.TxEvent, errc <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-errc:
			return
		case ev := <-events:
			if ev.Kind != mempool.EventAdded || ev.Other != nil {
				continue
			}
			if p.added.Add(1) >= int64(p.cfg.MaxTxPerBlock) {
				select {
				case p.seal <- struct{}{}:
				default:
				}
			}
		}
	}
}

// Stop halts the block production loop.
func (p *Producer) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// ProduceBlock builds and commits a single block from the current pool.
// Empty blocks are produced too.
func (p *Producer) ProduceBlock() (*insoTypes.Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.added.Store(0)
	start := time.Now()

	var (
		txs     []*types.Transaction
		senders []common.Address
		gasUsed uint64
	)
	pending := p.pool.Pending(mempool.NewStateNonceReady(p.state))
	for len(txs) < p.cfg.MaxTxPerBlock {
		if p.cfg.MaxBlockGas-gasUsed < params.TxGas {
			break
		}
		tx := pending.Next()
		if tx == nil {
			break
		}
		if gasUsed+tx.Gas() > p.cfg.MaxBlockGas {
			// Later nonces of this sender cannot go in without it
			pending.SkipSender()
			if tx.Gas() > p.cfg.MaxBlockGas {
				p.logger.Warn("Dropping transaction above block gas limit",
					"hash", tx.Hash().Hex(), "gas", tx.Gas(), "limit", p.cfg.MaxBlockGas)
				p.pool.Invalidate(tx.Hash())
			}
			continue
		}
		txs = append(txs, tx.Tx())
		senders = append(senders, tx.Sender())
		gasUsed += tx.Gas()
	}

	head := p.state.Head()
	header := &insoTypes.BlockHeader{
		Number:     head.Number + 1,
		ParentHash: head.Hash,
		Timestamp:  uint64(time.Now().Unix()),
		GasUsed:    gasUsed,
		GasLimit:   p.cfg.MaxBlockGas,
		TxCount:    uint64(len(txs)),
		Coinbase:   p.coinbase,
	}
	block := insoTypes.NewBlock(header, txs, senders)
	hash, err := computeBlockHash(block)
	if err != nil {
		return nil, err
	}
	header.Hash = hash

	if err := p.state.ApplyBlock(block); err != nil {
		return nil, fmt.Errorf("apply block %d: %w", header.Number, err)
	}
	mined := p.pool.Mined(block.Hashes()...)
	culled := p.pool.Cull(nil, mempool.NewStateNonceReady(p.state))

	status := p.pool.LightStatus()
	if p.gauges != nil {
		p.gauges.Update(status)
	}
	if p.metrics != nil {
		p.metrics.BlockHeight.Update(int64(header.Number))
		p.metrics.BlocksProduced.Inc(1)
		p.metrics.TxIncluded.Inc(int64(len(txs)))
		p.metrics.GasUsed.Inc(int64(gasUsed))
		p.metrics.BuildTime.UpdateSince(start)
	}

	if len(txs) > 0 {
		p.logger.Info("Block produced",
			"number", header.Number,
			"txCount", len(txs),
			"gasUsed", gasUsed,
			"mined", len(mined),
			"culled", culled,
			"poolSize", status.TransactionCount,
			"hash", hash.Hex()[:10],
		)
	} else {
		p.logger.Debug("Empty block produced", "number", header.Number)
	}
	return block, nil
}

// computeBlockHash hashes the header (with an empty hash field) followed by
// the included transaction hashes.
func computeBlockHash(block *insoTypes.Block) (common.Hash, error) {
	header := *block.Header
	header.Hash = common.Hash{}
	enc, err := rlp.EncodeToBytes(&header)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode header: %w", err)
	}
	parts := [][]byte{enc}
	for _, hash := range block.Hashes() {
		parts = append(parts, hash.Bytes())
	}
	return crypto.Keccak256Hash(parts...), nil
}
