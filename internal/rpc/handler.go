package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/insoblok/inso-txpool/internal/mempool"
	"github.com/insoblok/inso-txpool/internal/metrics"
	"github.com/insoblok/inso-txpool/internal/state"
	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

var (
	errInvalidParams      = errors.New("invalid params")
	errRejectionsDisabled = errors.New("rejection cache not enabled")
)

// Handler dispatches JSON-RPC methods to their implementations.
type Handler struct {
	pool       mempool.TxPool
	limits     mempool.Options
	state      *state.Manager
	rejections *mempool.RejectionCache
	metrics    *metrics.Metrics
	origin     mempool.Origin
	chainID    *big.Int
	logger     log.Logger
}

// NewHandler creates a new JSON-RPC handler. limits is reported by
// txpool_status.
func NewHandler(pool mempool.TxPool, limits mempool.Options, sm *state.Manager, chainID uint64) *Handler {
	return &Handler{
		pool:    pool,
		limits:  limits,
		state:   sm,
		chainID: new(big.Int).SetUint64(chainID),
		logger:  log.New("module", "rpc-handler"),
	}
}

// SetRejectionCache attaches the cache behind txpool_rejection.
func (h *Handler) SetRejectionCache(c *mempool.RejectionCache) { h.rejections = c }

// SetSubmitOrigin sets the origin given to eth_sendRawTransaction
// submissions. The default is mempool.OriginRemote.
func (h *Handler) SetSubmitOrigin(o mempool.Origin) { h.origin = o }

// SetMetrics attaches the node metrics.
func (h *Handler) SetMetrics(m *metrics.Metrics) { h.metrics = m }

// Handle processes a single JSON-RPC request and returns a response.
func (h *Handler) Handle(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	h.logger.Debug("RPC request", "method", req.Method, "id", req.ID)

	if h.metrics != nil {
		h.metrics.RPCRequests.Inc(1)
	}

	var result interface{}
	var err error

	switch req.Method {
	// Standard Ethereum methods
	case "eth_chainId":
		result = hexutil.EncodeBig(h.chainID)
	case "net_version":
		result = h.chainID.String()
	case "eth_blockNumber":
		result = hexutil.EncodeUint64(h.state.CurrentBlock())
	case "eth_sendRawTransaction":
		result, err = h.sendRawTransaction(req.Params)
	case "eth_getTransactionByHash":
		result, err = h.getTransactionByHash(req.Params)
	case "eth_getTransactionCount":
		result, err = h.getTransactionCount(req.Params)

	// Pool methods
	case "txpool_status":
		result = h.status()
	case "txpool_lightStatus":
		result = h.pool.LightStatus()
	case "txpool_pending":
		result, err = h.pending(req.Params)
	case "txpool_cancel":
		result, err = h.cancel(req.Params)
	case "txpool_rejection":
		result, err = h.rejection(req.Params)

	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method))
	}

	if err != nil {
		if h.metrics != nil {
			h.metrics.RPCErrors.Inc(1)
		}
		return errorResponse(req.ID, codeServerError, err.Error())
	}

	encoded, _ := json.Marshal(result)
	raw := json.RawMessage(encoded)
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  &raw,
	}
}

// stringArgs decodes a positional parameter list of strings with at least
// n entries.
func stringArgs(params json.RawMessage, n int) ([]string, error) {
	var args []string
	if err := json.Unmarshal(params, &args); err != nil || len(args) < n {
		return nil, errInvalidParams
	}
	return args, nil
}

func hashArg(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: bad hash %q", errInvalidParams, s)
	}
	return common.BytesToHash(b), nil
}

// --- Standard Ethereum methods ---

func (h *Handler) sendRawTransaction(params json.RawMessage) (interface{}, error) {
	args, err := stringArgs(params, 1)
	if err != nil {
		return nil, err
	}

	rawTx, err := hexutil.Decode(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}

	if _, err := h.pool.Import(mempool.UnverifiedTransaction{Tx: tx, Origin: h.origin}); err != nil {
		return nil, fmt.Errorf("txpool reject: %w", err)
	}
	return tx.Hash(), nil
}

func (h *Handler) getTransactionByHash(params json.RawMessage) (interface{}, error) {
	args, err := stringArgs(params, 1)
	if err != nil {
		return nil, err
	}
	hash, err := hashArg(args[0])
	if err != nil {
		return nil, err
	}

	tx := h.pool.Find(hash)
	if tx == nil {
		return nil, nil
	}
	return toPoolTx(tx), nil
}

// getTransactionCount returns the state nonce, or with the "pending" tag the
// nonce following the sender's run of ready pool transactions.
func (h *Handler) getTransactionCount(params json.RawMessage) (interface{}, error) {
	args, err := stringArgs(params, 1)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(args[0]) {
		return nil, fmt.Errorf("%w: bad address %q", errInvalidParams, args[0])
	}
	addr := common.HexToAddress(args[0])

	nonce := h.state.GetNonce(addr)
	if len(args) > 1 && args[1] == "pending" {
		ready := mempool.NewStateNonceReady(h.state)
		h.pool.PendingFrom(addr, ready).Collect(0)
		nonce = ready.Nonce(addr)
	}
	return hexutil.Uint64(nonce), nil
}

// --- Pool methods ---

func (h *Handler) status() *insoTypes.PoolStatus {
	status := h.pool.Status(mempool.NewStateNonceReady(h.state))
	light := h.pool.LightStatus()
	return &insoTypes.PoolStatus{
		Pending:          status.Pending,
		Future:           status.Future,
		Stalled:          status.Stalled,
		TransactionCount: light.TransactionCount,
		Senders:          light.Senders,
		MemUsage:         light.MemUsage,
		MaxCount:         h.limits.MaxCount,
		MaxPerSender:     h.limits.MaxPerSender,
		MaxMemUsage:      h.limits.MaxMemUsage,
		CurrentBlock:     h.state.CurrentBlock(),
	}
}

// pending lists the includable transactions best first, optionally limited
// by a numeric first parameter.
func (h *Handler) pending(params json.RawMessage) (interface{}, error) {
	var limit int
	if len(params) > 0 {
		var args []int
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, errInvalidParams
		}
		if len(args) > 0 {
			limit = args[0]
		}
	}

	txs := h.pool.Pending(mempool.NewStateNonceReady(h.state)).Collect(limit)
	out := make([]*insoTypes.PoolTx, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toPoolTx(tx))
	}
	return out, nil
}

func (h *Handler) cancel(params json.RawMessage) (interface{}, error) {
	args, err := stringArgs(params, 1)
	if err != nil {
		return nil, err
	}
	hash, err := hashArg(args[0])
	if err != nil {
		return nil, err
	}
	return h.pool.Cancel(hash) != nil, nil
}

func (h *Handler) rejection(params json.RawMessage) (interface{}, error) {
	if h.rejections == nil {
		return nil, errRejectionsDisabled
	}
	args, err := stringArgs(params, 1)
	if err != nil {
		return nil, err
	}
	hash, err := hashArg(args[0])
	if err != nil {
		return nil, err
	}

	reason, ok := h.rejections.Reason(hash)
	if !ok {
		return nil, nil
	}
	return map[string]interface{}{
		"hash":   hash,
		"reason": reason,
	}, nil
}

func toPoolTx(tx *mempool.Transaction) *insoTypes.PoolTx {
	return &insoTypes.PoolTx{
		Hash:        tx.Hash(),
		Sender:      tx.Sender(),
		Nonce:       hexutil.Uint64(tx.Nonce()),
		Gas:         hexutil.Uint64(tx.Gas()),
		GasPrice:    (*hexutil.Big)(tx.GasPrice().ToBig()),
		InsertionID: tx.InsertionID(),
		Origin:      tx.Origin().String(),
	}
}
