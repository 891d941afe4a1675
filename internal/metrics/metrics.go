package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/prometheus"
)

// Metrics holds the node-level instruments and serves every metric of its
// registry in Prometheus text format. The pool registers its own meters in
// the same registry. Instruments are no-ops unless metrics.Enabled was set
// before New.
type Metrics struct {
	// Block production
	BlockHeight    metrics.Gauge
	BlocksProduced metrics.Counter
	TxIncluded     metrics.Counter
	GasUsed        metrics.Counter
	BuildTime      metrics.Timer

	// RPC
	RPCRequests metrics.Counter
	RPCErrors   metrics.Counter

	registry metrics.Registry
	server   *http.Server
	logger   log.Logger
}

// New registers the node instruments in r. A nil r means the default registry.
func New(r metrics.Registry) *Metrics {
	if r == nil {
		r = metrics.DefaultRegistry
	}
	return &Metrics{
		BlockHeight:    metrics.NewRegisteredGauge("chain/head", r),
		BlocksProduced: metrics.NewRegisteredCounter("producer/blocks", r),
		TxIncluded:     metrics.NewRegisteredCounter("producer/txs", r),
		GasUsed:        metrics.NewRegisteredCounter("producer/gasused", r),
		BuildTime:      metrics.NewRegisteredTimer("producer/buildtime", r),
		RPCRequests:    metrics.NewRegisteredCounter("rpc/requests", r),
		RPCErrors:      metrics.NewRegisteredCounter("rpc/errors", r),
		registry:       r,
		logger:         log.New("module", "metrics"),
	}
}

// Handler returns the HTTP handler exposing /metrics and /health.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.Handler(m.registry))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"service":   "inso-txpool",
			"timestamp": time.Now().Unix(),
		})
	})
	return mux
}

// Serve starts the metrics HTTP endpoint in the background.
func (m *Metrics) Serve(addr string) {
	m.server = &http.Server{
		Addr:         addr,
		Handler:      m.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info("Metrics server starting", "addr", addr)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server error", "err", err)
		}
	}()
}

// Stop shuts the endpoint down.
func (m *Metrics) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
