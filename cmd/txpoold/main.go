package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	gethmetrics "github.com/ethereum/go-ethereum/metrics"

	"github.com/insoblok/inso-txpool/internal/config"
	"github.com/insoblok/inso-txpool/internal/mempool"
	"github.com/insoblok/inso-txpool/internal/metrics"
	"github.com/insoblok/inso-txpool/internal/producer"
	"github.com/insoblok/inso-txpool/internal/rpc"
	"github.com/insoblok/inso-txpool/internal/state"
	"github.com/insoblok/inso-txpool/internal/verifier"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	setupLogging(os.Stdout, cfg.Logging)

	logger := log.New("module", "main")
	logger.Info("InSo txpool starting", "version", version)

	// Meters are no-ops unless enabled before they are constructed
	gethmetrics.Enabled = cfg.Metrics.Enabled

	db, err := state.OpenDatabase(cfg.Node.DataDir)
	if err != nil {
		logger.Error("Failed to open state database", "err", err)
		os.Exit(1)
	}
	stateManager, err := state.NewManager(db)
	if err != nil {
		logger.Error("Failed to initialize state manager", "err", err)
		os.Exit(1)
	}
	defer stateManager.Close()
	logger.Info("State manager initialized", "currentBlock", stateManager.CurrentBlock())

	chainID := new(big.Int).SetUint64(cfg.Node.ChainID)
	txVerifier := verifier.New(verifier.Config{
		ChainID:     chainID,
		MinGasPrice: new(big.Int).SetUint64(cfg.Pool.MinGasPrice),
		MaxGas:      cfg.Producer.MaxBlockGas,
	}, stateManager)

	// Listeners run in order under the pool lock
	feed := mempool.NewFeedListener()
	defer feed.Close()
	listeners := mempool.MultiListener{
		mempool.NewLogListener(),
		mempool.NewMetricsListener(nil),
		feed,
	}
	var rejections *mempool.RejectionCache
	if cfg.Pool.RejectionCache > 0 {
		rejections, err = mempool.NewRejectionCache(cfg.Pool.RejectionCache)
		if err != nil {
			logger.Error("Failed to create rejection cache", "err", err)
			os.Exit(1)
		}
		listeners = append(listeners, rejections)
	}

	opts := mempool.Options{
		MaxCount:     cfg.Pool.MaxCount,
		MaxPerSender: cfg.Pool.MaxPerSender,
		MaxMemUsage:  cfg.Pool.MaxMemUsage,
	}
	pool := mempool.New(opts, scoringFor(cfg.Pool), txVerifier, listeners)
	logger.Info("Transaction pool initialized",
		"maxCount", pool.Options().MaxCount,
		"maxPerSender", pool.Options().MaxPerSender,
		"maxMemUsage", pool.Options().MaxMemUsage,
		"scoring", cfg.Pool.Scoring,
	)

	met := metrics.New(nil)
	gauges := mempool.NewStatusGauges(nil)

	coinbase := common.HexToAddress(cfg.Node.Coinbase)
	blockProducer := producer.New(&cfg.Producer, pool, stateManager, coinbase)
	blockProducer.SetFeed(feed)
	blockProducer.SetGauges(gauges)
	blockProducer.SetMetrics(met)

	rpcHandler := rpc.NewHandler(pool, pool.Options(), stateManager, cfg.Node.ChainID)
	rpcHandler.SetRejectionCache(rejections)
	rpcHandler.SetMetrics(met)
	if cfg.RPC.LocalOrigin {
		rpcHandler.SetSubmitOrigin(mempool.OriginLocal)
	}
	rpcServer := rpc.NewServer(&cfg.RPC, rpcHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rpcServer.Start(ctx); err != nil {
		logger.Error("Failed to start RPC server", "err", err)
		os.Exit(1)
	}
	logger.Info("RPC server started", "http", cfg.RPC.ListenAddr)

	if cfg.Producer.Enabled {
		go blockProducer.Start(ctx)
	} else {
		logger.Warn("Block producer disabled, pool will only drain through txpool_cancel")
	}

	if cfg.Metrics.Enabled {
		met.Serve(cfg.Metrics.Addr)
		logger.Info("Metrics server started", "addr", cfg.Metrics.Addr)
	}

	fmt.Println()
	logger.Info("═══════════════════════════════════════════════")
	logger.Info("  InSo txpool is running")
	logger.Info("  JSON-RPC: " + cfg.RPC.ListenAddr)
	logger.Info("  Chain ID: " + fmt.Sprintf("%d", cfg.Node.ChainID))
	logger.Info("═══════════════════════════════════════════════")
	fmt.Println()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received shutdown signal", "signal", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := rpcServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", "err", err)
	}
	if cfg.Metrics.Enabled {
		if err := met.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping metrics server", "err", err)
		}
	}
	logger.Info("InSo txpool stopped gracefully", "pooled", pool.LightStatus().TransactionCount)
}

// setupLogging installs the root handler described by the logging config.
func setupLogging(w io.Writer, cfg config.LoggingConfig) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = log.LevelInfo
	}
	if cfg.Format == "json" {
		log.SetDefault(log.NewLogger(log.JSONHandlerWithLevel(w, level)))
	} else {
		log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(w, level, true)))
	}
	if err != nil {
		log.Warn("Falling back to info logging", "err", err)
	}
}

// parseLevel accepts the slog level names plus geth's "trace" and "crit".
func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return log.LevelTrace, nil
	case "crit":
		return log.LevelCrit, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func scoringFor(cfg config.PoolConfig) mempool.Scoring {
	base := mempool.NonceAndGasPrice{PriceBump: cfg.PriceBump}
	if cfg.Scoring == "cumulative" {
		return mempool.CumulativeGasPrice{NonceAndGasPrice: base}
	}
	return base
}
