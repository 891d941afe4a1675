package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/params"
	"gopkg.in/yaml.v3"
)

// Config is the top-level node configuration.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Pool     PoolConfig     `yaml:"pool"`
	Producer ProducerConfig `yaml:"producer"`
	RPC      RPCConfig      `yaml:"rpc"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// NodeConfig holds the chain identity and storage settings.
type NodeConfig struct {
	ChainID  uint64 `yaml:"chain_id"`
	DataDir  string `yaml:"datadir"`
	Coinbase string `yaml:"coinbase"`
}

// PoolConfig holds the transaction pool limits and admission rules.
type PoolConfig struct {
	MaxCount       int    `yaml:"max_count"`
	MaxPerSender   int    `yaml:"max_per_sender"`
	MaxMemUsage    uint64 `yaml:"max_mem_usage"`
	MinGasPrice    uint64 `yaml:"min_gas_price"`   // wei, remote transactions only
	PriceBump      uint64 `yaml:"price_bump"`      // percent required to replace a slot
	Scoring        string `yaml:"scoring"`         // "gasprice" or "cumulative"
	RejectionCache int    `yaml:"rejection_cache"` // remembered rejection reasons
}

// ProducerConfig holds the block production settings.
type ProducerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BlockTime     time.Duration `yaml:"block_time"`
	MaxBlockGas   uint64        `yaml:"max_block_gas"`
	MaxTxPerBlock int           `yaml:"max_tx_per_block"`
}

// RPCConfig holds the JSON-RPC server settings.
type RPCConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	LocalOrigin bool   `yaml:"local_origin"` // submissions are trusted as local
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the node cannot run with.
func (c *Config) Validate() error {
	switch c.Pool.Scoring {
	case "", "gasprice", "cumulative":
	default:
		return fmt.Errorf("invalid pool scoring %q", c.Pool.Scoring)
	}
	if c.Producer.Enabled {
		if c.Producer.BlockTime <= 0 {
			return fmt.Errorf("invalid producer block time %v", c.Producer.BlockTime)
		}
		if c.Producer.MaxTxPerBlock <= 0 {
			return fmt.Errorf("invalid producer max tx per block %d", c.Producer.MaxTxPerBlock)
		}
		if c.Producer.MaxBlockGas < params.TxGas {
			return fmt.Errorf("producer max block gas %d below intrinsic gas %d", c.Producer.MaxBlockGas, params.TxGas)
		}
	}
	return nil
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ChainID:  42069,
			DataDir:  "",
			Coinbase: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		},
		Pool: PoolConfig{
			MaxCount:       1024,
			MaxPerSender:   16,
			MaxMemUsage:    8 * 1024 * 1024,
			MinGasPrice:    1_000_000_000,
			Scoring:        "gasprice",
			RejectionCache: 4096,
		},
		Producer: ProducerConfig{
			Enabled:       true,
			BlockTime:     2 * time.Second,
			MaxBlockGas:   30_000_000,
			MaxTxPerBlock: 500,
		},
		RPC: RPCConfig{
			ListenAddr: "0.0.0.0:8545",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "terminal",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "0.0.0.0:6060",
		},
	}
}
