package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"

	"github.com/insoblok/inso-txpool/internal/config"
	"github.com/insoblok/inso-txpool/internal/mempool"
)

func TestScoringFor(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.PoolConfig
		want mempool.Scoring
	}{
		{"default", config.PoolConfig{PriceBump: 10}, mempool.NonceAndGasPrice{PriceBump: 10}},
		{"gasprice", config.PoolConfig{Scoring: "gasprice"}, mempool.NonceAndGasPrice{}},
		{"cumulative", config.PoolConfig{Scoring: "cumulative", PriceBump: 5},
			mempool.CumulativeGasPrice{NonceAndGasPrice: mempool.NonceAndGasPrice{PriceBump: 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoringFor(tt.cfg); got != tt.want {
				t.Errorf("scoringFor = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSetupLoggingJSON(t *testing.T) {
	prev := log.Root()
	defer log.SetDefault(prev)

	var buf bytes.Buffer
	setupLogging(&buf, config.LoggingConfig{Level: "warn", Format: "json"})
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("output = %q, want a JSON warn record", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"trace", log.LevelTrace, false},
		{"debug", log.LevelDebug, false},
		{"INFO", log.LevelInfo, false},
		{"warn", log.LevelWarn, false},
		{"error", log.LevelError, false},
		{"crit", log.LevelCrit, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseLevel(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("parseLevel(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
			}
		})
	}
}
