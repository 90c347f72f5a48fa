// Package config loads and validates the core's configuration from
// YAML or JSON files. Invalid configuration fails at load, before any
// component starts.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/oms/risk"
)

// Config is the complete core configuration.
type Config struct {
	Account    AccountConfig    `json:"account" yaml:"account"`
	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Algorithms AlgorithmsConfig `json:"algorithms" yaml:"algorithms"`
	Bulk       BulkConfig       `json:"bulk" yaml:"bulk"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	MarketData MarketDataConfig `json:"marketdata" yaml:"marketdata"`
}

// AccountConfig describes the trading account.
type AccountConfig struct {
	ID             string  `json:"id" yaml:"id"`
	Currency       string  `json:"currency" yaml:"currency"`
	Cash           float64 `json:"cash" yaml:"cash"`
	MarginCapacity float64 `json:"margin_capacity" yaml:"margin_capacity"`
}

// RiskConfig tunes the risk aggregator. The weights must sum to 1.
type RiskConfig struct {
	MarginWeight        float64 `json:"marginWeight" yaml:"marginWeight"`
	ConcentrationWeight float64 `json:"concentrationWeight" yaml:"concentrationWeight"`
	LiquidityWeight     float64 `json:"liquidityWeight" yaml:"liquidityWeight"`
	DailyVol            float64 `json:"daily_vol" yaml:"daily_vol"`
}

// Weights converts to the risk package's weight type.
func (r RiskConfig) Weights() risk.Weights {
	return risk.Weights{
		Margin:        r.MarginWeight,
		Concentration: r.ConcentrationWeight,
		Liquidity:     r.LiquidityWeight,
	}
}

// AlgorithmsConfig tunes strategy supervision.
type AlgorithmsConfig struct {
	HeartbeatThreshold string `json:"heartbeat_threshold" yaml:"heartbeat_threshold"` // e.g. "30s"
}

// Threshold parses the heartbeat liveness window.
func (a AlgorithmsConfig) Threshold() (time.Duration, error) {
	if a.HeartbeatThreshold == "" {
		return 0, nil
	}
	return time.ParseDuration(a.HeartbeatThreshold)
}

// BulkConfig tunes batch ingestion.
type BulkConfig struct {
	Workers int `json:"workers" yaml:"workers"`
}

// JournalConfig selects the audit backend.
type JournalConfig struct {
	Type           string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	ExecutionsFile string `json:"executions_file,omitempty" yaml:"executions_file,omitempty"`
	RiskFile       string `json:"risk_file,omitempty" yaml:"risk_file,omitempty"`
	DBPath         string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// MarketDataConfig points at the tick stream collaborator.
type MarketDataConfig struct {
	URL     string   `json:"url" yaml:"url"`
	Symbols []string `json:"symbols" yaml:"symbols"`
}

// LoadFromFile loads configuration from a file (YAML or JSON based on
// content, YAML tried first).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration, format chosen by extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration. Risk weights not summing to 1 is a
// configuration error and fails here, at load.
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Cash < 0 {
		return fmt.Errorf("account.cash must not be negative")
	}
	if c.Account.MarginCapacity <= 0 {
		return fmt.Errorf("account.margin_capacity must be positive")
	}
	if err := c.Risk.Weights().Validate(); err != nil {
		return err
	}
	if c.Risk.DailyVol < 0 {
		return fmt.Errorf("risk.daily_vol must not be negative")
	}
	if c.Algorithms.HeartbeatThreshold != "" {
		d, err := c.Algorithms.Threshold()
		if err != nil {
			return fmt.Errorf("algorithms.heartbeat_threshold: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("algorithms.heartbeat_threshold must be positive")
		}
	}
	if c.Bulk.Workers < 0 {
		return fmt.Errorf("bulk.workers must not be negative")
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.ExecutionsFile == "" || c.Journal.RiskFile == "" {
			return fmt.Errorf("journal executions_file and risk_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "none", "":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	return nil
}

// Default returns a configuration with documented defaults: margin 0.5,
// concentration 0.3, liquidity 0.2, heartbeat window 30s.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:             "OMS-001",
			Currency:       "INR",
			Cash:           1_000_000,
			MarginCapacity: 4_500_000,
		},
		Risk: RiskConfig{
			MarginWeight:        risk.DefaultWeights.Margin,
			ConcentrationWeight: risk.DefaultWeights.Concentration,
			LiquidityWeight:     risk.DefaultWeights.Liquidity,
			DailyVol:            0.02,
		},
		Algorithms: AlgorithmsConfig{
			HeartbeatThreshold: "30s",
		},
		Bulk: BulkConfig{
			Workers: 4,
		},
		Journal: JournalConfig{
			Type:           "csv",
			ExecutionsFile: "./executions.csv",
			RiskFile:       "./risk.csv",
		},
		MarketData: MarketDataConfig{
			Symbols: []string{"RELIANCE", "TCS"},
		},
	}
}
