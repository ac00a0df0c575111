// Package config loads the engine's single configuration document
// (spec.md §6) plus the ambient logging/service blocks the rest of the
// corpus always carries alongside domain config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ridgeline-labs/chainrunner/pkg/logger"
)

// StrategyName is one of the four scans the strategy can enable.
type StrategyName string

const (
	StrategyLiquidation StrategyName = "liquidation"
	StrategyArbitrage   StrategyName = "arbitrage"
	StrategyJIT         StrategyName = "jit"
	StrategyBackrun     StrategyName = "backrun"
)

// PoolConfig describes one monitored pool.
type PoolConfig struct {
	Address string `yaml:"address" mapstructure:"address"`
	Kind    string `yaml:"kind" mapstructure:"kind"` // constant_product | concentrated | stable
	Token0  string `yaml:"token0" mapstructure:"token0"`
	Token1  string `yaml:"token1" mapstructure:"token1"`
	FeeTier uint32 `yaml:"fee_tier" mapstructure:"fee_tier"`
}

// FlashLoanFeeConfig maps a provider name to its fee rate in bps.
type FlashLoanFeeConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
	FeeBps   uint32 `yaml:"fee_bps" mapstructure:"fee_bps"`
}

// Config is the engine's single configuration document.
type Config struct {
	EnabledStrategies []StrategyName `yaml:"enabled_strategies" mapstructure:"enabled_strategies"`
	MonitoredAssets   []string       `yaml:"monitored_assets" mapstructure:"monitored_assets"`
	MonitoredPools    []PoolConfig   `yaml:"monitored_pools" mapstructure:"monitored_pools"`

	LiquidatorContract string `yaml:"liquidator_contract" mapstructure:"liquidator_contract"`
	ArbExecutor        string `yaml:"arb_executor" mapstructure:"arb_executor"`
	JITProvider        string `yaml:"jit_provider" mapstructure:"jit_provider"`
	LendingPool        string `yaml:"lending_pool" mapstructure:"lending_pool"`
	Oracle             string `yaml:"oracle" mapstructure:"oracle"`

	MinProfitThreshold string `yaml:"min_profit_threshold" mapstructure:"min_profit_threshold"` // decimal string, base-asset units
	MaxGasPriceWei     string `yaml:"max_gas_price_wei" mapstructure:"max_gas_price_wei"`
	GasPriceMultiplier string `yaml:"gas_price_multiplier" mapstructure:"gas_price_multiplier"` // decimal
	MaxSlippageBps     uint32 `yaml:"max_slippage_bps" mapstructure:"max_slippage_bps"`

	FlashLoanFees []FlashLoanFeeConfig `yaml:"flash_loan_fees" mapstructure:"flash_loan_fees"`

	PrivateRelayEnabled bool   `yaml:"private_relay_enabled" mapstructure:"private_relay_enabled"`
	PrivateRelayURL     string `yaml:"private_relay_url" mapstructure:"private_relay_url"`

	CircuitBreakerEnabled  bool `yaml:"circuit_breaker_enabled" mapstructure:"circuit_breaker_enabled"`
	FailureStreakThreshold int  `yaml:"failure_streak_threshold" mapstructure:"failure_streak_threshold"`

	MaxPathLength      int    `yaml:"max_path_length" mapstructure:"max_path_length"`
	MaxFlashLoanAmount string `yaml:"max_flash_loan_amount" mapstructure:"max_flash_loan_amount"`

	BlockTime     string `yaml:"block_time" mapstructure:"block_time"` // duration string, e.g. "12s"
	RPCTimeout    string `yaml:"rpc_timeout" mapstructure:"rpc_timeout"`
	SubmitTimeout string `yaml:"submit_timeout" mapstructure:"submit_timeout"`

	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
	Service ServiceConfig `yaml:"service" mapstructure:"service"`

	// Runtime overrides populated from environment/CLI, never from YAML.
	RPCURL     string `yaml:"-" mapstructure:"-"`
	WSRPCURL   string `yaml:"-" mapstructure:"-"`
	PrivateKey string `yaml:"-" mapstructure:"-"`

	// CLI-surfaced flags (spec.md §6); defaults live in cmd/chainrunner.
	Simulation      bool    `yaml:"-" mapstructure:"-"`
	Aggressive      bool    `yaml:"-" mapstructure:"-"`
	MinProfitUSD    float64 `yaml:"-" mapstructure:"-"`
	MaxGasPriceGwei float64 `yaml:"-" mapstructure:"-"`
	MetricsPort     uint16  `yaml:"-" mapstructure:"-"`
}

// ServiceConfig is the ambient host/port block every cmd/ entrypoint in
// the corpus carries.
type ServiceConfig struct {
	Host        string `yaml:"host" mapstructure:"host"`
	MetricsPort int    `yaml:"metrics_port" mapstructure:"metrics_port"`
}

// Load reads the YAML document at path via viper, then layers
// environment overrides on top (spec.md §6: RPC_URL/WS_RPC_URL/
// PRIVATE_KEY, one var per contract address). A .env file in the working
// directory is loaded first, if present, so local development doesn't need
// exported shell vars (grounded on hft-bot/pkg/config.Load's
// viper.New -> SetConfigFile -> AutomaticEnv -> ReadInConfig ->
// Unmarshal sequence).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_path_length", 3)
	v.SetDefault("circuit_breaker_enabled", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("service.host", "0.0.0.0")
	v.SetDefault("service.metrics_port", 9090)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("WS_RPC_URL"); v != "" {
		cfg.WSRPCURL = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.PrivateKey = v
	}
	if v := os.Getenv("LIQUIDATOR_CONTRACT_ADDRESS"); v != "" {
		cfg.LiquidatorContract = v
	}
	if v := os.Getenv("ARB_EXECUTOR_ADDRESS"); v != "" {
		cfg.ArbExecutor = v
	}
	if v := os.Getenv("JIT_PROVIDER_ADDRESS"); v != "" {
		cfg.JITProvider = v
	}
	if v := os.Getenv("LENDING_POOL_ADDRESS"); v != "" {
		cfg.LendingPool = v
	}
	if v := os.Getenv("ORACLE_ADDRESS"); v != "" {
		cfg.Oracle = v
	}
}

// Validate checks the fields the engine cannot start without.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	for _, addr := range []string{c.LiquidatorContract, c.ArbExecutor, c.JITProvider, c.LendingPool, c.Oracle} {
		if addr == "" {
			continue
		}
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid contract address %q", addr)
		}
	}
	if c.MaxPathLength <= 0 {
		c.MaxPathLength = 3
	}
	return nil
}

// StrategyEnabled reports whether name appears in EnabledStrategies.
func (c *Config) StrategyEnabled(name StrategyName) bool {
	for _, s := range c.EnabledStrategies {
		if strings.EqualFold(string(s), string(name)) {
			return true
		}
	}
	return false
}
