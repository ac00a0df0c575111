package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgeline-labs/chainrunner/internal/collector"
	"github.com/ridgeline-labs/chainrunner/internal/engine"
	"github.com/ridgeline-labs/chainrunner/internal/executor"
	"github.com/ridgeline-labs/chainrunner/internal/onchain"
	"github.com/ridgeline-labs/chainrunner/internal/state"
	"github.com/ridgeline-labs/chainrunner/internal/strategy"
	"github.com/ridgeline-labs/chainrunner/pkg/chainclient"
	"github.com/ridgeline-labs/chainrunner/pkg/config"
	"github.com/ridgeline-labs/chainrunner/pkg/logger"
	"github.com/ridgeline-labs/chainrunner/pkg/metrics"
)

var cfgFile string

// rootCmd is chainrunner's entrypoint: load configuration, dial the
// chain, and run the collector/strategy/executor pipeline until
// interrupted (spec.md §2, §6).
var rootCmd = &cobra.Command{
	Use:   "chainrunner",
	Short: "An on-chain MEV search-and-execute engine",
	Long: `chainrunner watches a lending pool and a pool graph for
liquidation, arbitrage, and JIT-liquidity opportunities, and submits
profitable actions through a public or private relay.`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yaml", "path to the configuration document")
	rootCmd.PersistentFlags().Bool("simulation", false, "build and sign transactions but never submit them")
	rootCmd.PersistentFlags().Bool("aggressive", false, "prefer the private relay and a higher priority fee")
	rootCmd.PersistentFlags().Float64("min-profit-usd", 0, "override the configured minimum profit threshold, in USD")
	rootCmd.PersistentFlags().Float64("max-gas-price-gwei", 0, "override the configured gas price ceiling, in gwei")
	rootCmd.PersistentFlags().Uint16("metrics-port", 0, "override the configured Prometheus metrics port")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor implements spec.md §6's exit code contract: 0 normal
// shutdown, 1 configuration error, 2 fatal chain-client error.
func exitCodeFor(err error) int {
	if ce, ok := err.(*state.CategorizedError); ok && ce.Category == state.CategoryFatal {
		return 2
	}
	return 1
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	applyFlagOverrides(cmd, cfg)

	log := logger.New(cfg.Logging)
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	chain, err := chainclient.Dial(ctx, chainclient.Config{
		Endpoints: []string{cfg.RPCURL},
	}, log)
	if err != nil {
		return state.NewError(state.CategoryFatal, fmt.Errorf("dial chain client: %w", err))
	}
	defer chain.Close()

	m, promReg := metrics.New()
	metricsPort := cfg.Service.MetricsPort
	if cfg.MetricsPort > 0 {
		metricsPort = int(cfg.MetricsPort)
	}
	startMetricsServer(ctx, metricsPort, log, promReg)

	abis, err := executor.LoadABIs()
	if err != nil {
		return state.NewError(state.CategoryFatal, fmt.Errorf("load contract ABIs: %w", err))
	}

	strat := buildStrategy(chain, m, log, cfg)
	coll := buildCollector(chain, m, log, cfg)

	var private chainclient.PrivateSubmitter
	if cfg.PrivateRelayEnabled {
		private = chainclient.NewPrivateRelayClient(cfg.PrivateRelayURL, log)
	}

	exec, err := executor.New(chain, private, abis, strat.State(), cfg.PrivateKey, m, log, executorConfig(cfg))
	if err != nil {
		return state.NewError(state.CategoryFatal, fmt.Errorf("build executor: %w", err))
	}

	eng := engine.New(coll, strat, exec, m, log, engine.Config{ActionConcurrency: 1})

	log.Info("chainrunner starting",
		zap.Bool("simulation", cfg.Simulation), zap.Bool("aggressive", cfg.Aggressive))

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		return state.NewError(state.CategoryFatal, fmt.Errorf("engine run: %w", err))
	}

	log.Info("chainrunner shut down")
	return nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetBool("simulation"); v {
		cfg.Simulation = v
	}
	if v, _ := cmd.Flags().GetBool("aggressive"); v {
		cfg.Aggressive = v
	}
	if v, _ := cmd.Flags().GetFloat64("min-profit-usd"); v > 0 {
		cfg.MinProfitUSD = v
		cfg.MinProfitThreshold = decimal.NewFromFloat(v).String()
	}
	if v, _ := cmd.Flags().GetFloat64("max-gas-price-gwei"); v > 0 {
		cfg.MaxGasPriceGwei = v
		cfg.MaxGasPriceWei = decimal.NewFromFloat(v).Mul(decimal.New(1, 9)).String()
	}
	if v, _ := cmd.Flags().GetUint16("metrics-port"); v > 0 {
		cfg.MetricsPort = v
	}
}

// startMetricsServer exposes the Prometheus registry over HTTP; nothing
// in this repo scrapes it, the dashboard is the excluded external
// collaborator (spec.md §1), but the endpoint itself is real.
func startMetricsServer(ctx context.Context, port int, log *logger.Logger, reg *prometheus.Registry) {
	if port <= 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func buildStrategy(chain chainclient.ChainClient, m *metrics.Registry, log *logger.Logger, cfg *config.Config) *strategy.Strategy {
	oracle := onchain.NewOracleReader(chain, common.HexToAddress(cfg.Oracle))
	pool := onchain.NewPoolReader(chain)
	stable := onchain.NewStableReader(chain)
	lending := onchain.NewLendingPoolAdapter(chain, common.HexToAddress(cfg.LendingPool))

	return strategy.New(oracle, pool, pool, chain, lending, stable, m, log, strategyConfig(cfg))
}

func buildCollector(chain chainclient.ChainClient, m *metrics.Registry, log *logger.Logger, cfg *config.Config) *collector.Collector {
	lending := onchain.NewLendingPoolAdapter(chain, common.HexToAddress(cfg.LendingPool))
	blockTime := parseDuration(cfg.BlockTime, 12*time.Second)

	return collector.New(chain, lending, collector.NewStaticUserIndex(nil), m, log, collector.Config{
		BlockTickPeriod: blockTime,
		LendingPool:     common.HexToAddress(cfg.LendingPool),
		MonitoredAssets: resolveAddresses(cfg.MonitoredAssets),
	})
}

func strategyConfig(cfg *config.Config) strategy.Config {
	pools := make([]strategy.MonitoredPool, 0, len(cfg.MonitoredPools))
	for _, p := range cfg.MonitoredPools {
		pools = append(pools, strategy.MonitoredPool{
			Pool:   common.HexToAddress(p.Address),
			TokenA: common.HexToAddress(p.Token0),
			TokenB: common.HexToAddress(p.Token1),
			FeeBps: p.FeeTier,
			Kind:   poolKindFromString(p.Kind),
		})
	}

	assets := resolveAddresses(cfg.MonitoredAssets)
	var baseAsset state.Address
	if len(assets) > 0 {
		baseAsset = assets[0]
	}

	return strategy.Config{
		EnabledLiquidation: cfg.StrategyEnabled(config.StrategyLiquidation),
		EnabledArbitrage:   cfg.StrategyEnabled(config.StrategyArbitrage),
		EnabledJIT:         cfg.StrategyEnabled(config.StrategyJIT),
		EnabledBackrun:     cfg.StrategyEnabled(config.StrategyBackrun),

		MonitoredAssets: assets,
		MonitoredPools:  pools,
		BaseAsset:       baseAsset,

		MaxPathLength:      cfg.MaxPathLength,
		MinProfitThreshold: bigFromDecimalString(cfg.MinProfitThreshold),
		MaxGasPriceWei:     bigFromDecimalString(cfg.MaxGasPriceWei),
		GasPriceMultiplier: decimalFromString(cfg.GasPriceMultiplier, decimal.NewFromFloat(1.2)),
		MaxSlippageBps:     cfg.MaxSlippageBps,

		FlashLoanFeesBps:   parseFlashLoanFees(cfg.FlashLoanFees),
		MaxFlashLoanAmount: bigFromDecimalString(cfg.MaxFlashLoanAmount),

		CircuitBreakerEnabled:  cfg.CircuitBreakerEnabled,
		FailureStreakThreshold: cfg.FailureStreakThreshold,

		GasUnitsLiquidation:          500_000,
		GasUnitsProtectedLiquidation: 600_000,
		GasUnitsArbBase:              150_000,
		GasUnitsArbPerLeg:            80_000,
		GasUnitsJIT:                  350_000,
	}
}

func executorConfig(cfg *config.Config) executor.Config {
	priorityMultiplier := decimal.NewFromFloat(1.1)
	if cfg.Aggressive {
		priorityMultiplier = decimal.NewFromFloat(2.0)
	}
	return executor.Config{
		LiquidatorContract: common.HexToAddress(cfg.LiquidatorContract),
		ArbExecutor:        common.HexToAddress(cfg.ArbExecutor),
		JITProvider:        common.HexToAddress(cfg.JITProvider),

		ChainID:            big.NewInt(1),
		MaxGasPriceWei:     bigFromDecimalString(cfg.MaxGasPriceWei),
		PriorityMultiplier: priorityMultiplier,
		SubmitTimeout:      parseDuration(cfg.SubmitTimeout, 60*time.Second),

		Simulation: cfg.Simulation,
		Aggressive: cfg.Aggressive,

		FailureStreakThreshold: cfg.FailureStreakThreshold,
	}
}

func poolKindFromString(kind string) state.PoolKind {
	switch kind {
	case "concentrated":
		return state.KindConcentrated
	case "stable":
		return state.KindStable
	default:
		return state.KindConstantProduct
	}
}

func resolveAddresses(raw []string) []state.Address {
	out := make([]state.Address, 0, len(raw))
	for _, a := range raw {
		out = append(out, common.HexToAddress(a))
	}
	return out
}

func parseFlashLoanFees(fees []config.FlashLoanFeeConfig) map[state.FlashLoanProvider]uint32 {
	out := make(map[state.FlashLoanProvider]uint32, len(fees))
	for _, f := range fees {
		switch f.Provider {
		case "vault", "balancer":
			out[state.ProviderVault] = f.FeeBps
		default:
			out[state.ProviderPoolA] = f.FeeBps
		}
	}
	return out
}

func decimalFromString(s string, fallback decimal.Decimal) decimal.Decimal {
	if s == "" {
		return fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return d
}

func bigFromDecimalString(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return big.NewInt(0)
	}
	return d.BigInt()
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
