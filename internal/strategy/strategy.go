package strategy

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ridgeline-labs/chainrunner/internal/collector"
	"github.com/ridgeline-labs/chainrunner/internal/state"
	"github.com/ridgeline-labs/chainrunner/pkg/logger"
	"github.com/ridgeline-labs/chainrunner/pkg/metrics"
)

// Config is the strategy's resolved runtime configuration, derived from
// config.Config's string/decimal fields at startup (spec.md §6).
type Config struct {
	EnabledLiquidation bool
	EnabledArbitrage   bool
	EnabledJIT         bool
	EnabledBackrun     bool

	MonitoredAssets []state.Address
	MonitoredPools  []MonitoredPool
	BaseAsset       state.Address // reference asset for arbitrage profit conversion
	NativeGasAsset  state.Address // priced asset used to convert gas cost into base-asset terms

	MaxPathLength      int
	MinProfitThreshold *big.Int
	MaxGasPriceWei     *big.Int
	GasPriceMultiplier decimal.Decimal
	MaxSlippageBps     uint32

	FlashLoanFeesBps   map[state.FlashLoanProvider]uint32
	MaxFlashLoanAmount *big.Int
	MaxLiquidationCap  *big.Int

	CircuitBreakerEnabled  bool
	FailureStreakThreshold int

	JITDepositFractionBps uint32 // default 50 (0.5%)
	MinFeeExpected        *big.Int

	GasUnitsLiquidation          uint64
	GasUnitsProtectedLiquidation uint64
	GasUnitsArbBase              uint64
	GasUnitsArbPerLeg            uint64
	GasUnitsJIT                  uint64
}

// Strategy owns EngineState and performs the per-event profit search
// (spec.md §4.2). It is driven sequentially by a single task; nothing
// here needs its own lock beyond what EngineState already provides.
type Strategy struct {
	logger  *logger.Logger
	metrics *metrics.Registry
	cfg     Config
	state   *state.EngineState

	oracle  OracleReader
	cp      ConstantProductReader
	conc    ConcentratedReader
	gas     GasReader
	lending state.LendingPoolReader
	stable  StableQuoter

	liquidationCandidates map[state.Address]liquidationCandidate
}

// New builds a Strategy against its narrow on-chain read interfaces.
// Any reader may be nil if the corresponding scan is disabled.
func New(oracle OracleReader, cp ConstantProductReader, conc ConcentratedReader, gas GasReader, lending state.LendingPoolReader, stable StableQuoter, m *metrics.Registry, log *logger.Logger, cfg Config) *Strategy {
	return &Strategy{
		logger:                log.Named("strategy"),
		metrics:               m,
		cfg:                   cfg,
		state:                 state.NewEngineState(),
		oracle:                oracle,
		cp:                    cp,
		conc:                  conc,
		gas:                   gas,
		lending:               lending,
		stable:                stable,
		liquidationCandidates: make(map[state.Address]liquidationCandidate),
	}
}

// State exposes the owned EngineState to the executor, which reads its
// gas price and records in-flight transaction hashes on it.
func (s *Strategy) State() *state.EngineState { return s.state }

// UpdateState runs on every block event (spec.md §4.2.1): refresh block
// height and gas price, batch-query the oracle, then resync every
// monitored pool's reserves per its kind.
func (s *Strategy) UpdateState(ctx context.Context) error {
	block, err := s.gas.BlockNumber(ctx)
	if err != nil {
		return state.NewError(state.CategoryTransientChain, fmt.Errorf("fetch block number: %w", err))
	}
	gasPrice, err := s.gas.GasPrice(ctx)
	if err != nil {
		return state.NewError(state.CategoryTransientChain, fmt.Errorf("fetch gas price: %w", err))
	}
	s.state.SetGasPrice(gasPrice)
	s.state.SetLastUpdateBlock(block)

	if len(s.cfg.MonitoredAssets) > 0 && s.oracle != nil {
		prices, err := s.oracle.BatchPrices(ctx, s.cfg.MonitoredAssets)
		if err != nil {
			return state.NewError(state.CategoryTransientChain, fmt.Errorf("batch oracle query: %w", err))
		}
		now := time.Now()
		for asset, price := range prices {
			s.state.SetPrice(&state.TokenPrice{Asset: asset, Price: price, UpdatedAt: now})
		}
	}

	for _, pool := range s.cfg.MonitoredPools {
		if err := s.syncPool(ctx, pool); err != nil {
			s.logger.Debug("pool sync skipped", zap.String("pool", pool.Pool.Hex()), zap.Error(err))
		}
	}
	return nil
}

func (s *Strategy) syncPool(ctx context.Context, pool MonitoredPool) error {
	switch pool.Kind {
	case state.KindConstantProduct:
		if s.cp == nil {
			return fmt.Errorf("no constant-product reader configured")
		}
		r0, r1, lastUpdated, err := s.cp.GetReserves(ctx, pool.Pool)
		if err != nil {
			return err
		}
		reserves := &state.PoolReserves{
			Pool: pool.Pool, TokenA: pool.TokenA, TokenB: pool.TokenB,
			ReserveA: r0, ReserveB: r1, FeeBps: pool.FeeBps, Kind: pool.Kind,
			LastUpdated: time.Unix(int64(lastUpdated), 0),
		}
		s.state.SetReserves(reserves)
		s.derivePriceFromReserves(reserves)

	case state.KindConcentrated:
		if s.conc == nil {
			return fmt.Errorf("no concentrated-liquidity reader configured")
		}
		sqrtPriceX96, err := s.conc.Slot0(ctx, pool.Pool)
		if err != nil {
			return err
		}
		liquidity, err := s.conc.Liquidity(ctx, pool.Pool)
		if err != nil {
			return err
		}
		r0, r1 := EstimateConcentratedReserves(liquidity, sqrtPriceX96)
		reserves := &state.PoolReserves{
			Pool: pool.Pool, TokenA: pool.TokenA, TokenB: pool.TokenB,
			ReserveA: r0, ReserveB: r1, FeeBps: pool.FeeBps, Kind: pool.Kind,
			LastUpdated: time.Now(), SqrtPriceX96: sqrtPriceX96, Liquidity: liquidity,
		}
		s.state.SetReserves(reserves)
		s.derivePriceFromReserves(reserves)

	case state.KindStable:
		// Reserve estimation is skipped; get_dy is queried at quote time
		// (spec.md §4.2.1). Store a placeholder so path search still
		// knows the pool/token identity; Positive() on it is false so it
		// never silently looks like a tradeable constant-product edge.
		s.state.SetReserves(&state.PoolReserves{
			Pool: pool.Pool, TokenA: pool.TokenA, TokenB: pool.TokenB,
			ReserveA: big.NewInt(0), ReserveB: big.NewInt(0), FeeBps: pool.FeeBps,
			Kind: pool.Kind, LastUpdated: time.Now(),
		})
	}
	return nil
}

// derivePriceFromReserves fills in the non-base token's price from the
// reserve ratio when one side of the pool is the configured base asset
// (spec.md §4.2.1).
func (s *Strategy) derivePriceFromReserves(r *state.PoolReserves) {
	if s.cfg.BaseAsset == (state.Address{}) || !r.Positive() {
		return
	}
	basePrice, ok := s.state.Price(s.cfg.BaseAsset)
	if !ok {
		return
	}
	switch {
	case r.TokenA == s.cfg.BaseAsset && r.TokenB != s.cfg.BaseAsset:
		price := state.MulDiv(basePrice, r.ReserveA, r.ReserveB)
		s.state.SetPrice(&state.TokenPrice{Asset: r.TokenB, Price: price, UpdatedAt: time.Now()})
	case r.TokenB == s.cfg.BaseAsset && r.TokenA != s.cfg.BaseAsset:
		price := state.MulDiv(basePrice, r.ReserveB, r.ReserveA)
		s.state.SetPrice(&state.TokenPrice{Asset: r.TokenA, Price: price, UpdatedAt: time.Now()})
	}
}

// ProcessEvent routes one collector event to the right scan and applies
// the safety gates before returning whatever action should reach the
// executor (spec.md §4.2.2, §4.2.6).
func (s *Strategy) ProcessEvent(ctx context.Context, ev collector.Event) (state.Action, error) {
	if s.state.CircuitBreakerTripped() {
		return state.NoneAction, nil
	}

	var (
		action state.Action
		err    error
	)

	switch ev.Kind {
	case collector.KindBlock:
		action, err = s.runScans(ctx)
	case collector.KindLiquidationOpportunity:
		action, err = s.revalidateLiquidation(ctx, ev.LiquidationOpportunity)
	case collector.KindLiquidationEvents:
		action = state.NoneAction
	case collector.KindMevHint:
		action, err = s.handleMevHint(ctx, ev.MevHint)
	default:
		action = state.NoneAction
	}
	if err != nil {
		return state.NoneAction, err
	}

	return s.gate(action), nil
}

// runScans executes the enabled scans in the fixed priority order
// liquidation -> arbitrage, stopping at the first one that finds a plan
// (spec.md §4.2.2). JIT is not scanned here: its pending-swap trigger
// (§4.2.5a) has no event source in this pipeline; JIT plans are only
// constructed from mev_hint events, handled separately.
func (s *Strategy) runScans(ctx context.Context) (state.Action, error) {
	if s.cfg.EnabledLiquidation {
		a, err := s.scanLiquidations(ctx)
		if err != nil {
			return state.NoneAction, err
		}
		if a.Kind != state.ActionNone {
			return a, nil
		}
	}
	if s.cfg.EnabledArbitrage {
		a, err := s.scanArbitrage(ctx)
		if err != nil {
			return state.NoneAction, err
		}
		if a.Kind != state.ActionNone {
			return a, nil
		}
	}
	return state.NoneAction, nil
}

// gate applies the per-emission safety checks spec.md §4.2.6 requires:
// breaker flag and gas ceiling. TriggerCircuitBreaker itself is exempt
// since it is how the breaker gets armed in the first place.
func (s *Strategy) gate(action state.Action) state.Action {
	if action.Kind == state.ActionNone || action.Kind == state.ActionTriggerCircuitBreaker {
		return action
	}
	if s.state.CircuitBreakerTripped() {
		return state.NoneAction
	}
	if s.cfg.MaxGasPriceWei != nil && s.cfg.MaxGasPriceWei.Sign() > 0 && s.state.GasPrice().Cmp(s.cfg.MaxGasPriceWei) > 0 {
		return state.NoneAction
	}
	return action
}

// RecordExecutionOutcome feeds an executor result back into the failure
// streak (spec.md §4.2.6, §7). Once the streak reaches the configured
// threshold it arms the breaker and returns the TriggerCircuitBreaker
// action for the caller to log; the strategy refuses further
// action-bearing events until an operator calls ResetCircuitBreaker.
func (s *Strategy) RecordExecutionOutcome(success bool) state.Action {
	if success {
		s.state.RecordSuccess()
		return state.NoneAction
	}
	if !s.cfg.CircuitBreakerEnabled || s.cfg.FailureStreakThreshold <= 0 {
		return state.NoneAction
	}
	if s.state.RecordFailure(s.cfg.FailureStreakThreshold) && !s.state.CircuitBreakerTripped() {
		s.state.TripCircuitBreaker()
		if s.metrics != nil {
			s.metrics.CircuitBreakerTrips.Inc()
		}
		return state.Action{
			Kind:                 state.ActionTriggerCircuitBreaker,
			CircuitBreakerReason: "consecutive execution failure streak reached threshold",
		}
	}
	return state.NoneAction
}
