// Package state holds the shared, process-wide data model that the
// strategy owns and the collector/executor read or populate: pool
// reserves, token prices, lending positions, and the action types that
// flow from strategy to executor.
package state

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Address is the 20-byte identifier used throughout the engine; equality
// is by bytes, same as go-ethereum's.
type Address = common.Address

// Hash is a 32-byte identifier, used for transaction/bundle hashes.
type Hash = common.Hash

// PoolKind distinguishes the reserve/quote model a pool uses.
type PoolKind int

const (
	KindConstantProduct PoolKind = iota
	KindConcentrated
	KindStable
)

func (k PoolKind) String() string {
	switch k {
	case KindConstantProduct:
		return "constant_product"
	case KindConcentrated:
		return "concentrated"
	case KindStable:
		return "stable"
	default:
		return "unknown"
	}
}

// FlashLoanProvider identifies a flash-loan source.
type FlashLoanProvider int

const (
	ProviderPoolA FlashLoanProvider = iota
	ProviderVault
	ProviderConcentrated
)

func (p FlashLoanProvider) String() string {
	switch p {
	case ProviderPoolA:
		return "pool_a"
	case ProviderVault:
		return "vault"
	case ProviderConcentrated:
		return "concentrated"
	default:
		return "unknown"
	}
}

// TokenPrice is the strategy's cache of oracle-denominated asset prices.
// Absent entries disqualify any opportunity referencing that asset.
type TokenPrice struct {
	Asset     Address
	Price     *big.Int // oracle units, e.g. 1e8-scaled USD
	UpdatedAt time.Time
}

// PoolReserves is the strategy's cache of one pool's on-chain reserves.
type PoolReserves struct {
	Pool        Address
	TokenA      Address
	TokenB      Address
	ReserveA    *big.Int
	ReserveB    *big.Int
	FeeBps      uint32
	Kind        PoolKind
	LastUpdated time.Time

	// Concentrated-only fields, populated by the Concentrated sync path.
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
}

// Positive reports whether both reserves are strictly positive, the
// precondition for emitting any quote against this pool.
func (p *PoolReserves) Positive() bool {
	return p != nil && p.ReserveA != nil && p.ReserveB != nil &&
		p.ReserveA.Sign() > 0 && p.ReserveB.Sign() > 0
}

// OneE18 is the fixed-point health-factor threshold (1.0 scaled by 1e18).
var OneE18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// LendingPosition is recomputed per evaluation and never cached across
// blocks.
type LendingPosition struct {
	User                 Address
	TotalCollateral      *big.Int
	TotalDebt            *big.Int
	LiquidationThreshold uint32 // bps
	LTV                  uint32 // bps
	HealthFactor         *big.Int
}

// Liquidatable reports healthFactor < 1e18.
func (p *LendingPosition) Liquidatable() bool {
	return p != nil && p.HealthFactor != nil && p.HealthFactor.Cmp(OneE18) < 0
}

// CloseFactorNum / CloseFactorDen express the 50% close factor as a
// fraction to keep ledger math integral.
const (
	CloseFactorNum = 5000
	CloseFactorDen = 10000
)

// LiquidationTarget is a validated, profitable liquidation candidate.
type LiquidationTarget struct {
	User                      Address
	CollateralAsset           Address
	DebtAsset                 Address
	DebtToCover               *big.Int
	LiquidationBonusBps       uint32
	ExpectedProfit            *big.Int // base-asset units
	GasCostEstimate           *big.Int // wei
	ReceiveCollateralAsClaim  bool
}

// SwapDirection distinguishes token0->token1 from token1->token0 on a
// pool whose tokens have a canonical order.
type SwapDirection int

const (
	DirectionAToB SwapDirection = iota
	DirectionBToA
)

// SwapLeg is one hop of a swap path.
type SwapLeg struct {
	Pool         Address
	Kind         PoolKind
	TokenIn      Address
	TokenOut     Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Direction    SwapDirection

	// Concentrated-only.
	ConcentratedFeeBps uint32
	// Stable-only: token indices into the pool's registered token list.
	StableIndexIn, StableIndexOut int
}

// ArbitragePath is a cycle of swap legs that returns to StartToken.
type ArbitragePath struct {
	StartToken   Address
	BorrowAmount *big.Int
	Legs         []SwapLeg
}

// FlashLoanPlan selects a flash-loan source for a given opportunity.
type FlashLoanPlan struct {
	Asset      Address
	Amount     *big.Int
	Provider   FlashLoanProvider
	FeeRateBps uint32
}

// JITKind distinguishes the AMM flavor a JIT plan targets.
type JITKind int

const (
	JITConstantProduct JITKind = iota
	JITConcentrated
)

// JITPlan has a single-block lifetime: add, observe the victim swap,
// remove.
type JITPlan struct {
	Pool            Address
	Token0, Token1  Address
	Amount0, Amount1 *big.Int
	Kind            JITKind
	Fee             uint32
	TickLower       int32
	TickUpper       int32
	PositionID      *big.Int
	MinFeeExpected  *big.Int
	VictimTxHash    Hash
	UseFlashbots    bool
}

// ActionKind tags the closed sum type Action.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionExecuteArbitrage
	ActionExecuteJIT
	ActionExecuteLiquidation
	ActionExecuteBackrun
	ActionTriggerCircuitBreaker
)

func (k ActionKind) String() string {
	switch k {
	case ActionExecuteArbitrage:
		return "execute_arbitrage"
	case ActionExecuteJIT:
		return "execute_jit"
	case ActionExecuteLiquidation:
		return "execute_liquidation"
	case ActionExecuteBackrun:
		return "execute_backrun"
	case ActionTriggerCircuitBreaker:
		return "trigger_circuit_breaker"
	default:
		return "none"
	}
}

// Action is the single payload the strategy hands to the executor.
// Exactly one of the plan fields (Arbitrage, JIT, Liquidation) is
// populated, matching ActionKind; ExpectedProfit accompanies the plan.
type Action struct {
	Kind ActionKind

	Arbitrage  *ArbitragePath
	ExpectedProfit *big.Int

	JIT *JITPlan

	Liquidation *LiquidationTarget

	BackrunTxHash Hash

	CircuitBreakerReason string

	// UseFlashbots carries through to the executor's path selection.
	UseFlashbots bool
}

// NoneAction is the canonical no-op action.
var NoneAction = Action{Kind: ActionNone}
