package strategy

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-labs/chainrunner/internal/collector"
	"github.com/ridgeline-labs/chainrunner/internal/state"
)

// newTwoPoolArbScenario builds a spec.md §8-style fixture: two
// constant-product pools USDC<->WETH priced far enough apart that
// borrowing USDC and routing through both pools returns more USDC than
// was borrowed, net of fees.
func newTwoPoolArbScenario(t *testing.T, minProfit *big.Int) *Strategy {
	t.Helper()

	usdc := stubAddress(1)
	weth := stubAddress(2)
	poolA := stubAddress(10)
	poolB := stubAddress(11)

	cfg := Config{
		EnabledArbitrage: true,
		MonitoredAssets:  []state.Address{usdc, weth},
		MonitoredPools: []MonitoredPool{
			{Pool: poolA, TokenA: usdc, TokenB: weth, FeeBps: 30, Kind: state.KindConstantProduct},
			{Pool: poolB, TokenA: weth, TokenB: usdc, FeeBps: 30, Kind: state.KindConstantProduct},
		},
		BaseAsset:          usdc,
		MaxPathLength:      3,
		MinProfitThreshold: minProfit,
		MaxGasPriceWei:     big.NewInt(200_000_000_000), // 200 gwei ceiling
		GasPriceMultiplier: decimal.NewFromFloat(1.0),
		MaxSlippageBps:     50,
		MaxFlashLoanAmount: big.NewInt(10_000_000_000), // 10,000e6
		FlashLoanFeesBps:   map[state.FlashLoanProvider]uint32{state.ProviderPoolA: 9},
		GasUnitsArbBase:    150_000,
		GasUnitsArbPerLeg:  80_000,
	}

	s := New(&stubOracle{prices: map[state.Address]*big.Int{usdc: big.NewInt(100_000_000)}}, // $1
		&stubConstantProductReader{reserves: map[state.Address][2]*big.Int{
			poolA: {big.NewInt(1_000_000_000_000), new(big.Int).Mul(big.NewInt(500), state.OneE18)}, // 1,000,000e6 / 500e18
			poolB: {new(big.Int).Mul(big.NewInt(600), state.OneE18), big.NewInt(1_100_000_000_000)}, // 600e18 / 1,100,000e6
		}},
		nil, &stubGasReader{gasPrice: big.NewInt(1), block: 100}, // negligible, isolates the profit-threshold gate from gas cost
		nil, nil, testMetrics(), testLogger(), cfg)

	require.NoError(t, s.UpdateState(context.Background()))
	return s
}

func TestScenarioProfitableArbitrageEmitsAction(t *testing.T) {
	s := newTwoPoolArbScenario(t, big.NewInt(0))

	action, err := s.ProcessEvent(context.Background(), collector.Event{Kind: collector.KindBlock, Block: &collector.BlockEvent{BlockNumber: 101}})
	require.NoError(t, err)

	require.Equal(t, state.ActionExecuteArbitrage, action.Kind)
	assert.Len(t, action.Arbitrage.Legs, 2)
	// Profitable direction is USDC->WETH on pool B (cheaper ask) then
	// WETH->USDC on pool A (richer bid); the other direction loses to
	// fees/slippage and is rejected by bestBorrowForCycle.
	assert.Equal(t, action.Arbitrage.Legs[0].Pool, stubAddress(11))
	assert.Equal(t, action.Arbitrage.Legs[1].Pool, stubAddress(10))
	assert.True(t, action.ExpectedProfit.Sign() > 0)
}

func TestScenarioUnprofitablePathRejected(t *testing.T) {
	s := newTwoPoolArbScenario(t, big.NewInt(100_000_000)) // 100e6 threshold exceeds the realized edge

	action, err := s.ProcessEvent(context.Background(), collector.Event{Kind: collector.KindBlock, Block: &collector.BlockEvent{BlockNumber: 101}})
	require.NoError(t, err)
	assert.Equal(t, state.ActionNone, action.Kind)
}

func TestScenarioCircuitBreakerBlocksAction(t *testing.T) {
	s := newTwoPoolArbScenario(t, big.NewInt(0))
	s.State().TripCircuitBreaker()

	action, err := s.ProcessEvent(context.Background(), collector.Event{Kind: collector.KindBlock, Block: &collector.BlockEvent{BlockNumber: 101}})
	require.NoError(t, err)
	assert.Equal(t, state.ActionNone, action.Kind)
}

func TestScenarioGasCeilingVetoesAction(t *testing.T) {
	s := newTwoPoolArbScenario(t, big.NewInt(0))
	s.State().SetGasPrice(big.NewInt(500_000_000_000)) // 500 gwei, above the 200 gwei ceiling

	action, err := s.ProcessEvent(context.Background(), collector.Event{Kind: collector.KindBlock, Block: &collector.BlockEvent{BlockNumber: 101}})
	require.NoError(t, err)
	assert.Equal(t, state.ActionNone, action.Kind)
}

func TestScenarioLiquidationTargetSelected(t *testing.T) {
	weth := stubAddress(2)
	usdc := stubAddress(1)
	user := stubAddress(99)

	cfg := Config{
		EnabledLiquidation: true,
		MinProfitThreshold: big.NewInt(0),
		GasPriceMultiplier: decimal.NewFromFloat(1.0),
		FlashLoanFeesBps:   map[state.FlashLoanProvider]uint32{state.ProviderPoolA: 9},
	}
	lending := &stubLendingPool{
		totalDebt:    new(big.Int).Mul(big.NewInt(100), state.OneE18), // 100e18
		healthFactor: new(big.Int).Div(new(big.Int).Mul(state.OneE18, big.NewInt(95)), big.NewInt(100)), // 0.95e18
		bitmask:      bonusBitmask(10500),
	}
	s := New(nil, nil, nil, &stubGasReader{gasPrice: big.NewInt(50_000_000_000)}, lending, nil, testMetrics(), testLogger(), cfg)
	s.State().SetPrice(&state.TokenPrice{Asset: weth, Price: big.NewInt(2000_00000000)}) // 2000e8
	s.State().SetPrice(&state.TokenPrice{Asset: usdc, Price: big.NewInt(1_00000000)})    // 1e8

	ev := &collector.LiquidationOpportunityEvent{
		User: user.Hex(), CollateralAsset: weth.Hex(), DebtAsset: usdc.Hex(),
	}
	action, err := s.ProcessEvent(context.Background(), collector.Event{Kind: collector.KindLiquidationOpportunity, LiquidationOpportunity: ev})
	require.NoError(t, err)

	require.Equal(t, state.ActionExecuteLiquidation, action.Kind)
	expectedDebtToCover := new(big.Int).Mul(big.NewInt(50), state.OneE18)
	assert.Equal(t, expectedDebtToCover, action.Liquidation.DebtToCover)
	assert.Equal(t, uint32(10500), action.Liquidation.LiquidationBonusBps)
}

func TestScenarioMevHintProducesJITAction(t *testing.T) {
	pool := stubAddress(20)
	token0 := stubAddress(1)
	token1 := stubAddress(2)

	cfg := Config{
		EnabledJIT:         true,
		GasPriceMultiplier: decimal.NewFromFloat(1.0),
		FlashLoanFeesBps:   map[state.FlashLoanProvider]uint32{state.ProviderVault: 0},
	}
	s := New(nil, nil, nil, &stubGasReader{gasPrice: big.NewInt(10_000_000_000)}, nil, nil, testMetrics(), testLogger(), cfg)
	s.State().SetReserves(&state.PoolReserves{
		Pool: pool, TokenA: token0, TokenB: token1,
		ReserveA: new(big.Int).Mul(big.NewInt(1000), state.OneE18), ReserveB: new(big.Int).Mul(big.NewInt(1000), state.OneE18),
		FeeBps: 30, Kind: state.KindConstantProduct, LastUpdated: time.Now(),
	})

	hint := &collector.MevHintEvent{
		TxHash: "0xabcd",
		Hints: map[string]any{
			"swaps": map[string]any{
				"pool":     pool.Hex(),
				"notional": "50000000000000000000000", // 50,000e18
			},
		},
	}
	action, err := s.ProcessEvent(context.Background(), collector.Event{Kind: collector.KindMevHint, MevHint: hint})
	require.NoError(t, err)

	require.Equal(t, state.ActionExecuteJIT, action.Kind)
	assert.True(t, action.UseFlashbots)
	assert.Equal(t, state.Hash(common.HexToHash("0xabcd")), action.JIT.VictimTxHash)
}
