package strategy

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-labs/chainrunner/internal/collector"
	"github.com/ridgeline-labs/chainrunner/internal/state"
)

func TestParseHintedSwapMalformedPayloads(t *testing.T) {
	cases := []any{
		nil,
		"not a map",
		map[string]any{"pool": "0xabc"},              // missing notional
		map[string]any{"notional": "100"},            // missing pool
		map[string]any{"pool": "0xabc", "notional": "not-a-number"},
	}
	for _, c := range cases {
		_, ok := parseHintedSwap(c)
		assert.False(t, ok)
	}
}

func TestParseHintedSwapValidPayload(t *testing.T) {
	swap, ok := parseHintedSwap(map[string]any{"pool": "0xabc", "notional": "12345"})
	require.True(t, ok)
	assert.Equal(t, big.NewInt(12345), swap.notional)
}

func TestBuildJITPlanZeroReservesYieldsNilPlan(t *testing.T) {
	s := New(nil, nil, nil, &stubGasReader{gasPrice: big.NewInt(1)}, nil, nil, testMetrics(), testLogger(), Config{GasPriceMultiplier: decimal.NewFromFloat(1.0)})
	reserves := &state.PoolReserves{ReserveA: big.NewInt(0), ReserveB: big.NewInt(0)}

	plan, net := s.buildJITPlan(reserves, big.NewInt(1000), "0xabcd")
	assert.Nil(t, plan)
	assert.Nil(t, net)
}

func TestHandleMevHintWithoutJITEnabledIsNoop(t *testing.T) {
	s := New(nil, nil, nil, &stubGasReader{gasPrice: big.NewInt(1)}, nil, nil, testMetrics(), testLogger(), Config{GasPriceMultiplier: decimal.NewFromFloat(1.0)})
	action, err := s.handleMevHint(context.Background(), &collector.MevHintEvent{Hints: map[string]any{"swaps": map[string]any{"pool": "0xabc", "notional": "1"}}})
	require.NoError(t, err)
	assert.Equal(t, state.ActionNone, action.Kind)
}

func TestHandleMevHintMissingSwapsKeyIsNoop(t *testing.T) {
	cfg := Config{EnabledJIT: true, GasPriceMultiplier: decimal.NewFromFloat(1.0)}
	s := New(nil, nil, nil, &stubGasReader{gasPrice: big.NewInt(1)}, nil, nil, testMetrics(), testLogger(), cfg)
	action, err := s.handleMevHint(context.Background(), &collector.MevHintEvent{Hints: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, state.ActionNone, action.Kind)
}

func TestHandleMevHintBelowMinFeeExpectedIsNoop(t *testing.T) {
	pool := stubAddress(20)
	cfg := Config{
		EnabledJIT:         true,
		GasPriceMultiplier: decimal.NewFromFloat(1.0),
		MinFeeExpected:     new(big.Int).Mul(big.NewInt(1_000_000_000), state.OneE18), // impossibly high bar
	}
	s := New(nil, nil, nil, &stubGasReader{gasPrice: big.NewInt(1)}, nil, nil, testMetrics(), testLogger(), cfg)
	s.State().SetReserves(&state.PoolReserves{
		Pool: pool, TokenA: stubAddress(1), TokenB: stubAddress(2),
		ReserveA: new(big.Int).Mul(big.NewInt(1000), state.OneE18), ReserveB: new(big.Int).Mul(big.NewInt(1000), state.OneE18),
		FeeBps: 30, Kind: state.KindConstantProduct,
	})

	hint := &collector.MevHintEvent{
		TxHash: "0xabcd",
		Hints: map[string]any{"swaps": map[string]any{
			"pool": pool.Hex(), "notional": "50000000000000000000000",
		}},
	}
	action, err := s.handleMevHint(context.Background(), hint)
	require.NoError(t, err)
	assert.Equal(t, state.ActionNone, action.Kind)
}

func TestHandleMevHintUnknownPoolIsNoop(t *testing.T) {
	cfg := Config{EnabledJIT: true, GasPriceMultiplier: decimal.NewFromFloat(1.0)}
	s := New(nil, nil, nil, &stubGasReader{gasPrice: big.NewInt(1)}, nil, nil, testMetrics(), testLogger(), cfg)

	hint := &collector.MevHintEvent{
		TxHash: "0xabcd",
		Hints: map[string]any{"swaps": map[string]any{
			"pool": stubAddress(99).Hex(), "notional": "1000",
		}},
	}
	action, err := s.handleMevHint(context.Background(), hint)
	require.NoError(t, err)
	assert.Equal(t, state.ActionNone, action.Kind)
}
