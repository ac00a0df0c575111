package strategy

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ridgeline-labs/chainrunner/internal/collector"
	"github.com/ridgeline-labs/chainrunner/internal/state"
)

// parseAddress decodes the hex-string JSON-boundary representation of
// an address back into state.Address; malformed input decodes to the
// zero address rather than panicking, matching the engine's "errors
// inside the strategy's scans degrade to no-action" rule (spec.md §7).
func parseAddress(hex string) state.Address {
	return common.HexToAddress(hex)
}

// hintedSwap is the loosely-typed payload a private-relay hint stream
// surfaces for a pending swap; a real integration would decode a typed
// mempool transaction, but this engine only sees what the hint source
// chooses to expose.
type hintedSwap struct {
	pool     state.Address
	notional *big.Int
}

func parseHintedSwap(raw any) (hintedSwap, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return hintedSwap{}, false
	}
	poolHex, _ := m["pool"].(string)
	notionalStr, _ := m["notional"].(string)
	if poolHex == "" || notionalStr == "" {
		return hintedSwap{}, false
	}
	notional, ok := new(big.Int).SetString(notionalStr, 10)
	if !ok {
		return hintedSwap{}, false
	}
	return hintedSwap{pool: common.HexToAddress(poolHex), notional: notional}, true
}

// handleMevHint implements spec.md §4.2.5(b): construct a JIT plan
// around a hinted pending transaction. Any hint that doesn't carry a
// recognizable "swaps" payload degrades to no action.
func (s *Strategy) handleMevHint(ctx context.Context, ev *collector.MevHintEvent) (state.Action, error) {
	if ev == nil || !s.cfg.EnabledJIT {
		return state.NoneAction, nil
	}

	swapsRaw, ok := ev.Hints["swaps"]
	if !ok {
		return state.NoneAction, nil
	}
	swap, ok := parseHintedSwap(swapsRaw)
	if !ok {
		return state.NoneAction, nil
	}

	reserves, ok := s.state.Reserves(swap.pool)
	if !ok || !reserves.Positive() {
		return state.NoneAction, nil
	}

	plan, net := s.buildJITPlan(reserves, swap.notional, ev.TxHash)
	if plan == nil {
		return state.NoneAction, nil
	}
	if s.cfg.MinFeeExpected != nil && net.Cmp(s.cfg.MinFeeExpected) <= 0 {
		return state.NoneAction, nil
	}

	return state.Action{
		Kind:           state.ActionExecuteJIT,
		JIT:            plan,
		ExpectedProfit: net,
		UseFlashbots:   true,
	}, nil
}

// buildJITPlan sizes the deposit as a configurable fraction of the
// pool's reserves (default 0.5%) and estimates the captured fee
// (spec.md §4.2.5): swapNotional * poolFeeRate * liquidityShare, where
// liquidityShare is approximated by the same deposit fraction.
func (s *Strategy) buildJITPlan(reserves *state.PoolReserves, notional *big.Int, txHashHex string) (*state.JITPlan, *big.Int) {
	fractionBps := s.cfg.JITDepositFractionBps
	if fractionBps == 0 {
		fractionBps = 50 // 0.5%
	}

	amount0 := state.MulDivBps(reserves.ReserveA, fractionBps)
	amount1 := state.MulDivBps(reserves.ReserveB, fractionBps)
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		return nil, nil
	}

	grossFee := state.MulDivBps(notional, reserves.FeeBps)
	grossFee = state.MulDivBps(grossFee, fractionBps)

	gasCost := GasCostWei(s.state.GasPrice(), s.cfg.GasUnitsJIT, s.cfg.GasPriceMultiplier)
	gasCostBase := s.gasCostToBase(gasCost)

	flashFeeBps := s.cfg.FlashLoanFeesBps[state.ProviderVault]
	combinedNotional := new(big.Int).Add(amount0, amount1)
	flashFee := state.MulDivBps(combinedNotional, flashFeeBps)

	net := state.SatSub(grossFee, flashFee)
	net = state.SatSub(net, gasCostBase)

	kind := state.JITConstantProduct
	if reserves.Kind == state.KindConcentrated {
		kind = state.JITConcentrated
	}

	plan := &state.JITPlan{
		Pool: reserves.Pool, Token0: reserves.TokenA, Token1: reserves.TokenB,
		Amount0: amount0, Amount1: amount1, Kind: kind, Fee: reserves.FeeBps,
		MinFeeExpected: net, VictimTxHash: common.HexToHash(txHashHex), UseFlashbots: true,
	}
	return plan, net
}
