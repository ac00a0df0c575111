// Package executor converts a strategy action into signed, submitted
// calldata and awaits its receipt (spec.md §4.3).
package executor

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ridgeline-labs/chainrunner/internal/state"
)

// Contract ABIs are declared inline, following the corpus's pattern of
// loading a simplified ABI fragment for just the methods the core calls
// (spec.md §6: "the full ABI is supplied out-of-band as configuration";
// these fragments are the shape that configuration takes here).
const (
	liquidatorABIJSON = `[
		{"inputs":[{"internalType":"address","name":"collateral","type":"address"},{"internalType":"address","name":"debt","type":"address"},{"internalType":"address","name":"user","type":"address"},{"internalType":"uint256","name":"debtToCover","type":"uint256"},{"internalType":"bool","name":"receiveAsClaim","type":"bool"}],"name":"flashLiquidate","outputs":[],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"internalType":"address","name":"collateral","type":"address"},{"internalType":"address","name":"debt","type":"address"},{"internalType":"address","name":"user","type":"address"},{"internalType":"uint256","name":"debtToCover","type":"uint256"},{"internalType":"bool","name":"receiveAsClaim","type":"bool"},{"internalType":"bytes","name":"hints","type":"bytes"}],"name":"submitProtectedLiquidation","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`

	arbExecutorABIJSON = `[
		{"inputs":[{"internalType":"address","name":"loanToken","type":"address"},{"internalType":"uint256","name":"loanAmount","type":"uint256"},{"internalType":"bytes","name":"arbData","type":"bytes"}],"name":"executeArbitrage","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`

	jitProviderABIJSON = `[
		{"inputs":[{"internalType":"address","name":"pool","type":"address"},{"internalType":"uint256","name":"amount0","type":"uint256"},{"internalType":"uint256","name":"amount1","type":"uint256"}],"name":"executeBalancerJITLiquidity","outputs":[],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"internalType":"address","name":"pool","type":"address"},{"internalType":"uint256","name":"amount0","type":"uint256"},{"internalType":"uint256","name":"amount1","type":"uint256"},{"internalType":"int24","name":"tickLower","type":"int24"},{"internalType":"int24","name":"tickUpper","type":"int24"}],"name":"executeUltraAggressiveJIT","outputs":[],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"components":[{"internalType":"address","name":"pool","type":"address"},{"internalType":"address","name":"token0","type":"address"},{"internalType":"address","name":"token1","type":"address"},{"internalType":"uint256","name":"amount0","type":"uint256"},{"internalType":"uint256","name":"amount1","type":"uint256"},{"internalType":"uint24","name":"fee","type":"uint24"}],"internalType":"struct JITParams[]","name":"jitParams","type":"tuple[]"},{"components":[{"internalType":"int24","name":"tickLower","type":"int24"},{"internalType":"int24","name":"tickUpper","type":"int24"},{"internalType":"uint256","name":"positionId","type":"uint256"}],"internalType":"struct V3Params[]","name":"v3Params","type":"tuple[]"},{"internalType":"uint256","name":"count","type":"uint256"}],"name":"executeBatchMicroJIT","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`
)

// ABIs bundles the parsed contract ABIs the executor packs calldata
// against, mirroring the teacher's per-protocol "client holds its own
// parsed ABI" layout.
type ABIs struct {
	Liquidator  abi.ABI
	ArbExecutor abi.ABI
	JITProvider abi.ABI
}

// LoadABIs parses the three contract ABI fragments once at startup.
func LoadABIs() (*ABIs, error) {
	liquidator, err := abi.JSON(strings.NewReader(liquidatorABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse liquidator ABI: %w", err)
	}
	arbExecutor, err := abi.JSON(strings.NewReader(arbExecutorABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse arb executor ABI: %w", err)
	}
	jitProvider, err := abi.JSON(strings.NewReader(jitProviderABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse JIT provider ABI: %w", err)
	}
	return &ABIs{Liquidator: liquidator, ArbExecutor: arbExecutor, JITProvider: jitProvider}, nil
}

// arbDataArgs is the flat-array ABI encoding arbData packs the
// ArbitragePath's legs into: parallel arrays rather than a tuple array,
// so the flash-loan receiver's callback can decode it with a single
// abi.Arguments.Unpack call mirroring this package's own encode/decode
// pair (spec.md §8: "decoding the produced calldata yields the same
// sequence of legs").
var arbDataArgs = abi.Arguments{
	{Type: mustType("address[]")},
	{Type: mustType("uint8[]")},
	{Type: mustType("address[]")},
	{Type: mustType("address[]")},
	{Type: mustType("uint256[]")},
	{Type: mustType("uint256[]")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// EncodeArbData packs an ArbitragePath's legs into the bytes blob
// executeArbitrage's arbData parameter carries.
func EncodeArbData(path *state.ArbitragePath) ([]byte, error) {
	n := len(path.Legs)
	pools := make([]common.Address, n)
	kinds := make([]uint8, n)
	tokensIn := make([]common.Address, n)
	tokensOut := make([]common.Address, n)
	amountsIn := make([]*big.Int, n)
	minAmountsOut := make([]*big.Int, n)

	for i, leg := range path.Legs {
		pools[i] = leg.Pool
		kinds[i] = uint8(leg.Kind)
		tokensIn[i] = leg.TokenIn
		tokensOut[i] = leg.TokenOut
		amountsIn[i] = leg.AmountIn
		minAmountsOut[i] = leg.MinAmountOut
	}

	return arbDataArgs.Pack(pools, kinds, tokensIn, tokensOut, amountsIn, minAmountsOut)
}

// DecodeArbData reverses EncodeArbData, used by tests to verify the
// round-trip invariant.
func DecodeArbData(data []byte) ([]state.SwapLeg, error) {
	values, err := arbDataArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack arb data: %w", err)
	}
	pools := values[0].([]common.Address)
	kinds := values[1].([]uint8)
	tokensIn := values[2].([]common.Address)
	tokensOut := values[3].([]common.Address)
	amountsIn := values[4].([]*big.Int)
	minAmountsOut := values[5].([]*big.Int)

	legs := make([]state.SwapLeg, len(pools))
	for i := range pools {
		legs[i] = state.SwapLeg{
			Pool: pools[i], Kind: state.PoolKind(kinds[i]),
			TokenIn: tokensIn[i], TokenOut: tokensOut[i],
			AmountIn: amountsIn[i], MinAmountOut: minAmountsOut[i],
		}
	}
	return legs, nil
}

// BuildArbitrageCalldata implements executeArbitrage(loanToken, loanAmount, arbData).
func (a *ABIs) BuildArbitrageCalldata(path *state.ArbitragePath) ([]byte, error) {
	arbData, err := EncodeArbData(path)
	if err != nil {
		return nil, fmt.Errorf("encode arb data: %w", err)
	}
	return a.ArbExecutor.Pack("executeArbitrage", path.StartToken, path.BorrowAmount, arbData)
}

// BuildLiquidationCalldata implements flashLiquidate(collateral, debt, user, debtToCover, receiveAsClaim).
func (a *ABIs) BuildLiquidationCalldata(t *state.LiquidationTarget) ([]byte, error) {
	return a.Liquidator.Pack("flashLiquidate", t.CollateralAsset, t.DebtAsset, t.User, t.DebtToCover, t.ReceiveCollateralAsClaim)
}

// BuildProtectedLiquidationCalldata implements submitProtectedLiquidation,
// packing hints as its trailing bytes argument (the executor passes nil).
func (a *ABIs) BuildProtectedLiquidationCalldata(t *state.LiquidationTarget, hints []byte) ([]byte, error) {
	return a.Liquidator.Pack("submitProtectedLiquidation", t.CollateralAsset, t.DebtAsset, t.User, t.DebtToCover, t.ReceiveCollateralAsClaim, hints)
}

// BuildJITCalldata implements executeBatchMicroJIT, packing every plan in
// plans into one batch whose count is len(plans); the executor calls it
// with a single plan.
func (a *ABIs) BuildJITCalldata(plans []*state.JITPlan) ([]byte, error) {
	type jitParam struct {
		Pool    common.Address
		Token0  common.Address
		Token1  common.Address
		Amount0 *big.Int
		Amount1 *big.Int
		Fee     *big.Int
	}
	type v3Param struct {
		TickLower  *big.Int
		TickUpper  *big.Int
		PositionID *big.Int
	}

	jitParams := make([]jitParam, len(plans))
	v3Params := make([]v3Param, len(plans))
	for i, p := range plans {
		jitParams[i] = jitParam{
			Pool: p.Pool, Token0: p.Token0, Token1: p.Token1,
			Amount0: p.Amount0, Amount1: p.Amount1, Fee: big.NewInt(int64(p.Fee)),
		}
		positionID := p.PositionID
		if positionID == nil {
			positionID = big.NewInt(0)
		}
		v3Params[i] = v3Param{
			TickLower: big.NewInt(int64(p.TickLower)), TickUpper: big.NewInt(int64(p.TickUpper)),
			PositionID: positionID,
		}
	}

	return a.JITProvider.Pack("executeBatchMicroJIT", jitParams, v3Params, big.NewInt(int64(len(plans))))
}
