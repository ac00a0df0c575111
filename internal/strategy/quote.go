// Package strategy maintains the cached model of pool reserves and
// token prices, searches for profitable opportunities, and emits
// actions (spec.md §4.2).
package strategy

import (
	"context"
	"math/big"

	"github.com/ridgeline-labs/chainrunner/internal/state"
)

const bpsDenominator = 10000

// concentratedBiasNum/Den apply the ~1% positive bias spec.md §4.2.3
// calls for on top of the constant-product approximation used for
// concentrated-liquidity pools. This is an explicit design-level
// approximation, not a tick walk (spec.md §9).
const (
	concentratedBiasNum = 101
	concentratedBiasDen = 100
)

// QuoteConstantProduct implements spec.md §4.2.3's constant-product
// formula generalized to the pool's actual fee:
//
//	amountOut = amountIn*(10000-feeBps)*reserveOut / (reserveIn*10000 + amountIn*(10000-feeBps))
//
// Returns zero if reserves are non-positive or amountIn exceeds
// reserveIn, never panics on pathological input.
func QuoteConstantProduct(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return big.NewInt(0)
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}
	if amountIn.Cmp(reserveIn) > 0 {
		return big.NewInt(0)
	}

	feeMultiplier := big.NewInt(int64(bpsDenominator - feeBps))
	amountInWithFee := new(big.Int).Mul(amountIn, feeMultiplier)

	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(bpsDenominator)), amountInWithFee)
	if denominator.Sign() <= 0 {
		return big.NewInt(0)
	}
	return numerator.Div(numerator, denominator)
}

// QuoteConcentrated approximates a concentrated-liquidity quote with
// the constant-product formula plus a small positive bias reflecting
// concentrated efficiency (spec.md §4.2.3). Production code should
// replace this with a tick-walking computation (spec.md §9).
func QuoteConcentrated(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	base := QuoteConstantProduct(amountIn, reserveIn, reserveOut, feeBps)
	if base.Sign() == 0 {
		return base
	}
	biased := new(big.Int).Mul(base, big.NewInt(concentratedBiasNum))
	biased.Div(biased, big.NewInt(concentratedBiasDen))
	if biased.Cmp(reserveOut) >= 0 {
		return state.SatSub(reserveOut, big.NewInt(1))
	}
	return biased
}

// StableQuoter queries a stable-swap pool's get_dy(i, j, dx) on-chain;
// spec.md §4.2.1 skips reserve estimation for stable pools entirely and
// defers to quote time.
type StableQuoter interface {
	GetDy(ctx context.Context, pool state.Address, indexIn, indexOut int, amountIn *big.Int) (*big.Int, error)
}

// QuoteLeg dispatches to the right formula/call for leg.Kind given the
// pool's cached reserves (for ConstantProduct/Concentrated) or a live
// on-chain call (for Stable). Returns zero, never an error, for the
// non-stable kinds — a zero quote is how the caller (simulateCycle) detects
// and rejects a dead leg.
func QuoteLeg(ctx context.Context, leg state.SwapLeg, reserves *state.PoolReserves, stable StableQuoter) (*big.Int, error) {
	switch leg.Kind {
	case state.KindConstantProduct:
		rIn, rOut := orientedReserves(leg, reserves)
		return QuoteConstantProduct(leg.AmountIn, rIn, rOut, reserves.FeeBps), nil
	case state.KindConcentrated:
		rIn, rOut := orientedReserves(leg, reserves)
		return QuoteConcentrated(leg.AmountIn, rIn, rOut, reserves.FeeBps), nil
	case state.KindStable:
		if stable == nil {
			return big.NewInt(0), nil
		}
		return stable.GetDy(ctx, leg.Pool, leg.StableIndexIn, leg.StableIndexOut, leg.AmountIn)
	default:
		return big.NewInt(0), nil
	}
}

// orientedReserves returns (reserveIn, reserveOut) for leg's direction.
func orientedReserves(leg state.SwapLeg, r *state.PoolReserves) (*big.Int, *big.Int) {
	if leg.Direction == state.DirectionAToB {
		return r.ReserveA, r.ReserveB
	}
	return r.ReserveB, r.ReserveA
}

// EstimateConcentratedReserves derives effective reserves from
// liquidity and sqrt price, clamped to >= 1 to avoid degenerate quotes
// (spec.md §4.2.1): reserve0 ~= L/sqrt(P), reserve1 ~= L*sqrt(P), where
// sqrtP = sqrtPriceX96 / 2^96.
func EstimateConcentratedReserves(liquidity, sqrtPriceX96 *big.Int) (reserve0, reserve1 *big.Int) {
	one := big.NewInt(1)
	if liquidity == nil || sqrtPriceX96 == nil || liquidity.Sign() <= 0 || sqrtPriceX96.Sign() <= 0 {
		return one, one
	}

	q96 := new(big.Int).Lsh(big.NewInt(1), 96)

	// reserve1 = L * sqrtP = L * sqrtPriceX96 / 2^96
	r1 := new(big.Int).Mul(liquidity, sqrtPriceX96)
	r1.Div(r1, q96)

	// reserve0 = L / sqrtP = L * 2^96 / sqrtPriceX96
	r0 := new(big.Int).Mul(liquidity, q96)
	r0.Div(r0, sqrtPriceX96)

	if r0.Sign() <= 0 {
		r0 = one
	}
	if r1.Sign() <= 0 {
		r1 = one
	}
	return r0, r1
}
