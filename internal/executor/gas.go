package executor

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-labs/chainrunner/internal/state"
)

// Fixed per-action gas budgets (spec.md §4.3).
const (
	GasLimitLiquidation          uint64 = 500_000
	GasLimitProtectedLiquidation uint64 = 600_000
	GasLimitArbBase              uint64 = 150_000
	GasLimitArbPerLeg            uint64 = 80_000
	GasLimitJIT                  uint64 = 350_000
)

// gasLimitFor returns the fixed gas budget for an action (spec.md §4.3:
// "liquidation 500k, arbitrage base + perSwap·|legs|, protected liquidation 600k").
func gasLimitFor(action state.Action) uint64 {
	switch action.Kind {
	case state.ActionExecuteLiquidation:
		if action.UseFlashbots {
			return GasLimitProtectedLiquidation
		}
		return GasLimitLiquidation
	case state.ActionExecuteArbitrage:
		legs := uint64(0)
		if action.Arbitrage != nil {
			legs = uint64(len(action.Arbitrage.Legs))
		}
		return GasLimitArbBase + GasLimitArbPerLeg*legs
	case state.ActionExecuteJIT:
		return GasLimitJIT
	default:
		return GasLimitLiquidation
	}
}

// priceFor computes gasPrice = min(currentGasPrice * priorityMultiplier,
// maxGasPrice) (spec.md §4.3).
func priceFor(currentGasPrice *big.Int, priorityMultiplier decimal.Decimal, maxGasPrice *big.Int) *big.Int {
	if currentGasPrice == nil || currentGasPrice.Sign() <= 0 {
		return big.NewInt(0)
	}
	boosted := currentGasPrice
	if priorityMultiplier.Sign() > 0 {
		boosted = decimal.NewFromBigInt(currentGasPrice, 0).Mul(priorityMultiplier).BigInt()
	}
	if maxGasPrice != nil && maxGasPrice.Sign() > 0 && boosted.Cmp(maxGasPrice) > 0 {
		return new(big.Int).Set(maxGasPrice)
	}
	return boosted
}
