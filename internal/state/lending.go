package state

import (
	"context"
	"math/big"
)

// LendingPoolReader is the narrow on-chain read surface both the
// collector's health tick and the strategy's liquidation re-validation
// need from the lending pool.
type LendingPoolReader interface {
	GetUserAccountData(ctx context.Context, user Address) (totalCollateral, totalDebt, healthFactor *big.Int, err error)
	GetReserveConfiguration(ctx context.Context, asset Address) (bitmask *big.Int, err error)
}

// ExtractLiquidationBonusBps pulls the liquidation bonus out of bits
// 16-31 of a reserve's packed configuration bitmask (spec.md §4.2.4).
func ExtractLiquidationBonusBps(bitmask *big.Int) uint32 {
	if bitmask == nil {
		return 0
	}
	shifted := new(big.Int).Rsh(bitmask, 16)
	mask := big.NewInt(0xFFFF)
	return uint32(new(big.Int).And(shifted, mask).Uint64())
}

// DebtToCover applies the close factor (spec.md §3: "5000/10000") and
// the configured per-position cap.
func DebtToCover(totalDebt, cap *big.Int) *big.Int {
	half := MulDivBps(totalDebt, CloseFactorNum)
	if cap == nil || cap.Sign() <= 0 {
		return half
	}
	return Min(half, cap)
}
