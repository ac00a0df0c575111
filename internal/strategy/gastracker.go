package strategy

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-labs/chainrunner/internal/state"
)

// oracleScale matches TokenPrice's documented oracle-unit scale
// (1e8-scaled USD, the common Chainlink convention).
var oracleScale = big.NewInt(100_000_000)

// GasCostWei computes gasPriceWei * gasUnits * multiplier in wei
// (spec.md §9: "gasCost = gasPriceWei · gasUnits · gasMultiplier").
// The multiplier is the one place outside the profit filter that
// decimal.Decimal is allowed to touch ledger math, since it arrives as
// a configured safety factor rather than a chain-derived quantity.
func GasCostWei(gasPriceWei *big.Int, gasUnits uint64, multiplier decimal.Decimal) *big.Int {
	if gasPriceWei == nil || gasPriceWei.Sign() <= 0 || gasUnits == 0 {
		return big.NewInt(0)
	}
	base := new(big.Int).Mul(gasPriceWei, new(big.Int).SetUint64(gasUnits))
	if multiplier.Sign() <= 0 {
		return base
	}
	scaled := decimal.NewFromBigInt(base, 0).Mul(multiplier)
	return scaled.BigInt()
}

// ToBaseAsset converts an amount denominated in some asset's smallest
// unit into base-asset (oracle-quote) units using the cached price.
func ToBaseAsset(amount, price *big.Int) *big.Int {
	if amount == nil || price == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	return state.MulDiv(amount, price, oracleScale)
}

// gasCostToBase converts a wei-denominated gas cost into base-asset
// terms via the configured native gas asset's cached price. spec.md §9
// flags the reference source's gas-unit handling as possibly buggy and
// asks implementers to verify units; absent a priced native gas asset,
// this falls back to treating the wei figure as already base-denominated
// rather than silently zeroing the cost out of the profit filter.
func (s *Strategy) gasCostToBase(gasCostWei *big.Int) *big.Int {
	if s.cfg.NativeGasAsset == (state.Address{}) {
		return gasCostWei
	}
	price, ok := s.state.Price(s.cfg.NativeGasAsset)
	if !ok {
		return gasCostWei
	}
	return ToBaseAsset(gasCostWei, price)
}
