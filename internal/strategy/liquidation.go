package strategy

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/ridgeline-labs/chainrunner/internal/collector"
	"github.com/ridgeline-labs/chainrunner/internal/state"
)

// liquidationCandidate is a user the collector's health tick (or a
// prior liquidation_opportunity event) flagged as under-collateralized.
// The strategy re-validates it on-chain on every subsequent block tick
// until it either clears or gets executed.
type liquidationCandidate struct {
	User            state.Address
	CollateralAsset state.Address
	DebtAsset       state.Address
}

func (s *Strategy) trackLiquidationCandidate(c liquidationCandidate) {
	s.liquidationCandidates[c.User] = c
}

// scanLiquidations implements the liquidation leg of spec.md §4.2.2's
// block-triggered scan: re-evaluate every tracked candidate and emit
// the single most profitable target.
func (s *Strategy) scanLiquidations(ctx context.Context) (state.Action, error) {
	var best *state.LiquidationTarget
	for _, c := range s.liquidationCandidates {
		target, err := s.evaluateLiquidation(ctx, c)
		if err != nil {
			s.logger.Debug("liquidation evaluation skipped", zap.String("user", c.User.Hex()), zap.Error(err))
			continue
		}
		if target == nil {
			delete(s.liquidationCandidates, c.User)
			continue
		}
		if best == nil || target.ExpectedProfit.Cmp(best.ExpectedProfit) > 0 {
			best = target
		}
	}
	if best == nil {
		return state.NoneAction, nil
	}
	return state.Action{Kind: state.ActionExecuteLiquidation, Liquidation: best, ExpectedProfit: best.ExpectedProfit}, nil
}

// revalidateLiquidation implements spec.md §4.2.2's liquidation_opportunity
// handling: deserialize, re-validate on-chain, and emit ExecuteLiquidation
// if still profitable. The candidate is also tracked so later block
// ticks keep re-checking it.
func (s *Strategy) revalidateLiquidation(ctx context.Context, ev *collector.LiquidationOpportunityEvent) (state.Action, error) {
	if ev == nil {
		return state.NoneAction, nil
	}
	c := liquidationCandidate{
		User:            parseAddress(ev.User),
		CollateralAsset: parseAddress(ev.CollateralAsset),
		DebtAsset:       parseAddress(ev.DebtAsset),
	}
	s.trackLiquidationCandidate(c)

	target, err := s.evaluateLiquidation(ctx, c)
	if err != nil {
		return state.NoneAction, err
	}
	if target == nil {
		return state.NoneAction, nil
	}
	return state.Action{Kind: state.ActionExecuteLiquidation, Liquidation: target, ExpectedProfit: target.ExpectedProfit}, nil
}

// evaluateLiquidation implements spec.md §4.2.4 end to end. A nil
// result with a nil error means "no longer an opportunity" (position
// healthy again, missing price, or below threshold) and is dropped
// silently per spec.md §7; a non-nil error means the on-chain read
// itself failed.
func (s *Strategy) evaluateLiquidation(ctx context.Context, c liquidationCandidate) (*state.LiquidationTarget, error) {
	if s.lending == nil {
		return nil, fmt.Errorf("no lending pool reader configured")
	}

	_, totalDebt, healthFactor, err := s.lending.GetUserAccountData(ctx, c.User)
	if err != nil {
		return nil, fmt.Errorf("get user account data: %w", err)
	}
	if healthFactor.Cmp(state.OneE18) >= 0 {
		return nil, nil
	}

	bitmask, err := s.lending.GetReserveConfiguration(ctx, c.CollateralAsset)
	if err != nil {
		return nil, fmt.Errorf("get reserve configuration: %w", err)
	}
	bonusBps := state.ExtractLiquidationBonusBps(bitmask)

	debtToCover := state.DebtToCover(totalDebt, s.cfg.MaxLiquidationCap)
	if debtToCover.Sign() <= 0 {
		return nil, nil
	}

	debtPrice, ok := s.state.Price(c.DebtAsset)
	if !ok {
		return nil, nil
	}
	collateralPrice, ok := s.state.Price(c.CollateralAsset)
	if !ok {
		return nil, nil
	}

	// seized = (debtToCover * debtPrice * bonusBps) / (collateralPrice * 10000)
	seized := new(big.Int).Mul(debtToCover, debtPrice)
	seized.Mul(seized, big.NewInt(int64(bonusBps)))
	denom := new(big.Int).Mul(collateralPrice, big.NewInt(bpsDenominator))
	if denom.Sign() <= 0 {
		return nil, nil
	}
	seized.Div(seized, denom)

	grossCollateral := state.MulDiv(seized, collateralPrice, state.OneE18)
	grossDebt := state.MulDiv(debtToCover, debtPrice, state.OneE18)
	gross := state.SatSub(grossCollateral, grossDebt)

	gasCost := GasCostWei(s.state.GasPrice(), s.cfg.GasUnitsLiquidation, s.cfg.GasPriceMultiplier)
	gasCostBase := s.gasCostToBase(gasCost)

	flashFeeBps := s.cfg.FlashLoanFeesBps[state.ProviderPoolA]
	flashFee := state.MulDivBps(debtToCover, flashFeeBps)
	flashFeeBase := state.MulDiv(flashFee, debtPrice, state.OneE18)

	net := state.SatSub(gross, flashFeeBase)
	net = state.SatSub(net, gasCostBase)

	if s.cfg.MinProfitThreshold != nil && net.Cmp(s.cfg.MinProfitThreshold) <= 0 {
		return nil, nil
	}

	return &state.LiquidationTarget{
		User: c.User, CollateralAsset: c.CollateralAsset, DebtAsset: c.DebtAsset,
		DebtToCover: debtToCover, LiquidationBonusBps: bonusBps,
		ExpectedProfit: net, GasCostEstimate: gasCost,
	}, nil
}
