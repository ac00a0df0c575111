package strategy

import (
	"context"
	"math/big"

	"github.com/ridgeline-labs/chainrunner/internal/state"
)

// arbEdge is one directed hop of the pool-token multigraph (spec.md §9:
// "the graph as an adjacency mapping token -> list<(pool, otherToken)>").
type arbEdge struct {
	pool state.Address
	kind state.PoolKind
	from state.Address
	to   state.Address
}

func buildArbGraph(pools []MonitoredPool) map[state.Address][]arbEdge {
	g := make(map[state.Address][]arbEdge)
	for _, p := range pools {
		g[p.TokenA] = append(g[p.TokenA], arbEdge{pool: p.Pool, kind: p.Kind, from: p.TokenA, to: p.TokenB})
		g[p.TokenB] = append(g[p.TokenB], arbEdge{pool: p.Pool, kind: p.Kind, from: p.TokenB, to: p.TokenA})
	}
	return g
}

// enumerateCycles walks the multigraph for every simple cycle back to
// start: no pool repeated, length <= maxLen (spec.md §4.2.3). A cycle of
// length exactly maxLen is enumerated; maxLen+1 is not (§8 boundary).
func enumerateCycles(g map[state.Address][]arbEdge, start state.Address, maxLen int) [][]arbEdge {
	var results [][]arbEdge
	var path []arbEdge
	visitedPools := make(map[state.Address]bool)

	var dfs func(current state.Address)
	dfs = func(current state.Address) {
		if len(path) > 0 && current == start {
			cycle := make([]arbEdge, len(path))
			copy(cycle, path)
			results = append(results, cycle)
			return
		}
		if len(path) >= maxLen {
			return
		}
		for _, e := range g[current] {
			if visitedPools[e.pool] {
				continue
			}
			visitedPools[e.pool] = true
			path = append(path, e)
			dfs(e.to)
			path = path[:len(path)-1]
			visitedPools[e.pool] = false
		}
	}
	dfs(start)
	return results
}

// arbCandidate is one borrow-amount trial's result.
type arbCandidate struct {
	path *state.ArbitragePath
	net  *big.Int
}

// scanArbitrage implements spec.md §4.2.3 end to end: enumerate cycles
// per monitored start token, coarse-search the optimal borrow for each,
// and emit the single highest-net-profit plan.
func (s *Strategy) scanArbitrage(ctx context.Context) (state.Action, error) {
	if s.cfg.MaxFlashLoanAmount == nil || s.cfg.MaxFlashLoanAmount.Sign() <= 0 {
		return state.NoneAction, nil
	}
	graph := buildArbGraph(s.cfg.MonitoredPools)

	var best *arbCandidate
	for _, startToken := range s.cfg.MonitoredAssets {
		for _, cycle := range enumerateCycles(graph, startToken, s.cfg.MaxPathLength) {
			cand := s.bestBorrowForCycle(ctx, startToken, cycle)
			if cand == nil {
				continue
			}
			if best == nil || isBetterArb(cand, best) {
				best = cand
			}
		}
	}

	if best == nil {
		return state.NoneAction, nil
	}
	return state.Action{Kind: state.ActionExecuteArbitrage, Arbitrage: best.path, ExpectedProfit: best.net}, nil
}

// bestBorrowForCycle runs the coarse line search spec.md §4.2.3 step 1
// calls for: b in {max/100, 2*max/100, ..., 10*max/100}.
func (s *Strategy) bestBorrowForCycle(ctx context.Context, startToken state.Address, cycle []arbEdge) *arbCandidate {
	step := new(big.Int).Div(s.cfg.MaxFlashLoanAmount, big.NewInt(100))
	if step.Sign() <= 0 {
		return nil
	}

	var best *arbCandidate
	for i := 1; i <= 10; i++ {
		borrow := new(big.Int).Mul(step, big.NewInt(int64(i)))

		legs, final, ok := s.simulateCycle(ctx, cycle, borrow)
		if !ok {
			continue
		}

		net := s.arbitrageNetProfit(startToken, borrow, final, len(legs))
		if net == nil || net.Sign() <= 0 {
			continue
		}

		cand := &arbCandidate{
			path: &state.ArbitragePath{StartToken: startToken, BorrowAmount: borrow, Legs: legs},
			net:  net,
		}
		if best == nil || cand.net.Cmp(best.net) > 0 {
			best = cand
		}
	}
	return best
}

// simulateCycle implements spec.md §4.2.3 step 2: iterate legs, quoting
// each with the pool's kind-specific formula; any zero quote or an
// amountIn exceeding reserves rejects the whole path.
func (s *Strategy) simulateCycle(ctx context.Context, cycle []arbEdge, borrow *big.Int) ([]state.SwapLeg, *big.Int, bool) {
	legs := make([]state.SwapLeg, 0, len(cycle))
	amount := borrow

	for _, e := range cycle {
		reserves, ok := s.state.Reserves(e.pool)
		if !ok {
			return nil, nil, false
		}

		direction := state.DirectionAToB
		if e.from == reserves.TokenB {
			direction = state.DirectionBToA
		}

		leg := state.SwapLeg{
			Pool: e.pool, Kind: e.kind, TokenIn: e.from, TokenOut: e.to,
			AmountIn: amount, Direction: direction,
		}
		if e.kind == state.KindStable {
			if direction == state.DirectionAToB {
				leg.StableIndexIn, leg.StableIndexOut = 0, 1
			} else {
				leg.StableIndexIn, leg.StableIndexOut = 1, 0
			}
		} else if amount.Cmp(reservesIn(reserves, direction)) > 0 {
			return nil, nil, false
		}

		quote, err := QuoteLeg(ctx, leg, reserves, s.stable)
		if err != nil || quote == nil || quote.Sign() <= 0 {
			return nil, nil, false
		}

		leg.MinAmountOut = applySlippage(quote, s.cfg.MaxSlippageBps)
		legs = append(legs, leg)
		amount = quote
	}

	return legs, amount, true
}

func reservesIn(r *state.PoolReserves, dir state.SwapDirection) *big.Int {
	if dir == state.DirectionAToB {
		return r.ReserveA
	}
	return r.ReserveB
}

// arbitrageNetProfit implements spec.md §4.2.3 step 3: gross converted
// to the base asset via the start token's cached price, less the
// flash-loan fee and gas cost, both converted the same way.
func (s *Strategy) arbitrageNetProfit(startToken state.Address, borrow, final *big.Int, numLegs int) *big.Int {
	price, ok := s.state.Price(startToken)
	if !ok {
		return nil
	}

	gross := state.SatSub(final, borrow)
	grossBase := ToBaseAsset(gross, price)

	flashFeeBps := s.cfg.FlashLoanFeesBps[state.ProviderPoolA]
	flashFee := state.MulDivBps(borrow, flashFeeBps)
	flashFeeBase := ToBaseAsset(flashFee, price)

	gasUnits := s.cfg.GasUnitsArbBase + s.cfg.GasUnitsArbPerLeg*uint64(numLegs)
	gasCost := GasCostWei(s.state.GasPrice(), gasUnits, s.cfg.GasPriceMultiplier)
	gasCostBase := s.gasCostToBase(gasCost)

	net := state.SatSub(grossBase, flashFeeBase)
	net = state.SatSub(net, gasCostBase)

	if s.cfg.MinProfitThreshold != nil && net.Cmp(s.cfg.MinProfitThreshold) <= 0 {
		return big.NewInt(0)
	}
	return net
}

func applySlippage(quote *big.Int, maxSlippageBps uint32) *big.Int {
	if maxSlippageBps >= bpsDenominator {
		return big.NewInt(0)
	}
	return state.MulDivBps(quote, bpsDenominator-maxSlippageBps)
}

// isBetterArb applies spec.md §4.2.3's tie-break: higher net profit; on
// tie, shorter path; on further tie, lower borrow amount.
func isBetterArb(a, b *arbCandidate) bool {
	if c := a.net.Cmp(b.net); c != 0 {
		return c > 0
	}
	if len(a.path.Legs) != len(b.path.Legs) {
		return len(a.path.Legs) < len(b.path.Legs)
	}
	return a.path.BorrowAmount.Cmp(b.path.BorrowAmount) < 0
}
