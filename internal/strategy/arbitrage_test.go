package strategy

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ridgeline-labs/chainrunner/internal/state"
)

func TestBuildArbGraphAddsBothDirections(t *testing.T) {
	tokenA, tokenB := stubAddress(1), stubAddress(2)
	pool := stubAddress(10)

	g := buildArbGraph([]MonitoredPool{{Pool: pool, TokenA: tokenA, TokenB: tokenB, Kind: state.KindConstantProduct}})

	assert.Len(t, g[tokenA], 1)
	assert.Len(t, g[tokenB], 1)
	assert.Equal(t, tokenB, g[tokenA][0].to)
	assert.Equal(t, tokenA, g[tokenB][0].to)
}

func TestEnumerateCyclesRespectsMaxLenAndNoRepeatedPool(t *testing.T) {
	a, b, c := stubAddress(1), stubAddress(2), stubAddress(3)
	pAB, pBC, pCA := stubAddress(10), stubAddress(11), stubAddress(12)

	pools := []MonitoredPool{
		{Pool: pAB, TokenA: a, TokenB: b, Kind: state.KindConstantProduct},
		{Pool: pBC, TokenA: b, TokenB: c, Kind: state.KindConstantProduct},
		{Pool: pCA, TokenA: c, TokenB: a, Kind: state.KindConstantProduct},
	}
	g := buildArbGraph(pools)

	// maxLen 2 can't complete the 3-pool cycle back to a.
	assert.Empty(t, enumerateCycles(g, a, 2))

	// maxLen 3 finds exactly the one 3-hop cycle (in each direction it's reachable).
	cycles := enumerateCycles(g, a, 3)
	require := func(ok bool) {
		if !ok {
			t.Fatalf("expected at least one 3-hop cycle back to start")
		}
	}
	require(len(cycles) >= 1)
	for _, cyc := range cycles {
		seen := map[state.Address]bool{}
		for _, e := range cyc {
			assert.False(t, seen[e.pool], "pool repeated within a single cycle")
			seen[e.pool] = true
		}
	}
}

func TestIsBetterArbTieBreaksOnPathLengthThenBorrow(t *testing.T) {
	short := &arbCandidate{
		net:  big.NewInt(100),
		path: &state.ArbitragePath{Legs: make([]state.SwapLeg, 2), BorrowAmount: big.NewInt(500)},
	}
	long := &arbCandidate{
		net:  big.NewInt(100),
		path: &state.ArbitragePath{Legs: make([]state.SwapLeg, 3), BorrowAmount: big.NewInt(100)},
	}
	assert.True(t, isBetterArb(short, long))
	assert.False(t, isBetterArb(long, short))

	cheaper := &arbCandidate{
		net:  big.NewInt(100),
		path: &state.ArbitragePath{Legs: make([]state.SwapLeg, 2), BorrowAmount: big.NewInt(100)},
	}
	pricier := &arbCandidate{
		net:  big.NewInt(100),
		path: &state.ArbitragePath{Legs: make([]state.SwapLeg, 2), BorrowAmount: big.NewInt(500)},
	}
	assert.True(t, isBetterArb(cheaper, pricier))

	higherProfit := &arbCandidate{
		net:  big.NewInt(200),
		path: &state.ArbitragePath{Legs: make([]state.SwapLeg, 5), BorrowAmount: big.NewInt(999)},
	}
	assert.True(t, isBetterArb(higherProfit, short))
}

func TestApplySlippage(t *testing.T) {
	assert.Equal(t, big.NewInt(995), applySlippage(big.NewInt(1000), 50)) // 0.5%
	assert.Equal(t, big.NewInt(0), applySlippage(big.NewInt(1000), 10000))
}
