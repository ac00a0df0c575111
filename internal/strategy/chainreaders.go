package strategy

import (
	"context"
	"math/big"

	"github.com/ridgeline-labs/chainrunner/internal/state"
)

// OracleReader batch-queries the price oracle for every monitored
// asset in one call (spec.md §4.2.1, step 2).
type OracleReader interface {
	BatchPrices(ctx context.Context, assets []state.Address) (map[state.Address]*big.Int, error)
}

// ConstantProductReader reads a ConstantProduct pool's reserves.
type ConstantProductReader interface {
	GetReserves(ctx context.Context, pool state.Address) (reserve0, reserve1 *big.Int, lastUpdated uint32, err error)
}

// ConcentratedReader reads a Concentrated pool's slot0/liquidity.
type ConcentratedReader interface {
	Slot0(ctx context.Context, pool state.Address) (sqrtPriceX96 *big.Int, err error)
	Liquidity(ctx context.Context, pool state.Address) (*big.Int, error)
}

// GasReader reads the current network gas price.
type GasReader interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// MonitoredPool is one pool.monitoredPools config entry, resolved to
// its identity and static attributes.
type MonitoredPool struct {
	Pool    state.Address
	TokenA  state.Address
	TokenB  state.Address
	FeeBps  uint32
	Kind    state.PoolKind
}
