package strategy

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ridgeline-labs/chainrunner/internal/state"
	"github.com/ridgeline-labs/chainrunner/pkg/logger"
	"github.com/ridgeline-labs/chainrunner/pkg/metrics"
)

// stubAddress builds a deterministic, distinct test address from a
// single byte so scenario setup reads as token/pool "1", "2", "3"...
func stubAddress(n byte) state.Address {
	return common.BytesToAddress([]byte{n})
}

type stubOracle struct {
	prices map[state.Address]*big.Int
}

func (o *stubOracle) BatchPrices(ctx context.Context, assets []state.Address) (map[state.Address]*big.Int, error) {
	out := make(map[state.Address]*big.Int, len(assets))
	for _, a := range assets {
		if p, ok := o.prices[a]; ok {
			out[a] = p
		}
	}
	return out, nil
}

type stubGasReader struct {
	gasPrice *big.Int
	block    uint64
}

func (g *stubGasReader) GasPrice(ctx context.Context) (*big.Int, error)   { return g.gasPrice, nil }
func (g *stubGasReader) BlockNumber(ctx context.Context) (uint64, error) { return g.block, nil }

type stubConstantProductReader struct {
	reserves map[state.Address][2]*big.Int
}

func (r *stubConstantProductReader) GetReserves(ctx context.Context, pool state.Address) (*big.Int, *big.Int, uint32, error) {
	v := r.reserves[pool]
	return v[0], v[1], 0, nil
}

type stubLendingPool struct {
	totalCollateral, totalDebt, healthFactor *big.Int
	bitmask                                  *big.Int
	err                                      error
}

func (l *stubLendingPool) GetUserAccountData(ctx context.Context, user state.Address) (*big.Int, *big.Int, *big.Int, error) {
	if l.err != nil {
		return nil, nil, nil, l.err
	}
	return l.totalCollateral, l.totalDebt, l.healthFactor, nil
}

func (l *stubLendingPool) GetReserveConfiguration(ctx context.Context, asset state.Address) (*big.Int, error) {
	return l.bitmask, nil
}

func testLogger() *logger.Logger {
	return logger.Dev("test")
}

func testMetrics() *metrics.Registry {
	m, _ := metrics.New()
	return m
}

func bonusBitmask(bonusBps uint32) *big.Int {
	return new(big.Int).Lsh(big.NewInt(int64(bonusBps)), 16)
}
