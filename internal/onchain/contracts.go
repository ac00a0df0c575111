// Package onchain adapts pkg/chainclient's raw CallContract surface into
// the narrow reader interfaces internal/strategy and internal/state
// consume, following the corpus's pack/call/unpack pattern
// (crypto-wallet/internal/blockchain/smart_contract_engine.go's
// CallContract: abi.Pack -> ethereum.CallMsg -> client.CallContract ->
// abi.Unpack).
package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/ridgeline-labs/chainrunner/internal/state"
	"github.com/ridgeline-labs/chainrunner/pkg/chainclient"
)

// ABI fragments cover only the read methods the strategy needs; the
// full ABIs are supplied out-of-band as configuration the same way
// internal/executor's contract ABIs are (spec.md §6).
const (
	pairABIJSON = `[
		{"inputs":[],"name":"getReserves","outputs":[{"internalType":"uint112","name":"reserve0","type":"uint112"},{"internalType":"uint112","name":"reserve1","type":"uint112"},{"internalType":"uint32","name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"}
	]`

	concentratedPoolABIJSON = `[
		{"inputs":[],"name":"slot0","outputs":[{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},{"internalType":"int24","name":"tick","type":"int24"},{"internalType":"uint16","name":"observationIndex","type":"uint16"},{"internalType":"uint16","name":"observationCardinality","type":"uint16"},{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},{"internalType":"uint8","name":"feeProtocol","type":"uint8"},{"internalType":"bool","name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"liquidity","outputs":[{"internalType":"uint128","name":"","type":"uint128"}],"stateMutability":"view","type":"function"}
	]`

	stablePoolABIJSON = `[
		{"inputs":[{"internalType":"int128","name":"i","type":"int128"},{"internalType":"int128","name":"j","type":"int128"},{"internalType":"uint256","name":"dx","type":"uint256"}],"name":"get_dy","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`

	oracleABIJSON = `[
		{"inputs":[{"internalType":"address[]","name":"assets","type":"address[]"}],"name":"getAssetsPrices","outputs":[{"internalType":"uint256[]","name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"}
	]`

	lendingPoolABIJSON = `[
		{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getUserAccountData","outputs":[{"internalType":"uint256","name":"totalCollateralBase","type":"uint256"},{"internalType":"uint256","name":"totalDebtBase","type":"uint256"},{"internalType":"uint256","name":"availableBorrowsBase","type":"uint256"},{"internalType":"uint256","name":"currentLiquidationThreshold","type":"uint256"},{"internalType":"uint256","name":"ltv","type":"uint256"},{"internalType":"uint256","name":"healthFactor","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"internalType":"address","name":"asset","type":"address"}],"name":"getConfiguration","outputs":[{"internalType":"uint256","name":"data","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

var (
	pairABI            = mustParseABI(pairABIJSON)
	concentratedABI    = mustParseABI(concentratedPoolABIJSON)
	stablePoolABI      = mustParseABI(stablePoolABIJSON)
	oracleABI          = mustParseABI(oracleABIJSON)
	lendingPoolABI     = mustParseABI(lendingPoolABIJSON)
)

// call packs args, issues an eth_call against target, and returns every
// output value of method as unpacked by the ABI.
func call(ctx context.Context, chain chainclient.ChainClient, contractABI abi.ABI, target state.Address, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := chain.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, state.NewError(state.CategoryTransientChain, fmt.Errorf("call %s: %w", method, err))
	}
	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// PoolReader implements strategy.ConstantProductReader and
// strategy.ConcentratedReader against any pair/pool contract reachable
// through chain.
type PoolReader struct {
	chain chainclient.ChainClient
}

func NewPoolReader(chain chainclient.ChainClient) *PoolReader {
	return &PoolReader{chain: chain}
}

func (p *PoolReader) GetReserves(ctx context.Context, pool state.Address) (*big.Int, *big.Int, uint32, error) {
	values, err := call(ctx, p.chain, pairABI, pool, "getReserves")
	if err != nil {
		return nil, nil, 0, err
	}
	r0 := values[0].(*big.Int)
	r1 := values[1].(*big.Int)
	ts := values[2].(uint32)
	return r0, r1, ts, nil
}

func (p *PoolReader) Slot0(ctx context.Context, pool state.Address) (*big.Int, error) {
	values, err := call(ctx, p.chain, concentratedABI, pool, "slot0")
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

func (p *PoolReader) Liquidity(ctx context.Context, pool state.Address) (*big.Int, error) {
	values, err := call(ctx, p.chain, concentratedABI, pool, "liquidity")
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

// StableReader implements strategy.StableQuoter.
type StableReader struct {
	chain chainclient.ChainClient
}

func NewStableReader(chain chainclient.ChainClient) *StableReader {
	return &StableReader{chain: chain}
}

func (r *StableReader) GetDy(ctx context.Context, pool state.Address, indexIn, indexOut int, amountIn *big.Int) (*big.Int, error) {
	values, err := call(ctx, r.chain, stablePoolABI, pool, "get_dy", big.NewInt(int64(indexIn)), big.NewInt(int64(indexOut)), amountIn)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

// OracleReader implements strategy.OracleReader against a single
// batch-price oracle contract.
type OracleReader struct {
	chain   chainclient.ChainClient
	address state.Address
}

func NewOracleReader(chain chainclient.ChainClient, address state.Address) *OracleReader {
	return &OracleReader{chain: chain, address: address}
}

func (o *OracleReader) BatchPrices(ctx context.Context, assets []state.Address) (map[state.Address]*big.Int, error) {
	values, err := call(ctx, o.chain, oracleABI, o.address, "getAssetsPrices", assets)
	if err != nil {
		return nil, err
	}
	prices := values[0].([]*big.Int)
	if len(prices) != len(assets) {
		return nil, fmt.Errorf("oracle returned %d prices for %d assets", len(prices), len(assets))
	}
	out := make(map[state.Address]*big.Int, len(assets))
	for i, asset := range assets {
		out[asset] = prices[i]
	}
	return out, nil
}

// LendingPoolAdapter implements state.LendingPoolReader against a single
// lending pool contract.
type LendingPoolAdapter struct {
	chain   chainclient.ChainClient
	address state.Address
}

func NewLendingPoolAdapter(chain chainclient.ChainClient, address state.Address) *LendingPoolAdapter {
	return &LendingPoolAdapter{chain: chain, address: address}
}

func (l *LendingPoolAdapter) GetUserAccountData(ctx context.Context, user state.Address) (*big.Int, *big.Int, *big.Int, error) {
	values, err := call(ctx, l.chain, lendingPoolABI, l.address, "getUserAccountData", user)
	if err != nil {
		return nil, nil, nil, err
	}
	totalCollateral := values[0].(*big.Int)
	totalDebt := values[1].(*big.Int)
	healthFactor := values[5].(*big.Int)
	return totalCollateral, totalDebt, healthFactor, nil
}

func (l *LendingPoolAdapter) GetReserveConfiguration(ctx context.Context, asset state.Address) (*big.Int, error) {
	values, err := call(ctx, l.chain, lendingPoolABI, l.address, "getConfiguration", asset)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}
