package onchain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-labs/chainrunner/internal/state"
)

// fakeChainClient answers CallContract by matching the packed method
// selector against a table of canned return values, letting each test
// exercise the real abi.Pack/abi.Unpack round trip contracts.go relies on.
type fakeChainClient struct {
	responses map[[4]byte][]byte
	err       error
}

func (f *fakeChainClient) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (f *fakeChainClient) GasPrice(ctx context.Context) (*big.Int, error)  { return big.NewInt(0), nil }
func (f *fakeChainClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (f *fakeChainClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return nil, false, nil
}
func (f *fakeChainClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *fakeChainClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}
func (f *fakeChainClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	var selector [4]byte
	copy(selector[:], call.Data[:4])
	out, ok := f.responses[selector]
	if !ok {
		return nil, errors.New("unexpected selector")
	}
	return out, nil
}
func (f *fakeChainClient) SendRawTransaction(ctx context.Context, tx *types.Transaction) error {
	return nil
}

func selectorOf(t *testing.T, a interface {
	Pack(string, ...any) ([]byte, error)
}, method string, args ...any) [4]byte {
	t.Helper()
	data, err := a.Pack(method, args...)
	require.NoError(t, err)
	var sel [4]byte
	copy(sel[:], data[:4])
	return sel
}

func TestPoolReaderGetReserves(t *testing.T) {
	pool := common.BytesToAddress([]byte{1})
	out, err := pairABI.Pack("getReserves")
	require.NoError(t, err)
	var sel [4]byte
	copy(sel[:], out[:4])

	packed, err := pairABI.Methods["getReserves"].Outputs.Pack(big.NewInt(1000), big.NewInt(2000), uint32(12345))
	require.NoError(t, err)

	chain := &fakeChainClient{responses: map[[4]byte][]byte{sel: packed}}
	reader := NewPoolReader(chain)

	r0, r1, ts, err := reader.GetReserves(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), r0)
	assert.Equal(t, big.NewInt(2000), r1)
	assert.Equal(t, uint32(12345), ts)
}

func TestPoolReaderCallErrorIsTransient(t *testing.T) {
	chain := &fakeChainClient{err: errors.New("dial tcp: i/o timeout")}
	reader := NewPoolReader(chain)

	_, _, _, err := reader.GetReserves(context.Background(), common.BytesToAddress([]byte{1}))
	require.Error(t, err)
	var catErr *state.CategorizedError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, state.CategoryTransientChain, catErr.Category)
}

func TestPoolReaderSlot0AndLiquidity(t *testing.T) {
	pool := common.BytesToAddress([]byte{2})

	slot0Data, err := pairABIPackHelper(concentratedABI, "slot0")
	require.NoError(t, err)
	var slot0Sel [4]byte
	copy(slot0Sel[:], slot0Data[:4])
	slot0Out, err := concentratedABI.Methods["slot0"].Outputs.Pack(
		new(big.Int).Lsh(big.NewInt(1), 96), int32(100), uint16(0), uint16(1), uint16(1), uint8(0), true)
	require.NoError(t, err)

	liqData, err := pairABIPackHelper(concentratedABI, "liquidity")
	require.NoError(t, err)
	var liqSel [4]byte
	copy(liqSel[:], liqData[:4])
	liqOut, err := concentratedABI.Methods["liquidity"].Outputs.Pack(big.NewInt(555))
	require.NoError(t, err)

	chain := &fakeChainClient{responses: map[[4]byte][]byte{slot0Sel: slot0Out, liqSel: liqOut}}
	reader := NewPoolReader(chain)

	sqrtP, err := reader.Slot0(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Lsh(big.NewInt(1), 96), sqrtP)

	liquidity, err := reader.Liquidity(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(555), liquidity)
}

func pairABIPackHelper(a interface {
	Pack(string, ...any) ([]byte, error)
}, method string) ([]byte, error) {
	return a.Pack(method)
}

func TestStableReaderGetDy(t *testing.T) {
	pool := common.BytesToAddress([]byte{3})
	sel := selectorOf(t, stablePoolABI, "get_dy", big.NewInt(0), big.NewInt(1), big.NewInt(100))
	out, err := stablePoolABI.Methods["get_dy"].Outputs.Pack(big.NewInt(99))
	require.NoError(t, err)

	chain := &fakeChainClient{responses: map[[4]byte][]byte{sel: out}}
	reader := NewStableReader(chain)

	dy, err := reader.GetDy(context.Background(), pool, 0, 1, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(99), dy)
}

func TestOracleReaderBatchPrices(t *testing.T) {
	oracleAddr := common.BytesToAddress([]byte{9})
	assets := []state.Address{common.BytesToAddress([]byte{1}), common.BytesToAddress([]byte{2})}

	sel := selectorOf(t, oracleABI, "getAssetsPrices", assets)
	out, err := oracleABI.Methods["getAssetsPrices"].Outputs.Pack([]*big.Int{big.NewInt(100), big.NewInt(200)})
	require.NoError(t, err)

	chain := &fakeChainClient{responses: map[[4]byte][]byte{sel: out}}
	reader := NewOracleReader(chain, oracleAddr)

	prices, err := reader.BatchPrices(context.Background(), assets)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), prices[assets[0]])
	assert.Equal(t, big.NewInt(200), prices[assets[1]])
}

func TestOracleReaderMismatchedLengthErrors(t *testing.T) {
	oracleAddr := common.BytesToAddress([]byte{9})
	assets := []state.Address{common.BytesToAddress([]byte{1}), common.BytesToAddress([]byte{2})}

	sel := selectorOf(t, oracleABI, "getAssetsPrices", assets)
	out, err := oracleABI.Methods["getAssetsPrices"].Outputs.Pack([]*big.Int{big.NewInt(100)}) // only one price
	require.NoError(t, err)

	chain := &fakeChainClient{responses: map[[4]byte][]byte{sel: out}}
	reader := NewOracleReader(chain, oracleAddr)

	_, err = reader.BatchPrices(context.Background(), assets)
	assert.Error(t, err)
}

func TestLendingPoolAdapter(t *testing.T) {
	lendingAddr := common.BytesToAddress([]byte{8})
	user := common.BytesToAddress([]byte{7})

	accSel := selectorOf(t, lendingPoolABI, "getUserAccountData", user)
	accOut, err := lendingPoolABI.Methods["getUserAccountData"].Outputs.Pack(
		big.NewInt(1000), big.NewInt(500), big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(950_000_000_000_000_000))
	require.NoError(t, err)

	cfgSel := selectorOf(t, lendingPoolABI, "getConfiguration", user)
	cfgOut, err := lendingPoolABI.Methods["getConfiguration"].Outputs.Pack(big.NewInt(123))
	require.NoError(t, err)

	chain := &fakeChainClient{responses: map[[4]byte][]byte{accSel: accOut, cfgSel: cfgOut}}
	adapter := NewLendingPoolAdapter(chain, lendingAddr)

	totalCollateral, totalDebt, healthFactor, err := adapter.GetUserAccountData(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), totalCollateral)
	assert.Equal(t, big.NewInt(500), totalDebt)
	assert.Equal(t, big.NewInt(950_000_000_000_000_000), healthFactor)

	bitmask, err := adapter.GetReserveConfiguration(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(123), bitmask)
}
