package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSatSub(t *testing.T) {
	assert.Equal(t, big.NewInt(5), SatSub(big.NewInt(10), big.NewInt(5)))
	assert.Equal(t, big.NewInt(0), SatSub(big.NewInt(5), big.NewInt(10)))
	assert.Equal(t, big.NewInt(0), SatSub(nil, big.NewInt(10)))
	assert.Equal(t, big.NewInt(0), SatSub(big.NewInt(10), nil))
}

func TestMulDivBps(t *testing.T) {
	assert.Equal(t, big.NewInt(50), MulDivBps(big.NewInt(100), 5000))
	assert.Equal(t, big.NewInt(0), MulDivBps(big.NewInt(1), 1))
}

func TestMulDiv(t *testing.T) {
	assert.Equal(t, big.NewInt(200), MulDiv(big.NewInt(100), big.NewInt(4), big.NewInt(2)))
	assert.Equal(t, big.NewInt(0), MulDiv(big.NewInt(100), big.NewInt(4), big.NewInt(0)))
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, big.NewInt(3), Min(big.NewInt(3), big.NewInt(7)))
	assert.Equal(t, big.NewInt(3), Min(big.NewInt(7), big.NewInt(3)))
	assert.Equal(t, big.NewInt(7), Max(big.NewInt(3), big.NewInt(7)))
	assert.Equal(t, big.NewInt(7), Max(big.NewInt(7), big.NewInt(3)))
}

func TestLendingPositionLiquidatable(t *testing.T) {
	healthy := &LendingPosition{HealthFactor: new(big.Int).Mul(OneE18, big.NewInt(2))}
	assert.False(t, healthy.Liquidatable())

	underwater := &LendingPosition{HealthFactor: big.NewInt(1)}
	assert.True(t, underwater.Liquidatable())

	var nilPos *LendingPosition
	assert.False(t, nilPos.Liquidatable())
}

func TestPoolReservesPositive(t *testing.T) {
	r := &PoolReserves{ReserveA: big.NewInt(10), ReserveB: big.NewInt(20)}
	assert.True(t, r.Positive())

	zero := &PoolReserves{ReserveA: big.NewInt(0), ReserveB: big.NewInt(20)}
	assert.False(t, zero.Positive())

	var nilReserves *PoolReserves
	assert.False(t, nilReserves.Positive())
}

func TestDebtToCover(t *testing.T) {
	debt := big.NewInt(1000)
	assert.Equal(t, big.NewInt(500), DebtToCover(debt, nil))
	assert.Equal(t, big.NewInt(200), DebtToCover(debt, big.NewInt(200)))
	assert.Equal(t, big.NewInt(500), DebtToCover(debt, big.NewInt(800)))
}

func TestExtractLiquidationBonusBps(t *testing.T) {
	// bonus bits 16-31 set to 10500 (105%)
	bitmask := new(big.Int).Lsh(big.NewInt(10500), 16)
	assert.Equal(t, uint32(10500), ExtractLiquidationBonusBps(bitmask))
	assert.Equal(t, uint32(0), ExtractLiquidationBonusBps(nil))
}
