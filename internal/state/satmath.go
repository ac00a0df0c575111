package state

import "math/big"

// SatSub returns a-b, saturating at zero instead of going negative.
// spec.md §9: "saturating subtraction semantics (never panics on
// underflow; yields zero)".
func SatSub(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	d := new(big.Int).Sub(a, b)
	if d.Sign() < 0 {
		return big.NewInt(0)
	}
	return d
}

// MulDivBps computes x*bps/10000 using exact big.Int math, no
// intermediate rounding beyond the final integer division.
func MulDivBps(x *big.Int, bps uint32) *big.Int {
	n := new(big.Int).Mul(x, big.NewInt(int64(bps)))
	return n.Div(n, big.NewInt(10000))
}

// MulDiv computes x*num/den.
func MulDiv(x, num, den *big.Int) *big.Int {
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	n := new(big.Int).Mul(x, num)
	return n.Div(n, den)
}

// Min returns the smaller of two big.Ints.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of two big.Ints.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
