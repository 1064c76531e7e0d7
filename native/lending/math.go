package lending

import (
	"math/big"

	"github.com/holiman/uint256"
)

var (
	basisPoints = big.NewInt(10_000)
	hundred     = big.NewInt(100)
	// Wad is the 18-decimal fixed point unit; a periodic rate of Wad means no growth.
	Wad = mustBigInt("1000000000000000000")
	// InfiniteRatio is reported as the collateral ratio of a position with no debt.
	InfiniteRatio = new(uint256.Int).SetAllOne().ToBig()
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func wadMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, Wad)
}

func wadDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, Wad)
	return numerator.Quo(numerator, b)
}

func applyBps(v *big.Int, bps uint64) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(v, new(big.Int).SetUint64(bps))
	return out.Quo(out, basisPoints)
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// subFloor returns a-b, never below zero.
func subFloor(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(cloneBig(a), cloneBig(b))
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
