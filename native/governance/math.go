package governance

import "github.com/holiman/uint256"

// Isqrt returns floor(sqrt(x)) using Newton's method.
func Isqrt(x *uint256.Int) *uint256.Int {
	if x == nil || x.IsZero() {
		return new(uint256.Int)
	}
	z := new(uint256.Int).Set(x)
	// (x+1)/2 without overflowing at the top of the range
	y := new(uint256.Int).Rsh(x, 1)
	if x.Uint64()&1 == 1 {
		y.AddUint64(y, 1)
	}
	q := new(uint256.Int)
	for y.Lt(z) {
		z.Set(y)
		q.Div(x, y)
		y.Add(q, y)
		y.Rsh(y, 1)
	}
	return z
}

// reputationBound clamps how far reputation can move voting power.
const reputationBound = 100

func clampReputation(rep int64) int64 {
	if rep > reputationBound {
		return reputationBound
	}
	if rep < -reputationBound {
		return -reputationBound
	}
	return rep
}

// adjustedPower scales quadratic power by (100 + rep)%, with rep clamped so the
// result is never negative.
func adjustedPower(balance *uint256.Int, rep int64) *uint256.Int {
	power := Isqrt(balance)
	scale := uint64(reputationBound + clampReputation(rep))
	power.MulOverflow(power, uint256.NewInt(scale))
	return power.Div(power, uint256.NewInt(reputationBound))
}
