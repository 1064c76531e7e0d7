package lending

import "math/big"

// Accrue compounds principal by rate once per whole period elapsed between
// lastUpdate and now. It returns the grown principal and the new accrual
// timestamp, which advances by exactly the number of whole periods consumed so
// the fractional remainder carries into the next call. When no whole period
// has elapsed the inputs are returned unchanged.
//
// rate is an 18-decimal multiplier and must be at least Wad.
func Accrue(principal *big.Int, lastUpdate, now, periodSeconds uint64, rate *big.Int) (*big.Int, uint64) {
	out := cloneBig(principal)
	if periodSeconds == 0 || now <= lastUpdate {
		return out, lastUpdate
	}
	periods := (now - lastUpdate) / periodSeconds
	if periods == 0 {
		return out, lastUpdate
	}
	next := lastUpdate + periods*periodSeconds
	if out.Sign() == 0 || rate == nil || rate.Cmp(Wad) <= 0 {
		return out, next
	}
	for i := uint64(0); i < periods; i++ {
		out.Mul(out, rate)
		out.Quo(out, Wad)
	}
	return out, next
}

// ElapsedPeriods reports how many whole periods separate lastUpdate from now.
func ElapsedPeriods(lastUpdate, now, periodSeconds uint64) uint64 {
	if periodSeconds == 0 || now <= lastUpdate {
		return 0
	}
	return (now - lastUpdate) / periodSeconds
}
