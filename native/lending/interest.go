package lending

import (
	"fmt"
	"math/big"
)

// InterestModel encapsulates the parameters that shape how per-period rates
// react to pool utilisation. Every rate is an 18-decimal multiplier where Wad
// means no growth; slopes and the kink are 18-decimal fractions.
type InterestModel struct {
	// BaseRate is the borrower multiplier applied when utilisation is zero.
	BaseRate *big.Int `toml:"BaseRate" json:"baseRate"`
	// Slope1 is the rate increase per unit of utilisation up to the kink.
	Slope1 *big.Int `toml:"Slope1" json:"slope1"`
	// Slope2 applies to utilisation above the kink.
	Slope2 *big.Int `toml:"Slope2" json:"slope2"`
	// Kink is the utilisation where the slope changes.
	Kink *big.Int `toml:"Kink" json:"kink"`
	// MinRate and MaxRate bound every rate the model produces or accepts.
	MinRate          *big.Int `toml:"MinRate" json:"minRate"`
	MaxRate          *big.Int `toml:"MaxRate" json:"maxRate"`
	ReserveFactorBps uint64   `toml:"ReserveFactorBps" json:"reserveFactorBps"`
}

// DefaultInterestModel returns a daily model: 1bp base, kink at 80%, band
// [1.0, 1.01].
func DefaultInterestModel() InterestModel {
	return InterestModel{
		BaseRate:         mustBigInt("1000100000000000000"),
		Slope1:           mustBigInt("200000000000000"),
		Slope2:           mustBigInt("1000000000000000"),
		Kink:             mustBigInt("800000000000000000"),
		MinRate:          new(big.Int).Set(Wad),
		MaxRate:          mustBigInt("1010000000000000000"),
		ReserveFactorBps: 1_000,
	}
}

// Clone returns a deep copy of the interest model.
func (m InterestModel) Clone() InterestModel {
	return InterestModel{
		BaseRate:         cloneBig(m.BaseRate),
		Slope1:           cloneBig(m.Slope1),
		Slope2:           cloneBig(m.Slope2),
		Kink:             cloneBig(m.Kink),
		MinRate:          cloneBig(m.MinRate),
		MaxRate:          cloneBig(m.MaxRate),
		ReserveFactorBps: m.ReserveFactorBps,
	}
}

// Validate checks the model is internally consistent.
func (m InterestModel) Validate() error {
	if m.MinRate == nil || m.MinRate.Cmp(Wad) < 0 {
		return fmt.Errorf("%w: minimum rate below 1.0", ErrInvalidRate)
	}
	if m.MaxRate == nil || m.MaxRate.Cmp(m.MinRate) < 0 {
		return fmt.Errorf("%w: maximum rate below minimum", ErrInvalidRate)
	}
	if err := m.ValidateRate(m.BaseRate); err != nil {
		return err
	}
	if m.Kink == nil || m.Kink.Sign() < 0 || m.Kink.Cmp(Wad) > 0 {
		return fmt.Errorf("%w: kink must be within [0, 1]", ErrInvalidRate)
	}
	if (m.Slope1 != nil && m.Slope1.Sign() < 0) || (m.Slope2 != nil && m.Slope2.Sign() < 0) {
		return fmt.Errorf("%w: slopes must be non-negative", ErrInvalidRate)
	}
	if m.ReserveFactorBps > 10_000 {
		return fmt.Errorf("%w: reserve factor exceeds 100%%", ErrInvalidRate)
	}
	return nil
}

// ValidateRate fails with ErrInvalidRate when rate is outside [MinRate, MaxRate]
// or below 1.0.
func (m InterestModel) ValidateRate(rate *big.Int) error {
	if rate == nil || rate.Cmp(Wad) < 0 {
		return ErrInvalidRate
	}
	if m.MinRate != nil && rate.Cmp(m.MinRate) < 0 {
		return ErrInvalidRate
	}
	if m.MaxRate != nil && rate.Cmp(m.MaxRate) > 0 {
		return ErrInvalidRate
	}
	return nil
}

func (m InterestModel) clamp(rate *big.Int) *big.Int {
	if m.MinRate != nil && rate.Cmp(m.MinRate) < 0 {
		return new(big.Int).Set(m.MinRate)
	}
	if rate.Cmp(Wad) < 0 {
		return new(big.Int).Set(Wad)
	}
	if m.MaxRate != nil && rate.Cmp(m.MaxRate) > 0 {
		return new(big.Int).Set(m.MaxRate)
	}
	return rate
}

// Utilisation computes totalBorrowed / totalLent as an 18-decimal fraction,
// capped at 1. An empty pool has zero utilisation.
func Utilisation(totalBorrowed, totalLent *big.Int) *big.Int {
	if totalBorrowed == nil || totalBorrowed.Sign() <= 0 || totalLent == nil || totalLent.Sign() <= 0 {
		return big.NewInt(0)
	}
	u := wadDiv(totalBorrowed, totalLent)
	if u.Cmp(Wad) > 0 {
		return new(big.Int).Set(Wad)
	}
	return u
}

// borrowExcess is the growth above 1.0 on the two-slope curve.
func (m InterestModel) borrowExcess(utilisation *big.Int) *big.Int {
	excess := subFloor(m.BaseRate, Wad)
	if utilisation == nil || utilisation.Sign() <= 0 {
		return excess
	}
	kink := cloneBig(m.Kink)
	if kink.Sign() == 0 || utilisation.Cmp(kink) <= 0 {
		return excess.Add(excess, wadMul(cloneBig(m.Slope1), utilisation))
	}
	excess.Add(excess, wadMul(cloneBig(m.Slope1), kink))
	return excess.Add(excess, wadMul(cloneBig(m.Slope2), new(big.Int).Sub(utilisation, kink)))
}

// supplyExcess passes borrower growth through to lenders net of the reserve
// factor and weighted by utilisation.
func (m InterestModel) supplyExcess(utilisation *big.Int) *big.Int {
	if utilisation == nil || utilisation.Sign() <= 0 {
		return big.NewInt(0)
	}
	excess := wadMul(m.borrowExcess(utilisation), utilisation)
	reserve := m.ReserveFactorBps
	if reserve > 10_000 {
		reserve = 10_000
	}
	return applyBps(excess, 10_000-reserve)
}

// BorrowerRate returns the periodic multiplier charged to a borrower in tier at
// the supplied utilisation. The tier modifier scales the curve's excess by
// (100 + modifier)%.
func (m InterestModel) BorrowerRate(tier RiskTier, utilisation *big.Int) *big.Int {
	excess := m.borrowExcess(utilisation)
	scale := 100 + tier.InterestRateModifier
	if scale < 0 {
		scale = 0
	}
	excess.Mul(excess, big.NewInt(scale))
	excess.Quo(excess, hundred)
	return m.clamp(excess.Add(excess, Wad))
}

// LenderRate returns the periodic multiplier for a lender whose balance tier
// grants tierMultiplier.
func (m InterestModel) LenderRate(utilisation, tierMultiplier *big.Int) *big.Int {
	rate := new(big.Int).Set(Wad)
	if tierMultiplier != nil && tierMultiplier.Cmp(Wad) > 0 {
		rate.Set(tierMultiplier)
	}
	return m.clamp(rate.Add(rate, m.supplyExcess(utilisation)))
}

// SupplyRate returns the utilisation-driven multiplier paid to the pool as a
// whole.
func (m InterestModel) SupplyRate(utilisation *big.Int) *big.Int {
	rate := new(big.Int).Add(Wad, m.supplyExcess(utilisation))
	return m.clamp(rate)
}
