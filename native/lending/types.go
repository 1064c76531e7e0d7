package lending

import (
	"math/big"

	"quadlend/crypto"
)

// LiquidationState tracks where a borrower sits in the delayed liquidation
// process.
type LiquidationState uint8

const (
	LiquidationHealthy LiquidationState = iota
	LiquidationMarked
	LiquidationRecovered
	LiquidationExecuted
)

func (s LiquidationState) String() string {
	switch s {
	case LiquidationHealthy:
		return "healthy"
	case LiquidationMarked:
		return "marked"
	case LiquidationRecovered:
		return "recovered"
	case LiquidationExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// LenderPosition is a depositor's stake in the pool. Timestamps are unix
// seconds; zero means unset.
type LenderPosition struct {
	Account                    crypto.Address `json:"account"`
	PrincipalBalance           *big.Int       `json:"principalBalance"`
	PendingPrincipalWithdrawal *big.Int       `json:"pendingPrincipalWithdrawal"`
	WithdrawalRequestedAt      uint64         `json:"withdrawalRequestedAt"`
	EarnedInterestUnclaimed    *big.Int       `json:"earnedInterestUnclaimed"`
	LastInterestAccrualAt      uint64         `json:"lastInterestAccrualAt"`
	DepositedAt                uint64         `json:"depositedAt"`
	// InterestIndexSnapshot is the accrual epoch (timestamp / period) the
	// position was last credited for.
	InterestIndexSnapshot uint64 `json:"interestIndexSnapshot"`
}

func newLenderPosition(addr crypto.Address) *LenderPosition {
	return &LenderPosition{
		Account:                    addr,
		PrincipalBalance:           big.NewInt(0),
		PendingPrincipalWithdrawal: big.NewInt(0),
		EarnedInterestUnclaimed:    big.NewInt(0),
	}
}

func (p *LenderPosition) normalize() {
	if p.PrincipalBalance == nil {
		p.PrincipalBalance = big.NewInt(0)
	}
	if p.PendingPrincipalWithdrawal == nil {
		p.PendingPrincipalWithdrawal = big.NewInt(0)
	}
	if p.EarnedInterestUnclaimed == nil {
		p.EarnedInterestUnclaimed = big.NewInt(0)
	}
}

// IsActive reports whether the lender still has principal in the pool.
func (p *LenderPosition) IsActive() bool {
	return p != nil && p.PrincipalBalance != nil && p.PrincipalBalance.Sign() > 0
}

// HasPendingWithdrawal reports whether a withdrawal request is outstanding.
func (p *LenderPosition) HasPendingWithdrawal() bool {
	return p != nil && p.PendingPrincipalWithdrawal != nil && p.PendingPrincipalWithdrawal.Sign() > 0
}

// Clone returns a deep copy of the position.
func (p *LenderPosition) Clone() *LenderPosition {
	if p == nil {
		return nil
	}
	clone := *p
	clone.PrincipalBalance = cloneBig(p.PrincipalBalance)
	clone.PendingPrincipalWithdrawal = cloneBig(p.PendingPrincipalWithdrawal)
	clone.EarnedInterestUnclaimed = cloneBig(p.EarnedInterestUnclaimed)
	return &clone
}

// CollateralBalance is one entry in a borrower's recorded asset list.
type CollateralBalance struct {
	Asset  string   `json:"asset"`
	Amount *big.Int `json:"amount"`
}

// BorrowerPosition is a single open loan plus its collateral.
type BorrowerPosition struct {
	Account       crypto.Address `json:"account"`
	DebtPrincipal *big.Int       `json:"debtPrincipal"`
	// BorrowRate is the periodic multiplier locked in at origination.
	BorrowRate          *big.Int            `json:"borrowRate"`
	BorrowedAt          uint64              `json:"borrowedAt"`
	LastAccrualAt       uint64              `json:"lastAccrualAt"`
	Collateral          []CollateralBalance `json:"collateral"`
	LiquidationState    LiquidationState    `json:"liquidationState"`
	LiquidationMarkedAt uint64              `json:"liquidationMarkedAt"`
}

func newBorrowerPosition(addr crypto.Address) *BorrowerPosition {
	return &BorrowerPosition{
		Account:       addr,
		DebtPrincipal: big.NewInt(0),
		BorrowRate:    big.NewInt(0),
	}
}

func (p *BorrowerPosition) normalize() {
	if p.DebtPrincipal == nil {
		p.DebtPrincipal = big.NewInt(0)
	}
	if p.BorrowRate == nil {
		p.BorrowRate = big.NewInt(0)
	}
	for i := range p.Collateral {
		if p.Collateral[i].Amount == nil {
			p.Collateral[i].Amount = big.NewInt(0)
		}
	}
}

// HasDebt reports whether a loan is open.
func (p *BorrowerPosition) HasDebt() bool {
	return p != nil && p.DebtPrincipal != nil && p.DebtPrincipal.Sign() > 0
}

// CollateralOf returns the balance held for asset.
func (p *BorrowerPosition) CollateralOf(asset string) *big.Int {
	for _, entry := range p.Collateral {
		if entry.Asset == asset {
			return cloneBig(entry.Amount)
		}
	}
	return big.NewInt(0)
}

func (p *BorrowerPosition) setCollateral(asset string, amount *big.Int) {
	for i := range p.Collateral {
		if p.Collateral[i].Asset == asset {
			p.Collateral[i].Amount = cloneBig(amount)
			return
		}
	}
	p.Collateral = append(p.Collateral, CollateralBalance{Asset: asset, Amount: cloneBig(amount)})
}

// Clone returns a deep copy of the position.
func (p *BorrowerPosition) Clone() *BorrowerPosition {
	if p == nil {
		return nil
	}
	clone := *p
	clone.DebtPrincipal = cloneBig(p.DebtPrincipal)
	clone.BorrowRate = cloneBig(p.BorrowRate)
	clone.Collateral = make([]CollateralBalance, len(p.Collateral))
	for i, entry := range p.Collateral {
		clone.Collateral[i] = CollateralBalance{Asset: entry.Asset, Amount: cloneBig(entry.Amount)}
	}
	return &clone
}

// PoolTotals is the pool-wide accounting every deposit, borrow and withdrawal
// touches.
type PoolTotals struct {
	TotalLent     *big.Int `json:"totalLent"`
	TotalBorrowed *big.Int `json:"totalBorrowed"`
	// Cash is the base asset held by the pool and available to pay out.
	Cash    *big.Int `json:"cash"`
	BadDebt *big.Int `json:"badDebt"`
	// Retained lists collateral seized into protocol custody.
	Retained []CollateralBalance `json:"retained"`
}

func newPoolTotals() *PoolTotals {
	return &PoolTotals{
		TotalLent:     big.NewInt(0),
		TotalBorrowed: big.NewInt(0),
		Cash:          big.NewInt(0),
		BadDebt:       big.NewInt(0),
	}
}

func (t *PoolTotals) normalize() {
	if t.TotalLent == nil {
		t.TotalLent = big.NewInt(0)
	}
	if t.TotalBorrowed == nil {
		t.TotalBorrowed = big.NewInt(0)
	}
	if t.Cash == nil {
		t.Cash = big.NewInt(0)
	}
	if t.BadDebt == nil {
		t.BadDebt = big.NewInt(0)
	}
}

func (t *PoolTotals) retain(asset string, amount *big.Int) {
	for i := range t.Retained {
		if t.Retained[i].Asset == asset {
			t.Retained[i].Amount = new(big.Int).Add(cloneBig(t.Retained[i].Amount), amount)
			return
		}
	}
	t.Retained = append(t.Retained, CollateralBalance{Asset: asset, Amount: cloneBig(amount)})
}

// Clone returns a deep copy of the totals.
func (t *PoolTotals) Clone() *PoolTotals {
	if t == nil {
		return nil
	}
	clone := &PoolTotals{
		TotalLent:     cloneBig(t.TotalLent),
		TotalBorrowed: cloneBig(t.TotalBorrowed),
		Cash:          cloneBig(t.Cash),
		BadDebt:       cloneBig(t.BadDebt),
	}
	for _, entry := range t.Retained {
		clone.Retained = append(clone.Retained, CollateralBalance{Asset: entry.Asset, Amount: cloneBig(entry.Amount)})
	}
	return clone
}

// RiskTier maps a credit score band onto collateral and sizing requirements.
type RiskTier struct {
	MinScore               uint8  `toml:"MinScore" json:"minScore"`
	MaxScore               uint8  `toml:"MaxScore" json:"maxScore"`
	CollateralRatioPercent uint64 `toml:"CollateralRatioPercent" json:"collateralRatioPercent"`
	// InterestRateModifier scales the curve excess by (100 + modifier)%.
	InterestRateModifier int64 `toml:"InterestRateModifier" json:"interestRateModifier"`
	// MaxLoanFractionBps caps a single loan as a share of total lent.
	MaxLoanFractionBps uint64 `toml:"MaxLoanFractionBps" json:"maxLoanFractionBps"`
}

// Contains reports whether score falls inside the tier.
func (t RiskTier) Contains(score uint8) bool {
	return score >= t.MinScore && score <= t.MaxScore
}

// InterestTier grants RateMultiplier to lenders holding at least MinAmount.
type InterestTier struct {
	MinAmount      *big.Int `toml:"MinAmount" json:"minAmount"`
	RateMultiplier *big.Int `toml:"RateMultiplier" json:"rateMultiplier"`
}

// StablecoinParams overrides collateral weighting for a recognised stablecoin.
type StablecoinParams struct {
	LTVBps                  uint64 `toml:"LTVBps" json:"ltvBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps" json:"liquidationThresholdBps"`
}

// Price is an oracle quote: Value units of base asset per whole collateral
// unit, scaled by 10^Decimals.
type Price struct {
	Value     *big.Int
	Decimals  uint8
	UpdatedAt uint64
}

// Health describes a collateralisation check.
type Health struct {
	Healthy       bool     `json:"healthy"`
	RatioPercent  *big.Int `json:"ratioPercent"`
	RequiredRatio uint64   `json:"requiredRatio"`
	Debt          *big.Int `json:"debt"`
}

// WithdrawalResult reports a completed lender withdrawal.
type WithdrawalResult struct {
	Principal *big.Int `json:"principal"`
	Payout    *big.Int `json:"payout"`
	Penalty   *big.Int `json:"penalty"`
	Interest  *big.Int `json:"interest"`
}

// RepayResult reports how an attached repayment was applied.
type RepayResult struct {
	Applied   *big.Int `json:"applied"`
	Refunded  *big.Int `json:"refunded"`
	Remaining *big.Int `json:"remaining"`
}

// BatchReport lists which accounts a batch operation processed.
type BatchReport struct {
	Processed []crypto.Address `json:"processed"`
	Skipped   []crypto.Address `json:"skipped"`
}

// UpkeepReport lists the accounts executed or skipped by PerformUpkeep.
type UpkeepReport struct {
	Executed []crypto.Address `json:"executed"`
	Skipped  []crypto.Address `json:"skipped"`
}
