package lending

import (
	"math/big"

	"quadlend/crypto"
	nativecommon "quadlend/native/common"
)

// accrueBorrower folds interest into the debt principal and keeps the pool's
// borrowed total in step.
func (e *Engine) accrueBorrower(pos *BorrowerPosition, totals *PoolTotals, now uint64) {
	if !pos.HasDebt() {
		return
	}
	debt, last := e.owed(pos, now)
	interest := new(big.Int).Sub(debt, pos.DebtPrincipal)
	pos.DebtPrincipal = debt
	pos.LastAccrualAt = last
	totals.TotalBorrowed = new(big.Int).Add(totals.TotalBorrowed, interest)
}

// Borrow opens a loan of amount for borrower. Only one loan may be open at a
// time; its periodic rate is fixed at origination.
func (e *Engine) Borrow(borrower crypto.Address, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.Guard(e.state, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pos, err := e.loadBorrower(borrower)
	if err != nil {
		return err
	}
	if pos.HasDebt() {
		return ErrRepayExistingDebtFirst
	}
	score, _, err := e.CreditScore(borrower)
	if err != nil {
		return err
	}
	tier, ok := e.cfg.tierFor(score)
	if !ok {
		return ErrCreditScoreTooLow
	}
	totals, err := e.loadTotals()
	if err != nil {
		return err
	}
	scaled := new(big.Int).Mul(amount, basisPoints)
	if scaled.Cmp(new(big.Int).Mul(totals.TotalLent, new(big.Int).SetUint64(e.cfg.ExposureCapBps))) > 0 {
		return ErrExceedsLendingCapacity
	}
	if scaled.Cmp(new(big.Int).Mul(totals.TotalLent, new(big.Int).SetUint64(tier.MaxLoanFractionBps))) > 0 {
		return ErrExceedsTierLimit
	}
	if totals.Cash.Cmp(amount) < 0 {
		return ErrInsufficientPoolLiquidity
	}
	now := e.now()
	value, err := e.collateralValue(pos, valueForBorrow, now)
	if err != nil {
		return err
	}
	required := new(big.Int).Mul(amount, new(big.Int).SetUint64(tier.CollateralRatioPercent))
	if new(big.Int).Mul(value, hundred).Cmp(required) < 0 {
		return ErrInsufficientCollateral
	}

	borrowedAfter := new(big.Int).Add(totals.TotalBorrowed, amount)
	rate := e.cfg.Interest.BorrowerRate(tier, Utilisation(borrowedAfter, totals.TotalLent))
	pos.DebtPrincipal = new(big.Int).Set(amount)
	pos.BorrowRate = rate
	pos.BorrowedAt = now
	pos.LastAccrualAt = now
	pos.LiquidationState = LiquidationHealthy
	pos.LiquidationMarkedAt = 0
	totals.TotalBorrowed = borrowedAfter
	totals.Cash = new(big.Int).Sub(totals.Cash, amount)

	if err := e.storeBorrower(pos); err != nil {
		return err
	}
	if err := e.storeTotals(totals); err != nil {
		return err
	}
	if err := e.vault.Transfer(e.cfg.BaseAsset, e.moduleAddress, borrower, amount); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeBorrowed).
		addr("account", borrower).
		amount("amount", amount).
		amount("rate", rate).
		uint("score", uint64(score)).
		build())
	return nil
}

// Repay applies attached base asset to borrower's debt. Any amount above the
// debt is refunded and the debt is cleared to exactly zero.
func (e *Engine) Repay(borrower crypto.Address, attached *big.Int) (*RepayResult, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	pos, err := e.loadBorrower(borrower)
	if err != nil {
		return nil, err
	}
	if !pos.HasDebt() {
		if e.cfg.RepayPolicy == RepayLenient {
			return &RepayResult{Applied: big.NewInt(0), Refunded: big.NewInt(0), Remaining: big.NewInt(0)}, nil
		}
		return nil, ErrNoOutstandingDebt
	}
	if attached == nil || attached.Sign() <= 0 {
		return nil, ErrMustSendFundsToRepay
	}
	if err := e.requireFunds(e.cfg.BaseAsset, borrower, attached); err != nil {
		return nil, err
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	now := e.now()
	e.accrueBorrower(pos, totals, now)
	applied := minBig(attached, pos.DebtPrincipal)
	refund := new(big.Int).Sub(attached, applied)
	e.applyRepayment(pos, totals, applied)

	if err := e.storeBorrower(pos); err != nil {
		return nil, err
	}
	if err := e.storeTotals(totals); err != nil {
		return nil, err
	}
	if !pos.HasDebt() {
		if err := e.indexRemove(markedIndexKey, borrower); err != nil {
			return nil, err
		}
	}
	if err := e.vault.Transfer(e.cfg.BaseAsset, borrower, e.moduleAddress, attached); err != nil {
		return nil, err
	}
	if refund.Sign() > 0 {
		if err := e.vault.Transfer(e.cfg.BaseAsset, e.moduleAddress, borrower, refund); err != nil {
			return nil, err
		}
	}
	e.emit(newEvent(EventTypeRepaid).
		addr("account", borrower).
		amount("amount", applied).
		amount("refund", refund).
		amount("remaining", pos.DebtPrincipal).
		build())
	return &RepayResult{Applied: applied, Refunded: refund, Remaining: cloneBig(pos.DebtPrincipal)}, nil
}

// applyRepayment reduces an already accrued debt by applied.
func (e *Engine) applyRepayment(pos *BorrowerPosition, totals *PoolTotals, applied *big.Int) {
	pos.DebtPrincipal = subFloor(pos.DebtPrincipal, applied)
	totals.TotalBorrowed = subFloor(totals.TotalBorrowed, applied)
	totals.Cash = new(big.Int).Add(totals.Cash, applied)
	if !pos.HasDebt() {
		pos.DebtPrincipal = big.NewInt(0)
		pos.LiquidationState = LiquidationHealthy
		pos.LiquidationMarkedAt = 0
	}
}

// OutstandingDebt returns borrower's debt including accrued interest.
func (e *Engine) OutstandingDebt(borrower crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateNotConfigured
	}
	pos, err := e.loadBorrower(borrower)
	if err != nil {
		return nil, err
	}
	debt, _ := e.owed(pos, e.now())
	return debt, nil
}
