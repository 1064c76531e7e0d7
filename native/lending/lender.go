package lending

import (
	"math/big"

	"quadlend/crypto"
	nativecommon "quadlend/native/common"
)

// accrueLender credits interest for every whole period since the last accrual
// and returns the amount credited. Only pos is modified.
func (e *Engine) accrueLender(pos *LenderPosition, totals *PoolTotals, now uint64) *big.Int {
	if !pos.IsActive() {
		pos.LastInterestAccrualAt = now
		pos.InterestIndexSnapshot = now / e.cfg.PeriodSeconds
		return big.NewInt(0)
	}
	util := Utilisation(totals.TotalBorrowed, totals.TotalLent)
	rate := e.cfg.Interest.LenderRate(util, e.cfg.interestTierMultiplier(pos.PrincipalBalance))
	grown, last := Accrue(pos.PrincipalBalance, pos.LastInterestAccrualAt, now, e.cfg.PeriodSeconds, rate)
	if last == pos.LastInterestAccrualAt {
		return big.NewInt(0)
	}
	interest := new(big.Int).Sub(grown, pos.PrincipalBalance)
	pos.EarnedInterestUnclaimed = new(big.Int).Add(pos.EarnedInterestUnclaimed, interest)
	pos.LastInterestAccrualAt = last
	pos.InterestIndexSnapshot = last / e.cfg.PeriodSeconds
	return interest
}

// DepositFunds adds amount of the base asset to lender's principal.
func (e *Engine) DepositFunds(lender crypto.Address, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.Guard(e.state, moduleName); err != nil {
		return err
	}
	if lender.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(e.cfg.MinDeposit) < 0 {
		return ErrDepositTooLow
	}
	totals, err := e.loadTotals()
	if err != nil {
		return err
	}
	if cap := e.cfg.MaxTotalCap; cap != nil && cap.Sign() > 0 {
		if new(big.Int).Add(totals.TotalLent, amount).Cmp(cap) > 0 {
			return ErrDepositExceedsCap
		}
	}
	eligible, err := e.CanLend(lender)
	if err != nil {
		return err
	}
	if !eligible {
		return ErrNotEligibleToLend
	}
	if err := e.requireFunds(e.cfg.BaseAsset, lender, amount); err != nil {
		return err
	}
	pos, err := e.loadLender(lender)
	if err != nil {
		return err
	}

	now := e.now()
	e.accrueLender(pos, totals, now)
	pos.PrincipalBalance = new(big.Int).Add(pos.PrincipalBalance, amount)
	if pos.DepositedAt == 0 {
		pos.DepositedAt = now
	}
	totals.TotalLent = new(big.Int).Add(totals.TotalLent, amount)
	totals.Cash = new(big.Int).Add(totals.Cash, amount)

	if err := e.storeLender(pos); err != nil {
		return err
	}
	if err := e.storeTotals(totals); err != nil {
		return err
	}
	if err := e.indexAdd(lenderIndexKey, lender); err != nil {
		return err
	}
	if err := e.vault.Transfer(e.cfg.BaseAsset, lender, e.moduleAddress, amount); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeFundsDeposited).
		addr("account", lender).
		amount("amount", amount).
		amount("principal", pos.PrincipalBalance).
		build())
	return nil
}

// RequestWithdrawal sets the pending withdrawal to amount. An earlier request
// can only be replaced once its cooldown has elapsed. A zero amount clears the
// pending request unless the configuration rejects it.
func (e *Engine) RequestWithdrawal(lender crypto.Address, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 && e.cfg.RejectZeroWithdrawal {
		return ErrInvalidAmount
	}
	pos, err := e.loadLender(lender)
	if err != nil {
		return err
	}
	if !pos.IsActive() {
		return ErrLenderNotActive
	}
	if amount.Cmp(pos.PrincipalBalance) > 0 {
		return ErrWithdrawalExceedsBalance
	}
	now := e.now()
	if pos.HasPendingWithdrawal() && now < pos.WithdrawalRequestedAt+e.cfg.WithdrawalCooldownSeconds {
		return ErrCooldownNotElapsed
	}
	pos.PendingPrincipalWithdrawal = new(big.Int).Set(amount)
	if amount.Sign() == 0 {
		pos.WithdrawalRequestedAt = 0
	} else {
		pos.WithdrawalRequestedAt = now
	}
	if err := e.storeLender(pos); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeWithdrawalRequested).
		addr("account", lender).
		amount("amount", amount).
		uint("requestedAt", pos.WithdrawalRequestedAt).
		build())
	return nil
}

// CancelPrincipalWithdrawal drops the pending withdrawal without penalty.
func (e *Engine) CancelPrincipalWithdrawal(lender crypto.Address) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	pos, err := e.loadLender(lender)
	if err != nil {
		return err
	}
	if !pos.HasPendingWithdrawal() {
		return ErrNoPendingWithdrawal
	}
	cancelled := pos.PendingPrincipalWithdrawal
	pos.PendingPrincipalWithdrawal = big.NewInt(0)
	pos.WithdrawalRequestedAt = 0
	if err := e.storeLender(pos); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeWithdrawalCancelled).
		addr("account", lender).
		amount("amount", cancelled).
		build())
	return nil
}

// CompleteWithdrawal pays out the pending withdrawal. Completing before the
// cooldown has elapsed deducts the early withdrawal penalty.
func (e *Engine) CompleteWithdrawal(lender crypto.Address) (*WithdrawalResult, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	return e.completeWithdrawal(lender, true)
}

func (e *Engine) completeWithdrawal(lender crypto.Address, allowEarly bool) (*WithdrawalResult, error) {
	pos, err := e.loadLender(lender)
	if err != nil {
		return nil, err
	}
	if !pos.HasPendingWithdrawal() {
		return nil, ErrNoPendingWithdrawal
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	now := e.now()
	pending := new(big.Int).Set(pos.PendingPrincipalWithdrawal)
	early := now < pos.WithdrawalRequestedAt+e.cfg.WithdrawalCooldownSeconds
	if early && !allowEarly {
		return nil, ErrCooldownNotElapsed
	}
	penalty := big.NewInt(0)
	if early {
		penalty = applyBps(pending, e.cfg.EarlyWithdrawalPenaltyBps)
	}
	payout := new(big.Int).Sub(pending, penalty)

	e.accrueLender(pos, totals, now)
	pos.PrincipalBalance = new(big.Int).Sub(pos.PrincipalBalance, pending)
	// closing the position settles its interest along with the principal
	interest := big.NewInt(0)
	if !pos.IsActive() {
		interest = new(big.Int).Set(pos.EarnedInterestUnclaimed)
	}
	outflow := new(big.Int).Add(pending, interest)
	if totals.Cash.Cmp(outflow) < 0 {
		return nil, ErrInsufficientPoolLiquidity
	}

	pos.PendingPrincipalWithdrawal = big.NewInt(0)
	pos.WithdrawalRequestedAt = 0
	pos.EarnedInterestUnclaimed = new(big.Int).Sub(pos.EarnedInterestUnclaimed, interest)
	totals.TotalLent = subFloor(totals.TotalLent, pending)
	totals.Cash = new(big.Int).Sub(totals.Cash, outflow)

	if err := e.storeLender(pos); err != nil {
		return nil, err
	}
	if err := e.storeTotals(totals); err != nil {
		return nil, err
	}
	toLender := new(big.Int).Add(payout, interest)
	if toLender.Sign() > 0 {
		if err := e.vault.Transfer(e.cfg.BaseAsset, e.moduleAddress, lender, toLender); err != nil {
			return nil, err
		}
	}
	if penalty.Sign() > 0 {
		if e.cfg.ReserveAddress.IsZero() {
			err = e.vault.Burn(e.cfg.BaseAsset, e.moduleAddress, penalty)
		} else {
			err = e.vault.Transfer(e.cfg.BaseAsset, e.moduleAddress, e.cfg.ReserveAddress, penalty)
		}
		if err != nil {
			return nil, err
		}
		e.emit(newEvent(EventTypeEarlyWithdrawalPenalty).
			addr("account", lender).
			amount("penalty", penalty).
			flag("burned", e.cfg.ReserveAddress.IsZero()).
			build())
	}
	e.emit(newEvent(EventTypeFundsWithdrawn).
		addr("account", lender).
		amount("amount", payout).
		amount("principal", pending).
		build())
	if interest.Sign() > 0 {
		e.emit(newEvent(EventTypeInterestClaimed).
			addr("account", lender).
			amount("amount", interest).
			build())
	}
	return &WithdrawalResult{Principal: pending, Payout: payout, Penalty: penalty, Interest: interest}, nil
}

// ClaimInterest pays out the lender's accrued interest.
func (e *Engine) ClaimInterest(lender crypto.Address) (*big.Int, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	pos, err := e.loadLender(lender)
	if err != nil {
		return nil, err
	}
	if !pos.IsActive() {
		return nil, ErrLenderNotActive
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	e.accrueLender(pos, totals, e.now())
	interest := new(big.Int).Set(pos.EarnedInterestUnclaimed)
	if interest.Sign() == 0 {
		return nil, ErrNoInterestToClaim
	}
	if totals.Cash.Cmp(interest) < 0 {
		return nil, ErrInsufficientPoolLiquidity
	}
	pos.EarnedInterestUnclaimed = big.NewInt(0)
	totals.Cash = new(big.Int).Sub(totals.Cash, interest)
	if err := e.storeLender(pos); err != nil {
		return nil, err
	}
	if err := e.storeTotals(totals); err != nil {
		return nil, err
	}
	if err := e.vault.Transfer(e.cfg.BaseAsset, e.moduleAddress, lender, interest); err != nil {
		return nil, err
	}
	e.emit(newEvent(EventTypeInterestClaimed).
		addr("account", lender).
		amount("amount", interest).
		build())
	return interest, nil
}

// PendingInterest returns the lender's unclaimed interest including periods
// not yet credited.
func (e *Engine) PendingInterest(lender crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateNotConfigured
	}
	pos, err := e.loadLender(lender)
	if err != nil {
		return nil, err
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	e.accrueLender(pos, totals, e.now())
	return pos.EarnedInterestUnclaimed, nil
}
