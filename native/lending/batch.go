package lending

import "quadlend/crypto"

func (e *Engine) checkBatch(accounts []crypto.Address) error {
	if len(accounts) > e.cfg.MaxBatchSize {
		return ErrBatchTooLarge
	}
	return nil
}

// AddLenders inserts accounts into the lender index ahead of their first
// deposit. It returns how many were new.
func (e *Engine) AddLenders(caller crypto.Address, accounts []crypto.Address) (int, error) {
	release, err := e.enter()
	if err != nil {
		return 0, err
	}
	defer release()
	if err := e.requireTimelock(caller); err != nil {
		return 0, err
	}
	if err := e.checkBatch(accounts); err != nil {
		return 0, err
	}
	index, err := e.loadIndex(lenderIndexKey)
	if err != nil {
		return 0, err
	}
	present := make(map[crypto.Address]struct{}, len(index))
	for _, addr := range index {
		present[addr] = struct{}{}
	}
	now := e.now()
	added := 0
	for _, addr := range accounts {
		if addr.IsZero() {
			continue
		}
		if _, ok := present[addr]; ok {
			continue
		}
		pos, err := e.loadLender(addr)
		if err != nil {
			return 0, err
		}
		if pos.LastInterestAccrualAt == 0 {
			pos.LastInterestAccrualAt = now
			if err := e.storeLender(pos); err != nil {
				return 0, err
			}
		}
		present[addr] = struct{}{}
		index = append(index, addr)
		added++
	}
	if err := e.storeIndex(lenderIndexKey, index); err != nil {
		return 0, err
	}
	e.emit(newEvent(EventTypeLendersAdded).uint("count", uint64(added)).build())
	return added, nil
}

// BatchCreditInterest accrues interest for each account. Inactive lenders and
// lenders already credited for the current period are skipped.
func (e *Engine) BatchCreditInterest(accounts []crypto.Address) (*BatchReport, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := e.checkBatch(accounts); err != nil {
		return nil, err
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	now := e.now()
	epoch := now / e.cfg.PeriodSeconds
	report := &BatchReport{}
	for _, addr := range accounts {
		pos, err := e.loadLender(addr)
		if err != nil {
			return nil, err
		}
		if !pos.IsActive() || pos.InterestIndexSnapshot >= epoch || ElapsedPeriods(pos.LastInterestAccrualAt, now, e.cfg.PeriodSeconds) == 0 {
			report.Skipped = append(report.Skipped, addr)
			continue
		}
		e.accrueLender(pos, totals, now)
		if err := e.storeLender(pos); err != nil {
			return nil, err
		}
		report.Processed = append(report.Processed, addr)
	}
	return report, nil
}

// BatchProcessWithdrawals completes every pending withdrawal whose cooldown
// has elapsed. Early requests and those the pool cannot currently fund are
// skipped.
func (e *Engine) BatchProcessWithdrawals(accounts []crypto.Address) (*BatchReport, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := e.checkBatch(accounts); err != nil {
		return nil, err
	}
	report := &BatchReport{}
	for _, addr := range accounts {
		_, err := e.completeWithdrawal(addr, false)
		switch {
		case err == nil:
			report.Processed = append(report.Processed, addr)
		case isEngineError(err):
			report.Skipped = append(report.Skipped, addr)
		default:
			return nil, err
		}
	}
	return report, nil
}

// CleanupInactiveLenders purges lenders with nothing left in the pool from the
// iteration index. Their position records are kept.
func (e *Engine) CleanupInactiveLenders() (int, error) {
	release, err := e.enter()
	if err != nil {
		return 0, err
	}
	defer release()
	index, err := e.loadIndex(lenderIndexKey)
	if err != nil {
		return 0, err
	}
	kept := make([]crypto.Address, 0, len(index))
	for _, addr := range index {
		pos, err := e.loadLender(addr)
		if err != nil {
			return 0, err
		}
		if pos.IsActive() || pos.HasPendingWithdrawal() || pos.EarnedInterestUnclaimed.Sign() > 0 {
			kept = append(kept, addr)
		}
	}
	removed := len(index) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := e.storeIndex(lenderIndexKey, kept); err != nil {
		return 0, err
	}
	return removed, nil
}
