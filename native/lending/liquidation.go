package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"quadlend/crypto"
)

// StartLiquidation marks an unhealthy position. The borrower then has the
// grace period to recover before the position can be executed.
func (e *Engine) StartLiquidation(caller, account crypto.Address) (*Health, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	pos, err := e.loadBorrower(account)
	if err != nil {
		return nil, err
	}
	if pos.LiquidationState == LiquidationMarked {
		return nil, ErrAlreadyMarked
	}
	now := e.now()
	debt, _ := e.owed(pos, now)
	h, err := e.health(pos, debt, valueForHealth, now)
	if err != nil {
		return nil, err
	}
	if h.Healthy {
		return nil, ErrPositionIsHealthy
	}
	pos.LiquidationState = LiquidationMarked
	pos.LiquidationMarkedAt = now
	if err := e.storeBorrower(pos); err != nil {
		return nil, err
	}
	if err := e.indexAdd(markedIndexKey, account); err != nil {
		return nil, err
	}
	e.emit(newEvent(EventTypeLiquidationStarted).
		addr("account", account).
		addr("caller", caller).
		amount("debt", debt).
		amount("ratio", h.RatioPercent).
		uint("markedAt", now).
		uint("deadline", now+e.cfg.GracePeriodSeconds).
		build())
	return h, nil
}

// RecoverFromLiquidation lets caller add collateral and/or repay toward a
// marked position. The mark is cleared once the position is healthy again;
// partial recovery leaves it marked.
func (e *Engine) RecoverFromLiquidation(caller, account crypto.Address, asset string, collateral, repay *big.Int) (*Health, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	pos, err := e.loadBorrower(account)
	if err != nil {
		return nil, err
	}
	if pos.LiquidationState != LiquidationMarked {
		return nil, ErrNotMarkedForLiquidation
	}
	hasCollateral := collateral != nil && collateral.Sign() > 0
	hasRepay := repay != nil && repay.Sign() > 0
	if !hasCollateral && !hasRepay {
		return nil, ErrInvalidAmount
	}
	if (collateral != nil && collateral.Sign() < 0) || (repay != nil && repay.Sign() < 0) {
		return nil, ErrInvalidAmount
	}
	asset = normalizeAsset(asset)
	if hasCollateral {
		if !e.cfg.collateralAllowed(asset) {
			return nil, ErrCollateralNotAllowed
		}
		if err := e.requireFunds(asset, caller, collateral); err != nil {
			return nil, err
		}
	}
	if hasRepay {
		if err := e.requireFunds(e.cfg.BaseAsset, caller, repay); err != nil {
			return nil, err
		}
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	now := e.now()
	e.accrueBorrower(pos, totals, now)
	applied := big.NewInt(0)
	if hasRepay {
		applied = minBig(repay, pos.DebtPrincipal)
	}
	if hasCollateral {
		balance := pos.CollateralOf(asset)
		pos.setCollateral(asset, balance.Add(balance, collateral))
	}
	if applied.Sign() > 0 {
		e.applyRepayment(pos, totals, applied)
	}
	h, err := e.health(pos, pos.DebtPrincipal, valueForHealth, now)
	if err != nil {
		return nil, err
	}
	if h.Healthy && pos.LiquidationState == LiquidationMarked {
		pos.LiquidationState = LiquidationRecovered
		pos.LiquidationMarkedAt = 0
	}

	if err := e.storeBorrower(pos); err != nil {
		return nil, err
	}
	if err := e.storeTotals(totals); err != nil {
		return nil, err
	}
	if pos.LiquidationState != LiquidationMarked {
		if err := e.indexRemove(markedIndexKey, account); err != nil {
			return nil, err
		}
	}
	if hasCollateral {
		if err := e.vault.Transfer(asset, caller, e.collateralAddress, collateral); err != nil {
			return nil, err
		}
	}
	if applied.Sign() > 0 {
		if err := e.vault.Transfer(e.cfg.BaseAsset, caller, e.moduleAddress, applied); err != nil {
			return nil, err
		}
	}
	e.emit(newEvent(EventTypeLiquidationRecovered).
		addr("account", account).
		addr("caller", caller).
		amount("collateral", collateral).
		amount("repaid", applied).
		amount("ratio", h.RatioPercent).
		flag("healthy", h.Healthy).
		build())
	return h, nil
}

// CheckUpkeep reports whether any marked position has outlived its grace
// period. The payload is the RLP-encoded account list for PerformUpkeep.
func (e *Engine) CheckUpkeep() (bool, []byte, error) {
	if e == nil || e.state == nil {
		return false, nil, ErrStateNotConfigured
	}
	marked, err := e.loadIndex(markedIndexKey)
	if err != nil {
		return false, nil, err
	}
	now := e.now()
	due := make([]crypto.Address, 0, len(marked))
	for _, account := range marked {
		if len(due) >= e.cfg.MaxBatchSize {
			break
		}
		pos, err := e.loadBorrower(account)
		if err != nil {
			return false, nil, err
		}
		if pos.LiquidationState == LiquidationMarked && now >= pos.LiquidationMarkedAt+e.cfg.GracePeriodSeconds {
			due = append(due, account)
		}
	}
	if len(due) == 0 {
		return false, nil, nil
	}
	payload, err := rlp.EncodeToBytes(due)
	if err != nil {
		return false, nil, err
	}
	return true, payload, nil
}

// PerformUpkeep executes every account in payload that is still marked,
// still unhealthy and past its grace period. Accounts that fail any of these
// checks are skipped.
func (e *Engine) PerformUpkeep(payload []byte) (*UpkeepReport, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	var accounts []crypto.Address
	if err := rlp.DecodeBytes(payload, &accounts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpkeepPayload, err)
	}
	if len(accounts) > e.cfg.MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	report := &UpkeepReport{}
	now := e.now()
	for _, account := range accounts {
		err := e.executeLiquidation(account, now)
		switch {
		case err == nil:
			report.Executed = append(report.Executed, account)
		case isEngineError(err):
			e.logger.Debug("liquidation skipped", "account", account.String(), "reason", err.Error())
			report.Skipped = append(report.Skipped, account)
		default:
			return nil, err
		}
	}
	return report, nil
}

func (e *Engine) executeLiquidation(account crypto.Address, now uint64) error {
	pos, err := e.loadBorrower(account)
	if err != nil {
		return err
	}
	if pos.LiquidationState != LiquidationMarked {
		return ErrNotMarkedForLiquidation
	}
	if now < pos.LiquidationMarkedAt+e.cfg.GracePeriodSeconds {
		return ErrGracePeriodActive
	}
	debt, _ := e.owed(pos, now)
	h, err := e.health(pos, debt, valueForHealth, now)
	if err != nil {
		return err
	}
	if h.Healthy {
		return ErrPositionIsHealthy
	}
	totals, err := e.loadTotals()
	if err != nil {
		return err
	}
	recipient := e.cfg.LiquidationRecipient
	seized := pos.Collateral
	totals.TotalBorrowed = subFloor(totals.TotalBorrowed, pos.DebtPrincipal)
	totals.BadDebt = new(big.Int).Add(totals.BadDebt, debt)
	if recipient.IsZero() {
		for _, entry := range seized {
			if entry.Amount != nil && entry.Amount.Sign() > 0 {
				totals.retain(entry.Asset, entry.Amount)
			}
		}
	}
	pos.Collateral = nil
	pos.DebtPrincipal = big.NewInt(0)
	pos.LiquidationState = LiquidationExecuted
	pos.LiquidationMarkedAt = 0

	if err := e.storeBorrower(pos); err != nil {
		return err
	}
	if err := e.storeTotals(totals); err != nil {
		return err
	}
	if err := e.indexRemove(markedIndexKey, account); err != nil {
		return err
	}
	if !recipient.IsZero() {
		for _, entry := range seized {
			if entry.Amount == nil || entry.Amount.Sign() == 0 {
				continue
			}
			if err := e.vault.Transfer(entry.Asset, e.collateralAddress, recipient, entry.Amount); err != nil {
				return err
			}
		}
	}
	b := newEvent(EventTypeLiquidationExecuted).
		addr("account", account).
		amount("debt", debt).
		flag("retained", recipient.IsZero())
	if !recipient.IsZero() {
		b.addr("recipient", recipient)
	}
	for _, entry := range seized {
		b.amount("seized."+entry.Asset, entry.Amount)
	}
	e.emit(b.build())
	return nil
}
