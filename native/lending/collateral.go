package lending

import (
	"fmt"
	"math/big"

	"quadlend/crypto"
)

// valuationMode selects which stablecoin weight applies.
type valuationMode int

const (
	// valueForBorrow weights stablecoins by loan-to-value.
	valueForBorrow valuationMode = iota
	// valueForHealth weights stablecoins by liquidation threshold.
	valueForHealth
)

func (e *Engine) assetPrice(asset string, now uint64) (Price, error) {
	feed := e.cfg.PriceFeeds[asset]
	if feed == "" || e.oracle == nil {
		return Price{}, fmt.Errorf("%w: %s has no feed", ErrPriceFeedUnavailable, asset)
	}
	price, err := e.oracle.Price(feed)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %s: %v", ErrPriceFeedUnavailable, asset, err)
	}
	if price.Value == nil || price.Value.Sign() <= 0 {
		return Price{}, fmt.Errorf("%w: %s reports non-positive price", ErrPriceFeedUnavailable, asset)
	}
	if maxAge := e.cfg.MaxPriceAgeSeconds; maxAge > 0 && now > price.UpdatedAt && now-price.UpdatedAt > maxAge {
		return Price{}, fmt.Errorf("%w: %s price is stale", ErrPriceFeedUnavailable, asset)
	}
	return price, nil
}

// collateralValue sums balance x price over the position's recorded assets,
// in base asset units.
func (e *Engine) collateralValue(pos *BorrowerPosition, mode valuationMode, now uint64) (*big.Int, error) {
	total := big.NewInt(0)
	for _, entry := range pos.Collateral {
		if entry.Amount == nil || entry.Amount.Sign() == 0 {
			continue
		}
		price, err := e.assetPrice(entry.Asset, now)
		if err != nil {
			return nil, err
		}
		value := new(big.Int).Mul(entry.Amount, price.Value)
		value.Quo(value, pow10(price.Decimals))
		if params, ok := e.cfg.Stablecoins[entry.Asset]; ok {
			if mode == valueForHealth {
				value = applyBps(value, params.LiquidationThresholdBps)
			} else {
				value = applyBps(value, params.LTVBps)
			}
		}
		total.Add(total, value)
	}
	return total, nil
}

// TotalCollateralValue returns the unweighted-by-tier value of an account's
// collateral for liquidation purposes.
func (e *Engine) TotalCollateralValue(account crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateNotConfigured
	}
	pos, err := e.loadBorrower(account)
	if err != nil {
		return nil, err
	}
	return e.collateralValue(pos, valueForHealth, e.now())
}

// requiredRatio returns the collateral ratio for the account's current tier,
// or the strictest tier when the score no longer maps to one.
func (e *Engine) requiredRatio(account crypto.Address) (uint64, error) {
	score, _, err := e.CreditScore(account)
	if err != nil {
		return 0, err
	}
	if tier, ok := e.cfg.tierFor(score); ok {
		return tier.CollateralRatioPercent, nil
	}
	return e.cfg.strictestTier().CollateralRatioPercent, nil
}

// owed returns the debt including interest accrued up to now, plus the new
// accrual timestamp.
func (e *Engine) owed(pos *BorrowerPosition, now uint64) (*big.Int, uint64) {
	if !pos.HasDebt() {
		return big.NewInt(0), pos.LastAccrualAt
	}
	return Accrue(pos.DebtPrincipal, pos.LastAccrualAt, now, e.cfg.PeriodSeconds, pos.BorrowRate)
}

// health computes the collateralisation of pos against debt.
func (e *Engine) health(pos *BorrowerPosition, debt *big.Int, mode valuationMode, now uint64) (*Health, error) {
	required, err := e.requiredRatio(pos.Account)
	if err != nil {
		return nil, err
	}
	if debt == nil || debt.Sign() == 0 {
		return &Health{Healthy: true, RatioPercent: new(big.Int).Set(InfiniteRatio), RequiredRatio: required, Debt: big.NewInt(0)}, nil
	}
	value, err := e.collateralValue(pos, mode, now)
	if err != nil {
		return nil, err
	}
	ratio := new(big.Int).Mul(value, hundred)
	ratio.Quo(ratio, debt)
	healthy := ratio.Cmp(new(big.Int).SetUint64(required)) >= 0
	return &Health{Healthy: healthy, RatioPercent: ratio, RequiredRatio: required, Debt: cloneBig(debt)}, nil
}

// CheckCollateralization reports whether account's collateral covers its debt
// at the required ratio. Accounts without debt are always healthy with
// InfiniteRatio.
func (e *Engine) CheckCollateralization(account crypto.Address) (*Health, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateNotConfigured
	}
	pos, err := e.loadBorrower(account)
	if err != nil {
		return nil, err
	}
	now := e.now()
	debt, _ := e.owed(pos, now)
	return e.health(pos, debt, valueForHealth, now)
}

// DepositCollateral moves amount of an allow-listed asset from account into
// collateral custody.
func (e *Engine) DepositCollateral(account crypto.Address, asset string, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	asset = normalizeAsset(asset)
	if !e.cfg.collateralAllowed(asset) {
		return ErrCollateralNotAllowed
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.requireFunds(asset, account, amount); err != nil {
		return err
	}
	pos, err := e.loadBorrower(account)
	if err != nil {
		return err
	}
	balance := pos.CollateralOf(asset)
	pos.setCollateral(asset, balance.Add(balance, amount))
	if err := e.storeBorrower(pos); err != nil {
		return err
	}
	if err := e.vault.Transfer(asset, account, e.collateralAddress, amount); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeCollateralDeposited).
		addr("account", account).
		str("asset", asset).
		amount("amount", amount).
		amount("balance", balance).
		build())
	return nil
}

// WithdrawCollateral returns amount of asset to account. When the account has
// debt the position must stay at or above its required ratio after the
// withdrawal.
func (e *Engine) WithdrawCollateral(account crypto.Address, asset string, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	asset = normalizeAsset(asset)
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pos, err := e.loadBorrower(account)
	if err != nil {
		return err
	}
	balance := pos.CollateralOf(asset)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientCollateralBalance
	}
	now := e.now()
	remaining := new(big.Int).Sub(balance, amount)
	after := pos.Clone()
	after.setCollateral(asset, remaining)
	debt, _ := e.owed(pos, now)
	if debt.Sign() > 0 {
		h, err := e.health(after, debt, valueForBorrow, now)
		if err != nil {
			return err
		}
		if !h.Healthy {
			return ErrWithdrawalWouldUndercollateralize
		}
	}
	if err := e.storeBorrower(after); err != nil {
		return err
	}
	if err := e.vault.Transfer(asset, e.collateralAddress, account, amount); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeCollateralWithdrawn).
		addr("account", account).
		str("asset", asset).
		amount("amount", amount).
		amount("balance", remaining).
		build())
	return nil
}
