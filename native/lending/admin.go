package lending

import (
	"fmt"
	"math/big"

	"quadlend/crypto"
	"quadlend/native/timelock"
)

// Function signatures accepted by HandleCall.
const (
	SigSetPaused                 = "setPaused(bool)"
	SigSetCreditScore            = "setCreditScore(address,uint8)"
	SigSetCollateralAllowed      = "setCollateralAllowed(string,bool)"
	SigSetPriceFeed              = "setPriceFeed(string,string)"
	SigSetEarlyWithdrawalPenalty = "setEarlyWithdrawalPenalty(uint64)"
	SigSetReserveAddress         = "setReserveAddress(address)"
	SigSetRiskTiers              = "setRiskTiers((uint8,uint8,uint64,int64,uint64)[])"
	SigSetInterestTiers          = "setInterestTiers((uint256,uint256)[])"
	SigSetBaseRate               = "setBaseRate(uint256)"
	SigSetStablecoinParams       = "setStablecoinParams(string,uint64,uint64)"
	SigSetLiquidationRecipient   = "setLiquidationRecipient(address)"
	SigSetRepayPolicy            = "setRepayPolicy(string)"
	SigSetTimelock               = "setTimelock(address)"
	SigAddLenders                = "addLenders(address[])"
)

// Call argument layouts. Each is RLP encoded after the selector.
type (
	PausedArgs struct {
		Paused bool
	}
	CreditScoreArgs struct {
		Account crypto.Address
		Score   uint64
	}
	CollateralAllowedArgs struct {
		Asset   string
		Allowed bool
	}
	PriceFeedArgs struct {
		Asset string
		Feed  string
	}
	PenaltyArgs struct {
		Bps uint64
	}
	AddressArgs struct {
		Address crypto.Address
	}
	RiskTierArgs struct {
		MinScore               uint8
		MaxScore               uint8
		CollateralRatioPercent uint64
		// RLP carries no signed integers; the modifier travels as magnitude
		// and sign.
		ModifierMagnitude  uint64
		ModifierNegative   bool
		MaxLoanFractionBps uint64
	}
	InterestTiersArgs struct {
		Tiers []InterestTier
	}
	RateArgs struct {
		Rate *big.Int
	}
	StablecoinArgs struct {
		Asset                   string
		LTVBps                  uint64
		LiquidationThresholdBps uint64
	}
	RepayPolicyArgs struct {
		Policy string
	}
	LendersArgs struct {
		Accounts []crypto.Address
	}
)

// EncodeRiskTiers converts tiers into their call argument form.
func EncodeRiskTiers(tiers []RiskTier) []RiskTierArgs {
	out := make([]RiskTierArgs, len(tiers))
	for i, tier := range tiers {
		mod := tier.InterestRateModifier
		neg := mod < 0
		if neg {
			mod = -mod
		}
		out[i] = RiskTierArgs{
			MinScore:               tier.MinScore,
			MaxScore:               tier.MaxScore,
			CollateralRatioPercent: tier.CollateralRatioPercent,
			ModifierMagnitude:      uint64(mod),
			ModifierNegative:       neg,
			MaxLoanFractionBps:     tier.MaxLoanFractionBps,
		}
	}
	return out
}

func decodeRiskTiers(args []RiskTierArgs) ([]RiskTier, error) {
	out := make([]RiskTier, len(args))
	for i, arg := range args {
		if arg.ModifierMagnitude > 100 {
			return nil, fmt.Errorf("%w: modifier magnitude %d", ErrInvalidTier, arg.ModifierMagnitude)
		}
		mod := int64(arg.ModifierMagnitude)
		if arg.ModifierNegative {
			mod = -mod
		}
		out[i] = RiskTier{
			MinScore:               arg.MinScore,
			MaxScore:               arg.MaxScore,
			CollateralRatioPercent: arg.CollateralRatioPercent,
			InterestRateModifier:   mod,
			MaxLoanFractionBps:     arg.MaxLoanFractionBps,
		}
	}
	return out, nil
}

// reconfigure applies mutate to a copy of the configuration, validates and
// stages the result, then swaps it in. If the store discards the staged write
// the previous configuration is restored.
func (e *Engine) reconfigure(caller crypto.Address, param string, mutate func(*Config) error) error {
	if e == nil || e.state == nil {
		return ErrStateNotConfigured
	}
	if err := e.requireTimelock(caller); err != nil {
		return err
	}
	next := e.cfg.Clone()
	if err := mutate(&next); err != nil {
		return err
	}
	next.EnsureDefaults()
	if err := next.Validate(); err != nil {
		return err
	}
	if e.params != nil {
		if err := e.params.PutJSON(ParamsKeyConfig, next); err != nil {
			return fmt.Errorf("lending: persist config: %w", err)
		}
	}
	prev := e.cfg
	e.setConfig(next)
	if notifier, ok := e.state.(discardNotifier); ok {
		notifier.OnDiscard(func() { e.setConfig(prev) })
	}
	e.logger.Info("lending parameter updated", "param", param)
	e.emit(newEvent(EventTypeParamsUpdated).str("param", param).build())
	return nil
}

// RestoreConfig replaces the active configuration with a previously
// persisted document. It is used at start-up only.
func (e *Engine) RestoreConfig(cfg Config) error {
	cfg = cfg.Clone()
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.setConfig(cfg)
	return nil
}

// SetPaused halts or resumes deposits and borrows.
func (e *Engine) SetPaused(caller crypto.Address, paused bool) error {
	if e == nil || e.state == nil {
		return ErrStateNotConfigured
	}
	if err := e.requireTimelock(caller); err != nil {
		return err
	}
	if err := e.state.SetModulePaused(moduleName, paused); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeParamsUpdated).str("param", "paused").flag("paused", paused).build())
	return nil
}

// SetCreditScore records score for account.
func (e *Engine) SetCreditScore(caller, account crypto.Address, score uint64) error {
	if e == nil || e.state == nil {
		return ErrStateNotConfigured
	}
	if err := e.requireTimelock(caller); err != nil {
		return err
	}
	return e.storeScore(account, score, "admin")
}

func (e *Engine) storeScore(account crypto.Address, score uint64, source string) error {
	if account.IsZero() {
		return ErrZeroAddress
	}
	if score > 100 {
		return ErrScoreOutOfRange
	}
	if err := e.state.KVPut(addrKey(scorePrefix, account), scoreRecord{Score: uint8(score)}); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeCreditScoreUpdated).
		addr("account", account).
		uint("score", score).
		str("source", source).
		build())
	return nil
}

// SubmitCreditProof lets an account refresh its own score by presenting a
// proof the configured verifier accepts.
func (e *Engine) SubmitCreditProof(account crypto.Address, proof []byte) (uint8, error) {
	if e == nil || e.state == nil {
		return 0, ErrStateNotConfigured
	}
	if e.verifier == nil {
		return 0, ErrCreditVerifierMissing
	}
	score, err := e.verifier.VerifyScore(account, proof)
	if err != nil {
		return 0, fmt.Errorf("lending: credit proof: %w", err)
	}
	if err := e.storeScore(account, uint64(score), "proof"); err != nil {
		return 0, err
	}
	return score, nil
}

// SetCollateralAllowed adds or removes asset from the collateral allow-list.
func (e *Engine) SetCollateralAllowed(caller crypto.Address, asset string, allowed bool) error {
	asset = normalizeAsset(asset)
	if asset == "" {
		return fmt.Errorf("%w: asset required", ErrInvalidConfig)
	}
	return e.reconfigure(caller, "allowedCollateral", func(cfg *Config) error {
		list := cfg.AllowedCollateral[:0]
		for _, existing := range cfg.AllowedCollateral {
			if existing != asset {
				list = append(list, existing)
			}
		}
		if allowed {
			list = append(list, asset)
		}
		cfg.AllowedCollateral = list
		return nil
	})
}

// SetPriceFeed binds asset to an oracle feed. An empty feed unbinds it.
func (e *Engine) SetPriceFeed(caller crypto.Address, asset, feed string) error {
	asset = normalizeAsset(asset)
	if asset == "" {
		return fmt.Errorf("%w: asset required", ErrInvalidConfig)
	}
	return e.reconfigure(caller, "priceFeed", func(cfg *Config) error {
		if feed == "" {
			delete(cfg.PriceFeeds, asset)
			return nil
		}
		cfg.PriceFeeds[asset] = feed
		return nil
	})
}

// SetEarlyWithdrawalPenalty updates the early completion penalty.
func (e *Engine) SetEarlyWithdrawalPenalty(caller crypto.Address, bps uint64) error {
	if bps > 10_000 {
		return ErrInvalidPenalty
	}
	return e.reconfigure(caller, "earlyWithdrawalPenalty", func(cfg *Config) error {
		cfg.EarlyWithdrawalPenaltyBps = bps
		return nil
	})
}

// SetReserveAddress sets where early withdrawal penalties are paid. The zero
// address burns them.
func (e *Engine) SetReserveAddress(caller, reserve crypto.Address) error {
	return e.reconfigure(caller, "reserveAddress", func(cfg *Config) error {
		cfg.ReserveAddress = reserve
		return nil
	})
}

// SetRiskTiers replaces the credit score table.
func (e *Engine) SetRiskTiers(caller crypto.Address, tiers []RiskTier) error {
	if err := validateRiskTiers(tiers); err != nil {
		return err
	}
	return e.reconfigure(caller, "riskTiers", func(cfg *Config) error {
		cfg.RiskTiers = append([]RiskTier(nil), tiers...)
		return nil
	})
}

// SetInterestTiers replaces the lender balance tiers.
func (e *Engine) SetInterestTiers(caller crypto.Address, tiers []InterestTier) error {
	return e.reconfigure(caller, "interestTiers", func(cfg *Config) error {
		if err := validateInterestTiers(cfg.Interest, tiers); err != nil {
			return err
		}
		cfg.InterestTiers = make([]InterestTier, len(tiers))
		for i, tier := range tiers {
			cfg.InterestTiers[i] = InterestTier{MinAmount: cloneBig(tier.MinAmount), RateMultiplier: cloneBig(tier.RateMultiplier)}
		}
		return nil
	})
}

// SetBaseRate updates the borrower base multiplier. Open loans keep the rate
// locked when they were drawn.
func (e *Engine) SetBaseRate(caller crypto.Address, rate *big.Int) error {
	if err := e.cfg.Interest.ValidateRate(rate); err != nil {
		return err
	}
	return e.reconfigure(caller, "baseRate", func(cfg *Config) error {
		cfg.Interest.BaseRate = cloneBig(rate)
		return nil
	})
}

// SetStablecoinParams configures LTV weighting for a stablecoin collateral.
func (e *Engine) SetStablecoinParams(caller crypto.Address, asset string, params StablecoinParams) error {
	asset = normalizeAsset(asset)
	if asset == "" {
		return fmt.Errorf("%w: asset required", ErrInvalidConfig)
	}
	if err := validateStablecoin(params); err != nil {
		return err
	}
	return e.reconfigure(caller, "stablecoin", func(cfg *Config) error {
		cfg.Stablecoins[asset] = params
		return nil
	})
}

// SetLiquidationRecipient sets where seized collateral is sent.
func (e *Engine) SetLiquidationRecipient(caller, recipient crypto.Address) error {
	return e.reconfigure(caller, "liquidationRecipient", func(cfg *Config) error {
		cfg.LiquidationRecipient = recipient
		return nil
	})
}

// SetRepayPolicy switches how repayments without debt are treated.
func (e *Engine) SetRepayPolicy(caller crypto.Address, policy RepayPolicy) error {
	return e.reconfigure(caller, "repayPolicy", func(cfg *Config) error {
		cfg.RepayPolicy = policy
		return nil
	})
}

// SetTimelock hands the admin role to another timelock.
func (e *Engine) SetTimelock(caller, next crypto.Address) error {
	if next.IsZero() {
		return ErrZeroAddress
	}
	return e.reconfigure(caller, "timelock", func(cfg *Config) error {
		cfg.Timelock = next
		return nil
	})
}

var (
	selSetPaused                 = timelock.Selector(SigSetPaused)
	selSetCreditScore            = timelock.Selector(SigSetCreditScore)
	selSetCollateralAllowed      = timelock.Selector(SigSetCollateralAllowed)
	selSetPriceFeed              = timelock.Selector(SigSetPriceFeed)
	selSetEarlyWithdrawalPenalty = timelock.Selector(SigSetEarlyWithdrawalPenalty)
	selSetReserveAddress         = timelock.Selector(SigSetReserveAddress)
	selSetRiskTiers              = timelock.Selector(SigSetRiskTiers)
	selSetInterestTiers          = timelock.Selector(SigSetInterestTiers)
	selSetBaseRate               = timelock.Selector(SigSetBaseRate)
	selSetStablecoinParams       = timelock.Selector(SigSetStablecoinParams)
	selSetLiquidationRecipient   = timelock.Selector(SigSetLiquidationRecipient)
	selSetRepayPolicy            = timelock.Selector(SigSetRepayPolicy)
	selSetTimelock               = timelock.Selector(SigSetTimelock)
	selAddLenders                = timelock.Selector(SigAddLenders)
)

// HandleCall dispatches a call executed by the timelock.
func (e *Engine) HandleCall(caller crypto.Address, selector [4]byte, args []byte) error {
	switch selector {
	case selSetPaused:
		var in PausedArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetPaused(caller, in.Paused)
	case selSetCreditScore:
		var in CreditScoreArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetCreditScore(caller, in.Account, in.Score)
	case selSetCollateralAllowed:
		var in CollateralAllowedArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetCollateralAllowed(caller, in.Asset, in.Allowed)
	case selSetPriceFeed:
		var in PriceFeedArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetPriceFeed(caller, in.Asset, in.Feed)
	case selSetEarlyWithdrawalPenalty:
		var in PenaltyArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetEarlyWithdrawalPenalty(caller, in.Bps)
	case selSetReserveAddress:
		var in AddressArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetReserveAddress(caller, in.Address)
	case selSetRiskTiers:
		var in []RiskTierArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		tiers, err := decodeRiskTiers(in)
		if err != nil {
			return err
		}
		return e.SetRiskTiers(caller, tiers)
	case selSetInterestTiers:
		var in InterestTiersArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetInterestTiers(caller, in.Tiers)
	case selSetBaseRate:
		var in RateArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetBaseRate(caller, in.Rate)
	case selSetStablecoinParams:
		var in StablecoinArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetStablecoinParams(caller, in.Asset, StablecoinParams{LTVBps: in.LTVBps, LiquidationThresholdBps: in.LiquidationThresholdBps})
	case selSetLiquidationRecipient:
		var in AddressArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetLiquidationRecipient(caller, in.Address)
	case selSetRepayPolicy:
		var in RepayPolicyArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetRepayPolicy(caller, RepayPolicy(in.Policy))
	case selSetTimelock:
		var in AddressArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		return e.SetTimelock(caller, in.Address)
	case selAddLenders:
		var in LendersArgs
		if err := timelock.DecodeArgs(args, &in); err != nil {
			return err
		}
		_, err := e.AddLenders(caller, in.Accounts)
		return err
	default:
		return fmt.Errorf("%w: %x", ErrUnknownSelector, selector[:])
	}
}
