package lending

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"quadlend/crypto"
)

// RepayPolicy selects how Repay treats an account with no debt.
type RepayPolicy string

const (
	// RepayStrict fails with ErrNoOutstandingDebt.
	RepayStrict RepayPolicy = "strict"
	// RepayLenient returns without effect.
	RepayLenient RepayPolicy = "lenient"
)

// Config captures the runtime configuration for the lending pool. It is owned
// by the engine and changed only through the timelock-gated setters.
type Config struct {
	BaseAsset     string `toml:"BaseAsset" json:"baseAsset"`
	PeriodSeconds uint64 `toml:"PeriodSeconds" json:"periodSeconds"`

	MinDeposit                *big.Int `toml:"MinDeposit" json:"minDeposit"`
	MaxTotalCap               *big.Int `toml:"MaxTotalCap" json:"maxTotalCap"`
	WithdrawalCooldownSeconds uint64   `toml:"WithdrawalCooldownSeconds" json:"withdrawalCooldownSeconds"`
	EarlyWithdrawalPenaltyBps uint64   `toml:"EarlyWithdrawalPenaltyBps" json:"earlyWithdrawalPenaltyBps"`
	// RejectZeroWithdrawal makes a zero-amount withdrawal request fail instead
	// of resetting the pending amount.
	RejectZeroWithdrawal bool           `toml:"RejectZeroWithdrawal" json:"rejectZeroWithdrawal"`
	ReserveAddress       crypto.Address `toml:"ReserveAddress" json:"reserveAddress"`
	MinLenderScore       uint8          `toml:"MinLenderScore" json:"minLenderScore"`

	// ExposureCapBps bounds a single loan as a share of total lent.
	ExposureCapBps     uint64      `toml:"ExposureCapBps" json:"exposureCapBps"`
	RepayPolicy        RepayPolicy `toml:"RepayPolicy" json:"repayPolicy"`
	MaxPriceAgeSeconds uint64      `toml:"MaxPriceAgeSeconds" json:"maxPriceAgeSeconds"`

	GracePeriodSeconds uint64 `toml:"GracePeriodSeconds" json:"gracePeriodSeconds"`
	// LiquidationRecipient receives seized collateral. When unset the
	// collateral stays in protocol custody.
	LiquidationRecipient crypto.Address `toml:"LiquidationRecipient" json:"liquidationRecipient"`
	MaxBatchSize         int            `toml:"MaxBatchSize" json:"maxBatchSize"`

	Timelock crypto.Address `toml:"Timelock" json:"timelock"`

	Interest          InterestModel               `toml:"interest" json:"interest"`
	RiskTiers         []RiskTier                  `toml:"risk_tiers" json:"riskTiers"`
	InterestTiers     []InterestTier              `toml:"interest_tiers" json:"interestTiers"`
	AllowedCollateral []string                    `toml:"AllowedCollateral" json:"allowedCollateral"`
	PriceFeeds        map[string]string           `toml:"price_feeds" json:"priceFeeds"`
	Stablecoins       map[string]StablecoinParams `toml:"stablecoins" json:"stablecoins"`
}

// DefaultRiskTiers returns the credit score table used when none is configured.
func DefaultRiskTiers() []RiskTier {
	return []RiskTier{
		{MinScore: 90, MaxScore: 100, CollateralRatioPercent: 110, InterestRateModifier: -10, MaxLoanFractionBps: 5_000},
		{MinScore: 80, MaxScore: 89, CollateralRatioPercent: 125, InterestRateModifier: -5, MaxLoanFractionBps: 4_000},
		{MinScore: 70, MaxScore: 79, CollateralRatioPercent: 140, InterestRateModifier: 0, MaxLoanFractionBps: 3_000},
		{MinScore: 60, MaxScore: 69, CollateralRatioPercent: 160, InterestRateModifier: 10, MaxLoanFractionBps: 2_000},
	}
}

// DefaultInterestTiers returns the lender balance tiers.
func DefaultInterestTiers() []InterestTier {
	return []InterestTier{
		{MinAmount: big.NewInt(0), RateMultiplier: mustBigInt("1000100000000000000")},
		{MinAmount: mustBigInt("1000000000000000000000"), RateMultiplier: mustBigInt("1000120000000000000")},
		{MinAmount: mustBigInt("10000000000000000000000"), RateMultiplier: mustBigInt("1000150000000000000")},
	}
}

// DefaultConfig returns daily accrual, a 0.01 minimum deposit, a one day
// cooldown with a 5% early penalty and a three day grace period.
func DefaultConfig() Config {
	return Config{
		BaseAsset:                 "QUSD",
		PeriodSeconds:             86_400,
		MinDeposit:                mustBigInt("10000000000000000"),
		MaxTotalCap:               mustBigInt("10000000000000000000000000"),
		WithdrawalCooldownSeconds: 86_400,
		EarlyWithdrawalPenaltyBps: 500,
		MinLenderScore:            70,
		ExposureCapBps:            5_000,
		RepayPolicy:               RepayStrict,
		MaxPriceAgeSeconds:        3_600,
		GracePeriodSeconds:        3 * 86_400,
		MaxBatchSize:              50,
		Interest:                  DefaultInterestModel(),
		RiskTiers:                 DefaultRiskTiers(),
		InterestTiers:             DefaultInterestTiers(),
		PriceFeeds:                map[string]string{},
		Stablecoins:               map[string]StablecoinParams{},
	}
}

// EnsureDefaults fills zero values from DefaultConfig.
func (c *Config) EnsureDefaults() {
	def := DefaultConfig()
	if strings.TrimSpace(c.BaseAsset) == "" {
		c.BaseAsset = def.BaseAsset
	}
	c.BaseAsset = normalizeAsset(c.BaseAsset)
	if c.PeriodSeconds == 0 {
		c.PeriodSeconds = def.PeriodSeconds
	}
	if c.MinDeposit == nil {
		c.MinDeposit = def.MinDeposit
	}
	if c.MaxTotalCap == nil {
		c.MaxTotalCap = def.MaxTotalCap
	}
	if c.ExposureCapBps == 0 {
		c.ExposureCapBps = def.ExposureCapBps
	}
	if c.RepayPolicy == "" {
		c.RepayPolicy = def.RepayPolicy
	}
	if c.GracePeriodSeconds == 0 {
		c.GracePeriodSeconds = def.GracePeriodSeconds
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = def.MaxBatchSize
	}
	if c.Interest.BaseRate == nil {
		c.Interest = def.Interest
	}
	if c.Interest.MinRate == nil {
		c.Interest.MinRate = def.Interest.MinRate
	}
	if c.Interest.MaxRate == nil {
		c.Interest.MaxRate = def.Interest.MaxRate
	}
	if c.Interest.Kink == nil {
		c.Interest.Kink = def.Interest.Kink
	}
	if len(c.RiskTiers) == 0 {
		c.RiskTiers = def.RiskTiers
	}
	if len(c.InterestTiers) == 0 {
		c.InterestTiers = def.InterestTiers
	}
	allowed := make([]string, 0, len(c.AllowedCollateral))
	for _, asset := range c.AllowedCollateral {
		if normalized := normalizeAsset(asset); normalized != "" {
			allowed = append(allowed, normalized)
		}
	}
	c.AllowedCollateral = allowed
	feeds := make(map[string]string, len(c.PriceFeeds))
	for asset, feed := range c.PriceFeeds {
		feeds[normalizeAsset(asset)] = strings.TrimSpace(feed)
	}
	c.PriceFeeds = feeds
	stables := make(map[string]StablecoinParams, len(c.Stablecoins))
	for asset, params := range c.Stablecoins {
		stables[normalizeAsset(asset)] = params
	}
	c.Stablecoins = stables
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.PeriodSeconds == 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalidConfig)
	}
	if c.MinDeposit == nil || c.MinDeposit.Sign() < 0 {
		return fmt.Errorf("%w: minimum deposit must be non-negative", ErrInvalidConfig)
	}
	if c.MaxTotalCap != nil && c.MaxTotalCap.Sign() < 0 {
		return fmt.Errorf("%w: total cap must be non-negative", ErrInvalidConfig)
	}
	if c.EarlyWithdrawalPenaltyBps > 10_000 {
		return ErrInvalidPenalty
	}
	if c.ExposureCapBps > 10_000 {
		return fmt.Errorf("%w: exposure cap exceeds 100%%", ErrInvalidConfig)
	}
	if c.MinLenderScore > 100 {
		return ErrScoreOutOfRange
	}
	switch c.RepayPolicy {
	case RepayStrict, RepayLenient:
	default:
		return fmt.Errorf("%w: unknown repay policy %q", ErrInvalidConfig, c.RepayPolicy)
	}
	if err := c.Interest.Validate(); err != nil {
		return err
	}
	if err := validateRiskTiers(c.RiskTiers); err != nil {
		return err
	}
	if err := validateInterestTiers(c.Interest, c.InterestTiers); err != nil {
		return err
	}
	for asset, params := range c.Stablecoins {
		if err := validateStablecoin(params); err != nil {
			return fmt.Errorf("%s: %w", asset, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	clone := c
	clone.MinDeposit = cloneBig(c.MinDeposit)
	clone.MaxTotalCap = cloneBig(c.MaxTotalCap)
	clone.Interest = c.Interest.Clone()
	clone.RiskTiers = append([]RiskTier(nil), c.RiskTiers...)
	clone.InterestTiers = make([]InterestTier, len(c.InterestTiers))
	for i, tier := range c.InterestTiers {
		clone.InterestTiers[i] = InterestTier{MinAmount: cloneBig(tier.MinAmount), RateMultiplier: cloneBig(tier.RateMultiplier)}
	}
	clone.AllowedCollateral = append([]string(nil), c.AllowedCollateral...)
	clone.PriceFeeds = make(map[string]string, len(c.PriceFeeds))
	for k, v := range c.PriceFeeds {
		clone.PriceFeeds[k] = v
	}
	clone.Stablecoins = make(map[string]StablecoinParams, len(c.Stablecoins))
	for k, v := range c.Stablecoins {
		clone.Stablecoins[k] = v
	}
	return clone
}

func validateRiskTiers(tiers []RiskTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: at least one risk tier required", ErrInvalidTier)
	}
	sorted := append([]RiskTier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinScore < sorted[j].MinScore })
	for i, tier := range sorted {
		if tier.MinScore > tier.MaxScore || tier.MaxScore > 100 {
			return fmt.Errorf("%w: score band %d-%d", ErrInvalidTier, tier.MinScore, tier.MaxScore)
		}
		if tier.CollateralRatioPercent < 100 {
			return fmt.Errorf("%w: collateral ratio below 100%%", ErrInvalidTier)
		}
		if tier.MaxLoanFractionBps == 0 || tier.MaxLoanFractionBps > 10_000 {
			return fmt.Errorf("%w: loan fraction out of range", ErrInvalidTier)
		}
		if tier.InterestRateModifier < -100 {
			return fmt.Errorf("%w: modifier below -100", ErrInvalidTier)
		}
		if i > 0 && tier.MinScore <= sorted[i-1].MaxScore {
			return fmt.Errorf("%w: overlapping score bands", ErrInvalidTier)
		}
	}
	return nil
}

func validateInterestTiers(model InterestModel, tiers []InterestTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: at least one interest tier required", ErrInvalidTier)
	}
	seen := make(map[string]struct{}, len(tiers))
	for _, tier := range tiers {
		if tier.MinAmount == nil || tier.MinAmount.Sign() < 0 {
			return fmt.Errorf("%w: tier minimum must be non-negative", ErrInvalidTier)
		}
		if _, dup := seen[tier.MinAmount.String()]; dup {
			return fmt.Errorf("%w: duplicate tier minimum", ErrInvalidTier)
		}
		seen[tier.MinAmount.String()] = struct{}{}
		if err := model.ValidateRate(tier.RateMultiplier); err != nil {
			return err
		}
	}
	return nil
}

func validateStablecoin(params StablecoinParams) error {
	if params.LTVBps == 0 || params.LTVBps > params.LiquidationThresholdBps || params.LiquidationThresholdBps > 10_000 {
		return ErrInvalidStablecoinParams
	}
	return nil
}

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// tierFor returns the risk tier covering score.
func (c Config) tierFor(score uint8) (RiskTier, bool) {
	for _, tier := range c.RiskTiers {
		if tier.Contains(score) {
			return tier, true
		}
	}
	return RiskTier{}, false
}

// strictestTier is applied to positions whose score fell out of every band.
func (c Config) strictestTier() RiskTier {
	var out RiskTier
	for _, tier := range c.RiskTiers {
		if tier.CollateralRatioPercent > out.CollateralRatioPercent {
			out = tier
		}
	}
	return out
}

// interestTierMultiplier picks the highest tier whose minimum the balance meets.
func (c Config) interestTierMultiplier(balance *big.Int) *big.Int {
	var best *InterestTier
	for i := range c.InterestTiers {
		tier := &c.InterestTiers[i]
		if tier.MinAmount == nil || balance == nil || balance.Cmp(tier.MinAmount) < 0 {
			continue
		}
		if best == nil || tier.MinAmount.Cmp(best.MinAmount) > 0 {
			best = tier
		}
	}
	if best == nil {
		return new(big.Int).Set(Wad)
	}
	return cloneBig(best.RateMultiplier)
}

func (c Config) collateralAllowed(asset string) bool {
	for _, allowed := range c.AllowedCollateral {
		if allowed == asset {
			return true
		}
	}
	return false
}
