package lending

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
)

func TestAccrueWholePeriodsOnly(t *testing.T) {
	rate := mustBigInt("1000100000000000000")
	principal := mustBigInt("10000000000000000000")

	out, last := Accrue(principal, 1_000, 1_000+86_399, 86_400, rate)
	if out.Cmp(principal) != 0 || last != 1_000 {
		t.Fatalf("expected no accrual inside first period, got %s at %d", out, last)
	}

	out, last = Accrue(principal, 1_000, 1_000+2*86_400+500, 86_400, rate)
	if last != 1_000+2*86_400 {
		t.Fatalf("expected accrual timestamp to keep the remainder, got %d", last)
	}
	if want := compound(principal, rate, 2); out.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, out)
	}
	if principal.Cmp(mustBigInt("10000000000000000000")) != 0 {
		t.Fatalf("input principal mutated")
	}

	out, last = Accrue(big.NewInt(0), 0, 3*86_400, 86_400, rate)
	if out.Sign() != 0 || last != 3*86_400 {
		t.Fatalf("zero principal should only advance the clock")
	}
}

func TestUtilisation(t *testing.T) {
	cases := []struct {
		borrowed, lent string
		want           string
	}{
		{"0", "0", "0"},
		{"5", "0", "0"},
		{"25", "100", "250000000000000000"},
		{"150", "100", "1000000000000000000"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%s", tc.borrowed, tc.lent), func(t *testing.T) {
			got := Utilisation(mustBigInt(tc.borrowed), mustBigInt(tc.lent))
			if got.Cmp(mustBigInt(tc.want)) != 0 {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestBorrowerRateCurve(t *testing.T) {
	model := DefaultInterestModel()
	neutral := RiskTier{InterestRateModifier: 0}
	discount := RiskTier{InterestRateModifier: -10}
	premium := RiskTier{InterestRateModifier: 10}

	idle := model.BorrowerRate(neutral, big.NewInt(0))
	if idle.Cmp(model.BaseRate) != 0 {
		t.Fatalf("expected base rate at zero utilisation, got %s", idle)
	}
	half := mustBigInt("500000000000000000")
	rate := model.BorrowerRate(neutral, half)
	// 1bp base plus 0.5 x 2bp slope
	if want := mustBigInt("1000200000000000000"); rate.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, rate)
	}
	if model.BorrowerRate(discount, half).Cmp(rate) >= 0 {
		t.Fatalf("discounted tier should pay less")
	}
	if model.BorrowerRate(premium, half).Cmp(rate) <= 0 {
		t.Fatalf("premium tier should pay more")
	}
	full := model.BorrowerRate(neutral, Wad)
	steep := new(big.Int).Sub(full, model.BorrowerRate(neutral, model.Kink))
	shallow := new(big.Int).Sub(model.BorrowerRate(neutral, model.Kink), model.BorrowerRate(neutral, mustBigInt("600000000000000000")))
	if steep.Cmp(shallow) <= 0 {
		t.Fatalf("rate should climb faster above the kink")
	}

	model.Slope2 = mustBigInt("100000000000000000")
	if capped := model.BorrowerRate(neutral, Wad); capped.Cmp(model.MaxRate) != 0 {
		t.Fatalf("expected clamp to max rate, got %s", capped)
	}
}

func TestLenderRate(t *testing.T) {
	model := DefaultInterestModel()
	tierMult := mustBigInt("1000150000000000000")
	if got := model.LenderRate(big.NewInt(0), tierMult); got.Cmp(tierMult) != 0 {
		t.Fatalf("idle pool should pay the tier multiplier, got %s", got)
	}
	if model.LenderRate(mustBigInt("500000000000000000"), tierMult).Cmp(tierMult) <= 0 {
		t.Fatalf("utilisation should add to the lender rate")
	}
	if model.SupplyRate(big.NewInt(0)).Cmp(Wad) != 0 {
		t.Fatalf("idle pool supply rate should be 1.0")
	}
}

func TestValidateRate(t *testing.T) {
	model := DefaultInterestModel()
	for _, raw := range []string{"999999999999999999", "1010000000000000001"} {
		if err := model.ValidateRate(mustBigInt(raw)); !errors.Is(err, ErrInvalidRate) {
			t.Fatalf("expected ErrInvalidRate for %s, got %v", raw, err)
		}
	}
	if err := model.ValidateRate(nil); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate for nil")
	}
	if err := model.ValidateRate(Wad); err != nil {
		t.Fatalf("1.0 should be valid: %v", err)
	}
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	var cfg Config
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.BaseAsset != "QUSD" || cfg.RepayPolicy != RepayStrict {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	cfg.EarlyWithdrawalPenaltyBps = 20_000
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidPenalty) {
		t.Fatalf("expected ErrInvalidPenalty, got %v", err)
	}

	clone := DefaultConfig().Clone()
	clone.RiskTiers[0].CollateralRatioPercent = 999
	if DefaultConfig().RiskTiers[0].CollateralRatioPercent == 999 {
		t.Fatalf("clone shares tier storage")
	}

	tiers := DefaultConfig()
	if tier, ok := tiers.tierFor(95); !ok || tier.CollateralRatioPercent != 110 {
		t.Fatalf("unexpected tier for 95: %+v", tier)
	}
	if _, ok := tiers.tierFor(59); ok {
		t.Fatalf("score 59 should not map to a tier")
	}
	if tiers.strictestTier().CollateralRatioPercent != 160 {
		t.Fatalf("strictest tier should require 160%%")
	}
	if got := tiers.interestTierMultiplier(mustBigInt("5000000000000000000000")); got.Cmp(mustBigInt("1000120000000000000")) != 0 {
		t.Fatalf("unexpected multiplier %s", got)
	}
}

func TestClassify(t *testing.T) {
	cases := map[error]ErrorClass{
		ErrOnlyTimelock:         ClassAuthorization,
		ErrDepositTooLow:        ClassValidation,
		ErrGracePeriodActive:    ClassState,
		ErrDepositExceedsCap:    ClassResource,
		ErrPriceFeedUnavailable: ClassExternal,
		errors.New("other"):     ClassUnknown,
	}
	for err, want := range cases {
		if got := Classify(fmt.Errorf("wrapped: %w", err)); got != want {
			t.Fatalf("%v: expected %s, got %s", err, want, got)
		}
	}
}
