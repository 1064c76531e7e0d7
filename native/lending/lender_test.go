package lending

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quadlend/crypto"
	nativecommon "quadlend/native/common"
)

func TestDepositFundsCreditsPrincipal(t *testing.T) {
	f := newFixture(t)
	lender := addr(1)
	f.fundLender(lender, units(10))

	pos, err := f.engine.Lender(lender)
	require.NoError(t, err)
	require.Zero(t, pos.PrincipalBalance.Cmp(units(10)))
	require.Equal(t, f.clock.unix(), pos.DepositedAt)

	totals, err := f.engine.Totals()
	require.NoError(t, err)
	require.Zero(t, totals.TotalLent.Cmp(units(10)))
	require.Zero(t, f.balance("QUSD", lender).Sign())

	lenders, err := f.engine.Lenders()
	require.NoError(t, err)
	require.Contains(t, lenders, lender)

	evt, ok := f.events.Last(EventTypeFundsDeposited)
	require.True(t, ok)
	require.Equal(t, units(10).String(), evt.(lendingEvent).evt.Attributes["amount"])
	f.checkInvariants()
}

func TestDepositFundsRejections(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.MaxTotalCap = units(15)
	})
	lender := addr(1)
	f.score(lender, 80)
	f.mint("QUSD", lender, units(100))

	half := new(big.Int).Div(mustBigInt("10000000000000000"), big.NewInt(2))
	require.ErrorIs(t, f.engine.DepositFunds(lender, half), ErrDepositTooLow)
	require.ErrorIs(t, f.engine.DepositFunds(lender, big.NewInt(0)), ErrInvalidAmount)
	require.ErrorIs(t, f.engine.DepositFunds(addr(0), units(1)), ErrZeroAddress)
	require.ErrorIs(t, f.engine.DepositFunds(lender, units(16)), ErrDepositExceedsCap)

	unscored := addr(2)
	f.mint("QUSD", unscored, units(1))
	require.ErrorIs(t, f.engine.DepositFunds(unscored, units(1)), ErrNotEligibleToLend)

	poor := addr(3)
	f.score(poor, 90)
	require.ErrorIs(t, f.engine.DepositFunds(poor, units(1)), ErrInsufficientFunds)

	totals, err := f.engine.Totals()
	require.NoError(t, err)
	require.Zero(t, totals.TotalLent.Sign())
}

func TestDepositPaused(t *testing.T) {
	f := newFixture(t)
	lender := addr(1)
	f.score(lender, 80)
	f.mint("QUSD", lender, units(5))

	require.ErrorIs(t, f.engine.SetPaused(lender, true), ErrOnlyTimelock)
	require.NoError(t, f.engine.SetPaused(testTimelock, true))
	require.True(t, f.engine.Paused())
	require.ErrorIs(t, f.engine.DepositFunds(lender, units(1)), nativecommon.ErrModulePaused)

	require.NoError(t, f.engine.SetPaused(testTimelock, false))
	require.NoError(t, f.engine.DepositFunds(lender, units(1)))
}

func TestWithdrawalAfterCooldownHasNoPenalty(t *testing.T) {
	f := newFixture(t)
	lender := addr(1)
	f.fundLender(lender, units(10))

	require.NoError(t, f.engine.RequestWithdrawal(lender, units(4)))
	f.clock.advance(24 * time.Hour)

	res, err := f.engine.CompleteWithdrawal(lender)
	require.NoError(t, err)
	require.Zero(t, res.Penalty.Sign())
	require.Zero(t, res.Payout.Cmp(units(4)))
	require.Zero(t, res.Interest.Sign())
	require.Zero(t, f.balance("QUSD", lender).Cmp(units(4)))

	pos, err := f.engine.Lender(lender)
	require.NoError(t, err)
	require.Zero(t, pos.PrincipalBalance.Cmp(units(6)))
	require.False(t, pos.HasPendingWithdrawal())
	require.Zero(t, pos.WithdrawalRequestedAt)
	// one period accrued on the full balance before the withdrawal settled
	require.Positive(t, pos.EarnedInterestUnclaimed.Sign())
	f.checkInvariants()
}

func TestEarlyWithdrawalPenalty(t *testing.T) {
	t.Run("burned without reserve", func(t *testing.T) {
		f := newFixture(t)
		lender := addr(1)
		f.fundLender(lender, units(10))
		supplyBefore, err := f.bank.TotalSupply("QUSD")
		require.NoError(t, err)

		require.NoError(t, f.engine.RequestWithdrawal(lender, units(4)))
		res, err := f.engine.CompleteWithdrawal(lender)
		require.NoError(t, err)

		penalty := mustBigInt("200000000000000000")
		require.Zero(t, res.Penalty.Cmp(penalty))
		require.Zero(t, res.Payout.Cmp(new(big.Int).Sub(units(4), penalty)))
		supplyAfter, err := f.bank.TotalSupply("QUSD")
		require.NoError(t, err)
		require.Zero(t, new(big.Int).Sub(supplyBefore, supplyAfter).Cmp(penalty))
		f.checkInvariants()
	})

	t.Run("paid to reserve", func(t *testing.T) {
		reserve := addr(9)
		f := newFixture(t, func(cfg *Config) { cfg.ReserveAddress = reserve })
		lender := addr(1)
		f.fundLender(lender, units(10))

		require.NoError(t, f.engine.RequestWithdrawal(lender, units(10)))
		res, err := f.engine.CompleteWithdrawal(lender)
		require.NoError(t, err)
		require.Zero(t, f.balance("QUSD", reserve).Cmp(res.Penalty))
		require.Zero(t, mustBigInt("500000000000000000").Cmp(res.Penalty))
		types := f.events.Types()
		require.Contains(t, types, EventTypeEarlyWithdrawalPenalty)
		f.checkInvariants()
	})
}

func TestRequestWithdrawalRules(t *testing.T) {
	f := newFixture(t)
	lender := addr(1)
	f.fundLender(lender, units(10))

	require.ErrorIs(t, f.engine.RequestWithdrawal(lender, units(11)), ErrWithdrawalExceedsBalance)
	require.ErrorIs(t, f.engine.RequestWithdrawal(addr(2), units(1)), ErrLenderNotActive)

	require.NoError(t, f.engine.RequestWithdrawal(lender, units(3)))
	require.ErrorIs(t, f.engine.RequestWithdrawal(lender, units(5)), ErrCooldownNotElapsed)

	f.clock.advance(24 * time.Hour)
	require.NoError(t, f.engine.RequestWithdrawal(lender, units(5)))
	pos, err := f.engine.Lender(lender)
	require.NoError(t, err)
	require.Zero(t, pos.PendingPrincipalWithdrawal.Cmp(units(5)))
	require.Equal(t, f.clock.unix(), pos.WithdrawalRequestedAt)

	require.NoError(t, f.engine.CancelPrincipalWithdrawal(lender))
	require.ErrorIs(t, f.engine.CancelPrincipalWithdrawal(lender), ErrNoPendingWithdrawal)
	_, err = f.engine.CompleteWithdrawal(lender)
	require.ErrorIs(t, err, ErrNoPendingWithdrawal)
}

func TestZeroWithdrawalRequest(t *testing.T) {
	t.Run("resets pending", func(t *testing.T) {
		f := newFixture(t)
		lender := addr(1)
		f.fundLender(lender, units(10))
		require.NoError(t, f.engine.RequestWithdrawal(lender, units(2)))
		f.clock.advance(25 * time.Hour)
		require.NoError(t, f.engine.RequestWithdrawal(lender, big.NewInt(0)))
		pos, err := f.engine.Lender(lender)
		require.NoError(t, err)
		require.False(t, pos.HasPendingWithdrawal())
		require.Zero(t, pos.WithdrawalRequestedAt)
	})

	t.Run("rejected when configured", func(t *testing.T) {
		f := newFixture(t, func(cfg *Config) { cfg.RejectZeroWithdrawal = true })
		lender := addr(1)
		f.fundLender(lender, units(10))
		require.ErrorIs(t, f.engine.RequestWithdrawal(lender, big.NewInt(0)), ErrInvalidAmount)
	})
}

func TestLenderInterestAccruesPerPeriod(t *testing.T) {
	f := newFixture(t)
	lender := addr(1)
	f.fundLender(lender, units(10))

	f.clock.advance(36 * time.Hour)
	pending, err := f.engine.PendingInterest(lender)
	require.NoError(t, err)

	rate := mustBigInt("1000100000000000000")
	grown := compound(units(10), rate, 1)
	require.Zero(t, pending.Cmp(new(big.Int).Sub(grown, units(10))))

	f.clock.advance(12 * time.Hour)
	claimed, err := f.engine.ClaimInterest(lender)
	require.NoError(t, err)
	grown = compound(units(10), rate, 2)
	require.Zero(t, claimed.Cmp(new(big.Int).Sub(grown, units(10))))
	require.Zero(t, f.balance("QUSD", lender).Cmp(claimed))

	_, err = f.engine.ClaimInterest(lender)
	require.ErrorIs(t, err, ErrNoInterestToClaim)
	f.checkInvariants()
}

func TestFailedWithdrawalLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	lender := addr(1)
	f.fundLender(lender, units(10))
	require.NoError(t, f.store.Commit())

	failing := &failingVault{Vault: f.bank}
	f.engine.SetVault(failing)
	require.NoError(t, f.engine.RequestWithdrawal(lender, units(4)))
	require.NoError(t, f.store.Commit())
	failing.fail = true

	err := f.store.Apply(func() error {
		_, err := f.engine.CompleteWithdrawal(lender)
		return err
	})
	require.Error(t, err)

	pos, err := f.engine.Lender(lender)
	require.NoError(t, err)
	require.Zero(t, pos.PrincipalBalance.Cmp(units(10)))
	require.Zero(t, pos.PendingPrincipalWithdrawal.Cmp(units(4)))
	failing.fail = false
	f.checkInvariants()
}

type failingVault struct {
	Vault
	fail bool
}

func (v *failingVault) Transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	if v.fail {
		return errors.New("vault offline")
	}
	return v.Vault.Transfer(asset, from, to, amount)
}

func compound(principal, rate *big.Int, periods int) *big.Int {
	out := new(big.Int).Set(principal)
	for i := 0; i < periods; i++ {
		out.Mul(out, rate)
		out.Quo(out, Wad)
	}
	return out
}

func TestDepositRequestCancelRoundTrip(t *testing.T) {
	f := newFixture(t)
	lender := addr(1)
	f.fundLender(lender, units(10))
	before, err := f.engine.Lender(lender)
	require.NoError(t, err)

	require.NoError(t, f.engine.RequestWithdrawal(lender, units(10)))
	require.NoError(t, f.engine.CancelPrincipalWithdrawal(lender))
	after, err := f.engine.Lender(lender)
	require.NoError(t, err)
	require.Zero(t, after.PrincipalBalance.Cmp(before.PrincipalBalance))
	require.False(t, after.HasPendingWithdrawal())
	require.Zero(t, f.balance("QUSD", poolAddr).Cmp(units(10)))
}

func TestCheckCollateralizationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.fundLender(addr(1), units(100))
	borrower := addr(2)
	f.openLoan(borrower, 75, units(1), units(5))
	dirty := f.store.Dirty()

	first, err := f.engine.CheckCollateralization(borrower)
	require.NoError(t, err)
	second, err := f.engine.CheckCollateralization(borrower)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, dirty, f.store.Dirty())
	require.Zero(t, first.RatioPercent.Cmp(big.NewInt(200)))
}
