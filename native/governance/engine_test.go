package governance

import (
	"math/big"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"quadlend/core/events"
	"quadlend/crypto"
	"quadlend/native/timelock"
	"quadlend/native/votetoken"
	"quadlend/state"
	"quadlend/storage"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingTarget struct {
	calls [][4]byte
}

func (r *recordingTarget) HandleCall(_ crypto.Address, selector [4]byte, _ []byte) error {
	r.calls = append(r.calls, selector)
	return nil
}

var (
	govAddr      = crypto.ModuleAddress("governance")
	tokenAddr    = crypto.ModuleAddress("votetoken")
	timelockAddr = crypto.ModuleAddress("timelock")
	minter       = crypto.Address{0xaa}
	alice        = crypto.Address{0x01}
	bob          = crypto.Address{0x02}
	carol        = crypto.Address{0x03}
	targetAddr   = crypto.Address{0x44}
	signerA      = crypto.Address{0x51}
	signerB      = crypto.Address{0x52}
	signerC      = crypto.Address{0x53}
	guardian     = crypto.Address{0x60}
)

const (
	delay  = 60
	period = 3 * 86_400
	lock   = 2 * 86_400
)

type fixture struct {
	gov    *Engine
	token  *votetoken.Token
	tl     *timelock.Engine
	target *recordingTarget
	clock  *clock
	rec    *events.Recorder
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	store := state.NewStore(storage.NewMemDB())
	rec := &events.Recorder{}

	cfg := DefaultConfig()
	cfg.VotingDelaySeconds = delay
	cfg.VotingPeriodSeconds = period
	cfg.TimelockDelaySeconds = lock
	cfg.VetoSigners = []crypto.Address{signerA, signerB, signerC}
	cfg.VetoThreshold = 2
	cfg.Cancellers = []crypto.Address{guardian}
	for _, fn := range mutate {
		fn(&cfg)
	}
	gov, err := NewEngine(govAddr, cfg)
	require.NoError(t, err)

	token := votetoken.NewToken(tokenAddr, minter)
	token.SetState(store)
	token.SetNowFunc(clk.Now)
	token.SetGovernance(govAddr, gov)

	tl := timelock.NewEngine(timelockAddr, lock)
	tl.SetState(store)
	tl.SetNowFunc(clk.Now)
	tl.AddProposer(govAddr)
	tl.AddExecutor(govAddr)
	target := &recordingTarget{}
	tl.RegisterTarget(targetAddr, target)
	tl.RegisterTarget(govAddr, gov)

	gov.SetState(store)
	gov.SetToken(token, tokenAddr)
	gov.SetTimelock(tl)
	gov.SetNowFunc(clk.Now)
	gov.SetEmitter(rec)

	return &fixture{gov: gov, token: token, tl: tl, target: target, clock: clk, rec: rec}
}

func (f *fixture) mint(t *testing.T, to crypto.Address, amount int64) {
	t.Helper()
	require.NoError(t, f.token.Mint(minter, to, big.NewInt(amount)))
}

func (f *fixture) propose(t *testing.T, proposer crypto.Address, target crypto.Address, sig string, args interface{}) [32]byte {
	t.Helper()
	data, err := timelock.EncodeCall(sig, args)
	require.NoError(t, err)
	id, err := f.gov.Propose(proposer, target, data, sig+" @ "+f.clock.now.String())
	require.NoError(t, err)
	return id
}

func (f *fixture) openVoting() { f.clock.Advance((delay + 1) * time.Second) }

func (f *fixture) closeVoting() { f.clock.Advance((period + 1) * time.Second) }

func (f *fixture) requireState(t *testing.T, id [32]byte, want ProposalState) {
	t.Helper()
	got, err := f.gov.State(id)
	require.NoError(t, err)
	require.Equal(t, want, got, "state %s, want %s", got, want)
}

func TestBootstrapQuorumBoundary(t *testing.T) {
	cases := []struct {
		name    string
		balance int64
		power   int64
		want    ProposalState
	}{
		{name: "99 votes", balance: 9_801, power: 99, want: ProposalDefeated},
		{name: "100 votes", balance: 10_000, power: 100, want: ProposalSucceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.mint(t, alice, tc.balance)
			id := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{1})
			f.requireState(t, id, ProposalPending)

			f.openVoting()
			f.requireState(t, id, ProposalActive)
			weight, err := f.gov.CastVote(id, alice, VoteFor)
			require.NoError(t, err)
			require.Equal(t, tc.power, weight.Int64())

			f.closeVoting()
			f.requireState(t, id, tc.want)
		})
	}
}

func TestAgainstTieDefeats(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)
	f.mint(t, bob, 10_000)
	id := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{2})
	f.openVoting()
	_, err := f.gov.CastVote(id, alice, VoteFor)
	require.NoError(t, err)
	_, err = f.gov.CastVote(id, bob, VoteAgainst)
	require.NoError(t, err)
	f.closeVoting()
	f.requireState(t, id, ProposalDefeated)
}

func TestAbstainCountsTowardsQuorum(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 2_500) // 50
	f.mint(t, bob, 2_500)   // 50
	id := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{3})
	f.openVoting()
	_, err := f.gov.CastVote(id, alice, VoteFor)
	require.NoError(t, err)
	_, err = f.gov.CastVote(id, bob, VoteAbstain)
	require.NoError(t, err)
	f.closeVoting()
	f.requireState(t, id, ProposalSucceeded)
}

func TestVotingRules(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)
	id := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{4})

	_, err := f.gov.CastVote(id, alice, VoteFor)
	require.ErrorIs(t, err, ErrVotingClosed)

	f.openVoting()
	_, err = f.gov.CastVote(id, alice, VoteType(7))
	require.ErrorIs(t, err, ErrInvalidVoteType)
	_, err = f.gov.CastVoteAdvanced(id, alice, true)
	require.ErrorIs(t, err, ErrWrongProposalKind)
	_, err = f.gov.CastVote(id, alice, VoteFor)
	require.NoError(t, err)
	_, err = f.gov.CastVote(id, alice, VoteAgainst)
	require.ErrorIs(t, err, ErrAlreadyVoted)

	// tokens minted after the snapshot carry no weight
	f.mint(t, bob, 1_000_000)
	weight, err := f.gov.CastVote(id, bob, VoteAgainst)
	require.NoError(t, err)
	require.Zero(t, weight.Sign())

	receipt, err := f.gov.Receipt(id, alice)
	require.NoError(t, err)
	require.True(t, receipt.HasVoted)
	require.Equal(t, VoteFor, receipt.Support)
	require.Equal(t, int64(100), receipt.Weight.Int64())

	_, err = f.gov.CastVote([32]byte{0x01}, alice, VoteFor)
	require.ErrorIs(t, err, ErrProposalNotFound)
}

func TestProposeValidation(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.ProposalThreshold = big.NewInt(10) })
	data, err := timelock.EncodeCall("poke(uint64)", struct{ V uint64 }{1})
	require.NoError(t, err)

	_, err = f.gov.Propose(alice, targetAddr, data, "x")
	require.ErrorIs(t, err, ErrBelowThreshold)
	_, err = f.gov.Propose(alice, crypto.Address{}, data, "x")
	require.ErrorIs(t, err, ErrZeroAddress)
	_, err = f.gov.Propose(alice, targetAddr, []byte{0x01}, "x")
	require.ErrorIs(t, err, ErrInvalidCalldata)

	f.mint(t, alice, 100) // power 10
	id, err := f.gov.Propose(alice, targetAddr, data, "x")
	require.NoError(t, err)
	require.Equal(t, ProposalID(targetAddr, data, hashOf("x")), id)
	_, err = f.gov.Propose(alice, targetAddr, data, "x")
	require.ErrorIs(t, err, ErrProposalExists)

	evt, ok := f.rec.Last(EventTypeProposalProposed)
	require.True(t, ok)
	attrs := evt.(governanceEvent).Event().Attributes
	require.Equal(t, "false", attrs["advanced"])
}

func TestAdvancedProposalWhitelistBeforePower(t *testing.T) {
	f := newFixture(t)
	sel := timelock.Selector("poke(uint64)")

	// carol has no tokens: the whitelist failure must win
	_, err := f.gov.ProposeAdvanced(carol, targetAddr, sel, nil, big.NewInt(1))
	require.ErrorIs(t, err, ErrTargetNotWhitelisted)

	require.NoError(t, f.gov.SeedWhitelist(targetAddr, "poke(uint64)"))
	_, err = f.gov.ProposeAdvanced(carol, targetAddr, sel, nil, big.NewInt(1))
	require.ErrorIs(t, err, ErrBelowThreshold)

	f.mint(t, carol, 10_000)
	_, err = f.gov.ProposeAdvanced(carol, targetAddr, sel, nil, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidMinVotes)
}

func TestAdvancedProposalMinVotes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.gov.SeedWhitelist(targetAddr, "poke(uint64)"))
	f.mint(t, alice, 10_000)
	sel := timelock.Selector("poke(uint64)")
	args, err := timelock.EncodeCall("poke(uint64)", struct{ V uint64 }{9})
	require.NoError(t, err)

	strict, err := f.gov.ProposeAdvanced(alice, targetAddr, sel, args[4:], big.NewInt(150))
	require.NoError(t, err)
	loose, err := f.gov.ProposeAdvanced(alice, targetAddr, sel, args[4:], big.NewInt(100))
	require.NoError(t, err)
	require.NotEqual(t, strict, loose)

	f.openVoting()
	_, err = f.gov.CastVote(strict, alice, VoteFor)
	require.ErrorIs(t, err, ErrWrongProposalKind)
	for _, id := range [][32]byte{strict, loose} {
		_, err = f.gov.CastVoteAdvanced(id, alice, true)
		require.NoError(t, err)
	}
	f.closeVoting()
	f.requireState(t, strict, ProposalDefeated)
	f.requireState(t, loose, ProposalSucceeded)

	require.NoError(t, f.gov.Queue(loose))
	f.clock.Advance(lock * time.Second)
	require.NoError(t, f.gov.Execute(loose))
	require.Equal(t, [][4]byte{sel}, f.target.calls)
}

func TestQueueAndExecuteThroughTimelock(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)
	id := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{5})

	require.ErrorIs(t, f.gov.Queue(id), ErrNotSucceeded)
	f.openVoting()
	_, err := f.gov.CastVote(id, alice, VoteFor)
	require.NoError(t, err)
	f.closeVoting()

	require.ErrorIs(t, f.gov.Execute(id), ErrNotQueued)
	require.NoError(t, f.gov.Queue(id))
	f.requireState(t, id, ProposalQueued)
	require.ErrorIs(t, f.gov.Queue(id), ErrNotSucceeded)

	err = f.gov.Execute(id)
	require.ErrorIs(t, err, timelock.ErrOperationNotReady)
	p, err := f.gov.Proposal(id)
	require.NoError(t, err)
	require.False(t, p.Executed)

	f.clock.Advance(lock * time.Second)
	require.NoError(t, f.gov.Execute(id))
	f.requireState(t, id, ProposalExecuted)
	require.Len(t, f.target.calls, 1)
	require.Equal(t, timelock.Selector("poke(uint64)"), f.target.calls[0])
	require.ErrorIs(t, f.gov.Execute(id), ErrNotQueued)

	require.Equal(t, []string{
		EventTypeProposalProposed,
		EventTypeVoteCast,
		EventTypeProposalQueued,
		EventTypeProposalExecuted,
	}, f.rec.Types())
}

func passAndExecute(t *testing.T, f *fixture, voter crypto.Address, sig string, args interface{}) {
	t.Helper()
	id := f.propose(t, voter, govAddr, sig, args)
	f.openVoting()
	_, err := f.gov.CastVote(id, voter, VoteFor)
	require.NoError(t, err)
	f.closeVoting()
	require.NoError(t, f.gov.Queue(id))
	f.clock.Advance(lock * time.Second)
	require.NoError(t, f.gov.Execute(id))
}

func TestBootstrapModeOnlyThroughProposal(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)

	args, err := timelock.EncodeCall(SigSetBootstrapMode, BootstrapArgs{Enabled: false})
	require.NoError(t, err)
	require.ErrorIs(t, f.gov.HandleCall(alice, timelock.Selector(SigSetBootstrapMode), args[4:]), ErrOnlyTimelock)

	passAndExecute(t, f, alice, SigSetBootstrapMode, BootstrapArgs{Enabled: false})
	enabled, err := f.gov.BootstrapMode()
	require.NoError(t, err)
	require.False(t, enabled)
	_, ok := f.rec.Last(EventTypeBootstrapChanged)
	require.True(t, ok)

	// quorum now tracks supply: 4% of 10_000 tokens
	quorum, err := f.gov.QuorumAt(f.gov.now())
	require.NoError(t, err)
	require.Equal(t, int64(400), quorum.Int64())

	// alice's 100 votes no longer reach quorum
	id := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{6})
	f.openVoting()
	_, err = f.gov.CastVote(id, alice, VoteFor)
	require.NoError(t, err)
	f.closeVoting()
	f.requireState(t, id, ProposalDefeated)
}

func TestSetQuorumAndWhitelistThroughProposal(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)
	sel := timelock.Selector("poke(uint64)")

	passAndExecute(t, f, alice, SigSetQuorumBps, QuorumArgs{Bps: 2_500})
	bps, err := f.gov.QuorumBps()
	require.NoError(t, err)
	require.Equal(t, uint64(2_500), bps)

	passAndExecute(t, f, alice, SigSetWhitelisted, WhitelistArgs{Target: targetAddr, Selector: sel, Allowed: true})
	ok, err := f.gov.IsWhitelisted(targetAddr, sel)
	require.NoError(t, err)
	require.True(t, ok)

	err = f.gov.HandleCall(timelockAddr, [4]byte{0xde, 0xad, 0xbe, 0xef}, nil)
	require.ErrorIs(t, err, timelock.ErrUnknownSelector)
	err = f.gov.HandleCall(timelockAddr, timelock.Selector(SigSetQuorumBps), mustArgs(t, SigSetQuorumBps, QuorumArgs{Bps: 20_000}))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func mustArgs(t *testing.T, sig string, args interface{}) []byte {
	t.Helper()
	data, err := timelock.EncodeCall(sig, args)
	require.NoError(t, err)
	return data[4:]
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)
	id := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{7})

	require.ErrorIs(t, f.gov.Cancel(bob, id), ErrNotCanceller)
	require.NoError(t, f.gov.Cancel(guardian, id))
	f.requireState(t, id, ProposalCanceled)
	require.ErrorIs(t, f.gov.Cancel(alice, id), ErrNotCancelable)

	active := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{8})
	f.openVoting()
	require.NoError(t, f.gov.Cancel(alice, active))
	_, err := f.gov.CastVote(active, alice, VoteFor)
	require.ErrorIs(t, err, ErrVotingClosed)

	done := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{9})
	f.openVoting()
	_, err = f.gov.CastVote(done, alice, VoteFor)
	require.NoError(t, err)
	f.closeVoting()
	require.ErrorIs(t, f.gov.Cancel(alice, done), ErrNotCancelable)
}

func TestVetoQueuedProposal(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)
	id := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{10})
	f.openVoting()
	_, err := f.gov.CastVote(id, alice, VoteFor)
	require.NoError(t, err)
	f.closeVoting()

	_, err = f.gov.Veto(signerA, id)
	require.ErrorIs(t, err, ErrNotQueued)
	require.NoError(t, f.gov.Queue(id))

	_, err = f.gov.Veto(alice, id)
	require.ErrorIs(t, err, ErrNotVetoSigner)
	vetoed, err := f.gov.Veto(signerA, id)
	require.NoError(t, err)
	require.False(t, vetoed)
	_, err = f.gov.Veto(signerA, id)
	require.ErrorIs(t, err, ErrAlreadyVetoed)
	f.requireState(t, id, ProposalQueued)

	vetoed, err = f.gov.Veto(signerB, id)
	require.NoError(t, err)
	require.True(t, vetoed)
	f.requireState(t, id, ProposalCanceled)

	p, err := f.gov.Proposal(id)
	require.NoError(t, err)
	require.True(t, p.Vetoed)
	require.Equal(t, uint64(2), p.VetoCount)
	op, err := f.tl.Operation(p.TimelockID)
	require.NoError(t, err)
	require.True(t, op.Cancelled)

	f.clock.Advance(lock * time.Second)
	require.ErrorIs(t, f.gov.Execute(id), ErrNotQueued)
	require.Empty(t, f.target.calls)
	_, ok := f.rec.Last(EventTypeProposalVetoed)
	require.True(t, ok)
}

func TestVetoSurvivesBootstrapExit(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)
	passAndExecute(t, f, alice, SigSetQuorumBps, QuorumArgs{Bps: 100})
	passAndExecute(t, f, alice, SigSetBootstrapMode, BootstrapArgs{Enabled: false})

	id := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{11})
	f.openVoting()
	_, err := f.gov.CastVote(id, alice, VoteFor)
	require.NoError(t, err)
	f.closeVoting()
	require.NoError(t, f.gov.Queue(id))
	_, err = f.gov.Veto(signerB, id)
	require.NoError(t, err)
	vetoed, err := f.gov.Veto(signerC, id)
	require.NoError(t, err)
	require.True(t, vetoed)
}

func TestQueuedProposalSurvivesBootstrapExit(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)

	poke := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{12})
	vetoable := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{13})
	exit := f.propose(t, alice, govAddr, SigSetBootstrapMode, BootstrapArgs{Enabled: false})
	f.openVoting()
	for _, id := range [][32]byte{poke, vetoable, exit} {
		_, err := f.gov.CastVote(id, alice, VoteFor)
		require.NoError(t, err)
	}
	f.closeVoting()
	for _, id := range [][32]byte{poke, vetoable, exit} {
		require.NoError(t, f.gov.Queue(id))
	}
	f.clock.Advance(lock * time.Second)
	require.NoError(t, f.gov.Execute(exit))
	enabled, err := f.gov.BootstrapMode()
	require.NoError(t, err)
	require.False(t, enabled)

	// 100 votes are below the 4% supply quorum now in force
	f.requireState(t, poke, ProposalQueued)
	f.requireState(t, vetoable, ProposalQueued)

	_, err = f.gov.Veto(signerA, vetoable)
	require.NoError(t, err)
	vetoed, err := f.gov.Veto(signerB, vetoable)
	require.NoError(t, err)
	require.True(t, vetoed)

	require.NoError(t, f.gov.Execute(poke))
	f.requireState(t, poke, ProposalExecuted)
	require.Len(t, f.target.calls, 1)
}

func TestProposalKeepsQuorumRuleFromCreation(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)

	exit := f.propose(t, alice, govAddr, SigSetBootstrapMode, BootstrapArgs{Enabled: false})
	f.openVoting()
	late := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{14})
	p, err := f.gov.Proposal(late)
	require.NoError(t, err)
	require.True(t, p.BootstrapQuorum)

	f.openVoting()
	for _, id := range [][32]byte{exit, late} {
		_, err := f.gov.CastVote(id, alice, VoteFor)
		require.NoError(t, err)
	}
	f.closeVoting()
	require.NoError(t, f.gov.Queue(exit))
	f.clock.Advance(lock * time.Second)
	require.NoError(t, f.gov.Execute(exit))

	// tallied after bootstrap ended, still judged by the bootstrap quorum
	f.requireState(t, late, ProposalSucceeded)

	after := f.propose(t, alice, targetAddr, "poke(uint64)", struct{ V uint64 }{15})
	p, err = f.gov.Proposal(after)
	require.NoError(t, err)
	require.False(t, p.BootstrapQuorum)
	require.Equal(t, uint64(400), p.QuorumBps)
}

func TestReputationAdjustsVotingPower(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)

	require.ErrorIs(t, f.gov.AdjustReputation(alice, alice, -10), ErrOnlyVotingToken)
	require.ErrorIs(t, f.token.PenalizeReputation(alice, alice, 10), votetoken.ErrOnlyGovernance)

	power := func() int64 {
		t.Helper()
		p, err := f.gov.VotingPowerAt(alice, f.gov.now())
		require.NoError(t, err)
		return p.Int64()
	}
	require.Equal(t, int64(100), power())

	require.NoError(t, f.token.PenalizeReputation(govAddr, alice, 50))
	rep, err := f.gov.Reputation(alice)
	require.NoError(t, err)
	require.Equal(t, int64(-50), rep)
	require.Equal(t, int64(50), power())

	require.NoError(t, f.token.PenalizeReputation(govAddr, alice, 1_000))
	require.Equal(t, int64(0), power())

	require.NoError(t, f.token.RewardReputation(govAddr, alice, 1_200))
	rep, err = f.gov.Reputation(alice)
	require.NoError(t, err)
	require.Equal(t, int64(150), rep)
	require.Equal(t, int64(200), power())
}

func TestPenalizeReputationProposal(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 10_000)
	passAndExecute(t, f, alice, SigPenalizeReputation, ReputationArgs{Account: bob, Delta: 30})
	rep, err := f.gov.Reputation(bob)
	require.NoError(t, err)
	require.Equal(t, int64(-30), rep)
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.VotingPeriodSeconds = 0
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.VetoSigners = []crypto.Address{signerA, signerA}
	bad.VetoThreshold = 1
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.VetoSigners = []crypto.Address{signerA}
	bad.VetoThreshold = 2
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.QuorumBps = 10_001
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func hashOf(s string) [32]byte {
	var h [32]byte
	copy(h[:], ethcrypto.Keccak256([]byte(s)))
	return h
}
