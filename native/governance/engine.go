package governance

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"quadlend/core/events"
	"quadlend/crypto"
	nativecommon "quadlend/native/common"
	"quadlend/native/timelock"
)

const moduleName = "governance"

var (
	ErrStateNotConfigured    = errors.New("governance: state not configured")
	ErrTokenNotConfigured    = errors.New("governance: vote token not configured")
	ErrTimelockNotConfigured = errors.New("governance: timelock not configured")
	ErrOnlyTimelock          = errors.New("governance: caller is not the timelock")
	ErrOnlyVotingToken       = errors.New("governance: caller is not the voting token")
	ErrZeroAddress           = errors.New("governance: zero address")
	ErrInvalidCalldata       = errors.New("governance: calldata must carry a selector")
	ErrInvalidConfig         = errors.New("governance: invalid config")
	ErrTargetNotWhitelisted  = errors.New("governance: target selector not whitelisted")
	ErrBelowThreshold        = errors.New("governance: proposer votes below threshold")
	ErrInvalidMinVotes       = errors.New("governance: minimum votes must be positive")
	ErrProposalExists        = errors.New("governance: proposal already exists")
	ErrProposalNotFound      = errors.New("governance: proposal not found")
	ErrVotingClosed          = errors.New("governance: proposal not active")
	ErrAlreadyVoted          = errors.New("governance: voter already voted")
	ErrInvalidVoteType       = errors.New("governance: invalid vote type")
	ErrWrongProposalKind     = errors.New("governance: wrong vote path for proposal kind")
	ErrNotSucceeded          = errors.New("governance: proposal has not succeeded")
	ErrNotQueued             = errors.New("governance: proposal is not queued")
	ErrNotCancelable         = errors.New("governance: proposal can no longer be canceled")
	ErrNotCanceller          = errors.New("governance: caller may not cancel")
	ErrNotVetoSigner         = errors.New("governance: caller is not a veto signer")
	ErrAlreadyVetoed         = errors.New("governance: signer already vetoed")
)

var (
	proposalPrefix   = []byte("gov/proposal/")
	receiptPrefix    = []byte("gov/receipt/")
	vetoPrefix       = []byte("gov/veto/")
	reputationPrefix = []byte("gov/reputation/")
	whitelistPrefix  = []byte("gov/whitelist/")
	paramsKey        = []byte("gov/params")
	nonceKey         = []byte("gov/nonce")
)

type stateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// VoteLedger exposes checkpointed token weight.
type VoteLedger interface {
	VotesAt(account crypto.Address, ts uint64) (*uint256.Int, error)
	TotalSupplyAt(ts uint64) (*uint256.Int, error)
}

// Scheduler is the timelock surface governance drives. Governance must be
// registered as both proposer and executor.
type Scheduler interface {
	Schedule(caller, target crypto.Address, data []byte, delay uint64) ([32]byte, error)
	Execute(caller crypto.Address, id [32]byte) error
	Cancel(caller crypto.Address, id [32]byte) error
	Address() crypto.Address
}

// Engine runs the proposal lifecycle with quadratic, reputation-weighted
// voting.
type Engine struct {
	state    stateStore
	token    VoteLedger
	tokenID  crypto.Address
	timelock Scheduler
	emitter  events.Emitter
	logger   *slog.Logger
	nowFn    func() time.Time

	address     crypto.Address
	cfg         Config
	vetoSigners map[crypto.Address]struct{}
	cancellers  map[crypto.Address]struct{}

	lock nativecommon.ReentrancyGuard
}

// NewEngine constructs a governance engine living at address.
func NewEngine(address crypto.Address, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		address:     address,
		cfg:         cfg.clone(),
		emitter:     events.NoopEmitter{},
		logger:      slog.Default().With("module", moduleName),
		nowFn:       func() time.Time { return time.Now().UTC() },
		vetoSigners: make(map[crypto.Address]struct{}, len(cfg.VetoSigners)),
		cancellers:  make(map[crypto.Address]struct{}, len(cfg.Cancellers)),
	}
	for _, signer := range cfg.VetoSigners {
		e.vetoSigners[signer] = struct{}{}
	}
	for _, canceller := range cfg.Cancellers {
		e.cancellers[canceller] = struct{}{}
	}
	return e, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.VotingPeriodSeconds == 0 {
		return fmt.Errorf("%w: voting period must be positive", ErrInvalidConfig)
	}
	if c.QuorumBps > 10_000 {
		return fmt.Errorf("%w: quorum bps above 10000", ErrInvalidConfig)
	}
	if c.BootstrapQuorum == nil || c.BootstrapQuorum.Sign() <= 0 {
		return fmt.Errorf("%w: bootstrap quorum must be positive", ErrInvalidConfig)
	}
	if c.ProposalThreshold != nil && c.ProposalThreshold.Sign() < 0 {
		return fmt.Errorf("%w: negative proposal threshold", ErrInvalidConfig)
	}
	seen := make(map[crypto.Address]struct{}, len(c.VetoSigners))
	for _, signer := range c.VetoSigners {
		if signer.IsZero() {
			return fmt.Errorf("%w: zero veto signer", ErrInvalidConfig)
		}
		if _, dup := seen[signer]; dup {
			return fmt.Errorf("%w: duplicate veto signer %s", ErrInvalidConfig, signer)
		}
		seen[signer] = struct{}{}
	}
	if c.VetoThreshold > uint64(len(c.VetoSigners)) {
		return fmt.Errorf("%w: veto threshold exceeds signer count", ErrInvalidConfig)
	}
	if len(c.VetoSigners) > 0 && c.VetoThreshold == 0 {
		return fmt.Errorf("%w: veto threshold must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	if c.ProposalThreshold != nil {
		out.ProposalThreshold = new(big.Int).Set(c.ProposalThreshold)
	} else {
		out.ProposalThreshold = big.NewInt(0)
	}
	if c.BootstrapQuorum != nil {
		out.BootstrapQuorum = new(big.Int).Set(c.BootstrapQuorum)
	}
	out.VetoSigners = append([]crypto.Address(nil), c.VetoSigners...)
	out.Cancellers = append([]crypto.Address(nil), c.Cancellers...)
	return out
}

func (e *Engine) SetState(state stateStore) { e.state = state }

// SetToken wires the vote ledger and the address reputation updates must come
// from.
func (e *Engine) SetToken(token VoteLedger, address crypto.Address) {
	e.token = token
	e.tokenID = address
}

// SetTimelock wires the executor passed proposals are scheduled on.
func (e *Engine) SetTimelock(tl Scheduler) { e.timelock = tl }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		e.logger = slog.Default().With("module", moduleName)
		return
	}
	e.logger = logger.With("module", moduleName)
}

func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

// Address returns the engine's own address.
func (e *Engine) Address() crypto.Address { return e.address }

// Config returns a copy of the construction-time configuration.
func (e *Engine) Config() Config { return e.cfg.clone() }

func (e *Engine) now() uint64 {
	ts := e.nowFn().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) enter() (func(), error) {
	if e == nil || e.state == nil {
		return nil, ErrStateNotConfigured
	}
	if e.token == nil {
		return nil, ErrTokenNotConfigured
	}
	return e.lock.Enter()
}

// params returns the mutable parameters, seeding them from the config the
// first time.
func (e *Engine) params() (params, error) {
	var p params
	ok, err := e.state.KVGet(paramsKey, &p)
	if err != nil {
		return p, err
	}
	if !ok || !p.Initialised {
		return params{Initialised: true, BootstrapMode: e.cfg.BootstrapMode, QuorumBps: e.cfg.QuorumBps}, nil
	}
	return p, nil
}

func (e *Engine) putParams(p params) error {
	p.Initialised = true
	return e.state.KVPut(paramsKey, p)
}

// BootstrapMode reports whether the fixed absolute quorum is in force.
func (e *Engine) BootstrapMode() (bool, error) {
	if e.state == nil {
		return false, ErrStateNotConfigured
	}
	p, err := e.params()
	if err != nil {
		return false, err
	}
	return p.BootstrapMode, nil
}

// QuorumBps returns the supply share required outside bootstrap mode.
func (e *Engine) QuorumBps() (uint64, error) {
	if e.state == nil {
		return 0, ErrStateNotConfigured
	}
	p, err := e.params()
	if err != nil {
		return 0, err
	}
	return p.QuorumBps, nil
}

func accountKey(prefix []byte, addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x", prefix, addr[:]))
}

func proposalKey(id [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", proposalPrefix, id[:]))
}

func receiptKey(id [32]byte, voter crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x/%x", receiptPrefix, id[:], voter[:]))
}

func vetoKey(id [32]byte, signer crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x/%x", vetoPrefix, id[:], signer[:]))
}

func whitelistKey(target crypto.Address, selector [4]byte) []byte {
	return []byte(fmt.Sprintf("%s%x/%x", whitelistPrefix, target[:], selector[:]))
}

// Reputation returns the account's signed reputation score.
func (e *Engine) Reputation(account crypto.Address) (int64, error) {
	if e.state == nil {
		return 0, ErrStateNotConfigured
	}
	var rec reputationRecord
	if _, err := e.state.KVGet(accountKey(reputationPrefix, account), &rec); err != nil {
		return 0, err
	}
	return rec.value(), nil
}

// reputationLimit keeps stored scores well inside int64.
const reputationLimit = int64(1) << 62

// AdjustReputation applies delta to the account's reputation. Only the voting
// token may call it.
func (e *Engine) AdjustReputation(caller, account crypto.Address, delta int64) error {
	if e.state == nil {
		return ErrStateNotConfigured
	}
	if e.tokenID.IsZero() || caller != e.tokenID {
		return ErrOnlyVotingToken
	}
	if account.IsZero() {
		return ErrZeroAddress
	}
	current, err := e.Reputation(account)
	if err != nil {
		return err
	}
	next := current + delta
	switch {
	case delta > 0 && next < current, next > reputationLimit:
		next = reputationLimit
	case delta < 0 && next > current, next < -reputationLimit:
		next = -reputationLimit
	}
	if err := e.state.KVPut(accountKey(reputationPrefix, account), newReputationRecord(next)); err != nil {
		return err
	}
	e.logger.Info("reputation adjusted", "account", account.String(), "delta", delta, "reputation", next)
	return nil
}

// VotingPowerAt is isqrt(token weight at ts) scaled by the account's clamped
// reputation.
func (e *Engine) VotingPowerAt(account crypto.Address, ts uint64) (*big.Int, error) {
	if e.state == nil {
		return nil, ErrStateNotConfigured
	}
	if e.token == nil {
		return nil, ErrTokenNotConfigured
	}
	balance, err := e.token.VotesAt(account, ts)
	if err != nil {
		return nil, err
	}
	rep, err := e.Reputation(account)
	if err != nil {
		return nil, err
	}
	return adjustedPower(balance, rep).ToBig(), nil
}

// QuorumAt returns the votes a proposal created now and snapshotted at ts
// would need.
func (e *Engine) QuorumAt(ts uint64) (*big.Int, error) {
	p, err := e.params()
	if err != nil {
		return nil, err
	}
	if p.BootstrapMode {
		return new(big.Int).Set(e.cfg.BootstrapQuorum), nil
	}
	supply, err := e.token.TotalSupplyAt(ts)
	if err != nil {
		return nil, err
	}
	quorum := new(uint256.Int).Mul(supply, uint256.NewInt(p.QuorumBps))
	quorum.Div(quorum, uint256.NewInt(10_000))
	return quorum.ToBig(), nil
}

// IsWhitelisted reports whether advanced proposals may call selector on
// target.
func (e *Engine) IsWhitelisted(target crypto.Address, selector [4]byte) (bool, error) {
	if e.state == nil {
		return false, ErrStateNotConfigured
	}
	var allowed bool
	if _, err := e.state.KVGet(whitelistKey(target, selector), &allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

func (e *Engine) setWhitelisted(target crypto.Address, selector [4]byte, allowed bool) error {
	if target.IsZero() {
		return ErrZeroAddress
	}
	return e.state.KVPut(whitelistKey(target, selector), allowed)
}

// SeedWhitelist installs genesis whitelist entries. Later changes go through
// the timelock.
func (e *Engine) SeedWhitelist(target crypto.Address, signatures ...string) error {
	if e.state == nil {
		return ErrStateNotConfigured
	}
	for _, sig := range signatures {
		if err := e.setWhitelisted(target, timelock.Selector(sig), true); err != nil {
			return err
		}
	}
	return nil
}

// Proposal loads a stored proposal.
func (e *Engine) Proposal(id [32]byte) (*Proposal, error) {
	if e.state == nil {
		return nil, ErrStateNotConfigured
	}
	p := new(Proposal)
	ok, err := e.state.KVGet(proposalKey(id), p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProposalNotFound
	}
	p.normalize()
	return p, nil
}

func (e *Engine) putProposal(p *Proposal) error {
	return e.state.KVPut(proposalKey(p.ID), p)
}

// Receipt returns the voter's ballot for the proposal, if any.
func (e *Engine) Receipt(id [32]byte, voter crypto.Address) (*Receipt, error) {
	if e.state == nil {
		return nil, ErrStateNotConfigured
	}
	r := new(Receipt)
	if _, err := e.state.KVGet(receiptKey(id, voter), r); err != nil {
		return nil, err
	}
	if r.Weight == nil {
		r.Weight = big.NewInt(0)
	}
	return r, nil
}

// ProposalID derives the id of a standard proposal.
func ProposalID(target crypto.Address, calldata []byte, descriptionHash [32]byte) [32]byte {
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(target[:], calldata, descriptionHash[:]))
	return id
}

func (e *Engine) checkThreshold(proposer crypto.Address) error {
	if e.cfg.ProposalThreshold.Sign() == 0 {
		return nil
	}
	power, err := e.VotingPowerAt(proposer, e.now())
	if err != nil {
		return err
	}
	if power.Cmp(e.cfg.ProposalThreshold) < 0 {
		return ErrBelowThreshold
	}
	return nil
}

func (e *Engine) newProposal(id [32]byte, proposer, target crypto.Address, calldata []byte) (*Proposal, error) {
	rules, err := e.params()
	if err != nil {
		return nil, err
	}
	snapshot := e.now() + e.cfg.VotingDelaySeconds
	p := &Proposal{
		ID:              id,
		Proposer:        proposer,
		Target:          target,
		Calldata:        append([]byte(nil), calldata...),
		Snapshot:        snapshot,
		Deadline:        snapshot + e.cfg.VotingPeriodSeconds,
		BootstrapQuorum: rules.BootstrapMode,
		QuorumBps:       rules.QuorumBps,
	}
	p.normalize()
	return p, nil
}

// Propose submits a generic calldata proposal against target.
func (e *Engine) Propose(proposer, target crypto.Address, calldata []byte, description string) ([32]byte, error) {
	var id [32]byte
	release, err := e.enter()
	if err != nil {
		return id, err
	}
	defer release()

	if proposer.IsZero() || target.IsZero() {
		return id, ErrZeroAddress
	}
	if _, _, err := timelock.SplitCall(calldata); err != nil {
		return id, ErrInvalidCalldata
	}
	if err := e.checkThreshold(proposer); err != nil {
		return id, err
	}
	var descHash [32]byte
	copy(descHash[:], ethcrypto.Keccak256([]byte(description)))
	id = ProposalID(target, calldata, descHash)
	if ok, err := e.state.KVGet(proposalKey(id), nil); err != nil {
		return id, err
	} else if ok {
		return id, ErrProposalExists
	}

	p, err := e.newProposal(id, proposer, target, calldata)
	if err != nil {
		return id, err
	}
	p.DescriptionHash = descHash
	if err := e.putProposal(p); err != nil {
		return id, err
	}
	e.logger.Info("proposal created", "id", shortID(id), "proposer", proposer.String(), "target", target.String())
	e.emitter.Emit(newProposedEvent(p))
	return id, nil
}

// ProposeAdvanced submits a proposal restricted to a whitelisted target and
// selector. The whitelist is checked before proposer power.
func (e *Engine) ProposeAdvanced(proposer, target crypto.Address, selector [4]byte, args []byte, minVotesNeeded *big.Int) ([32]byte, error) {
	var id [32]byte
	release, err := e.enter()
	if err != nil {
		return id, err
	}
	defer release()

	allowed, err := e.IsWhitelisted(target, selector)
	if err != nil {
		return id, err
	}
	if !allowed {
		return id, ErrTargetNotWhitelisted
	}
	if proposer.IsZero() {
		return id, ErrZeroAddress
	}
	if err := e.checkThreshold(proposer); err != nil {
		return id, err
	}
	if minVotesNeeded == nil || minVotesNeeded.Sign() <= 0 {
		return id, ErrInvalidMinVotes
	}

	var nonce uint64
	if _, err := e.state.KVGet(nonceKey, &nonce); err != nil {
		return id, err
	}
	nonce++
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	copy(id[:], ethcrypto.Keccak256(target[:], selector[:], args, nonceBytes[:]))

	calldata := append(append([]byte(nil), selector[:]...), args...)
	p, err := e.newProposal(id, proposer, target, calldata)
	if err != nil {
		return id, err
	}
	p.Advanced = true
	p.Selector = selector
	p.MinVotesNeeded = new(big.Int).Set(minVotesNeeded)
	if err := e.state.KVPut(nonceKey, nonce); err != nil {
		return id, err
	}
	if err := e.putProposal(p); err != nil {
		return id, err
	}
	e.logger.Info("advanced proposal created", "id", shortID(id), "proposer", proposer.String(),
		"target", target.String(), "minVotes", minVotesNeeded.String())
	e.emitter.Emit(newProposedEvent(p))
	return id, nil
}

// CastVote records a standard ballot and returns the weight counted.
func (e *Engine) CastVote(id [32]byte, voter crypto.Address, support VoteType) (*big.Int, error) {
	if support > VoteAbstain {
		return nil, ErrInvalidVoteType
	}
	return e.castVote(id, voter, support, false)
}

// CastVoteAdvanced records a for/against ballot on an advanced proposal.
func (e *Engine) CastVoteAdvanced(id [32]byte, voter crypto.Address, support bool) (*big.Int, error) {
	choice := VoteAgainst
	if support {
		choice = VoteFor
	}
	return e.castVote(id, voter, choice, true)
}

func (e *Engine) castVote(id [32]byte, voter crypto.Address, support VoteType, advanced bool) (*big.Int, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := e.Proposal(id)
	if err != nil {
		return nil, err
	}
	if p.Advanced != advanced {
		return nil, ErrWrongProposalKind
	}
	state, err := e.evaluate(p)
	if err != nil {
		return nil, err
	}
	if state != ProposalActive {
		return nil, ErrVotingClosed
	}
	receipt, err := e.Receipt(id, voter)
	if err != nil {
		return nil, err
	}
	if receipt.HasVoted {
		return nil, ErrAlreadyVoted
	}
	weight, err := e.VotingPowerAt(voter, p.Snapshot)
	if err != nil {
		return nil, err
	}

	switch support {
	case VoteFor:
		p.ForVotes.Add(p.ForVotes, weight)
	case VoteAgainst:
		p.AgainstVotes.Add(p.AgainstVotes, weight)
	default:
		p.AbstainVotes.Add(p.AbstainVotes, weight)
	}
	receipt = &Receipt{HasVoted: true, Support: support, Weight: weight}
	if err := e.state.KVPut(receiptKey(id, voter), receipt); err != nil {
		return nil, err
	}
	if err := e.putProposal(p); err != nil {
		return nil, err
	}
	e.emitter.Emit(newVoteEvent(id, voter, support, weight))
	return weight, nil
}

// State derives the proposal's lifecycle phase.
func (e *Engine) State(id [32]byte) (ProposalState, error) {
	if e.state == nil {
		return 0, ErrStateNotConfigured
	}
	if e.token == nil {
		return 0, ErrTokenNotConfigured
	}
	p, err := e.Proposal(id)
	if err != nil {
		return 0, err
	}
	return e.evaluate(p)
}

func (e *Engine) evaluate(p *Proposal) (ProposalState, error) {
	switch {
	case p.Executed:
		return ProposalExecuted, nil
	case p.Canceled:
		return ProposalCanceled, nil
	case p.Queued:
		return ProposalQueued, nil
	}
	now := e.now()
	if now <= p.Snapshot {
		return ProposalPending, nil
	}
	if now <= p.Deadline {
		return ProposalActive, nil
	}
	reached, err := e.quorumReached(p)
	if err != nil {
		return 0, err
	}
	if !reached || !voteSucceeded(p) {
		return ProposalDefeated, nil
	}
	return ProposalSucceeded, nil
}

func (e *Engine) quorumReached(p *Proposal) (bool, error) {
	quorum, err := e.proposalQuorum(p)
	if err != nil {
		return false, err
	}
	return p.TotalVotes().Cmp(quorum) >= 0, nil
}

// proposalQuorum applies the rule captured at creation against the supply at
// the proposal's snapshot.
func (e *Engine) proposalQuorum(p *Proposal) (*big.Int, error) {
	if p.BootstrapQuorum {
		return new(big.Int).Set(e.cfg.BootstrapQuorum), nil
	}
	supply, err := e.token.TotalSupplyAt(p.Snapshot)
	if err != nil {
		return nil, err
	}
	quorum := new(uint256.Int).Mul(supply, uint256.NewInt(p.QuorumBps))
	quorum.Div(quorum, uint256.NewInt(10_000))
	return quorum.ToBig(), nil
}

func voteSucceeded(p *Proposal) bool {
	if p.ForVotes.Cmp(p.AgainstVotes) <= 0 {
		return false
	}
	if p.Advanced && p.ForVotes.Cmp(p.MinVotesNeeded) < 0 {
		return false
	}
	return true
}

// Queue schedules a succeeded proposal on the timelock.
func (e *Engine) Queue(id [32]byte) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if e.timelock == nil {
		return ErrTimelockNotConfigured
	}

	p, err := e.Proposal(id)
	if err != nil {
		return err
	}
	state, err := e.evaluate(p)
	if err != nil {
		return err
	}
	if state != ProposalSucceeded {
		return ErrNotSucceeded
	}
	opID, err := e.timelock.Schedule(e.address, p.Target, p.Calldata, e.cfg.TimelockDelaySeconds)
	if err != nil {
		return fmt.Errorf("governance: queue: %w", err)
	}
	p.Queued = true
	p.TimelockID = opID
	if err := e.putProposal(p); err != nil {
		return err
	}
	e.logger.Info("proposal queued", "id", shortID(id), "operation", shortID(opID))
	e.emitter.Emit(newQueuedEvent(p))
	return nil
}

// Execute runs a queued proposal through the timelock once its delay has
// elapsed.
func (e *Engine) Execute(id [32]byte) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if e.timelock == nil {
		return ErrTimelockNotConfigured
	}

	p, err := e.Proposal(id)
	if err != nil {
		return err
	}
	state, err := e.evaluate(p)
	if err != nil {
		return err
	}
	if state != ProposalQueued {
		return ErrNotQueued
	}
	p.Executed = true
	if err := e.putProposal(p); err != nil {
		return err
	}
	if err := e.timelock.Execute(e.address, p.TimelockID); err != nil {
		p.Executed = false
		if putErr := e.putProposal(p); putErr != nil {
			return putErr
		}
		return fmt.Errorf("governance: execute: %w", err)
	}
	e.logger.Info("proposal executed", "id", shortID(id))
	e.emitter.Emit(newExecutedEvent(p))
	return nil
}

// Cancel withdraws a proposal that has not finished voting. Only the proposer
// or a configured canceller may do so.
func (e *Engine) Cancel(caller crypto.Address, id [32]byte) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	p, err := e.Proposal(id)
	if err != nil {
		return err
	}
	if _, ok := e.cancellers[caller]; caller != p.Proposer && !ok {
		return ErrNotCanceller
	}
	state, err := e.evaluate(p)
	if err != nil {
		return err
	}
	if state != ProposalPending && state != ProposalActive {
		return ErrNotCancelable
	}
	p.Canceled = true
	if err := e.putProposal(p); err != nil {
		return err
	}
	e.logger.Info("proposal canceled", "id", shortID(id), "by", caller.String())
	e.emitter.Emit(newCanceledEvent(p, caller))
	return nil
}

// Veto records an emergency signer's veto on a queued proposal. Reaching the
// threshold cancels the proposal and its timelock operation. Available in and
// out of bootstrap mode.
func (e *Engine) Veto(signer crypto.Address, id [32]byte) (bool, error) {
	release, err := e.enter()
	if err != nil {
		return false, err
	}
	defer release()
	if _, ok := e.vetoSigners[signer]; !ok {
		return false, ErrNotVetoSigner
	}

	p, err := e.Proposal(id)
	if err != nil {
		return false, err
	}
	state, err := e.evaluate(p)
	if err != nil {
		return false, err
	}
	if state != ProposalQueued {
		return false, ErrNotQueued
	}
	var signed bool
	if _, err := e.state.KVGet(vetoKey(id, signer), &signed); err != nil {
		return false, err
	}
	if signed {
		return false, ErrAlreadyVetoed
	}
	p.VetoCount++
	vetoed := p.VetoCount >= e.cfg.VetoThreshold
	if vetoed {
		if e.timelock == nil {
			return false, ErrTimelockNotConfigured
		}
		if err := e.timelock.Cancel(e.address, p.TimelockID); err != nil {
			return false, fmt.Errorf("governance: veto: %w", err)
		}
		p.Canceled = true
		p.Vetoed = true
	}
	if err := e.state.KVPut(vetoKey(id, signer), true); err != nil {
		return false, err
	}
	if err := e.putProposal(p); err != nil {
		return false, err
	}
	e.logger.Warn("veto recorded", "id", shortID(id), "signer", signer.String(),
		"count", p.VetoCount, "threshold", e.cfg.VetoThreshold)
	if vetoed {
		e.emitter.Emit(newVetoedEvent(p))
	}
	return vetoed, nil
}
