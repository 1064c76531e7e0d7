package governance

import (
	"math/big"

	"quadlend/crypto"
)

// ProposalState enumerates the lifecycle phases of a proposal. Only Canceled,
// Queued and Executed are stored; the rest are derived from the clock and the
// tally.
type ProposalState uint8

const (
	// ProposalPending is before the snapshot; no votes are accepted yet.
	ProposalPending ProposalState = iota
	// ProposalActive is the voting window.
	ProposalActive
	// ProposalCanceled covers both proposer cancellation and emergency veto.
	ProposalCanceled
	// ProposalDefeated missed quorum or did not carry a majority.
	ProposalDefeated
	// ProposalSucceeded passed and awaits queueing.
	ProposalSucceeded
	// ProposalQueued is scheduled on the timelock.
	ProposalQueued
	// ProposalExecuted is terminal.
	ProposalExecuted
)

func (s ProposalState) String() string {
	switch s {
	case ProposalPending:
		return "pending"
	case ProposalActive:
		return "active"
	case ProposalCanceled:
		return "canceled"
	case ProposalDefeated:
		return "defeated"
	case ProposalSucceeded:
		return "succeeded"
	case ProposalQueued:
		return "queued"
	case ProposalExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// VoteType is the ballot choice for standard proposals.
type VoteType uint8

const (
	VoteAgainst VoteType = iota
	VoteFor
	VoteAbstain
)

func (v VoteType) String() string {
	switch v {
	case VoteAgainst:
		return "against"
	case VoteFor:
		return "for"
	case VoteAbstain:
		return "abstain"
	default:
		return "invalid"
	}
}

// Proposal is the persisted governance proposal. Advanced proposals target a
// whitelisted selector and carry their own minimum vote requirement.
type Proposal struct {
	ID              [32]byte       `json:"id"`
	Proposer        crypto.Address `json:"proposer"`
	Target          crypto.Address `json:"target"`
	Calldata        []byte         `json:"calldata"`
	DescriptionHash [32]byte       `json:"descriptionHash"`

	Advanced       bool     `json:"advanced"`
	Selector       [4]byte  `json:"selector"`
	MinVotesNeeded *big.Int `json:"minVotesNeeded"`

	Snapshot uint64 `json:"snapshot"`
	Deadline uint64 `json:"deadline"`

	ForVotes     *big.Int `json:"forVotes"`
	AgainstVotes *big.Int `json:"againstVotes"`
	AbstainVotes *big.Int `json:"abstainVotes"`

	// Quorum rule in force when the proposal was created. Later bootstrap or
	// QuorumBps changes do not reach proposals already in flight.
	BootstrapQuorum bool   `json:"bootstrapQuorum"`
	QuorumBps       uint64 `json:"quorumBps"`

	Queued     bool     `json:"queued"`
	Executed   bool     `json:"executed"`
	Canceled   bool     `json:"canceled"`
	Vetoed     bool     `json:"vetoed"`
	TimelockID [32]byte `json:"timelockId"`
	VetoCount  uint64   `json:"vetoCount"`
}

func (p *Proposal) normalize() {
	if p.MinVotesNeeded == nil {
		p.MinVotesNeeded = big.NewInt(0)
	}
	if p.ForVotes == nil {
		p.ForVotes = big.NewInt(0)
	}
	if p.AgainstVotes == nil {
		p.AgainstVotes = big.NewInt(0)
	}
	if p.AbstainVotes == nil {
		p.AbstainVotes = big.NewInt(0)
	}
}

// TotalVotes is the turnout counted towards quorum.
func (p *Proposal) TotalVotes() *big.Int {
	total := new(big.Int).Add(p.ForVotes, p.AgainstVotes)
	return total.Add(total, p.AbstainVotes)
}

// Receipt records a single voter's ballot.
type Receipt struct {
	HasVoted bool     `json:"hasVoted"`
	Support  VoteType `json:"support"`
	Weight   *big.Int `json:"weight"`
}

// Config holds the governance parameters fixed at construction. Bootstrap mode
// and the quorum percentage live in state and change only through the
// timelock.
type Config struct {
	VotingDelaySeconds   uint64           `toml:"VotingDelaySeconds" yaml:"votingDelaySeconds"`
	VotingPeriodSeconds  uint64           `toml:"VotingPeriodSeconds" yaml:"votingPeriodSeconds"`
	TimelockDelaySeconds uint64           `toml:"TimelockDelaySeconds" yaml:"timelockDelaySeconds"`
	ProposalThreshold    *big.Int         `toml:"ProposalThreshold" yaml:"proposalThreshold"`
	BootstrapQuorum      *big.Int         `toml:"BootstrapQuorum" yaml:"bootstrapQuorum"`
	BootstrapMode        bool             `toml:"BootstrapMode" yaml:"bootstrapMode"`
	QuorumBps            uint64           `toml:"QuorumBps" yaml:"quorumBps"`
	VetoSigners          []crypto.Address `toml:"VetoSigners" yaml:"vetoSigners"`
	VetoThreshold        uint64           `toml:"VetoThreshold" yaml:"vetoThreshold"`
	Cancellers           []crypto.Address `toml:"Cancellers" yaml:"cancellers"`
}

// DefaultConfig returns a one block delay, a three day vote, a two day
// timelock and bootstrap mode with an absolute quorum of 100.
func DefaultConfig() Config {
	return Config{
		VotingDelaySeconds:   1,
		VotingPeriodSeconds:  3 * 86_400,
		TimelockDelaySeconds: 2 * 86_400,
		ProposalThreshold:    big.NewInt(1),
		BootstrapQuorum:      big.NewInt(100),
		BootstrapMode:        true,
		QuorumBps:            400,
	}
}

// params is the mutable part of the configuration kept in state.
type params struct {
	Initialised   bool
	BootstrapMode bool
	QuorumBps     uint64
}

// reputationRecord stores a signed score; RLP carries magnitude and sign.
type reputationRecord struct {
	Magnitude uint64
	Negative  bool
}

func (r reputationRecord) value() int64 {
	v := int64(r.Magnitude)
	if r.Negative {
		return -v
	}
	return v
}

func newReputationRecord(v int64) reputationRecord {
	if v < 0 {
		return reputationRecord{Magnitude: uint64(-v), Negative: true}
	}
	return reputationRecord{Magnitude: uint64(v)}
}
