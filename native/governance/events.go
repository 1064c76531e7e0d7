package governance

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"quadlend/core/types"
	"quadlend/crypto"
)

const (
	// EventTypeProposalProposed is emitted when a new proposal is accepted.
	EventTypeProposalProposed = "gov.proposed"
	// EventTypeVoteCast is emitted for each recorded ballot.
	EventTypeVoteCast = "gov.vote"
	// EventTypeProposalQueued marks proposals scheduled on the timelock.
	EventTypeProposalQueued = "gov.queued"
	// EventTypeProposalExecuted marks proposals whose call has been applied.
	EventTypeProposalExecuted = "gov.executed"
	EventTypeProposalCanceled = "gov.canceled"
	// EventTypeProposalVetoed fires when the emergency signers reach the veto
	// threshold.
	EventTypeProposalVetoed   = "gov.vetoed"
	EventTypeBootstrapChanged = "gov.bootstrapModeChanged"
	EventTypeParamsUpdated    = "gov.paramsUpdated"
)

type governanceEvent struct {
	evt *types.Event
}

func (g governanceEvent) EventType() string {
	if g.evt == nil {
		return ""
	}
	return g.evt.Type
}

func (g governanceEvent) Event() *types.Event { return g.evt }

func shortID(id [32]byte) string {
	return hex.EncodeToString(id[:8])
}

func proposalAttrs(p *Proposal) map[string]string {
	return map[string]string{
		"id":       hex.EncodeToString(p.ID[:]),
		"proposer": p.Proposer.String(),
		"target":   p.Target.String(),
	}
}

func newProposedEvent(p *Proposal) governanceEvent {
	attrs := proposalAttrs(p)
	attrs["snapshot"] = strconv.FormatUint(p.Snapshot, 10)
	attrs["deadline"] = strconv.FormatUint(p.Deadline, 10)
	attrs["advanced"] = strconv.FormatBool(p.Advanced)
	if len(p.Calldata) >= 4 {
		attrs["selector"] = hex.EncodeToString(p.Calldata[:4])
	}
	if p.Advanced {
		attrs["minVotesNeeded"] = p.MinVotesNeeded.String()
	} else {
		attrs["descriptionHash"] = hex.EncodeToString(p.DescriptionHash[:])
	}
	return governanceEvent{evt: &types.Event{Type: EventTypeProposalProposed, Attributes: attrs}}
}

func newVoteEvent(id [32]byte, voter crypto.Address, support VoteType, weight *big.Int) governanceEvent {
	return governanceEvent{evt: &types.Event{Type: EventTypeVoteCast, Attributes: map[string]string{
		"id":      hex.EncodeToString(id[:]),
		"voter":   voter.String(),
		"support": support.String(),
		"weight":  weight.String(),
	}}}
}

func newQueuedEvent(p *Proposal) governanceEvent {
	attrs := proposalAttrs(p)
	attrs["operation"] = hex.EncodeToString(p.TimelockID[:])
	return governanceEvent{evt: &types.Event{Type: EventTypeProposalQueued, Attributes: attrs}}
}

func newExecutedEvent(p *Proposal) governanceEvent {
	return governanceEvent{evt: &types.Event{Type: EventTypeProposalExecuted, Attributes: proposalAttrs(p)}}
}

func newCanceledEvent(p *Proposal, by crypto.Address) governanceEvent {
	attrs := proposalAttrs(p)
	attrs["by"] = by.String()
	return governanceEvent{evt: &types.Event{Type: EventTypeProposalCanceled, Attributes: attrs}}
}

func newVetoedEvent(p *Proposal) governanceEvent {
	attrs := proposalAttrs(p)
	attrs["vetoCount"] = strconv.FormatUint(p.VetoCount, 10)
	return governanceEvent{evt: &types.Event{Type: EventTypeProposalVetoed, Attributes: attrs}}
}

func newParamsEvent(kind string, attrs map[string]string) governanceEvent {
	return governanceEvent{evt: &types.Event{Type: kind, Attributes: attrs}}
}
