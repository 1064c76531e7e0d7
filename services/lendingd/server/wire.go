package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"quadlend/crypto"
	"quadlend/native/governance"
	"quadlend/native/lending"
)

const maxBodyBytes = 64 << 10

type amountRequest struct {
	Amount string `json:"amount"`
}

type collateralRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type recoverRequest struct {
	Asset      string `json:"asset"`
	Collateral string `json:"collateral"`
	Repay      string `json:"repay"`
}

type creditProofRequest struct {
	Proof string `json:"proof"`
}

type proposeRequest struct {
	Target      string `json:"target"`
	Calldata    string `json:"calldata"`
	Description string `json:"description"`
}

type advancedProposeRequest struct {
	Target    string `json:"target"`
	Signature string `json:"signature"`
	Args      string `json:"args"`
	MinVotes  string `json:"minVotes"`
}

type voteRequest struct {
	Support string `json:"support"`
}

type delegateRequest struct {
	Delegatee string `json:"delegatee"`
}

type poolView struct {
	TotalLent     string `json:"totalLent"`
	TotalBorrowed string `json:"totalBorrowed"`
	Cash          string `json:"cash"`
	BadDebt       string `json:"badDebt"`
	Utilisation   string `json:"utilisation"`
	Paused        bool   `json:"paused"`
}

type lenderView struct {
	*lending.LenderPosition
	PendingInterest string `json:"pendingInterest"`
	CanLend         bool   `json:"canLend"`
}

type borrowerView struct {
	*lending.BorrowerPosition
	OutstandingDebt string          `json:"outstandingDebt"`
	CollateralValue string          `json:"collateralValue,omitempty"`
	Health          *lending.Health `json:"health,omitempty"`
}

type proposalView struct {
	ID             string `json:"id"`
	Proposer       string `json:"proposer"`
	Target         string `json:"target"`
	Calldata       string `json:"calldata"`
	Advanced       bool   `json:"advanced"`
	MinVotesNeeded string `json:"minVotesNeeded,omitempty"`
	Snapshot       uint64 `json:"snapshot"`
	Deadline       uint64 `json:"deadline"`
	ForVotes       string `json:"forVotes"`
	AgainstVotes   string `json:"againstVotes"`
	AbstainVotes   string `json:"abstainVotes"`
	State          string `json:"state"`
	Vetoed         bool   `json:"vetoed"`
	VetoCount      uint64 `json:"vetoCount"`
}

type voteView struct {
	Weight string `json:"weight"`
}

type vetoView struct {
	Cancelled bool `json:"cancelled"`
}

type powerView struct {
	Account    string `json:"account"`
	Power      string `json:"power"`
	Reputation int64  `json:"reputation"`
}

type priceView struct {
	Feed       string `json:"feed"`
	Value      string `json:"value"`
	Decimals   uint8  `json:"decimals"`
	Feeders    string `json:"feeders"`
	ObservedAt int64  `json:"observedAt"`
}

func newProposalView(p *governance.Proposal, state governance.ProposalState) proposalView {
	view := proposalView{
		ID:           encodeHex(p.ID[:]),
		Proposer:     p.Proposer.String(),
		Target:       p.Target.String(),
		Calldata:     encodeHex(p.Calldata),
		Advanced:     p.Advanced,
		Snapshot:     p.Snapshot,
		Deadline:     p.Deadline,
		ForVotes:     text(p.ForVotes),
		AgainstVotes: text(p.AgainstVotes),
		AbstainVotes: text(p.AbstainVotes),
		State:        state.String(),
		Vetoed:       p.Vetoed,
		VetoCount:    p.VetoCount,
	}
	if p.Advanced {
		view.MinVotesNeeded = text(p.MinVotesNeeded)
	}
	return view
}

func decodeJSON(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a base-10 integer", errBadRequest, field)
	}
	return value, nil
}

func parseAddress(field, raw string) (crypto.Address, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return addr, nil
}

func parseHex(field, raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	out, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be hex", errBadRequest, field)
	}
	return out, nil
}

func parseProposalID(raw string) ([32]byte, error) {
	var id [32]byte
	decoded, err := parseHex("proposal id", raw)
	if err != nil {
		return id, err
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("%w: proposal id must be 32 bytes", errBadRequest)
	}
	copy(id[:], decoded)
	return id, nil
}

func parseVoteType(raw string) (governance.VoteType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "for":
		return governance.VoteFor, nil
	case "against":
		return governance.VoteAgainst, nil
	case "abstain":
		return governance.VoteAbstain, nil
	}
	return 0, fmt.Errorf("%w: support must be one of for/against/abstain", errBadRequest)
}

func encodeHex(b []byte) string { return "0x" + hex.EncodeToString(b) }

func text(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
