package server

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"quadlend/crypto"
	"quadlend/native/governance"
	"quadlend/native/timelock"
)

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func() (interface{}, error) {
		return s.loadProposal(id)
	})
}

func (s *Server) loadProposal(id [32]byte) (proposalView, error) {
	p, err := s.node.Governance.Proposal(id)
	if err != nil {
		return proposalView{}, err
	}
	state, err := s.node.Governance.State(id)
	if err != nil {
		return proposalView{}, err
	}
	return newProposalView(p, state), nil
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func() (interface{}, error) {
		power, err := s.node.Governance.VotingPowerAt(account, s.now())
		if err != nil {
			return nil, err
		}
		rep, err := s.node.Governance.Reputation(account)
		if err != nil {
			return nil, err
		}
		return powerView{Account: account.String(), Power: text(power), Reputation: rep}, nil
	})
}

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	delegatee, err := parseAddress("delegatee", req.Delegatee)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return nil, s.node.Token.Delegate(caller, delegatee)
	})
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := parseAddress("target", req.Target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	calldata, err := parseHex("calldata", req.Calldata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		id, err := s.node.Governance.Propose(caller, target, calldata, req.Description)
		if err != nil {
			return nil, err
		}
		return s.loadProposal(id)
	})
}

func (s *Server) handleProposeAdvanced(w http.ResponseWriter, r *http.Request) {
	var req advancedProposeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := parseAddress("target", req.Target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	signature := strings.TrimSpace(req.Signature)
	if signature == "" {
		s.writeError(w, r, fmt.Errorf("%w: signature required", errBadRequest))
		return
	}
	args, err := parseHex("args", req.Args)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	minVotes := new(big.Int)
	if strings.TrimSpace(req.MinVotes) != "" {
		if minVotes, err = parseAmount("minVotes", req.MinVotes); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		id, err := s.node.Governance.ProposeAdvanced(caller, target, timelock.Selector(signature), args, minVotes)
		if err != nil {
			return nil, err
		}
		return s.loadProposal(id)
	})
}

// handleVote accepts for/against/abstain on standard proposals and for/against
// on advanced ones.
func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	support, err := parseVoteType(req.Support)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		p, err := s.node.Governance.Proposal(id)
		if err != nil {
			return nil, err
		}
		var weight *big.Int
		if p.Advanced {
			if support == governance.VoteAbstain {
				return nil, fmt.Errorf("%w: advanced proposals take for or against", errBadRequest)
			}
			weight, err = s.node.Governance.CastVoteAdvanced(id, caller, support == governance.VoteFor)
		} else {
			weight, err = s.node.Governance.CastVote(id, caller, support)
		}
		if err != nil {
			return nil, err
		}
		return voteView{Weight: text(weight)}, nil
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.proposalAction(w, r, func(_ crypto.Address, id [32]byte) (interface{}, error) {
		if err := s.node.Governance.Queue(id); err != nil {
			return nil, err
		}
		return s.loadProposal(id)
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	s.proposalAction(w, r, func(_ crypto.Address, id [32]byte) (interface{}, error) {
		if err := s.node.Governance.Execute(id); err != nil {
			return nil, err
		}
		return s.loadProposal(id)
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.proposalAction(w, r, func(caller crypto.Address, id [32]byte) (interface{}, error) {
		if err := s.node.Governance.Cancel(caller, id); err != nil {
			return nil, err
		}
		return s.loadProposal(id)
	})
}

func (s *Server) handleVeto(w http.ResponseWriter, r *http.Request) {
	s.proposalAction(w, r, func(caller crypto.Address, id [32]byte) (interface{}, error) {
		cancelled, err := s.node.Governance.Veto(caller, id)
		if err != nil {
			return nil, err
		}
		return vetoView{Cancelled: cancelled}, nil
	})
}

func (s *Server) proposalAction(w http.ResponseWriter, r *http.Request, fn func(caller crypto.Address, id [32]byte) (interface{}, error)) {
	id, err := parseProposalID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return fn(caller, id)
	})
}
