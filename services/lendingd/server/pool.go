package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"quadlend/crypto"
	"quadlend/native/lending"
)

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	s.view(w, r, func() (interface{}, error) {
		totals, err := s.node.Pool.Totals()
		if err != nil {
			return nil, err
		}
		utilisation, err := s.node.Pool.Utilisation()
		if err != nil {
			return nil, err
		}
		return poolView{
			TotalLent:     text(totals.TotalLent),
			TotalBorrowed: text(totals.TotalBorrowed),
			Cash:          text(totals.Cash),
			BadDebt:       text(totals.BadDebt),
			Utilisation:   text(utilisation),
			Paused:        s.node.Pool.Paused(),
		}, nil
	})
}

func (s *Server) handleLender(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func() (interface{}, error) {
		position, err := s.node.Pool.Lender(account)
		if err != nil {
			return nil, err
		}
		pending, err := s.node.Pool.PendingInterest(account)
		if err != nil {
			return nil, err
		}
		canLend, err := s.node.Pool.CanLend(account)
		if err != nil {
			return nil, err
		}
		return lenderView{LenderPosition: position, PendingInterest: text(pending), CanLend: canLend}, nil
	})
}

func (s *Server) handleBorrower(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func() (interface{}, error) {
		position, err := s.node.Pool.Borrower(account)
		if err != nil {
			return nil, err
		}
		debt, err := s.node.Pool.OutstandingDebt(account)
		if err != nil {
			return nil, err
		}
		view := borrowerView{BorrowerPosition: position, OutstandingDebt: text(debt)}
		value, err := s.node.Pool.TotalCollateralValue(account)
		if errors.Is(err, lending.ErrPriceFeedUnavailable) {
			// Without a usable price only the valuation is unknown.
			s.logger.Warn("borrower valuation unavailable", "account", account.String(), "error", err)
			return view, nil
		}
		if err != nil {
			return nil, err
		}
		view.CollateralValue = text(value)
		if debt.Sign() > 0 {
			health, err := s.node.Pool.CheckCollateralization(account)
			if err != nil {
				return nil, err
			}
			view.Health = health
		}
		return view, nil
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	feed := strings.TrimSpace(r.URL.Query().Get("feed"))
	if feed == "" {
		http.Error(w, "feed query parameter required", http.StatusBadRequest)
		return
	}
	rec, err := s.node.Prices.Latest(r.Context(), feed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, priceView{
		Feed:       rec.Feed,
		Value:      rec.Value,
		Decimals:   rec.Decimals,
		Feeders:    rec.Feeders,
		ObservedAt: rec.ObservedAt.Unix(),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return nil, s.node.Pool.DepositFunds(caller, amount)
	})
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return nil, s.node.Pool.RequestWithdrawal(caller, amount)
	})
}

func (s *Server) handleCancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return nil, s.node.Pool.CancelPrincipalWithdrawal(caller)
	})
}

func (s *Server) handleCompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return s.node.Pool.CompleteWithdrawal(caller)
	})
}

func (s *Server) handleClaimInterest(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		claimed, err := s.node.Pool.ClaimInterest(caller)
		if err != nil {
			return nil, err
		}
		return amountRequest{Amount: text(claimed)}, nil
	})
}

func (s *Server) handleDepositCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return nil, s.node.Pool.DepositCollateral(caller, req.Asset, amount)
	})
}

func (s *Server) handleWithdrawCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return nil, s.node.Pool.WithdrawCollateral(caller, req.Asset, amount)
	})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return nil, s.node.Pool.Borrow(caller, amount)
	})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return s.node.Pool.Repay(caller, amount)
	})
}

func (s *Server) handleCreditProof(w http.ResponseWriter, r *http.Request) {
	var req creditProofRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		score, err := s.node.Pool.SubmitCreditProof(caller, []byte(strings.TrimSpace(req.Proof)))
		if err != nil {
			return nil, err
		}
		return map[string]uint8{"score": score}, nil
	})
}

func (s *Server) handleStartLiquidation(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return s.node.Pool.StartLiquidation(caller, account)
	})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req recoverRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collateral, err := parseAmount("collateral", req.Collateral)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	repay, err := parseAmount("repay", req.Repay)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.execute(w, r, func(caller crypto.Address) (interface{}, error) {
		return s.node.Pool.RecoverFromLiquidation(caller, account, req.Asset, collateral, repay)
	})
}
