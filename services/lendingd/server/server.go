// Package server exposes the lending pool and governance engine over HTTP.
// Reads are public; writes require a bearer token whose subject is the
// calling account.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"quadlend/crypto"
	"quadlend/native/lending"
	"quadlend/services/lendingd/middleware"
	"quadlend/services/lendingd/node"
)

// Config configures the HTTP surface.
type Config struct {
	Auth        middleware.AuthConfig
	RateLimits  map[string]middleware.RateLimit
	LogRequests bool
}

// Server routes API requests onto a node.
type Server struct {
	node    *node.Node
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	router  chi.Router
}

// New builds the router.
func New(n *node.Node, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	s := &Server{
		node:    n,
		logger:  logger,
		auth:    middleware.NewAuthenticator(cfg.Auth, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimits, logger),
		obs:     middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: cfg.LogRequests}, logger),
	}
	s.router = s.routes()
	return s
}

// Handler returns the traced root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "lendingd")
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.obs.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.obs.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware("read"))
			r.Get("/pool", s.handlePool)
			r.Get("/lenders/{account}", s.handleLender)
			r.Get("/borrowers/{account}", s.handleBorrower)
			r.Get("/prices", s.handlePrice)
			r.Get("/proposals/{id}", s.handleProposal)
			r.Get("/governance/power/{account}", s.handlePower)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Use(s.limiter.Middleware("write"))

			r.Post("/lend/deposit", s.handleDeposit)
			r.Post("/lend/withdrawals", s.handleRequestWithdrawal)
			r.Delete("/lend/withdrawals", s.handleCancelWithdrawal)
			r.Post("/lend/withdrawals/complete", s.handleCompleteWithdrawal)
			r.Post("/lend/interest/claim", s.handleClaimInterest)

			r.Post("/collateral/deposit", s.handleDepositCollateral)
			r.Post("/collateral/withdraw", s.handleWithdrawCollateral)
			r.Post("/borrow", s.handleBorrow)
			r.Post("/repay", s.handleRepay)
			r.Post("/credit/proof", s.handleCreditProof)

			r.Post("/liquidations/{account}/start", s.handleStartLiquidation)
			r.Post("/liquidations/{account}/recover", s.handleRecover)

			r.Post("/token/delegate", s.handleDelegate)
			r.Post("/proposals", s.handlePropose)
			r.Post("/proposals/advanced", s.handleProposeAdvanced)
			r.Post("/proposals/{id}/votes", s.handleVote)
			r.Post("/proposals/{id}/queue", s.handleQueue)
			r.Post("/proposals/{id}/execute", s.handleExecute)
			r.Post("/proposals/{id}/cancel", s.handleCancel)
			r.Post("/proposals/{id}/veto", s.handleVeto)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "ok", "paused": s.node.Pool.Paused()}
	writeJSON(w, http.StatusOK, status)
}

// execute runs fn atomically for the authenticated caller and writes its
// result.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, fn func(caller crypto.Address) (interface{}, error)) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "missing caller", http.StatusUnauthorized)
		return
	}
	var result interface{}
	err := s.node.Apply(func() error {
		var err error
		result, err = fn(caller)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result == nil {
		result = map[string]string{"status": "ok"}
	}
	writeJSON(w, http.StatusOK, result)
}

// view runs a read against a consistent snapshot.
func (s *Server) view(w http.ResponseWriter, r *http.Request, fn func() (interface{}, error)) {
	var result interface{}
	err := s.node.Apply(func() error {
		var err error
		result, err = fn()
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), RequestID: middleware.RequestIDFrom(r)}
	if class := lending.Classify(err); class != lending.ClassUnknown {
		body.Class = class.String()
	}
	if status >= http.StatusInternalServerError && !errors.Is(err, lending.ErrPriceFeedUnavailable) {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err, "request_id", body.RequestID)
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func (s *Server) now() uint64 { return uint64(s.node.Now().Unix()) }

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
