package stakingsvc

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/TxnLab/lsd/internal/lib/httputil"
	"github.com/TxnLab/lsd/internal/lib/lsd"
)

// Server exposes a StakingService over the same HTTP API Client speaks. It fronts the Memory
// simulator for local runs.
type Server struct {
	svc lsd.StakingService
}

func NewServer(svc lsd.StakingService) *Server {
	return &Server{svc: svc}
}

func (s *Server) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/pools/{pool}").
		Methods(http.MethodGet).
		HandlerFunc(httputil.WrapHandlerFunc(s.handleGetPool))
	sub.Path("/pools/{pool}/stakers/{staker}/stake").
		Methods(http.MethodPost).
		HandlerFunc(httputil.WrapHandlerFunc(s.handleStake))
	sub.Path("/pools/{pool}/stakers/{staker}/unstake").
		Methods(http.MethodPost).
		HandlerFunc(httputil.WrapHandlerFunc(s.handleUnstake))
	sub.Path("/pools/{pool}/stakers/{staker}/withdraw").
		Methods(http.MethodPost).
		HandlerFunc(httputil.WrapHandlerFunc(s.handleWithdraw))
	sub.Path("/pools/{pool}/stakers/{staker}/claim").
		Methods(http.MethodPost).
		HandlerFunc(httputil.WrapHandlerFunc(s.handleClaim))
}

func serviceError(err error) error {
	return httputil.HTTPError(err, statusFor(err), codeFor(err))
}

func stakerRef(req *http.Request) (lsd.StakeAccountRef, error) {
	vars := mux.Vars(req)
	staker, err := lsd.ParseAddress(vars["staker"])
	if err != nil {
		return lsd.StakeAccountRef{}, httputil.BadRequest(fmt.Errorf("staker: %w", err))
	}
	return lsd.StakeAccountRef{Pool: vars["pool"], Staker: staker}, nil
}

func (s *Server) handleGetPool(w http.ResponseWriter, req *http.Request) error {
	info, err := s.svc.GetPool(req.Context(), mux.Vars(req)["pool"])
	if err != nil {
		return serviceError(err)
	}
	return httputil.WriteJSON(w, info)
}

func (s *Server) handleStake(w http.ResponseWriter, req *http.Request) error {
	ref, err := stakerRef(req)
	if err != nil {
		return err
	}
	var body amountRequest
	if err := httputil.ParseJSON(req.Body, &body); err != nil {
		return httputil.BadRequest(fmt.Errorf("body: %w", err))
	}
	acct, err := s.svc.Stake(req.Context(), ref, body.Amount)
	if err != nil {
		return serviceError(err)
	}
	return httputil.WriteJSON(w, acct)
}

func (s *Server) handleUnstake(w http.ResponseWriter, req *http.Request) error {
	ref, err := stakerRef(req)
	if err != nil {
		return err
	}
	var body amountRequest
	if err := httputil.ParseJSON(req.Body, &body); err != nil {
		return httputil.BadRequest(fmt.Errorf("body: %w", err))
	}
	unstakeReq, err := s.svc.Unstake(req.Context(), ref, body.Amount)
	if err != nil {
		return serviceError(err)
	}
	return httputil.WriteJSON(w, unstakeReq)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *http.Request) error {
	ref, err := stakerRef(req)
	if err != nil {
		return err
	}
	var body withdrawRequest
	if err := httputil.ParseJSON(req.Body, &body); err != nil {
		return httputil.BadRequest(fmt.Errorf("body: %w", err))
	}
	amount, err := s.svc.Withdraw(req.Context(), ref, body.ID)
	if err != nil {
		return serviceError(err)
	}
	return httputil.WriteJSON(w, amountResponse{Amount: amount})
}

func (s *Server) handleClaim(w http.ResponseWriter, req *http.Request) error {
	ref, err := stakerRef(req)
	if err != nil {
		return err
	}
	var body claimRequest
	if err := httputil.ParseJSON(req.Body, &body); err != nil {
		return httputil.BadRequest(fmt.Errorf("body: %w", err))
	}
	acct, err := s.svc.Claim(req.Context(), ref, body.Compound)
	if err != nil {
		return serviceError(err)
	}
	return httputil.WriteJSON(w, acct)
}
