package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/TxnLab/lsd/internal/lib/eventlog"
	"github.com/TxnLab/lsd/internal/lib/httputil"
	"github.com/TxnLab/lsd/internal/lib/lsd"
)

// EventQuerier is the read side of the event index.
type EventQuerier interface {
	Query(ctx context.Context, filter eventlog.Filter) ([]eventlog.Record, error)
}

type Pools struct {
	manager *lsd.Manager
	events  EventQuerier
}

func NewPools(manager *lsd.Manager, events EventQuerier) *Pools {
	return &Pools{manager: manager, events: events}
}

func (p *Pools) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").Methods(http.MethodGet).HandlerFunc(httputil.WrapHandlerFunc(p.handleListPools))
	sub.Path("/{pool}").Methods(http.MethodGet).HandlerFunc(httputil.WrapHandlerFunc(p.handleGetPool))
	sub.Path("/{pool}/rates").Methods(http.MethodGet).HandlerFunc(httputil.WrapHandlerFunc(p.handleGetRates))
	sub.Path("/{pool}/unstakes").Methods(http.MethodGet).HandlerFunc(httputil.WrapHandlerFunc(p.handleGetUnstakes))
	sub.Path("/{pool}/requests").Methods(http.MethodGet).HandlerFunc(httputil.WrapHandlerFunc(p.handleGetRequests))
	sub.Path("/{pool}/balances/{owner}").Methods(http.MethodGet).HandlerFunc(httputil.WrapHandlerFunc(p.handleGetBalance))
	sub.Path("/{pool}/events").Methods(http.MethodGet).HandlerFunc(httputil.WrapHandlerFunc(p.handleGetEvents))
	sub.Path("/{pool}/stake").Methods(http.MethodPost).HandlerFunc(httputil.WrapHandlerFunc(p.handleStake))
	sub.Path("/{pool}/unstake").Methods(http.MethodPost).HandlerFunc(httputil.WrapHandlerFunc(p.handleUnstake))
	sub.Path("/{pool}/withdraw").Methods(http.MethodPost).HandlerFunc(httputil.WrapHandlerFunc(p.handleWithdraw))
}

// lsdError answers typed pool errors with a status matching their kind.
func lsdError(err error) error {
	var lerr *lsd.Error
	if !errors.As(err, &lerr) {
		return err
	}
	status := http.StatusInternalServerError
	switch lerr.Kind {
	case lsd.KindPrecondition, lsd.KindSafetyLimit:
		status = http.StatusConflict
	case lsd.KindEconomic:
		status = http.StatusBadRequest
	case lsd.KindCalculation:
		status = http.StatusUnprocessableEntity
	case lsd.KindNotFound:
		status = http.StatusNotFound
	}
	return httputil.HTTPError(err, status, lerr.Code)
}

func parseAddress(req *http.Request, name string) (lsd.Address, error) {
	addr, err := lsd.ParseAddress(mux.Vars(req)[name])
	if err != nil {
		return addr, httputil.BadRequest(fmt.Errorf("%s: %w", name, err))
	}
	return addr, nil
}

func (p *Pools) handleListPools(w http.ResponseWriter, req *http.Request) error {
	pools, err := p.manager.ListStakeManagers()
	if err != nil {
		return err
	}
	if pools == nil {
		pools = []*lsd.StakeManager{}
	}
	return httputil.WriteJSON(w, pools)
}

func (p *Pools) handleGetPool(w http.ResponseWriter, req *http.Request) error {
	pool, err := parseAddress(req, "pool")
	if err != nil {
		return err
	}
	sm, err := p.manager.GetStakeManager(pool)
	if err != nil {
		return lsdError(err)
	}
	return httputil.WriteJSON(w, sm)
}

func (p *Pools) handleGetRates(w http.ResponseWriter, req *http.Request) error {
	pool, err := parseAddress(req, "pool")
	if err != nil {
		return err
	}
	rates, err := p.manager.EraRates(pool)
	if err != nil {
		return lsdError(err)
	}
	if rates == nil {
		rates = []lsd.EraRate{}
	}
	return httputil.WriteJSON(w, rates)
}

func (p *Pools) handleGetUnstakes(w http.ResponseWriter, req *http.Request) error {
	pool, err := parseAddress(req, "pool")
	if err != nil {
		return err
	}
	var user lsd.Address
	if userParam := req.URL.Query().Get("user"); userParam != "" {
		if user, err = lsd.ParseAddress(userParam); err != nil {
			return httputil.BadRequest(fmt.Errorf("user: %w", err))
		}
	}
	accounts, err := p.manager.ListUnstakeAccounts(pool, user)
	if err != nil {
		return lsdError(err)
	}
	if accounts == nil {
		accounts = []*lsd.UnstakeAccount{}
	}
	return httputil.WriteJSON(w, accounts)
}

func (p *Pools) handleGetRequests(w http.ResponseWriter, req *http.Request) error {
	pool, err := parseAddress(req, "pool")
	if err != nil {
		return err
	}
	requests, err := p.manager.ExternalRequests(pool)
	if err != nil {
		return lsdError(err)
	}
	if requests == nil {
		requests = []*lsd.ExternalUnstakeRequest{}
	}
	return httputil.WriteJSON(w, requests)
}

type Balance struct {
	Owner        lsd.Address `json:"owner"`
	StakingToken uint64      `json:"staking_token"`
	LsdToken     uint64      `json:"lsd_token"`
	// base asset the derivative balance redeems for at the current rate
	LsdTokenValue uint64 `json:"lsd_token_value"`
}

func (p *Pools) handleGetBalance(w http.ResponseWriter, req *http.Request) error {
	pool, err := parseAddress(req, "pool")
	if err != nil {
		return err
	}
	owner, err := parseAddress(req, "owner")
	if err != nil {
		return err
	}
	sm, err := p.manager.GetStakeManager(pool)
	if err != nil {
		return lsdError(err)
	}
	bal := Balance{Owner: owner}
	if bal.StakingToken, err = p.manager.Balance(sm.StakingTokenMint, owner); err != nil {
		return err
	}
	if bal.LsdToken, err = p.manager.Balance(sm.LsdTokenMint, owner); err != nil {
		return err
	}
	if bal.LsdTokenValue, err = sm.CalcStakingTokenAmount(bal.LsdToken); err != nil {
		return lsdError(err)
	}
	return httputil.WriteJSON(w, bal)
}

func queryUint(req *http.Request, name string) (uint64, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, httputil.BadRequest(fmt.Errorf("%s: %w", name, err))
	}
	return val, nil
}

func (p *Pools) handleGetEvents(w http.ResponseWriter, req *http.Request) error {
	if p.events == nil {
		return httputil.HTTPError(errors.New("event index not enabled"), http.StatusNotImplemented, "")
	}
	pool, err := parseAddress(req, "pool")
	if err != nil {
		return err
	}
	filter := eventlog.Filter{Pool: pool, Name: req.URL.Query().Get("name")}
	if filter.FromEra, err = queryUint(req, "from_era"); err != nil {
		return err
	}
	if filter.ToEra, err = queryUint(req, "to_era"); err != nil {
		return err
	}
	limit, err := queryUint(req, "limit")
	if err != nil {
		return err
	}
	filter.Limit = int(min(limit, 1000))

	records, err := p.events.Query(req.Context(), filter)
	if err != nil {
		return err
	}
	return httputil.WriteJSON(w, records)
}

type StakeRequest struct {
	User   lsd.Address `json:"user"`
	Amount uint64      `json:"amount"`
}

type WithdrawRequest struct {
	User           lsd.Address `json:"user"`
	UnstakeAccount uuid.UUID   `json:"unstake_account"`
}

type WithdrawResponse struct {
	Amount uint64 `json:"amount"`
}

func (p *Pools) handleStake(w http.ResponseWriter, req *http.Request) error {
	pool, err := parseAddress(req, "pool")
	if err != nil {
		return err
	}
	var body StakeRequest
	if err := httputil.ParseJSON(req.Body, &body); err != nil {
		return httputil.BadRequest(fmt.Errorf("body: %w", err))
	}
	sm, err := p.manager.Stake(req.Context(), pool, body.User, body.Amount)
	if err != nil {
		return lsdError(err)
	}
	return httputil.WriteJSON(w, sm)
}

func (p *Pools) handleUnstake(w http.ResponseWriter, req *http.Request) error {
	pool, err := parseAddress(req, "pool")
	if err != nil {
		return err
	}
	var body StakeRequest
	if err := httputil.ParseJSON(req.Body, &body); err != nil {
		return httputil.BadRequest(fmt.Errorf("body: %w", err))
	}
	ua, err := p.manager.Unstake(req.Context(), pool, body.User, body.Amount)
	if err != nil {
		return lsdError(err)
	}
	return httputil.WriteJSON(w, ua)
}

func (p *Pools) handleWithdraw(w http.ResponseWriter, req *http.Request) error {
	pool, err := parseAddress(req, "pool")
	if err != nil {
		return err
	}
	var body WithdrawRequest
	if err := httputil.ParseJSON(req.Body, &body); err != nil {
		return httputil.BadRequest(fmt.Errorf("body: %w", err))
	}
	amount, err := p.manager.Withdraw(req.Context(), pool, body.User, body.UnstakeAccount)
	if err != nil {
		return lsdError(err)
	}
	return httputil.WriteJSON(w, WithdrawResponse{Amount: amount})
}
