package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TxnLab/lsd/internal/lib/eventlog"
	"github.com/TxnLab/lsd/internal/lib/httputil"
	"github.com/TxnLab/lsd/internal/lib/lsd"
	"github.com/TxnLab/lsd/internal/lib/stakingsvc"
	"github.com/TxnLab/lsd/internal/lib/store"
)

var (
	baseAsset = lsd.NamedAddress("staking-token")
	admin     = lsd.NamedAddress("admin")
	alice     = lsd.NamedAddress("alice")
)

type testServer struct {
	*httptest.Server
	manager *lsd.Manager
	pool    lsd.Address
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	events, err := eventlog.Open(slog.Default(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })

	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	mem := stakingsvc.NewMemory("sim", now)
	mem.AddPool(lsd.StakingPoolInfo{
		Pool:             "pool-1",
		TokenMint:        baseAsset,
		MinStakeAmount:   1_000_000,
		UnbondingSeconds: 86_400,
	})
	manager := lsd.New(slog.Default(), st, mem, lsd.WithClock(now), lsd.WithEventSink(events))
	sm, err := manager.InitializeStakeManager(context.Background(), lsd.InitParams{
		Creator:     admin,
		Admin:       admin,
		EraSeconds:  86_400,
		StakingPool: "pool-1",
	})
	require.NoError(t, err)
	require.NoError(t, manager.Fund(baseAsset, alice, 5_000_000_000))

	srv := httptest.NewServer(New(slog.Default(), manager, events, Options{
		AllowedOrigins:  "*",
		EnableReqLogger: true,
		EnableMetrics:   true,
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, manager: manager, pool: sm.Address}
}

func (ts *testServer) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) post(t *testing.T, path string, body, out any) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]string
	assert.Equal(t, http.StatusOK, ts.get(t, "/health", &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "lsd_rate")
}

func TestGetPools(t *testing.T) {
	ts := newTestServer(t)

	var pools []lsd.StakeManager
	require.Equal(t, http.StatusOK, ts.get(t, "/pools", &pools))
	require.Len(t, pools, 1)
	assert.Equal(t, ts.pool, pools[0].Address)

	var sm lsd.StakeManager
	require.Equal(t, http.StatusOK, ts.get(t, "/pools/"+ts.pool.String(), &sm))
	assert.Equal(t, uint64(lsd.DefaultRate), sm.Rate)
	assert.Equal(t, lsd.ActiveUpdated, sm.EraStatus)

	var rates []lsd.EraRate
	require.Equal(t, http.StatusOK, ts.get(t, "/pools/"+ts.pool.String()+"/rates", &rates))
	assert.Empty(t, rates)
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	unknown := lsd.NamedAddress("nope").String()

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad address", "/pools/xyz", nil, http.StatusBadRequest, ""},
		{"unknown pool", "/pools/" + unknown, nil, http.StatusNotFound, "StakeManagerNotFound"},
		{"unknown pool unstakes", "/pools/" + unknown + "/unstakes", nil, http.StatusNotFound, "StakeManagerNotFound"},
		{"stake too low", "/pools/" + ts.pool.String() + "/stake", StakeRequest{User: alice, Amount: 10}, http.StatusBadRequest, "StakeAmountTooLow"},
		{"unstake zero", "/pools/" + ts.pool.String() + "/unstake", StakeRequest{User: alice}, http.StatusBadRequest, "UnstakeAmountIsZero"},
		{"unknown field", "/pools/" + ts.pool.String() + "/stake", map[string]any{"who": "x"}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp httputil.ErrorResponse
			var status int
			if tt.body == nil {
				status = ts.get(t, tt.path, &resp)
			} else {
				status = ts.post(t, tt.path, tt.body, &resp)
			}
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestStakeUnstakeFlow(t *testing.T) {
	ts := newTestServer(t)
	poolPath := "/pools/" + ts.pool.String()

	var sm lsd.StakeManager
	require.Equal(t, http.StatusOK, ts.post(t, poolPath+"/stake", StakeRequest{User: alice, Amount: 2_000_000_000}, &sm))
	assert.Equal(t, uint64(2_000_000_000), sm.Active)
	assert.Equal(t, uint64(2_000_000_000), sm.EraBond)

	var bal Balance
	require.Equal(t, http.StatusOK, ts.get(t, poolPath+"/balances/"+alice.String(), &bal))
	assert.Equal(t, Balance{
		Owner:         alice,
		StakingToken:  3_000_000_000,
		LsdToken:      2_000_000_000,
		LsdTokenValue: 2_000_000_000,
	}, bal)

	var ua lsd.UnstakeAccount
	require.Equal(t, http.StatusOK, ts.post(t, poolPath+"/unstake", StakeRequest{User: alice, Amount: 500_000_000}, &ua))
	assert.Equal(t, uint64(500_000_000), ua.Amount)
	assert.Equal(t, alice, ua.User)

	var accounts []lsd.UnstakeAccount
	require.Equal(t, http.StatusOK, ts.get(t, poolPath+"/unstakes?user="+alice.String(), &accounts))
	require.Len(t, accounts, 1)
	assert.Equal(t, ua.ID, accounts[0].ID)

	var errResp httputil.ErrorResponse
	status := ts.post(t, poolPath+"/withdraw", WithdrawRequest{User: alice, UnstakeAccount: ua.ID}, &errResp)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "UnstakeAccountNotWithdrawable", errResp.Code)

	var requests []lsd.ExternalUnstakeRequest
	require.Equal(t, http.StatusOK, ts.get(t, poolPath+"/requests", &requests))
	assert.Empty(t, requests)
}

func TestEvents(t *testing.T) {
	ts := newTestServer(t)
	poolPath := "/pools/" + ts.pool.String()

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, ts.post(t, poolPath+"/stake", StakeRequest{User: alice, Amount: 1_000_000_000}, nil))
	}
	require.Equal(t, http.StatusOK, ts.post(t, poolPath+"/unstake", StakeRequest{User: alice, Amount: 1_000_000_000}, nil))

	var records []eventlog.Record
	require.Equal(t, http.StatusOK, ts.get(t, poolPath+"/events", &records))
	require.Len(t, records, 4)
	assert.Equal(t, "unstake", records[0].Name)

	require.Equal(t, http.StatusOK, ts.get(t, poolPath+"/events?name=stake&limit=2", &records))
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, "stake", rec.Name)
		assert.Equal(t, ts.pool, rec.Pool)
	}

	var errResp httputil.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, ts.get(t, poolPath+"/events?limit=abc", &errResp))
}

func TestEventsDisabled(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(New(slog.Default(), ts.manager, nil, Options{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/pools/" + ts.pool.String() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
