package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TxnLab/lsd/internal/lib/lsd"
	"github.com/TxnLab/lsd/internal/lib/stakingsvc"
	"github.com/TxnLab/lsd/internal/lib/store"
)

func TestDurationToNextEra(t *testing.T) {
	testCases := []struct {
		name           string
		eraSeconds     int64
		currentTime    time.Time
		expectedDurMin float64
	}{
		{"11:10:15->12:00:00", 3600, time.Date(2024, 1, 1, 11, 10, 15, 0, time.UTC), 49.75},
		{"11:55:15->12:00:00", 3600, time.Date(2024, 1, 1, 11, 55, 15, 0, time.UTC), 4.75},
		{"00:00:00->00:15:00", 15 * 60, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 15.0},
		{"00:15:30->00:30:00", 15 * 60, time.Date(2024, 1, 1, 0, 15, 30, 0, time.UTC), 14.5},
		{"00:07:30->00:15:00", 15 * 60, time.Date(2024, 1, 1, 0, 7, 30, 0, time.UTC), 7.5},
		{"00:30:00->01:00:00", 3600, time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC), 30.0},
		{"01 12:00:00->02 00:00:00", 24 * 3600, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), 12 * 60.0},
		{"unset era length", 0, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), defaultPollInterval.Minutes()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actualDur := durationToNextEra(tc.currentTime, tc.eraSeconds)
			assert.InDelta(t, tc.expectedDurMin, actualDur.Minutes(), 0.01,
				"case: %s, expected duration of around %f minutes, but got duration of %v", tc.name, tc.expectedDurMin, actualDur)
		})
	}
}

func TestNextStep(t *testing.T) {
	now := time.Unix(10*86_400+100, 0)
	pool := func(status lsd.EraStatus, latestEra, pendingBond, pendingUnbond uint64) *lsd.StakeManager {
		return &lsd.StakeManager{
			EraSeconds:    86_400,
			EraStatus:     status,
			LatestEra:     latestEra,
			PendingBond:   pendingBond,
			PendingUnbond: pendingUnbond,
		}
	}
	matured := &lsd.ExternalUnstakeRequest{UnstakeRequest: lsd.UnstakeRequest{ID: "done", WithdrawableTimestamp: now.Unix()}}
	waiting := &lsd.ExternalUnstakeRequest{UnstakeRequest: lsd.UnstakeRequest{ID: "later", WithdrawableTimestamp: now.Unix() + 1}}

	testCases := []struct {
		name      string
		sm        *lsd.StakeManager
		requests  []*lsd.ExternalUnstakeRequest
		step      crankStep
		requestID string
	}{
		{"current era", pool(lsd.ActiveUpdated, 10, 0, 0), nil, stepNone, ""},
		{"new era", pool(lsd.ActiveUpdated, 9, 0, 0), nil, stepEraNew, ""},
		{"several eras behind", pool(lsd.ActiveUpdated, 2, 0, 0), nil, stepEraNew, ""},
		{"bond", pool(lsd.EraUpdated, 10, 50, 10), nil, stepEraBond, ""},
		{"unbond", pool(lsd.EraUpdated, 10, 10, 50), nil, stepEraUnbond, ""},
		{"withdraw first", pool(lsd.EraUpdated, 10, 50, 10), []*lsd.ExternalUnstakeRequest{waiting, matured}, stepEraWithdraw, "done"},
		{"nothing matured", pool(lsd.EraUpdated, 10, 10, 50), []*lsd.ExternalUnstakeRequest{waiting}, stepEraUnbond, ""},
		{"bonded", pool(lsd.Bonded, 10, 0, 0), nil, stepEraActive, ""},
		{"unbonded", pool(lsd.Unbonded, 10, 0, 0), nil, stepEraActive, ""},
		{"bad era length", &lsd.StakeManager{EraStatus: lsd.ActiveUpdated}, nil, stepNone, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			step, requestID := nextStep(tc.sm, now, tc.requests)
			assert.Equal(t, tc.step, step, "got %s", step)
			assert.Equal(t, tc.requestID, requestID)
		})
	}
}

type testClock struct {
	sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.now = c.now.Add(d)
}

const (
	testEraSeconds  = 86_400
	testStakingPool = "pool-1"
)

var (
	testBaseAsset = lsd.NamedAddress("staking-token")
	testAdmin     = lsd.NamedAddress("admin")
	testAlice     = lsd.NamedAddress("alice")
)

type daemonHarness struct {
	clock   *testClock
	mem     *stakingsvc.Memory
	manager *lsd.Manager
	daemon  *Daemon
	pool    lsd.Address
}

func newDaemonHarness(t *testing.T) *daemonHarness {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	mem := stakingsvc.NewMemory("sim", clock.Now)
	mem.AddPool(lsd.StakingPoolInfo{
		Pool:             testStakingPool,
		TokenMint:        testBaseAsset,
		MinStakeAmount:   1_000_000,
		UnbondingSeconds: 2 * testEraSeconds,
	})
	manager := lsd.New(slog.Default(), st, mem, lsd.WithClock(clock.Now))
	sm, err := manager.InitializeStakeManager(context.Background(), lsd.InitParams{
		Creator:     testAdmin,
		Admin:       testAdmin,
		EraSeconds:  testEraSeconds,
		StakingPool: testStakingPool,
	})
	require.NoError(t, err)
	require.NoError(t, manager.Fund(testBaseAsset, testAlice, 10_000_000_000))

	d := newDaemon(slog.Default(), manager, nil, time.Minute)
	d.baseDelay = time.Millisecond
	d.maxDelay = 5 * time.Millisecond
	return &daemonHarness{clock: clock, mem: mem, manager: manager, daemon: d, pool: sm.Address}
}

func (h *daemonHarness) state(t *testing.T) *lsd.StakeManager {
	t.Helper()
	sm, err := h.manager.GetStakeManager(h.pool)
	require.NoError(t, err)
	return sm
}

func (h *daemonHarness) vault(t *testing.T) uint64 {
	t.Helper()
	bal, err := h.manager.Balance(testBaseAsset, h.pool)
	require.NoError(t, err)
	return bal
}

func TestCrankPoolFullCycle(t *testing.T) {
	h := newDaemonHarness(t)
	ctx := context.Background()

	_, err := h.manager.Stake(ctx, h.pool, testAlice, 2_000_000_000)
	require.NoError(t, err)

	// nothing due within the creation era
	require.NoError(t, h.daemon.crankPool(ctx, h.pool))
	assert.Equal(t, uint64(0), h.state(t).LatestEra)
	assert.Equal(t, lsd.ActiveUpdated, h.state(t).EraStatus)

	// era 1: the deposit is bonded
	h.clock.Advance(testEraSeconds * time.Second)
	require.NoError(t, h.daemon.crankPool(ctx, h.pool))
	sm := h.state(t)
	assert.Equal(t, uint64(1), sm.LatestEra)
	assert.Equal(t, lsd.ActiveUpdated, sm.EraStatus)
	assert.Equal(t, uint64(2_000_000_000), sm.Active)
	assert.Equal(t, lsd.CalBase, sm.Rate)
	assert.Equal(t, uint64(2_000_000_000), h.mem.StakeBalance(testStakingPool, h.pool))
	assert.Zero(t, h.vault(t))
	assert.Equal(t, h.clock.Now(), h.daemon.LastCranked(h.pool))

	ua, err := h.manager.Unstake(ctx, h.pool, testAlice, 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), ua.WithdrawableEra)

	// era 2: the redemption is unbonded
	h.clock.Advance(testEraSeconds * time.Second)
	require.NoError(t, h.daemon.crankPool(ctx, h.pool))
	sm = h.state(t)
	assert.Equal(t, uint64(2), sm.LatestEra)
	assert.Equal(t, uint64(1_000_000_000), sm.Active)
	assert.Equal(t, uint64(1_000_000_000), h.mem.StakeBalance(testStakingPool, h.pool))
	requests, err := h.manager.ExternalRequests(h.pool)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, uint64(1_000_000_000), requests[0].Amount)

	// era 3: nothing to move
	h.clock.Advance(testEraSeconds * time.Second)
	require.NoError(t, h.daemon.crankPool(ctx, h.pool))
	assert.Equal(t, uint64(3), h.state(t).LatestEra)

	// era 4: a new deposit opens a full cycle and the matured unbond is finalized before bonding
	_, err = h.manager.Stake(ctx, h.pool, testAlice, 1_000_000_000)
	require.NoError(t, err)
	h.clock.Advance(testEraSeconds * time.Second)
	require.NoError(t, h.daemon.crankPool(ctx, h.pool))
	sm = h.state(t)
	assert.Equal(t, uint64(4), sm.LatestEra)
	assert.Equal(t, lsd.ActiveUpdated, sm.EraStatus)
	assert.Equal(t, uint64(2_000_000_000), sm.Active)
	assert.Equal(t, lsd.CalBase, sm.Rate)
	requests, err = h.manager.ExternalRequests(h.pool)
	require.NoError(t, err)
	assert.Empty(t, requests)
	assert.Equal(t, uint64(1_000_000_000), h.vault(t))

	amount, err := h.manager.Withdraw(ctx, h.pool, testAlice, ua.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), amount)
	assert.Zero(t, h.vault(t))
}

func TestCrankPoolCatchesUpMissedEras(t *testing.T) {
	h := newDaemonHarness(t)
	ctx := context.Background()

	_, err := h.manager.Stake(ctx, h.pool, testAlice, 2_000_000_000)
	require.NoError(t, err)
	h.clock.Advance(5 * testEraSeconds * time.Second)
	require.NoError(t, h.daemon.crankPool(ctx, h.pool))

	sm := h.state(t)
	assert.Equal(t, uint64(5), sm.LatestEra)
	assert.Equal(t, lsd.ActiveUpdated, sm.EraStatus)
	assert.Equal(t, uint64(2_000_000_000), h.mem.StakeBalance(testStakingPool, h.pool))
	assert.Len(t, sm.EraRates, 5)
}

func TestCrankPoolRetriesServiceFailure(t *testing.T) {
	h := newDaemonHarness(t)
	ctx := context.Background()

	_, err := h.manager.Stake(ctx, h.pool, testAlice, 2_000_000_000)
	require.NoError(t, err)
	h.clock.Advance(testEraSeconds * time.Second)

	// the bond's stake call fails once and is retried
	h.mem.FailNext(errors.New("connection reset"))
	require.NoError(t, h.daemon.crankPool(ctx, h.pool))
	sm := h.state(t)
	assert.Equal(t, lsd.ActiveUpdated, sm.EraStatus)
	assert.Equal(t, uint64(2_000_000_000), h.mem.StakeBalance(testStakingPool, h.pool))
	assert.Zero(t, h.vault(t))
}

func TestCrankPoolStopsOnPoolError(t *testing.T) {
	h := newDaemonHarness(t)
	ctx := context.Background()

	_, err := h.manager.Stake(ctx, h.pool, testAlice, 2_000_000_000)
	require.NoError(t, err)
	h.clock.Advance(testEraSeconds * time.Second)
	require.NoError(t, h.daemon.crankPool(ctx, h.pool))

	// a 0.5% reward is over the default 0.1% rate change limit
	require.NoError(t, h.mem.Accrue(testStakingPool, h.pool, 10_000_000))
	h.clock.Advance(testEraSeconds * time.Second)
	err = h.daemon.crankPool(ctx, h.pool)
	require.Error(t, err)

	sm := h.state(t)
	assert.Equal(t, uint64(2), sm.LatestEra)
	assert.Equal(t, lsd.Bonded, sm.EraStatus)
	assert.Equal(t, lsd.CalBase, sm.Rate)
}

func TestCrankAllWaitsForNextEra(t *testing.T) {
	h := newDaemonHarness(t)
	ctx := context.Background()

	wait := h.daemon.crankAll(ctx)
	expected := durationToNextEra(h.clock.Now(), testEraSeconds) + time.Second
	assert.Equal(t, min(expected, time.Minute), wait)
	assert.Equal(t, h.clock.Now(), h.daemon.LastCranked(h.pool))

	h.daemon.pollInterval = 48 * time.Hour
	assert.Equal(t, expected, h.daemon.crankAll(ctx))
}

func TestCrankPoolSkipsReleasedRequest(t *testing.T) {
	h := newDaemonHarness(t)
	ctx := context.Background()

	_, err := h.manager.Stake(ctx, h.pool, testAlice, 2_000_000_000)
	require.NoError(t, err)
	h.clock.Advance(testEraSeconds * time.Second)
	require.NoError(t, h.daemon.crankPool(ctx, h.pool))

	ua, err := h.manager.Unstake(ctx, h.pool, testAlice, 1_000_000_000)
	require.NoError(t, err)
	h.clock.Advance(testEraSeconds * time.Second)
	require.NoError(t, h.daemon.crankPool(ctx, h.pool))
	requests, err := h.manager.ExternalRequests(h.pool)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	stale := requests[0]

	// the service releases the request but the pool never hears about it
	h.clock.Advance(3 * testEraSeconds * time.Second)
	released, err := h.mem.Withdraw(ctx, lsd.StakeAccountRef{Pool: testStakingPool, Staker: h.pool}, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), released)

	_, err = h.manager.Stake(ctx, h.pool, testAlice, 1_000_000_000)
	require.NoError(t, err)
	require.NoError(t, h.daemon.crankPool(ctx, h.pool))

	sm := h.state(t)
	assert.Equal(t, uint64(5), sm.LatestEra)
	assert.Equal(t, lsd.ActiveUpdated, sm.EraStatus)
	assert.Equal(t, uint64(2_000_000_000), sm.Active)
	assert.Equal(t, uint64(2_000_000_000), h.mem.StakeBalance(testStakingPool, h.pool))
	assert.Zero(t, h.vault(t))

	// the record stays until the admin settles it
	requests, err = h.manager.ExternalRequests(h.pool)
	require.NoError(t, err)
	require.Len(t, requests, 1)

	_, err = h.manager.DropExternalRequest(ctx, h.pool, testAlice, stale.ID, released)
	assert.ErrorIs(t, err, lsd.ErrAdminNotMatch)
	_, err = h.manager.DropExternalRequest(ctx, h.pool, testAdmin, stale.ID, released)
	require.NoError(t, err)
	requests, err = h.manager.ExternalRequests(h.pool)
	require.NoError(t, err)
	assert.Empty(t, requests)
	assert.Equal(t, released, h.vault(t))

	amount, err := h.manager.Withdraw(ctx, h.pool, testAlice, ua.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), amount)
	assert.Zero(t, h.vault(t))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "transport", err: errors.New("connection reset"), want: true},
		{name: "pool error", err: fmt.Errorf("era bond: %w", lsd.ErrEraStatusNotMatch), want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "service 503", err: &stakingsvc.StatusError{StatusCode: 503}, want: true},
		{name: "service 409", err: fmt.Errorf("withdraw: %w", &stakingsvc.StatusError{StatusCode: 409, Code: "not_matured"}), want: false},
		{name: "released request", err: &stakingsvc.StatusError{StatusCode: 404, Code: "request_not_found"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
