package stakingsvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TxnLab/lsd/internal/lib/lsd"
)

// Memory is an in-process staking service simulator for local runs and tests. Rewards and slashes
// are injected with Accrue and realized on the next Claim.
type Memory struct {
	id  string
	now func() time.Time

	sync.Mutex
	pools    map[string]*memPool
	failNext error
}

type memPool struct {
	info     lsd.StakingPoolInfo
	stakes   map[lsd.Address]uint64
	accrued  map[lsd.Address]int64
	requests map[string]*memRequest
}

type memRequest struct {
	lsd.UnstakeRequest
	staker lsd.Address
}

var _ lsd.StakingService = (*Memory)(nil)

func NewMemory(id string, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		id:    id,
		now:   now,
		pools: map[string]*memPool{},
	}
}

func (m *Memory) ID() string {
	return m.id
}

// AddPool registers a stake pool.
func (m *Memory) AddPool(info lsd.StakingPoolInfo) {
	m.Lock()
	defer m.Unlock()
	m.pools[info.Pool] = &memPool{
		info:     info,
		stakes:   map[lsd.Address]uint64{},
		accrued:  map[lsd.Address]int64{},
		requests: map[string]*memRequest{},
	}
}

// Accrue queues a reward (positive) or slash (negative) for staker, applied on its next Claim.
func (m *Memory) Accrue(pool string, staker lsd.Address, delta int64) error {
	m.Lock()
	defer m.Unlock()
	p, err := m.pool(pool)
	if err != nil {
		return err
	}
	p.accrued[staker] += delta
	return nil
}

// FailNext makes the next mutating call return err without side effects.
func (m *Memory) FailNext(err error) {
	m.Lock()
	defer m.Unlock()
	m.failNext = err
}

// StakeBalance returns the bonded balance of staker.
func (m *Memory) StakeBalance(pool string, staker lsd.Address) uint64 {
	m.Lock()
	defer m.Unlock()
	if p, found := m.pools[pool]; found {
		return p.stakes[staker]
	}
	return 0
}

func (m *Memory) pool(pool string) (*memPool, error) {
	p, found := m.pools[pool]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, pool)
	}
	return p, nil
}

func (m *Memory) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *Memory) GetPool(ctx context.Context, pool string) (*lsd.StakingPoolInfo, error) {
	m.Lock()
	defer m.Unlock()
	p, err := m.pool(pool)
	if err != nil {
		return nil, err
	}
	info := p.info
	return &info, nil
}

func (m *Memory) Stake(ctx context.Context, ref lsd.StakeAccountRef, amount uint64) (*lsd.StakeAccount, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	p, err := m.pool(ref.Pool)
	if err != nil {
		return nil, err
	}
	if amount < p.info.MinStakeAmount {
		return nil, fmt.Errorf("%w: %d < %d", ErrBelowMinimum, amount, p.info.MinStakeAmount)
	}
	p.stakes[ref.Staker] += amount
	return &lsd.StakeAccount{Amount: p.stakes[ref.Staker]}, nil
}

func (m *Memory) Unstake(ctx context.Context, ref lsd.StakeAccountRef, amount uint64) (*lsd.UnstakeRequest, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	p, err := m.pool(ref.Pool)
	if err != nil {
		return nil, err
	}
	if p.stakes[ref.Staker] < amount {
		return nil, fmt.Errorf("%w: %d staked, %d requested", ErrInsufficientStake, p.stakes[ref.Staker], amount)
	}
	p.stakes[ref.Staker] -= amount
	req := &memRequest{
		UnstakeRequest: lsd.UnstakeRequest{
			ID:                    uuid.NewString(),
			Amount:                amount,
			WithdrawableTimestamp: m.now().Unix() + p.info.UnbondingSeconds,
		},
		staker: ref.Staker,
	}
	p.requests[req.ID] = req
	out := req.UnstakeRequest
	return &out, nil
}

func (m *Memory) Withdraw(ctx context.Context, ref lsd.StakeAccountRef, requestID string) (uint64, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	p, err := m.pool(ref.Pool)
	if err != nil {
		return 0, err
	}
	req, found := p.requests[requestID]
	if !found || req.staker != ref.Staker {
		return 0, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	if req.WithdrawableTimestamp > m.now().Unix() {
		return 0, fmt.Errorf("%w: %s matures at %d", ErrNotMatured, requestID, req.WithdrawableTimestamp)
	}
	delete(p.requests, requestID)
	return req.Amount, nil
}

func (m *Memory) Claim(ctx context.Context, ref lsd.StakeAccountRef, compound bool) (*lsd.StakeAccount, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	p, err := m.pool(ref.Pool)
	if err != nil {
		return nil, err
	}
	if delta := p.accrued[ref.Staker]; delta != 0 {
		bal := int64(p.stakes[ref.Staker]) + delta
		if bal < 0 {
			bal = 0
		}
		p.stakes[ref.Staker] = uint64(bal)
		delete(p.accrued, ref.Staker)
	}
	return &lsd.StakeAccount{Amount: p.stakes[ref.Staker]}, nil
}
