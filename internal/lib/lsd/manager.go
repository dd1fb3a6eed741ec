// Package lsd is the liquid staking accounting engine: pool ledger, exchange rate and fee math, the
// per-era bond/unbond/reconcile cycle and the user stake/unstake/withdraw operations.
package lsd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TxnLab/lsd/internal/lib/misc"
	"github.com/TxnLab/lsd/internal/lib/store"
)

type Manager struct {
	Logger  *slog.Logger
	store   *store.Store
	staking StakingService
	now     func() time.Time
	sinks   []EventSink

	// one writer per pool at a time, pools are independent
	sync.Mutex
	poolLocks map[Address]*sync.Mutex
}

type Option func(*Manager)

// WithClock overrides the wall clock used for era computation and maturity checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithEventSink(sinks ...EventSink) Option {
	return func(m *Manager) {
		m.sinks = append(m.sinks, sinks...)
	}
}

func New(logger *slog.Logger, st *store.Store, staking StakingService, opts ...Option) *Manager {
	m := &Manager{
		Logger:    logger,
		store:     st,
		staking:   staking,
		now:       time.Now,
		poolLocks: map[Address]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(m)
	}
	serviceID := "none"
	if staking != nil {
		serviceID = staking.ID()
	}
	misc.Debugf(logger, "manager initialized, staking service:%s, event sinks:%d", serviceID, len(m.sinks))
	return m
}

func (m *Manager) Now() time.Time {
	return m.now()
}

func (m *Manager) poolLock(pool Address) *sync.Mutex {
	m.Lock()
	defer m.Unlock()
	lock, found := m.poolLocks[pool]
	if !found {
		lock = &sync.Mutex{}
		m.poolLocks[pool] = lock
	}
	return lock
}

// opContext is what an operation body sees: its store transaction, a fixed 'now' and the events it
// wants published once the transaction commits.
type opContext struct {
	tx     *store.Tx
	now    time.Time
	events []Event
}

func (oc *opContext) emit(ev Event) {
	oc.events = append(oc.events, ev)
}

// update runs fn against the stored StakeManager of pool inside one store transaction. fn mutates sm
// in place; sm is written back only if fn succeeds and nothing is written at all otherwise.
func (m *Manager) update(ctx context.Context, op string, pool Address, fn func(oc *opContext, sm *StakeManager) error) (*StakeManager, error) {
	lock := m.poolLock(pool)
	lock.Lock()
	defer lock.Unlock()

	oc := &opContext{now: m.now()}
	var committed *StakeManager
	err := m.store.Update(func(tx *store.Tx) error {
		oc.tx = tx
		oc.events = nil
		sm, err := loadStakeManager(tx, pool)
		if err != nil {
			return err
		}
		if err := fn(oc, sm); err != nil {
			return err
		}
		if err := tx.Put(stakeManagerKey(pool), sm); err != nil {
			return err
		}
		committed = sm
		return nil
	})
	countOperation(op, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	updatePoolMetrics(committed)
	m.publish(ctx, oc.events)
	return committed, nil
}

func (m *Manager) publish(ctx context.Context, events []Event) {
	for _, ev := range events {
		for _, sink := range m.sinks {
			if err := sink.Publish(ctx, ev); err != nil {
				misc.Warnf(m.Logger, "event sink failed for %s on pool %s: %v", ev.Name(), ev.PoolAddress(), err)
			}
		}
	}
}

// stakeAccountRef returns the account the pool holds in the staking service, verifying the
// service is the one the pool was bound to.
func (m *Manager) stakeAccountRef(sm *StakeManager) (StakeAccountRef, error) {
	if m.staking == nil || m.staking.ID() != sm.StakingService {
		return StakeAccountRef{}, ErrStakingServiceNotMatch
	}
	return StakeAccountRef{Pool: sm.StakingPool, Staker: sm.Address}, nil
}
