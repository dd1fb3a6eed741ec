package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mailgun/holster/v4/syncutil"
	"github.com/ssgreg/repeat"

	"github.com/TxnLab/lsd/internal/lib/lsd"
	"github.com/TxnLab/lsd/internal/lib/misc"
)

// maxCrankSteps bounds the steps taken for one pool per pass. A full cycle is at most
// new/withdraw.../bond-or-unbond/active, repeated once per missed era.
const maxCrankSteps = 64

// Daemon drives every managed pool through its era cycle as eras roll over.
type Daemon struct {
	logger       *slog.Logger
	manager      *lsd.Manager
	pools        []lsd.Address
	pollInterval time.Duration

	maxTries  int
	baseDelay time.Duration
	maxDelay  time.Duration

	// embed mutex for locking state for members below the mutex
	sync.RWMutex
	lastCranked map[lsd.Address]time.Time
}

func newDaemon(logger *slog.Logger, manager *lsd.Manager, pools []lsd.Address, pollInterval time.Duration) *Daemon {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Daemon{
		logger:       logger,
		manager:      manager,
		pools:        pools,
		pollInterval: pollInterval,
		maxTries:     10,
		baseDelay:    5 * time.Second,
		maxDelay:     time.Minute,
		lastCranked:  map[lsd.Address]time.Time{},
	}
}

func (d *Daemon) start(ctx context.Context, wg *sync.WaitGroup) {
	d.logger.Info("Starting lsd daemon")

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.EraWatcher(ctx)
	}()
}

// EraWatcher cranks all pools, then sleeps until the next era boundary of any pool (or the poll
// interval, whichever is first).
func (d *Daemon) EraWatcher(ctx context.Context) {
	defer d.logger.Info("Exiting EraWatcher")
	d.logger.Info("Starting EraWatcher")

	for {
		wait := d.crankAll(ctx)
		misc.Debugf(d.logger, "next check in %v", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// managedPools is the configured pool list, or every pool in the store if none are configured.
func (d *Daemon) managedPools() ([]lsd.Address, error) {
	if len(d.pools) > 0 {
		return d.pools, nil
	}
	pools, err := d.manager.ListStakeManagers()
	if err != nil {
		return nil, err
	}
	addrs := make([]lsd.Address, 0, len(pools))
	for _, sm := range pools {
		addrs = append(addrs, sm.Address)
	}
	return addrs, nil
}

// crankAll cranks every pool concurrently and returns how long to wait before the next pass.
func (d *Daemon) crankAll(ctx context.Context) time.Duration {
	pools, err := d.managedPools()
	if err != nil {
		misc.Errorf(d.logger, "unable to list pools: %v", err)
		return d.pollInterval
	}

	fanOut := syncutil.NewFanOut(20)
	for _, pool := range pools {
		fanOut.Run(func(val any) error {
			pool := val.(lsd.Address)
			if err := d.crankPool(ctx, pool); err != nil {
				return fmt.Errorf("pool %s: %w", pool, err)
			}
			return nil
		}, pool)
	}
	for _, err := range fanOut.Wait() {
		misc.Errorf(d.logger, "crank failed: %v", err)
	}

	wait := d.pollInterval
	now := d.manager.Now()
	for _, pool := range pools {
		sm, err := d.manager.GetStakeManager(pool)
		if err != nil {
			continue
		}
		// a second of slack so the boundary has definitely passed
		if untilNext := durationToNextEra(now, sm.EraSeconds) + time.Second; untilNext < wait {
			wait = untilNext
		}
	}
	return wait
}

func (d *Daemon) LastCranked(pool lsd.Address) time.Time {
	d.RLock()
	defer d.RUnlock()
	return d.lastCranked[pool]
}

// crankPool advances pool as far as it can go right now: through every era that has started and
// the bond/unbond/withdraw/active steps of each.
func (d *Daemon) crankPool(ctx context.Context, pool lsd.Address) error {
	// external requests that failed to finalize for good this pass
	skipped := map[string]bool{}
	for i := 0; i < maxCrankSteps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sm, err := d.manager.GetStakeManager(pool)
		if err != nil {
			return err
		}
		var requests []*lsd.ExternalUnstakeRequest
		if sm.EraStatus == lsd.EraUpdated {
			if requests, err = d.manager.ExternalRequests(pool); err != nil {
				return err
			}
			requests = slices.DeleteFunc(requests, func(req *lsd.ExternalUnstakeRequest) bool {
				return skipped[req.ID]
			})
		}
		step, requestID := nextStep(sm, d.manager.Now(), requests)
		if step == stepNone {
			d.Lock()
			d.lastCranked[pool] = d.manager.Now()
			d.Unlock()
			return nil
		}
		if err = d.runStep(ctx, pool, step, requestID); err != nil {
			if step == stepEraWithdraw && !retryable(err) && ctx.Err() == nil {
				// bonding and unbonding must not wait on a request that can't be finalized
				misc.Errorf(d.logger, "skipping external request %s of pool %s: %v", requestID, pool, err)
				skipped[requestID] = true
				continue
			}
			return fmt.Errorf("%s: %w", step, err)
		}
	}
	return fmt.Errorf("pool %s still not settled after %d steps", pool, maxCrankSteps)
}

type crankStep int

const (
	stepNone crankStep = iota
	stepEraNew
	stepEraWithdraw
	stepEraBond
	stepEraUnbond
	stepEraActive
)

func (s crankStep) String() string {
	switch s {
	case stepEraNew:
		return "era new"
	case stepEraWithdraw:
		return "era withdraw"
	case stepEraBond:
		return "era bond"
	case stepEraUnbond:
		return "era unbond"
	case stepEraActive:
		return "era active"
	}
	return "none"
}

// nextStep picks the era operation that moves sm forward. Matured external unbonds are finalized
// before bonding or unbonding since EraUpdated is the only status they can be finalized in.
func nextStep(sm *lsd.StakeManager, now time.Time, requests []*lsd.ExternalUnstakeRequest) (crankStep, string) {
	switch sm.EraStatus {
	case lsd.ActiveUpdated:
		currentEra, err := sm.CalcCurrentEra(now)
		if err != nil || currentEra <= sm.LatestEra {
			return stepNone, ""
		}
		return stepEraNew, ""
	case lsd.EraUpdated:
		for _, req := range requests {
			if req.Matured(now) {
				return stepEraWithdraw, req.ID
			}
		}
		if sm.PendingBond > sm.PendingUnbond {
			return stepEraBond, ""
		}
		if sm.PendingUnbond > sm.PendingBond {
			return stepEraUnbond, ""
		}
		return stepNone, ""
	case lsd.Bonded, lsd.Unbonded:
		return stepEraActive, ""
	}
	return stepNone, ""
}

// runStep executes step, retrying failures of the staking service or store with backoff until
// retryable says otherwise.
func (d *Daemon) runStep(ctx context.Context, pool lsd.Address, step crankStep, requestID string) error {
	var sm *lsd.StakeManager
	err := repeat.Repeat(
		repeat.Fn(func() error {
			var err error
			switch step {
			case stepEraNew:
				sm, err = d.manager.EraNew(ctx, pool)
			case stepEraWithdraw:
				sm, err = d.manager.EraWithdraw(ctx, pool, requestID)
			case stepEraBond:
				sm, err = d.manager.EraBond(ctx, pool)
			case stepEraUnbond:
				sm, err = d.manager.EraUnbond(ctx, pool)
			case stepEraActive:
				sm, err = d.manager.EraActive(ctx, pool)
			default:
				return fmt.Errorf("unknown step %d", step)
			}
			if err == nil || !retryable(err) {
				return err
			}
			return repeat.HintTemporary(err)
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(d.maxTries),
		repeat.FnOnError(func(err error) error {
			misc.Warnf(d.logger, "%s on pool %s failed: %v", step, pool, err)
			return err
		}),
		repeat.WithDelay(
			repeat.SetContext(ctx),
			repeat.SetContextHintStop(),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: d.baseDelay,
				MaxDelay:  d.maxDelay,
			}).Set(),
		),
	)
	if err != nil {
		return err
	}
	misc.Infof(d.logger, "%s on pool %s, era:%d status:%s rate:%s", step, pool, sm.LatestEra, sm.EraStatus, lsd.FormattedAmount(sm.Rate))
	return nil
}

// retryable reports whether repeating a failed step could succeed. Pool errors and errors the
// staking service marks as not temporary are final.
func retryable(err error) bool {
	if lsd.IsLsdErr(err) || errors.Is(err, context.Canceled) {
		return false
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return true
}

// durationToNextEra returns the time from now until the next multiple of eraSeconds (unix time),
// which is where every pool's eras roll over.
func durationToNextEra(now time.Time, eraSeconds int64) time.Duration {
	if eraSeconds <= 0 {
		return defaultPollInterval
	}
	next := (now.Unix()/eraSeconds + 1) * eraSeconds
	return time.Unix(next, 0).Sub(now)
}
