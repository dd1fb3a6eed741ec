package lsd

import (
	"context"
	"fmt"

	"github.com/TxnLab/lsd/internal/lib/misc"
	"github.com/TxnLab/lsd/internal/lib/store"
)

type InitParams struct {
	Creator     Address
	Admin       Address
	Index       uint8
	EraSeconds  int64
	StakingPool string
}

// InitializeStakeManager creates a pool bound to an external stake pool and a fresh derivative token.
func (m *Manager) InitializeStakeManager(ctx context.Context, params InitParams) (*StakeManager, error) {
	if params.EraSeconds <= 0 || params.Admin.IsZero() || params.StakingPool == "" {
		return nil, fmt.Errorf("initialize: %w", ErrParamsNotMatch)
	}
	if m.staking == nil {
		return nil, fmt.Errorf("initialize: %w", ErrStakingServiceNotMatch)
	}
	poolInfo, err := m.staking.GetPool(ctx, params.StakingPool)
	if err != nil {
		return nil, fmt.Errorf("initialize: fetching staking pool %s: %w", params.StakingPool, err)
	}
	if poolInfo.Pool != params.StakingPool {
		return nil, fmt.Errorf("initialize: %w", ErrStakingPoolNotMatch)
	}

	address := StakeManagerAddress(params.Creator, params.Index)
	lock := m.poolLock(address)
	lock.Lock()
	defer lock.Unlock()

	now := m.now()
	sm := &StakeManager{
		Address:               address,
		Creator:               params.Creator,
		Index:                 params.Index,
		Admin:                 params.Admin,
		LsdTokenMint:          LsdTokenMintAddress(params.Creator, params.Index),
		StakingTokenMint:      poolInfo.TokenMint,
		StakingService:        m.staking.ID(),
		StakingPool:           poolInfo.Pool,
		StakingMinStakeAmount: poolInfo.MinStakeAmount,
		EraSeconds:            params.EraSeconds,
		EraOffset:             -(now.Unix() / params.EraSeconds),
		Config: Config{
			MinStakeAmount:        DefaultMinStakeAmount,
			PlatformFeeCommission: DefaultPlatformFeeCommission,
			RateChangeLimit:       DefaultRateChangeLimit,
		},
		EraStatus: ActiveUpdated,
		Rate:      DefaultRate,
	}
	if poolInfo.UnbondingSeconds > 0 {
		sm.UnbondingDuration = uint64(poolInfo.UnbondingSeconds/params.EraSeconds) + 1
	} else {
		sm.UnbondingDuration = 1
	}

	err = m.store.Update(func(tx *store.Tx) error {
		exists, err := tx.Has(stakeManagerKey(address))
		if err != nil {
			return err
		}
		if exists {
			return ErrStakeManagerExists
		}
		supply, err := supplyOf(tx, sm.LsdTokenMint)
		if err != nil {
			return err
		}
		if supply != 0 {
			return ErrMintSupplyNotEmpty
		}
		return tx.Put(stakeManagerKey(address), sm)
	})
	countOperation("initialize", err)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	updatePoolMetrics(sm)
	misc.Infof(m.Logger, "initialized pool %s, lsd token %s, staking pool %s, unbonding eras:%d", sm.Address, sm.LsdTokenMint, sm.StakingPool, sm.UnbondingDuration)
	return sm, nil
}

// TransferAdmin proposes newAdmin. It takes effect once newAdmin calls AcceptAdmin.
func (m *Manager) TransferAdmin(ctx context.Context, pool, caller, newAdmin Address) (*StakeManager, error) {
	return m.update(ctx, "transfer_admin", pool, func(oc *opContext, sm *StakeManager) error {
		if sm.Admin != caller {
			return ErrAdminNotMatch
		}
		sm.PendingAdmin = newAdmin
		return nil
	})
}

func (m *Manager) AcceptAdmin(ctx context.Context, pool, caller Address) (*StakeManager, error) {
	return m.update(ctx, "accept_admin", pool, func(oc *opContext, sm *StakeManager) error {
		if sm.PendingAdmin.IsZero() || sm.PendingAdmin != caller {
			return ErrPendingAdminNotMatch
		}
		sm.Admin = sm.PendingAdmin
		sm.PendingAdmin = ZeroAddress
		return nil
	})
}

// ConfigUpdate holds the settings Configure changes. Nil fields are left as they are.
type ConfigUpdate struct {
	MinStakeAmount        *uint64
	PlatformFeeCommission *uint64
	RateChangeLimit       *uint64
}

func (m *Manager) Configure(ctx context.Context, pool, caller Address, update ConfigUpdate) (*StakeManager, error) {
	if update.PlatformFeeCommission != nil && *update.PlatformFeeCommission >= CalBase {
		return nil, fmt.Errorf("configure: platform fee commission must be below %d: %w", CalBase, ErrParamsNotMatch)
	}
	return m.update(ctx, "configure", pool, func(oc *opContext, sm *StakeManager) error {
		if sm.Admin != caller {
			return ErrAdminNotMatch
		}
		if update.MinStakeAmount != nil {
			sm.MinStakeAmount = *update.MinStakeAmount
		}
		if update.PlatformFeeCommission != nil {
			sm.PlatformFeeCommission = *update.PlatformFeeCommission
		}
		if update.RateChangeLimit != nil {
			sm.RateChangeLimit = *update.RateChangeLimit
		}
		return nil
	})
}

// DropExternalRequest settles a request the staking service already released without the pool
// recording it, crediting recovered to the pool vault. recovered is what the service actually paid
// out and may be zero.
func (m *Manager) DropExternalRequest(ctx context.Context, pool, caller Address, requestID string, recovered uint64) (*StakeManager, error) {
	return m.update(ctx, "drop_external_request", pool, func(oc *opContext, sm *StakeManager) error {
		if sm.Admin != caller {
			return ErrAdminNotMatch
		}
		req, err := loadExternalRequest(oc.tx, sm.Address, requestID)
		if err != nil {
			return err
		}
		if recovered > req.Amount {
			return ErrParamsNotMatch
		}
		if err = credit(oc.tx, sm.StakingTokenMint, sm.Address, recovered); err != nil {
			return err
		}
		if err = oc.tx.Delete(externalRequestKey(sm.Address, req.ID)); err != nil {
			return err
		}
		misc.Warnf(m.Logger, "dropped external request %s of pool %s (unbonded %d, recovered %d)", req.ID, sm.Address, req.Amount, recovered)

		oc.emit(EventEraWithdraw{
			EventMeta:      EventMeta{Pool: sm.Address, Era: sm.LatestEra},
			RequestID:      req.ID,
			WithdrawAmount: recovered,
			Reconciled:     true,
		})
		return nil
	})
}

// Fund credits amount of asset to owner directly, standing in for deposits made on the host
// platform. Derivative tokens of existing pools are only ever minted by the pools themselves.
func (m *Manager) Fund(asset, owner Address, amount uint64) error {
	err := m.store.Update(func(tx *store.Tx) error {
		err := store.IterateJSON(tx, keyStakeManager+"/", func(_ string, sm *StakeManager) error {
			if sm.LsdTokenMint == asset {
				return fmt.Errorf("%s is the lsd token of pool %s: %w", asset, sm.Address, ErrParamsNotMatch)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return credit(tx, asset, owner, amount)
	})
	countOperation("fund", err)
	if err != nil {
		return fmt.Errorf("fund: %w", err)
	}
	return nil
}
