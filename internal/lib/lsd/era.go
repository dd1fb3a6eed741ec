package lsd

import (
	"context"
	"errors"
	"fmt"
)

// EraNew opens the next era: this era's deposits and redemptions roll into the pending position.
// A net bond too small for the staking service (or no net position at all) is carried forward and
// the pool goes straight to Bonded.
func (m *Manager) EraNew(ctx context.Context, pool Address) (*StakeManager, error) {
	return m.update(ctx, "era_new", pool, func(oc *opContext, sm *StakeManager) error {
		if sm.EraStatus != ActiveUpdated {
			return ErrEraStatusNotMatch
		}
		currentEra, err := sm.CalcCurrentEra(oc.now)
		if err != nil {
			return err
		}
		newEra, err := addU64(sm.LatestEra, 1)
		if err != nil {
			return err
		}
		if currentEra < newEra {
			return ErrEraIsLatest
		}

		if sm.PendingBond, err = addU64(sm.PendingBond, sm.EraBond); err != nil {
			return err
		}
		if sm.PendingUnbond, err = addU64(sm.PendingUnbond, sm.EraUnbond); err != nil {
			return err
		}
		sm.EraStatus = EraUpdated

		if sm.PendingBond >= sm.PendingUnbond {
			diff := sm.PendingBond - sm.PendingUnbond
			if diff == 0 || diff < sm.StakingMinStakeAmount {
				sm.PendingBond = diff
				sm.PendingUnbond = 0
				sm.EraStatus = Bonded
			}
		}

		sm.LatestEra = newEra
		sm.EraBond = 0
		sm.EraUnbond = 0

		oc.emit(EventEraNew{
			EventMeta:     EventMeta{Pool: sm.Address, Era: newEra},
			PendingBond:   sm.PendingBond,
			PendingUnbond: sm.PendingUnbond,
			Status:        sm.EraStatus,
		})
		return nil
	})
}

// EraBond forwards the net pending deposit to the staking service.
func (m *Manager) EraBond(ctx context.Context, pool Address) (*StakeManager, error) {
	return m.update(ctx, "era_bond", pool, func(oc *opContext, sm *StakeManager) error {
		if sm.EraStatus != EraUpdated || sm.PendingBond <= sm.PendingUnbond {
			return ErrEraStatusNotMatch
		}
		diff := sm.PendingBond - sm.PendingUnbond
		if diff < sm.StakingMinStakeAmount {
			return ErrEraStatusNotMatch
		}
		ref, err := m.stakeAccountRef(sm)
		if err != nil {
			return err
		}

		if err = debit(oc.tx, sm.StakingTokenMint, sm.Address, diff); err != nil {
			if errors.Is(err, ErrBalanceNotEnough) {
				return ErrPoolBalanceNotEnough
			}
			return err
		}
		acct, err := m.staking.Stake(ctx, ref, diff)
		if err != nil {
			return fmt.Errorf("staking service stake of %d: %w", diff, err)
		}

		sm.PendingBond = 0
		sm.PendingUnbond = 0
		sm.EraStatus = Bonded

		oc.emit(EventEraBond{
			EventMeta:    EventMeta{Pool: sm.Address, Era: sm.LatestEra},
			BondAmount:   diff,
			StakeBalance: acct.Amount,
		})
		return nil
	})
}

// EraUnbond starts unbonding the net pending redemption at the staking service.
func (m *Manager) EraUnbond(ctx context.Context, pool Address) (*StakeManager, error) {
	return m.update(ctx, "era_unbond", pool, func(oc *opContext, sm *StakeManager) error {
		if sm.EraStatus != EraUpdated || sm.PendingBond >= sm.PendingUnbond {
			return ErrEraStatusNotMatch
		}
		diff := sm.PendingUnbond - sm.PendingBond
		ref, err := m.stakeAccountRef(sm)
		if err != nil {
			return err
		}

		req, err := m.staking.Unstake(ctx, ref, diff)
		if err != nil {
			return fmt.Errorf("staking service unstake of %d: %w", diff, err)
		}
		record := &ExternalUnstakeRequest{
			UnstakeRequest: *req,
			StakeManager:   sm.Address,
			Era:            sm.LatestEra,
		}
		if err = oc.tx.Put(externalRequestKey(sm.Address, req.ID), record); err != nil {
			return err
		}

		sm.PendingBond = 0
		sm.PendingUnbond = 0
		sm.EraStatus = Unbonded

		oc.emit(EventEraUnbond{
			EventMeta:             EventMeta{Pool: sm.Address, Era: sm.LatestEra},
			UnbondAmount:          diff,
			RequestID:             req.ID,
			WithdrawableTimestamp: req.WithdrawableTimestamp,
		})
		return nil
	})
}

// EraWithdraw pulls a matured external unbond back into the pool vault. Era status is unchanged.
func (m *Manager) EraWithdraw(ctx context.Context, pool Address, requestID string) (*StakeManager, error) {
	return m.update(ctx, "era_withdraw", pool, func(oc *opContext, sm *StakeManager) error {
		if sm.EraStatus != EraUpdated {
			return ErrEraStatusNotMatch
		}
		req, err := loadExternalRequest(oc.tx, sm.Address, requestID)
		if err != nil {
			return err
		}
		if !req.Matured(oc.now) {
			return ErrUnstakeAccountNotWithdrawable
		}
		ref, err := m.stakeAccountRef(sm)
		if err != nil {
			return err
		}

		released, err := m.staking.Withdraw(ctx, ref, req.ID)
		if err != nil {
			return fmt.Errorf("staking service withdraw of request %s: %w", req.ID, err)
		}
		if err = credit(oc.tx, sm.StakingTokenMint, sm.Address, released); err != nil {
			return err
		}
		if err = oc.tx.Delete(externalRequestKey(sm.Address, req.ID)); err != nil {
			return err
		}

		oc.emit(EventEraWithdraw{
			EventMeta:      EventMeta{Pool: sm.Address, Era: sm.LatestEra},
			RequestID:      req.ID,
			WithdrawAmount: released,
		})
		return nil
	})
}

// EraActive claims rewards, takes the platform fee and moves the rate to reflect the staking
// service's balance, closing the era cycle. The rate move is bounded by RateChangeLimit.
func (m *Manager) EraActive(ctx context.Context, pool Address) (*StakeManager, error) {
	return m.update(ctx, "era_active", pool, func(oc *opContext, sm *StakeManager) error {
		if sm.EraStatus != Bonded && sm.EraStatus != Unbonded {
			return ErrEraStatusNotMatch
		}
		ref, err := m.stakeAccountRef(sm)
		if err != nil {
			return err
		}
		acct, err := m.staking.Claim(ctx, ref, true)
		if err != nil {
			return fmt.Errorf("staking service claim: %w", err)
		}

		totalBondAndReward, err := addU64(acct.Amount, sm.PendingBond)
		if err != nil {
			return err
		}
		if totalBondAndReward, err = addU64(totalBondAndReward, sm.EraBond); err != nil {
			return err
		}
		newActive, err := subU64(totalBondAndReward, sm.EraUnbond)
		if err != nil {
			return err
		}

		var reward, platformFee uint64
		if newActive > sm.Active {
			reward = newActive - sm.Active
		}
		if reward > 0 {
			if platformFee, err = CalcPlatformFee(reward, sm.PlatformFeeCommission, sm.Rate); err != nil {
				return err
			}
		}
		if platformFee > 0 {
			if err = credit(oc.tx, sm.LsdTokenMint, sm.Admin, platformFee); err != nil {
				return err
			}
			if sm.TotalPlatformFee, err = addU64(sm.TotalPlatformFee, platformFee); err != nil {
				return err
			}
		}

		supply, err := supplyOf(oc.tx, sm.LsdTokenMint)
		if err != nil {
			return err
		}
		newRate, err := CalcRate(newActive, supply)
		if err != nil {
			return err
		}
		if newRate == 0 {
			return ErrCalculationFail
		}
		rateChange, err := CalcRateChange(sm.Rate, newRate)
		if err != nil {
			return err
		}
		if sm.RateChangeLimit > 0 && rateChange > sm.RateChangeLimit {
			return fmt.Errorf("rate %d -> %d moves %d, limit %d: %w", sm.Rate, newRate, rateChange, sm.RateChangeLimit, ErrRateChangeOverLimit)
		}

		sm.Active = newActive
		sm.Rate = newRate
		sm.AppendEraRate(sm.LatestEra, newRate)
		sm.EraStatus = ActiveUpdated

		oc.emit(EventEraActive{
			EventMeta:   EventMeta{Pool: sm.Address, Era: sm.LatestEra},
			Active:      newActive,
			Reward:      reward,
			PlatformFee: platformFee,
			Rate:        newRate,
			RateChange:  rateChange,
		})
		return nil
	})
}
