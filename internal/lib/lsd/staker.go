package lsd

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Stake deposits amount of the base asset from user and mints derivative tokens at the current rate.
func (m *Manager) Stake(ctx context.Context, pool, user Address, amount uint64) (*StakeManager, error) {
	return m.update(ctx, "stake", pool, func(oc *opContext, sm *StakeManager) error {
		if user == sm.Address {
			return ErrParamsNotMatch
		}
		if amount < sm.MinStakeAmount {
			return ErrStakeAmountTooLow
		}
		lsdAmount, err := sm.CalcLsdTokenAmount(amount)
		if err != nil {
			return err
		}
		if sm.EraBond, err = addU64(sm.EraBond, amount); err != nil {
			return err
		}
		if sm.Active, err = addU64(sm.Active, amount); err != nil {
			return err
		}
		if err = transfer(oc.tx, sm.StakingTokenMint, user, sm.Address, amount); err != nil {
			return err
		}
		if err = credit(oc.tx, sm.LsdTokenMint, user, lsdAmount); err != nil {
			return err
		}

		oc.emit(EventStake{
			EventMeta:      EventMeta{Pool: sm.Address, Era: sm.LatestEra},
			User:           user,
			StakeAmount:    amount,
			LsdTokenAmount: lsdAmount,
		})
		return nil
	})
}

// Unstake burns lsdAmount derivative tokens of user and records the base asset owed in a new
// UnstakeAccount, withdrawable after the pool's unbonding duration.
func (m *Manager) Unstake(ctx context.Context, pool, user Address, lsdAmount uint64) (*UnstakeAccount, error) {
	var ua *UnstakeAccount
	_, err := m.update(ctx, "unstake", pool, func(oc *opContext, sm *StakeManager) error {
		if user == sm.Address {
			return ErrParamsNotMatch
		}
		if lsdAmount == 0 {
			return ErrUnstakeAmountIsZero
		}
		balance, err := balanceOf(oc.tx, sm.LsdTokenMint, user)
		if err != nil {
			return err
		}
		if balance < lsdAmount {
			return ErrBalanceNotEnough
		}
		unstakeAmount, err := sm.CalcStakingTokenAmount(lsdAmount)
		if err != nil {
			return err
		}
		if unstakeAmount == 0 {
			return ErrUnstakeAccountAmountZero
		}
		if sm.EraUnbond, err = addU64(sm.EraUnbond, unstakeAmount); err != nil {
			return err
		}
		if sm.Active, err = subU64(sm.Active, unstakeAmount); err != nil {
			return err
		}
		withdrawableEra, err := addU64(sm.LatestEra, sm.UnbondingDuration)
		if err != nil {
			return err
		}
		if err = debit(oc.tx, sm.LsdTokenMint, user, lsdAmount); err != nil {
			return err
		}

		ua = &UnstakeAccount{
			ID:              uuid.New(),
			StakeManager:    sm.Address,
			User:            user,
			Amount:          unstakeAmount,
			CreatedEra:      sm.LatestEra,
			WithdrawableEra: withdrawableEra,
		}
		if err = oc.tx.Put(unstakeAccountKey(sm.Address, ua.ID), ua); err != nil {
			return err
		}

		oc.emit(EventUnstake{
			EventMeta:      EventMeta{Pool: sm.Address, Era: sm.LatestEra},
			User:           user,
			UnstakeAccount: ua.ID,
			LsdTokenAmount: lsdAmount,
			UnstakeAmount:  unstakeAmount,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ua, nil
}

// Withdraw pays out a matured UnstakeAccount of user from the pool vault and removes it.
func (m *Manager) Withdraw(ctx context.Context, pool, user Address, unstakeAccount uuid.UUID) (uint64, error) {
	var withdrawAmount uint64
	_, err := m.update(ctx, "withdraw", pool, func(oc *opContext, sm *StakeManager) error {
		key := unstakeAccountKey(sm.Address, unstakeAccount)
		ua, err := loadUnstakeAccount(oc.tx, sm.Address, unstakeAccount)
		if err != nil {
			return err
		}
		if ua.User != user {
			return ErrUnstakeUserNotMatch
		}
		if ua.Amount == 0 {
			return ErrUnstakeAccountAmountZero
		}
		if sm.LatestEra < ua.WithdrawableEra {
			return ErrUnstakeAccountNotWithdrawable
		}
		vault, err := balanceOf(oc.tx, sm.StakingTokenMint, sm.Address)
		if err != nil {
			return err
		}
		if vault < ua.Amount {
			return ErrPoolBalanceNotEnough
		}

		// the account is cleared before any funds move
		amount := ua.Amount
		ua.Amount = 0
		if err = oc.tx.Put(key, ua); err != nil {
			return err
		}
		if err = transfer(oc.tx, sm.StakingTokenMint, sm.Address, user, amount); err != nil {
			if errors.Is(err, ErrBalanceNotEnough) {
				return ErrPoolBalanceNotEnough
			}
			return err
		}
		if err = oc.tx.Delete(key); err != nil {
			return err
		}
		withdrawAmount = amount

		oc.emit(EventWithdraw{
			EventMeta:      EventMeta{Pool: sm.Address, Era: sm.LatestEra},
			User:           user,
			UnstakeAccount: unstakeAccount,
			WithdrawAmount: amount,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return withdrawAmount, nil
}
