package lsd

import (
	"context"
)

// StakeAccountRef names the stake account a pool holds inside the external staking service.
type StakeAccountRef struct {
	Pool   string  `json:"pool"`
	Staker Address `json:"staker"`
}

// StakingPoolInfo describes an external stake pool a StakeManager binds to.
type StakingPoolInfo struct {
	Pool             string  `json:"pool"`
	TokenMint        Address `json:"token_mint"`
	MinStakeAmount   uint64  `json:"min_stake_amount"`
	UnbondingSeconds int64   `json:"unbonding_seconds"`
}

type StakeAccount struct {
	// bonded balance after the call
	Amount uint64 `json:"amount"`
}

type UnstakeRequest struct {
	ID                    string `json:"id"`
	Amount                uint64 `json:"amount"`
	WithdrawableTimestamp int64  `json:"withdrawable_timestamp"`
}

// StakingService is the delegated staking service every pool forwards its net position to.
// Results are trusted but the pool bounds how far they can move its rate.
type StakingService interface {
	// ID identifies the service. A pool only accepts the service it was initialized against.
	ID() string
	GetPool(ctx context.Context, pool string) (*StakingPoolInfo, error)
	Stake(ctx context.Context, ref StakeAccountRef, amount uint64) (*StakeAccount, error)
	Unstake(ctx context.Context, ref StakeAccountRef, amount uint64) (*UnstakeRequest, error)
	// Withdraw releases a matured request and returns the amount released. A request the service
	// does not hold (never made, or already released) fails with ErrExternalRequestNotFound.
	Withdraw(ctx context.Context, ref StakeAccountRef, requestID string) (uint64, error)
	// Claim realizes accrued rewards and returns the resulting stake balance.
	Claim(ctx context.Context, ref StakeAccountRef, compound bool) (*StakeAccount, error)
}
