package lsd

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EraStatus is the position of a pool in its per-era cycle:
// ActiveUpdated -> EraUpdated -> (Bonded | Unbonded) -> ActiveUpdated.
type EraStatus uint8

const (
	EraUpdated EraStatus = iota
	Bonded
	Unbonded
	ActiveUpdated
)

var eraStatusNames = [...]string{
	EraUpdated:    "EraUpdated",
	Bonded:        "Bonded",
	Unbonded:      "Unbonded",
	ActiveUpdated: "ActiveUpdated",
}

func (s EraStatus) String() string {
	if int(s) < len(eraStatusNames) {
		return eraStatusNames[s]
	}
	return fmt.Sprintf("EraStatus(%d)", uint8(s))
}

func (s EraStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(eraStatusNames) {
		return nil, fmt.Errorf("unknown era status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *EraStatus) UnmarshalText(text []byte) error {
	for i, name := range eraStatusNames {
		if name == string(text) {
			*s = EraStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown era status %q", string(text))
}

type EraRate struct {
	Era  uint64 `json:"era"`
	Rate uint64 `json:"rate"`
}

// Config is the admin-adjustable part of a pool.
type Config struct {
	// Minimum base asset amount accepted by Stake
	MinStakeAmount uint64 `json:"min_stake_amount"`
	// Share of each era's reward taken as platform fee, in CalBase units (must be < CalBase)
	PlatformFeeCommission uint64 `json:"platform_fee_commission"`
	// Max relative rate move per era, in CalBase units. 0 means unlimited
	RateChangeLimit uint64 `json:"rate_change_limit"`
}

// StakeManager is the pool ledger. One exists per pool and it is never destroyed.
type StakeManager struct {
	Address      Address `json:"address"`
	Creator      Address `json:"creator"`
	Index        uint8   `json:"index"`
	Admin        Address `json:"admin"`
	PendingAdmin Address `json:"pending_admin"`

	LsdTokenMint     Address `json:"lsd_token_mint"`
	StakingTokenMint Address `json:"staking_token_mint"`
	// identity of the external staking service and the pool within it
	StakingService        string `json:"staking_service"`
	StakingPool           string `json:"staking_pool"`
	StakingMinStakeAmount uint64 `json:"staking_min_stake_amount"`

	EraSeconds        int64  `json:"era_seconds"`
	EraOffset         int64  `json:"era_offset"`
	UnbondingDuration uint64 `json:"unbonding_duration"`

	Config

	EraStatus EraStatus `json:"era_status"`
	LatestEra uint64    `json:"latest_era"`
	Rate      uint64    `json:"rate"`
	// deposits and redemptions of the current era not yet forwarded to the staking service
	EraBond   uint64 `json:"era_bond"`
	EraUnbond uint64 `json:"era_unbond"`
	// net position queued for the next bond or unbond
	PendingBond   uint64 `json:"pending_bond"`
	PendingUnbond uint64 `json:"pending_unbond"`
	// base asset value backing all outstanding derivative tokens
	Active           uint64    `json:"active"`
	TotalPlatformFee uint64    `json:"total_platform_fee"`
	EraRates         []EraRate `json:"era_rates"`
}

// CalcCurrentEra maps wall-clock time to an era number of this pool.
func (sm *StakeManager) CalcCurrentEra(now time.Time) (uint64, error) {
	if sm.EraSeconds <= 0 {
		return 0, ErrCalculationFail
	}
	era := now.Unix()/sm.EraSeconds + sm.EraOffset
	if era < 0 {
		return 0, ErrCalculationFail
	}
	return uint64(era), nil
}

// EraStart returns the wall-clock start of era.
func (sm *StakeManager) EraStart(era uint64) time.Time {
	return time.Unix((int64(era)-sm.EraOffset)*sm.EraSeconds, 0)
}

// AppendEraRate records a rate observation, dropping the oldest beyond EraRatesLenLimit.
func (sm *StakeManager) AppendEraRate(era, rate uint64) {
	sm.EraRates = append(sm.EraRates, EraRate{Era: era, Rate: rate})
	if over := len(sm.EraRates) - EraRatesLenLimit; over > 0 {
		sm.EraRates = append([]EraRate(nil), sm.EraRates[over:]...)
	}
}

func (sm *StakeManager) CalcLsdTokenAmount(stakingAmount uint64) (uint64, error) {
	return CalcLsdTokenAmount(stakingAmount, sm.Rate)
}

func (sm *StakeManager) CalcStakingTokenAmount(lsdAmount uint64) (uint64, error) {
	return CalcStakingTokenAmount(lsdAmount, sm.Rate)
}

// Clone returns a deep copy.
func (sm *StakeManager) Clone() *StakeManager {
	cp := *sm
	cp.EraRates = append([]EraRate(nil), sm.EraRates...)
	return &cp
}

func (sm *StakeManager) String() string {
	var out strings.Builder

	out.WriteString(fmt.Sprintf("Pool: %s\n", sm.Address))
	out.WriteString(fmt.Sprintf("Admin: %s\n", sm.Admin))
	if !sm.PendingAdmin.IsZero() {
		out.WriteString(fmt.Sprintf("Pending Admin: %s\n", sm.PendingAdmin))
	}
	out.WriteString(fmt.Sprintf("LSD Token: %s\n", sm.LsdTokenMint))
	out.WriteString(fmt.Sprintf("Staking Token: %s\n", sm.StakingTokenMint))
	out.WriteString(fmt.Sprintf("Staking Service: %s, pool: %s, min stake: %s\n", sm.StakingService, sm.StakingPool, FormattedAmount(sm.StakingMinStakeAmount)))
	out.WriteString(fmt.Sprintf("Era Seconds: %d, Unbonding Eras: %d\n", sm.EraSeconds, sm.UnbondingDuration))
	out.WriteString(fmt.Sprintf("Min Stake: %s\n", FormattedAmount(sm.MinStakeAmount)))
	out.WriteString(fmt.Sprintf("Platform Fee: %s%%\n", FormattedAmount(sm.PlatformFeeCommission*100)))
	out.WriteString(fmt.Sprintf("Rate Change Limit: %s%%\n", FormattedAmount(sm.RateChangeLimit*100)))
	out.WriteString(fmt.Sprintf("Era: %d, Status: %s\n", sm.LatestEra, sm.EraStatus))
	out.WriteString(fmt.Sprintf("Rate: %s\n", FormattedAmount(sm.Rate)))
	out.WriteString(fmt.Sprintf("Active: %s\n", FormattedAmount(sm.Active)))
	out.WriteString(fmt.Sprintf("Era Bond: %s, Era Unbond: %s\n", FormattedAmount(sm.EraBond), FormattedAmount(sm.EraUnbond)))
	out.WriteString(fmt.Sprintf("Pending Bond: %s, Pending Unbond: %s\n", FormattedAmount(sm.PendingBond), FormattedAmount(sm.PendingUnbond)))
	out.WriteString(fmt.Sprintf("Total Platform Fee: %s\n", FormattedAmount(sm.TotalPlatformFee)))

	return out.String()
}

// UnstakeAccount is a pending redemption of one unstake call.
type UnstakeAccount struct {
	ID           uuid.UUID `json:"id"`
	StakeManager Address   `json:"stake_manager"`
	User         Address   `json:"user"`
	// base asset owed, fixed at unstake time. Zeroed before the payout transfer
	Amount          uint64 `json:"amount"`
	CreatedEra      uint64 `json:"created_era"`
	WithdrawableEra uint64 `json:"withdrawable_era"`
}

func (u *UnstakeAccount) String() string {
	return fmt.Sprintf("UnstakeAccount{ID: %s, User: %s, Amount: %s, WithdrawableEra: %d}", u.ID, u.User, FormattedAmount(u.Amount), u.WithdrawableEra)
}

// ExternalUnstakeRequest is an unbond issued to the staking service that has not been withdrawn
// back into the pool vault.
type ExternalUnstakeRequest struct {
	UnstakeRequest
	StakeManager Address `json:"stake_manager"`
	Era          uint64  `json:"era"`
}

func (r *ExternalUnstakeRequest) Matured(now time.Time) bool {
	return r.WithdrawableTimestamp <= now.Unix()
}

// FormattedAmount renders a 9-decimal fixed point amount, trimming trailing zeros.
func FormattedAmount(v uint64) string {
	formatted := fmt.Sprintf("%d.%09d", v/CalBase, v%CalBase)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")
	return formatted
}
