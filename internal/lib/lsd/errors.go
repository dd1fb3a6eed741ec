package lsd

import (
	"errors"
)

// Kind classifies an Error so callers can tell invalid input from a broken invariant.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPrecondition
	KindEconomic
	KindCalculation
	KindSafetyLimit
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindEconomic:
		return "economic"
	case KindCalculation:
		return "calculation"
	case KindSafetyLimit:
		return "safety-limit"
	case KindNotFound:
		return "not-found"
	}
	return "unknown"
}

// Error is a typed failure of a pool operation. The operation that returned it made no change.
type Error struct {
	Code string
	Msg  string
	Kind Kind
}

func (e *Error) Error() string {
	return e.Msg
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Code: code, Msg: msg, Kind: kind}
}

var (
	ErrAdminNotMatch                 = newErr(KindPrecondition, "AdminNotMatch", "admin not match")
	ErrPendingAdminNotMatch          = newErr(KindPrecondition, "PendingAdminNotMatch", "pending admin not match")
	ErrEraIsLatest                   = newErr(KindPrecondition, "EraIsLatest", "era is latest")
	ErrEraStatusNotMatch             = newErr(KindPrecondition, "EraStatusNotMatch", "era status not match")
	ErrUnstakeUserNotMatch           = newErr(KindPrecondition, "UnstakeUserNotMatch", "unstake user not match")
	ErrUnstakeAccountNotWithdrawable = newErr(KindPrecondition, "UnstakeAccountNotWithdrawable", "unstake account not withdrawable")
	ErrStakingServiceNotMatch        = newErr(KindPrecondition, "StakingServiceNotMatch", "staking service not match")
	ErrStakingPoolNotMatch           = newErr(KindPrecondition, "StakingPoolNotMatch", "staking pool not match")
	ErrStakeManagerExists            = newErr(KindPrecondition, "StakeManagerExists", "stake manager already exists")
	ErrMintSupplyNotEmpty            = newErr(KindPrecondition, "MintSupplyNotEmpty", "mint supply not empty")

	ErrParamsNotMatch           = newErr(KindEconomic, "ParamsNotMatch", "params not match")
	ErrStakeAmountTooLow        = newErr(KindEconomic, "StakeAmountTooLow", "stake amount too low")
	ErrBalanceNotEnough         = newErr(KindEconomic, "BalanceNotEnough", "balance not enough")
	ErrUnstakeAmountIsZero      = newErr(KindEconomic, "UnstakeAmountIsZero", "unstake amount is zero")
	ErrUnstakeAccountAmountZero = newErr(KindEconomic, "UnstakeAccountAmountZero", "unstake account amount zero")
	ErrPoolBalanceNotEnough     = newErr(KindEconomic, "PoolBalanceNotEnough", "pool balance not enough")

	ErrCalculationFail = newErr(KindCalculation, "CalculationFail", "calculation fail")

	ErrRateChangeOverLimit = newErr(KindSafetyLimit, "RateChangeOverLimit", "rate change over limit")

	ErrStakeManagerNotFound  = newErr(KindNotFound, "StakeManagerNotFound", "stake manager not found")
	ErrInvalidUnstakeAccount = newErr(KindNotFound, "InvalidUnstakeAccount", "invalid unstake account")

	// ErrExternalRequestNotFound is also what a StakingService returns for a request it no longer holds.
	ErrExternalRequestNotFound = newErr(KindNotFound, "ExternalRequestNotFound", "external unstake request not found")
)

// KindOf returns the Kind of the first *Error in err's chain, KindUnknown if there is none.
func KindOf(err error) Kind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return KindUnknown
}

// IsLsdErr reports whether err carries a typed pool error.
func IsLsdErr(err error) bool {
	return KindOf(err) != KindUnknown
}
