package lsd

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// mulDiv returns a*b/c computed with 256-bit intermediates, failing if c is 0 or the quotient
// does not fit in 64 bits.
func mulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrCalculationFail
	}
	var x uint256.Int
	x.Mul(uint256.NewInt(a), uint256.NewInt(b))
	x.Div(&x, uint256.NewInt(c))
	if !x.IsUint64() {
		return 0, ErrCalculationFail
	}
	return x.Uint64(), nil
}

// CalcLsdTokenAmount converts a base asset amount into derivative tokens at rate.
func CalcLsdTokenAmount(stakingAmount, rate uint64) (uint64, error) {
	return mulDiv(stakingAmount, CalBase, rate)
}

// CalcStakingTokenAmount converts derivative tokens into the base asset amount they redeem for.
func CalcStakingTokenAmount(lsdAmount, rate uint64) (uint64, error) {
	return mulDiv(lsdAmount, rate, CalBase)
}

// CalcPlatformFee is the fee, in derivative tokens, charged on a reward in base asset units.
func CalcPlatformFee(reward, feeCommission, rate uint64) (uint64, error) {
	return mulDiv(reward, feeCommission, rate)
}

// CalcRate is the base asset value of one derivative token. An empty side resets to 1.0.
func CalcRate(stakingAmount, lsdSupply uint64) (uint64, error) {
	if stakingAmount == 0 || lsdSupply == 0 {
		return CalBase, nil
	}
	return mulDiv(stakingAmount, CalBase, lsdSupply)
}

// CalcRateChange is |old-new|/old in CalBase units, 0 when old is 0.
func CalcRateChange(oldRate, newRate uint64) (uint64, error) {
	if oldRate == 0 {
		return 0, nil
	}
	var diff uint64
	if oldRate > newRate {
		diff = oldRate - newRate
	} else {
		diff = newRate - oldRate
	}
	return mulDiv(diff, CalBase, oldRate)
}

func addU64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrCalculationFail
	}
	return sum, nil
}

func subU64(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrCalculationFail
	}
	return diff, nil
}
