package lsd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcLsdTokenAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  uint64
		rate    uint64
		want    uint64
		wantErr error
	}{
		{name: "par", amount: 100_000_000, rate: CalBase, want: 100_000_000},
		{name: "rate above par", amount: 100_000_000, rate: 1_250_000_000, want: 80_000_000},
		{name: "truncates", amount: 10, rate: 3_000_000_000, want: 3},
		{name: "max fits at par", amount: math.MaxUint64, rate: CalBase, want: math.MaxUint64},
		{name: "overflow", amount: math.MaxUint64, rate: CalBase / 2, wantErr: ErrCalculationFail},
		{name: "zero rate", amount: 1, rate: 0, wantErr: ErrCalculationFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalcLsdTokenAmount(tt.amount, tt.rate)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalcStakingTokenAmount(t *testing.T) {
	tests := []struct {
		name    string
		lsd     uint64
		rate    uint64
		want    uint64
		wantErr error
	}{
		{name: "par", lsd: 50_000_000, rate: CalBase, want: 50_000_000},
		{name: "appreciated", lsd: 50_000_000, rate: 1_000_899_910, want: 50_044_995},
		{name: "dust", lsd: 1, rate: 999_999_999, want: 0},
		{name: "overflow", lsd: math.MaxUint64, rate: 2 * CalBase, wantErr: ErrCalculationFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalcStakingTokenAmount(tt.lsd, tt.rate)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalcPlatformFee(t *testing.T) {
	fee, err := CalcPlatformFee(50_000, DefaultPlatformFeeCommission, CalBase)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), fee)

	fee, err = CalcPlatformFee(50_000, 0, CalBase)
	require.NoError(t, err)
	assert.Zero(t, fee)

	_, err = CalcPlatformFee(1, 1, 0)
	assert.ErrorIs(t, err, ErrCalculationFail)
}

func TestCalcRate(t *testing.T) {
	tests := []struct {
		name    string
		staking uint64
		supply  uint64
		want    uint64
	}{
		{name: "empty pool", staking: 0, supply: 0, want: CalBase},
		{name: "no supply", staking: 100, supply: 0, want: CalBase},
		{name: "no stake", staking: 0, supply: 100, want: CalBase},
		{name: "par", staking: 100_000_000, supply: 100_000_000, want: CalBase},
		{name: "reward with fee", staking: 50_050_000, supply: 50_005_000, want: 1_000_899_910},
		{name: "loss", staking: 49_975_000, supply: 50_000_000, want: 999_500_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalcRate(tt.staking, tt.supply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := CalcRate(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrCalculationFail)
}

func TestCalcRateChange(t *testing.T) {
	tests := []struct {
		name     string
		from, to uint64
		want     uint64
	}{
		{name: "bootstrap", from: 0, to: CalBase, want: 0},
		{name: "unchanged", from: CalBase, to: CalBase, want: 0},
		{name: "increase", from: CalBase, to: 1_000_899_910, want: 899_910},
		{name: "decrease", from: CalBase, to: 999_500_000, want: 500_000},
		{name: "doubling", from: CalBase, to: 2 * CalBase, want: CalBase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalcRateChange(tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := addU64(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrCalculationFail)
	_, err = subU64(1, 2)
	assert.ErrorIs(t, err, ErrCalculationFail)

	sum, err := addU64(2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum)
}
