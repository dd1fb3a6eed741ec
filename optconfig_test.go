package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TxnLab/lsd/internal/lib/lsd"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "1", want: 1_000_000_000},
		{in: "1.5", want: 1_500_000_000},
		{in: " 0.000000001 ", want: 1},
		{in: ".25", want: 250_000_000},
		{in: "2.", want: 2_000_000_000},
		{in: "18446744073", want: 18_446_744_073_000_000_000},
		{in: "18446744074", wantErr: true},
		{in: "1.0000000001", wantErr: true},
		{in: "", wantErr: true},
		{in: ".", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePercent(t *testing.T) {
	got, err := parsePercent("10")
	require.NoError(t, err)
	assert.Equal(t, lsd.DefaultPlatformFeeCommission, got)

	got, err = parsePercent("0.1")
	require.NoError(t, err)
	assert.Equal(t, lsd.DefaultRateChangeLimit, got)
}

func TestParseAddress(t *testing.T) {
	addr, err := parseAddress("@alice")
	require.NoError(t, err)
	assert.Equal(t, lsd.NamedAddress("alice"), addr)

	parsed, err := parseAddress(addr.String())
	require.NoError(t, err)
	assert.Equal(t, addr, parsed)

	_, err = parseAddress("@")
	assert.Error(t, err)
	_, err = parseAddress("not-base58-0OIl")
	assert.Error(t, err)
}
