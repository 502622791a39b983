package interest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBorrowRateBelowKink(t *testing.T) {
	cfg := DefaultConfig
	rate := cfg.BorrowRateBPS(2_666)
	// 200 + (2666*1000)/8000 = 200 + 333 = 533
	require.Equal(t, uint32(533), rate)
}

func TestBorrowRateAboveKink(t *testing.T) {
	cfg := DefaultConfig
	rate := cfg.BorrowRateBPS(9_000)
	// 200 + 1000 + ((9000-8000)*10000)/(10000-8000) = 1200 + 5000 = 6200
	require.Equal(t, uint32(6_200), rate)
}

func TestBorrowRateAtFullUtilization(t *testing.T) {
	cfg := Config{OptimalUtilizationBPS: 10_000, BaseRateBPS: 200, Slope1BPS: 1_000, Slope2BPS: 5_000}
	require.Equal(t, uint32(1_200), cfg.BorrowRateBPS(10_000))
}

func TestBorrowRateMonotonic(t *testing.T) {
	cfg := DefaultConfig
	prev := uint32(0)
	for u := uint32(0); u <= 10_000; u += 500 {
		rate := cfg.BorrowRateBPS(u)
		require.GreaterOrEqual(t, rate, prev)
		prev = rate
	}
}

func TestSupplyRateNeverExceedsBorrowRate(t *testing.T) {
	cfg := DefaultConfig
	for u := uint32(0); u <= 10_000; u += 1_000 {
		borrow := cfg.BorrowRateBPS(u)
		supply := cfg.SupplyRateBPS(u, borrow)
		require.LessOrEqual(t, supply, borrow)
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig.Validate())
	bad := DefaultConfig
	bad.OptimalUtilizationBPS = 10_001
	require.Error(t, bad.Validate())
}
