package persist

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"radiantcore/lending"
	"radiantcore/lending/fixedpoint"
	"radiantcore/lending/interest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "state")
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreMarketRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := &lending.Market{
		Authority:           "authority-1",
		Treasury:            "treasury-1",
		CloseFactorBPS:      5_000,
		LiquidationBonusBPS: 500,
		ProtocolFeeBPS:      1_000,
	}
	require.NoError(t, s.PutMarket(ctx, m))

	got, ok, err := s.GetMarket(ctx, "authority-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, m.Authority, got.Authority)
	require.Equal(t, m.CloseFactorBPS, got.CloseFactorBPS)

	_, ok, err = s.GetMarket(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreReserveFingerprintRejectsCorruption(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := &lending.Reserve{
		Market:        "authority-1",
		TokenMint:     "mint-usdc",
		TokenDecimals: 6,
		Vault:         "vault-usdc",
		FeeReceiver:   "fees-usdc",
		Oracle:        "oracle-usdc",
		Config: lending.ReserveConfig{
			LTVBPS:                  8_000,
			LiquidationThresholdBPS: 8_500,
			InterestRateConfig:      interest.DefaultConfig,
		},
	}
	require.NoError(t, s.PutReserve(ctx, r))

	key := reserveKey(r.Market, r.TokenMint)
	data, err := s.db.Get(key, nil)
	require.NoError(t, err)

	corrupted := append([]byte{}, data...)
	corrupted[len(corrupted)-2] ^= 0xFF
	require.NoError(t, s.db.Put(key, corrupted, nil))

	_, _, err = s.GetReserve(ctx, r.Market, r.TokenMint)
	require.Error(t, err)
}

func TestStoreDumpRestoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := &lending.Market{Authority: "authority-1", Treasury: "treasury-1"}
	r := &lending.Reserve{
		Market:    "authority-1",
		TokenMint: "mint-usdc",
		Vault:     "vault-usdc",
		Config:    lending.ReserveConfig{InterestRateConfig: interest.DefaultConfig},
	}
	o := &lending.Obligation{
		Owner:            "owner-1",
		Market:           "authority-1",
		DepositedValueUSD: fixedpoint.FromUint64(100),
	}
	require.NoError(t, s.PutMarket(ctx, m))
	require.NoError(t, s.PutReserve(ctx, r))
	require.NoError(t, s.PutObligation(ctx, o))

	snap, err := s.Dump()
	require.NoError(t, err)
	require.Len(t, snap.Markets, 1)
	require.Len(t, snap.Reserves, 1)
	require.Len(t, snap.Obligations, 1)

	restored := openTestStore(t)
	require.NoError(t, restored.Restore(ctx, snap))

	gotMarket, ok, err := restored.GetMarket(ctx, "authority-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, m.Treasury, gotMarket.Treasury)

	gotReserve, ok, err := restored.GetReserve(ctx, "authority-1", "mint-usdc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r.Vault, gotReserve.Vault)

	gotObligation, ok, err := restored.GetObligation(ctx, "authority-1", "owner-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, gotObligation.DepositedValueUSD.Cmp(o.DepositedValueUSD))
}
