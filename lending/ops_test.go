package lending

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"radiantcore/lending/fixedpoint"
)

const (
	usdcMint = "mint-usdc"
	solMint  = "mint-sol"

	usdcOracle = "oracle-usdc"
	solOracle  = "oracle-sol"

	usdcVault = "vault-usdc"
	solVault  = "vault-sol"

	usdcFees = "fees-usdc"
	solFees  = "fees-sol"

	owner      = "owner-1"
	liquidator = "liquidator-1"
	supplier   = "supplier-1"
)

// setupTwoReserveMarket builds a market with a SOL collateral reserve and a
// USDC borrow reserve, both at 6 decimals, $1 USDC and $100 SOL, mirroring
// the teacher's engine_accrual_test.go fixture shape.
func setupTwoReserveMarket(t *testing.T) *testHarness {
	t.Helper()
	h := newHarness()
	h.initMarket()
	h.initReserve(solMint, solVault, solFees, solOracle, 6, defaultReserveConfig())
	h.initReserve(usdcMint, usdcVault, usdcFees, usdcOracle, 6, defaultReserveConfig())
	h.oracle.setPrice(solOracle, 100*fixedpoint.USDScale, 0)
	h.oracle.setPrice(usdcOracle, fixedpoint.USDScale, 0)
	h.custody.fund(owner, 1_000_000_000)
	h.custody.fund(liquidator, 1_000_000_000)
	// Initial USDC liquidity supplied by a third party through Deposit, so the
	// reserve's accounted deposits (not only the vault balance) back borrows.
	h.custody.fund(supplier, 1_000_000_000)
	_, err := h.engine.Deposit(context.Background(), testMarketAuthority, usdcMint, supplier, 1_000_000_000, OpContext{Slot: 0, Timestamp: 0})
	require.NoError(t, err)
	return h
}

func refreshAll(t *testing.T, h *testHarness, slot uint64, ts int64) {
	t.Helper()
	ctx := context.Background()
	_, err := h.engine.RefreshReserve(ctx, testMarketAuthority, solMint, slot, ts)
	require.NoError(t, err)
	_, err = h.engine.RefreshReserve(ctx, testMarketAuthority, usdcMint, slot, ts)
	require.NoError(t, err)
	_, err = h.engine.RefreshObligation(ctx, testMarketAuthority, owner, slot)
	require.NoError(t, err)
}

func TestDepositAccountsForCollateral(t *testing.T) {
	h := setupTwoReserveMarket(t)
	ctx := context.Background()

	o, err := h.engine.Deposit(ctx, testMarketAuthority, solMint, owner, 10_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
	require.Len(t, o.Deposits, 1)
	require.Equal(t, uint64(10_000_000), mustU64(t, o.Deposits[0].DepositedAmount))

	bal, err := h.custody.Balance(ctx, solVault)
	require.NoError(t, err)
	require.Equal(t, uint64(10_000_000), bal)
}

func TestDepositBelowMinimumRejected(t *testing.T) {
	h := setupTwoReserveMarket(t)
	_, err := h.engine.Deposit(context.Background(), testMarketAuthority, solMint, owner, 1, OpContext{Slot: 1, Timestamp: 1})
	require.ErrorIs(t, err, ErrAmountTooSmall)
}

func TestBorrowRequiresCollateral(t *testing.T) {
	h := setupTwoReserveMarket(t)
	_, err := h.engine.Borrow(context.Background(), testMarketAuthority, usdcMint, owner, 1_000, OpContext{Slot: 1, Timestamp: 1})
	require.ErrorIs(t, err, ErrNoCollateral)
}

func TestBorrowAgainstFreshCollateralSucceeds(t *testing.T) {
	h := setupTwoReserveMarket(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, testMarketAuthority, solMint, owner, 10_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
	refreshAll(t, h, 1, 1_000)

	// 10 SOL at $100 = $1000 deposited, 80% LTV = $800 allowed borrow.
	o, err := h.engine.Borrow(ctx, testMarketAuthority, usdcMint, owner, 500_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
	require.Len(t, o.Borrows, 1)
	require.Equal(t, uint64(500_000_000), mustU64(t, o.Borrows[0].BorrowedAmount))
}

func TestBorrowBeyondCapacityRejected(t *testing.T) {
	h := setupTwoReserveMarket(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, testMarketAuthority, solMint, owner, 10_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
	refreshAll(t, h, 1, 1_000)

	_, err = h.engine.Borrow(ctx, testMarketAuthority, usdcMint, owner, 900_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.Error(t, err)
}

func TestRepayReducesDebtAndAllowsFullRepayWithZeroAmount(t *testing.T) {
	h := setupTwoReserveMarket(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, testMarketAuthority, solMint, owner, 10_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
	refreshAll(t, h, 1, 1_000)
	_, err = h.engine.Borrow(ctx, testMarketAuthority, usdcMint, owner, 500_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)

	h.custody.fund(owner, 500_000_000) // owner needs USDC to repay with
	o, repaid, err := h.engine.Repay(ctx, testMarketAuthority, usdcMint, owner, owner, 0, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
	require.Equal(t, uint64(500_000_000), repaid)
	require.Empty(t, o.Borrows)
}

func TestWithdrawWithoutDepositFails(t *testing.T) {
	h := setupTwoReserveMarket(t)
	_, _, err := h.engine.Withdraw(context.Background(), testMarketAuthority, solMint, owner, 1, OpContext{Slot: 1, Timestamp: 1})
	require.ErrorIs(t, err, ErrNoDepositFound)
}

func TestWithdrawAllWithNoDebtSucceeds(t *testing.T) {
	h := setupTwoReserveMarket(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, testMarketAuthority, solMint, owner, 10_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)

	o, amt, err := h.engine.Withdraw(ctx, testMarketAuthority, solMint, owner, 0, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
	require.Equal(t, uint64(10_000_000), amt)
	require.Empty(t, o.Deposits)
}

func TestWithdrawBeyondDepositRejected(t *testing.T) {
	h := setupTwoReserveMarket(t)
	ctx := context.Background()
	_, err := h.engine.Deposit(ctx, testMarketAuthority, solMint, owner, 10_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)

	_, _, err = h.engine.Withdraw(ctx, testMarketAuthority, solMint, owner, 20_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.ErrorIs(t, err, ErrInsufficientDeposit)
}

func TestEmergencyModeBlocksDepositAndBorrowNotWithdrawOrRepay(t *testing.T) {
	h := setupTwoReserveMarket(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, testMarketAuthority, solMint, owner, 10_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
	refreshAll(t, h, 1, 1_000)
	_, err = h.engine.Borrow(ctx, testMarketAuthority, usdcMint, owner, 100_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)

	_, err = h.engine.SetEmergencyMode(ctx, testMarketAuthority, true)
	require.NoError(t, err)

	_, err = h.engine.Deposit(ctx, testMarketAuthority, solMint, owner, 1_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.ErrorIs(t, err, ErrEmergencyModeActive)

	_, err = h.engine.Borrow(ctx, testMarketAuthority, usdcMint, owner, 1_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.ErrorIs(t, err, ErrEmergencyModeActive)

	h.custody.fund(owner, 100_000_000)
	_, _, err = h.engine.Repay(ctx, testMarketAuthority, usdcMint, owner, owner, 1_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)

	_, _, err = h.engine.Withdraw(ctx, testMarketAuthority, solMint, owner, 1_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
}

func TestLiquidationRequiresUnhealthyPosition(t *testing.T) {
	h := setupTwoReserveMarket(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, testMarketAuthority, solMint, owner, 10_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
	refreshAll(t, h, 1, 1_000)
	_, err = h.engine.Borrow(ctx, testMarketAuthority, usdcMint, owner, 500_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
	refreshAll(t, h, 1, 1_000)

	_, _, err = h.engine.Liquidate(ctx, testMarketAuthority, usdcMint, solMint, owner, liquidator, 0, OpContext{Slot: 1, Timestamp: 1_000})
	require.ErrorIs(t, err, ErrPositionNotLiquidatable)
}

func TestLiquidationSeizesOraclePricedCollateralWithBonus(t *testing.T) {
	h := setupTwoReserveMarket(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, testMarketAuthority, solMint, owner, 10_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)
	refreshAll(t, h, 1, 1_000)
	_, err = h.engine.Borrow(ctx, testMarketAuthority, usdcMint, owner, 800_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)

	// Crash the SOL price so the position is underwater: $1000 -> $700
	// deposited value, threshold 8500bps of that = $595 unhealthy borrow
	// value against $800 borrowed => health factor well under 10000.
	h.oracle.setPrice(solOracle, 70*fixedpoint.USDScale, 2)
	refreshAll(t, h, 2, 1_100)

	h.custody.fund(liquidator, 1_000_000_000)
	_, result, err := h.engine.Liquidate(ctx, testMarketAuthority, usdcMint, solMint, owner, liquidator, 0, OpContext{Slot: 2, Timestamp: 1_100})
	require.NoError(t, err)
	require.Greater(t, result.ActualRepay, uint64(0))
	require.Greater(t, result.CollateralSeized, uint64(0))
	require.Equal(t, result.ProtocolFee+result.LiquidatorReward, result.CollateralSeized)
}

func TestLiquidationBonusMonotonicity(t *testing.T) {
	low, err := priceOneToOne(fixedpoint.FromUint64(1_000_000), 500)
	require.NoError(t, err)
	high, err := priceOneToOne(fixedpoint.FromUint64(1_000_000), 1_000)
	require.NoError(t, err)
	require.True(t, high.Cmp(low) > 0)
}

func TestReserveStalenessBlocksOperations(t *testing.T) {
	h := setupTwoReserveMarket(t)
	ctx := context.Background()
	_, err := h.engine.Deposit(ctx, testMarketAuthority, solMint, owner, 10_000_000, OpContext{Slot: 1, Timestamp: 1_000})
	require.NoError(t, err)

	_, _, err = h.engine.Withdraw(ctx, testMarketAuthority, solMint, owner, 1_000, OpContext{Slot: 2_000, Timestamp: 2_000_000})
	require.ErrorIs(t, err, ErrReserveStale)
}

func mustU64(t *testing.T, v fixedpoint.U256) uint64 {
	t.Helper()
	n, err := v.Uint64()
	require.NoError(t, err)
	return n
}

func TestErrorsAreWrappedSentinels(t *testing.T) {
	h := setupTwoReserveMarket(t)
	_, err := h.engine.Deposit(context.Background(), testMarketAuthority, solMint, owner, 1, OpContext{Slot: 1, Timestamp: 1})
	require.True(t, errors.Is(err, ErrAmountTooSmall))
}
