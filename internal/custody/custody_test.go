package custody

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"radiantcore/lending"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "custody"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedgerCreditAndBalance(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "vault-1", 1_000))
	bal, err := l.Balance(ctx, "vault-1")
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), bal)

	bal, err = l.Balance(ctx, "never-credited")
	require.NoError(t, err)
	require.Equal(t, uint64(0), bal)
}

func TestLedgerTransferMovesBalance(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "from", 500))
	require.NoError(t, l.Transfer(ctx, "from", "to", "authority", 200))

	fromBal, err := l.Balance(ctx, "from")
	require.NoError(t, err)
	require.Equal(t, uint64(300), fromBal)

	toBal, err := l.Balance(ctx, "to")
	require.NoError(t, err)
	require.Equal(t, uint64(200), toBal)
}

func TestLedgerTransferInsufficientBalance(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "from", 100))
	err := l.Transfer(ctx, "from", "to", "authority", 200)
	require.Error(t, err)
	require.True(t, errors.Is(err, lending.ErrLiquidityInsufficient))

	fromBal, err := l.Balance(ctx, "from")
	require.NoError(t, err)
	require.Equal(t, uint64(100), fromBal, "failed transfer must not mutate balances")
}
