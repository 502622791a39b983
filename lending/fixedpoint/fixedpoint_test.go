package fixedpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulDivFloors(t *testing.T) {
	a := FromUint64(10)
	b := FromUint64(3)
	c := FromUint64(4)
	got, err := MulDiv(a, b, c)
	require.NoError(t, err)
	v, err := got.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(7), v) // floor(30/4) = 7
}

func TestMulDivByZero(t *testing.T) {
	_, err := MulDiv(FromUint64(1), FromUint64(1), Zero())
	require.ErrorIs(t, err, ErrDivideByZero)
}

func TestSubUnderflowErrors(t *testing.T) {
	_, err := Sub(FromUint64(1), FromUint64(2))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestSatSubSaturatesAtZero(t *testing.T) {
	got := SatSub(FromUint64(1), FromUint64(2))
	require.True(t, got.IsZero())
}

func TestApplyBPS(t *testing.T) {
	got, err := ApplyBPS(FromUint64(1_000), 8_000)
	require.NoError(t, err)
	v, err := got.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(800), v)
}

func TestUtilizationBPSZeroDeposits(t *testing.T) {
	u, err := UtilizationBPS(FromUint64(100), Zero())
	require.NoError(t, err)
	require.Equal(t, uint32(0), u)
}

func TestUtilizationBPS(t *testing.T) {
	u, err := UtilizationBPS(FromUint64(4_000), FromUint64(15_000))
	require.NoError(t, err)
	require.Equal(t, uint32(2666), u)
}

func TestIndexOneRoundTrip(t *testing.T) {
	one := IndexOneU256()
	doubled, err := Add(one, one)
	require.NoError(t, err)
	require.Equal(t, 1, doubled.Cmp(one))
}
