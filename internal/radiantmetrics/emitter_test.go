package radiantmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"radiantcore/lending"
)

func TestEventEmitterRecordsReserveState(t *testing.T) {
	e := NewEventEmitter()
	e.Emit(lending.Event{
		Type: lending.EventReserveRefreshed,
		Attributes: map[string]string{
			"market":          "market-emitter-reserve",
			"token_mint":      "mint-usdc",
			"utilization_bps": "4200",
			"borrow_index":    "1.05",
			"supply_index":    "1.03",
		},
	})

	require.Equal(t, float64(4200), testutil.ToFloat64(e.metrics.utilization.WithLabelValues("market-emitter-reserve", "mint-usdc")))
	require.Equal(t, 1.05, testutil.ToFloat64(e.metrics.borrowIndex.WithLabelValues("market-emitter-reserve", "mint-usdc")))
}

func TestEventEmitterRecordsLiquidation(t *testing.T) {
	e := NewEventEmitter()
	before := testutil.ToFloat64(e.metrics.liquidations.WithLabelValues("market-emitter-liq"))
	e.Emit(lending.Event{Type: lending.EventLiquidation, Attributes: map[string]string{"market": "market-emitter-liq"}})
	after := testutil.ToFloat64(e.metrics.liquidations.WithLabelValues("market-emitter-liq"))
	require.Equal(t, before+1, after)
}

func TestEventEmitterRecordsProtocolFees(t *testing.T) {
	e := NewEventEmitter()
	e.Emit(lending.Event{
		Type: lending.EventProtocolFeesCollected,
		Attributes: map[string]string{
			"market":     "market-emitter-fees",
			"token_mint": "mint-usdc",
			"amount":     "500",
		},
	})
	require.Equal(t, float64(500), testutil.ToFloat64(e.metrics.protocolFees.WithLabelValues("market-emitter-fees", "mint-usdc")))
}

func TestEventEmitterIgnoresUnknownEventTypes(t *testing.T) {
	e := NewEventEmitter()
	require.NotPanics(t, func() {
		e.Emit(lending.Event{Type: "lending.unhandled", Attributes: map[string]string{}})
	})
}
