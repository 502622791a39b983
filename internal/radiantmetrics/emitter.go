package radiantmetrics

import (
	"strconv"

	"radiantcore/lending"
)

// EventEmitter adapts the lending metrics registry to lending.Emitter so it
// can sit alongside a websocket hub and an analytics sink in a
// lending.FanOut, the same event-bag-to-multiple-sinks shape the engine
// already uses for its other observers.
type EventEmitter struct {
	metrics *lendingMetrics
}

// NewEventEmitter returns a lending.Emitter that records reserve/obligation/
// liquidation/fee events into the Prometheus collectors returned by Lending().
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{metrics: Lending()}
}

func (e *EventEmitter) Emit(ev lending.Event) {
	switch ev.Type {
	case lending.EventReserveRefreshed:
		market := ev.Attributes["market"]
		tokenMint := ev.Attributes["token_mint"]
		utilizationBPS, _ := strconv.ParseUint(ev.Attributes["utilization_bps"], 10, 32)
		borrowIndex, _ := strconv.ParseFloat(ev.Attributes["borrow_index"], 64)
		supplyIndex, _ := strconv.ParseFloat(ev.Attributes["supply_index"], 64)
		e.metrics.RecordReserveState(market, tokenMint, uint32(utilizationBPS), borrowIndex, supplyIndex)
	case lending.EventObligationRefreshed:
		healthFactorBPS, err := strconv.ParseUint(ev.Attributes["health_factor"], 10, 64)
		if err == nil {
			e.metrics.RecordHealthFactor(ev.Attributes["market"], healthFactorBPS)
		}
	case lending.EventLiquidation:
		e.metrics.RecordLiquidation(ev.Attributes["market"])
	case lending.EventProtocolFeesCollected:
		amount, _ := strconv.ParseUint(ev.Attributes["amount"], 10, 64)
		e.metrics.RecordProtocolFeesCollected(ev.Attributes["market"], ev.Attributes["token_mint"], amount)
	}
}

var _ lending.Emitter = (*EventEmitter)(nil)
