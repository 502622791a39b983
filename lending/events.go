package lending

// Event is a typed, attribute-bag event emitted on every state change: a
// plain struct whose Type field names the event. Attributes are
// stringly-typed so callers can serialize them without knowing concrete Go
// types.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter records events raised by engine operations. Implementations may
// fan out to a log, a websocket broadcaster, and an analytics sink.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event; used when a caller doesn't care about
// the event stream (tests, one-shot CLI tools).
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// FanOut broadcasts every event to each of its member emitters, letting a
// single Engine feed a websocket hub and an analytics sink at once.
type FanOut []Emitter

func (f FanOut) Emit(e Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(e)
		}
	}
}

const (
	EventMarketInitialized      = "lending.market_initialized"
	EventEmergencyModeChanged   = "lending.emergency_mode_changed"
	EventReserveInitialized     = "lending.reserve_initialized"
	EventReserveConfigUpdated   = "lending.reserve_config_updated"
	EventReserveRefreshed       = "lending.reserve_refreshed"
	EventObligationInitialized  = "lending.obligation_initialized"
	EventObligationRefreshed    = "lending.obligation_refreshed"
	EventDeposit                = "lending.deposit"
	EventWithdraw               = "lending.withdraw"
	EventBorrow                 = "lending.borrow"
	EventRepay                  = "lending.repay"
	EventLiquidation            = "lending.liquidation"
	EventProtocolFeesCollected  = "lending.protocol_fees_collected"
)
