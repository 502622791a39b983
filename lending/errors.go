package lending

import "errors"

// Error kinds per spec §7. Propagation: every operation aborts atomically on
// the first error; nothing is recovered inside the engine.
var (
	ErrConfigurationInvalid = errors.New("lending: configuration invalid")
	ErrPermissionDenied     = errors.New("lending: permission denied")
	ErrEmergencyModeActive  = errors.New("lending: emergency mode active")
	ErrReserveStale         = errors.New("lending: reserve stale")
	ErrOracleStale          = errors.New("lending: oracle price stale")
	ErrOracleInvalid        = errors.New("lending: oracle price invalid")
	ErrLimitExceeded        = errors.New("lending: limit exceeded")
	ErrLiquidityInsufficient = errors.New("lending: liquidity insufficient")
	ErrCapacityInsufficient  = errors.New("lending: borrow capacity insufficient")
	ErrPositionNotLiquidatable = errors.New("lending: position not liquidatable")
	ErrPositionUnhealthy     = errors.New("lending: position unhealthy")
	ErrAmountTooSmall        = errors.New("lending: amount too small")
	ErrNothingToDo           = errors.New("lending: nothing to do")
	ErrMathOverflow          = errors.New("lending: math overflow")
)

// Per-operation sentinels. These are standalone values (they do not wrap the
// kinds above, so errors.Is matches them only by their own name) and give
// logs/tests a name that identifies which operation's check failed, the
// same texture the original Radiant program's per-instruction error enums
// (RefreshReserveError, WithdrawError, LiquidateError, ...) have, carried
// over per SPEC_FULL §D.4.
var (
	ErrNoDepositFound          = errors.New("lending: no deposit entry for reserve")
	ErrNoBorrowFound           = errors.New("lending: no borrow entry for reserve")
	ErrMaxDepositsReached      = errors.New("lending: obligation already holds max deposit entries")
	ErrMaxBorrowsReached       = errors.New("lending: obligation already holds max borrow entries")
	ErrInsufficientDeposit     = errors.New("lending: withdrawal exceeds deposit balance")
	ErrInsufficientBorrowCapacity = errors.New("lending: withdrawal would exceed borrow capacity")
	ErrHealthFactorTooLow      = errors.New("lending: health factor would fall below minimum")
	ErrNoCollateral            = errors.New("lending: obligation has no collateral")
	ErrBorrowCapPerBlock       = errors.New("lending: per-block borrow cap exceeded")
	ErrBorrowCapUtilization    = errors.New("lending: utilization borrow cap exceeded")
	ErrOracleDeviation         = errors.New("lending: oracle price deviation exceeds threshold")
)
