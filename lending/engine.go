// Package lending implements the accounting core of an over-collateralized
// lending protocol: reserves, obligations, interest accrual, a kinked
// interest-rate model and a two-phase liquidation protocol. See SPEC_FULL.md
// for the full specification this package implements.
package lending

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"radiantcore/lending/fixedpoint"
)

// Engine is the accounting core. It holds no state of its own beyond its
// collaborators; all market/reserve/obligation state lives behind
// EngineState, exactly the seam native/lending/engine.go uses for its own
// engineState interface.
type Engine struct {
	state   EngineState
	custody Custody
	oracle  OracleAdapter
	emitter Emitter
	logger  *slog.Logger
}

// NewEngine builds an Engine. A nil emitter defaults to NoopEmitter; a nil
// logger defaults to slog.Default().
func NewEngine(state EngineState, custody Custody, oracle OracleAdapter, emitter Emitter, logger *slog.Logger) *Engine {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{state: state, custody: custody, oracle: oracle, emitter: emitter, logger: logger}
}

func (e *Engine) emit(eventType string, attrs map[string]string) {
	attrs["event_id"] = uuid.NewString()
	e.emitter.Emit(Event{Type: eventType, Attributes: attrs})
}

// RefreshReserve implements spec §4.3: the permissionless interest-accrual
// routine, idempotent within a slot.
func (e *Engine) RefreshReserve(ctx context.Context, market, tokenMint string, currentSlot uint64, currentTimestamp int64) (*Reserve, error) {
	reserve, ok, err := e.state.GetReserve(ctx, market, tokenMint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: reserve %s/%s not found", ErrConfigurationInvalid, market, tokenMint)
	}
	if err := refreshReserveLocked(reserve, currentSlot, currentTimestamp); err != nil {
		return nil, err
	}
	if err := e.state.PutReserve(ctx, reserve); err != nil {
		return nil, err
	}
	e.logger.Debug("reserve refreshed", "market", market, "mint", tokenMint, "slot", currentSlot,
		"borrow_index", reserve.Liquidity.CumulativeBorrowIndex.String(), "supply_index", reserve.Liquidity.CumulativeSupplyIndex.String())
	utilizationBPS, _ := reserve.UtilizationBPS()
	e.emit(EventReserveRefreshed, map[string]string{
		"market":          market,
		"token_mint":      tokenMint,
		"slot":            fmt.Sprintf("%d", currentSlot),
		"borrow_index":    reserve.Liquidity.CumulativeBorrowIndex.String(),
		"supply_index":    reserve.Liquidity.CumulativeSupplyIndex.String(),
		"borrow_rate_bps": fmt.Sprintf("%d", reserve.Liquidity.CurrentBorrowRateBPS),
		"supply_rate_bps": fmt.Sprintf("%d", reserve.Liquidity.CurrentSupplyRateBPS),
		"utilization_bps": fmt.Sprintf("%d", utilizationBPS),
	})
	return reserve, nil
}

// RefreshObligation implements spec §4.4: revalue every deposit/borrow entry
// against its (already-refreshed) reserve and current oracle price. Every
// referenced reserve must already be fresh — this routine does not refresh
// reserves itself, matching spec §5's "requires a prior refresh in the same
// batch".
func (e *Engine) RefreshObligation(ctx context.Context, market, owner string, currentSlot uint64) (*Obligation, error) {
	obligation, ok, err := e.state.GetObligation(ctx, market, owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: obligation %s/%s not found", ErrConfigurationInvalid, market, owner)
	}
	reserves, err := e.loadObligationReserves(ctx, market, obligation, currentSlot)
	if err != nil {
		return nil, err
	}
	if err := e.refreshObligationLocked(ctx, obligation, reserves, currentSlot); err != nil {
		return nil, err
	}
	if err := e.state.PutObligation(ctx, obligation); err != nil {
		return nil, err
	}
	health := "none"
	if hf, err := obligation.HealthFactor(); err == nil && hf != nil {
		health = fmt.Sprintf("%d", *hf)
	}
	e.emit(EventObligationRefreshed, map[string]string{
		"market":                     market,
		"owner":                      owner,
		"deposited_value_usd":        obligation.DepositedValueUSD.String(),
		"borrowed_value_usd":         obligation.BorrowedValueUSD.String(),
		"allowed_borrow_value_usd":   obligation.AllowedBorrowValueUSD.String(),
		"unhealthy_borrow_value_usd": obligation.UnhealthyBorrowValueUSD.String(),
		"health_factor":              health,
	})
	return obligation, nil
}

// loadObligationReserves fetches (without refreshing) every reserve an
// obligation references, for use by refresh_obligation and the operations
// that need a post-op valuation.
func (e *Engine) loadObligationReserves(ctx context.Context, market string, o *Obligation, currentSlot uint64) (map[string]*Reserve, error) {
	out := make(map[string]*Reserve, len(o.Deposits)+len(o.Borrows))
	fetch := func(mint string) error {
		if _, ok := out[mint]; ok {
			return nil
		}
		reserve, ok, err := e.state.GetReserve(ctx, market, mint)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: reserve %s not found", ErrConfigurationInvalid, mint)
		}
		if reserve.IsStale(currentSlot, MaxReserveStalenessSlots) {
			return fmt.Errorf("%w: reserve %s", ErrReserveStale, mint)
		}
		out[mint] = reserve
		return nil
	}
	for _, d := range o.Deposits {
		if err := fetch(d.Reserve); err != nil {
			return nil, err
		}
	}
	for _, b := range o.Borrows {
		if err := fetch(b.Reserve); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ensureReserveFresh implements spec §4.5's shared frame step (b): every
// operation requires its reserve(s) to already be within the staleness
// window; it does not refresh them itself (spec §5, seed case 6).
func (e *Engine) ensureReserveFresh(r *Reserve, currentSlot uint64) error {
	if r.IsStale(currentSlot, MaxReserveStalenessSlots) {
		return fmt.Errorf("%w: reserve %s last updated at slot %d, current slot %d", ErrReserveStale, r.TokenMint, r.LastUpdateSlot, currentSlot)
	}
	return nil
}

func (e *Engine) getMarket(ctx context.Context, authority string) (*Market, error) {
	m, ok, err := e.state.GetMarket(ctx, authority)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: market %s not found", ErrConfigurationInvalid, authority)
	}
	return m, nil
}

func (e *Engine) getReserve(ctx context.Context, market, tokenMint string) (*Reserve, error) {
	r, ok, err := e.state.GetReserve(ctx, market, tokenMint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: reserve %s/%s not found", ErrConfigurationInvalid, market, tokenMint)
	}
	return r, nil
}

func (e *Engine) getOrCreateObligation(ctx context.Context, market, owner string) (*Obligation, error) {
	o, ok, err := e.state.GetObligation(ctx, market, owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		o = &Obligation{Market: market, Owner: owner}
		if err := e.state.PutObligation(ctx, o); err != nil {
			return nil, err
		}
		e.emit(EventObligationInitialized, map[string]string{"market": market, "owner": owner})
	}
	return o, nil
}

// recomputeRates recomputes current_borrow_rate_bps/current_supply_rate_bps
// from the reserve's current utilization, the "(f) new interest rates are
// recomputed from new utilization" step of the control flow (spec §2).
func recomputeRates(r *Reserve) error {
	utilization, err := r.UtilizationBPS()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMathOverflow, err)
	}
	r.Liquidity.CurrentBorrowRateBPS = r.Config.InterestRateConfig.BorrowRateBPS(utilization)
	r.Liquidity.CurrentSupplyRateBPS = r.Config.InterestRateConfig.SupplyRateBPS(utilization, r.Liquidity.CurrentBorrowRateBPS)
	return nil
}

// currentAmountWithInterest accrues a snapshot principal through the
// reserve's current index: stored_amount * current_index / snapshot_index.
func currentAmountWithInterest(storedAmount, currentIndex, snapshotIndex fixedpoint.U256) (fixedpoint.U256, error) {
	if snapshotIndex.IsZero() {
		return storedAmount, nil
	}
	v, err := fixedpoint.MulDiv(storedAmount, currentIndex, snapshotIndex)
	if err != nil {
		return fixedpoint.Zero(), fmt.Errorf("%w: %v", ErrMathOverflow, err)
	}
	return v, nil
}
