package lending

import (
	"context"
	"fmt"

	"radiantcore/lending/fixedpoint"
)

// refreshReserveLocked implements spec §4.3 in full: compute slots/time
// elapsed, accrue compound interest into both indexes if there is
// outstanding debt, split the protocol's reserve-factor cut, then recompute
// the utilization-derived rates. Idempotent within a slot (step 1 returns
// immediately when slots_elapsed == 0), and permissionless: any caller may
// invoke RefreshReserve.
func refreshReserveLocked(r *Reserve, currentSlot uint64, currentTimestamp int64) error {
	slotsElapsed := fixedpoint.SatSub(fixedpoint.FromUint64(currentSlot), fixedpoint.FromUint64(r.LastUpdateSlot))
	if slotsElapsed.IsZero() {
		return nil
	}

	var timeElapsed int64
	if currentTimestamp > r.LastUpdateTimestamp {
		timeElapsed = currentTimestamp - r.LastUpdateTimestamp
	}

	if !r.Liquidity.TotalBorrows.IsZero() && timeElapsed > 0 {
		cappedSeconds := timeElapsed
		if cappedSeconds > fixedpoint.SecondsPerYear {
			cappedSeconds = fixedpoint.SecondsPerYear
		}

		// factor = (borrow_rate_bps * seconds * INDEX_ONE) / (10000 * SECONDS_PER_YEAR)
		rateSeconds, err := fixedpoint.Mul(fixedpoint.FromUint64(uint64(r.Liquidity.CurrentBorrowRateBPS)), fixedpoint.FromUint64(uint64(cappedSeconds)))
		if err != nil {
			return fmt.Errorf("%w: rate*seconds: %v", ErrMathOverflow, err)
		}
		numerator, err := fixedpoint.Mul(rateSeconds, fixedpoint.IndexOneU256())
		if err != nil {
			return fmt.Errorf("%w: numerator: %v", ErrMathOverflow, err)
		}
		denom, err := fixedpoint.Mul(fixedpoint.BPSDenominatorU256(), fixedpoint.FromUint64(fixedpoint.SecondsPerYear))
		if err != nil {
			return fmt.Errorf("%w: denom: %v", ErrMathOverflow, err)
		}
		factor, err := fixedpoint.Div(numerator, denom)
		if err != nil {
			return fmt.Errorf("%w: factor: %v", ErrMathOverflow, err)
		}

		// new_borrow_index = old_index * (INDEX_ONE + factor) / INDEX_ONE
		onePlusFactor, err := fixedpoint.Add(fixedpoint.IndexOneU256(), factor)
		if err != nil {
			return fmt.Errorf("%w: one+factor: %v", ErrMathOverflow, err)
		}
		newBorrowIndex, err := fixedpoint.MulDiv(r.Liquidity.CumulativeBorrowIndex, onePlusFactor, fixedpoint.IndexOneU256())
		if err != nil {
			return fmt.Errorf("%w: new borrow index: %v", ErrMathOverflow, err)
		}
		if newBorrowIndex.Cmp(r.Liquidity.CumulativeBorrowIndex) < 0 {
			return fmt.Errorf("%w: borrow index would decrease", ErrMathOverflow)
		}

		// interest_earned = total_borrows * factor / INDEX_ONE
		interestEarned, err := fixedpoint.MulDiv(r.Liquidity.TotalBorrows, factor, fixedpoint.IndexOneU256())
		if err != nil {
			return fmt.Errorf("%w: interest earned: %v", ErrMathOverflow, err)
		}
		newTotalBorrows, err := fixedpoint.Add(r.Liquidity.TotalBorrows, interestEarned)
		if err != nil {
			return fmt.Errorf("%w: total borrows: %v", ErrMathOverflow, err)
		}

		protocolCut, err := fixedpoint.ApplyBPS(interestEarned, r.Config.InterestRateConfig.ReserveFactorBPS)
		if err != nil {
			return fmt.Errorf("%w: protocol cut: %v", ErrMathOverflow, err)
		}
		newProtocolFees, err := fixedpoint.Add(r.Liquidity.AccumulatedProtocolFees, protocolCut)
		if err != nil {
			return fmt.Errorf("%w: accumulated fees: %v", ErrMathOverflow, err)
		}

		supplyInterest := fixedpoint.SatSub(interestEarned, protocolCut)

		newSupplyIndex := r.Liquidity.CumulativeSupplyIndex
		if !r.Liquidity.TotalDeposits.IsZero() {
			supplyFactor, err := fixedpoint.MulDiv(supplyInterest, fixedpoint.IndexOneU256(), r.Liquidity.TotalDeposits)
			if err != nil {
				return fmt.Errorf("%w: supply factor: %v", ErrMathOverflow, err)
			}
			increment, err := fixedpoint.MulDiv(r.Liquidity.CumulativeSupplyIndex, supplyFactor, fixedpoint.IndexOneU256())
			if err != nil {
				return fmt.Errorf("%w: supply index increment: %v", ErrMathOverflow, err)
			}
			candidate, err := fixedpoint.Add(r.Liquidity.CumulativeSupplyIndex, increment)
			if err != nil {
				return fmt.Errorf("%w: new supply index: %v", ErrMathOverflow, err)
			}
			if candidate.Cmp(r.Liquidity.CumulativeSupplyIndex) < 0 {
				return fmt.Errorf("%w: supply index would decrease", ErrMathOverflow)
			}
			newSupplyIndex = candidate
		}

		r.Liquidity.CumulativeBorrowIndex = newBorrowIndex
		r.Liquidity.CumulativeSupplyIndex = newSupplyIndex
		r.Liquidity.TotalBorrows = newTotalBorrows
		r.Liquidity.AccumulatedProtocolFees = newProtocolFees
	}

	utilization, err := r.UtilizationBPS()
	if err != nil {
		return fmt.Errorf("%w: utilization: %v", ErrMathOverflow, err)
	}
	r.Liquidity.CurrentBorrowRateBPS = r.Config.InterestRateConfig.BorrowRateBPS(utilization)
	r.Liquidity.CurrentSupplyRateBPS = r.Config.InterestRateConfig.SupplyRateBPS(utilization, r.Liquidity.CurrentBorrowRateBPS)

	r.LastUpdateSlot = currentSlot
	r.LastUpdateTimestamp = currentTimestamp
	return nil
}

// priceAt resolves the reserve's oracle price through the adapter and
// enforces the staleness bound (spec §6: caller checks against
// MAX_ORACLE_STALENESS_SLOTS).
func (e *Engine) priceAt(ctx context.Context, r *Reserve, currentSlot uint64) (OraclePrice, error) {
	price, err := e.oracle.PriceUSD(ctx, r.Oracle)
	if err != nil {
		return OraclePrice{}, fmt.Errorf("%w: %v", ErrOracleInvalid, err)
	}
	if currentSlot > price.LastUpdatedSlot && currentSlot-price.LastUpdatedSlot > MaxOracleStalenessSlots {
		return OraclePrice{}, ErrOracleStale
	}
	return price, nil
}

// refreshObligationLocked implements the corrected spec §4.4 valuation: for
// every deposit/borrow entry, pull the (already-refreshed) reserve and its
// oracle price, accrue the entry's amount through its index snapshot, and
// rebuild the four cached USD aggregates from each entry's own reserve
// config rather than the original program's placeholder 8000/8500 bps and
// 1:1 USD values (SPEC_FULL §A).
func (e *Engine) refreshObligationLocked(ctx context.Context, o *Obligation, reserves map[string]*Reserve, currentSlot uint64) error {
	deposited := fixedpoint.Zero()
	borrowed := fixedpoint.Zero()
	allowed := fixedpoint.Zero()
	unhealthy := fixedpoint.Zero()

	for i := range o.Deposits {
		entry := &o.Deposits[i]
		reserve, ok := reserves[entry.Reserve]
		if !ok {
			return fmt.Errorf("%w: reserve %s not supplied for valuation", ErrConfigurationInvalid, entry.Reserve)
		}
		currentAmount, err := fixedpoint.MulDiv(entry.DepositedAmount, reserve.Liquidity.CumulativeSupplyIndex, entry.SupplyIndexSnapshot)
		if err != nil {
			return fmt.Errorf("%w: deposit accrual: %v", ErrMathOverflow, err)
		}
		price, err := e.priceAt(ctx, reserve, currentSlot)
		if err != nil {
			return err
		}
		valueUSD, err := valueInUSD(currentAmount, price.PriceUSD, reserve.TokenDecimals)
		if err != nil {
			return err
		}
		entry.MarketValueUSD = valueUSD

		deposited, err = fixedpoint.Add(deposited, valueUSD)
		if err != nil {
			return fmt.Errorf("%w: deposited total: %v", ErrMathOverflow, err)
		}
		allowedContribution, err := fixedpoint.ApplyBPS(valueUSD, reserve.Config.LTVBPS)
		if err != nil {
			return fmt.Errorf("%w: allowed contribution: %v", ErrMathOverflow, err)
		}
		allowed, err = fixedpoint.Add(allowed, allowedContribution)
		if err != nil {
			return fmt.Errorf("%w: allowed total: %v", ErrMathOverflow, err)
		}
		unhealthyContribution, err := fixedpoint.ApplyBPS(valueUSD, reserve.Config.LiquidationThresholdBPS)
		if err != nil {
			return fmt.Errorf("%w: unhealthy contribution: %v", ErrMathOverflow, err)
		}
		unhealthy, err = fixedpoint.Add(unhealthy, unhealthyContribution)
		if err != nil {
			return fmt.Errorf("%w: unhealthy total: %v", ErrMathOverflow, err)
		}
	}

	for i := range o.Borrows {
		entry := &o.Borrows[i]
		reserve, ok := reserves[entry.Reserve]
		if !ok {
			return fmt.Errorf("%w: reserve %s not supplied for valuation", ErrConfigurationInvalid, entry.Reserve)
		}
		currentAmount, err := fixedpoint.MulDiv(entry.BorrowedAmount, reserve.Liquidity.CumulativeBorrowIndex, entry.BorrowIndexSnapshot)
		if err != nil {
			return fmt.Errorf("%w: borrow accrual: %v", ErrMathOverflow, err)
		}
		price, err := e.priceAt(ctx, reserve, currentSlot)
		if err != nil {
			return err
		}
		valueUSD, err := valueInUSD(currentAmount, price.PriceUSD, reserve.TokenDecimals)
		if err != nil {
			return err
		}
		entry.MarketValueUSD = valueUSD
		borrowed, err = fixedpoint.Add(borrowed, valueUSD)
		if err != nil {
			return fmt.Errorf("%w: borrowed total: %v", ErrMathOverflow, err)
		}
	}

	o.DepositedValueUSD = deposited
	o.BorrowedValueUSD = borrowed
	o.AllowedBorrowValueUSD = allowed
	o.UnhealthyBorrowValueUSD = unhealthy
	o.LastUpdateSlot = currentSlot
	return nil
}

// valueInUSD computes amount * price_usd / 10^decimals, all in 128-bit-class
// checked arithmetic scaled to USD_SCALE (spec §4.4).
func valueInUSD(amount, priceUSD fixedpoint.U256, decimals uint8) (fixedpoint.U256, error) {
	scale := fixedpoint.FromUint64(1)
	ten := fixedpoint.FromUint64(10)
	for i := uint8(0); i < decimals; i++ {
		var err error
		scale, err = fixedpoint.Mul(scale, ten)
		if err != nil {
			return fixedpoint.Zero(), fmt.Errorf("%w: decimal scale: %v", ErrMathOverflow, err)
		}
	}
	value, err := fixedpoint.MulDiv(amount, priceUSD, scale)
	if err != nil {
		return fixedpoint.Zero(), fmt.Errorf("%w: value in usd: %v", ErrMathOverflow, err)
	}
	return value, nil
}
