package fixedpoint

// Scaling constants normative to the accounting core (spec §6).
const (
	BPSDenominator  = 10_000
	IndexOne        = "1000000000000000000" // 1e18
	USDScale        = 1_000_000             // 1e6
	SecondsPerYear  = 31_536_000
	HealthFactorOne = 10_000
)

// IndexOneU256 returns INDEX_ONE (1e18) as a U256, the "1.0" value cumulative
// indexes start at and are scaled by.
func IndexOneU256() U256 {
	var out U256
	if err := out.v.SetFromDecimal(IndexOne); err != nil {
		panic("fixedpoint: invalid INDEX_ONE literal: " + err.Error())
	}
	return out
}

// USDScaleU256 returns USD_SCALE (1e6) as a U256.
func USDScaleU256() U256 { return FromUint64(USDScale) }

// BPSDenominatorU256 returns 10_000 as a U256.
func BPSDenominatorU256() U256 { return FromUint64(BPSDenominator) }

// ApplyBPS computes floor(value * bps / 10_000), the shape of every
// LTV/threshold/fee/bonus application in the core.
func ApplyBPS(value U256, bps uint32) (U256, error) {
	return MulDiv(value, FromUint64(uint64(bps)), BPSDenominatorU256())
}

// UtilizationBPS computes floor(borrows * 10_000 / deposits), returning zero
// when deposits is zero (guarded per spec §4.1 rather than dividing by zero).
func UtilizationBPS(totalBorrows, totalDeposits U256) (uint32, error) {
	if totalDeposits.IsZero() {
		return 0, nil
	}
	result, err := MulDiv(totalBorrows, BPSDenominatorU256(), totalDeposits)
	if err != nil {
		return 0, err
	}
	u, err := result.Uint64()
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}
