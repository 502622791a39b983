// Package interest implements the kinked, utilization-based borrow/supply
// rate model. Every function here is pure: no state, no I/O, callable by
// the reserve refresh routine and by tests in isolation.
package interest

import "fmt"

// Config is a reserve's interest-rate configuration, all fields in basis
// points. It mirrors native/lending's InterestModel but is expressed as
// plain BPS integers rather than *big.Rat, since the core's arithmetic is
// fixed-point throughout.
type Config struct {
	OptimalUtilizationBPS uint32
	BaseRateBPS           uint32
	Slope1BPS             uint32
	Slope2BPS             uint32
	ReserveFactorBPS      uint32
}

// DefaultConfig matches the normative defaults in spec §6: optimal 8000,
// base 200, slope1 1000, slope2 10000, reserve factor 1000.
var DefaultConfig = Config{
	OptimalUtilizationBPS: 8_000,
	BaseRateBPS:           200,
	Slope1BPS:             1_000,
	Slope2BPS:             10_000,
	ReserveFactorBPS:      1_000,
}

// Validate checks the ranges the core depends on (spec §3's reserve
// invariants plus the original Radiant program's reserve.rs validate_config).
func (c Config) Validate() error {
	const bpsMax = 10_000
	if c.OptimalUtilizationBPS > bpsMax {
		return fmt.Errorf("interest: optimal utilization %d exceeds %d bps", c.OptimalUtilizationBPS, bpsMax)
	}
	if c.ReserveFactorBPS > bpsMax {
		return fmt.Errorf("interest: reserve factor %d exceeds %d bps", c.ReserveFactorBPS, bpsMax)
	}
	return nil
}

// BorrowRateBPS implements spec §4.2's piecewise-linear kinked curve.
//
//	U <= U*: rate = r0 + (U * s1) / U*                      (slope term 0 if U* == 0)
//	U >  U*: rate = r0 + s1 + ((U - U*) * s2) / (10000 - U*) (excess term s2 if U* == 10000)
func (c Config) BorrowRateBPS(utilizationBPS uint32) uint32 {
	u := uint64(utilizationBPS)
	optimal := uint64(c.OptimalUtilizationBPS)
	base := uint64(c.BaseRateBPS)
	slope1 := uint64(c.Slope1BPS)
	slope2 := uint64(c.Slope2BPS)

	if u <= optimal {
		if optimal == 0 {
			return uint32(base)
		}
		return uint32(base + (u*slope1)/optimal)
	}
	denom := uint64(10_000) - optimal
	if denom == 0 {
		return uint32(base + slope1 + slope2)
	}
	excess := u - optimal
	return uint32(base + slope1 + (excess*slope2)/denom)
}

// SupplyRateBPS implements spec §4.2's supply-rate derivation:
// supply_rate = (borrow_rate * U / 10000) * (10000 - reserve_factor) / 10000.
func (c Config) SupplyRateBPS(utilizationBPS, borrowRateBPS uint32) uint32 {
	u := uint64(utilizationBPS)
	gross := (uint64(borrowRateBPS) * u) / 10_000
	net := (gross * (10_000 - uint64(c.ReserveFactorBPS))) / 10_000
	return uint32(net)
}
