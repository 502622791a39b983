package lending

import (
	"fmt"

	"radiantcore/lending/fixedpoint"
	"radiantcore/lending/interest"
)

// Scaling constants normative per spec §6.
const (
	MaxReserves             = 32
	MaxDepositsPerObligation = 8
	MaxBorrowsPerObligation  = 8
	MinDepositAmount         = 1_000
	MinBorrowAmount          = 1_000
	MaxReserveStalenessSlots = 1_500
	MaxOracleStalenessSlots  = 150
	MinHealthFactorAfterBorrow = fixedpoint.HealthFactorOne
	DefaultCloseFactorBPS     = 5_000
	DefaultLiquidationBonusBPS = 500
	DefaultProtocolFeeBPS     = 1_000
	MaxCloseFactorBPS         = 10_000
	MaxLiquidationBonusBPS    = 2_500
)

// Market is the global configuration container for one lending market:
// emergency flag, global liquidation parameters, and the set of reserves
// belonging to it. Authority/treasury are opaque identifiers supplied by
// the admin collaborator (spec §1 treats admin lifecycle as external); the
// engine never interprets them beyond equality comparison.
type Market struct {
	Version uint8

	Authority  string
	Treasury   string
	Emergency  bool

	CloseFactorBPS      uint32
	LiquidationBonusBPS  uint32
	ProtocolFeeBPS       uint32
	ReservesCount        uint32

	// Reserved keeps the persisted record at a stable 128-byte budget so
	// future fields can be added without a migration (spec §6).
	Reserved [128]byte
}

// Validate enforces the invariants spec §3 states for Market, carried over
// from the original Radiant program's lending_market.rs validators.
func (m *Market) Validate() error {
	if m.CloseFactorBPS > MaxCloseFactorBPS {
		return fmt.Errorf("%w: close factor %d exceeds %d bps", ErrConfigurationInvalid, m.CloseFactorBPS, MaxCloseFactorBPS)
	}
	if m.LiquidationBonusBPS > MaxLiquidationBonusBPS {
		return fmt.Errorf("%w: liquidation bonus %d exceeds %d bps", ErrConfigurationInvalid, m.LiquidationBonusBPS, MaxLiquidationBonusBPS)
	}
	if m.ProtocolFeeBPS > MaxCloseFactorBPS {
		return fmt.Errorf("%w: protocol fee %d exceeds 10000 bps", ErrConfigurationInvalid, m.ProtocolFeeBPS)
	}
	if m.ReservesCount > MaxReserves {
		return fmt.Errorf("%w: reserves count %d exceeds %d", ErrConfigurationInvalid, m.ReservesCount, MaxReserves)
	}
	return nil
}

// ReserveConfig is the admin-controlled risk configuration of one reserve.
type ReserveConfig struct {
	LTVBPS                   uint32
	LiquidationThresholdBPS  uint32
	DepositLimit             uint64 // 0 = unlimited
	BorrowLimit              uint64 // 0 = unlimited
	DepositsEnabled          bool
	BorrowsEnabled           bool
	InterestRateConfig       interest.Config

	// BorrowCaps supplements spec §4.5.3's single borrow_limit check with
	// an optional, independently configurable ceiling (SPEC_FULL §D.6).
	// Zero fields mean "no additional cap".
	BorrowCaps BorrowCaps
}

// BorrowCaps bounds borrowing beyond the flat borrow_limit: PerBlock caps the
// amount of a single Borrow call, and UtilizationBPS caps the reserve's
// projected utilization; both are optional. Borrow volume is not summed
// across calls in the same slot.
type BorrowCaps struct {
	PerBlock       uint64
	UtilizationBPS uint32
}

// Validate enforces spec §3's reserve invariants (ltv < threshold <= 10000,
// optimal utilization <= 10000, reserve factor <= 10000), grounded on the
// original Radiant program's reserve.rs validate_config.
func (c ReserveConfig) Validate() error {
	if c.LiquidationThresholdBPS > MaxCloseFactorBPS {
		return fmt.Errorf("%w: liquidation threshold %d exceeds 10000 bps", ErrConfigurationInvalid, c.LiquidationThresholdBPS)
	}
	if c.LTVBPS >= c.LiquidationThresholdBPS {
		return fmt.Errorf("%w: ltv %d must be strictly below liquidation threshold %d", ErrConfigurationInvalid, c.LTVBPS, c.LiquidationThresholdBPS)
	}
	return c.InterestRateConfig.Validate()
}

// ReserveLiquidity is the mutable pool-accounting half of a reserve.
type ReserveLiquidity struct {
	TotalDeposits            fixedpoint.U256
	TotalBorrows             fixedpoint.U256
	AccumulatedProtocolFees  fixedpoint.U256
	CumulativeBorrowIndex    fixedpoint.U256
	CumulativeSupplyIndex    fixedpoint.U256
	CurrentBorrowRateBPS     uint32
	CurrentSupplyRateBPS     uint32
}

// Reserve is a per-asset liquidity pool.
type Reserve struct {
	Version uint8

	Market        string
	TokenMint     string
	TokenDecimals uint8
	Vault         string
	FeeReceiver   string
	Oracle        string

	LastUpdateSlot      uint64
	LastUpdateTimestamp int64

	Config    ReserveConfig
	Liquidity ReserveLiquidity

	Reserved [128]byte
}

// IsStale reports whether the reserve has not been refreshed within
// maxStalenessSlots of currentSlot (spec §4.5 framing / original
// reserve.rs is_stale).
func (r *Reserve) IsStale(currentSlot uint64, maxStalenessSlots uint64) bool {
	if currentSlot <= r.LastUpdateSlot {
		return false
	}
	return currentSlot-r.LastUpdateSlot > maxStalenessSlots
}

// AvailableLiquidity returns total_deposits - total_borrows, saturating at
// zero (spec §3: "available_liquidity never underflows for live accounting").
func (r *Reserve) AvailableLiquidity() fixedpoint.U256 {
	return fixedpoint.SatSub(r.Liquidity.TotalDeposits, r.Liquidity.TotalBorrows)
}

// UtilizationBPS recomputes total_borrows / total_deposits in BPS, 0 if
// total_deposits is zero (spec §4.3 step 3).
func (r *Reserve) UtilizationBPS() (uint32, error) {
	return fixedpoint.UtilizationBPS(r.Liquidity.TotalBorrows, r.Liquidity.TotalDeposits)
}

// ObligationCollateral is one deposit entry of an obligation.
type ObligationCollateral struct {
	Reserve             string
	DepositedAmount     fixedpoint.U256
	SupplyIndexSnapshot fixedpoint.U256
	MarketValueUSD      fixedpoint.U256
}

// ObligationLiquidity is one borrow entry of an obligation.
type ObligationLiquidity struct {
	Reserve             string
	BorrowedAmount       fixedpoint.U256
	BorrowIndexSnapshot  fixedpoint.U256
	MarketValueUSD       fixedpoint.U256
}

// Obligation is a per-user position scoped to one market.
type Obligation struct {
	Version uint8

	Owner  string
	Market string

	LastUpdateSlot uint64

	Deposits []ObligationCollateral
	Borrows  []ObligationLiquidity

	DepositedValueUSD       fixedpoint.U256
	BorrowedValueUSD        fixedpoint.U256
	AllowedBorrowValueUSD   fixedpoint.U256
	UnhealthyBorrowValueUSD fixedpoint.U256

	Reserved [64]byte
}

// FindDeposit returns the index of the deposit entry for reserveID, or -1.
func (o *Obligation) FindDeposit(reserveID string) int {
	for i := range o.Deposits {
		if o.Deposits[i].Reserve == reserveID {
			return i
		}
	}
	return -1
}

// FindBorrow returns the index of the borrow entry for reserveID, or -1.
func (o *Obligation) FindBorrow(reserveID string) int {
	for i := range o.Borrows {
		if o.Borrows[i].Reserve == reserveID {
			return i
		}
	}
	return -1
}

// HasDeposits reports whether the obligation holds any collateral.
func (o *Obligation) HasDeposits() bool { return len(o.Deposits) > 0 }

// HasBorrows reports whether the obligation has any outstanding debt.
func (o *Obligation) HasBorrows() bool { return len(o.Borrows) > 0 }

// HealthFactor implements spec §4.4's derived health factor: nil when there
// is no debt, else unhealthy_borrow_value_usd * 10000 / borrowed_value_usd.
func (o *Obligation) HealthFactor() (*uint64, error) {
	if o.BorrowedValueUSD.IsZero() {
		return nil, nil
	}
	scaled, err := fixedpoint.MulDiv(o.UnhealthyBorrowValueUSD, fixedpoint.BPSDenominatorU256(), o.BorrowedValueUSD)
	if err != nil {
		return nil, err
	}
	v, err := scaled.Uint64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// IsHealthy reports health > 10000 (strict), true when there is no debt.
func (o *Obligation) IsHealthy() (bool, error) {
	hf, err := o.HealthFactor()
	if err != nil {
		return false, err
	}
	if hf == nil {
		return true, nil
	}
	return *hf > fixedpoint.HealthFactorOne, nil
}

// IsLiquidatable reports health <= 10000; always false with no debt.
func (o *Obligation) IsLiquidatable() (bool, error) {
	hf, err := o.HealthFactor()
	if err != nil {
		return false, err
	}
	if hf == nil {
		return false, nil
	}
	return *hf <= fixedpoint.HealthFactorOne, nil
}

// RemainingBorrowCapacityUSD returns allowed_borrow_value_usd -
// borrowed_value_usd, saturating at zero (spec §4.4).
func (o *Obligation) RemainingBorrowCapacityUSD() fixedpoint.U256 {
	return fixedpoint.SatSub(o.AllowedBorrowValueUSD, o.BorrowedValueUSD)
}
