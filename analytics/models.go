// Package analytics persists historical reserve/obligation/liquidation
// snapshots to Postgres and exports reserve snapshots to Parquet on demand, grounded
// on services/otc-gateway's gorm model + reconciler export pattern (a
// recurring batch job joining persisted rows into CSV/Parquet reports for
// offline analysis).
package analytics

import (
	"time"

	"gorm.io/gorm"
)

// ReserveSnapshot records a reserve's accrual/utilization state at the slot
// a RefreshReserve observation was captured.
type ReserveSnapshot struct {
	ID                    uint64 `gorm:"primaryKey;autoIncrement"`
	Market                string `gorm:"index:idx_reserve_market_mint"`
	TokenMint             string `gorm:"index:idx_reserve_market_mint"`
	Slot                  uint64 `gorm:"index"`
	CumulativeBorrowIndex string
	CumulativeSupplyIndex string
	UtilizationBPS        uint32
	BorrowRateBPS         uint32
	SupplyRateBPS         uint32
	ObservedAt            time.Time `gorm:"index"`
}

// ObligationSnapshot records an obligation's valuation when a
// RefreshObligation observation was captured. Sink does not fill Slot (the
// ObligationRefreshed event carries no slot attribute), so it stays zero.
type ObligationSnapshot struct {
	ID                      uint64 `gorm:"primaryKey;autoIncrement"`
	Market                  string `gorm:"index:idx_obligation_market_owner"`
	Owner                   string `gorm:"index:idx_obligation_market_owner"`
	Slot                    uint64 `gorm:"index"`
	DepositedValueUSD       string
	BorrowedValueUSD        string
	AllowedBorrowValueUSD   string
	UnhealthyBorrowValueUSD string
	HealthFactorBPS         *uint64
	ObservedAt              time.Time `gorm:"index"`
}

// LiquidationRecord records a completed liquidation for after-the-fact
// audit and bonus/fee reporting.
type LiquidationRecord struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	Market            string `gorm:"index"`
	Owner             string `gorm:"index"`
	Liquidator        string
	RepayMint         string
	CollateralMint    string
	ActualRepay       uint64
	CollateralSeized  uint64
	LiquidatorReward  uint64
	ProtocolFee       uint64
	ObservedAt        time.Time `gorm:"index"`
}

// AutoMigrate creates or updates every analytics table, the same
// models.AutoMigrate entry point otc-gateway's main.go calls at startup.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ReserveSnapshot{}, &ObligationSnapshot{}, &LiquidationRecord{})
}
