package analytics

import (
	"log/slog"
	"strconv"
	"time"

	"gorm.io/gorm"

	"radiantcore/lending"
)

// Sink implements lending.Emitter, persisting every reserve/obligation
// refresh and every liquidation to Postgres via gorm, the same
// event-to-row translation services/otc-gateway's reconciler performs
// against its invoice/voucher/event tables before exporting a report.
type Sink struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSink builds a Sink, auto-migrating its tables on first use.
func NewSink(db *gorm.DB, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return &Sink{db: db, logger: logger}, nil
}

var _ lending.Emitter = (*Sink)(nil)

// Emit implements lending.Emitter.
func (s *Sink) Emit(e lending.Event) {
	var err error
	switch e.Type {
	case lending.EventReserveRefreshed:
		err = s.recordReserve(e)
	case lending.EventObligationRefreshed:
		err = s.recordObligation(e)
	case lending.EventLiquidation:
		err = s.recordLiquidation(e)
	}
	if err != nil {
		s.logger.Error("analytics: persist event failed", "type", e.Type, "error", err)
	}
}

func (s *Sink) recordReserve(e lending.Event) error {
	attrs := e.Attributes
	slot, _ := strconv.ParseUint(attrs["slot"], 10, 64)
	utilization, _ := strconv.ParseUint(attrs["utilization_bps"], 10, 32)
	borrowRate, _ := strconv.ParseUint(attrs["borrow_rate_bps"], 10, 32)
	supplyRate, _ := strconv.ParseUint(attrs["supply_rate_bps"], 10, 32)
	row := ReserveSnapshot{
		Market:                attrs["market"],
		TokenMint:             attrs["token_mint"],
		Slot:                  slot,
		CumulativeBorrowIndex: attrs["borrow_index"],
		CumulativeSupplyIndex: attrs["supply_index"],
		UtilizationBPS:        uint32(utilization),
		BorrowRateBPS:         uint32(borrowRate),
		SupplyRateBPS:         uint32(supplyRate),
		ObservedAt:            time.Now().UTC(),
	}
	return s.db.Create(&row).Error
}

func (s *Sink) recordObligation(e lending.Event) error {
	attrs := e.Attributes
	var healthFactor *uint64
	if raw := attrs["health_factor"]; raw != "" && raw != "none" {
		if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
			healthFactor = &v
		}
	}
	row := ObligationSnapshot{
		Market:                  attrs["market"],
		Owner:                   attrs["owner"],
		DepositedValueUSD:       attrs["deposited_value_usd"],
		BorrowedValueUSD:        attrs["borrowed_value_usd"],
		AllowedBorrowValueUSD:   attrs["allowed_borrow_value_usd"],
		UnhealthyBorrowValueUSD: attrs["unhealthy_borrow_value_usd"],
		HealthFactorBPS:         healthFactor,
		ObservedAt:              time.Now().UTC(),
	}
	return s.db.Create(&row).Error
}

func (s *Sink) recordLiquidation(e lending.Event) error {
	attrs := e.Attributes
	actualRepay, _ := strconv.ParseUint(attrs["actual_repay"], 10, 64)
	collateralSeized, _ := strconv.ParseUint(attrs["collateral_seized"], 10, 64)
	liquidatorReward, _ := strconv.ParseUint(attrs["liquidator_reward"], 10, 64)
	protocolFee, _ := strconv.ParseUint(attrs["protocol_fee"], 10, 64)
	row := LiquidationRecord{
		Market:           attrs["market"],
		Owner:            attrs["owner"],
		Liquidator:       attrs["liquidator"],
		RepayMint:        attrs["repay_mint"],
		CollateralMint:   attrs["collateral_mint"],
		ActualRepay:      actualRepay,
		CollateralSeized: collateralSeized,
		LiquidatorReward: liquidatorReward,
		ProtocolFee:      protocolFee,
		ObservedAt:       time.Now().UTC(),
	}
	return s.db.Create(&row).Error
}
