// Package radiantmetrics exposes the Prometheus collectors for the lending
// engine, following the lazily-initialised singleton-registry shape
// observability/metrics.go uses for every other subsystem.
package radiantmetrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type lendingMetrics struct {
	operations     *prometheus.CounterVec
	operationTime  *prometheus.HistogramVec
	utilization    *prometheus.GaugeVec
	borrowIndex    *prometheus.GaugeVec
	supplyIndex    *prometheus.GaugeVec
	healthFactor   *prometheus.HistogramVec
	liquidations   *prometheus.CounterVec
	protocolFees   *prometheus.CounterVec
}

// Recorder is an alias for the lending metrics registry, exported so callers
// outside this package (internal/httpapi) can hold a reference returned by
// Lending() without this package exposing its internal constructor.
type Recorder = lendingMetrics

var (
	lendingOnce sync.Once
	lendingReg  *lendingMetrics
)

// Lending returns the singleton lending metrics registry, registering its
// collectors with the default Prometheus registerer on first use.
func Lending() *lendingMetrics {
	lendingOnce.Do(func() {
		lendingReg = &lendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "radiant",
				Subsystem: "lending",
				Name:      "operations_total",
				Help:      "Count of lending operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			operationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "radiant",
				Subsystem: "lending",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for lending operation handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "radiant",
				Subsystem: "lending",
				Name:      "reserve_utilization_bps",
				Help:      "Current reserve utilization in basis points.",
			}, []string{"market", "token_mint"}),
			borrowIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "radiant",
				Subsystem: "lending",
				Name:      "cumulative_borrow_index",
				Help:      "Current cumulative borrow index, scaled by 1e18.",
			}, []string{"market", "token_mint"}),
			supplyIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "radiant",
				Subsystem: "lending",
				Name:      "cumulative_supply_index",
				Help:      "Current cumulative supply index, scaled by 1e18.",
			}, []string{"market", "token_mint"}),
			healthFactor: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "radiant",
				Subsystem: "lending",
				Name:      "obligation_health_factor",
				Help:      "Distribution of obligation health factors observed on refresh (10000 = 1.0).",
				Buckets:   []float64{5000, 8000, 10000, 10500, 11000, 12500, 15000, 20000, 50000},
			}, []string{"market"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "radiant",
				Subsystem: "lending",
				Name:      "liquidations_total",
				Help:      "Count of completed liquidations segmented by market.",
			}, []string{"market"}),
			protocolFees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "radiant",
				Subsystem: "lending",
				Name:      "protocol_fees_collected_total",
				Help:      "Native-unit protocol fees collected, segmented by market and token.",
			}, []string{"market", "token_mint"}),
		}
		prometheus.MustRegister(
			lendingReg.operations,
			lendingReg.operationTime,
			lendingReg.utilization,
			lendingReg.borrowIndex,
			lendingReg.supplyIndex,
			lendingReg.healthFactor,
			lendingReg.liquidations,
			lendingReg.protocolFees,
		)
	})
	return lendingReg
}

// ObserveOperation records the outcome and latency of a lending operation
// call (deposit, withdraw, borrow, repay, liquidate, refresh).
func (m *lendingMetrics) ObserveOperation(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	op := normalize(operation)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.operationTime.WithLabelValues(op).Observe(d.Seconds())
}

// RecordReserveState updates the gauges tracking a reserve's current
// utilization and cumulative indexes, called after every RefreshReserve.
func (m *lendingMetrics) RecordReserveState(market, tokenMint string, utilizationBPS uint32, borrowIndex, supplyIndex float64) {
	if m == nil {
		return
	}
	m.utilization.WithLabelValues(market, tokenMint).Set(float64(utilizationBPS))
	m.borrowIndex.WithLabelValues(market, tokenMint).Set(borrowIndex)
	m.supplyIndex.WithLabelValues(market, tokenMint).Set(supplyIndex)
}

// RecordHealthFactor observes an obligation's health factor after a refresh.
func (m *lendingMetrics) RecordHealthFactor(market string, healthFactorBPS uint64) {
	if m == nil {
		return
	}
	m.healthFactor.WithLabelValues(market).Observe(float64(healthFactorBPS))
}

// RecordLiquidation increments the liquidation counter for a market.
func (m *lendingMetrics) RecordLiquidation(market string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(market).Inc()
}

// RecordProtocolFeesCollected adds to the collected-fees counter.
func (m *lendingMetrics) RecordProtocolFeesCollected(market, tokenMint string, amount uint64) {
	if m == nil {
		return
	}
	m.protocolFees.WithLabelValues(market, tokenMint).Add(float64(amount))
}

func normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s)
}
