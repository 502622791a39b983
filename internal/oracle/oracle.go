// Package oracle implements lending.OracleAdapter with a multi-feed median
// aggregator, deviation cap, and circuit breaker, grounded on
// services/payments-gateway's Oracle (median-of-feeds with TTL and max
// deviation), adapted from float64 USD prices to fixedpoint.U256 and from a
// wall-clock TTL to the engine's slot-based staleness model.
package oracle

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"radiantcore/lending"
	"radiantcore/lending/fixedpoint"
)

// Sample is a single feed's price observation for one reserve.
type Sample struct {
	PriceUSD        fixedpoint.U256
	LastUpdatedSlot uint64
}

// Aggregator maintains per-reserve feed sets and exposes a resilient median
// price. MaxDeviationBPS discards feeds too far from the median; BreakerBPS
// rejects a new median too far from the last accepted one (SPEC_FULL §D.5).
type Aggregator struct {
	mu             sync.RWMutex
	maxDeviationBPS uint32
	breakerBPS      uint32
	feeds           map[string]map[string]Sample
	lastAccepted    map[string]fixedpoint.U256
}

// NewAggregator builds an Aggregator. A zero maxDeviationBPS or breakerBPS
// disables that guard.
func NewAggregator(maxDeviationBPS, breakerBPS uint32) *Aggregator {
	return &Aggregator{
		maxDeviationBPS: maxDeviationBPS,
		breakerBPS:      breakerBPS,
		feeds:           make(map[string]map[string]Sample),
		lastAccepted:    make(map[string]fixedpoint.U256),
	}
}

// Publish records a feed's price observation for oracleID, the write side an
// external price publisher calls (analogous to the original Oracle.Update).
func (a *Aggregator) Publish(oracleID, feed string, priceUSD fixedpoint.U256, slot uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.feeds[oracleID]; !ok {
		a.feeds[oracleID] = make(map[string]Sample)
	}
	a.feeds[oracleID][feed] = Sample{PriceUSD: priceUSD, LastUpdatedSlot: slot}
}

// PriceUSD implements lending.OracleAdapter: compute the median of every feed
// registered for oracleID, reject outliers beyond MaxDeviationBPS, then
// reject the result entirely if it moved beyond BreakerBPS from the last
// accepted price.
func (a *Aggregator) PriceUSD(ctx context.Context, oracleID string) (lending.OraclePrice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	feeds, ok := a.feeds[oracleID]
	if !ok || len(feeds) == 0 {
		return lending.OraclePrice{}, fmt.Errorf("%w: no feeds registered for %s", lending.ErrOracleInvalid, oracleID)
	}

	samples := make([]Sample, 0, len(feeds))
	for _, s := range feeds {
		samples = append(samples, s)
	}
	median, medianSlot, err := medianOf(samples)
	if err != nil {
		return lending.OraclePrice{}, err
	}

	if a.maxDeviationBPS > 0 {
		filtered := make([]Sample, 0, len(samples))
		for _, s := range samples {
			if withinDeviation(s.PriceUSD, median, a.maxDeviationBPS) {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) == 0 {
			return lending.OraclePrice{}, fmt.Errorf("%w: all feeds for %s exceed deviation cap", lending.ErrOracleInvalid, oracleID)
		}
		median, medianSlot, err = medianOf(filtered)
		if err != nil {
			return lending.OraclePrice{}, err
		}
	}

	if prev, ok := a.lastAccepted[oracleID]; ok && a.breakerBPS > 0 && !prev.IsZero() {
		if !withinDeviation(median, prev, a.breakerBPS) {
			return lending.OraclePrice{}, fmt.Errorf("%w: price for %s tripped circuit breaker", lending.ErrOracleInvalid, oracleID)
		}
	}

	a.lastAccepted[oracleID] = median
	return lending.OraclePrice{PriceUSD: median, LastUpdatedSlot: medianSlot}, nil
}

var _ lending.OracleAdapter = (*Aggregator)(nil)

func medianOf(samples []Sample) (fixedpoint.U256, uint64, error) {
	if len(samples) == 0 {
		return fixedpoint.Zero(), 0, fmt.Errorf("%w: no samples", lending.ErrOracleInvalid)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].PriceUSD.Cmp(samples[j].PriceUSD) < 0 })
	mid := len(samples) / 2
	if len(samples)%2 == 1 {
		return samples[mid].PriceUSD, samples[mid].LastUpdatedSlot, nil
	}
	lo, hi := samples[mid-1], samples[mid]
	avg, err := fixedpoint.Div(mustAdd(lo.PriceUSD, hi.PriceUSD), fixedpoint.FromUint64(2))
	if err != nil {
		return fixedpoint.Zero(), 0, fmt.Errorf("%w: median average: %v", lending.ErrMathOverflow, err)
	}
	slot := hi.LastUpdatedSlot
	if lo.LastUpdatedSlot < slot {
		slot = lo.LastUpdatedSlot
	}
	return avg, slot, nil
}

func mustAdd(a, b fixedpoint.U256) fixedpoint.U256 {
	v, err := fixedpoint.Add(a, b)
	if err != nil {
		return fixedpoint.Zero()
	}
	return v
}

// withinDeviation reports whether |candidate - reference| is at most
// deviationBPS/10000 of reference (the bound is always taken from reference).
func withinDeviation(candidate, reference fixedpoint.U256, deviationBPS uint32) bool {
	diff := fixedpoint.SatSub(candidate, reference)
	if candidate.Cmp(reference) < 0 {
		diff = fixedpoint.SatSub(reference, candidate)
	}
	if reference.IsZero() {
		return diff.IsZero()
	}
	bound, err := fixedpoint.ApplyBPS(reference, deviationBPS)
	if err != nil {
		return false
	}
	return diff.Cmp(bound) <= 0
}
